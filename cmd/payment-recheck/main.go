package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// payment-recheck дергает админ-ручку сервиса и принудительно сверяет
// один платёж со шлюзом. Используется, когда callback потерян, а ждать
// планового reconciliation-прохода не хочется.
func main() {
	var (
		baseURL        string
		transactionKey string
		timeout        time.Duration
	)

	flag.StringVar(&baseURL, "addr", "http://localhost:8080", "service base URL (fallback: RFS_ADMIN_URL)")
	flag.StringVar(&transactionKey, "key", "", "transaction key to recheck")
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")
	flag.Parse()

	if v := strings.TrimSpace(os.Getenv("RFS_ADMIN_URL")); v != "" && baseURL == "http://localhost:8080" {
		baseURL = v
	}
	if strings.TrimSpace(transactionKey) == "" {
		fail("-key is required")
	}

	endpoint := fmt.Sprintf("%s/admin/payments/%s/recheck",
		strings.TrimRight(baseURL, "/"), url.PathEscape(transactionKey))

	client := &http.Client{Timeout: timeout}
	resp, err := client.Post(endpoint, "application/json", nil)
	if err != nil {
		fail("recheck request failed: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		TransactionKey string `json:"transactionKey"`
		Repaired       bool   `json:"repaired"`
	}
	if resp.StatusCode != http.StatusOK {
		fail("recheck failed: status %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		fail("decode response: %v", err)
	}

	if body.Repaired {
		fmt.Printf("payment %s: terminal status found, completion dispatched\n", body.TransactionKey)
	} else {
		fmt.Printf("payment %s: no change (still pending or already terminal)\n", body.TransactionKey)
	}
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
