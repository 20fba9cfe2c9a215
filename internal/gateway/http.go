package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/rfs/internal/domain"
)

const (
	defaultConnectTimeout = 2 * time.Second
	defaultReadTimeout    = 3 * time.Second
)

// HTTPConfig задаёт параметры подключения к платёжному шлюзу.
type HTTPConfig struct {
	BaseURL        string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

// HTTPClient — транспортная реализация PaymentGateway поверх REST API шлюза:
// POST /payments и GET /payments/{transactionKey}?userId=.
type HTTPClient struct {
	baseURL string
	httpc   *http.Client
	logger  *log.Entry
}

// NewHTTPClient создаёт клиент шлюза с короткими connect/read таймаутами.
func NewHTTPClient(cfg HTTPConfig, logger *log.Entry) *HTTPClient {
	if logger == nil {
		logger = log.WithField("component", "gateway-http")
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: cfg.ConnectTimeout,
		}).DialContext,
		ResponseHeaderTimeout: cfg.ReadTimeout,
		MaxIdleConns:          10,
		IdleConnTimeout:       30 * time.Second,
	}

	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpc: &http.Client{
			Transport: transport,
			Timeout:   cfg.ConnectTimeout + cfg.ReadTimeout,
		},
		logger: logger,
	}
}

type createPaymentBody struct {
	OrderID     string `json:"orderId"`
	Amount      int64  `json:"amount"`
	Card        string `json:"card"`
	CallbackURL string `json:"callbackUrl"`
}

type gatewayResponse struct {
	TransactionKey string `json:"transactionKey"`
	Status         string `json:"status"`
	Reason         string `json:"reason"`
}

// CreatePayment инициирует платёж. Транспортные сбои и 5xx считаются
// временными (ErrGatewayTemporary), 4xx — окончательным отказом.
func (c *HTTPClient) CreatePayment(ctx context.Context, req domain.CreatePaymentRequest) (domain.GatewayResult, error) {
	body, err := json.Marshal(createPaymentBody{
		OrderID:     req.OrderNo,
		Amount:      req.AmountMinor,
		Card:        req.CardDescriptor,
		CallbackURL: req.CallbackURL,
	})
	if err != nil {
		return domain.GatewayResult{}, fmt.Errorf("marshal create payment: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/payments", bytes.NewReader(body))
	if err != nil {
		return domain.GatewayResult{}, fmt.Errorf("build create payment request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	return c.do(httpReq)
}

// GetPaymentInfo возвращает актуальный статус платежа у шлюза.
func (c *HTTPClient) GetPaymentInfo(ctx context.Context, transactionKey, userID string) (domain.GatewayResult, error) {
	endpoint := fmt.Sprintf("%s/payments/%s?userId=%s", c.baseURL, url.PathEscape(transactionKey), url.QueryEscape(userID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.GatewayResult{}, fmt.Errorf("build payment info request: %w", err)
	}

	return c.do(httpReq)
}

func (c *HTTPClient) do(req *http.Request) (domain.GatewayResult, error) {
	resp, err := c.httpc.Do(req)
	if err != nil {
		c.logger.WithError(err).WithField("url", req.URL.Path).Warn("gateway transport error")
		return domain.GatewayResult{}, fmt.Errorf("%w: %v", domain.ErrGatewayTemporary, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return domain.GatewayResult{}, fmt.Errorf("%w: gateway returned %d", domain.ErrGatewayTemporary, resp.StatusCode)
	case resp.StatusCode >= 400:
		return domain.GatewayResult{}, fmt.Errorf("%w: gateway returned %d", domain.ErrPaymentDeclined, resp.StatusCode)
	}

	var parsed gatewayResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return domain.GatewayResult{}, fmt.Errorf("%w: decode gateway response: %v", domain.ErrGatewayTemporary, err)
	}

	result := domain.GatewayResult{
		TransactionKey: parsed.TransactionKey,
		Reason:         parsed.Reason,
	}
	switch strings.ToLower(parsed.Status) {
	case "success", "captured", "approved":
		result.Status = domain.PaymentStatusSuccess
	case "fail", "failed", "declined":
		result.Status = domain.PaymentStatusFail
	case "pending", "processing":
		result.Status = domain.PaymentStatusPending
	default:
		return domain.GatewayResult{}, fmt.Errorf("%w: unknown gateway status %q", domain.ErrGatewayTemporary, parsed.Status)
	}

	return result, nil
}

var _ domain.PaymentGateway = (*HTTPClient)(nil)
