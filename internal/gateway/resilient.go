package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/rfs/internal/domain"
)

var gatewayCalls = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "rfs_gateway_calls_total",
	Help: "Total number of payment gateway calls grouped by operation and result.",
}, []string{"operation", "result"})

// RetryConfig конфигурация retry-политики клиента шлюза.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig возвращает конфигурацию по умолчанию.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      2 * time.Second,
		BackoffFactor: 2.0,
	}
}

// ResilientClient — явный декоратор вокруг транспортного клиента шлюза,
// композиция {retry-политика, circuit breaker}. Повторяются только
// временные ошибки; окончательный отказ шлюза возвращается сразу.
// Открытый breaker или исчерпанные попытки дают ErrPaymentUnavailable.
type ResilientClient struct {
	inner   domain.PaymentGateway
	retry   RetryConfig
	breaker *Breaker
	logger  *log.Entry
}

// NewResilientClient оборачивает клиент шлюза retry-политикой и breaker'ом.
func NewResilientClient(inner domain.PaymentGateway, retry RetryConfig, breaker *Breaker, logger *log.Entry) *ResilientClient {
	if logger == nil {
		logger = log.WithField("component", "gateway-resilient")
	}
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = DefaultRetryConfig().MaxAttempts
	}
	if retry.BackoffFactor < 1 {
		retry.BackoffFactor = DefaultRetryConfig().BackoffFactor
	}

	return &ResilientClient{
		inner:   inner,
		retry:   retry,
		breaker: breaker,
		logger:  logger,
	}
}

// CreatePayment выполняет создание платежа через retry и breaker.
func (c *ResilientClient) CreatePayment(ctx context.Context, req domain.CreatePaymentRequest) (domain.GatewayResult, error) {
	return c.execute(ctx, "create_payment", func(ctx context.Context) (domain.GatewayResult, error) {
		return c.inner.CreatePayment(ctx, req)
	})
}

// GetPaymentInfo выполняет запрос статуса через retry и breaker.
func (c *ResilientClient) GetPaymentInfo(ctx context.Context, transactionKey, userID string) (domain.GatewayResult, error) {
	return c.execute(ctx, "get_payment_info", func(ctx context.Context) (domain.GatewayResult, error) {
		return c.inner.GetPaymentInfo(ctx, transactionKey, userID)
	})
}

func (c *ResilientClient) execute(ctx context.Context, operation string, fn func(ctx context.Context) (domain.GatewayResult, error)) (domain.GatewayResult, error) {
	if err := c.breaker.Allow(); err != nil {
		gatewayCalls.WithLabelValues(operation, "short_circuited").Inc()
		c.logger.WithField("operation", operation).Warn("gateway call short-circuited by open breaker")
		return domain.GatewayResult{}, err
	}

	var lastErr error
	delay := c.retry.InitialDelay

	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			c.breaker.RecordSuccess()
			gatewayCalls.WithLabelValues(operation, "ok").Inc()
			return result, nil
		}

		if errors.Is(err, domain.ErrPaymentDeclined) {
			// Шлюз ответил по существу: для breaker'а это живой сервис.
			c.breaker.RecordSuccess()
			gatewayCalls.WithLabelValues(operation, "declined").Inc()
			return domain.GatewayResult{}, err
		}

		c.breaker.RecordFailure()
		lastErr = err

		if !domain.IsRetryable(err) {
			gatewayCalls.WithLabelValues(operation, "error").Inc()
			return domain.GatewayResult{}, err
		}

		if attempt >= c.retry.MaxAttempts {
			break
		}
		if c.breaker.State() == StateOpen {
			break
		}

		c.logger.WithError(err).WithFields(log.Fields{
			"operation": operation,
			"attempt":   attempt,
			"delay":     delay,
		}).Warn("gateway call failed, retrying")

		select {
		case <-ctx.Done():
			gatewayCalls.WithLabelValues(operation, "canceled").Inc()
			return domain.GatewayResult{}, ctx.Err()
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * c.retry.BackoffFactor)
		if c.retry.MaxDelay > 0 && delay > c.retry.MaxDelay {
			delay = c.retry.MaxDelay
		}
	}

	gatewayCalls.WithLabelValues(operation, "exhausted").Inc()
	return domain.GatewayResult{}, fmt.Errorf("%w: %v", domain.ErrPaymentUnavailable, lastErr)
}

var _ domain.PaymentGateway = (*ResilientClient)(nil)
