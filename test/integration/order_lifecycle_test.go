package integration

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/rfs/internal/domain"
	"github.com/vladislavdragonenkov/rfs/internal/server"
	"github.com/vladislavdragonenkov/rfs/internal/service/counter"
	"github.com/vladislavdragonenkov/rfs/internal/service/dispatcher"
	"github.com/vladislavdragonenkov/rfs/internal/service/profile"
	"github.com/vladislavdragonenkov/rfs/internal/service/reconcile"
	"github.com/vladislavdragonenkov/rfs/internal/service/saga"
	"github.com/vladislavdragonenkov/rfs/internal/storage/memory"
)

// configurableGateway позволяет задать ответы шлюза до запуска саги.
type configurableGateway struct {
	createResult domain.GatewayResult
	createErr    error
	infoResult   domain.GatewayResult
	infoErr      error
}

func (g *configurableGateway) CreatePayment(ctx context.Context, req domain.CreatePaymentRequest) (domain.GatewayResult, error) {
	return g.createResult, g.createErr
}

func (g *configurableGateway) GetPaymentInfo(ctx context.Context, transactionKey, userID string) (domain.GatewayResult, error) {
	return g.infoResult, g.infoErr
}

// OrderLifecycleTestSuite прогоняет полный жизненный цикл заказа через
// диспетчер, webhook и reconciliation.
type OrderLifecycleTestSuite struct {
	suite.Suite
	orders       domain.OrderRepository
	payments     domain.PaymentRepository
	counters     *counter.Controller
	gateway      *configurableGateway
	bus          *dispatcher.Dispatcher
	sweeper      *reconcile.Sweeper
	orchestrator *saga.Orchestrator
	handler      http.Handler
}

func (s *OrderLifecycleTestSuite) SetupTest() {
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel) // Уменьшаем шум в тестах
	logger := baseLogger.WithField("component", "integration-test")

	directory := profile.NewDirectory()
	directory.AddUser(domain.User{ID: "user-1", Name: "Иван", BalanceMinor: 100000})
	directory.AddCard(domain.Card{UserID: "user-1", Descriptor: "visa **** 4242"})

	s.orders = memory.NewOrderRepository()
	s.payments = memory.NewPaymentRepository()
	s.counters = counter.NewController(memory.NewCounterRepository(), logger)
	s.gateway = &configurableGateway{}
	s.bus = dispatcher.New(
		dispatcher.WithLogger(logger),
		dispatcher.WithRetryBaseDelay(time.Millisecond),
	)

	s.orchestrator = saga.NewOrchestratorWithoutMetrics(saga.Deps{
		Orders:      s.orders,
		Payments:    s.payments,
		Coupons:     memory.NewCouponRepository(),
		Counters:    s.counters,
		Users:       directory,
		Cards:       directory,
		Gateway:     s.gateway,
		Outbox:      memory.NewOutboxRepository(),
		Bus:         s.bus,
		CallbackURL: "http://localhost:8080/payments/callback",
	}, logger)
	s.Require().NoError(s.orchestrator.Register(s.bus))

	s.sweeper = reconcile.NewSweeper(s.payments, s.gateway, s.bus, reconcile.WithLogger(logger))
	s.handler = server.New(":0", s.orders, s.payments, s.bus, s.sweeper, logger).Handler()

	s.seedStock("sku-1", 10)
	s.bus.Start(context.Background())
}

func (s *OrderLifecycleTestSuite) TearDownTest() {
	s.bus.Stop()
}

func (s *OrderLifecycleTestSuite) seedStock(productID string, qty int64) {
	_, err := s.counters.Apply(domain.CounterKindStock, productID, qty, counter.StrategyRowLock)
	s.Require().NoError(err)
}

func (s *OrderLifecycleTestSuite) stock(productID string) int64 {
	value, err := s.counters.Value(domain.CounterKindStock, productID)
	s.Require().NoError(err)
	return value
}

func (s *OrderLifecycleTestSuite) submit(qty int32) domain.Order {
	order, err := s.orchestrator.Submit("user-1",
		[]domain.OrderItem{{ProductID: "sku-1", Qty: qty, PriceMinor: 1000}}, "", 0)
	s.Require().NoError(err)
	return order
}

func (s *OrderLifecycleTestSuite) waitStatus(orderNo string, status domain.OrderStatus) {
	s.Require().Eventually(func() bool {
		current, err := s.orders.Get(orderNo)
		return err == nil && current.Status == status
	}, 3*time.Second, 10*time.Millisecond, "order must reach %s", status)
}

func (s *OrderLifecycleTestSuite) waitPendingPayment(transactionKey string) {
	s.Require().Eventually(func() bool {
		payment, err := s.payments.Get(transactionKey)
		return err == nil && payment.Status == domain.PaymentStatusPending
	}, 3*time.Second, 10*time.Millisecond, "payment must be recorded as pending")
}

// TestImmediateSuccess: шлюз подтверждает платёж синхронно.
func (s *OrderLifecycleTestSuite) TestImmediateSuccess() {
	s.gateway.createResult = domain.GatewayResult{
		TransactionKey: "tx-1",
		Status:         domain.PaymentStatusSuccess,
	}

	order := s.submit(2)
	s.waitStatus(order.OrderNo, domain.OrderStatusFulfilled)
	s.Equal(int64(8), s.stock("sku-1"))

	payment, err := s.payments.Get("tx-1")
	s.Require().NoError(err)
	s.Equal(domain.PaymentStatusSuccess, payment.Status)
}

// TestCallbackCompletesPendingPayment: итог приносит webhook шлюза.
func (s *OrderLifecycleTestSuite) TestCallbackCompletesPendingPayment() {
	s.gateway.createResult = domain.GatewayResult{
		TransactionKey: "tx-1",
		Status:         domain.PaymentStatusPending,
	}

	order := s.submit(1)
	s.waitPendingPayment("tx-1")

	req := httptest.NewRequest(http.MethodPost, "/payments/callback",
		strings.NewReader(`{"transactionKey":"tx-1","status":"success"}`))
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	s.Require().Equal(http.StatusAccepted, rec.Code, rec.Body.String())

	s.waitStatus(order.OrderNo, domain.OrderStatusFulfilled)
	s.Equal(int64(9), s.stock("sku-1"))
}

// TestReconciliationRepairsLostCallback: callback потерян, итог находит sweep.
func (s *OrderLifecycleTestSuite) TestReconciliationRepairsLostCallback() {
	s.gateway.createResult = domain.GatewayResult{
		TransactionKey: "tx-1",
		Status:         domain.PaymentStatusPending,
	}
	s.gateway.infoResult = domain.GatewayResult{
		TransactionKey: "tx-1",
		Status:         domain.PaymentStatusSuccess,
	}

	order := s.submit(1)
	s.waitPendingPayment("tx-1")

	repaired, err := s.sweeper.ProcessOnce(context.Background())
	s.Require().NoError(err)
	s.Equal(1, repaired)

	s.waitStatus(order.OrderNo, domain.OrderStatusFulfilled)
	s.Equal(int64(9), s.stock("sku-1"))
}

// TestDeclinedPaymentFailsOrder: окончательный отказ шлюза.
func (s *OrderLifecycleTestSuite) TestDeclinedPaymentFailsOrder() {
	s.gateway.createErr = domain.ErrPaymentDeclined

	order := s.submit(1)
	s.waitStatus(order.OrderNo, domain.OrderStatusPaymentFailed)
	s.Equal(int64(10), s.stock("sku-1"), "declined order must not touch stock")
}

func TestOrderLifecycleTestSuite(t *testing.T) {
	suite.Run(t, new(OrderLifecycleTestSuite))
}
