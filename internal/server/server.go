package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/rfs/internal/domain"
	"github.com/vladislavdragonenkov/rfs/internal/service/dispatcher"
	"github.com/vladislavdragonenkov/rfs/internal/service/reconcile"
)

const shutdownTimeout = 5 * time.Second

// Server обслуживает webhook платёжного шлюза и админ-ручки.
type Server struct {
	orders   domain.OrderRepository
	payments domain.PaymentRepository
	bus      *dispatcher.Dispatcher
	sweeper  *reconcile.Sweeper
	logger   *log.Entry
	srv      *http.Server
}

// New создаёт HTTP-сервер на addr.
func New(addr string, orders domain.OrderRepository, payments domain.PaymentRepository, bus *dispatcher.Dispatcher, sweeper *reconcile.Sweeper, logger *log.Entry) *Server {
	if logger == nil {
		logger = log.WithField("component", "http-server")
	}

	s := &Server{
		orders:   orders,
		payments: payments,
		bus:      bus,
		sweeper:  sweeper,
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /payments/callback", s.handleCallback)
	mux.HandleFunc("POST /admin/payments/{transactionKey}/recheck", s.handleRecheck)
	mux.HandleFunc("POST /admin/reconcile/pause", s.handleReconcilePause)
	mux.HandleFunc("POST /admin/reconcile/resume", s.handleReconcileResume)
	mux.HandleFunc("GET /admin/reconcile", s.handleReconcileStatus)
	mux.HandleFunc("GET /admin/users/{userID}/orders", s.handleUserOrders)

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Handler возвращает корневой handler (используется в тестах).
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start запускает сервер в отдельной горутине.
func (s *Server) Start() {
	go func() {
		s.logger.Infof("HTTP сервер слушает %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).Error("http server failed")
		}
	}()
}

// Shutdown аккуратно останавливает сервер.
func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.WithError(err).Warn("http shutdown with error")
	}
}

// callbackRequest — webhook от платёжного шлюза.
type callbackRequest struct {
	TransactionKey string `json:"transactionKey"`
	OrderID        string `json:"orderId"`
	Status         string `json:"status"`
	Reason         string `json:"reason"`
}

// handleCallback превращает callback шлюза в то же событие завершения,
// которое синтезирует reconciliation. Валидация минимальная: содержимое
// сверяется с нашей записью платежа, а не с телом запроса.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	var req callbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.TransactionKey == "" {
		http.Error(w, "transactionKey is required", http.StatusBadRequest)
		return
	}

	status := domain.PaymentStatus(req.Status)
	if !status.Terminal() {
		http.Error(w, "status must be terminal", http.StatusBadRequest)
		return
	}

	payment, err := s.payments.Get(req.TransactionKey)
	if err != nil {
		if domain.IsNotFound(err) {
			http.Error(w, "unknown transaction key", http.StatusNotFound)
			return
		}
		s.logger.WithError(err).Error("load payment for callback failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if req.OrderID != "" && req.OrderID != payment.OrderNo {
		http.Error(w, "order mismatch", http.StatusConflict)
		return
	}

	ev := dispatcher.NewEvent(dispatcher.EventPaymentCompleted, payment.OrderNo)
	ev.TransactionKey = payment.TransactionKey
	ev.Success = status == domain.PaymentStatusSuccess
	ev.Reason = req.Reason
	s.bus.Dispatch(ev)

	s.logger.WithFields(log.Fields{
		"transaction_key": payment.TransactionKey,
		"order_no":        payment.OrderNo,
		"status":          status,
	}).Info("payment callback accepted")

	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write([]byte(`{"accepted":true}`))
}

func (s *Server) handleRecheck(w http.ResponseWriter, r *http.Request) {
	transactionKey := r.PathValue("transactionKey")
	if transactionKey == "" {
		http.Error(w, "transaction key is required", http.StatusBadRequest)
		return
	}

	repaired, err := s.sweeper.RecheckOne(r.Context(), transactionKey)
	if err != nil {
		if domain.IsNotFound(err) {
			http.Error(w, "unknown transaction key", http.StatusNotFound)
			return
		}
		s.logger.WithError(err).WithField("transaction_key", transactionKey).Warn("manual recheck failed")
		http.Error(w, "recheck failed", http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"transactionKey": transactionKey,
		"repaired":       repaired,
	})
}

func (s *Server) handleReconcilePause(w http.ResponseWriter, _ *http.Request) {
	s.sweeper.Pause()
	writeJSON(w, http.StatusOK, map[string]any{"enabled": false})
}

func (s *Server) handleReconcileResume(w http.ResponseWriter, _ *http.Request) {
	s.sweeper.Resume()
	writeJSON(w, http.StatusOK, map[string]any{"enabled": true})
}

func (s *Server) handleReconcileStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"enabled": s.sweeper.Enabled()})
}

// orderSummary — позиция списка заказов в админ-ответе.
type orderSummary struct {
	OrderNo       string    `json:"orderNo"`
	Status        string    `json:"status"`
	TotalMinor    int64     `json:"totalMinor"`
	DiscountMinor int64     `json:"discountMinor"`
	CouponNo      string    `json:"couponNo,omitempty"`
	Items         int       `json:"items"`
	CreatedAt     time.Time `json:"createdAt"`
}

// handleUserOrders отдаёт заказы пользователя для поддержки.
// Неизвестный пользователь неотличим от пользователя без заказов.
func (s *Server) handleUserOrders(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")
	if userID == "" {
		http.Error(w, "user id is required", http.StatusBadRequest)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	orders, err := s.orders.ListByUser(userID, limit)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Error("list user orders failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	summaries := make([]orderSummary, 0, len(orders))
	for _, order := range orders {
		summaries = append(summaries, orderSummary{
			OrderNo:       order.OrderNo,
			Status:        string(order.Status),
			TotalMinor:    order.TotalMinor,
			DiscountMinor: order.DiscountMinor,
			CouponNo:      order.CouponNo,
			Items:         len(order.Items),
			CreatedAt:     order.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"userId": userID,
		"orders": summaries,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
