package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rl1809/fitfast/internal/core/domain"
	"github.com/rl1809/fitfast/internal/core/service"
)

type HTTPHandler struct {
	orderService *service.OrderService
	logger       *zap.Logger
	gatherer     prometheus.Gatherer
}

type PurchaseHTTPRequest struct {
	RequestID string `json:"request_id"`
	UserID    string `json:"user_id"`
	ItemID    string `json:"item_id"`
	Color     string `json:"color"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
}

type CheckoutHTTPRequest struct {
	RequestID string             `json:"request_id"`
	UserID    string             `json:"user_id"`
	Lines     []domain.OrderLine `json:"lines"`
}

type SetStockHTTPRequest struct {
	Quantity int `json:"quantity"`
}

type HTTPResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Orders  []domain.Order `json:"orders,omitempty"`
}

type StockHTTPResponse struct {
	ItemID      string                 `json:"item_id"`
	Variants    []domain.Variant       `json:"variants"`
	Aggregation domain.AggregationView `json:"aggregation"`
}

type VariantStockHTTPResponse struct {
	ItemID string `json:"item_id"`
	Color  string `json:"color"`
	Size   string `json:"size"`
	Stock  int    `json:"stock"`
}

type ReconcileHTTPResponse struct {
	ItemID      string                 `json:"item_id"`
	Consistent  bool                   `json:"consistent"`
	Repaired    bool                   `json:"repaired"`
	Aggregation domain.AggregationView `json:"aggregation"`
}

func NewHTTPHandler(orderService *service.OrderService, logger *zap.Logger, gatherer prometheus.Gatherer) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &HTTPHandler{orderService: orderService, logger: logger, gatherer: gatherer}
}

// Routes builds the router for every HTTP endpoint.
func (h *HTTPHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", h.HealthCheck)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Post("/purchase", h.Purchase)
		r.Post("/checkout", h.Checkout)
		r.Post("/orders/{orderID}/cancel", h.CancelOrder)
		r.Post("/orders/{orderID}/return", h.ReturnOrder)

		r.Route("/items/{itemID}/stock", func(r chi.Router) {
			r.Get("/", h.GetItemStock)
			r.Post("/reconcile", h.Reconcile)
			r.Get("/{color}/{size}", h.GetVariantStock)
			r.Put("/{color}/{size}", h.SetVariantStock)
		})
	})
	return r
}

func (h *HTTPHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	var req PurchaseHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, HTTPResponse{Message: "invalid request body"})
		return
	}

	if req.RequestID == "" || req.UserID == "" || req.ItemID == "" || req.Quantity <= 0 {
		writeJSON(w, http.StatusBadRequest, HTTPResponse{Message: "missing required fields"})
		return
	}

	order, err := h.orderService.Purchase(r.Context(), req.RequestID, req.UserID, req.ItemID, req.Color, req.Size, req.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, HTTPResponse{
		Success: true,
		Message: "order placed successfully",
		Orders:  []domain.Order{*order},
	})
}

func (h *HTTPHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, HTTPResponse{Message: "invalid request body"})
		return
	}
	if req.RequestID == "" || req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, HTTPResponse{Message: "missing required fields"})
		return
	}

	orders, err := h.orderService.Checkout(r.Context(), req.RequestID, req.UserID, req.Lines)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, HTTPResponse{
		Success: true,
		Message: "order placed successfully",
		Orders:  orders,
	})
}

func (h *HTTPHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.orderService.Cancel(r.Context(), chi.URLParam(r, "orderID")); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, HTTPResponse{Success: true, Message: "order cancelled"})
}

func (h *HTTPHandler) ReturnOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.orderService.Return(r.Context(), chi.URLParam(r, "orderID")); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, HTTPResponse{Success: true, Message: "order returned"})
}

func (h *HTTPHandler) GetItemStock(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")
	l := h.orderService.Ledger(itemID)

	variants, err := l.Variants(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	view, err := l.Aggregation(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, StockHTTPResponse{ItemID: itemID, Variants: variants, Aggregation: view})
}

func (h *HTTPHandler) GetVariantStock(w http.ResponseWriter, r *http.Request) {
	itemID, color, size := chi.URLParam(r, "itemID"), chi.URLParam(r, "color"), chi.URLParam(r, "size")

	stock, err := h.orderService.Ledger(itemID).GetStock(r.Context(), color, size)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, VariantStockHTTPResponse{ItemID: itemID, Color: color, Size: size, Stock: stock})
}

func (h *HTTPHandler) SetVariantStock(w http.ResponseWriter, r *http.Request) {
	itemID, color, size := chi.URLParam(r, "itemID"), chi.URLParam(r, "color"), chi.URLParam(r, "size")

	var req SetStockHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, HTTPResponse{Message: "invalid request body"})
		return
	}

	l := h.orderService.Ledger(itemID)
	if err := l.SetStock(r.Context(), color, size, req.Quantity); err != nil {
		h.writeError(w, r, err)
		return
	}
	stock, err := l.GetStock(r.Context(), color, size)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.logger.Info("stock set",
		zap.String("item_id", itemID),
		zap.String("color", color),
		zap.String("size", size),
		zap.Int("quantity", stock))
	writeJSON(w, http.StatusOK, VariantStockHTTPResponse{ItemID: itemID, Color: color, Size: size, Stock: stock})
}

// Reconcile checks the stored roll-ups against the variant table. With
// ?repair=true a drifted aggregation is recomputed.
func (h *HTTPHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")
	l := h.orderService.Ledger(itemID)
	resp := ReconcileHTTPResponse{ItemID: itemID, Consistent: true}

	err := l.CheckIntegrity(r.Context())
	switch {
	case errors.Is(err, domain.ErrAggregationDrift):
		resp.Consistent = false
	case err != nil:
		h.writeError(w, r, err)
		return
	}

	if !resp.Consistent && r.URL.Query().Get("repair") == "true" {
		if _, err := l.RecomputeAggregation(r.Context()); err != nil {
			h.writeError(w, r, err)
			return
		}
		resp.Repaired = true
	}

	view, err := l.Aggregation(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp.Aggregation = view
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
	}
	writeJSON(w, status, HTTPResponse{Message: message})
}

func statusFor(err error) (int, string) {
	var oos *service.OutOfStockError
	switch {
	case errors.As(err, &oos):
		return http.StatusGone, oos.Error()
	case errors.Is(err, service.ErrInsufficientStock):
		return http.StatusGone, "sold out"
	case errors.Is(err, service.ErrDuplicateRequest):
		return http.StatusConflict, "duplicate request"
	case errors.Is(err, service.ErrOrderNotEligible):
		return http.StatusConflict, err.Error()
	case errors.Is(err, domain.ErrInvalidVariantKey),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, service.ErrEmptyCart):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrItemNotFound), errors.Is(err, domain.ErrOrderNotFound):
		return http.StatusNotFound, "not found"
	}
	return http.StatusInternalServerError, "internal error"
}

func (h *HTTPHandler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
