package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
	"github.com/rl1809/storefront/internal/metrics"
)

type Services struct {
	Orders  *service.OrderService
	Wallets *service.WalletService
	Carts   *service.CartService
	Catalog *service.CatalogService
}

type HTTPHandler struct {
	orders   *service.OrderService
	wallets  *service.WalletService
	carts    *service.CartService
	catalog  *service.CatalogService
	auth     *Authenticator
	validate *validator.Validate
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

type response struct {
	Success bool              `json:"success"`
	Message string            `json:"message,omitempty"`
	Count   *int              `json:"count,omitempty"`
	Data    any               `json:"data,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
}

func NewHTTPHandler(svc Services, auth *Authenticator, m *metrics.Metrics, logger *zap.Logger) *HTTPHandler {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	return &HTTPHandler{
		orders:   svc.Orders,
		wallets:  svc.Wallets,
		carts:    svc.Carts,
		catalog:  svc.Catalog,
		auth:     auth,
		validate: validate,
		metrics:  m,
		logger:   logger,
	}
}

// Routes builds the API mux. Every route is instrumented under its own name.
func (h *HTTPHandler) Routes() http.Handler {
	mux := http.NewServeMux()

	public := func(pattern, name string, fn http.HandlerFunc) {
		mux.Handle(pattern, h.instrument(name, fn))
	}
	user := func(pattern, name string, fn http.HandlerFunc) {
		mux.Handle(pattern, h.instrument(name, h.auth.Middleware(fn)))
	}
	admin := func(pattern, name string, fn http.HandlerFunc) {
		mux.Handle(pattern, h.instrument(name, h.auth.Middleware(RequireAdmin(fn))))
	}

	public("GET /health", "health", h.HealthCheck)
	mux.Handle("GET /metrics", h.metrics.Handler())

	user("POST /api/orders", "create_order", h.CreateOrder)
	user("GET /api/orders/my-orders", "my_orders", h.ListMyOrders)
	user("GET /api/orders/{id}", "get_order", h.GetOrder)
	user("POST /api/orders/{id}/pay", "pay_order", h.PayOrder)
	user("POST /api/orders/{id}/cancel", "cancel_order", h.CancelOrder)
	admin("GET /api/orders", "list_orders", h.ListAllOrders)
	admin("GET /api/orders/stats", "order_stats", h.OrderStats)
	admin("PUT /api/orders/{id}/status", "update_order_status", h.UpdateOrderStatus)

	user("GET /api/wallet", "get_wallet", h.GetWallet)
	user("POST /api/wallet/deposit", "deposit", h.Deposit)
	user("GET /api/wallet/transactions", "wallet_transactions", h.ListTransactions)
	user("GET /api/wallet/audit", "wallet_audit", h.AuditWallet)

	user("GET /api/cart", "get_cart", h.GetCart)
	user("GET /api/cart/total", "cart_total", h.CartTotal)
	user("GET /api/cart/validate", "validate_cart", h.ValidateCart)
	user("POST /api/cart/items", "add_cart_item", h.AddCartItem)
	user("PUT /api/cart/items/{product_id}", "update_cart_item", h.UpdateCartItem)
	user("DELETE /api/cart/items/{product_id}", "remove_cart_item", h.RemoveCartItem)
	user("DELETE /api/cart", "clear_cart", h.ClearCart)

	public("GET /api/products", "list_products", h.ListProducts)
	public("GET /api/products/{id}", "get_product", h.GetProduct)
	admin("POST /api/products", "create_product", h.CreateProduct)
	admin("PUT /api/products/{id}/stock", "restock_product", h.RestockProduct)

	return mux
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decode reads a JSON body into dst and runs struct validation on it. It
// writes the 400 response itself and reports false when the request is bad.
func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, response{Message: "invalid request body"})
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			writeJSON(w, http.StatusBadRequest, response{
				Message: "missing required fields",
				Errors:  formatValidationError(verrs),
			})
			return false
		}
		writeJSON(w, http.StatusBadRequest, response{Message: err.Error()})
		return false
	}
	return true
}

func formatValidationError(verrs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())

		switch fe.Tag() {
		case "required":
			out[field] = fmt.Sprintf("%s is required", field)
		case "min":
			out[field] = fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
		case "max":
			out[field] = fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		case "gt":
			out[field] = fmt.Sprintf("%s must be greater than %s", field, fe.Param())
		case "gte":
			out[field] = fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
		case "oneof":
			out[field] = fmt.Sprintf("%s must be one of: %s", field, fe.Param())
		default:
			out[field] = fmt.Sprintf("%s is invalid", field)
		}
	}
	return out
}

// writeError maps domain errors onto HTTP statuses. Anything unrecognised is
// a 500 and gets logged.
func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := errorStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	writeJSON(w, status, response{Message: message})
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrRetryable), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "transaction conflict, please retry"

	case errors.Is(err, domain.ErrEmptyCart),
		errors.Is(err, domain.ErrInvalidStatus),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrInvalidPrice),
		errors.Is(err, domain.ErrInvalidPaymentMethod),
		errors.Is(err, domain.ErrInvalidTransactionType):
		return http.StatusBadRequest, err.Error()

	case errors.Is(err, domain.ErrInsufficientFunds):
		return http.StatusPaymentRequired, err.Error()

	case errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrWalletNotFound),
		errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, domain.ErrCartItemNotFound):
		return http.StatusNotFound, err.Error()

	case errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrDuplicateProduct),
		errors.Is(err, domain.ErrWalletExists):
		return http.StatusConflict, err.Error()

	case errors.Is(err, service.ErrDuplicateRequest):
		return http.StatusConflict, "duplicate request"
	}
	return http.StatusInternalServerError, "internal error"
}

// page reads limit and offset query parameters; absent values are zero.
func page(r *http.Request) (limit, offset int, err error) {
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			return 0, 0, fmt.Errorf("invalid limit %q", v)
		}
	}
	if v := q.Get("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil || offset < 0 {
			return 0, 0, fmt.Errorf("invalid offset %q", v)
		}
	}
	return limit, offset, nil
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, response{Success: true, Data: data})
}

func writeList[T any](w http.ResponseWriter, items []T) {
	if items == nil {
		items = []T{}
	}
	n := len(items)
	writeJSON(w, http.StatusOK, response{Success: true, Count: &n, Data: items})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (h *HTTPHandler) instrument(name string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		h.metrics.Requests.WithLabelValues(name, strconv.Itoa(rec.status)).Inc()
		h.metrics.LatencyMS.WithLabelValues(name).Observe(float64(time.Since(start).Microseconds()) / 1000)
	})
}
