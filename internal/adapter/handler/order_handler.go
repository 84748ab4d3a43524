package handler

import (
	"net/http"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
)

type CreateOrderRequest struct {
	PaymentMethod   string `json:"payment_method" validate:"omitempty,oneof=wallet cod"`
	ShippingAddress string `json:"shipping_address" validate:"required,max=500"`
	PhoneNumber     string `json:"phone_number" validate:"required,max=32"`
}

type UpdateOrderStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

func (h *HTTPHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if !h.decode(w, r, &req) {
		return
	}

	order, err := h.orders.CreateOrder(r.Context(), userID(r), service.CheckoutRequest{
		PaymentMethod:   domain.PaymentMethod(req.PaymentMethod),
		ShippingAddress: req.ShippingAddress,
		PhoneNumber:     req.PhoneNumber,
		IdempotencyKey:  r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, response{Success: true, Message: "order placed successfully", Data: order})
}

func (h *HTTPHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetOrder(r.Context(), r.PathValue("id"), userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, order)
}

func (h *HTTPHandler) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	filter, ok := orderFilter(w, r)
	if !ok {
		return
	}

	orders, err := h.orders.ListUserOrders(r.Context(), userID(r), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeList(w, orders)
}

func (h *HTTPHandler) ListAllOrders(w http.ResponseWriter, r *http.Request) {
	filter, ok := orderFilter(w, r)
	if !ok {
		return
	}

	orders, err := h.orders.ListAllOrders(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeList(w, orders)
}

func (h *HTTPHandler) PayOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.PayWithWallet(r.Context(), r.PathValue("id"), userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Message: "order paid", Data: order})
}

func (h *HTTPHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.CancelOrder(r.Context(), r.PathValue("id"), userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Message: "order cancelled", Data: order})
}

func (h *HTTPHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateOrderStatusRequest
	if !h.decode(w, r, &req) {
		return
	}

	order, err := h.orders.UpdateOrderStatus(r.Context(), r.PathValue("id"), req.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, order)
}

func (h *HTTPHandler) OrderStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.orders.OrderStats(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeList(w, stats)
}

func orderFilter(w http.ResponseWriter, r *http.Request) (domain.OrderFilter, bool) {
	limit, offset, err := page(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, response{Message: err.Error()})
		return domain.OrderFilter{}, false
	}

	filter := domain.OrderFilter{Limit: limit, Offset: offset}
	if s := r.URL.Query().Get("status"); s != "" {
		status, err := domain.ParseOrderStatus(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, response{Message: err.Error()})
			return domain.OrderFilter{}, false
		}
		filter.Status = status
	}
	return filter, true
}
