package handler

import (
	"net/http"
)

type AddCartItemRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gte=0"`
}

type UpdateCartItemRequest struct {
	Quantity int `json:"quantity" validate:"gte=0"`
}

func (h *HTTPHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	lines, err := h.carts.GetCart(r.Context(), userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeList(w, lines)
}

func (h *HTTPHandler) CartTotal(w http.ResponseWriter, r *http.Request) {
	summary, err := h.carts.CartTotal(r.Context(), userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, summary)
}

func (h *HTTPHandler) ValidateCart(w http.ResponseWriter, r *http.Request) {
	problems, err := h.carts.Validate(r.Context(), userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response{
		Success: true,
		Data:    map[string]any{"valid": len(problems) == 0, "problems": problems},
	})
}

// AddCartItem treats a missing quantity as one unit.
func (h *HTTPHandler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	var req AddCartItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	line, err := h.carts.AddItem(r.Context(), userID(r), req.ProductID, req.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, response{Success: true, Message: "item added to cart", Data: line})
}

func (h *HTTPHandler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	var req UpdateCartItemRequest
	if !h.decode(w, r, &req) {
		return
	}

	line, err := h.carts.UpdateQuantity(r.Context(), userID(r), r.PathValue("product_id"), req.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if line == nil {
		writeJSON(w, http.StatusOK, response{Success: true, Message: "item removed from cart"})
		return
	}
	writeData(w, http.StatusOK, line)
}

func (h *HTTPHandler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.RemoveItem(r.Context(), userID(r), r.PathValue("product_id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Message: "item removed from cart"})
}

func (h *HTTPHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	n, err := h.carts.Clear(r.Context(), userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	count := int(n)
	writeJSON(w, http.StatusOK, response{Success: true, Message: "cart cleared", Count: &count})
}
