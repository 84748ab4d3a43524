package handler

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
)

type CreateProductRequest struct {
	Category string          `json:"category" validate:"max=100"`
	Name     string          `json:"name" validate:"required,min=2,max=255"`
	Code     string          `json:"code" validate:"required,max=64"`
	Price    decimal.Decimal `json:"price"`
	Stock    int             `json:"stock" validate:"gte=0"`
}

type RestockRequest struct {
	Stock int `json:"stock" validate:"gte=0"`
}

func (h *HTTPHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := page(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, response{Message: err.Error()})
		return
	}

	products, err := h.catalog.ListProducts(r.Context(), domain.ProductFilter{
		Category: r.URL.Query().Get("category"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeList(w, products)
}

func (h *HTTPHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.GetProduct(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, p)
}

func (h *HTTPHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if !h.decode(w, r, &req) {
		return
	}

	p, err := h.catalog.CreateProduct(r.Context(), service.NewProduct{
		Category: req.Category,
		Name:     req.Name,
		Code:     req.Code,
		Price:    req.Price,
		Stock:    req.Stock,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, p)
}

func (h *HTTPHandler) RestockProduct(w http.ResponseWriter, r *http.Request) {
	var req RestockRequest
	if !h.decode(w, r, &req) {
		return
	}

	p, err := h.catalog.Restock(r.Context(), r.PathValue("id"), req.Stock)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, p)
}
