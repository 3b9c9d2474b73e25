package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jayjaytrn/freshflow/internal/auth"
	"github.com/jayjaytrn/freshflow/internal/lifecycle"
	"github.com/jayjaytrn/freshflow/models"
)

// OrderView is an order as clients see it, with read-time summary fields.
type OrderView struct {
	models.Order
	ItemsSummary []string `json:"itemsSummary"`
	StatusLabel  string   `json:"statusLabel"`
}

func NewOrderView(o models.Order) OrderView {
	return OrderView{Order: o, ItemsSummary: o.ItemsSummary(), StatusLabel: o.Status.Label()}
}

func orderViews(orders []models.Order) []OrderView {
	views := make([]OrderView, len(orders))
	for i, o := range orders {
		views[i] = NewOrderView(o)
	}
	return views
}

func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req lifecycle.PlaceRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	order, err := h.Orders.Place(r.Context(), auth.PrincipalFrom(r.Context()), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, NewOrderView(order))
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.Orders.ListMine(r.Context(), auth.PrincipalFrom(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orderViews(orders))
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.Orders.Get(r.Context(), auth.PrincipalFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NewOrderView(order))
}

func (h *Handler) AdminListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.Orders.ListAll(r.Context(), auth.PrincipalFrom(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orderViews(orders))
}

type statusRequest struct {
	Status models.OrderStatus `json:"status"`
}

func (h *Handler) AdminSetStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	order, err := h.Orders.AdvanceStatus(r.Context(), auth.PrincipalFrom(r.Context()), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NewOrderView(order))
}
