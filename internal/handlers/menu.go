package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jayjaytrn/freshflow/models"
	"github.com/shopspring/decimal"
)

func (h *Handler) Menu(w http.ResponseWriter, r *http.Request) {
	items, err := h.Database.ListMenu(r.Context(), true)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

type menuItemRequest struct {
	Name        string          `json:"name"`
	Ingredients []string        `json:"ingredients"`
	Price       decimal.Decimal `json:"price"`
	Active      *bool           `json:"active"`
	Gradient    string          `json:"gradient"`
}

func (h *Handler) AdminCreateMenuItem(w http.ResponseWriter, r *http.Request) {
	var req menuItemRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	now := time.Now().UTC()
	item := models.MenuItem{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Ingredients: req.Ingredients,
		Price:       req.Price,
		Active:      req.Active == nil || *req.Active,
		Gradient:    req.Gradient,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := item.Normalize(); err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.Database.PutMenuItem(r.Context(), item); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.Logger.Infow("menu item created", "menu_id", item.ID, "name", item.Name)
	writeJSON(w, http.StatusCreated, item)
}

func (h *Handler) AdminPatchMenuItem(w http.ResponseWriter, r *http.Request) {
	var patch models.MenuItemPatch
	if err := decodeJSON(r, &patch); err != nil {
		h.writeError(w, r, err)
		return
	}

	item, err := h.Database.GetMenuItem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := item.Apply(patch); err != nil {
		h.writeError(w, r, err)
		return
	}
	item.UpdatedAt = time.Now().UTC()

	if err := h.Database.PutMenuItem(r.Context(), item); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}
