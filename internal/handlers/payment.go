package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jayjaytrn/freshflow/internal/auth"
)

func (h *Handler) StartPayment(w http.ResponseWriter, r *http.Request) {
	charge, err := h.Orders.StartPayment(r.Context(), auth.PrincipalFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, charge)
}

type paymentStatusResponse struct {
	Order  OrderView       `json:"order"`
	Status string          `json:"status"`
	Raw    json.RawMessage `json:"raw,omitempty"`
}

func (h *Handler) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	order, result, err := h.Orders.RefreshPayment(r.Context(), auth.PrincipalFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, paymentStatusResponse{Order: NewOrderView(order), Status: result.Status, Raw: result.Raw})
}

func (h *Handler) TransactionStatus(w http.ResponseWriter, r *http.Request) {
	result, err := h.Orders.TransactionStatus(r.Context(), auth.PrincipalFrom(r.Context()), chi.URLParam(r, "tid"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Webhook acknowledges every parsed notification. Only store or transport
// failures produce a 5xx so the gateway retries.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		h.Logger.Warnw("failed to read webhook body", "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read body"})
		return
	}

	result, err := h.Bridge.HandleNotification(r.Context(), body)
	if err != nil {
		h.Logger.Errorw("webhook processing failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": internalErrorText})
		return
	}
	writeJSON(w, http.StatusOK, result)
}
