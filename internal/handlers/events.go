package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jayjaytrn/freshflow/internal/auth"
	"github.com/jayjaytrn/freshflow/models"
)

// OrderEvents streams order snapshots as server-sent events until the client
// goes away. Each event id is the order version.
func (h *Handler) OrderEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if _, err := h.Orders.Get(ctx, auth.PrincipalFrom(ctx), id); err != nil {
		h.writeError(w, r, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, r, fmt.Errorf("streaming unsupported by %T", w))
		return
	}

	updates := make(chan models.Order, 1)
	failures := make(chan error, 1)
	sub, err := h.Live.Subscribe(ctx, id,
		func(o models.Order) {
			select {
			case updates <- o:
			case <-ctx.Done():
			}
		},
		func(err error) {
			select {
			case failures <- err:
			default:
			}
		})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer sub.Unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := h.Heartbeat
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case err := <-failures:
			data, _ := json.Marshal(map[string]string{"error": err.Error()})
			fmt.Fprintf(w, "event: error\ndata: %s\n\n", data)
			flusher.Flush()
			return
		case o := <-updates:
			data, err := json.Marshal(NewOrderView(o))
			if err != nil {
				h.Logger.Errorw("failed to encode order snapshot", "order_id", o.ID, "error", err)
				return
			}
			fmt.Fprintf(w, "id: %d\nevent: order\ndata: %s\n\n", o.Version, data)
			flusher.Flush()
		}
	}
}
