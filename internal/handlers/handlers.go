package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jayjaytrn/freshflow/internal/auth"
	"github.com/jayjaytrn/freshflow/internal/db"
	"github.com/jayjaytrn/freshflow/internal/lifecycle"
	"github.com/jayjaytrn/freshflow/internal/payment"
	"github.com/jayjaytrn/freshflow/internal/projector"
	"github.com/jayjaytrn/freshflow/models"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	maxBody           = 1 << 20
	defaultHeartbeat  = 15 * time.Second
	internalErrorText = "internal server error"
)

type Handler struct {
	Database db.Database
	Orders   *lifecycle.Controller
	Bridge   *payment.Bridge
	Live     *projector.Hub
	Tokens   *auth.Manager
	Logger   *zap.SugaredLogger

	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
	// Heartbeat is the idle comment interval on event streams.
	Heartbeat time.Duration
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// StatusFor maps the error taxonomy onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidAmount), errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrIllegalTransition):
		return http.StatusConflict
	case errors.Is(err, models.ErrGateway):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	msg := err.Error()
	switch {
	case status == http.StatusInternalServerError:
		h.Logger.Errorw("request failed", "path", r.URL.Path, "error", err)
		msg = internalErrorText
	case status == http.StatusBadGateway:
		h.Logger.Warnw("gateway failure", "path", r.URL.Path, "error", err)
	default:
		h.Logger.Debugw("request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(v); err != nil {
		return models.Validationf("malformed request body: %v", err)
	}
	return nil
}

func (h *Handler) bcryptCost() int {
	if h.BcryptCost == 0 {
		return bcrypt.DefaultCost
	}
	return h.BcryptCost
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var credentials models.Credentials
	var userData models.User

	if err := json.NewDecoder(r.Body).Decode(&credentials); err != nil {
		h.Logger.Errorw("error reading decoded credentials", "error", err)
		http.Error(w, "malformed credentials", http.StatusBadRequest)
		return
	}

	passwordBytes, err := bcrypt.GenerateFromPassword([]byte(credentials.Password), h.bcryptCost())
	if err != nil {
		h.Logger.Infow("password encryption error", "error", err)
		http.Error(w, "invalid password", http.StatusBadRequest)
		return
	}

	userData.Email = credentials.Email
	userData.Password = string(passwordBytes)
	userData.UUID = uuid.New().String()

	if err = h.Database.PutUniqueUserData(r.Context(), userData); err != nil {
		if errors.Is(err, db.ErrDuplicateUser) {
			h.Logger.Debugw("duplicate email", "error", err)
			http.Error(w, "email already exists", http.StatusConflict)
			return
		}
		h.Logger.Errorw("error when trying to put credentials to database", "error", err)
		http.Error(w, internalErrorText, http.StatusInternalServerError)
		return
	}

	h.issueToken(w, userData.UUID)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var credentials models.Credentials

	if err := json.NewDecoder(r.Body).Decode(&credentials); err != nil {
		h.Logger.Errorw("error reading decoded credentials", "error", err)
		http.Error(w, "malformed credentials", http.StatusBadRequest)
		return
	}

	userData, err := h.Database.GetUserData(r.Context(), credentials.Email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			h.Logger.Debugw("email does not exist", "error", err)
			http.Error(w, "invalid email or password", http.StatusUnauthorized)
			return
		}
		h.Logger.Errorw("failed to load user", "error", err)
		http.Error(w, internalErrorText, http.StatusInternalServerError)
		return
	}

	err = bcrypt.CompareHashAndPassword([]byte(userData.Password), []byte(credentials.Password))
	if err != nil {
		h.Logger.Debugw("invalid email or password", "error", err)
		http.Error(w, "invalid email or password", http.StatusUnauthorized)
		return
	}

	h.issueToken(w, userData.UUID)
}

func (h *Handler) issueToken(w http.ResponseWriter, userID string) {
	token, err := h.Tokens.BuildJWT(userID)
	if err != nil {
		h.Logger.Errorw("error building JWT", "error", err)
		http.Error(w, internalErrorText, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Authorization", "Bearer "+token)
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Database.Ping(r.Context()); err != nil {
		h.Logger.Warnw("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
