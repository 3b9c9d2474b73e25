package handlers

import (
	"bufio"
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/jayjaytrn/freshflow/internal/auth"
	"github.com/jayjaytrn/freshflow/internal/cart"
	"github.com/jayjaytrn/freshflow/internal/db"
	"github.com/jayjaytrn/freshflow/internal/lifecycle"
	"github.com/jayjaytrn/freshflow/internal/payment"
	"github.com/jayjaytrn/freshflow/internal/projector"
	"github.com/jayjaytrn/freshflow/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func newSQLHandler(t *testing.T) (*Handler, sqlmock.Sqlmock) {
	t.Helper()
	mockdb, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { mockdb.Close() })

	return &Handler{
		Database:   &db.Manager{Db: mockdb},
		Tokens:     auth.NewManager("test-secret", time.Hour),
		Logger:     zap.NewNop().Sugar(),
		BcryptCost: bcrypt.MinCost,
	}, mock
}

func credentialsBody(t *testing.T, email, password string) *bytes.Buffer {
	t.Helper()
	body, err := json.Marshal(models.Credentials{Email: email, Password: password})
	if err != nil {
		t.Fatalf("error marshalling credentials: %v", err)
	}
	return bytes.NewBuffer(body)
}

func TestRegister(t *testing.T) {
	handler, mock := newSQLHandler(t)

	mock.ExpectExec(`INSERT INTO users \(uuid, email, password\)`).
		WithArgs(sqlmock.AnyArg(), "newuser@example.com", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	req := httptest.NewRequest(http.MethodPost, "/api/user/register", credentialsBody(t, "newuser@example.com", "password123"))
	rr := httptest.NewRecorder()
	handler.Register(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status code %d, got %d", http.StatusOK, rr.Code)
	}

	authHeader := rr.Header().Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		t.Fatalf("expected token in Bearer format, got: %q", authHeader)
	}

	userID, err := handler.Tokens.ValidateJWT(strings.TrimPrefix(authHeader, "Bearer "))
	require.NoError(t, err)
	assert.NotEmpty(t, userID)

	if err = mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("not all mock expectations were met: %v", err)
	}
}

func TestRegisterStoreErrors(t *testing.T) {
	handler, mock := newSQLHandler(t)

	mock.ExpectExec(`INSERT INTO users`).
		WillReturnError(fmt.Errorf("insert: %w", errors.New("boom")))

	req := httptest.NewRequest(http.MethodPost, "/api/user/register", credentialsBody(t, "x@example.com", "password123"))
	rr := httptest.NewRecorder()
	handler.Register(rr, req)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())

	store := db.NewMemoryStore()
	require.NoError(t, store.PutUniqueUserData(context.Background(), models.User{UUID: "u1", Email: "x@example.com"}))
	handler.Database = store

	req = httptest.NewRequest(http.MethodPost, "/api/user/register", credentialsBody(t, "x@example.com", "password123"))
	rr = httptest.NewRecorder()
	handler.Register(rr, req)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestLogin(t *testing.T) {
	handler, mock := newSQLHandler(t)
	userQuery := `SELECT u\.uuid, u\.email, u\.password, a\.uuid IS NOT NULL`

	t.Run("SuccessLogin", func(t *testing.T) {
		hashedPassword, _ := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)

		mock.ExpectQuery(userQuery).
			WithArgs("existing@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"uuid", "email", "password", "admin"}).
				AddRow("user-uuid", "existing@example.com", string(hashedPassword), false))

		req := httptest.NewRequest(http.MethodPost, "/api/user/login", credentialsBody(t, "existing@example.com", "password123"))
		rr := httptest.NewRecorder()
		handler.Login(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status code %d, got %d", http.StatusOK, rr.Code)
		}
		userID, err := handler.Tokens.ValidateJWT(strings.TrimPrefix(rr.Header().Get("Authorization"), "Bearer "))
		require.NoError(t, err)
		assert.Equal(t, "user-uuid", userID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("EmailDoesNotExist", func(t *testing.T) {
		mock.ExpectQuery(userQuery).
			WithArgs("nobody@example.com").
			WillReturnError(sql.ErrNoRows)

		req := httptest.NewRequest(http.MethodPost, "/api/user/login", credentialsBody(t, "nobody@example.com", "password123"))
		rr := httptest.NewRecorder()
		handler.Login(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Empty(t, rr.Header().Get("Authorization"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("WrongPassword", func(t *testing.T) {
		hashedPassword, _ := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
		mock.ExpectQuery(userQuery).
			WithArgs("existing@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"uuid", "email", "password", "admin"}).
				AddRow("user-uuid", "existing@example.com", string(hashedPassword), false))

		req := httptest.NewRequest(http.MethodPost, "/api/user/login", credentialsBody(t, "existing@example.com", "wrong-password"))
		rr := httptest.NewRecorder()
		handler.Login(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("StoreFailure", func(t *testing.T) {
		mock.ExpectQuery(userQuery).
			WithArgs("existing@example.com").
			WillReturnError(errors.New("connection reset"))

		req := httptest.NewRequest(http.MethodPost, "/api/user/login", credentialsBody(t, "existing@example.com", "password123"))
		rr := httptest.NewRecorder()
		handler.Login(rr, req)

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.NotContains(t, rr.Body.String(), "connection reset")
	})
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{models.Validationf("bad"), http.StatusBadRequest},
		{fmt.Errorf("charge: %w", models.ErrInvalidAmount), http.StatusBadRequest},
		{models.ErrAuth, http.StatusUnauthorized},
		{models.ErrForbidden, http.StatusForbidden},
		{fmt.Errorf("%w: order o1", models.ErrNotFound), http.StatusNotFound},
		{models.ErrIllegalTransition, http.StatusConflict},
		{&models.GatewayError{Op: "poll_status", StatusCode: 404}, http.StatusBadGateway},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.err))
		})
	}
}

type memoryFixture struct {
	h      *Handler
	store  *db.MemoryStore
	orders db.Database
}

var (
	alice = models.Principal{UserID: "alice"}
	bob   = models.Principal{UserID: "bob"}
	root  = models.Principal{UserID: "root", Admin: true}
)

func newMemoryFixture(t *testing.T) memoryFixture {
	t.Helper()
	logger := zap.NewNop().Sugar()
	store := db.NewMemoryStore()
	hub := projector.NewHub(store, logger)
	t.Cleanup(hub.Close)

	database := db.NewNotifying(store, hub)
	client := payment.NewClient("http://127.0.0.1:0", "", time.Second, 0, logger)
	bridge := payment.NewBridge(client, database, logger)

	return memoryFixture{
		h: &Handler{
			Database:  database,
			Orders:    lifecycle.NewController(database, bridge, logger),
			Bridge:    bridge,
			Live:      hub,
			Logger:    logger,
			Heartbeat: 20 * time.Millisecond,
		},
		store:  store,
		orders: database,
	}
}

// router mounts the handlers with p as the caller of every request.
func (f memoryFixture) router(p models.Principal) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
		})
	})
	r.Post("/api/orders", f.h.PlaceOrder)
	r.Get("/api/orders/{id}", f.h.GetOrder)
	r.Get("/api/orders/{id}/events", f.h.OrderEvents)
	r.Patch("/api/admin/orders/{id}/status", f.h.AdminSetStatus)
	r.Post("/api/admin/menu", f.h.AdminCreateMenuItem)
	r.Patch("/api/admin/menu/{id}", f.h.AdminPatchMenuItem)
	r.Post("/api/pagarme/webhook", f.h.Webhook)
	return r
}

func (f memoryFixture) serve(p models.Principal, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rr := httptest.NewRecorder()
	f.router(p).ServeHTTP(rr, req)
	return rr
}

func (f memoryFixture) place(t *testing.T, owner models.Principal) models.Order {
	t.Helper()
	o, err := f.h.Orders.Place(context.Background(), owner, lifecycle.PlaceRequest{
		Lines: []cart.Candidate{{
			Name:        "Custom",
			Ingredients: []string{"Apple", "Kale"},
			UnitPrice:   decimal.RequireFromString("18.90"),
			Quantity:    2,
		}},
		DeliveryMode:  models.DeliveryPickup,
		PaymentMethod: models.PaymentMethodPix,
	})
	require.NoError(t, err)
	return o
}

func TestPlaceOrder(t *testing.T) {
	f := newMemoryFixture(t)

	body := `{"lines":[{"name":"Custom","ingredients":["Apple","Kale"],"unitPrice":"18.90","quantity":2}],"deliveryMode":"pickup","paymentMethod":"pix"}`
	rr := f.serve(alice, http.MethodPost, "/api/orders", body)
	require.Equal(t, http.StatusCreated, rr.Code)

	var view OrderView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
	assert.Equal(t, "alice", view.OwnerID)
	assert.Equal(t, models.StatusPending, view.Status)
	assert.True(t, decimal.RequireFromString("37.80").Equal(view.TotalPrice))
	assert.Equal(t, []string{"Custom"}, view.ItemsSummary)
	assert.NotEmpty(t, view.StatusLabel)

	t.Run("express without address", func(t *testing.T) {
		rr := f.serve(alice, http.MethodPost, "/api/orders", strings.Replace(body, "pickup", "express", 1))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("foreign owner", func(t *testing.T) {
		rr := f.serve(alice, http.MethodPost, "/api/orders", `{"ownerId":"bob",`+body[1:])
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		rr := f.serve(alice, http.MethodPost, "/api/orders", `{"lines":`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), `"error"`)
	})
}

func TestGetOrderVisibility(t *testing.T) {
	f := newMemoryFixture(t)
	o := f.place(t, alice)

	assert.Equal(t, http.StatusOK, f.serve(alice, http.MethodGet, "/api/orders/"+o.ID, "").Code)
	assert.Equal(t, http.StatusOK, f.serve(root, http.MethodGet, "/api/orders/"+o.ID, "").Code)
	assert.Equal(t, http.StatusForbidden, f.serve(bob, http.MethodGet, "/api/orders/"+o.ID, "").Code)
	assert.Equal(t, http.StatusNotFound, f.serve(alice, http.MethodGet, "/api/orders/missing", "").Code)
}

func TestAdminSetStatus(t *testing.T) {
	f := newMemoryFixture(t)
	o := f.place(t, alice)
	path := "/api/admin/orders/" + o.ID + "/status"

	assert.Equal(t, http.StatusForbidden, f.serve(alice, http.MethodPatch, path, `{"status":"preparing"}`).Code)

	rr := f.serve(root, http.MethodPatch, path, `{"status":"delivered"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"delivered"`)

	assert.Equal(t, http.StatusConflict, f.serve(root, http.MethodPatch, path, `{"status":"pending"}`).Code)
	assert.Equal(t, http.StatusOK, f.serve(root, http.MethodPatch, path, `{"status":"delivered"}`).Code)
}

func TestWebhookAcknowledges(t *testing.T) {
	f := newMemoryFixture(t)
	o := f.place(t, alice)

	rr := f.serve(models.Principal{}, http.MethodPost, "/api/pagarme/webhook", `not json`)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"ok":true,"ignored":true}`, rr.Body.String())

	rr = f.serve(models.Principal{}, http.MethodPost, "/api/pagarme/webhook",
		`{"object":"transaction","id":"tx9","status":"paid","metadata":{"orderId":"unknown"}}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"ok":true}`, rr.Body.String())

	rr = f.serve(models.Principal{}, http.MethodPost, "/api/pagarme/webhook",
		fmt.Sprintf(`{"type":"order.paid","data":{"id":"tx1","status":"paid","metadata":{"orderId":%q}}}`, o.ID))
	assert.Equal(t, http.StatusOK, rr.Code)

	got, err := f.store.GetByID(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPreparing, got.Status)
	assert.Equal(t, "tx1", got.ProviderTransactionID)
}

func TestMenuAdmin(t *testing.T) {
	f := newMemoryFixture(t)

	rr := f.serve(root, http.MethodPost, "/api/admin/menu", `{"name":"  ","ingredients":["Kale"],"price":"9.90"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.serve(root, http.MethodPost, "/api/admin/menu", `{"name":"Green","ingredients":["Kale"],"price":"0"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.serve(root, http.MethodPost, "/api/admin/menu", `{"name":"Green","ingredients":["Kale","Apple"],"price":"9.90","active":false}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	var item models.MenuItem
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &item))
	assert.False(t, item.Active)
	assert.Equal(t, models.DefaultGradient, item.Gradient)

	rr = f.serve(root, http.MethodPatch, "/api/admin/menu/"+item.ID, `{"name":"Greener","active":true}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	f.h.Menu(rr, httptest.NewRequest(http.MethodGet, "/api/menu", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var menu []models.MenuItem
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &menu))
	require.Len(t, menu, 1)
	assert.Equal(t, "Greener", menu[0].Name)

	assert.Equal(t, http.StatusNotFound, f.serve(root, http.MethodPatch, "/api/admin/menu/missing", `{"active":true}`).Code)
}

type sseEvent struct {
	id    string
	event string
	data  string
}

// readEvent returns the next non-comment event from the stream.
func readEvent(t *testing.T, sc *bufio.Scanner) sseEvent {
	t.Helper()
	var ev sseEvent
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if ev.event != "" {
				return ev
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "id: "):
			ev.id = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "event: "):
			ev.event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.data = strings.TrimPrefix(line, "data: ")
		}
	}
	t.Fatalf("stream ended: %v", sc.Err())
	return ev
}

func TestOrderEvents(t *testing.T) {
	f := newMemoryFixture(t)
	o := f.place(t, alice)

	srv := httptest.NewServer(f.router(alice))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/orders/"+o.ID+"/events", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	sc := bufio.NewScanner(resp.Body)
	first := readEvent(t, sc)
	assert.Equal(t, "1", first.id)
	assert.Equal(t, "order", first.event)
	var view OrderView
	require.NoError(t, json.Unmarshal([]byte(first.data), &view))
	assert.Equal(t, models.StatusPending, view.Status)

	_, _, err = f.orders.ApplyStatus(context.Background(), o.ID, models.StatusPreparing)
	require.NoError(t, err)

	next := readEvent(t, sc)
	assert.Equal(t, "2", next.id)
	require.NoError(t, json.Unmarshal([]byte(next.data), &view))
	assert.Equal(t, models.StatusPreparing, view.Status)

	f.h.Live.Close()
	closed := readEvent(t, sc)
	assert.Equal(t, "error", closed.event)
	assert.Contains(t, closed.data, projector.ErrClosed.Error())
}

func TestOrderEventsForbidden(t *testing.T) {
	f := newMemoryFixture(t)
	o := f.place(t, alice)

	rr := f.serve(bob, http.MethodGet, "/api/orders/"+o.ID+"/events", "")
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, 0, f.h.Live.Count())
}
