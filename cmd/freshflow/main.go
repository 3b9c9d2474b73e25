package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jayjaytrn/freshflow/config"
	"github.com/jayjaytrn/freshflow/internal/auth"
	"github.com/jayjaytrn/freshflow/internal/db"
	"github.com/jayjaytrn/freshflow/internal/events"
	"github.com/jayjaytrn/freshflow/internal/handlers"
	"github.com/jayjaytrn/freshflow/internal/lifecycle"
	"github.com/jayjaytrn/freshflow/internal/metrics"
	"github.com/jayjaytrn/freshflow/internal/middleware"
	"github.com/jayjaytrn/freshflow/internal/payment"
	"github.com/jayjaytrn/freshflow/internal/projector"
	"github.com/jayjaytrn/freshflow/logging"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.GetConfig()

	logger := logging.GetLogger(cfg.LogFormat)
	defer logger.Sync()

	database, err := openDatabase(cfg, logger)
	if err != nil {
		logger.Fatalw("failed to open store", "error", err)
	}
	defer database.Close()

	if err = seedAdmins(context.Background(), database, cfg.AdminUUIDs); err != nil {
		logger.Fatalw("failed to seed admins", "error", err)
	}

	reg := metrics.NewRegistry()
	notifiers := db.Notifiers{}

	publisher, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
	switch {
	case errors.Is(err, events.ErrDisabled):
		logger.Infow("kafka publishing disabled")
	case err != nil:
		logger.Fatalw("failed to init kafka publisher", "error", err)
	default:
		publisher.Observe = reg.ObserveEvent
		notifiers = append(notifiers, publisher)
		defer publisher.Close()
	}

	h, hub := buildHandler(cfg, logger, database, reg, notifiers)
	defer hub.Close()

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           initRouter(h, reg, cfg.WebhookSecret),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		hub.Close()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warnw("graceful shutdown failed", "error", err)
		}
	}()

	logger.Infow("starting server", "address", cfg.RunAddress)
	if err = server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalw("failed to start server", "error", err)
	}
}

// openDatabase prefers Postgres, then a Pebble directory, then memory.
func openDatabase(cfg *config.Config, logger *zap.SugaredLogger) (db.Database, error) {
	switch {
	case cfg.DatabaseURI != "":
		return db.NewManager(cfg.DatabaseURI, logger)
	case cfg.StoreDir != "":
		return db.NewPebbleStore(cfg.StoreDir)
	default:
		logger.Warnw("no DATABASE_URI or STORE_DIR set, orders are kept in memory only")
		return db.NewMemoryStore(), nil
	}
}

func seedAdmins(ctx context.Context, users db.UserStore, csv string) error {
	for _, id := range strings.Split(csv, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if err := users.PutAdmin(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// buildHandler wires the order pipeline over base. Every committed order
// change reaches the live hub, the metrics registry and extra.
func buildHandler(cfg *config.Config, logger *zap.SugaredLogger, base db.Database, reg *metrics.Registry, extra db.Notifiers) (*handlers.Handler, *projector.Hub) {
	hub := projector.NewHub(base, logger)
	reg.TrackSubscribers(hub.Count)

	notifiers := append(db.Notifiers{hub, reg}, extra...)
	database := db.NewNotifying(base, notifiers)

	client := payment.NewClient(cfg.GatewayAddress, cfg.GatewayAPIKey, cfg.GatewayRequestTimeout, cfg.ChargeExpiration, logger)
	client.Observe = reg.ObserveGateway

	bridge := payment.NewBridge(client, database, logger)
	bridge.Observe = reg.ObserveWebhook

	return &handlers.Handler{
		Database: database,
		Orders:   lifecycle.NewController(database, bridge, logger),
		Bridge:   bridge,
		Live:     hub,
		Tokens:   auth.NewManager(cfg.JWTSecret, cfg.TokenTTL),
		Logger:   logger,
	}, hub
}

func initRouter(h *handlers.Handler, reg *metrics.Registry, webhookSecret string) *chi.Mux {
	authenticated := middleware.ValidateAuth(h.Tokens, h.Database)

	route := func(name string, handler http.HandlerFunc, guards ...middleware.Middleware) http.Handler {
		mws := append(guards,
			middleware.ReadWithCompression,
			middleware.WriteWithCompression,
			middleware.Instrument(reg, name),
		)
		return middleware.Conveyor(handler, h.Logger, mws...)
	}

	r := chi.NewRouter()

	r.Method(http.MethodPost, `/api/user/register`, route("user.register", h.Register, middleware.ValidateCredentials))
	r.Method(http.MethodPost, `/api/user/login`, route("user.login", h.Login, middleware.ValidateCredentials))
	r.Method(http.MethodGet, `/api/menu`, route("menu.list", h.Menu))

	r.Method(http.MethodPost, `/api/orders`, route("orders.place", h.PlaceOrder, authenticated))
	r.Method(http.MethodGet, `/api/orders`, route("orders.list", h.ListOrders, authenticated))
	r.Method(http.MethodGet, `/api/orders/{id}`, route("orders.get", h.GetOrder, authenticated))
	r.Method(http.MethodGet, `/api/orders/{id}/events`, route("orders.events", h.OrderEvents, authenticated))
	r.Method(http.MethodPost, `/api/orders/{id}/payment`, route("payment.start", h.StartPayment, authenticated))
	r.Method(http.MethodGet, `/api/orders/{id}/payment`, route("payment.status", h.PaymentStatus, authenticated))

	r.Method(http.MethodPost, `/api/pagarme/webhook`, route("pagarme.webhook", h.Webhook, middleware.ValidateGatewaySignature(webhookSecret)))
	r.Method(http.MethodGet, `/api/pagarme/status/{tid}`, route("pagarme.status", h.TransactionStatus, middleware.RequireAdmin, authenticated))

	r.Method(http.MethodGet, `/api/admin/orders`, route("admin.orders.list", h.AdminListOrders, middleware.RequireAdmin, authenticated))
	r.Method(http.MethodPatch, `/api/admin/orders/{id}/status`, route("admin.orders.status", h.AdminSetStatus, middleware.RequireAdmin, authenticated))
	r.Method(http.MethodPost, `/api/admin/menu`, route("admin.menu.create", h.AdminCreateMenuItem, middleware.RequireAdmin, authenticated))
	r.Method(http.MethodPatch, `/api/admin/menu/{id}`, route("admin.menu.update", h.AdminPatchMenuItem, middleware.RequireAdmin, authenticated))

	r.Method(http.MethodGet, `/health`, route("health", h.Health))
	r.Method(http.MethodGet, `/metrics`, reg.Handler())

	return r
}
