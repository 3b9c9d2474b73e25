package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/jayjaytrn/freshflow/internal/db/migrations"
	"github.com/jayjaytrn/freshflow/models"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const orderColumns = `id, owner_id, lines, total_price, items, price, qty, delivery_mode, address,
	payment_method, status, payment_provider, provider_transaction_id, provider_status,
	version, created_at, updated_at`

type Manager struct {
	Db     *sql.DB
	Logger *zap.SugaredLogger
	now    clock
}

func NewManager(databaseURI string, logger *zap.SugaredLogger) (*Manager, error) {
	db, err := sql.Open("pgx", databaseURI)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	manager := &Manager{
		Db:     db,
		Logger: logger,
		now:    utcNow,
	}

	if err = goose.SetDialect("postgres"); err != nil {
		return nil, fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err = goose.Up(db, "./internal/db/migrations"); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return manager, nil
}

func (m *Manager) clock() time.Time {
	if m.now == nil {
		return utcNow()
	}
	return m.now()
}

func (m *Manager) Ping(ctx context.Context) error {
	return m.Db.PingContext(ctx)
}

func (m *Manager) Close() error {
	return m.Db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanOrder reads one orders row, any shape, into the normalized order.
func scanOrder(row rowScanner) (models.Order, error) {
	var (
		r                                              orderRecord
		lines, items, address                          []byte
		total, price                                   decimal.NullDecimal
		qty                                            sql.NullInt64
		deliveryMode, provider, transactionID, pStatus sql.NullString
	)
	err := row.Scan(&r.ID, &r.OwnerID, &lines, &total, &items, &price, &qty, &deliveryMode, &address,
		&r.PaymentMethod, &r.Status, &provider, &transactionID, &pStatus,
		&r.Version, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return models.Order{}, err
	}

	if len(lines) > 0 {
		if err := json.Unmarshal(lines, &r.Lines); err != nil {
			return models.Order{}, fmt.Errorf("failed to decode lines of %s: %w", r.ID, err)
		}
	}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &r.Items); err != nil {
			return models.Order{}, fmt.Errorf("failed to decode legacy items of %s: %w", r.ID, err)
		}
	}
	if len(address) > 0 {
		r.Address = &models.Address{}
		if err := json.Unmarshal(address, r.Address); err != nil {
			return models.Order{}, fmt.Errorf("failed to decode address of %s: %w", r.ID, err)
		}
	}
	if total.Valid {
		r.TotalPrice = &total.Decimal
	}
	if price.Valid {
		r.Price = &price.Decimal
	}
	r.Qty = int(qty.Int64)
	r.DeliveryMode = models.DeliveryMode(deliveryMode.String)
	r.PaymentProvider = provider.String
	r.ProviderTransactionID = transactionID.String
	r.ProviderStatus = pStatus.String
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()

	return r.order(), nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (m *Manager) Create(ctx context.Context, draft models.OrderDraft) (models.Order, error) {
	o, err := newOrder(draft, m.clock())
	if err != nil {
		return models.Order{}, err
	}

	lines, err := json.Marshal(toRecord(o).Lines)
	if err != nil {
		return models.Order{}, err
	}
	var address []byte
	if o.Address != nil {
		if address, err = json.Marshal(o.Address); err != nil {
			return models.Order{}, err
		}
	}

	_, err = m.Db.ExecContext(ctx, `
		INSERT INTO orders (id, owner_id, lines, total_price, delivery_mode, address,
			payment_method, status, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, o.ID, o.OwnerID, string(lines), o.TotalPrice, nullable(string(o.DeliveryMode)), nullableJSON(address),
		o.PaymentMethod, string(o.Status), o.Version, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return models.Order{}, fmt.Errorf("failed to insert order: %w", err)
	}

	return o, nil
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

// checkID rejects ids a UUID column cannot hold. Postgres answers those with a
// cast error instead of no rows.
func checkID(kind, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return notFound(kind, id)
	}
	return nil
}

func (m *Manager) GetByID(ctx context.Context, id string) (models.Order, error) {
	if err := checkID("order", id); err != nil {
		return models.Order{}, err
	}
	o, err := scanOrder(m.Db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Order{}, notFound("order", id)
	}
	if err != nil {
		return models.Order{}, fmt.Errorf("failed to get order: %w", err)
	}
	return o, nil
}

func (m *Manager) GetByTransactionID(ctx context.Context, transactionID string) (models.Order, error) {
	o, err := scanOrder(m.Db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE provider_transaction_id = $1 LIMIT 1`, transactionID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Order{}, notFound("transaction", transactionID)
	}
	if err != nil {
		return models.Order{}, fmt.Errorf("failed to get order by transaction: %w", err)
	}
	return o, nil
}

func (m *Manager) queryOrders(ctx context.Context, query string, args ...any) ([]models.Order, error) {
	rows, err := m.Db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := make([]models.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, o)
	}
	return list, rows.Err()
}

// listOrdered runs the sorted query and falls back to an unsorted one sorted in
// memory when the backend refuses the ordered form.
func (m *Manager) listOrdered(ctx context.Context, where string, args ...any) ([]models.Order, error) {
	base := `SELECT ` + orderColumns + ` FROM orders` + where
	list, err := m.queryOrders(ctx, base+` ORDER BY created_at DESC`, args...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("failed to list orders: %w", err)
		}
		if m.Logger != nil {
			m.Logger.Warnw("ordered order listing failed, falling back", "error", err)
		}
		list, err = m.queryOrders(ctx, base, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to list orders: %w", err)
		}
	}
	sortNewestFirst(list)
	return list, nil
}

func (m *Manager) ListByOwner(ctx context.Context, ownerID string) ([]models.Order, error) {
	if checkID("owner", ownerID) != nil {
		return []models.Order{}, nil
	}
	return m.listOrdered(ctx, ` WHERE owner_id = $1`, ownerID)
}

func (m *Manager) ListAll(ctx context.Context) ([]models.Order, error) {
	return m.listOrdered(ctx, ``)
}

// mutate locks the row, lets fn change it and writes the result in the same transaction.
func (m *Manager) mutate(ctx context.Context, id string, fn func(o *models.Order) (bool, error),
	update string, args func(o models.Order) []any) (models.Order, bool, error) {
	if err := checkID("order", id); err != nil {
		return models.Order{}, false, err
	}
	tx, err := m.Db.BeginTx(ctx, nil)
	if err != nil {
		return models.Order{}, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	o, err := scanOrder(tx.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Order{}, false, notFound("order", id)
	}
	if err != nil {
		return models.Order{}, false, fmt.Errorf("failed to lock order: %w", err)
	}

	changed, err := fn(&o)
	if err != nil {
		return models.Order{}, false, err
	}
	if !changed {
		return o, false, nil
	}

	if _, err = tx.ExecContext(ctx, update, args(o)...); err != nil {
		return models.Order{}, false, fmt.Errorf("failed to update order: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return models.Order{}, false, fmt.Errorf("failed to commit order update: %w", err)
	}
	return o, true, nil
}

func (m *Manager) ApplyStatus(ctx context.Context, id string, status models.OrderStatus) (models.Order, bool, error) {
	now := m.clock()
	return m.mutate(ctx, id,
		func(o *models.Order) (bool, error) { return applyStatus(o, status, now) },
		`UPDATE orders SET status = $2, updated_at = $3, version = $4 WHERE id = $1`,
		func(o models.Order) []any { return []any{o.ID, string(o.Status), o.UpdatedAt, o.Version} },
	)
}

func (m *Manager) ApplyProviderInfo(ctx context.Context, id string, info models.ProviderInfo) (models.Order, bool, error) {
	now := m.clock()
	return m.mutate(ctx, id,
		func(o *models.Order) (bool, error) { return applyProvider(o, info, now) },
		`UPDATE orders SET payment_provider = $2, provider_transaction_id = $3, provider_status = $4,
			updated_at = $5, version = $6 WHERE id = $1`,
		func(o models.Order) []any {
			return []any{o.ID, o.PaymentProvider, o.ProviderTransactionID, o.ProviderStatus, o.UpdatedAt, o.Version}
		},
	)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (m *Manager) PutUniqueUserData(ctx context.Context, user models.User) error {
	_, err := m.Db.ExecContext(ctx, `
        INSERT INTO users (uuid, email, password)
        VALUES ($1, $2, $3)
    `, user.UUID, user.Email, user.Password)
	if isUniqueViolation(err) {
		return ErrDuplicateUser
	}
	if err != nil {
		return fmt.Errorf("failed to insert user data: %w", err)
	}

	return nil
}

func (m *Manager) GetUserData(ctx context.Context, email string) (models.User, error) {
	var user models.User

	err := m.Db.QueryRowContext(ctx, `
		SELECT u.uuid, u.email, u.password, a.uuid IS NOT NULL
		FROM users u LEFT JOIN admins a ON a.uuid = u.uuid
		WHERE u.email = $1
	`, email).Scan(&user.UUID, &user.Email, &user.Password, &user.IsAdmin)
	if errors.Is(err, sql.ErrNoRows) {
		return user, notFound("user", email)
	}
	if err != nil {
		return user, fmt.Errorf("failed to get user data: %w", err)
	}

	return user, nil
}

func (m *Manager) IsAdmin(ctx context.Context, userID string) (bool, error) {
	var admin bool
	err := m.Db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM admins WHERE uuid = $1)`, userID).Scan(&admin)
	if err != nil {
		return false, fmt.Errorf("failed to check admin: %w", err)
	}
	return admin, nil
}

func (m *Manager) PutAdmin(ctx context.Context, userID string) error {
	_, err := m.Db.ExecContext(ctx, `INSERT INTO admins (uuid) VALUES ($1) ON CONFLICT (uuid) DO NOTHING`, userID)
	if err != nil {
		return fmt.Errorf("failed to insert admin: %w", err)
	}
	return nil
}

func scanMenuItem(row rowScanner) (models.MenuItem, error) {
	var (
		item        models.MenuItem
		ingredients []byte
	)
	if err := row.Scan(&item.ID, &item.Name, &ingredients, &item.Price, &item.Active, &item.Gradient,
		&item.CreatedAt, &item.UpdatedAt); err != nil {
		return item, err
	}
	if err := json.Unmarshal(ingredients, &item.Ingredients); err != nil {
		return item, fmt.Errorf("failed to decode ingredients of %s: %w", item.ID, err)
	}
	return item, nil
}

func (m *Manager) ListMenu(ctx context.Context, activeOnly bool) ([]models.MenuItem, error) {
	query := `SELECT id, name, ingredients, price, active, gradient, created_at, updated_at FROM menu`
	if activeOnly {
		query += ` WHERE active`
	}
	rows, err := m.Db.QueryContext(ctx, query+` ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list menu: %w", err)
	}
	defer rows.Close()

	list := make([]models.MenuItem, 0)
	for rows.Next() {
		item, err := scanMenuItem(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, item)
	}
	return list, rows.Err()
}

func (m *Manager) GetMenuItem(ctx context.Context, id string) (models.MenuItem, error) {
	if err := checkID("menu item", id); err != nil {
		return models.MenuItem{}, err
	}
	item, err := scanMenuItem(m.Db.QueryRowContext(ctx,
		`SELECT id, name, ingredients, price, active, gradient, created_at, updated_at FROM menu WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return item, notFound("menu item", id)
	}
	if err != nil {
		return item, fmt.Errorf("failed to get menu item: %w", err)
	}
	return item, nil
}

func (m *Manager) PutMenuItem(ctx context.Context, item models.MenuItem) error {
	ingredients, err := json.Marshal(item.Ingredients)
	if err != nil {
		return err
	}
	_, err = m.Db.ExecContext(ctx, `
		INSERT INTO menu (id, name, ingredients, price, active, gradient, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, ingredients = EXCLUDED.ingredients,
			price = EXCLUDED.price, active = EXCLUDED.active, gradient = EXCLUDED.gradient,
			updated_at = EXCLUDED.updated_at
	`, item.ID, item.Name, string(ingredients), item.Price, item.Active, item.Gradient, item.CreatedAt, item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to put menu item: %w", err)
	}
	return nil
}
