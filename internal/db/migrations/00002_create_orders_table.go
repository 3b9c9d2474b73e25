package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(UpOrdersTable, DownOrdersTable)
}

// items, price and qty hold the legacy single-line shape and stay NULL for new orders.
func UpOrdersTable(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `CREATE TABLE orders
(
    id UUID PRIMARY KEY,
    owner_id UUID NOT NULL,
    lines JSONB,
    total_price NUMERIC(12, 2),
    items JSONB,
    price NUMERIC(12, 2),
    qty INT,
    delivery_mode VARCHAR(16),
    address JSONB,
    payment_method VARCHAR(64) NOT NULL,
    status VARCHAR(32) NOT NULL,
    payment_provider VARCHAR(64),
    provider_transaction_id VARCHAR(255),
    provider_status VARCHAR(64),
    version BIGINT NOT NULL DEFAULT 1,
    created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP NOT NULL,
    updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP NOT NULL
);
CREATE INDEX orders_owner_created_idx ON orders (owner_id, created_at DESC);
CREATE INDEX orders_provider_tx_idx ON orders (provider_transaction_id);`)
	return err
}

func DownOrdersTable(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, "DROP TABLE orders;")
	return err
}
