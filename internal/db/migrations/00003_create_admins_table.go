package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(UpAdminsTable, DownAdminsTable)
}

func UpAdminsTable(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `CREATE TABLE admins
(
    uuid UUID PRIMARY KEY REFERENCES users (uuid) ON DELETE CASCADE
);`)
	return err
}

func DownAdminsTable(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, "DROP TABLE admins;")
	return err
}
