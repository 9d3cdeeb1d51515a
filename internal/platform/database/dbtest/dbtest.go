// Package dbtest hands out isolated, migrated Postgres databases to tests.
package dbtest

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/peterldowns/pgtestdb"

	"codequest/internal/platform/database"
)

// migrator applies the embedded schema to pgtestdb template databases.
type migrator struct{}

var _ pgtestdb.Migrator = migrator{}

func (migrator) Hash() (string, error) {
	h := sha256.New()
	names, err := database.MigrationNames()
	if err != nil {
		return "", err
	}
	for _, name := range names {
		body, err := fs.ReadFile(database.MigrationFS(), "migrations/"+name)
		if err != nil {
			return "", err
		}
		h.Write([]byte(name))
		h.Write(body)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Prepare has nothing to install; the schema needs no extensions.
func (migrator) Prepare(context.Context, *sql.DB, pgtestdb.Config) error {
	return nil
}

func (migrator) Migrate(ctx context.Context, db *sql.DB, _ pgtestdb.Config) error {
	return database.Migrate(ctx, db)
}

// Verify checks that every embedded migration is recorded in the clone.
func (migrator) Verify(ctx context.Context, db *sql.DB, _ pgtestdb.Config) error {
	pending, err := database.Pending(ctx, db)
	if err != nil {
		return err
	}
	if len(pending) > 0 {
		return fmt.Errorf("migrations not applied: %v", pending)
	}
	return nil
}

// New returns a fresh database for t. Tests are skipped unless
// PGTESTDB_HOST points at a Postgres server.
func New(t *testing.T) *sql.DB {
	t.Helper()
	host := os.Getenv("PGTESTDB_HOST")
	if host == "" {
		t.Skip("PGTESTDB_HOST not set; skipping Postgres test")
	}
	conf := pgtestdb.Config{
		DriverName: "pgx",
		Host:       host,
		Port:       envOr("PGTESTDB_PORT", "5432"),
		User:       envOr("PGTESTDB_USER", "postgres"),
		Password:   envOr("PGTESTDB_PASSWORD", "password"),
		Options:    "sslmode=disable",
	}
	return pgtestdb.New(t, conf, migrator{})
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
