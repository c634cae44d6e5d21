package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/Additional-Code/auctionroom/internal/config"
	"github.com/Additional-Code/auctionroom/internal/database"
	"github.com/Additional-Code/auctionroom/internal/migration"
)

// NewTestDB opens an isolated in-memory sqlite database with the model schema
// applied. Writer and reader share one pool.
func NewTestDB(t *testing.T) *database.Connections {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conns, err := database.Open(config.Database{
		Driver:    "sqlite",
		WriterDSN: dsn,
		ReaderDSN: dsn,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// A single connection keeps the in-memory database alive and serializes writers.
	conns.Writer.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = conns.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := migration.CreateSchema(ctx, conns.Writer); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	return conns
}

// Exec runs raw SQL against db, failing the test on error.
func Exec(t *testing.T, db *bun.DB, query string, args ...any) {
	t.Helper()
	if _, err := db.ExecContext(context.Background(), query, args...); err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}
