package migration

import (
	"context"
	"embed"
	"errors"
	"strings"

	"github.com/pressly/goose/v3"
	"github.com/uptrace/bun"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/auctionroom/internal/config"
	"github.com/Additional-Code/auctionroom/internal/database"
)

//go:embed sql/*.sql
var migrations embed.FS

const migrationsDir = "sql"

// Module provides the migrator to Fx.
var Module = fx.Provide(New)

// Migrator wraps goose operations over the embedded auction schema.
type Migrator struct {
	db     *bun.DB
	logger *zap.Logger
	goose  bool
}

// New constructs a goose-backed migrator.
func New(cfg config.Config, conns *database.Connections, logger *zap.Logger) (*Migrator, error) {
	m := &Migrator{
		db:     conns.Writer,
		logger: logger,
	}

	dialect, ok := gooseDialect(cfg.Database.Driver)
	if !ok {
		logger.Info("no SQL migrations for driver; using model schema", zap.String("driver", cfg.Database.Driver))
		return m, nil
	}

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect(dialect); err != nil {
		return nil, err
	}
	m.goose = true

	return m, nil
}

// Up applies all pending migrations.
func (m *Migrator) Up(ctx context.Context) error {
	if !m.goose {
		if err := CreateSchema(ctx, m.db); err != nil {
			return err
		}
		m.logger.Info("model schema created")
		return nil
	}

	if err := goose.UpContext(ctx, m.db.DB, migrationsDir); err != nil {
		if isNoMigrationErr(err) {
			m.logger.Info("no migrations to apply")

			return nil
		}
		return err
	}

	m.logger.Info("migrations applied")

	return nil
}

// Down rolls back migrations. Steps <=0 defaults to 1; all=true rolls everything back.
func (m *Migrator) Down(ctx context.Context, steps int, all bool) error {
	if !m.goose {
		if err := DropSchema(ctx, m.db); err != nil {
			return err
		}
		m.logger.Info("model schema dropped")
		return nil
	}

	if all {
		if err := goose.DownToContext(ctx, m.db.DB, migrationsDir, 0); err != nil {
			if isNoMigrationErr(err) {
				m.logger.Info("no migrations to rollback")

				return nil
			}
			return err
		}
		m.logger.Info("migrations rolled back", zap.String("mode", "all"))

		return nil
	}

	if steps <= 0 {
		steps = 1
	}

	for i := 0; i < steps; i++ {
		if err := goose.DownContext(ctx, m.db.DB, migrationsDir); err != nil {
			if isNoMigrationErr(err) {
				m.logger.Info("no migrations to rollback")

				return nil
			}
			return err
		}
	}

	m.logger.Info("migrations rolled back", zap.Int("steps", steps))

	return nil
}

// gooseDialect maps drivers to goose dialects. The embedded SQL uses postgres
// types and partial indexes, so other drivers get the model schema.
func gooseDialect(driver string) (string, bool) {
	switch driver {
	case "postgres", "pg":
		return "postgres", true
	default:
		return "", false
	}
}

func isNoMigrationErr(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, goose.ErrNoNextVersion) || errors.Is(err, goose.ErrNoMigrationFiles) {
		return true
	}

	msg := err.Error()
	return strings.Contains(msg, "no migrations")
}
