package migration

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"

	"github.com/Additional-Code/auctionroom/internal/entity"
)

var models = []any{
	(*entity.Participant)(nil),
	(*entity.Auction)(nil),
	(*entity.Invite)(nil),
	(*entity.Bid)(nil),
}

// CreateSchema creates the tables from the bun models. It is used for drivers
// without SQL migrations and by tests running on sqlite.
func CreateSchema(ctx context.Context, db bun.IDB) error {
	for _, model := range models {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", model, err)
		}
	}
	// MySQL has no CREATE INDEX IF NOT EXISTS.
	if db.Dialect().Name() == dialect.MySQL {
		return nil
	}
	if _, err := db.NewCreateIndex().Model((*entity.Bid)(nil)).
		Index("bids_auction_supplier_idx").
		IfNotExists().
		Column("auction_id", "supplier_id", "seq").
		Exec(ctx); err != nil {
		return fmt.Errorf("create bids index: %w", err)
	}
	return nil
}

// DropSchema drops the model tables in reverse dependency order.
func DropSchema(ctx context.Context, db bun.IDB) error {
	for i := len(models) - 1; i >= 0; i-- {
		if _, err := db.NewDropTable().Model(models[i]).IfExists().Exec(ctx); err != nil {
			return fmt.Errorf("drop table for %T: %w", models[i], err)
		}
	}
	return nil
}
