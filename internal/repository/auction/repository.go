package auction

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/auctionroom/internal/database"
	"github.com/Additional-Code/auctionroom/internal/entity"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/auctionroom/repository/auction")

var (
	// ErrNotFound is returned when an auction is missing.
	ErrNotFound = errors.New("auction not found")
	// ErrDuplicateTitle is returned when the buyer already owns an auction with the title.
	ErrDuplicateTitle = errors.New("auction title already exists for buyer")
)

// Repository is the auction store: auctions and their invites.
type Repository struct {
	writer *bun.DB
	reader *bun.DB
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{
		writer: conns.Writer,
		reader: conns.Reader,
	}
}

// Create persists the auction and its invites in one transaction.
func (r *Repository) Create(ctx context.Context, auction *entity.Auction) error {
	if auction == nil {
		return errors.New("nil auction")
	}
	ctx, span := repoTracer.Start(ctx, "AuctionRepository.Create", trace.WithAttributes(
		attribute.String("auction.buyer_id", auction.BuyerID),
		attribute.Int("auction.invites", len(auction.Invites)),
	))
	defer span.End()

	err := r.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(auction).Exec(ctx); err != nil {
			return err
		}
		if len(auction.Invites) == 0 {
			return nil
		}
		for _, inv := range auction.Invites {
			inv.AuctionID = auction.ID
		}
		_, err := tx.NewInsert().Model(&auction.Invites).Exec(ctx)
		return err
	})
	if database.IsUniqueViolation(err) {
		span.SetStatus(codes.Error, "duplicate title")
		return ErrDuplicateTitle
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
	}
	return err
}

// ExistsByTitle reports whether the buyer already owns an auction with title.
func (r *Repository) ExistsByTitle(ctx context.Context, buyerID, title string) (bool, error) {
	ctx, span := repoTracer.Start(ctx, "AuctionRepository.ExistsByTitle")
	defer span.End()

	exists, err := r.writer.NewSelect().Model((*entity.Auction)(nil)).
		Where("buyer_id = ?", buyerID).
		Where("title = ?", title).
		Exists(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
	}
	return exists, err
}

// GetByID loads an auction with its invites from the writer so that bid
// validation never observes a lagging replica.
func (r *Repository) GetByID(ctx context.Context, id string) (*entity.Auction, error) {
	ctx, span := repoTracer.Start(ctx, "AuctionRepository.GetByID", trace.WithAttributes(attribute.String("auction.id", id)))
	defer span.End()

	auction := new(entity.Auction)
	err := r.writer.NewSelect().Model(auction).
		Relation("Invites", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("i.id ASC")
		}).
		Where("a.id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return auction, nil
}

// ListByBuyer returns the buyer's auctions, newest first.
func (r *Repository) ListByBuyer(ctx context.Context, buyerID string) ([]*entity.Auction, error) {
	ctx, span := repoTracer.Start(ctx, "AuctionRepository.ListByBuyer", trace.WithAttributes(attribute.String("auction.buyer_id", buyerID)))
	defer span.End()

	var auctions []*entity.Auction
	err := r.reader.NewSelect().Model(&auctions).
		Relation("Invites", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("i.id ASC")
		}).
		Where("a.buyer_id = ?", buyerID).
		Order("a.created_at DESC", "a.id ASC").
		Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return auctions, nil
}

// ListByInviteEmail returns every auction the email has been invited to.
func (r *Repository) ListByInviteEmail(ctx context.Context, email string) ([]*entity.Auction, error) {
	ctx, span := repoTracer.Start(ctx, "AuctionRepository.ListByInviteEmail")
	defer span.End()

	invited := r.reader.NewSelect().Model((*entity.Invite)(nil)).
		Column("auction_id").
		Where("LOWER(email) = ?", strings.ToLower(email))

	var auctions []*entity.Auction
	err := r.reader.NewSelect().Model(&auctions).
		Relation("Invites", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("i.id ASC")
		}).
		Where("a.id IN (?)", invited).
		Order("a.end_time ASC", "a.id ASC").
		Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return auctions, nil
}

// UpdateEndTime moves the auction's end time; callers guarantee it only grows.
func (r *Repository) UpdateEndTime(ctx context.Context, id string, endTime, updatedAt time.Time) error {
	ctx, span := repoTracer.Start(ctx, "AuctionRepository.UpdateEndTime", trace.WithAttributes(attribute.String("auction.id", id)))
	defer span.End()

	return r.update(ctx, span, id, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.Set("end_time = ?", endTime).
			Set("updated_at = ?", updatedAt).
			Where("end_time < ?", endTime)
	})
}

// UpdateStatus writes the stored status.
func (r *Repository) UpdateStatus(ctx context.Context, id, status string, updatedAt time.Time) error {
	ctx, span := repoTracer.Start(ctx, "AuctionRepository.UpdateStatus", trace.WithAttributes(
		attribute.String("auction.id", id),
		attribute.String("auction.status", status),
	))
	defer span.End()

	return r.update(ctx, span, id, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.Set("status = ?", status).Set("updated_at = ?", updatedAt)
	})
}

func (r *Repository) update(ctx context.Context, span trace.Span, id string, fn func(*bun.UpdateQuery) *bun.UpdateQuery) error {
	q := r.writer.NewUpdate().Model((*entity.Auction)(nil)).Where("id = ?", id)
	if _, err := fn(q).Exec(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return err
	}
	return nil
}

// ResolveInvites binds pending invites for email to the registered supplier.
func (r *Repository) ResolveInvites(ctx context.Context, email, supplierID string) (int64, error) {
	ctx, span := repoTracer.Start(ctx, "AuctionRepository.ResolveInvites", trace.WithAttributes(attribute.String("supplier.id", supplierID)))
	defer span.End()

	res, err := r.writer.NewUpdate().Model((*entity.Invite)(nil)).
		Set("supplier_id = ?", supplierID).
		Where("LOWER(email) = ?", strings.ToLower(email)).
		Where("supplier_id IS NULL").
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}
