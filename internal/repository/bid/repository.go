package bid

import (
	"context"
	"errors"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/auctionroom/internal/database"
	"github.com/Additional-Code/auctionroom/internal/entity"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/auctionroom/repository/bid")

// ErrSequenceTaken is returned when another writer appended to the auction's
// ledger first. The caller should reload and re-validate.
var ErrSequenceTaken = errors.New("bid sequence already taken")

// Repository is the append-only bid ledger.
type Repository struct {
	writer *bun.DB
	reader *bun.DB
}

// NewRepository wires a ledger backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{
		writer: conns.Writer,
		reader: conns.Reader,
	}
}

// ListByAuction returns every bid of the auction in ledger order. Reads go to
// the writer because they feed validation and ranking.
func (r *Repository) ListByAuction(ctx context.Context, auctionID string) ([]*entity.Bid, error) {
	ctx, span := repoTracer.Start(ctx, "BidRepository.ListByAuction", trace.WithAttributes(attribute.String("auction.id", auctionID)))
	defer span.End()

	var bids []*entity.Bid
	err := r.writer.NewSelect().Model(&bids).
		Where("auction_id = ?", auctionID).
		Order("seq ASC").
		Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return bids, nil
}

// Ranked returns the live ranking as cached in the rank column.
func (r *Repository) Ranked(ctx context.Context, auctionID string) ([]*entity.Bid, error) {
	ctx, span := repoTracer.Start(ctx, "BidRepository.Ranked", trace.WithAttributes(attribute.String("auction.id", auctionID)))
	defer span.End()

	var bids []*entity.Bid
	err := r.reader.NewSelect().Model(&bids).
		Where("auction_id = ?", auctionID).
		Where("current_rank IS NOT NULL").
		Order("current_rank ASC").
		Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return bids, nil
}

// LatestBySupplier returns the supplier's most recent bid or nil.
func (r *Repository) LatestBySupplier(ctx context.Context, auctionID, supplierID string) (*entity.Bid, error) {
	ctx, span := repoTracer.Start(ctx, "BidRepository.LatestBySupplier", trace.WithAttributes(
		attribute.String("auction.id", auctionID),
		attribute.String("supplier.id", supplierID),
	))
	defer span.End()

	var bids []*entity.Bid
	err := r.reader.NewSelect().Model(&bids).
		Where("auction_id = ?", auctionID).
		Where("supplier_id = ?", supplierID).
		Order("seq DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	if len(bids) == 0 {
		return nil, nil
	}
	return bids[0], nil
}

// AppendRanked inserts bid and replaces the auction's rank table with ranking
// in a single transaction, so readers never see a partially applied ranking.
func (r *Repository) AppendRanked(ctx context.Context, bid *entity.Bid, ranking []*entity.Bid) error {
	if bid == nil {
		return errors.New("nil bid")
	}
	ctx, span := repoTracer.Start(ctx, "BidRepository.AppendRanked", trace.WithAttributes(
		attribute.String("auction.id", bid.AuctionID),
		attribute.Int64("bid.seq", bid.Seq),
		attribute.Int("ranking.size", len(ranking)),
	))
	defer span.End()

	err := r.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := *bid
		row.Rank = nil
		if _, err := tx.NewInsert().Model(&row).Exec(ctx); err != nil {
			return err
		}
		return replaceRanks(ctx, tx, bid.AuctionID, ranking)
	})
	if database.IsUniqueViolation(err) {
		span.SetStatus(codes.Error, "sequence taken")
		return ErrSequenceTaken
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "append failed")
	}
	return err
}

func replaceRanks(ctx context.Context, tx bun.Tx, auctionID string, ranking []*entity.Bid) error {
	if _, err := tx.NewUpdate().Model((*entity.Bid)(nil)).
		Set("current_rank = NULL").
		Where("auction_id = ?", auctionID).
		Where("current_rank IS NOT NULL").
		Exec(ctx); err != nil {
		return err
	}
	for _, b := range ranking {
		if _, err := tx.NewUpdate().Model((*entity.Bid)(nil)).
			Set("current_rank = ?", b.RankValue()).
			Where("id = ?", b.ID).
			Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}
