package bid

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/auctionroom/internal/bidding"
	"github.com/Additional-Code/auctionroom/internal/database"
	"github.com/Additional-Code/auctionroom/internal/entity"
	"github.com/Additional-Code/auctionroom/internal/testutil"
)

var baseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func seedAuction(t *testing.T, conns *database.Connections, id string) {
	t.Helper()
	_, err := conns.Writer.NewInsert().Model(&entity.Auction{
		ID:                id,
		Title:             "Auction " + id,
		BuyerID:           "buyer-1",
		StartTime:         baseTime,
		EndTime:           baseTime.Add(time.Hour),
		DurationMinutes:   60,
		MinDecrementValue: 10,
		Status:            entity.AuctionStatusActive,
	}).Exec(context.Background())
	require.NoError(t, err)
}

// appendAll replays bids through the ledger the way the bid service does.
func appendAll(t *testing.T, repo *Repository, bids ...*entity.Bid) {
	t.Helper()
	ctx := context.Background()
	for _, b := range bids {
		existing, err := repo.ListByAuction(ctx, b.AuctionID)
		require.NoError(t, err)
		ranking := bidding.Rank(append(existing, b))
		require.NoError(t, repo.AppendRanked(ctx, b, ranking))
	}
}

func newBid(auctionID, supplierID string, amount float64, seq int64) *entity.Bid {
	return &entity.Bid{
		ID:         fmt.Sprintf("%s-%d", auctionID, seq),
		AuctionID:  auctionID,
		SupplierID: supplierID,
		Amount:     amount,
		Seq:        seq,
		CreatedAt:  baseTime.Add(time.Duration(seq) * time.Second),
	}
}

func TestRepository_AppendRankedReplacesRanks(t *testing.T) {
	ctx := context.Background()
	conns := testutil.NewTestDB(t)
	seedAuction(t, conns, "a1")
	repo := NewRepository(conns)

	appendAll(t, repo,
		newBid("a1", "A", 500, 1),
		newBid("a1", "B", 400, 2),
		newBid("a1", "A", 300, 3),
	)

	ranked, err := repo.Ranked(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	require.Equal(t, "A", ranked[0].SupplierID)
	require.Equal(t, 300.0, ranked[0].Amount)
	require.Equal(t, 1, ranked[0].RankValue())
	require.Equal(t, "B", ranked[1].SupplierID)
	require.Equal(t, 2, ranked[1].RankValue())

	all, err := repo.ListByAuction(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Nil(t, all[0].Rank, "superseded bid keeps no rank")
}

func TestRepository_LatestBySupplier(t *testing.T) {
	ctx := context.Background()
	conns := testutil.NewTestDB(t)
	seedAuction(t, conns, "a1")
	repo := NewRepository(conns)

	none, err := repo.LatestBySupplier(ctx, "a1", "A")
	require.NoError(t, err)
	require.Nil(t, none)

	appendAll(t, repo, newBid("a1", "A", 500, 1), newBid("a1", "A", 450, 2), newBid("a1", "B", 470, 3))

	latest, err := repo.LatestBySupplier(ctx, "a1", "A")
	require.NoError(t, err)
	require.Equal(t, 450.0, latest.Amount)
	require.Equal(t, 1, latest.RankValue())
}

func TestRepository_AppendRankedSequenceTaken(t *testing.T) {
	ctx := context.Background()
	conns := testutil.NewTestDB(t)
	seedAuction(t, conns, "a1")
	repo := NewRepository(conns)

	appendAll(t, repo, newBid("a1", "A", 500, 1))

	dup := newBid("a1", "B", 400, 1)
	dup.ID = "other-id"
	err := repo.AppendRanked(ctx, dup, nil)
	require.ErrorIs(t, err, ErrSequenceTaken)

	// the failed transaction leaves the ledger and ranks untouched
	ranked, err := repo.Ranked(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	require.Equal(t, "A", ranked[0].SupplierID)
}

func TestRepository_RankedIsolatedPerAuction(t *testing.T) {
	ctx := context.Background()
	conns := testutil.NewTestDB(t)
	seedAuction(t, conns, "a1")
	seedAuction(t, conns, "a2")
	repo := NewRepository(conns)

	appendAll(t, repo, newBid("a1", "A", 500, 1), newBid("a2", "B", 100, 1))

	ranked, err := repo.Ranked(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	require.Equal(t, "A", ranked[0].SupplierID)
}
