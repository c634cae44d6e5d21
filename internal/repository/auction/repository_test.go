package auction

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/auctionroom/internal/entity"
	"github.com/Additional-Code/auctionroom/internal/testutil"
)

var baseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newAuction(id, buyerID, title string, emails ...string) *entity.Auction {
	a := &entity.Auction{
		ID:                id,
		Title:             title,
		BuyerID:           buyerID,
		StartTime:         baseTime,
		EndTime:           baseTime.Add(30 * time.Minute),
		DurationMinutes:   30,
		MinDecrementValue: 100,
		Status:            entity.AuctionStatusActive,
		CreatedAt:         baseTime,
	}
	for _, email := range emails {
		a.Invites = append(a.Invites, &entity.Invite{Email: email})
	}
	return a
}

func TestRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(testutil.NewTestDB(t))

	require.NoError(t, repo.Create(ctx, newAuction("a1", "buyer-1", "Steel pipes", "one@example.com", "two@example.com")))

	got, err := repo.GetByID(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, "Steel pipes", got.Title)
	require.Equal(t, 100.0, got.MinDecrementValue)
	require.Len(t, got.Invites, 2)
	require.Equal(t, "one@example.com", got.Invites[0].Email)
	require.Nil(t, got.Invites[0].SupplierID)

	_, err = repo.GetByID(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRepository_DuplicateTitle(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(testutil.NewTestDB(t))

	require.NoError(t, repo.Create(ctx, newAuction("a1", "buyer-1", "Cement")))

	exists, err := repo.ExistsByTitle(ctx, "buyer-1", "Cement")
	require.NoError(t, err)
	require.True(t, exists)

	err = repo.Create(ctx, newAuction("a2", "buyer-1", "Cement"))
	require.ErrorIs(t, err, ErrDuplicateTitle)

	// same title, different buyer is fine
	require.NoError(t, repo.Create(ctx, newAuction("a3", "buyer-2", "Cement")))
}

func TestRepository_ListByBuyerAndInvite(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(testutil.NewTestDB(t))

	first := newAuction("a1", "buyer-1", "Pipes", "s@example.com")
	second := newAuction("a2", "buyer-1", "Valves", "other@example.com")
	second.CreatedAt = baseTime.Add(time.Minute)
	third := newAuction("a3", "buyer-2", "Bolts", "S@Example.com")

	for _, a := range []*entity.Auction{first, second, third} {
		require.NoError(t, repo.Create(ctx, a))
	}

	byBuyer, err := repo.ListByBuyer(ctx, "buyer-1")
	require.NoError(t, err)
	require.Len(t, byBuyer, 2)
	require.Equal(t, "a2", byBuyer[0].ID)
	require.Len(t, byBuyer[0].Invites, 1)

	invited, err := repo.ListByInviteEmail(ctx, "s@example.com")
	require.NoError(t, err)
	require.Len(t, invited, 2)
	ids := []string{invited[0].ID, invited[1].ID}
	require.ElementsMatch(t, []string{"a1", "a3"}, ids)

	none, err := repo.ListByInviteEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestRepository_UpdateEndTimeOnlyGrows(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(testutil.NewTestDB(t))
	require.NoError(t, repo.Create(ctx, newAuction("a1", "buyer-1", "Pipes")))

	later := baseTime.Add(time.Hour)
	require.NoError(t, repo.UpdateEndTime(ctx, "a1", later, baseTime))

	got, err := repo.GetByID(ctx, "a1")
	require.NoError(t, err)
	require.True(t, got.EndTime.Equal(later))

	require.NoError(t, repo.UpdateEndTime(ctx, "a1", baseTime.Add(time.Minute), baseTime))
	got, err = repo.GetByID(ctx, "a1")
	require.NoError(t, err)
	require.True(t, got.EndTime.Equal(later))
}

func TestRepository_UpdateStatusAndResolveInvites(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(testutil.NewTestDB(t))
	require.NoError(t, repo.Create(ctx, newAuction("a1", "buyer-1", "Pipes", "late@example.com")))
	require.NoError(t, repo.Create(ctx, newAuction("a2", "buyer-1", "Valves", "LATE@example.com")))

	require.NoError(t, repo.UpdateStatus(ctx, "a1", entity.AuctionStatusClosed, baseTime))

	n, err := repo.ResolveInvites(ctx, "late@example.com", "supplier-9")
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	got, err := repo.GetByID(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, entity.AuctionStatusClosed, got.Status)
	require.True(t, got.Invites[0].Resolved())
	require.Equal(t, "supplier-9", *got.Invites[0].SupplierID)

	n, err = repo.ResolveInvites(ctx, "late@example.com", "supplier-10")
	require.NoError(t, err)
	require.EqualValues(t, 0, n)
}
