package bid

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Additional-Code/auctionroom/internal/bidding"
	"github.com/Additional-Code/auctionroom/internal/broadcast"
	"github.com/Additional-Code/auctionroom/internal/cache"
	"github.com/Additional-Code/auctionroom/internal/clock"
	"github.com/Additional-Code/auctionroom/internal/config"
	"github.com/Additional-Code/auctionroom/internal/dto"
	"github.com/Additional-Code/auctionroom/internal/entity"
	"github.com/Additional-Code/auctionroom/internal/locker"
	auctionrepo "github.com/Additional-Code/auctionroom/internal/repository/auction"
	repo "github.com/Additional-Code/auctionroom/internal/repository/bid"
	participantrepo "github.com/Additional-Code/auctionroom/internal/repository/participant"
	"github.com/Additional-Code/auctionroom/internal/testutil"
	"github.com/Additional-Code/auctionroom/pkg/errorbank"
)

var start = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc          *Service
	clock        *clock.Manual
	hub          *broadcast.Hub
	auctions     *auctionrepo.Repository
	participants *participantrepo.Repository
	store        cache.Store
}

func newFixture(t *testing.T, store cache.Store) *fixture {
	t.Helper()
	conns := testutil.NewTestDB(t)
	if store == nil {
		store = cache.Noop()
	}
	f := &fixture{
		clock:        clock.NewManual(start),
		hub:          broadcast.NewHub(nil),
		auctions:     auctionrepo.NewRepository(conns),
		participants: participantrepo.NewRepository(conns),
		store:        store,
	}
	var cfg config.Config
	cfg.Bidding.RetryAttempts = 3
	cfg.Bidding.RetryBase = time.Millisecond
	cfg.Bidding.RankingCacheTTL = time.Minute
	f.svc = NewService(Params{
		Auctions:     f.auctions,
		Bids:         repo.NewRepository(conns),
		Participants: f.participants,
		Locks:        locker.New(),
		Clock:        f.clock,
		Publisher:    broadcast.LocalPublisher{Hub: f.hub},
		Cache:        store,
		Config:       cfg,
		Logger:       zap.NewNop(),
	})
	return f
}

func (f *fixture) auction(t *testing.T, id string, minDecrement float64, suppliers ...string) *entity.Auction {
	t.Helper()
	a := &entity.Auction{
		ID:                id,
		Title:             "Auction " + id,
		BuyerID:           "buyer-1",
		StartTime:         start,
		EndTime:           start.Add(30 * time.Minute),
		DurationMinutes:   30,
		MinDecrementValue: minDecrement,
		Status:            entity.AuctionStatusActive,
		CreatedAt:         start,
	}
	for _, s := range suppliers {
		supplierID := s
		a.Invites = append(a.Invites, &entity.Invite{Email: s + "@example.com", SupplierID: &supplierID})
	}
	require.NoError(t, f.auctions.Create(context.Background(), a))
	return a
}

func (f *fixture) submit(auctionID, supplierID string, amount float64) (*Result, error) {
	return f.svc.Submit(context.Background(), SubmitInput{AuctionID: auctionID, SupplierID: supplierID, Amount: amount})
}

func rankingOf(t *testing.T, frame []byte) []dto.BidResponse {
	t.Helper()
	ev, err := broadcast.Decode(frame)
	require.NoError(t, err)
	require.Equal(t, broadcast.KindUpdateBids, ev.Kind)
	var rows []dto.BidResponse
	require.NoError(t, json.Unmarshal(ev.Data, &rows))
	return rows
}

func TestService_TwoSuppliersRanking(t *testing.T) {
	f := newFixture(t, nil)
	a := f.auction(t, "a1", 10, "A", "B")
	sub := broadcast.NewSubscriber("room", 8)
	require.NoError(t, f.hub.Subscribe(a.ID, sub))

	first, err := f.submit(a.ID, "A", 500)
	require.NoError(t, err)
	require.Equal(t, 1, first.Bid.RankValue())

	second, err := f.submit(a.ID, "B", 400)
	require.NoError(t, err)
	require.Equal(t, 1, second.Bid.RankValue())
	require.Len(t, second.Ranking, 2)
	require.Equal(t, "B", second.Ranking[0].SupplierID)
	require.Equal(t, "A", second.Ranking[1].SupplierID)
	require.Equal(t, 2, second.Ranking[1].RankValue())

	rows := rankingOf(t, <-sub.Frames())
	require.Len(t, rows, 1)
	rows = rankingOf(t, <-sub.Frames())
	require.Equal(t, "B", rows[0].SupplierID)
	require.Equal(t, 1, *rows[0].Rank)
	require.Equal(t, "A", rows[1].SupplierID)
	require.Equal(t, 2, *rows[1].Rank)

	ranking, err := f.svc.Ranking(context.Background(), a.ID)
	require.NoError(t, err)
	require.Len(t, ranking, 2)
	require.Equal(t, "B", ranking[0].SupplierID)
}

func TestService_DecrementScenario(t *testing.T) {
	f := newFixture(t, nil)
	a := f.auction(t, "a1", 100, "S")

	_, err := f.submit(a.ID, "S", 1000)
	require.NoError(t, err)

	_, err = f.submit(a.ID, "S", 950)
	require.True(t, errorbank.HasCode(err, string(bidding.ReasonDecrementTooSmall)))
	require.True(t, errorbank.IsKind(err, errorbank.KindUnprocessableEntity))

	_, err = f.submit(a.ID, "S", 900)
	require.NoError(t, err)

	_, err = f.submit(a.ID, "S", 900)
	require.True(t, errorbank.HasCode(err, string(bidding.ReasonNotLowerThanPrevious)))

	standing, err := f.svc.SupplierBid(context.Background(), a.ID, "S")
	require.NoError(t, err)
	require.Equal(t, 900.0, standing.Bid.Amount)
	require.Equal(t, 1, standing.Bid.RankValue())
	require.Equal(t, 1, standing.TotalBidders)
}

func TestService_FractionalUndercutIsRejected(t *testing.T) {
	f := newFixture(t, nil)
	a := f.auction(t, "a1", 100, "S")

	_, err := f.submit(a.ID, "S", 1000)
	require.NoError(t, err)

	_, err = f.submit(a.ID, "S", 900.00004)
	require.True(t, errorbank.HasCode(err, string(bidding.ReasonDecrementTooSmall)))

	standing, err := f.svc.SupplierBid(context.Background(), a.ID, "S")
	require.NoError(t, err)
	require.Equal(t, 1000.0, standing.Bid.Amount)

	_, err = f.submit(a.ID, "S", 899.99996)
	require.NoError(t, err)
}

func TestService_Rejections(t *testing.T) {
	f := newFixture(t, nil)
	a := f.auction(t, "a1", 10, "A")

	_, err := f.submit("missing", "A", 100)
	require.True(t, errorbank.IsKind(err, errorbank.KindNotFound))
	require.True(t, errorbank.HasCode(err, string(bidding.ReasonNotFound)))

	_, err = f.submit(a.ID, "stranger", 100)
	require.True(t, errorbank.HasCode(err, string(bidding.ReasonNotInvited)))

	_, err = f.submit(a.ID, "A", 0)
	require.True(t, errorbank.HasCode(err, string(bidding.ReasonInvalidAmount)))

	_, err = f.submit("", "A", 100)
	require.True(t, errorbank.IsKind(err, errorbank.KindBadRequest))

	f.clock.Set(a.EndTime)
	_, err = f.submit(a.ID, "A", 100)
	require.True(t, errorbank.HasCode(err, string(bidding.ReasonAuctionClosed)))

	ranking, err := f.svc.Ranking(context.Background(), a.ID)
	require.NoError(t, err)
	require.Empty(t, ranking, "rejections persist nothing")
}

func TestService_InviteByEmail(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.auctions.Create(ctx, &entity.Auction{
		ID: "a1", Title: "Pending", BuyerID: "buyer-1",
		StartTime: start, EndTime: start.Add(time.Hour), DurationMinutes: 60,
		MinDecrementValue: 1, Status: entity.AuctionStatusActive,
		Invites: []*entity.Invite{{Email: "late@example.com"}},
	}))

	_, err := f.svc.Submit(ctx, SubmitInput{AuctionID: "a1", SupplierID: "late", Amount: 10})
	require.True(t, errorbank.HasCode(err, string(bidding.ReasonNotInvited)))

	_, err = f.svc.Submit(ctx, SubmitInput{AuctionID: "a1", SupplierID: "late", SupplierEmail: "LATE@example.com", Amount: 10})
	require.NoError(t, err)

	// a registered participant is matched through the directory
	require.NoError(t, f.participants.Create(ctx, &entity.Participant{ID: "late-2", Name: "L", Email: "late@example.com", Role: entity.RoleSupplier}))
	_, err = f.svc.Submit(ctx, SubmitInput{AuctionID: "a1", SupplierID: "late-2", Amount: 9})
	require.NoError(t, err)
}

func TestService_BidAfterExtensionIsAccepted(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	a := f.auction(t, "a1", 10, "A")

	// extended at T-1min by 5 minutes: new end T+4min
	require.NoError(t, f.auctions.UpdateEndTime(ctx, a.ID, a.EndTime.Add(4*time.Minute), a.EndTime.Add(-time.Minute)))

	f.clock.Set(a.EndTime.Add(2 * time.Minute))
	_, err := f.submit(a.ID, "A", 100)
	require.NoError(t, err)

	f.clock.Set(a.EndTime.Add(4 * time.Minute))
	_, err = f.submit(a.ID, "A", 50)
	require.True(t, errorbank.HasCode(err, string(bidding.ReasonAuctionClosed)))
}

func TestService_CreatedAtIsMonotonic(t *testing.T) {
	f := newFixture(t, nil)
	a := f.auction(t, "a1", 1, "A", "B")

	first, err := f.submit(a.ID, "A", 100)
	require.NoError(t, err)

	f.clock.Set(start.Add(-time.Minute))
	second, err := f.submit(a.ID, "B", 90)
	require.NoError(t, err)
	require.False(t, second.Bid.CreatedAt.Before(first.Bid.CreatedAt))
	require.Greater(t, second.Bid.Seq, first.Bid.Seq)
}

func TestService_ConcurrentBidsKeepRoomOrder(t *testing.T) {
	f := newFixture(t, nil)
	const suppliers = 12
	ids := make([]string, suppliers)
	for i := range ids {
		ids[i] = fmt.Sprintf("s%02d", i)
	}
	a := f.auction(t, "a1", 1, ids...)

	sub := broadcast.NewSubscriber("room", suppliers*2)
	require.NoError(t, f.hub.Subscribe(a.ID, sub))

	var wg sync.WaitGroup
	errs := make(chan error, suppliers)
	for i, id := range ids {
		wg.Add(1)
		go func(id string, amount float64) {
			defer wg.Done()
			_, err := f.submit(a.ID, id, amount)
			errs <- err
		}(id, float64(1000-i))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	// each accepted bid adds a supplier, so the room sees rankings grow by one
	for i := 1; i <= suppliers; i++ {
		rows := rankingOf(t, <-sub.Frames())
		require.Len(t, rows, i)
		for j, row := range rows {
			require.Equal(t, j+1, *row.Rank)
		}
	}

	ranking, err := f.svc.Ranking(context.Background(), a.ID)
	require.NoError(t, err)
	require.Len(t, ranking, suppliers)
	require.Equal(t, ids[suppliers-1], ranking[0].SupplierID)
}

func TestService_RankingServedFromCache(t *testing.T) {
	srv := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newFixture(t, cache.NewRedisStore(client, time.Minute))
	a := f.auction(t, "a1", 1, "A")

	_, err := f.submit(a.ID, "A", 100)
	require.NoError(t, err)
	require.True(t, srv.Exists(cache.RankingKey(a.ID)))

	// the snapshot, not the ledger, answers reads while it is present
	rank := 1
	snapshot := []*entity.Bid{{ID: "cached", AuctionID: a.ID, SupplierID: "A", Amount: 42, Rank: &rank}}
	require.NoError(t, cache.SetJSON(context.Background(), f.store, cache.RankingKey(a.ID), snapshot, time.Minute))

	ranking, err := f.svc.Ranking(context.Background(), a.ID)
	require.NoError(t, err)
	require.Equal(t, "cached", ranking[0].ID)

	srv.Del(cache.RankingKey(a.ID))
	ranking, err = f.svc.Ranking(context.Background(), a.ID)
	require.NoError(t, err)
	require.Equal(t, 100.0, ranking[0].Amount)
	require.True(t, srv.Exists(cache.RankingKey(a.ID)))
}

func TestService_RankingUnknownAuction(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Ranking(context.Background(), "missing")
	require.True(t, errorbank.IsKind(err, errorbank.KindNotFound))

	_, err = f.svc.SupplierBid(context.Background(), "a1", "")
	require.True(t, errorbank.IsKind(err, errorbank.KindBadRequest))
}

func TestService_SupplierWithoutBid(t *testing.T) {
	f := newFixture(t, nil)
	a := f.auction(t, "a1", 1, "A", "B")
	_, err := f.submit(a.ID, "A", 100)
	require.NoError(t, err)

	standing, err := f.svc.SupplierBid(context.Background(), a.ID, "B")
	require.NoError(t, err)
	require.Nil(t, standing.Bid)
	require.Equal(t, 1, standing.TotalBidders)
}
