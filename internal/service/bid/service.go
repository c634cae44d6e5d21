package bid

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/auctionroom/internal/bidding"
	"github.com/Additional-Code/auctionroom/internal/broadcast"
	"github.com/Additional-Code/auctionroom/internal/cache"
	"github.com/Additional-Code/auctionroom/internal/clock"
	"github.com/Additional-Code/auctionroom/internal/config"
	"github.com/Additional-Code/auctionroom/internal/database"
	"github.com/Additional-Code/auctionroom/internal/dto"
	"github.com/Additional-Code/auctionroom/internal/entity"
	"github.com/Additional-Code/auctionroom/internal/locker"
	"github.com/Additional-Code/auctionroom/internal/messaging"
	auctionrepo "github.com/Additional-Code/auctionroom/internal/repository/auction"
	repo "github.com/Additional-Code/auctionroom/internal/repository/bid"
	participantrepo "github.com/Additional-Code/auctionroom/internal/repository/participant"
	"github.com/Additional-Code/auctionroom/pkg/errorbank"
)

var (
	serviceTracer = otel.Tracer("github.com/Additional-Code/auctionroom/service/bid")
	serviceMeter  = otel.Meter("github.com/Additional-Code/auctionroom/service/bid")
)

// CodeConcurrentBid is returned when the ledger stayed contended through
// every retry.
const CodeConcurrentBid = "concurrent_bid"

// Service accepts bids and serves rankings.
type Service struct {
	auctions     *auctionrepo.Repository
	bids         *repo.Repository
	participants *participantrepo.Repository
	locks        *locker.Keyed
	clock        clock.Clock
	publisher    broadcast.Publisher
	cache        cache.Store
	events       messaging.Client
	logger       *zap.Logger

	retryAttempts uint64
	retryBase     time.Duration
	cacheTTL      time.Duration

	accepted metric.Int64Counter
	rejected metric.Int64Counter
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Auctions     *auctionrepo.Repository
	Bids         *repo.Repository
	Participants *participantrepo.Repository
	Locks        *locker.Keyed
	Clock        clock.Clock
	Publisher    broadcast.Publisher
	Cache        cache.Store
	Events       messaging.Client
	Config       config.Config
	Logger       *zap.Logger
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	s := &Service{
		auctions:     p.Auctions,
		bids:         p.Bids,
		participants: p.Participants,
		locks:        p.Locks,
		clock:        p.Clock,
		publisher:    p.Publisher,
		cache:        p.Cache,
		events:       p.Events,
		logger:       p.Logger,
		retryBase:    p.Config.Bidding.RetryBase,
		cacheTTL:     p.Config.Bidding.RankingCacheTTL,
	}
	if p.Config.Bidding.RetryAttempts > 0 {
		s.retryAttempts = uint64(p.Config.Bidding.RetryAttempts)
	}
	if s.retryBase <= 0 {
		s.retryBase = 50 * time.Millisecond
	}
	s.accepted, _ = serviceMeter.Int64Counter("bids.accepted", metric.WithDescription("Accepted bids"))
	s.rejected, _ = serviceMeter.Int64Counter("bids.rejected", metric.WithDescription("Rejected bids by reason"))
	return s
}

// SubmitInput carries a bid as received from a supplier. SupplierEmail is
// optional and lets a supplier whose invite is not yet resolved bid.
type SubmitInput struct {
	AuctionID     string
	SupplierID    string
	SupplierEmail string
	Amount        float64
}

// Result is an accepted bid and the ranking it produced.
type Result struct {
	Bid     *entity.Bid
	Ranking []*entity.Bid
}

// Standing is a supplier's live bid in an auction.
type Standing struct {
	Bid          *entity.Bid
	TotalBidders int
}

// Submit validates and records a bid, recomputes the ranking and pushes it to
// the auction room. All steps run under the auction's lock so every room
// member sees rankings in ledger order.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*Result, error) {
	in.AuctionID = strings.TrimSpace(in.AuctionID)
	in.SupplierID = strings.TrimSpace(in.SupplierID)
	in.SupplierEmail = strings.ToLower(strings.TrimSpace(in.SupplierEmail))
	if in.AuctionID == "" || in.SupplierID == "" {
		return nil, errorbank.BadRequest("auctionId and supplierId are required", errorbank.WithCode("missing_fields"))
	}

	ctx, span := serviceTracer.Start(ctx, "BidService.Submit", trace.WithAttributes(
		attribute.String("auction.id", in.AuctionID),
		attribute.String("supplier.id", in.SupplierID),
	))
	defer span.End()

	unlock := s.locks.Lock(in.AuctionID)
	defer unlock()

	var result *Result
	backoff := retry.WithMaxRetries(s.retryAttempts, retry.NewExponential(s.retryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		r, err := s.submitOnce(ctx, in)
		if err != nil {
			if errors.Is(err, repo.ErrSequenceTaken) || database.IsTransient(err) {
				s.logger.Debug("retrying bid", zap.String("auction_id", in.AuctionID), zap.Error(err))
				return retry.RetryableError(err)
			}
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, s.submitError(ctx, span, err)
	}

	s.accepted.Add(ctx, 1)
	s.afterAccept(ctx, result)
	return result, nil
}

func (s *Service) submitOnce(ctx context.Context, in SubmitInput) (*Result, error) {
	auction, err := s.auctions.GetByID(ctx, in.AuctionID)
	if errors.Is(err, auctionrepo.ErrNotFound) {
		auction = nil
	} else if err != nil {
		return nil, err
	}

	var ledger []*entity.Bid
	if auction != nil {
		if ledger, err = s.bids.ListByAuction(ctx, in.AuctionID); err != nil {
			return nil, err
		}
	}

	supplier, err := s.identify(ctx, in)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC().Truncate(time.Microsecond)
	history := make([]*entity.Bid, 0, len(ledger))
	for _, b := range ledger {
		if b.SupplierID == in.SupplierID {
			history = append(history, b)
		}
	}
	if err := bidding.Validate(auction, supplier, history, in.Amount, now); err != nil {
		return nil, err
	}

	bid := &entity.Bid{
		ID:         uuid.NewString(),
		AuctionID:  in.AuctionID,
		SupplierID: in.SupplierID,
		Amount:     in.Amount,
		Seq:        1,
		CreatedAt:  now,
	}
	if last := bidding.LatestBid(ledger); last != nil {
		bid.Seq = maxSeq(ledger) + 1
		if last.CreatedAt.After(now) {
			bid.CreatedAt = last.CreatedAt
		}
	}

	ranking := bidding.Rank(append(ledger, bid))
	if err := s.bids.AppendRanked(ctx, bid, ranking); err != nil {
		return nil, err
	}
	if standing, ok := bidding.Standing(ranking, bid.SupplierID); ok {
		bid.Rank = standing.Rank
	}
	return &Result{Bid: bid, Ranking: ranking}, nil
}

func (s *Service) identify(ctx context.Context, in SubmitInput) (bidding.Supplier, error) {
	supplier := bidding.Supplier{ID: in.SupplierID, Email: in.SupplierEmail}
	if supplier.Email != "" || s.participants == nil {
		return supplier, nil
	}
	p, err := s.participants.GetByID(ctx, in.SupplierID)
	if errors.Is(err, participantrepo.ErrNotFound) {
		return supplier, nil
	}
	if err != nil {
		return supplier, err
	}
	supplier.Email = p.Email
	return supplier, nil
}

func (s *Service) submitError(ctx context.Context, span trace.Span, err error) error {
	var rejection *bidding.Rejection
	if errors.As(err, &rejection) {
		s.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", string(rejection.Reason))))
		span.SetAttributes(attribute.String("bid.rejection", string(rejection.Reason)))
		if rejection.Reason == bidding.ReasonNotFound {
			return errorbank.NotFound(rejection.Message, errorbank.WithCode(string(rejection.Reason)))
		}
		return errorbank.Unprocessable(rejection.Message, errorbank.WithCode(string(rejection.Reason)))
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, "submit failed")
	if errors.Is(err, repo.ErrSequenceTaken) {
		return errorbank.Unavailable("auction is busy, retry the bid", errorbank.WithCode(CodeConcurrentBid), errorbank.WithCause(err))
	}
	return storageError("failed to record bid", err)
}

// afterAccept refreshes the ranking snapshot and fans the ranking out. It
// runs while the auction lock is still held.
func (s *Service) afterAccept(ctx context.Context, result *Result) {
	auctionID := result.Bid.AuctionID

	if err := cache.SetJSON(ctx, s.cache, cache.RankingKey(auctionID), result.Ranking, s.cacheTTL); err != nil {
		s.logger.Warn("ranking cache write failed", zap.String("auction_id", auctionID), zap.Error(err))
	}

	ev, err := broadcast.NewEvent(broadcast.KindUpdateBids, auctionID, dto.FromBids(result.Ranking))
	if err == nil {
		err = s.publisher.Publish(ctx, ev)
	}
	if err != nil {
		s.logger.Warn("broadcast ranking failed", zap.String("auction_id", auctionID), zap.Error(err))
	}

	if s.events != nil {
		if err := messaging.PublishEvent(ctx, s.events, messaging.EventBidAccepted, auctionID, result.Bid.CreatedAt, dto.FromBid(result.Bid)); err != nil {
			s.logger.Error("publish bid event", zap.String("auction_id", auctionID), zap.Error(err))
		}
	}
}

// Ranking returns the auction's current ranking, from the snapshot cache
// when present.
func (s *Service) Ranking(ctx context.Context, auctionID string) ([]*entity.Bid, error) {
	auctionID = strings.TrimSpace(auctionID)
	if auctionID == "" {
		return nil, errorbank.BadRequest("auctionId is required", errorbank.WithCode("missing_fields"))
	}
	ctx, span := serviceTracer.Start(ctx, "BidService.Ranking", trace.WithAttributes(attribute.String("auction.id", auctionID)))
	defer span.End()

	key := cache.RankingKey(auctionID)
	var cached []*entity.Bid
	err := cache.GetJSON(ctx, s.cache, key, &cached)
	if err == nil {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return cached, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("ranking cache read failed", zap.String("auction_id", auctionID), zap.Error(err))
	}

	// hold the lock so a concurrent bid cannot be overwritten by this snapshot
	unlock := s.locks.Lock(auctionID)
	defer unlock()

	if _, err := s.auctions.GetByID(ctx, auctionID); err != nil {
		if errors.Is(err, auctionrepo.ErrNotFound) {
			return nil, errorbank.NotFound("auction not found", errorbank.WithCode(string(bidding.ReasonNotFound)))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, storageError("failed to load auction", err)
	}
	ranking, err := s.bids.Ranked(ctx, auctionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, storageError("failed to load ranking", err)
	}
	if err := cache.SetJSON(ctx, s.cache, key, ranking, s.cacheTTL); err != nil {
		s.logger.Warn("ranking cache write failed", zap.String("auction_id", auctionID), zap.Error(err))
	}
	return ranking, nil
}

// SupplierBid returns the supplier's live bid with its rank and the number
// of suppliers currently ranked.
func (s *Service) SupplierBid(ctx context.Context, auctionID, supplierID string) (*Standing, error) {
	if strings.TrimSpace(supplierID) == "" {
		return nil, errorbank.BadRequest("supplierId is required", errorbank.WithCode("missing_fields"))
	}
	ranking, err := s.Ranking(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	standing := &Standing{TotalBidders: len(ranking)}
	if b, ok := bidding.Standing(ranking, strings.TrimSpace(supplierID)); ok {
		standing.Bid = b
	}
	return standing, nil
}

func maxSeq(ledger []*entity.Bid) int64 {
	var seq int64
	for _, b := range ledger {
		if b.Seq > seq {
			seq = b.Seq
		}
	}
	return seq
}

func storageError(message string, err error) error {
	if database.IsTransient(err) {
		return errorbank.Unavailable(message, errorbank.WithCode("storage_unavailable"), errorbank.WithCause(err))
	}
	return errorbank.Internal(message, errorbank.WithCause(err))
}
