package auction

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/auctionroom/internal/bidding"
	"github.com/Additional-Code/auctionroom/internal/broadcast"
	"github.com/Additional-Code/auctionroom/internal/clock"
	"github.com/Additional-Code/auctionroom/internal/database"
	"github.com/Additional-Code/auctionroom/internal/dto"
	"github.com/Additional-Code/auctionroom/internal/entity"
	"github.com/Additional-Code/auctionroom/internal/locker"
	"github.com/Additional-Code/auctionroom/internal/messaging"
	repo "github.com/Additional-Code/auctionroom/internal/repository/auction"
	participantrepo "github.com/Additional-Code/auctionroom/internal/repository/participant"
	"github.com/Additional-Code/auctionroom/pkg/errorbank"
)

var (
	serviceTracer = otel.Tracer("github.com/Additional-Code/auctionroom/service/auction")
	validate      = validator.New()
)

// Reason codes returned alongside auction errors.
const (
	CodeMissingFields  = "missing_fields"
	CodeDuplicateTitle = "duplicate_title"
	CodeNotOwner       = "not_owner"
)

// Service encapsulates auction creation, lookup and lifecycle changes.
type Service struct {
	repo         *repo.Repository
	participants *participantrepo.Repository
	locks        *locker.Keyed
	clock        clock.Clock
	publisher    broadcast.Publisher
	events       messaging.Client
	logger       *zap.Logger
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Repository   *repo.Repository
	Participants *participantrepo.Repository
	Locks        *locker.Keyed
	Clock        clock.Clock
	Publisher    broadcast.Publisher
	Events       messaging.Client
	Logger       *zap.Logger
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return &Service{
		repo:         p.Repository,
		participants: p.Participants,
		locks:        p.Locks,
		clock:        p.Clock,
		publisher:    p.Publisher,
		events:       p.Events,
		logger:       p.Logger,
	}
}

// CreateInput carries a new auction.
type CreateInput struct {
	Title             string
	Description       string
	BuyerID           string
	DurationMinutes   int
	MinDecrementValue float64
	InvitedSuppliers  []string
}

// Create opens a new auction starting now.
func (s *Service) Create(ctx context.Context, in CreateInput) (*entity.Auction, error) {
	title := strings.TrimSpace(in.Title)
	buyerID := strings.TrimSpace(in.BuyerID)
	if title == "" || buyerID == "" || in.DurationMinutes <= 0 {
		return nil, errorbank.BadRequest("title, buyerId and durationMinutes are required", errorbank.WithCode(CodeMissingFields))
	}
	if in.MinDecrementValue <= 0 || math.IsNaN(in.MinDecrementValue) || math.IsInf(in.MinDecrementValue, 0) {
		return nil, errorbank.BadRequest("minDecrementValue must be greater than zero", errorbank.WithCode(CodeMissingFields))
	}
	emails, err := normalizeEmails(in.InvitedSuppliers)
	if err != nil {
		return nil, err
	}
	if len(emails) == 0 {
		return nil, errorbank.BadRequest("at least one supplier email is required", errorbank.WithCode(CodeMissingFields))
	}

	ctx, span := serviceTracer.Start(ctx, "AuctionService.Create", trace.WithAttributes(
		attribute.String("auction.buyer_id", buyerID),
		attribute.Int("auction.invites", len(emails)),
	))
	defer span.End()

	exists, err := s.repo.ExistsByTitle(ctx, buyerID, title)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, storageError("failed to check auction title", err)
	}
	if exists {
		return nil, duplicateTitle(title)
	}

	now := s.clock.Now().UTC()
	auction := &entity.Auction{
		ID:                uuid.NewString(),
		Title:             title,
		Description:       strings.TrimSpace(in.Description),
		BuyerID:           buyerID,
		StartTime:         now,
		EndTime:           now.Add(time.Duration(in.DurationMinutes) * time.Minute),
		DurationMinutes:   in.DurationMinutes,
		MinDecrementValue: in.MinDecrementValue,
		Status:            entity.AuctionStatusActive,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	for _, email := range emails {
		auction.Invites = append(auction.Invites, &entity.Invite{
			Email:      email,
			SupplierID: s.lookupSupplier(ctx, email),
			CreatedAt:  now,
		})
	}

	if err := s.repo.Create(ctx, auction); err != nil {
		if errors.Is(err, repo.ErrDuplicateTitle) {
			return nil, duplicateTitle(title)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, storageError("failed to create auction", err)
	}

	s.emit(ctx, messaging.EventAuctionCreated, auction)
	return auction, nil
}

// Get returns an auction with its effective status.
func (s *Service) Get(ctx context.Context, id string) (*entity.Auction, error) {
	ctx, span := serviceTracer.Start(ctx, "AuctionService.Get", trace.WithAttributes(attribute.String("auction.id", id)))
	defer span.End()

	auction, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.present(auction), nil
}

// ListByBuyer returns the buyer's auctions with their effective status.
func (s *Service) ListByBuyer(ctx context.Context, buyerID string) ([]*entity.Auction, error) {
	buyerID = strings.TrimSpace(buyerID)
	if buyerID == "" {
		return nil, errorbank.BadRequest("buyerId is required", errorbank.WithCode(CodeMissingFields))
	}
	ctx, span := serviceTracer.Start(ctx, "AuctionService.ListByBuyer")
	defer span.End()

	auctions, err := s.repo.ListByBuyer(ctx, buyerID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, storageError("failed to list auctions", err)
	}
	return s.presentAll(auctions), nil
}

// ListInvited returns the auctions the supplier email was invited to.
func (s *Service) ListInvited(ctx context.Context, email string) ([]*entity.Auction, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, errorbank.BadRequest("supplierEmail is required", errorbank.WithCode(CodeMissingFields))
	}
	ctx, span := serviceTracer.Start(ctx, "AuctionService.ListInvited")
	defer span.End()

	auctions, err := s.repo.ListByInviteEmail(ctx, email)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, storageError("failed to list invited auctions", err)
	}
	return s.presentAll(auctions), nil
}

// Extend pushes the end time to max(endTime, now+extra) and notifies the
// auction room. A closed auction is never re-opened.
func (s *Service) Extend(ctx context.Context, id string, extraMinutes int) (*entity.Auction, error) {
	if extraMinutes < 1 {
		return nil, errorbank.BadRequest("extraMinutes must be at least 1", errorbank.WithCode(CodeMissingFields))
	}
	ctx, span := serviceTracer.Start(ctx, "AuctionService.Extend", trace.WithAttributes(
		attribute.String("auction.id", id),
		attribute.Int("auction.extra_minutes", extraMinutes),
	))
	defer span.End()

	unlock := s.locks.Lock(id)
	defer unlock()

	auction, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now().UTC()
	if !bidding.IsOpen(auction, now) {
		return nil, errorbank.Unprocessable("auction is closed", errorbank.WithCode(string(bidding.ReasonAuctionClosed)))
	}

	newEnd := bidding.ExtendedEnd(auction, time.Duration(extraMinutes)*time.Minute, now)
	if newEnd.After(auction.EndTime) {
		if err := s.repo.UpdateEndTime(ctx, id, newEnd, now); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "repository error")
			return nil, storageError("failed to extend auction", err)
		}
		auction.EndTime = newEnd
		auction.UpdatedAt = now
	}
	s.present(auction)

	ev, err := broadcast.NewEvent(broadcast.KindAuctionExtended, id, dto.AuctionExtendedPayload{
		AuctionID:  id,
		NewEndTime: auction.EndTime,
		Auction:    dto.FromAuction(auction, auction.Status),
	})
	if err == nil {
		err = s.publisher.Publish(ctx, ev)
	}
	if err != nil {
		s.logger.Warn("broadcast auction extended failed", zap.String("auction_id", id), zap.Error(err))
	}

	s.emit(ctx, messaging.EventAuctionExtended, auction)
	return auction, nil
}

// Close terminates the auction on behalf of its owner. Closing a closed
// auction is a no-op.
func (s *Service) Close(ctx context.Context, id, buyerID string) (*entity.Auction, error) {
	ctx, span := serviceTracer.Start(ctx, "AuctionService.Close", trace.WithAttributes(attribute.String("auction.id", id)))
	defer span.End()

	unlock := s.locks.Lock(id)
	defer unlock()

	auction, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if auction.BuyerID != buyerID {
		return nil, errorbank.Unprocessable("only the owning buyer may close the auction", errorbank.WithCode(CodeNotOwner))
	}
	if auction.Status == entity.AuctionStatusClosed {
		return s.present(auction), nil
	}

	now := s.clock.Now().UTC()
	if err := s.repo.UpdateStatus(ctx, id, entity.AuctionStatusClosed, now); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, storageError("failed to close auction", err)
	}
	auction.Status = entity.AuctionStatusClosed
	auction.UpdatedAt = now

	s.emit(ctx, messaging.EventAuctionClosed, auction)
	return auction, nil
}

func (s *Service) load(ctx context.Context, id string) (*entity.Auction, error) {
	auction, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, errorbank.NotFound("auction not found", errorbank.WithCode(string(bidding.ReasonNotFound)))
	}
	if err != nil {
		return nil, storageError("failed to load auction", err)
	}
	return auction, nil
}

// present replaces the stored status with the effective one.
func (s *Service) present(auction *entity.Auction) *entity.Auction {
	auction.Status = bidding.StatusAt(auction, s.clock.Now())
	return auction
}

func (s *Service) presentAll(auctions []*entity.Auction) []*entity.Auction {
	for _, a := range auctions {
		s.present(a)
	}
	return auctions
}

func (s *Service) lookupSupplier(ctx context.Context, email string) *string {
	if s.participants == nil {
		return nil
	}
	p, err := s.participants.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, participantrepo.ErrNotFound) {
			s.logger.Warn("supplier lookup failed", zap.Error(err))
		}
		return nil
	}
	if p.Role != entity.RoleSupplier {
		return nil
	}
	id := p.ID
	return &id
}

func (s *Service) emit(ctx context.Context, eventType string, auction *entity.Auction) {
	if s.events == nil {
		return
	}
	payload := dto.FromAuction(auction, auction.Status)
	if err := messaging.PublishEvent(ctx, s.events, eventType, auction.ID, s.clock.Now(), payload); err != nil {
		s.logger.Error("publish auction event", zap.String("event", eventType), zap.String("auction_id", auction.ID), zap.Error(err))
	}
}

func normalizeEmails(raw []string) ([]string, error) {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, e := range raw {
		email := strings.ToLower(strings.TrimSpace(e))
		if email == "" {
			continue
		}
		if err := validate.Var(email, "email"); err != nil {
			return nil, errorbank.BadRequest("invalid supplier email", errorbank.WithDetail("email", e))
		}
		if _, dup := seen[email]; dup {
			continue
		}
		seen[email] = struct{}{}
		out = append(out, email)
	}
	return out, nil
}

func duplicateTitle(title string) error {
	return errorbank.Conflict("auction title already exists", errorbank.WithCode(CodeDuplicateTitle), errorbank.WithDetail("title", title))
}

func storageError(message string, err error) error {
	if database.IsTransient(err) {
		return errorbank.Unavailable(message, errorbank.WithCode("storage_unavailable"), errorbank.WithCause(err))
	}
	return errorbank.Internal(message, errorbank.WithCause(err))
}
