package participant

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/auctionroom/internal/clock"
	"github.com/Additional-Code/auctionroom/internal/database"
	"github.com/Additional-Code/auctionroom/internal/entity"
	auctionrepo "github.com/Additional-Code/auctionroom/internal/repository/auction"
	repo "github.com/Additional-Code/auctionroom/internal/repository/participant"
	"github.com/Additional-Code/auctionroom/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/Additional-Code/auctionroom/service/participant")

// Service manages the buyer/supplier directory.
type Service struct {
	repo     *repo.Repository
	auctions *auctionrepo.Repository
	clock    clock.Clock
	logger   *zap.Logger
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Repository *repo.Repository
	Auctions   *auctionrepo.Repository
	Clock      clock.Clock
	Logger     *zap.Logger
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return &Service{
		repo:     p.Repository,
		auctions: p.Auctions,
		clock:    p.Clock,
		logger:   p.Logger,
	}
}

// RegisterInput carries a new directory entry.
type RegisterInput struct {
	Name  string
	Email string
	Role  string
}

// Register adds a participant. Registering a supplier binds every pending
// invite for the email and reports how many were resolved.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*entity.Participant, int64, error) {
	name := strings.TrimSpace(in.Name)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if name == "" || email == "" {
		return nil, 0, errorbank.BadRequest("name and email are required", errorbank.WithCode("missing_fields"))
	}
	if in.Role != entity.RoleBuyer && in.Role != entity.RoleSupplier {
		return nil, 0, errorbank.BadRequest("role must be buyer or supplier", errorbank.WithDetail("role", in.Role))
	}

	ctx, span := serviceTracer.Start(ctx, "ParticipantService.Register", trace.WithAttributes(attribute.String("participant.role", in.Role)))
	defer span.End()

	p := &entity.Participant{
		ID:        uuid.NewString(),
		Name:      name,
		Email:     email,
		Role:      in.Role,
		CreatedAt: s.clock.Now().UTC(),
	}
	if err := s.repo.Create(ctx, p); err != nil {
		if errors.Is(err, repo.ErrDuplicateEmail) {
			return nil, 0, errorbank.Conflict("email already registered", errorbank.WithCode("duplicate_email"))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, 0, storageError("failed to register participant", err)
	}

	if p.Role != entity.RoleSupplier {
		return p, 0, nil
	}
	resolved, err := s.auctions.ResolveInvites(ctx, p.Email, p.ID)
	if err != nil {
		// the participant exists; invites resolve again on the next lookup
		s.logger.Warn("resolve invites failed", zap.String("participant_id", p.ID), zap.Error(err))
		return p, 0, nil
	}
	if resolved > 0 {
		s.logger.Info("invites resolved", zap.String("participant_id", p.ID), zap.Int64("count", resolved))
	}
	return p, resolved, nil
}

// Get returns a participant by id.
func (s *Service) Get(ctx context.Context, id string) (*entity.Participant, error) {
	ctx, span := serviceTracer.Start(ctx, "ParticipantService.Get", trace.WithAttributes(attribute.String("participant.id", id)))
	defer span.End()

	p, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, errorbank.NotFound("participant not found")
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, storageError("failed to load participant", err)
	}
	return p, nil
}

func storageError(message string, err error) error {
	if database.IsTransient(err) {
		return errorbank.Unavailable(message, errorbank.WithCode("storage_unavailable"), errorbank.WithCause(err))
	}
	return errorbank.Internal(message, errorbank.WithCause(err))
}
