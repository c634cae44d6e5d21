package participant

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/auctionroom/internal/database"
	"github.com/Additional-Code/auctionroom/internal/entity"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/auctionroom/repository/participant")

var (
	// ErrNotFound is returned when a participant is missing.
	ErrNotFound = errors.New("participant not found")
	// ErrDuplicateEmail is returned when the email is already registered.
	ErrDuplicateEmail = errors.New("participant email already registered")
)

// Repository is the buyer/supplier directory.
type Repository struct {
	writer *bun.DB
	reader *bun.DB
}

// NewRepository wires a directory backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{writer: conns.Writer, reader: conns.Reader}
}

// Create registers a participant. Emails are stored lower-cased.
func (r *Repository) Create(ctx context.Context, p *entity.Participant) error {
	if p == nil {
		return errors.New("nil participant")
	}
	ctx, span := repoTracer.Start(ctx, "ParticipantRepository.Create", trace.WithAttributes(attribute.String("participant.role", p.Role)))
	defer span.End()

	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	_, err := r.writer.NewInsert().Model(p).Exec(ctx)
	if database.IsUniqueViolation(err) {
		span.SetStatus(codes.Error, "duplicate email")
		return ErrDuplicateEmail
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
	}
	return err
}

// GetByID fetches a participant by id.
func (r *Repository) GetByID(ctx context.Context, id string) (*entity.Participant, error) {
	ctx, span := repoTracer.Start(ctx, "ParticipantRepository.GetByID", trace.WithAttributes(attribute.String("participant.id", id)))
	defer span.End()

	return r.scanOne(ctx, span, "id = ?", id)
}

// GetByEmail fetches a participant by email, case-insensitively.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*entity.Participant, error) {
	ctx, span := repoTracer.Start(ctx, "ParticipantRepository.GetByEmail")
	defer span.End()

	return r.scanOne(ctx, span, "email = ?", strings.ToLower(strings.TrimSpace(email)))
}

func (r *Repository) scanOne(ctx context.Context, span trace.Span, where string, arg any) (*entity.Participant, error) {
	p := new(entity.Participant)
	err := r.reader.NewSelect().Model(p).Where(where, arg).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return p, nil
}
