package seeder

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/auctionroom/internal/entity"
	participantrepo "github.com/Additional-Code/auctionroom/internal/repository/participant"
	auctionsvc "github.com/Additional-Code/auctionroom/internal/service/auction"
	participantsvc "github.com/Additional-Code/auctionroom/internal/service/participant"
	"github.com/Additional-Code/auctionroom/pkg/errorbank"
)

// Module provides the Seeder to Fx.
var Module = fx.Provide(New)

// Demo fixtures.
const (
	DemoBuyerEmail   = "buyer@demo.local"
	DemoAuctionTitle = "Demo: 500 steel brackets"
)

// DemoSupplierEmails lists the suppliers invited to the demo auction.
var DemoSupplierEmails = []string{"supplier-a@demo.local", "supplier-b@demo.local", "supplier-c@demo.local"}

// Seeder loads demo data through the domain services, so seeded rows obey
// the same rules as API traffic. Reruns are no-ops.
type Seeder struct {
	participants *participantsvc.Service
	directory    *participantrepo.Repository
	auctions     *auctionsvc.Service
	logger       *zap.Logger
}

// Params defines dependencies for constructing Seeder.
type Params struct {
	fx.In

	Participants *participantsvc.Service
	Directory    *participantrepo.Repository
	Auctions     *auctionsvc.Service
	Logger       *zap.Logger
}

// New constructs a Seeder.
func New(p Params) *Seeder {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Seeder{
		participants: p.Participants,
		directory:    p.Directory,
		auctions:     p.Auctions,
		logger:       logger,
	}
}

// Demo seeds a buyer, three suppliers and an open auction inviting them.
func (s *Seeder) Demo(ctx context.Context) error {
	buyer, err := s.participant(ctx, "Demo Buyer", DemoBuyerEmail, entity.RoleBuyer)
	if err != nil {
		return err
	}
	for i, email := range DemoSupplierEmails {
		if _, err := s.participant(ctx, fmt.Sprintf("Demo Supplier %c", 'A'+i), email, entity.RoleSupplier); err != nil {
			return err
		}
	}

	auction, err := s.auctions.Create(ctx, auctionsvc.CreateInput{
		Title:             DemoAuctionTitle,
		Description:       "Reverse auction seeded for local development.",
		BuyerID:           buyer.ID,
		DurationMinutes:   24 * 60,
		MinDecrementValue: 5,
		InvitedSuppliers:  DemoSupplierEmails,
	})
	switch {
	case errorbank.IsKind(err, errorbank.KindConflict):
		s.logger.Info("demo auction already seeded", zap.String("buyer_id", buyer.ID))
		return nil
	case err != nil:
		return fmt.Errorf("seed demo auction: %w", err)
	}

	s.logger.Info("seeded demo auction",
		zap.String("auction_id", auction.ID),
		zap.String("buyer_id", buyer.ID),
		zap.Int("invites", len(auction.Invites)),
	)
	return nil
}

func (s *Seeder) participant(ctx context.Context, name, email, role string) (*entity.Participant, error) {
	p, _, err := s.participants.Register(ctx, participantsvc.RegisterInput{Name: name, Email: email, Role: role})
	if err == nil {
		return p, nil
	}
	if !errorbank.IsKind(err, errorbank.KindConflict) {
		return nil, fmt.Errorf("seed participant %s: %w", email, err)
	}
	existing, err := s.directory.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, participantrepo.ErrNotFound) {
			return nil, fmt.Errorf("participant %s reported as duplicate but not found", email)
		}
		return nil, err
	}
	return existing, nil
}
