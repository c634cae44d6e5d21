package dto

import "github.com/Additional-Code/auctionroom/internal/entity"

// FromAuction maps an auction entity; the caller supplies the status to show.
func FromAuction(a *entity.Auction, status string) AuctionResponse {
	out := AuctionResponse{
		ID:                a.ID,
		Title:             a.Title,
		Description:       a.Description,
		BuyerID:           a.BuyerID,
		StartTime:         a.StartTime,
		EndTime:           a.EndTime,
		DurationMinutes:   a.DurationMinutes,
		MinDecrementValue: a.MinDecrementValue,
		Status:            status,
		InvitedSuppliers:  make([]InviteResponse, 0, len(a.Invites)),
		CreatedAt:         a.CreatedAt,
	}
	for _, inv := range a.Invites {
		out.InvitedSuppliers = append(out.InvitedSuppliers, InviteResponse{Email: inv.Email, SupplierID: inv.SupplierID})
	}
	return out
}

func FromBid(b *entity.Bid) BidResponse {
	return BidResponse{
		ID:         b.ID,
		AuctionID:  b.AuctionID,
		SupplierID: b.SupplierID,
		Amount:     b.Amount,
		Rank:       b.Rank,
		CreatedAt:  b.CreatedAt,
	}
}

func FromBids(bids []*entity.Bid) []BidResponse {
	out := make([]BidResponse, 0, len(bids))
	for _, b := range bids {
		out = append(out, FromBid(b))
	}
	return out
}

func FromParticipant(p *entity.Participant) ParticipantResponse {
	return ParticipantResponse{
		ID:        p.ID,
		Name:      p.Name,
		Email:     p.Email,
		Role:      p.Role,
		CreatedAt: p.CreatedAt,
	}
}
