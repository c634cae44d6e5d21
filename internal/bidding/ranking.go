package bidding

import (
	"sort"

	"github.com/Additional-Code/auctionroom/internal/entity"
)

// Rank orders the live bids of an auction. Only each supplier's latest bid
// is live; earlier bids are superseded. Lower amounts rank better and ties go
// to the bid placed first. The returned bids are copies with Rank set to
// their 1-based position.
func Rank(bids []*entity.Bid) []*entity.Bid {
	latest := make(map[string]*entity.Bid, len(bids))
	for _, b := range bids {
		if b == nil {
			continue
		}
		if current, ok := latest[b.SupplierID]; !ok || newer(b, current) {
			latest[b.SupplierID] = b
		}
	}

	ranked := make([]*entity.Bid, 0, len(latest))
	for _, b := range latest {
		cp := *b
		ranked = append(ranked, &cp)
	}

	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Amount != b.Amount {
			return a.Amount < b.Amount
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		if a.Seq != b.Seq {
			return a.Seq < b.Seq
		}
		return a.ID < b.ID
	})

	for i, b := range ranked {
		rank := i + 1
		b.Rank = &rank
	}
	return ranked
}

// Standing finds the supplier's entry in a ranking.
func Standing(ranking []*entity.Bid, supplierID string) (*entity.Bid, bool) {
	for _, b := range ranking {
		if b.SupplierID == supplierID {
			return b, true
		}
	}
	return nil, false
}
