package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// Bid is an append-only ledger row. Rank is a cached value recomputed after
// every accepted bid; superseded bids carry a nil rank.
type Bid struct {
	bun.BaseModel `bun:"table:bids,alias:b"`

	ID         string    `bun:"id,pk"`
	AuctionID  string    `bun:"auction_id,notnull,unique:bids_auction_seq"`
	SupplierID string    `bun:"supplier_id,notnull"`
	Amount     float64   `bun:"amount,notnull"`
	Seq        int64     `bun:"seq,notnull,unique:bids_auction_seq"`
	Rank       *int      `bun:"current_rank"`
	CreatedAt  time.Time `bun:"created_at,notnull"`
}

// RankValue returns the cached rank or zero when the bid is unranked.
func (b *Bid) RankValue() int {
	if b == nil || b.Rank == nil {
		return 0
	}
	return *b.Rank
}
