package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// Auction status values persisted in the status column. Only an explicit
// termination writes AuctionStatusClosed; expiry is derived from EndTime.
const (
	AuctionStatusActive = "active"
	AuctionStatusClosed = "closed"
)

// Auction represents a reverse auction owned by a buyer.
type Auction struct {
	bun.BaseModel `bun:"table:auctions,alias:a"`

	ID                string    `bun:"id,pk"`
	Title             string    `bun:"title,notnull,unique:auctions_buyer_title"`
	Description       string    `bun:"description"`
	BuyerID           string    `bun:"buyer_id,notnull,unique:auctions_buyer_title"`
	StartTime         time.Time `bun:"start_time,notnull"`
	EndTime           time.Time `bun:"end_time,notnull"`
	DurationMinutes   int       `bun:"duration_minutes,notnull"`
	MinDecrementValue float64   `bun:"min_decrement_value,notnull"`
	Status            string    `bun:"status,notnull"`
	CreatedAt         time.Time `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt         time.Time `bun:"updated_at,nullzero"`

	Invites []*Invite `bun:"rel:has-many,join:id=auction_id"`
}

// Invite grants a supplier identity the right to bid in an auction. SupplierID
// stays nil until the email belongs to a registered participant.
type Invite struct {
	bun.BaseModel `bun:"table:invites,alias:i"`

	ID         int64     `bun:"id,pk,autoincrement"`
	AuctionID  string    `bun:"auction_id,notnull,unique:invites_auction_email"`
	Email      string    `bun:"email,notnull,unique:invites_auction_email"`
	SupplierID *string   `bun:"supplier_id"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
}

// Resolved reports whether the invite is bound to a registered supplier.
func (i *Invite) Resolved() bool {
	return i != nil && i.SupplierID != nil && *i.SupplierID != ""
}
