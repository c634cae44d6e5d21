package bidding

import (
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Additional-Code/auctionroom/internal/entity"
)

// Supplier is the bidding identity. Email may be empty when the supplier is
// only known by id.
type Supplier struct {
	ID    string
	Email string
}

// Validate decides whether supplier may bid amount at now, given the
// supplier's own bid history in the auction. It returns nil on acceptance and
// a *Rejection otherwise; the first failing rule wins.
func Validate(auction *entity.Auction, supplier Supplier, history []*entity.Bid, amount float64, now time.Time) error {
	if auction == nil {
		return reject(ReasonNotFound, "auction not found")
	}
	if !IsOpen(auction, now) {
		return reject(ReasonAuctionClosed, "auction has ended")
	}
	if !IsInvited(auction.Invites, supplier) {
		return reject(ReasonNotInvited, "supplier is not invited to this auction")
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return reject(ReasonInvalidAmount, "bid amount must be a finite number")
	}

	// Amounts compare as the shortest decimal of the stored float, unrounded,
	// so an accepted bid always satisfies the step against the ledger value.
	proposed := decimal.NewFromFloat(amount)
	last := LatestBid(history)
	if last == nil {
		if !proposed.IsPositive() {
			return reject(ReasonInvalidAmount, "initial bid amount must be greater than 0")
		}
		return nil
	}

	previous := decimal.NewFromFloat(last.Amount)
	if proposed.GreaterThanOrEqual(previous) {
		return reject(ReasonNotLowerThanPrevious, "new bid must be lower than your previous bid (%s)", previous.String())
	}

	step := decimal.NewFromFloat(auction.MinDecrementValue)
	if previous.Sub(proposed).LessThan(step) {
		return reject(ReasonDecrementTooSmall, "bid must be at least %s lower than your previous bid (max allowed: %s)",
			step.String(), previous.Sub(step).String())
	}
	if !proposed.IsPositive() {
		return reject(ReasonInvalidAmount, "bid amount must be greater than 0")
	}
	return nil
}

// IsInvited reports whether any invite matches the supplier by id or email.
func IsInvited(invites []*entity.Invite, supplier Supplier) bool {
	for _, inv := range invites {
		if inv == nil {
			continue
		}
		if inv.Resolved() && supplier.ID != "" && *inv.SupplierID == supplier.ID {
			return true
		}
		if supplier.Email != "" && strings.EqualFold(inv.Email, supplier.Email) {
			return true
		}
	}
	return false
}

// LatestBid returns the most recent bid by createdAt, then sequence.
func LatestBid(history []*entity.Bid) *entity.Bid {
	var latest *entity.Bid
	for _, b := range history {
		if b == nil {
			continue
		}
		if latest == nil || newer(b, latest) {
			latest = b
		}
	}
	return latest
}

func newer(a, b *entity.Bid) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.Seq > b.Seq
}
