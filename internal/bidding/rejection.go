package bidding

import "fmt"

// Reason identifies why a bid was rejected.
type Reason string

const (
	ReasonNotFound             Reason = "not_found"
	ReasonAuctionClosed        Reason = "auction_closed"
	ReasonNotInvited           Reason = "not_invited"
	ReasonInvalidAmount        Reason = "invalid_amount"
	ReasonNotLowerThanPrevious Reason = "not_lower_than_previous"
	ReasonDecrementTooSmall    Reason = "decrement_too_small"
)

// Rejection is returned by Validate when a bid breaks an auction rule.
type Rejection struct {
	Reason  Reason
	Message string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Reason, r.Message)
}

func reject(reason Reason, format string, args ...any) *Rejection {
	return &Rejection{Reason: reason, Message: fmt.Sprintf(format, args...)}
}
