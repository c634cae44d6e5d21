package dto

import "time"

// CreateAuctionRequest is the payload of POST /auctions.
type CreateAuctionRequest struct {
	Title             string   `json:"title" validate:"required,max=200"`
	Description       string   `json:"description" validate:"max=2000"`
	BuyerID           string   `json:"buyerId" validate:"required"`
	DurationMinutes   int      `json:"durationMinutes" validate:"required,min=1"`
	MinDecrementValue float64  `json:"minDecrementValue" validate:"required,gt=0"`
	InvitedSuppliers  []string `json:"invitedSuppliers" validate:"required,min=1,dive,required,email"`
}

// ExtendAuctionRequest is the payload of POST /auctions/:id/extend.
type ExtendAuctionRequest struct {
	ExtraMinutes int `json:"extraMinutes" validate:"required,min=1"`
}

// CloseAuctionRequest is the payload of POST /auctions/:id/close.
type CloseAuctionRequest struct {
	BuyerID string `json:"buyerId" validate:"required"`
}

// InvitedAuctionsRequest selects the auctions a supplier email was invited to.
type InvitedAuctionsRequest struct {
	SupplierEmail string `json:"supplierEmail" query:"supplierEmail" validate:"required,email"`
}

// InviteResponse describes one invited supplier.
type InviteResponse struct {
	Email      string  `json:"email"`
	SupplierID *string `json:"supplierId"`
}

// AuctionResponse is the external representation of an auction. Status is
// the effective status at read time.
type AuctionResponse struct {
	ID                string           `json:"id"`
	Title             string           `json:"title"`
	Description       string           `json:"description,omitempty"`
	BuyerID           string           `json:"buyerId"`
	StartTime         time.Time        `json:"startTime"`
	EndTime           time.Time        `json:"endTime"`
	DurationMinutes   int              `json:"durationMinutes"`
	MinDecrementValue float64          `json:"minDecrementValue"`
	Status            string           `json:"status"`
	InvitedSuppliers  []InviteResponse `json:"invitedSuppliers"`
	CreatedAt         time.Time        `json:"createdAt"`
}

// AuctionExtendedPayload is pushed to an auction room after an extension.
type AuctionExtendedPayload struct {
	AuctionID  string          `json:"auctionId"`
	NewEndTime time.Time       `json:"newEndTime"`
	Auction    AuctionResponse `json:"auction"`
}
