package dto

import "time"

// SubmitBidRequest is the payload of POST /bids. Amount is a pointer so a
// missing amount is distinguishable from a zero one.
type SubmitBidRequest struct {
	AuctionID     string   `json:"auctionId" validate:"required"`
	SupplierID    string   `json:"supplierId" validate:"required"`
	SupplierEmail string   `json:"supplierEmail" validate:"omitempty,email"`
	Amount        *float64 `json:"amount" validate:"required"`
}

// SupplierBidRequest is the query of GET /bids.
type SupplierBidRequest struct {
	AuctionID  string `query:"auctionId" validate:"required"`
	SupplierID string `query:"supplierId" validate:"required"`
}

// BidResponse is one ledger entry, and one ranking row when Rank is set.
type BidResponse struct {
	ID         string    `json:"id"`
	AuctionID  string    `json:"auctionId"`
	SupplierID string    `json:"supplierId"`
	Amount     float64   `json:"amount"`
	Rank       *int      `json:"rank"`
	CreatedAt  time.Time `json:"createdAt"`
}

// SubmitBidResponse answers an accepted bid with the ranking it produced.
type SubmitBidResponse struct {
	Bid            BidResponse   `json:"bid"`
	CurrentRanking []BidResponse `json:"currentRanking"`
}

// SupplierBidResponse is the supplier's own standing in an auction.
type SupplierBidResponse struct {
	Bid          *BidResponse `json:"bid"`
	Rank         *int         `json:"rank"`
	TotalBidders int          `json:"totalBidders"`
}
