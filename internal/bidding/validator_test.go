package bidding

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/peterldowns/testy/check"

	"github.com/Additional-Code/auctionroom/internal/entity"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func newAuction(minDecrement float64) *entity.Auction {
	return &entity.Auction{
		ID:                "auction-1",
		Title:             "Steel pipes",
		BuyerID:           "buyer-1",
		StartTime:         testNow.Add(-time.Hour),
		EndTime:           testNow.Add(time.Hour),
		MinDecrementValue: minDecrement,
		Status:            entity.AuctionStatusActive,
		Invites: []*entity.Invite{
			{AuctionID: "auction-1", Email: "s@example.com", SupplierID: strPtr("supplier-s")},
			{AuctionID: "auction-1", Email: "pending@example.com"},
		},
	}
}

func bidAt(supplier string, amount float64, seq int64) *entity.Bid {
	return &entity.Bid{
		ID:         "bid-" + supplier + "-" + time.Duration(seq).String(),
		AuctionID:  "auction-1",
		SupplierID: supplier,
		Amount:     amount,
		Seq:        seq,
		CreatedAt:  testNow.Add(time.Duration(seq) * time.Second),
	}
}

func reasonOf(err error) Reason {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej.Reason
	}
	return ""
}

func TestValidate_Rules(t *testing.T) {
	supplier := Supplier{ID: "supplier-s"}
	closed := newAuction(100)
	closed.Status = entity.AuctionStatusClosed
	expired := newAuction(100)
	expired.EndTime = testNow

	tests := []struct {
		name     string
		auction  *entity.Auction
		supplier Supplier
		history  []*entity.Bid
		amount   float64
		expected Reason
	}{
		{"missing auction", nil, supplier, nil, 100, ReasonNotFound},
		{"explicitly closed", closed, supplier, nil, 100, ReasonAuctionClosed},
		{"end time reached", expired, supplier, nil, 100, ReasonAuctionClosed},
		{"not invited", newAuction(100), Supplier{ID: "stranger"}, nil, 100, ReasonNotInvited},
		{"invited by email only", newAuction(100), Supplier{ID: "late", Email: "PENDING@example.com"}, nil, 100, ""},
		{"first bid zero", newAuction(100), supplier, nil, 0, ReasonInvalidAmount},
		{"first bid negative", newAuction(100), supplier, nil, -5, ReasonInvalidAmount},
		{"first bid NaN", newAuction(100), supplier, nil, math.NaN(), ReasonInvalidAmount},
		{"first bid positive", newAuction(100), supplier, nil, 1000, ""},
		{"equal to previous", newAuction(100), supplier, []*entity.Bid{bidAt("supplier-s", 1000, 1)}, 1000, ReasonNotLowerThanPrevious},
		{"above previous", newAuction(100), supplier, []*entity.Bid{bidAt("supplier-s", 1000, 1)}, 1200, ReasonNotLowerThanPrevious},
		{"step too small", newAuction(100), supplier, []*entity.Bid{bidAt("supplier-s", 1000, 1)}, 950, ReasonDecrementTooSmall},
		{"exact step", newAuction(100), supplier, []*entity.Bid{bidAt("supplier-s", 1000, 1)}, 900, ""},
		{"step missed by a fraction", newAuction(100), supplier, []*entity.Bid{bidAt("supplier-s", 1000, 1)}, 900.00004, ReasonDecrementTooSmall},
		{"tiny first bid", newAuction(100), supplier, nil, 0.00001, ""},
		{"fractional step", newAuction(0.1), supplier, []*entity.Bid{bidAt("supplier-s", 0.3, 1)}, 0.2, ""},
		{"below zero after step", newAuction(100), supplier, []*entity.Bid{bidAt("supplier-s", 50, 1)}, -60, ReasonInvalidAmount},
		{"compares against latest bid", newAuction(100), supplier, []*entity.Bid{bidAt("supplier-s", 1000, 1), bidAt("supplier-s", 900, 2)}, 850, ReasonDecrementTooSmall},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.auction, tt.supplier, tt.history, tt.amount, testNow)
			if tt.expected == "" {
				check.NoError(t, err)
				return
			}
			check.Error(t, err)
			check.Equal(t, tt.expected, reasonOf(err))
		})
	}
}

func TestValidate_ClosedWinsOverAmount(t *testing.T) {
	auction := newAuction(100)
	auction.EndTime = testNow.Add(-time.Minute)
	for _, amount := range []float64{-1, 0, 1, 1e9} {
		err := Validate(auction, Supplier{ID: "supplier-s"}, nil, amount, testNow)
		check.Equal(t, ReasonAuctionClosed, reasonOf(err))
	}
}

func TestValidate_DecrementScenario(t *testing.T) {
	auction := newAuction(100)
	supplier := Supplier{ID: "supplier-s"}
	var history []*entity.Bid

	steps := []struct {
		amount   float64
		expected Reason
	}{
		{1000, ""},
		{950, ReasonDecrementTooSmall},
		{900, ""},
		{900, ReasonNotLowerThanPrevious},
	}

	for i, step := range steps {
		err := Validate(auction, supplier, history, step.amount, testNow)
		check.Equal(t, step.expected, reasonOf(err))
		if err == nil {
			history = append(history, bidAt("supplier-s", step.amount, int64(i+1)))
		}
	}
	check.Equal(t, 2, len(history))
}

func TestStatusAt(t *testing.T) {
	auction := newAuction(1)
	check.Equal(t, entity.AuctionStatusActive, StatusAt(auction, testNow))
	check.Equal(t, entity.AuctionStatusClosed, StatusAt(auction, auction.EndTime))
	check.Equal(t, entity.AuctionStatusClosed, StatusAt(auction, auction.EndTime.Add(time.Second)))
	check.Equal(t, entity.AuctionStatusClosed, StatusAt(nil, testNow))

	auction.Status = entity.AuctionStatusClosed
	check.False(t, IsOpen(auction, testNow))
}

func TestExtendedEnd(t *testing.T) {
	auction := newAuction(1)
	auction.EndTime = testNow.Add(time.Minute)

	// extending by 5 minutes one minute before the end lands 4 minutes past it
	check.Equal(t, testNow.Add(5*time.Minute), ExtendedEnd(auction, 5*time.Minute, testNow))

	auction.EndTime = testNow.Add(time.Hour)
	check.Equal(t, auction.EndTime, ExtendedEnd(auction, 5*time.Minute, testNow))
}
