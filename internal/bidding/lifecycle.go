package bidding

import (
	"time"

	"github.com/Additional-Code/auctionroom/internal/entity"
)

// StatusAt returns the effective status of the auction at now. An auction is
// closed once explicitly terminated or once now reaches its end time.
func StatusAt(auction *entity.Auction, now time.Time) string {
	if auction == nil {
		return entity.AuctionStatusClosed
	}
	if auction.Status == entity.AuctionStatusClosed || !now.Before(auction.EndTime) {
		return entity.AuctionStatusClosed
	}
	return entity.AuctionStatusActive
}

// IsOpen reports whether bids may be placed at now.
func IsOpen(auction *entity.Auction, now time.Time) bool {
	return StatusAt(auction, now) == entity.AuctionStatusActive
}

// ExtendedEnd computes the end time after extending by extra at now. The end
// time never moves backwards.
func ExtendedEnd(auction *entity.Auction, extra time.Duration, now time.Time) time.Time {
	candidate := now.Add(extra)
	if candidate.After(auction.EndTime) {
		return candidate
	}
	return auction.EndTime
}
