package auction

import (
	"sort"

	"github.com/ukydev/drivebidrent/internal/models"
)

// outranks orders bids by amount, then recency. The ID comparison only
// keeps the order total when two bids share amount and timestamp.
func outranks(a, b models.Bid) bool {
	if a.BidAmount != b.BidAmount {
		return a.BidAmount > b.BidAmount
	}
	if !a.BidTime.Equal(b.BidTime) {
		return a.BidTime.After(b.BidTime)
	}
	return a.ID.Hex() > b.ID.Hex()
}

// RankBids returns a copy of bids, strongest first.
func RankBids(bids []models.Bid) []models.Bid {
	ranked := make([]models.Bid, len(bids))
	copy(ranked, bids)
	sort.SliceStable(ranked, func(i, j int) bool {
		return outranks(ranked[i], ranked[j])
	})
	return ranked
}

// SelectCurrentBid picks the authoritative bid of a round, if any.
func SelectCurrentBid(bids []models.Bid) (models.Bid, bool) {
	if len(bids) == 0 {
		return models.Bid{}, false
	}
	best := bids[0]
	for _, b := range bids[1:] {
		if outranks(b, best) {
			best = b
		}
	}
	return best, true
}
