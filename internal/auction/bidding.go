package auction

import (
	"context"
	"errors"
	"fmt"
	"math"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/drivebidrent/internal/db"
	"github.com/ukydev/drivebidrent/internal/metrics"
	"github.com/ukydev/drivebidrent/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PlaceBid records a buyer's bid on an ongoing auction and re-derives the
// current bid of the active round before returning.
func (s *Service) PlaceBid(ctx context.Context, auctionID, buyerID string, amount float64) (*models.Bid, error) {
	buyer, err := s.loadParticipant(ctx, buyerID)
	if err != nil {
		metrics.BidsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}
	if buyer.IsBlocked {
		metrics.BidsTotal.WithLabelValues("blocked").Inc()
		return nil, fmt.Errorf("buyer %s: %w", buyerID, ErrBlocked)
	}

	unlock := s.lock(auctionID)
	defer unlock()

	a, err := s.loadAuction(ctx, auctionID)
	if err != nil {
		metrics.BidsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}
	if !a.IsOngoing() {
		metrics.BidsTotal.WithLabelValues("invalid_state").Inc()
		return nil, fmt.Errorf("%w: auction %s is %s", ErrInvalidState, auctionID, a.State())
	}
	// lifecycle state is reported before the amount
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		metrics.BidsTotal.WithLabelValues("invalid_amount").Inc()
		return nil, fmt.Errorf("%w: got %v", ErrInvalidAmount, amount)
	}

	bid, err := s.bids.InsertBid(ctx, models.Bid{
		AuctionID: a.ID.Hex(),
		BuyerID:   buyerID,
		BidAmount: amount,
		BidTime:   s.now().UTC(),
		Status:    models.BidPending,
		Round:     a.ActiveRound(),
	})
	if err != nil {
		metrics.BidsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("insert bid: %w", err)
	}

	current, err := s.recomputeLocked(ctx, a)
	if err != nil {
		// The bid is stored; the next recompute will settle the marker.
		metrics.BidsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("recompute current bid: %w", err)
	}
	bid.IsCurrentBid = current != nil && current.ID == bid.ID
	metrics.BidsTotal.WithLabelValues("accepted").Inc()

	log.WithFields(log.Fields{
		"auction_id": a.ID.Hex(),
		"buyer_id":   buyerID,
		"amount":     amount,
		"round":      bid.Round,
		"is_current": bid.IsCurrentBid,
	}).Info("Bid placed")

	s.publish(ctx, models.EventBidPlaced, a, current)
	return bid, nil
}

// RecomputeCurrentBid re-derives the current bid of the active round. It is
// idempotent and refuses stopped or ended auctions, whose current bid is frozen.
func (s *Service) RecomputeCurrentBid(ctx context.Context, auctionID string) (*models.Bid, error) {
	unlock := s.lock(auctionID)
	defer unlock()

	a, err := s.loadAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if state := a.State(); state == models.StateStopped || state == models.StateEnded {
		return nil, fmt.Errorf("%w: current bid of %s auction is frozen", ErrInvalidState, state)
	}

	current, err := s.recomputeLocked(ctx, a)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, models.EventCurrentBidChanged, a, current)
	return current, nil
}

// recomputeLocked must be called with the auction's lock held.
func (s *Service) recomputeLocked(ctx context.Context, a *models.Auction) (*models.Bid, error) {
	auctionID := a.ID.Hex()
	round := a.ActiveRound()

	bids, err := s.bids.FindBidsByAuction(ctx, auctionID, round)
	if err != nil {
		return nil, fmt.Errorf("load bids of %s: %w", auctionID, err)
	}

	winner, ok := SelectCurrentBid(bids)
	target := primitive.NilObjectID
	if ok {
		target = winner.ID
	}
	if err := s.bids.MarkCurrentBid(ctx, auctionID, target); err != nil {
		return nil, fmt.Errorf("mark current bid of %s: %w", auctionID, err)
	}
	metrics.CurrentBidRecomputesTotal.Inc()

	if !ok {
		return nil, nil
	}
	winner.IsCurrentBid = true
	return &winner, nil
}

// AcceptBid records the seller's acceptance of a bid from the active round
// and makes its buyer the auction winner. An empty sellerID skips the
// ownership check.
func (s *Service) AcceptBid(ctx context.Context, bidID, sellerID string) (*models.Bid, error) {
	return s.decideBid(ctx, bidID, sellerID, models.BidAccepted)
}

// RejectBid records the seller's rejection of a bid. Rejecting the accepted
// bid clears the winner again.
func (s *Service) RejectBid(ctx context.Context, bidID, sellerID string) (*models.Bid, error) {
	return s.decideBid(ctx, bidID, sellerID, models.BidRejected)
}

func (s *Service) decideBid(ctx context.Context, bidID, sellerID string, status models.BidStatus) (*models.Bid, error) {
	bid, err := s.bids.FindBidByID(ctx, bidID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) || errors.Is(err, db.ErrInvalidID) {
			return nil, fmt.Errorf("bid %s: %w", bidID, ErrNotFound)
		}
		return nil, fmt.Errorf("load bid %s: %w", bidID, err)
	}

	unlock := s.lock(bid.AuctionID)
	defer unlock()

	a, err := s.loadAuction(ctx, bid.AuctionID)
	if err != nil {
		return nil, err
	}
	if sellerID != "" && a.SellerID != sellerID {
		return nil, fmt.Errorf("bid %s for seller %s: %w", bidID, sellerID, ErrNotFound)
	}
	if bid.Round != a.ActiveRound() {
		return nil, fmt.Errorf("%w: bid %s belongs to round %d, auction is in round %d", ErrInvalidState, bidID, bid.Round, a.ActiveRound())
	}
	if a.State() == models.StateEnded {
		return nil, fmt.Errorf("%w: auction %s has ended", ErrInvalidState, a.ID.Hex())
	}

	wasAccepted := bid.Status == models.BidAccepted
	updated, err := s.bids.UpdateBidStatus(ctx, bidID, status)
	if err != nil {
		return nil, fmt.Errorf("update bid %s: %w", bidID, err)
	}

	switch {
	case status == models.BidAccepted && a.WinnerID != bid.BuyerID:
		a.WinnerID = bid.BuyerID
	case status == models.BidRejected && wasAccepted && a.WinnerID == bid.BuyerID:
		a.WinnerID = ""
	default:
		return updated, nil
	}
	if err := s.auctions.UpdateAuction(ctx, *a); err != nil {
		return nil, fmt.Errorf("update winner of %s: %w", a.ID.Hex(), err)
	}

	log.WithFields(log.Fields{
		"auction_id": a.ID.Hex(),
		"bid_id":     bidID,
		"status":     status,
		"winner_id":  a.WinnerID,
	}).Info("Bid decision recorded")
	return updated, nil
}
