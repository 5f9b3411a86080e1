package auction

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/drivebidrent/internal/metrics"
	"github.com/ukydev/drivebidrent/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SetApprovalStatus records the manager's inspection verdict. Only auctions
// that have not started can change status.
func (s *Service) SetApprovalStatus(ctx context.Context, auctionID string, status models.ApprovalStatus) (*models.Auction, error) {
	switch status {
	case models.ApprovalPending, models.ApprovalApproved, models.ApprovalRejected:
	default:
		return nil, fmt.Errorf("%w: unknown approval status %q", ErrInvalidInput, status)
	}

	unlock := s.lock(auctionID)
	defer unlock()

	a, err := s.loadAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if a.StartedAuction != models.StartedNo {
		return nil, fmt.Errorf("%w: auction %s already started", ErrInvalidState, auctionID)
	}
	if a.Status == status {
		return a, nil
	}

	a.Status = status
	if err := s.auctions.UpdateAuction(ctx, *a); err != nil {
		return nil, fmt.Errorf("update status of %s: %w", auctionID, err)
	}
	metrics.AuctionTransitionsTotal.WithLabelValues("status_" + string(status)).Inc()
	log.WithFields(log.Fields{"auction_id": auctionID, "status": status}).Info("Auction status updated")
	return a, nil
}

// StartAuction opens bidding on an approved auction.
func (s *Service) StartAuction(ctx context.Context, auctionID string) (*models.Auction, error) {
	unlock := s.lock(auctionID)
	defer unlock()

	a, err := s.loadAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if a.StartedAuction != models.StartedNo {
		return nil, fmt.Errorf("auction %s: %w", auctionID, ErrAlreadyStarted)
	}
	if a.Status != models.ApprovalApproved {
		return nil, fmt.Errorf("%w: auction %s is %s, not approved", ErrInvalidState, auctionID, a.Status)
	}

	a.StartedAuction = models.StartedYes
	a.AuctionStopped = false
	a.Round = a.ActiveRound()
	if err := s.auctions.UpdateAuction(ctx, *a); err != nil {
		return nil, fmt.Errorf("start auction %s: %w", auctionID, err)
	}

	metrics.AuctionTransitionsTotal.WithLabelValues("start").Inc()
	log.WithFields(log.Fields{"auction_id": auctionID, "round": a.Round}).Info("Auction started")
	s.publish(ctx, models.EventAuctionStarted, a, nil)
	return a, nil
}

// StopAuction closes bidding and opens the payment window. With markEnded the
// auction is also flagged as ended; the window still applies.
func (s *Service) StopAuction(ctx context.Context, auctionID string, markEnded bool) (*Snapshot, error) {
	unlock := s.lock(auctionID)
	defer unlock()

	a, err := s.loadAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if !a.IsOngoing() {
		return nil, fmt.Errorf("%w: auction %s is %s", ErrInvalidState, auctionID, a.State())
	}

	deadline := s.now().UTC().Add(s.paymentWindow)
	a.AuctionStopped = true
	a.PaymentDeadline = &deadline
	if markEnded {
		a.StartedAuction = models.StartedEnded
	}
	if err := s.auctions.UpdateAuction(ctx, *a); err != nil {
		return nil, fmt.Errorf("stop auction %s: %w", auctionID, err)
	}

	snap, err := s.snapshot(ctx, a)
	if err != nil {
		return nil, err
	}

	metrics.AuctionTransitionsTotal.WithLabelValues("stop").Inc()
	fields := log.Fields{
		"auction_id":       auctionID,
		"round":            a.ActiveRound(),
		"payment_deadline": deadline,
		"ended":            markEnded,
	}
	if snap.CurrentBid != nil {
		fields["provisional_winner"] = snap.CurrentBid.BuyerID
	}
	log.WithFields(fields).Info("Auction stopped")
	s.publish(ctx, models.EventAuctionStopped, a, snap.CurrentBid)
	return snap, nil
}

// CheckReauctionEligibility reports whether a can be re-auctioned at now: it
// is stopped, its payment deadline has passed and the current round has not
// already been marked as failed.
func CheckReauctionEligibility(a *models.Auction, now time.Time) bool {
	if a == nil || !a.AuctionStopped || a.PaymentDeadline == nil {
		return false
	}
	if now.Before(*a.PaymentDeadline) {
		return false
	}
	return !(a.PaymentFailed && a.FailedRound == a.ActiveRound())
}

// ReauctionEligible loads the auction and evaluates eligibility at the current time.
func (s *Service) ReauctionEligible(ctx context.Context, auctionID string) (bool, error) {
	a, err := s.loadAuction(ctx, auctionID)
	if err != nil {
		return false, err
	}
	return CheckReauctionEligibility(a, s.now()), nil
}

// ReAuction reopens an eligible auction in a new bidding round. The previous
// round's bids stay as history, and its winner is reported for non-payment.
func (s *Service) ReAuction(ctx context.Context, auctionID string) (*Snapshot, error) {
	unlock := s.lock(auctionID)
	defer unlock()

	a, err := s.loadAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if !CheckReauctionEligibility(a, s.now()) {
		return nil, fmt.Errorf("auction %s: %w", auctionID, ErrNotEligible)
	}

	failedRound := a.ActiveRound()
	defaulter := a.WinnerID
	if defaulter == "" {
		current, err := s.currentBid(ctx, a)
		if err != nil {
			return nil, err
		}
		if current != nil {
			defaulter = current.BuyerID
		}
	}

	a.PaymentFailed = true
	a.FailedRound = failedRound
	a.IsReauctioned = true
	a.Round = failedRound + 1
	a.PaymentDeadline = nil
	a.WinnerID = ""
	a.StartedAuction = models.StartedYes
	a.AuctionStopped = false
	if err := s.auctions.UpdateAuction(ctx, *a); err != nil {
		return nil, fmt.Errorf("re-auction %s: %w", auctionID, err)
	}
	// the failed round's winner must not stay current in the new round
	if err := s.bids.MarkCurrentBid(ctx, a.ID.Hex(), primitive.NilObjectID); err != nil {
		log.WithError(err).WithField("auction_id", auctionID).Warn("Failed to clear current bid of failed round")
	}

	metrics.AuctionTransitionsTotal.WithLabelValues("reauction").Inc()
	log.WithFields(log.Fields{
		"auction_id":   auctionID,
		"failed_round": failedRound,
		"round":        a.Round,
		"defaulter":    defaulter,
	}).Info("Auction re-opened after missed payment")

	if defaulter != "" && s.moderator != nil {
		reason := fmt.Sprintf("payment not completed for auction %s (round %d)", auctionID, failedRound)
		if err := s.moderator.ReportUser(ctx, defaulter, reason); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"auction_id": auctionID,
				"user_id":    defaulter,
			}).Warn("Failed to report non-paying winner")
		}
	}

	s.publish(ctx, models.EventAuctionReauction, a, nil)
	return &Snapshot{Auction: *a, State: a.State()}, nil
}

// ConfirmPayment closes a stopped auction whose winner has paid.
func (s *Service) ConfirmPayment(ctx context.Context, auctionID string) (*Snapshot, error) {
	unlock := s.lock(auctionID)
	defer unlock()

	a, err := s.loadAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if !a.AuctionStopped || a.PaymentDeadline == nil {
		return nil, fmt.Errorf("%w: auction %s is not awaiting payment", ErrInvalidState, auctionID)
	}
	if s.payments == nil {
		return nil, fmt.Errorf("auction %s: payments unavailable: %w", auctionID, ErrNotEligible)
	}

	paid, err := s.payments.PaymentCompleted(ctx, a.ID.Hex())
	if err != nil {
		return nil, fmt.Errorf("check payment of %s: %w", auctionID, err)
	}
	if !paid {
		return nil, fmt.Errorf("auction %s: payment not completed: %w", auctionID, ErrNotEligible)
	}

	current, err := s.currentBid(ctx, a)
	if err != nil {
		return nil, err
	}
	if a.WinnerID == "" && current != nil {
		a.WinnerID = current.BuyerID
	}
	a.StartedAuction = models.StartedEnded
	a.PaymentDeadline = nil
	if err := s.auctions.UpdateAuction(ctx, *a); err != nil {
		return nil, fmt.Errorf("end auction %s: %w", auctionID, err)
	}

	metrics.AuctionTransitionsTotal.WithLabelValues("end").Inc()
	log.WithFields(log.Fields{"auction_id": auctionID, "winner_id": a.WinnerID}).Info("Auction ended after payment")
	s.publish(ctx, models.EventAuctionEnded, a, current)
	return &Snapshot{Auction: *a, State: a.State(), CurrentBid: current}, nil
}
