package auction

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/drivebidrent/internal/metrics"
	"github.com/ukydev/drivebidrent/internal/models"
)

// ReconciledAuction describes one ongoing auction cleaned of a participant's bids.
type ReconciledAuction struct {
	AuctionID   string      `json:"auction_id"`
	RemovedBids int64       `json:"removed_bids"`
	CurrentBid  *models.Bid `json:"current_bid,omitempty"`
}

// ReconcileReport is the per-auction outcome of removing a participant.
type ReconcileReport struct {
	ParticipantID string              `json:"participant_id"`
	Reconciled    []ReconciledAuction `json:"reconciled"`
	Skipped       []string            `json:"skipped"`
	Failed        []string            `json:"failed"`
}

// ReconcileBlockedParticipant removes a participant's active-round bids from
// every ongoing auction they bid on and re-derives each current bid.
// Auctions that are not ongoing keep their bids untouched. Auctions are
// handled independently; when some fail, the report is returned together
// with a *PartialFailureError.
func (s *Service) ReconcileBlockedParticipant(ctx context.Context, participantID string) (*ReconcileReport, error) {
	auctionIDs, err := s.bids.AuctionIDsByBuyer(ctx, participantID)
	if err != nil {
		return nil, fmt.Errorf("list auctions of participant %s: %w", participantID, err)
	}

	report := &ReconcileReport{
		ParticipantID: participantID,
		Reconciled:    []ReconciledAuction{},
		Skipped:       []string{},
		Failed:        []string{},
	}
	failures := make(map[string]error)

	for _, auctionID := range auctionIDs {
		result, err := s.reconcileAuction(ctx, auctionID, participantID)
		switch {
		case err != nil:
			failures[auctionID] = err
			report.Failed = append(report.Failed, auctionID)
			metrics.ReconciledAuctionsTotal.WithLabelValues("failed").Inc()
			log.WithError(err).WithFields(log.Fields{
				"auction_id":     auctionID,
				"participant_id": participantID,
			}).Error("Failed to reconcile auction")
		case result == nil:
			report.Skipped = append(report.Skipped, auctionID)
			metrics.ReconciledAuctionsTotal.WithLabelValues("skipped").Inc()
		default:
			report.Reconciled = append(report.Reconciled, *result)
			metrics.ReconciledAuctionsTotal.WithLabelValues("reconciled").Inc()
		}
	}

	log.WithFields(log.Fields{
		"participant_id": participantID,
		"reconciled":     len(report.Reconciled),
		"skipped":        len(report.Skipped),
		"failed":         len(report.Failed),
	}).Info("Participant removed from ongoing auctions")

	if len(failures) > 0 {
		return report, &PartialFailureError{ParticipantID: participantID, Failures: failures}
	}
	return report, nil
}

// reconcileAuction returns nil without error when the auction is skipped.
func (s *Service) reconcileAuction(ctx context.Context, auctionID, participantID string) (*ReconciledAuction, error) {
	unlock := s.lock(auctionID)
	defer unlock()

	a, err := s.loadAuction(ctx, auctionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !a.IsOngoing() {
		return nil, nil
	}

	// recomputeLocked rewrites every marker of the round; no separate clear needed.
	removed, err := s.bids.DeleteBidsByBuyer(ctx, a.ID.Hex(), a.ActiveRound(), participantID)
	if err != nil {
		return nil, fmt.Errorf("delete bids: %w", err)
	}
	current, err := s.recomputeLocked(ctx, a)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, models.EventBidsRemoved, a, current)
	return &ReconciledAuction{AuctionID: a.ID.Hex(), RemovedBids: removed, CurrentBid: current}, nil
}
