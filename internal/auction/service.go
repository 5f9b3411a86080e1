// Package auction holds the bid-state and lifecycle rules of the marketplace:
// which bid is current, when an auction may start, stop or be re-auctioned,
// and what happens to bids when a participant is blocked or a mechanic is
// assigned. Handlers validate roles and ownership, then call into Service.
package auction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/drivebidrent/internal/db"
	"github.com/ukydev/drivebidrent/internal/models"
)

const (
	DefaultPaymentWindow = 48 * time.Hour
	DefaultChatTTL       = 30 * 24 * time.Hour
)

// Participants is the participant store as seen by the auction core.
type Participants interface {
	FindUserByID(ctx context.Context, id string) (*models.User, error)
	FindApprovedMechanics(ctx context.Context, city string) ([]models.User, error)
	AddAssignedRequest(ctx context.Context, mechanicID string, auctionID string) error
}

// Moderator receives reports about participants who failed to pay.
type Moderator interface {
	ReportUser(ctx context.Context, id string, reason string) error
}

// ChannelProvisioner opens the inspection chat for a mechanic assignment.
// It must return the existing chat when the auction already has one.
type ChannelProvisioner interface {
	EnsureChat(ctx context.Context, chat models.InspectionChat) (*models.InspectionChat, error)
	FindChatByTask(ctx context.Context, auctionID string) (*models.InspectionChat, error)
}

// PaymentChecker answers whether the winner of an auction has paid.
type PaymentChecker interface {
	PaymentCompleted(ctx context.Context, auctionID string) (bool, error)
}

// Publisher delivers auction events to subscribers.
type Publisher interface {
	Publish(ctx context.Context, event models.AuctionEvent) error
}

// Deps wires the Service to its stores and collaborators. Moderator,
// Channels, Payments and Publisher may be nil.
type Deps struct {
	Auctions     db.AuctionCollection
	Bids         db.BidCollection
	Participants Participants
	Moderator    Moderator
	Channels     ChannelProvisioner
	Payments     PaymentChecker
	Publisher    Publisher

	PaymentWindow time.Duration
	ChatTTL       time.Duration
	Clock         func() time.Time
}

// Service implements the auction core.
type Service struct {
	auctions     db.AuctionCollection
	bids         db.BidCollection
	participants Participants
	moderator    Moderator
	channels     ChannelProvisioner
	payments     PaymentChecker
	publisher    Publisher

	paymentWindow time.Duration
	chatTTL       time.Duration
	now           func() time.Time
	locks         *keyedMutex
}

// NewService creates a new auction Service
func NewService(deps Deps) *Service {
	s := &Service{
		auctions:      deps.Auctions,
		bids:          deps.Bids,
		participants:  deps.Participants,
		moderator:     deps.Moderator,
		channels:      deps.Channels,
		payments:      deps.Payments,
		publisher:     deps.Publisher,
		paymentWindow: deps.PaymentWindow,
		chatTTL:       deps.ChatTTL,
		now:           deps.Clock,
		locks:         newKeyedMutex(),
	}
	if s.paymentWindow <= 0 {
		s.paymentWindow = DefaultPaymentWindow
	}
	if s.chatTTL <= 0 {
		s.chatTTL = DefaultChatTTL
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Snapshot is an auction together with the state derived from its bids.
type Snapshot struct {
	Auction           models.Auction      `json:"auction"`
	State             models.AuctionState `json:"state"`
	CurrentBid        *models.Bid         `json:"current_bid,omitempty"`
	ReauctionEligible bool                `json:"reauction_eligible"`
}

// lock serializes all writes that touch one auction's bids or flags.
func (s *Service) lock(auctionID string) func() {
	return s.locks.Lock(strings.ToLower(auctionID))
}

func (s *Service) loadAuction(ctx context.Context, id string) (*models.Auction, error) {
	a, err := s.auctions.FindAuctionByID(ctx, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) || errors.Is(err, db.ErrInvalidID) {
			return nil, fmt.Errorf("auction %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("load auction %s: %w", id, err)
	}
	return a, nil
}

func (s *Service) loadParticipant(ctx context.Context, id string) (*models.User, error) {
	u, err := s.participants.FindUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) || errors.Is(err, db.ErrInvalidID) {
			return nil, fmt.Errorf("participant %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("load participant %s: %w", id, err)
	}
	return u, nil
}

// currentBid returns nil when the round has no current bid.
func (s *Service) currentBid(ctx context.Context, a *models.Auction) (*models.Bid, error) {
	bid, err := s.bids.FindCurrentBid(ctx, a.ID.Hex(), a.ActiveRound())
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load current bid of %s: %w", a.ID.Hex(), err)
	}
	return bid, nil
}

func (s *Service) snapshot(ctx context.Context, a *models.Auction) (*Snapshot, error) {
	snap := &Snapshot{
		Auction:           *a,
		State:             a.State(),
		ReauctionEligible: CheckReauctionEligibility(a, s.now()),
	}
	if a.State() == models.StateNotStarted {
		return snap, nil
	}
	current, err := s.currentBid(ctx, a)
	if err != nil {
		return nil, err
	}
	snap.CurrentBid = current
	return snap, nil
}

// publish never fails the calling operation; subscribers can always re-read.
func (s *Service) publish(ctx context.Context, eventType models.EventType, a *models.Auction, current *models.Bid) {
	if s.publisher == nil {
		return
	}
	event := models.AuctionEvent{
		Type:       eventType,
		AuctionID:  a.ID.Hex(),
		Round:      a.ActiveRound(),
		CurrentBid: current,
		OccurredAt: s.now().UTC(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"auction_id": event.AuctionID,
			"event":      eventType,
		}).Warn("Failed to publish auction event")
	}
}

// GetAuction returns the auction with its current bid and a freshly
// evaluated re-auction eligibility.
func (s *Service) GetAuction(ctx context.Context, id string) (*Snapshot, error) {
	a, err := s.loadAuction(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.snapshot(ctx, a)
}

// ListAuctions lists auctions matching filter.
func (s *Service) ListAuctions(ctx context.Context, filter db.AuctionFilter) ([]models.Auction, error) {
	auctions, err := s.auctions.FindAuctions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list auctions: %w", err)
	}
	return auctions, nil
}

// ListBids returns the bids of a round, newest first. Round 0 means the active round.
func (s *Service) ListBids(ctx context.Context, auctionID string, round int) ([]models.Bid, error) {
	a, err := s.loadAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if round <= 0 {
		round = a.ActiveRound()
	}
	bids, err := s.bids.FindBidsByAuction(ctx, a.ID.Hex(), round)
	if err != nil {
		return nil, fmt.Errorf("list bids of %s: %w", auctionID, err)
	}
	return bids, nil
}

// CreateAuction registers a seller's vehicle for inspection and approval.
func (s *Service) CreateAuction(ctx context.Context, a models.Auction) (*models.Auction, error) {
	if strings.TrimSpace(a.VehicleName) == "" || a.SellerID == "" {
		return nil, fmt.Errorf("%w: vehicle name and seller are required", ErrInvalidInput)
	}
	if a.StartingBid < 0 {
		return nil, fmt.Errorf("%w: starting bid cannot be negative", ErrInvalidInput)
	}

	a.Status = models.ApprovalPending
	a.StartedAuction = models.StartedNo
	a.AuctionStopped = false
	a.AssignedMechanic = ""
	a.MechanicName = ""
	a.WinnerID = ""
	a.PaymentDeadline = nil
	a.PaymentFailed = false
	a.FailedRound = 0
	a.IsReauctioned = false
	a.Round = 1

	created, err := s.auctions.InsertAuction(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("create auction: %w", err)
	}
	log.WithFields(log.Fields{
		"auction_id": created.ID.Hex(),
		"seller_id":  created.SellerID,
		"vehicle":    created.VehicleName,
	}).Info("Auction created")
	return created, nil
}
