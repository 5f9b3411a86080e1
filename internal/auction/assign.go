package auction

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/drivebidrent/internal/db"
	"github.com/ukydev/drivebidrent/internal/metrics"
	"github.com/ukydev/drivebidrent/internal/models"
)

// Assignment is the result of dispatching a mechanic to inspect a vehicle.
// Chat is nil when the inspection chat could not be opened.
type Assignment struct {
	Auction models.Auction         `json:"auction"`
	Chat    *models.InspectionChat `json:"chat,omitempty"`
}

// AssignMechanic assigns an approved mechanic to inspect an auction's vehicle
// and opens the inspection chat between the mechanic and the manager.
// Repeating the call with the same mechanic returns the same chat.
func (s *Service) AssignMechanic(ctx context.Context, auctionID, mechanicID, managerID string) (*Assignment, error) {
	mechanic, err := s.loadParticipant(ctx, mechanicID)
	if err != nil {
		return nil, err
	}
	if !mechanic.IsApprovedMechanic() || mechanic.IsBlocked {
		return nil, fmt.Errorf("%w: %s is not an approved mechanic", ErrInvalidParticipant, mechanicID)
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
	if a.Status != models.ApprovalPending && a.Status != models.ApprovalAssignedMechanic {
		return nil, fmt.Errorf("%w: auction %s is %s", ErrInvalidState, auctionID, a.Status)
	}

	logger := log.WithFields(log.Fields{
		"auction_id":  auctionID,
		"mechanic_id": mechanicID,
		"manager_id":  managerID,
	})

	if a.AssignedMechanic != mechanicID || a.Status != models.ApprovalAssignedMechanic {
		a.AssignedMechanic = mechanicID
		a.MechanicName = mechanic.FullName()
		a.Status = models.ApprovalAssignedMechanic
		if err := s.auctions.UpdateAuction(ctx, *a); err != nil {
			return nil, fmt.Errorf("assign mechanic to %s: %w", auctionID, err)
		}
		metrics.AuctionTransitionsTotal.WithLabelValues("assign_mechanic").Inc()
	}

	if err := s.participants.AddAssignedRequest(ctx, mechanicID, a.ID.Hex()); err != nil {
		logger.WithError(err).Warn("Failed to record assigned request on mechanic")
	}

	result := &Assignment{Auction: *a}
	if s.channels != nil {
		now := s.now().UTC()
		chat, err := s.channels.EnsureChat(ctx, models.InspectionChat{
			InspectionTask: a.ID.Hex(),
			Mechanic:       mechanicID,
			AuctionManager: managerID,
			Title:          "Inspection: " + a.VehicleName,
			ExpiresAt:      now.Add(s.chatTTL),
			CreatedAt:      now,
		})
		if err != nil {
			logger.WithError(err).Warn("Failed to open inspection chat")
		} else {
			result.Chat = chat
		}
	}

	logger.Info("Mechanic assigned")
	s.publish(ctx, models.EventMechanicAssigned, a, nil)
	return result, nil
}

// MechanicOptions is an auction together with the mechanics who may inspect it.
type MechanicOptions struct {
	Auction   models.Auction `json:"auction"`
	City      string         `json:"city"`
	Mechanics []models.User  `json:"mechanics"`
}

// EligibleMechanics lists the approved mechanics working in the seller's city.
func (s *Service) EligibleMechanics(ctx context.Context, auctionID string) (*MechanicOptions, error) {
	a, err := s.loadAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}

	seller, err := s.participants.FindUserByID(ctx, a.SellerID)
	switch {
	case errors.Is(err, db.ErrNotFound), errors.Is(err, db.ErrInvalidID):
		return nil, fmt.Errorf("auction %s: seller %s not found: %w", auctionID, a.SellerID, ErrNotEligible)
	case err != nil:
		return nil, fmt.Errorf("load seller of %s: %w", auctionID, err)
	}
	city := strings.TrimSpace(seller.City)
	if city == "" {
		return nil, fmt.Errorf("auction %s: seller location not available: %w", auctionID, ErrNotEligible)
	}

	mechanics, err := s.participants.FindApprovedMechanics(ctx, city)
	if err != nil {
		return nil, fmt.Errorf("list mechanics in %s: %w", city, err)
	}
	return &MechanicOptions{Auction: *a, City: city, Mechanics: mechanics}, nil
}

// InspectionChat returns the chat opened for an auction's inspection.
// Mechanics only see chats of tasks assigned to them.
func (s *Service) InspectionChat(ctx context.Context, auctionID, userID string, role models.Role) (*models.InspectionChat, error) {
	a, err := s.loadAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if s.channels == nil {
		return nil, fmt.Errorf("chat for auction %s: %w", auctionID, ErrNotFound)
	}

	chat, err := s.channels.FindChatByTask(ctx, a.ID.Hex())
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("chat for auction %s: %w", auctionID, ErrNotFound)
		}
		return nil, fmt.Errorf("load chat of %s: %w", auctionID, err)
	}
	if role == models.RoleMechanic && chat.Mechanic != userID {
		return nil, fmt.Errorf("chat for auction %s: %w", auctionID, ErrNotFound)
	}
	return chat, nil
}
