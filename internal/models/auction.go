package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ApprovalStatus is the inspection/approval state of an auction request.
type ApprovalStatus string

const (
	ApprovalPending          ApprovalStatus = "pending"
	ApprovalAssignedMechanic ApprovalStatus = "assignedMechanic"
	ApprovalApproved         ApprovalStatus = "approved"
	ApprovalRejected         ApprovalStatus = "rejected"
)

// StartedAuction mirrors the started_auction flag stored on every auction.
type StartedAuction string

const (
	StartedNo    StartedAuction = "no"
	StartedYes   StartedAuction = "yes"
	StartedEnded StartedAuction = "ended"
)

// AuctionState is the lifecycle state derived from the stored flags.
type AuctionState string

const (
	StateNotStarted AuctionState = "not_started"
	StateOngoing    AuctionState = "ongoing"
	StateStopped    AuctionState = "stopped"
	StateEnded      AuctionState = "ended"
)

// Auction represents a vehicle offered at auction.
type Auction struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	VehicleName      string             `bson:"vehicle_name" json:"vehicle_name"`
	VehicleImage     string             `bson:"vehicle_image" json:"vehicle_image"`
	Year             int                `bson:"year" json:"year"`
	Mileage          float64            `bson:"mileage" json:"mileage"` // in kilometers
	FuelType         string             `bson:"fuel_type" json:"fuel_type"`
	Transmission     string             `bson:"transmission" json:"transmission"`
	Condition        string             `bson:"condition" json:"condition"`
	AuctionDate      time.Time          `bson:"auction_date" json:"auction_date"`
	StartingBid      float64            `bson:"starting_bid" json:"starting_bid"`
	SellerID         string             `bson:"seller_id" json:"seller_id"`
	Status           ApprovalStatus     `bson:"status" json:"status"`
	StartedAuction   StartedAuction     `bson:"started_auction" json:"started_auction"`
	AuctionStopped   bool               `bson:"auction_stopped" json:"auction_stopped"`
	AssignedMechanic string             `bson:"assigned_mechanic,omitempty" json:"assigned_mechanic,omitempty"`
	MechanicName     string             `bson:"mechanic_name,omitempty" json:"mechanic_name,omitempty"`
	WinnerID         string             `bson:"winner_id,omitempty" json:"winner_id,omitempty"`
	PaymentDeadline  *time.Time         `bson:"payment_deadline,omitempty" json:"payment_deadline,omitempty"`
	PaymentFailed    bool               `bson:"payment_failed" json:"payment_failed"`
	FailedRound      int                `bson:"failed_round,omitempty" json:"failed_round,omitempty"`
	IsReauctioned    bool               `bson:"is_reauctioned" json:"is_reauctioned"`
	Round            int                `bson:"round" json:"round"`
	CreatedAt        time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt        time.Time          `bson:"updated_at" json:"updated_at"`
}

// State derives the lifecycle state from started_auction and auction_stopped.
func (a *Auction) State() AuctionState {
	switch {
	case a.StartedAuction == StartedEnded:
		return StateEnded
	case a.StartedAuction == StartedYes && a.AuctionStopped:
		return StateStopped
	case a.StartedAuction == StartedYes:
		return StateOngoing
	default:
		return StateNotStarted
	}
}

// IsOngoing reports whether the auction accepts bids.
func (a *Auction) IsOngoing() bool {
	return a.StartedAuction == StartedYes && !a.AuctionStopped
}

// ActiveRound returns the bidding round, treating legacy documents without one as round 1.
func (a *Auction) ActiveRound() int {
	if a.Round < 1 {
		return 1
	}
	return a.Round
}
