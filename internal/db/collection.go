package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/ukydev/drivebidrent/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrNotFound  = errors.New("document not found")
	ErrInvalidID = errors.New("invalid object id")
)

// AuctionFilter narrows auction listings. Zero fields are ignored.
type AuctionFilter struct {
	SellerID string
	State    models.AuctionState
	Limit    int64
}

// AuctionCollection defines the interface for auction data operations.
type AuctionCollection interface {
	InsertAuction(ctx context.Context, auction models.Auction) (*models.Auction, error)
	FindAuctionByID(ctx context.Context, id string) (*models.Auction, error)
	FindAuctions(ctx context.Context, filter AuctionFilter) ([]models.Auction, error)
	UpdateAuction(ctx context.Context, auction models.Auction) error
}

// BidCollection defines the interface for the bid ledger. Every query that
// touches the current-bid marker is scoped to one auction round.
type BidCollection interface {
	InsertBid(ctx context.Context, bid models.Bid) (*models.Bid, error)
	FindBidByID(ctx context.Context, id string) (*models.Bid, error)
	FindBidsByAuction(ctx context.Context, auctionID string, round int) ([]models.Bid, error)
	FindCurrentBid(ctx context.Context, auctionID string, round int) (*models.Bid, error)
	// MarkCurrentBid sets is_current_bid on winner and clears it on every other
	// bid of the auction, across rounds, in a single write. A zero winner
	// clears the auction.
	MarkCurrentBid(ctx context.Context, auctionID string, winner primitive.ObjectID) error
	DeleteBidsByBuyer(ctx context.Context, auctionID string, round int, buyerID string) (int64, error)
	AuctionIDsByBuyer(ctx context.Context, buyerID string) ([]string, error)
	UpdateBidStatus(ctx context.Context, id string, status models.BidStatus) (*models.Bid, error)
}

// UserCollection defines the interface for participant database operations
type UserCollection interface {
	InsertUser(ctx context.Context, user models.User) (*models.User, error)
	FindUserByID(ctx context.Context, id string) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	FindUsers(ctx context.Context, filter bson.M) ([]models.User, error)
	FindApprovedMechanics(ctx context.Context, city string) ([]models.User, error)
	UpdateUser(ctx context.Context, id string, user models.User) error
	DeleteUser(ctx context.Context, id string) error
	UpdateLastLogin(ctx context.Context, id string) error
	SetBlocked(ctx context.Context, id string, blocked bool) error
	ReportUser(ctx context.Context, id string, reason string) error
	ApproveMechanic(ctx context.Context, id string) error
	AddAssignedRequest(ctx context.Context, mechanicID string, auctionID string) error
}

// ChatCollection stores inspection chats.
type ChatCollection interface {
	// EnsureChat returns the chat for chat.InspectionTask, creating it from
	// chat when none exists yet.
	EnsureChat(ctx context.Context, chat models.InspectionChat) (*models.InspectionChat, error)
	FindChatByTask(ctx context.Context, auctionID string) (*models.InspectionChat, error)
}

// PaymentCollection exposes the payment records written by the payment service.
type PaymentCollection interface {
	PaymentCompleted(ctx context.Context, auctionID string) (bool, error)
}

func parseObjectID(id string) (primitive.ObjectID, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w %q: %v", ErrInvalidID, id, err)
	}
	return objectID, nil
}
