package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// BidStatus is the seller's decision on a bid.
type BidStatus string

const (
	BidPending  BidStatus = "pending"
	BidAccepted BidStatus = "accepted"
	BidRejected BidStatus = "rejected"
)

// Bid is a buyer's offer on an auction within one bidding round.
type Bid struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	AuctionID    string             `bson:"auction_id" json:"auction_id"`
	BuyerID      string             `bson:"buyer_id" json:"buyer_id"`
	BidAmount    float64            `bson:"bid_amount" json:"bid_amount"`
	BidTime      time.Time          `bson:"bid_time" json:"bid_time"`
	IsCurrentBid bool               `bson:"is_current_bid" json:"is_current_bid"`
	Status       BidStatus          `bson:"status" json:"status"`
	Round        int                `bson:"round" json:"round"`
}
