package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PaymentCompleted is the status written by the payment service once funds have cleared.
const PaymentCompleted = "completed"

// Payment is written by the external payment service; this service only reads it.
type Payment struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	AuctionID string             `bson:"auction_id" json:"auction_id"`
	BuyerID   string             `bson:"buyer_id" json:"buyer_id"`
	Amount    float64            `bson:"amount" json:"amount"`
	Status    string             `bson:"status" json:"status"` // "pending", "completed", "failed"
	PaidAt    *time.Time         `bson:"paid_at,omitempty" json:"paid_at,omitempty"`
}
