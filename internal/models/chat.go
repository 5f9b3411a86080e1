package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// InspectionChat is the conversation between an auction manager and the
// mechanic inspecting a vehicle. There is at most one per auction.
type InspectionChat struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	InspectionTask string             `bson:"inspection_task" json:"inspection_task"`
	Mechanic       string             `bson:"mechanic" json:"mechanic"`
	AuctionManager string             `bson:"auction_manager" json:"auction_manager"`
	Title          string             `bson:"title" json:"title"`
	ExpiresAt      time.Time          `bson:"expires_at" json:"expires_at"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
}
