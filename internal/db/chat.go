package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/ukydev/drivebidrent/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoChatCollection implements ChatCollection for MongoDB.
type MongoChatCollection struct {
	Collection *mongo.Collection
}

// EnsureChat upserts on inspection_task so concurrent assignments converge on one chat.
func (c *MongoChatCollection) EnsureChat(ctx context.Context, chat models.InspectionChat) (*models.InspectionChat, error) {
	if chat.InspectionTask == "" {
		return nil, fmt.Errorf("inspection task is required")
	}
	if chat.ID.IsZero() {
		chat.ID = primitive.NewObjectID()
	}

	var stored models.InspectionChat
	err := c.Collection.FindOneAndUpdate(
		ctx,
		bson.M{"inspection_task": chat.InspectionTask},
		bson.M{"$setOnInsert": bson.M{
			"_id":             chat.ID,
			"mechanic":        chat.Mechanic,
			"auction_manager": chat.AuctionManager,
			"title":           chat.Title,
			"expires_at":      chat.ExpiresAt,
			"created_at":      chat.CreatedAt,
		}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&stored)
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// FindChatByTask returns the chat opened for an auction's inspection.
func (c *MongoChatCollection) FindChatByTask(ctx context.Context, auctionID string) (*models.InspectionChat, error) {
	var chat models.InspectionChat
	err := c.Collection.FindOne(ctx, bson.M{"inspection_task": auctionID}).Decode(&chat)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("chat for %s: %w", auctionID, ErrNotFound)
		}
		return nil, err
	}
	return &chat, nil
}

// MongoPaymentCollection implements PaymentCollection for MongoDB.
type MongoPaymentCollection struct {
	Collection *mongo.Collection
}

// PaymentCompleted reports whether a completed payment exists for the auction.
func (c *MongoPaymentCollection) PaymentCompleted(ctx context.Context, auctionID string) (bool, error) {
	n, err := c.Collection.CountDocuments(ctx,
		bson.M{"auction_id": auctionID, "status": models.PaymentCompleted},
		options.Count().SetLimit(1),
	)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
