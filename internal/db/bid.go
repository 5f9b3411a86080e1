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

// MongoBidCollection implements BidCollection for MongoDB
type MongoBidCollection struct {
	Collection *mongo.Collection
}

// InsertBid appends a bid to the ledger
func (c *MongoBidCollection) InsertBid(ctx context.Context, bid models.Bid) (*models.Bid, error) {
	if bid.ID.IsZero() {
		bid.ID = primitive.NewObjectID()
	}
	if _, err := c.Collection.InsertOne(ctx, bid); err != nil {
		return nil, err
	}
	return &bid, nil
}

// FindBidByID finds a bid by its ID
func (c *MongoBidCollection) FindBidByID(ctx context.Context, id string) (*models.Bid, error) {
	objectID, err := parseObjectID(id)
	if err != nil {
		return nil, err
	}

	var bid models.Bid
	err = c.Collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&bid)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("bid %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &bid, nil
}

// FindBidsByAuction returns the bids of one round, newest first
func (c *MongoBidCollection) FindBidsByAuction(ctx context.Context, auctionID string, round int) ([]models.Bid, error) {
	opts := options.Find().SetSort(bson.D{{Key: "bid_time", Value: -1}})
	cursor, err := c.Collection.Find(ctx, bson.M{"auction_id": auctionID, "round": round}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	bids := []models.Bid{}
	if err := cursor.All(ctx, &bids); err != nil {
		return nil, err
	}
	return bids, nil
}

// FindCurrentBid returns the bid flagged as current for the round
func (c *MongoBidCollection) FindCurrentBid(ctx context.Context, auctionID string, round int) (*models.Bid, error) {
	var bid models.Bid
	err := c.Collection.FindOne(ctx, bson.M{
		"auction_id":     auctionID,
		"round":          round,
		"is_current_bid": true,
	}).Decode(&bid)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("current bid for auction %s: %w", auctionID, ErrNotFound)
		}
		return nil, err
	}
	return &bid, nil
}

// MarkCurrentBid rewrites is_current_bid on every bid of the auction with one
// pipeline update. Bids of earlier rounds lose the flag too.
func (c *MongoBidCollection) MarkCurrentBid(ctx context.Context, auctionID string, winner primitive.ObjectID) error {
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "is_current_bid", Value: bson.D{{Key: "$eq", Value: bson.A{"$_id", winner}}}},
		}}},
	}
	_, err := c.Collection.UpdateMany(ctx, bson.M{"auction_id": auctionID}, update)
	return err
}

// DeleteBidsByBuyer removes every bid the buyer placed in the round
func (c *MongoBidCollection) DeleteBidsByBuyer(ctx context.Context, auctionID string, round int, buyerID string) (int64, error) {
	result, err := c.Collection.DeleteMany(ctx, bson.M{
		"auction_id": auctionID,
		"round":      round,
		"buyer_id":   buyerID,
	})
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}

// AuctionIDsByBuyer lists the distinct auctions the buyer has bid on
func (c *MongoBidCollection) AuctionIDsByBuyer(ctx context.Context, buyerID string) ([]string, error) {
	values, err := c.Collection.Distinct(ctx, "auction_id", bson.M{"buyer_id": buyerID})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(values))
	for _, v := range values {
		if id, ok := v.(string); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// UpdateBidStatus records the seller's decision and returns the updated bid
func (c *MongoBidCollection) UpdateBidStatus(ctx context.Context, id string, status models.BidStatus) (*models.Bid, error) {
	objectID, err := parseObjectID(id)
	if err != nil {
		return nil, err
	}

	var bid models.Bid
	err = c.Collection.FindOneAndUpdate(
		ctx,
		bson.M{"_id": objectID},
		bson.M{"$set": bson.M{"status": status}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&bid)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("bid %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &bid, nil
}
