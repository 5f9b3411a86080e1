package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ukydev/drivebidrent/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names used by the marketplace database.
const (
	AuctionsCollection        = "auctions"
	BidsCollection            = "auction_bids"
	UsersCollection           = "users"
	InspectionChatsCollection = "inspection_chats"
	PaymentsCollection        = "payments"
)

// ConnectMongo connects to MongoDB at uri and verifies the connection with a ping.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo.Connect error: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo.Ping error: %w", err)
	}
	return client, nil
}

// Store groups the collections of one marketplace database.
type Store struct {
	Auctions *MongoAuctionCollection
	Bids     *MongoBidCollection
	Users    *MongoUserCollection
	Chats    *MongoChatCollection
	Payments *MongoPaymentCollection
}

// NewStore binds every collection of database.
func NewStore(database *mongo.Database) *Store {
	return &Store{
		Auctions: &MongoAuctionCollection{Collection: database.Collection(AuctionsCollection)},
		Bids:     &MongoBidCollection{Collection: database.Collection(BidsCollection)},
		Users:    &MongoUserCollection{Collection: database.Collection(UsersCollection)},
		Chats:    &MongoChatCollection{Collection: database.Collection(InspectionChatsCollection)},
		Payments: &MongoPaymentCollection{Collection: database.Collection(PaymentsCollection)},
	}
}

// EnsureIndexes creates the indexes the queries and uniqueness rules rely on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := []struct {
		coll  *mongo.Collection
		model mongo.IndexModel
	}{
		{s.Bids.Collection, mongo.IndexModel{Keys: bson.D{{Key: "auction_id", Value: 1}, {Key: "round", Value: 1}, {Key: "bid_amount", Value: -1}, {Key: "bid_time", Value: -1}}}},
		{s.Bids.Collection, mongo.IndexModel{Keys: bson.D{{Key: "buyer_id", Value: 1}}}},
		{s.Auctions.Collection, mongo.IndexModel{Keys: bson.D{{Key: "seller_id", Value: 1}, {Key: "created_at", Value: -1}}}},
		{s.Users.Collection, mongo.IndexModel{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)}},
		// one chat per inspection task
		{s.Chats.Collection, mongo.IndexModel{Keys: bson.D{{Key: "inspection_task", Value: 1}}, Options: options.Index().SetUnique(true)}},
		{s.Payments.Collection, mongo.IndexModel{Keys: bson.D{{Key: "auction_id", Value: 1}, {Key: "status", Value: 1}}}},
	}
	for _, idx := range indexes {
		if _, err := idx.coll.Indexes().CreateOne(ctx, idx.model); err != nil {
			return fmt.Errorf("create index on %s: %w", idx.coll.Name(), err)
		}
	}
	return nil
}

// MongoAuctionCollection implements AuctionCollection for MongoDB.
type MongoAuctionCollection struct {
	Collection *mongo.Collection
}

// InsertAuction inserts an auction and returns it with its generated ID.
func (c *MongoAuctionCollection) InsertAuction(ctx context.Context, auction models.Auction) (*models.Auction, error) {
	if c.Collection == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}
	if auction.ID.IsZero() {
		auction.ID = primitive.NewObjectID()
	}
	now := time.Now()
	auction.CreatedAt = now
	auction.UpdatedAt = now
	if _, err := c.Collection.InsertOne(ctx, auction); err != nil {
		return nil, err
	}
	return &auction, nil
}

// FindAuctionByID finds an auction by its ID.
func (c *MongoAuctionCollection) FindAuctionByID(ctx context.Context, id string) (*models.Auction, error) {
	if c.Collection == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}

	objectID, err := parseObjectID(id)
	if err != nil {
		return nil, err
	}

	var auction models.Auction
	err = c.Collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&auction)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("auction %s: %w", id, ErrNotFound)
		}
		return nil, err
	}

	return &auction, nil
}

// FindAuctions lists auctions matching filter, newest first.
func (c *MongoAuctionCollection) FindAuctions(ctx context.Context, filter AuctionFilter) ([]models.Auction, error) {
	if c.Collection == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if filter.Limit > 0 {
		opts.SetLimit(filter.Limit)
	}

	cursor, err := c.Collection.Find(ctx, auctionQuery(filter), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	auctions := []models.Auction{}
	if err := cursor.All(ctx, &auctions); err != nil {
		return nil, err
	}
	return auctions, nil
}

// UpdateAuction replaces the stored auction document.
func (c *MongoAuctionCollection) UpdateAuction(ctx context.Context, auction models.Auction) error {
	if c.Collection == nil {
		return fmt.Errorf("mongo collection is nil")
	}

	auction.UpdatedAt = time.Now()
	result, err := c.Collection.ReplaceOne(ctx, bson.M{"_id": auction.ID}, auction)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("auction %s: %w", auction.ID.Hex(), ErrNotFound)
	}
	return nil
}

func auctionQuery(filter AuctionFilter) bson.M {
	query := bson.M{}
	if filter.SellerID != "" {
		query["seller_id"] = filter.SellerID
	}
	switch filter.State {
	case models.StateNotStarted:
		query["started_auction"] = bson.M{"$nin": bson.A{models.StartedYes, models.StartedEnded}}
	case models.StateOngoing:
		query["started_auction"] = models.StartedYes
		query["auction_stopped"] = false
	case models.StateStopped:
		query["started_auction"] = models.StartedYes
		query["auction_stopped"] = true
	case models.StateEnded:
		query["started_auction"] = models.StartedEnded
	}
	return query
}
