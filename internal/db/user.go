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
)

// MongoUserCollection implements UserCollection for MongoDB
type MongoUserCollection struct {
	Collection *mongo.Collection
}

// InsertUser inserts a new participant into the database
func (c *MongoUserCollection) InsertUser(ctx context.Context, user models.User) (*models.User, error) {
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = time.Now()
	user.IsActive = true

	if _, err := c.Collection.InsertOne(ctx, user); err != nil {
		return nil, err
	}
	return &user, nil
}

// FindUserByID finds a participant by their ID
func (c *MongoUserCollection) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	objectID, err := parseObjectID(id)
	if err != nil {
		return nil, err
	}
	return c.findOne(ctx, bson.M{"_id": objectID})
}

// FindUserByEmail finds a participant by their email
func (c *MongoUserCollection) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return c.findOne(ctx, bson.M{"email": email})
}

func (c *MongoUserCollection) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	var user models.User
	err := c.Collection.FindOne(ctx, filter).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("user: %w", ErrNotFound)
		}
		return nil, err
	}
	return &user, nil
}

// FindUsers finds participants with optional filtering
func (c *MongoUserCollection) FindUsers(ctx context.Context, filter bson.M) ([]models.User, error) {
	cursor, err := c.Collection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	users := []models.User{}
	if err := cursor.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// FindApprovedMechanics lists approved, unblocked mechanics working in city.
func (c *MongoUserCollection) FindApprovedMechanics(ctx context.Context, city string) ([]models.User, error) {
	return c.FindUsers(ctx, bson.M{
		"role":            models.RoleMechanic,
		"approved_status": true,
		"is_blocked":      bson.M{"$ne": true},
		"city":            city,
	})
}

// UpdateUser updates a participant in the database
func (c *MongoUserCollection) UpdateUser(ctx context.Context, id string, user models.User) error {
	objectID, err := parseObjectID(id)
	if err != nil {
		return err
	}

	user.UpdatedAt = time.Now()
	user.ID = objectID

	_, err = c.Collection.ReplaceOne(ctx, bson.M{"_id": objectID}, user)
	return err
}

// DeleteUser deletes a participant from the database
func (c *MongoUserCollection) DeleteUser(ctx context.Context, id string) error {
	objectID, err := parseObjectID(id)
	if err != nil {
		return err
	}

	result, err := c.Collection.DeleteOne(ctx, bson.M{"_id": objectID})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return nil
}

// UpdateLastLogin updates the last login time for a participant
func (c *MongoUserCollection) UpdateLastLogin(ctx context.Context, id string) error {
	now := time.Now()
	return c.set(ctx, id, bson.M{"last_login": now, "updated_at": now})
}

// SetBlocked flips the block flag; blocked_at is cleared on unblock
func (c *MongoUserCollection) SetBlocked(ctx context.Context, id string, blocked bool) error {
	now := time.Now()
	fields := bson.M{"is_blocked": blocked, "updated_at": now}
	if blocked {
		fields["blocked_at"] = now
	} else {
		fields["blocked_at"] = nil
	}
	return c.set(ctx, id, fields)
}

// ReportUser flags a participant for moderation review
func (c *MongoUserCollection) ReportUser(ctx context.Context, id string, reason string) error {
	now := time.Now()
	return c.set(ctx, id, bson.M{
		"is_reported":   true,
		"report_reason": reason,
		"reported_at":   now,
		"updated_at":    now,
	})
}

// ApproveMechanic marks a mechanic as approved for inspections
func (c *MongoUserCollection) ApproveMechanic(ctx context.Context, id string) error {
	objectID, err := parseObjectID(id)
	if err != nil {
		return err
	}
	result, err := c.Collection.UpdateOne(ctx,
		bson.M{"_id": objectID, "role": models.RoleMechanic},
		bson.M{"$set": bson.M{"approved_status": true, "updated_at": time.Now()}},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("mechanic %s: %w", id, ErrNotFound)
	}
	return nil
}

// AddAssignedRequest records an inspection task on the mechanic, once
func (c *MongoUserCollection) AddAssignedRequest(ctx context.Context, mechanicID string, auctionID string) error {
	objectID, err := parseObjectID(mechanicID)
	if err != nil {
		return err
	}
	_, err = c.Collection.UpdateOne(ctx,
		bson.M{"_id": objectID},
		bson.M{"$addToSet": bson.M{"assigned_requests": auctionID}},
	)
	return err
}

func (c *MongoUserCollection) set(ctx context.Context, id string, fields bson.M) error {
	objectID, err := parseObjectID(id)
	if err != nil {
		return err
	}
	result, err := c.Collection.UpdateOne(ctx, bson.M{"_id": objectID}, bson.M{"$set": fields})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return nil
}
