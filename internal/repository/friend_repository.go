package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/schoolhub/social-api/internal/apperrors"
	"github.com/schoolhub/social-api/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// FriendRepository stores friend requests and friendships. Lookups return
// (nil, nil) on a miss.
type FriendRepository interface {
	CreateRequest(ctx context.Context, req *models.FriendRequest) (*models.FriendRequest, error)
	GetRequestByID(ctx context.Context, id primitive.ObjectID) (*models.FriendRequest, error)
	GetPendingBetween(ctx context.Context, a, b primitive.ObjectID) (*models.FriendRequest, error)
	GetRequestsByReceiver(ctx context.Context, receiverID primitive.ObjectID) ([]models.FriendRequest, error)
	DeleteRequest(ctx context.Context, id primitive.ObjectID) error

	CreateFriendship(ctx context.Context, f *models.Friendship) (*models.Friendship, error)
	GetFriendshipBetween(ctx context.Context, a, b primitive.ObjectID) (*models.Friendship, error)
	GetFriendshipsByUser(ctx context.Context, userID primitive.ObjectID) ([]models.Friendship, error)
	GetFriendshipByConversation(ctx context.Context, conversationID primitive.ObjectID) (*models.Friendship, error)
	DeleteFriendship(ctx context.Context, id primitive.ObjectID) error
}

type MongoFriendRepository struct {
	requests    *mongo.Collection
	friendships *mongo.Collection
}

func NewFriendRepository(db *mongo.Database) *MongoFriendRepository {
	return &MongoFriendRepository{
		requests:    db.Collection("friend_requests"),
		friendships: db.Collection("friendships"),
	}
}

// CreateRequest inserts a pending request. The partial unique index on the
// pending sender/receiver tuple makes a concurrent duplicate fail here as a
// conflict even when both callers passed the pre-insert checks.
func (r *MongoFriendRepository) CreateRequest(ctx context.Context, req *models.FriendRequest) (*models.FriendRequest, error) {
	req.CreatedAt = time.Now()
	req.Status = models.RequestStatusPending

	result, err := r.requests.InsertOne(ctx, req)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, apperrors.Conflictf("a friend request is already pending")
		}
		return nil, fmt.Errorf("failed to insert friend request: %v", err)
	}

	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return nil, fmt.Errorf("failed to cast inserted ID")
	}
	req.ID = insertedID

	return req, nil
}

func (r *MongoFriendRepository) GetRequestByID(ctx context.Context, id primitive.ObjectID) (*models.FriendRequest, error) {
	var req models.FriendRequest
	err := r.requests.FindOne(ctx, bson.M{"_id": id}).Decode(&req)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find friend request: %v", err)
	}
	return &req, nil
}

// GetPendingBetween finds a pending request in either direction between two
// users.
func (r *MongoFriendRepository) GetPendingBetween(ctx context.Context, a, b primitive.ObjectID) (*models.FriendRequest, error) {
	filter := bson.M{
		"status": models.RequestStatusPending,
		"$or": []bson.M{
			{"sender_id": a, "receiver_id": b},
			{"sender_id": b, "receiver_id": a},
		},
	}

	var req models.FriendRequest
	err := r.requests.FindOne(ctx, filter).Decode(&req)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find pending request: %v", err)
	}
	return &req, nil
}

func (r *MongoFriendRepository) GetRequestsByReceiver(ctx context.Context, receiverID primitive.ObjectID) ([]models.FriendRequest, error) {
	filter := bson.M{"receiver_id": receiverID, "status": models.RequestStatusPending}
	cursor, err := r.requests.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find friend requests: %v", err)
	}
	defer cursor.Close(ctx)

	var requests []models.FriendRequest
	for cursor.Next(ctx) {
		var req models.FriendRequest
		if err := cursor.Decode(&req); err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}

	return requests, cursor.Err()
}

func (r *MongoFriendRepository) DeleteRequest(ctx context.Context, id primitive.ObjectID) error {
	result, err := r.requests.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete friend request: %v", err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("friend request %s not found", id.Hex())
	}
	return nil
}

func (r *MongoFriendRepository) CreateFriendship(ctx context.Context, f *models.Friendship) (*models.Friendship, error) {
	f.CreatedAt = time.Now()
	f.Status = models.FriendshipStatusActive

	result, err := r.friendships.InsertOne(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to insert friendship: %v", err)
	}

	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return nil, fmt.Errorf("failed to cast inserted ID")
	}
	f.ID = insertedID

	return f, nil
}

// GetFriendshipBetween checks both slot orders; the (user1, user2)
// assignment is fixed at accept time, not sorted.
func (r *MongoFriendRepository) GetFriendshipBetween(ctx context.Context, a, b primitive.ObjectID) (*models.Friendship, error) {
	filter := bson.M{
		"$or": []bson.M{
			{"user1": a, "user2": b},
			{"user1": b, "user2": a},
		},
	}

	var f models.Friendship
	err := r.friendships.FindOne(ctx, filter).Decode(&f)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find friendship: %v", err)
	}
	return &f, nil
}

func (r *MongoFriendRepository) GetFriendshipsByUser(ctx context.Context, userID primitive.ObjectID) ([]models.Friendship, error) {
	filter := bson.M{
		"$or": []bson.M{
			{"user1": userID},
			{"user2": userID},
		},
	}

	cursor, err := r.friendships.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve friendships: %v", err)
	}
	defer cursor.Close(ctx)

	var friendships []models.Friendship
	for cursor.Next(ctx) {
		var f models.Friendship
		if err := cursor.Decode(&f); err != nil {
			return nil, err
		}
		friendships = append(friendships, f)
	}

	return friendships, cursor.Err()
}

func (r *MongoFriendRepository) GetFriendshipByConversation(ctx context.Context, conversationID primitive.ObjectID) (*models.Friendship, error) {
	var f models.Friendship
	err := r.friendships.FindOne(ctx, bson.M{"conversation_id": conversationID}).Decode(&f)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find friendship by conversation: %v", err)
	}
	return &f, nil
}

func (r *MongoFriendRepository) DeleteFriendship(ctx context.Context, id primitive.ObjectID) error {
	_, err := r.friendships.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete friendship: %v", err)
	}
	return nil
}
