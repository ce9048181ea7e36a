package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/schoolhub/social-api/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ConversationRepository stores conversations, memberships and messages.
// Lookups return (nil, nil) on a miss.
type ConversationRepository interface {
	CreateConversation(ctx context.Context, c *models.Conversation) (*models.Conversation, error)
	GetConversation(ctx context.Context, id primitive.ObjectID) (*models.Conversation, error)
	SetLastMessage(ctx context.Context, conversationID, messageID primitive.ObjectID) error
	DeleteConversation(ctx context.Context, id primitive.ObjectID) error

	AddMember(ctx context.Context, m *models.ConversationMember) (*models.ConversationMember, error)
	GetMember(ctx context.Context, memberID, conversationID primitive.ObjectID) (*models.ConversationMember, error)
	GetMembers(ctx context.Context, conversationID primitive.ObjectID) ([]models.ConversationMember, error)
	GetMembershipsByUser(ctx context.Context, memberID primitive.ObjectID) ([]models.ConversationMember, error)
	CountMembers(ctx context.Context, conversationID primitive.ObjectID) (int64, error)
	SetLastSeen(ctx context.Context, memberID, conversationID primitive.ObjectID, messageID *primitive.ObjectID) error
	DeleteMember(ctx context.Context, memberID, conversationID primitive.ObjectID) error
	DeleteMembers(ctx context.Context, conversationID primitive.ObjectID) error

	InsertMessage(ctx context.Context, msg *models.Message) (*models.Message, error)
	GetMessage(ctx context.Context, id primitive.ObjectID) (*models.Message, error)
	GetMessages(ctx context.Context, conversationID primitive.ObjectID) ([]models.Message, error)
	CountMessagesAfter(ctx context.Context, conversationID primitive.ObjectID, after time.Time) (int64, error)
	CountMessages(ctx context.Context, conversationID primitive.ObjectID) (int64, error)
	DeleteMessages(ctx context.Context, conversationID primitive.ObjectID) error
}

type MongoConversationRepository struct {
	conversations *mongo.Collection
	members       *mongo.Collection
	messages      *mongo.Collection
}

func NewConversationRepository(db *mongo.Database) *MongoConversationRepository {
	return &MongoConversationRepository{
		conversations: db.Collection("conversations"),
		members:       db.Collection("conversation_members"),
		messages:      db.Collection("messages"),
	}
}

func (r *MongoConversationRepository) CreateConversation(ctx context.Context, c *models.Conversation) (*models.Conversation, error) {
	c.CreatedAt = time.Now()

	result, err := r.conversations.InsertOne(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("failed to insert conversation: %v", err)
	}

	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return nil, fmt.Errorf("failed to cast inserted ID")
	}
	c.ID = insertedID

	return c, nil
}

func (r *MongoConversationRepository) GetConversation(ctx context.Context, id primitive.ObjectID) (*models.Conversation, error) {
	var c models.Conversation
	err := r.conversations.FindOne(ctx, bson.M{"_id": id}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find conversation: %v", err)
	}
	return &c, nil
}

func (r *MongoConversationRepository) SetLastMessage(ctx context.Context, conversationID, messageID primitive.ObjectID) error {
	_, err := r.conversations.UpdateOne(
		ctx,
		bson.M{"_id": conversationID},
		bson.M{"$set": bson.M{"last_message_id": messageID}},
	)
	if err != nil {
		return fmt.Errorf("failed to update last message: %v", err)
	}
	return nil
}

func (r *MongoConversationRepository) DeleteConversation(ctx context.Context, id primitive.ObjectID) error {
	_, err := r.conversations.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %v", err)
	}
	return nil
}

func (r *MongoConversationRepository) AddMember(ctx context.Context, m *models.ConversationMember) (*models.ConversationMember, error) {
	m.JoinedAt = time.Now()

	result, err := r.members.InsertOne(ctx, m)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("member already in conversation: %w", err)
		}
		return nil, fmt.Errorf("failed to insert conversation member: %v", err)
	}

	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return nil, fmt.Errorf("failed to cast inserted ID")
	}
	m.ID = insertedID

	return m, nil
}

func (r *MongoConversationRepository) GetMember(ctx context.Context, memberID, conversationID primitive.ObjectID) (*models.ConversationMember, error) {
	var m models.ConversationMember
	err := r.members.FindOne(ctx, bson.M{
		"member_id":       memberID,
		"conversation_id": conversationID,
	}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find conversation member: %v", err)
	}
	return &m, nil
}

func (r *MongoConversationRepository) GetMembers(ctx context.Context, conversationID primitive.ObjectID) ([]models.ConversationMember, error) {
	cursor, err := r.members.Find(ctx, bson.M{"conversation_id": conversationID})
	if err != nil {
		return nil, fmt.Errorf("failed to find conversation members: %v", err)
	}
	defer cursor.Close(ctx)

	var members []models.ConversationMember
	for cursor.Next(ctx) {
		var m models.ConversationMember
		if err := cursor.Decode(&m); err != nil {
			return nil, err
		}
		members = append(members, m)
	}

	return members, cursor.Err()
}

func (r *MongoConversationRepository) GetMembershipsByUser(ctx context.Context, memberID primitive.ObjectID) ([]models.ConversationMember, error) {
	cursor, err := r.members.Find(ctx, bson.M{"member_id": memberID})
	if err != nil {
		return nil, fmt.Errorf("failed to find memberships: %v", err)
	}
	defer cursor.Close(ctx)

	var memberships []models.ConversationMember
	for cursor.Next(ctx) {
		var m models.ConversationMember
		if err := cursor.Decode(&m); err != nil {
			return nil, err
		}
		memberships = append(memberships, m)
	}

	return memberships, cursor.Err()
}

func (r *MongoConversationRepository) CountMembers(ctx context.Context, conversationID primitive.ObjectID) (int64, error) {
	count, err := r.members.CountDocuments(ctx, bson.M{"conversation_id": conversationID})
	if err != nil {
		return 0, fmt.Errorf("failed to count members: %v", err)
	}
	return count, nil
}

// SetLastSeen moves the member's read watermark. A nil messageID clears it
// back to "has seen nothing".
func (r *MongoConversationRepository) SetLastSeen(ctx context.Context, memberID, conversationID primitive.ObjectID, messageID *primitive.ObjectID) error {
	filter := bson.M{"member_id": memberID, "conversation_id": conversationID}

	var update bson.M
	if messageID == nil {
		update = bson.M{"$unset": bson.M{"last_seen_message_id": ""}}
	} else {
		update = bson.M{"$set": bson.M{"last_seen_message_id": *messageID}}
	}

	_, err := r.members.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update last seen message: %v", err)
	}
	return nil
}

func (r *MongoConversationRepository) DeleteMember(ctx context.Context, memberID, conversationID primitive.ObjectID) error {
	_, err := r.members.DeleteOne(ctx, bson.M{
		"member_id":       memberID,
		"conversation_id": conversationID,
	})
	if err != nil {
		return fmt.Errorf("failed to delete conversation member: %v", err)
	}
	return nil
}

func (r *MongoConversationRepository) DeleteMembers(ctx context.Context, conversationID primitive.ObjectID) error {
	_, err := r.members.DeleteMany(ctx, bson.M{"conversation_id": conversationID})
	if err != nil {
		return fmt.Errorf("failed to delete conversation members: %v", err)
	}
	return nil
}

func (r *MongoConversationRepository) InsertMessage(ctx context.Context, msg *models.Message) (*models.Message, error) {
	msg.CreatedAt = time.Now()

	result, err := r.messages.InsertOne(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("failed to insert message: %v", err)
	}

	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return nil, fmt.Errorf("failed to cast inserted ID")
	}
	msg.ID = insertedID

	return msg, nil
}

func (r *MongoConversationRepository) GetMessage(ctx context.Context, id primitive.ObjectID) (*models.Message, error) {
	var msg models.Message
	err := r.messages.FindOne(ctx, bson.M{"_id": id}).Decode(&msg)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find message: %v", err)
	}
	return &msg, nil
}

// GetMessages returns the conversation's messages newest first.
func (r *MongoConversationRepository) GetMessages(ctx context.Context, conversationID primitive.ObjectID) ([]models.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.messages.Find(ctx, bson.M{"conversation_id": conversationID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find messages: %v", err)
	}
	defer cursor.Close(ctx)

	var messages []models.Message
	for cursor.Next(ctx) {
		var msg models.Message
		if err := cursor.Decode(&msg); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	return messages, cursor.Err()
}

func (r *MongoConversationRepository) CountMessagesAfter(ctx context.Context, conversationID primitive.ObjectID, after time.Time) (int64, error) {
	count, err := r.messages.CountDocuments(ctx, bson.M{
		"conversation_id": conversationID,
		"created_at":      bson.M{"$gt": after},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %v", err)
	}
	return count, nil
}

func (r *MongoConversationRepository) CountMessages(ctx context.Context, conversationID primitive.ObjectID) (int64, error) {
	count, err := r.messages.CountDocuments(ctx, bson.M{"conversation_id": conversationID})
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %v", err)
	}
	return count, nil
}

func (r *MongoConversationRepository) DeleteMessages(ctx context.Context, conversationID primitive.ObjectID) error {
	_, err := r.messages.DeleteMany(ctx, bson.M{"conversation_id": conversationID})
	if err != nil {
		return fmt.Errorf("failed to delete messages: %v", err)
	}
	return nil
}
