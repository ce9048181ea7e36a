package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	RequestStatusPending = "pending"

	FriendshipStatusActive = "active"
)

// FriendRequest is a directed, short-lived invitation. It is deleted when
// accepted or rejected, never kept around in a terminal status.
type FriendRequest struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SenderID     primitive.ObjectID `bson:"sender_id" json:"sender_id"`
	SenderRole   string             `bson:"sender_role" json:"sender_role"`
	ReceiverID   primitive.ObjectID `bson:"receiver_id" json:"receiver_id"`
	ReceiverRole string             `bson:"receiver_role" json:"receiver_role"`
	Status       string             `bson:"status" json:"status"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
}

// PendingRequest is a request joined with its resolved sender, shown in the
// receiver's inbox.
type PendingRequest struct {
	ID     primitive.ObjectID `json:"id"`
	Sender PublicUser         `json:"sender"`
	SentAt time.Time          `json:"sent_at"`
}

// Friendship is the accepted edge between two users. User1 is the accepter,
// User2 the original sender; lookups must check both slots. Each friendship
// owns exactly one direct conversation.
type Friendship struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	User1          primitive.ObjectID `bson:"user1" json:"user1"`
	Role1          string             `bson:"role1" json:"role1"`
	User2          primitive.ObjectID `bson:"user2" json:"user2"`
	Role2          string             `bson:"role2" json:"role2"`
	Status         string             `bson:"status" json:"status"`
	ConversationID primitive.ObjectID `bson:"conversation_id" json:"conversation_id"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
}

// OtherParty returns the friend's id and role from the caller's point of
// view. ok is false when the caller is on neither slot.
func (f *Friendship) OtherParty(userID primitive.ObjectID) (primitive.ObjectID, string, bool) {
	switch userID {
	case f.User1:
		return f.User2, f.Role2, true
	case f.User2:
		return f.User1, f.Role1, true
	}
	return primitive.NilObjectID, "", false
}

// Friend is a friendship joined with the resolved other party.
type Friend struct {
	User           PublicUser         `json:"user"`
	ConversationID primitive.ObjectID `json:"conversation_id"`
	Since          time.Time          `json:"since"`
}
