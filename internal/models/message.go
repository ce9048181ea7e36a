package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Message is append-only; it is removed only when its conversation is torn
// down. Display order is created_at descending.
type Message struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SenderID       primitive.ObjectID `bson:"sender_id" json:"sender_id"`
	ConversationID primitive.ObjectID `bson:"conversation_id" json:"conversation_id"`
	Type           string             `bson:"type" json:"type"` // "text", "image", "file"
	Text           string             `bson:"text,omitempty" json:"text,omitempty"`
	FileURL        string             `bson:"file_url,omitempty" json:"file_url,omitempty"`
	FileName       string             `bson:"file_name,omitempty" json:"file_name,omitempty"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
}

// MessageView is a message annotated with its resolved sender for display.
type MessageView struct {
	Message
	SenderName    string `json:"sender_name"`
	SenderAvatar  string `json:"sender_avatar,omitempty"`
	IsCurrentUser bool   `json:"is_current_user"`
}
