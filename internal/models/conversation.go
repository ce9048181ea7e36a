package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Conversation is a direct (two-member, friendship-backed) or group (named,
// N-member) chat. LastMessageID is a denormalized pointer to the most
// recently inserted message, absent while the conversation is empty.
type Conversation struct {
	ID            primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Name          string              `bson:"name,omitempty" json:"name,omitempty"`
	IsGroup       bool                `bson:"is_group" json:"is_group"`
	LastMessageID *primitive.ObjectID `bson:"last_message_id,omitempty" json:"last_message_id,omitempty"`
	CreatedAt     time.Time           `bson:"created_at" json:"created_at"`
}

// ConversationMember grants a user access to a conversation and tracks their
// read position. LastSeenMessageID is a watermark; absent means the member
// has seen nothing yet. (member_id, conversation_id) is unique.
type ConversationMember struct {
	ID                primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	MemberID          primitive.ObjectID  `bson:"member_id" json:"member_id"`
	ConversationID    primitive.ObjectID  `bson:"conversation_id" json:"conversation_id"`
	LastSeenMessageID *primitive.ObjectID `bson:"last_seen_message_id,omitempty" json:"last_seen_message_id,omitempty"`
	JoinedAt          time.Time           `bson:"joined_at" json:"joined_at"`
}

// GroupMember is the reduced member shape returned for group conversations.
type GroupMember struct {
	ID       primitive.ObjectID `json:"id"`
	Username string             `json:"username"`
}

// ConversationView is the membership-gated read shape of a conversation.
// Direct conversations carry the other party and their watermark; groups
// carry the list of other members.
type ConversationView struct {
	Conversation Conversation        `json:"conversation"`
	OtherUser    *PublicUser         `json:"other_user,omitempty"`
	OtherSeenID  *primitive.ObjectID `json:"other_seen_id,omitempty"`
	Members      []GroupMember       `json:"members,omitempty"`
}

// ConversationSummary is one entry of a user's conversation list, used for
// badge rendering.
type ConversationSummary struct {
	Conversation Conversation `json:"conversation"`
	DisplayName  string       `json:"display_name"`
	LastMessage  *Message     `json:"last_message,omitempty"`
	UnseenCount  int64        `json:"unseen_count"`
}
