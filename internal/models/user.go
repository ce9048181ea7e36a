package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Roles correspond to the disjoint user collections.
const (
	RoleAdmin   = "admin"
	RoleTeacher = "teacher"
	RoleStudent = "student"
	RoleParent  = "parent"
)

// AllRoles is the fixed scan order for cross-collection lookups; the first
// match wins.
var AllRoles = []string{RoleAdmin, RoleTeacher, RoleStudent, RoleParent}

// User represents an account in one of the role collections. Username and
// ExternalID are unique within a collection, not across collections.
type User struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Username       string             `bson:"username" json:"username"`
	ExternalID     string             `bson:"external_id" json:"external_id"`
	Email          string             `bson:"email" json:"email"`
	HashedPassword string             `bson:"hashed_password" json:"-"`
	Role           string             `bson:"role" json:"role"`
	FirstName      string             `bson:"first_name,omitempty" json:"first_name,omitempty"`
	LastName       string             `bson:"last_name,omitempty" json:"last_name,omitempty"`
	AvatarURL      string             `bson:"avatar_url,omitempty" json:"avatar_url,omitempty"`
	LastActiveAt   time.Time          `bson:"last_active_at,omitempty" json:"last_active_at,omitempty"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time          `bson:"updated_at" json:"updated_at"`
}

type PublicUser struct {
	ID        primitive.ObjectID `json:"id"`
	Username  string             `json:"username"`
	Role      string             `json:"role"`
	AvatarURL string             `json:"avatar_url,omitempty"`
}

// Public strips the account down to what other users may see.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		Username:  u.Username,
		Role:      u.Role,
		AvatarURL: u.AvatarURL,
	}
}
