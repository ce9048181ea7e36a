package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/schoolhub/social-api/internal/models"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// UserRepository looks users up across the disjoint role collections. Lookup
// methods return (nil, nil) when no collection matches; callers decide
// whether that is an authentication failure or a plain miss.
type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) (*models.User, error)
	FindByExternalID(ctx context.Context, externalID string) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByUsernameInRole(ctx context.Context, role, username string) (*models.User, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	UpdateLastActive(ctx context.Context, role string, id primitive.ObjectID) error
}

type roleCollection struct {
	role string
	coll *mongo.Collection
}

// MongoUserRepository implements UserRepository over one collection per role,
// scanned in the fixed order admin, teacher, student, parent.
type MongoUserRepository struct {
	collections []roleCollection
}

func NewUserRepository(db *mongo.Database) *MongoUserRepository {
	names := map[string]string{
		models.RoleAdmin:   "admins",
		models.RoleTeacher: "teachers",
		models.RoleStudent: "students",
		models.RoleParent:  "parents",
	}

	repo := &MongoUserRepository{}
	for _, role := range models.AllRoles {
		repo.collections = append(repo.collections, roleCollection{
			role: role,
			coll: db.Collection(names[role]),
		})
	}
	return repo
}

// CreateUser inserts the user into its role's collection.
func (r *MongoUserRepository) CreateUser(ctx context.Context, user *models.User) (*models.User, error) {
	user.CreatedAt = time.Now()
	user.UpdatedAt = time.Now()

	coll, err := r.collectionFor(user.Role)
	if err != nil {
		return nil, err
	}

	result, err := coll.InsertOne(ctx, user)
	if err != nil {
		logrus.WithError(err).Error("Failed to insert user into database")
		return nil, fmt.Errorf("failed to insert user: %v", err)
	}

	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return nil, fmt.Errorf("failed to cast inserted ID")
	}
	user.ID = insertedID

	logrus.WithFields(logrus.Fields{
		"userID": user.ID.Hex(),
		"role":   user.Role,
	}).Info("User inserted successfully")
	return user, nil
}

// FindByExternalID scans the role collections for the identity-provider id.
func (r *MongoUserRepository) FindByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	return r.scan(ctx, bson.M{"external_id": externalID})
}

// FindByUsername scans the role collections for a username. Usernames are
// unique only within a role; on a cross-role collision the first collection
// in scan order wins.
func (r *MongoUserRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.scan(ctx, bson.M{"username": username})
}

// FindByUsernameInRole looks a username up in a single role's collection.
// Usernames are unique per role, so this is the authoritative lookup for
// registration duplicate checks.
func (r *MongoUserRepository) FindByUsernameInRole(ctx context.Context, role, username string) (*models.User, error) {
	coll, err := r.collectionFor(role)
	if err != nil {
		return nil, err
	}

	var user models.User
	err = coll.FindOne(ctx, bson.M{"username": username}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query %s collection: %v", role, err)
	}
	user.Role = role
	return &user, nil
}

// FindByID scans the role collections for an internal id.
func (r *MongoUserRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return r.scan(ctx, bson.M{"_id": id})
}

func (r *MongoUserRepository) scan(ctx context.Context, filter bson.M) (*models.User, error) {
	for _, rc := range r.collections {
		var user models.User
		err := rc.coll.FindOne(ctx, filter).Decode(&user)
		if err == nil {
			user.Role = rc.role
			return &user, nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("failed to query %s collection: %v", rc.role, err)
		}
	}
	return nil, nil
}

func (r *MongoUserRepository) UpdateLastActive(ctx context.Context, role string, id primitive.ObjectID) error {
	coll, err := r.collectionFor(role)
	if err != nil {
		return err
	}

	_, err = coll.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"last_active_at": time.Now()}},
	)
	if err != nil {
		return fmt.Errorf("failed to update last active: %v", err)
	}
	return nil
}

func (r *MongoUserRepository) collectionFor(role string) (*mongo.Collection, error) {
	for _, rc := range r.collections {
		if rc.role == role {
			return rc.coll, nil
		}
	}
	return nil, fmt.Errorf("unknown user role %q", role)
}
