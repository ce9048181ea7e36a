package database

import (
	"context"

	"github.com/schoolhub/social-api/pkg/logger"
	"go.mongodb.org/mongo-driver/mongo"
)

// TxnRunner executes a multi-write unit with all-or-nothing semantics where
// the store supports it. The service layer runs every multi-entity mutation
// (accept request, create group, delete group, remove friend) through this.
type TxnRunner interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// MongoTxnRunner backs TxnRunner with a client session. On topologies
// without transaction support (standalone mongod) it degrades to running the
// body directly, relying on the store serializing each individual write.
type MongoTxnRunner struct {
	client *mongo.Client
}

func NewMongoTxnRunner(client *mongo.Client) *MongoTxnRunner {
	return &MongoTxnRunner{client: client}
}

func (r *MongoTxnRunner) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	session, err := r.client.StartSession()
	if err != nil {
		logger.Log.Warnf("Sessions unavailable, running writes without transaction: %v", err)
		return fn(ctx)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}
