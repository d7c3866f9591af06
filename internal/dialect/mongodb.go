package dialect

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/arwahdevops/schemasync/internal/audit"
)

// MongoAdapter is a connectivity and audit-log adapter. Document stores
// have no schema objects to reconcile, so every schema operation
// reports ErrUnsupported instead of silently succeeding.
type MongoAdapter struct {
	client *mongo.Client
	store  audit.Store
	logger *zap.Logger
}

var _ Adapter = (*MongoAdapter)(nil)

func NewMongoAdapter(client *mongo.Client, database string, logger *zap.Logger) *MongoAdapter {
	return &MongoAdapter{
		client: client,
		store:  audit.NewMongoStore(client, database),
		logger: logger.With(zap.String("vendor", string(VendorMongoDB))),
	}
}

func (a *MongoAdapter) Vendor() Vendor          { return VendorMongoDB }
func (a *MongoAdapter) AuditStore() audit.Store { return a.store }

func (a *MongoAdapter) Ping(ctx context.Context) error {
	if err := a.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("mongodb ping: %w", err)
	}
	return nil
}

func (a *MongoAdapter) Close() error {
	return a.client.Disconnect(context.Background())
}

func (a *MongoAdapter) unsupported(op string) error {
	return fmt.Errorf("%s on mongodb: %w", op, ErrUnsupported)
}

func (a *MongoAdapter) Exists(ctx context.Context, objectType ObjectType, name string) (bool, error) {
	return false, a.unsupported("existence check")
}

func (a *MongoAdapter) GetDefinition(ctx context.Context, objectType ObjectType, name string) (string, error) {
	return "", a.unsupported("definition retrieval")
}

func (a *MongoAdapter) ListObjects(ctx context.Context, objectType ObjectType) ([]string, error) {
	return nil, a.unsupported("object enumeration")
}

func (a *MongoAdapter) ListIndexes(ctx context.Context, table string) ([]IndexDef, error) {
	return nil, a.unsupported("index enumeration")
}

func (a *MongoAdapter) BuildCreateIndex(def IndexDef) (string, error) {
	return "", a.unsupported("index statement construction")
}

func (a *MongoAdapter) Validate(ctx context.Context, statement string) error {
	return a.unsupported("statement validation")
}

func (a *MongoAdapter) Execute(ctx context.Context, statement string) error {
	return a.unsupported("statement execution")
}

func (a *MongoAdapter) Drop(ctx context.Context, objectType ObjectType, name string) error {
	return a.unsupported("drop")
}

func (a *MongoAdapter) Recreate(ctx context.Context, objectType ObjectType, name, definition string) error {
	return a.unsupported("recreate")
}
