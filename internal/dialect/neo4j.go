package dialect

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/arwahdevops/schemasync/internal/audit"
)

// Neo4jAdapter is a connectivity and audit-log adapter. Graph stores
// have no schema objects to reconcile, so every schema operation
// reports ErrUnsupported instead of silently succeeding.
type Neo4jAdapter struct {
	driver neo4j.DriverWithContext
	store  audit.Store
	logger *zap.Logger
}

var _ Adapter = (*Neo4jAdapter)(nil)

func NewNeo4jAdapter(driver neo4j.DriverWithContext, logger *zap.Logger) *Neo4jAdapter {
	return &Neo4jAdapter{
		driver: driver,
		store:  audit.NewNeo4jStore(driver),
		logger: logger.With(zap.String("vendor", string(VendorNeo4j))),
	}
}

func (a *Neo4jAdapter) Vendor() Vendor          { return VendorNeo4j }
func (a *Neo4jAdapter) AuditStore() audit.Store { return a.store }

func (a *Neo4jAdapter) Ping(ctx context.Context) error {
	if err := a.driver.VerifyConnectivity(ctx); err != nil {
		return fmt.Errorf("neo4j connectivity check: %w", err)
	}
	return nil
}

func (a *Neo4jAdapter) Close() error {
	return a.driver.Close(context.Background())
}

func (a *Neo4jAdapter) unsupported(op string) error {
	return fmt.Errorf("%s on neo4j: %w", op, ErrUnsupported)
}

func (a *Neo4jAdapter) Exists(ctx context.Context, objectType ObjectType, name string) (bool, error) {
	return false, a.unsupported("existence check")
}

func (a *Neo4jAdapter) GetDefinition(ctx context.Context, objectType ObjectType, name string) (string, error) {
	return "", a.unsupported("definition retrieval")
}

func (a *Neo4jAdapter) ListObjects(ctx context.Context, objectType ObjectType) ([]string, error) {
	return nil, a.unsupported("object enumeration")
}

func (a *Neo4jAdapter) ListIndexes(ctx context.Context, table string) ([]IndexDef, error) {
	return nil, a.unsupported("index enumeration")
}

func (a *Neo4jAdapter) BuildCreateIndex(def IndexDef) (string, error) {
	return "", a.unsupported("index statement construction")
}

func (a *Neo4jAdapter) Validate(ctx context.Context, statement string) error {
	return a.unsupported("statement validation")
}

func (a *Neo4jAdapter) Execute(ctx context.Context, statement string) error {
	return a.unsupported("statement execution")
}

func (a *Neo4jAdapter) Drop(ctx context.Context, objectType ObjectType, name string) error {
	return a.unsupported("drop")
}

func (a *Neo4jAdapter) Recreate(ctx context.Context, objectType ObjectType, name, definition string) error {
	return a.unsupported("recreate")
}
