package dialect

import (
	"context"
	"fmt"
	"strings"

	"github.com/arwahdevops/schemasync/internal/audit"
)

// ObjectType identifies the kind of schema object an operation addresses.
type ObjectType string

const (
	ObjectTable     ObjectType = "table"
	ObjectView      ObjectType = "view"
	ObjectProcedure ObjectType = "procedure"
	ObjectIndex     ObjectType = "index"
)

// ParseObjectType maps user input (CLI args, config values) to an ObjectType.
func ParseObjectType(s string) (ObjectType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "table":
		return ObjectTable, nil
	case "view":
		return ObjectView, nil
	case "procedure":
		return ObjectProcedure, nil
	case "index":
		return ObjectIndex, nil
	default:
		return "", fmt.Errorf("unknown object type '%s' (expected table, view, procedure or index)", s)
	}
}

// Vendor is a recognized database vendor tag as it appears in target
// configuration files.
type Vendor string

const (
	VendorMySQL     Vendor = "mysql"
	VendorPostgres  Vendor = "postgresql"
	VendorSQLite    Vendor = "sqlite"
	VendorSQLServer Vendor = "sqlserver"
	VendorOracle    Vendor = "oracle"
	VendorMongoDB   Vendor = "mongodb"
	VendorNeo4j     Vendor = "neo4j"
)

// ParseVendor canonicalizes a vendor tag. Common aliases are accepted so
// config files written for other tools keep working.
func ParseVendor(s string) (Vendor, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mysql", "mariadb":
		return VendorMySQL, nil
	case "postgresql", "postgres":
		return VendorPostgres, nil
	case "sqlite", "sqlite3":
		return VendorSQLite, nil
	case "sqlserver", "mssql":
		return VendorSQLServer, nil
	case "oracle":
		return VendorOracle, nil
	case "mongodb", "mongo":
		return VendorMongoDB, nil
	case "neo4j":
		return VendorNeo4j, nil
	default:
		return "", fmt.Errorf("unknown vendor tag '%s'", s)
	}
}

// Relational reports whether the vendor speaks SQL DDL. Non-relational
// vendors carry a synchronization log but no schema operations.
func (v Vendor) Relational() bool {
	switch v {
	case VendorMongoDB, VendorNeo4j:
		return false
	default:
		return true
	}
}

// Dialect returns the driver dialect key used by the connection layer.
func (v Vendor) Dialect() string {
	if v == VendorPostgres {
		return "postgres"
	}
	return string(v)
}

// IndexDef describes one secondary index on a table. RawDef carries the
// vendor's own CREATE INDEX text when the catalog provides one; when it
// is empty the statement is rebuilt from Name, Table, Columns and Unique.
type IndexDef struct {
	Name    string
	Table   string
	Columns []string
	Unique  bool
	RawDef  string
}

// QualifiedName is the index identity used in the synchronization log,
// table-qualified because index names are only unique per table on some
// vendors.
func (d IndexDef) QualifiedName() string {
	return d.Table + "." + d.Name
}

// Adapter is the uniform per-vendor contract the engine is written
// against. One instance owns one exclusive connection; the engine runs
// at most one validate/execute pair on it at a time, and the adapter
// additionally serializes statement-level calls internally.
type Adapter interface {
	Vendor() Vendor
	Ping(ctx context.Context) error
	Close() error

	// Exists reports whether the named object is present in the
	// adapter's visible catalog.
	Exists(ctx context.Context, objectType ObjectType, name string) (bool, error)
	// GetDefinition returns the object's DDL text. A missing object or
	// a vendor that cannot reconstruct DDL for this type yields an
	// error wrapping ErrDefinitionUnavailable.
	GetDefinition(ctx context.Context, objectType ObjectType, name string) (string, error)
	// ListObjects enumerates the names of all objects of the given type
	// visible to the connection. Each call runs a fresh catalog query.
	ListObjects(ctx context.Context, objectType ObjectType) ([]string, error)
	// ListIndexes returns the secondary indexes of a table, primary key
	// indexes excluded. A missing table yields an empty slice.
	ListIndexes(ctx context.Context, table string) ([]IndexDef, error)
	// BuildCreateIndex renders def as a CREATE INDEX statement in this
	// vendor's dialect.
	BuildCreateIndex(def IndexDef) (string, error)

	// Validate dry-runs a statement without leaving observable state.
	Validate(ctx context.Context, statement string) error
	// Execute applies a statement for real.
	Execute(ctx context.Context, statement string) error
	// Drop removes an object. Dropping a non-existent object is not an
	// error.
	Drop(ctx context.Context, objectType ObjectType, name string) error
	// Recreate drops any existing object of that identity, validates
	// the definition and executes it, as one serialized sequence.
	Recreate(ctx context.Context, objectType ObjectType, name, definition string) error

	// AuditStore exposes the synchronization log living on this
	// adapter's database.
	AuditStore() audit.Store
}
