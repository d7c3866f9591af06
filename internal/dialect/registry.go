package dialect

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"github.com/arwahdevops/schemasync/internal/audit"
	"github.com/arwahdevops/schemasync/internal/config"
	"github.com/arwahdevops/schemasync/internal/db"
)

// OpenOptions carries the connection tuning shared by every adapter.
type OpenOptions struct {
	PoolSize    int
	MaxLifetime time.Duration
	GormLogger  gormlogger.Interface
	Logger      *zap.Logger
}

// Open builds the adapter for a vendor from connection parameters and
// resolved credentials. The returned adapter owns its connection and
// must be closed by the caller.
func Open(ctx context.Context, vendor Vendor, params *config.ConnectionParams, username, password string, opts OpenOptions) (Adapter, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	switch vendor {
	case VendorMongoDB:
		return openMongo(ctx, params, username, password, logger)
	case VendorNeo4j:
		return openNeo4j(ctx, params, username, password, logger)
	}

	dsn, err := db.BuildDSN(vendor.Dialect(), params, username, password)
	if err != nil {
		return nil, err
	}
	conn, err := db.New(vendor.Dialect(), dsn, opts.GormLogger)
	if err != nil {
		return nil, err
	}
	if err := conn.Optimize(opts.PoolSize, opts.MaxLifetime); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("tune connection pool for %s: %w", vendor, err)
	}
	return NewSQLAdapter(conn, vendor, audit.NewGormStore(conn.DB), logger), nil
}

func openMongo(ctx context.Context, params *config.ConnectionParams, username, password string, logger *zap.Logger) (Adapter, error) {
	uri := params.URI
	if uri == "" {
		if params.Host == "" || params.Port == 0 {
			return nil, fmt.Errorf("mongodb connection requires uri, or host and port")
		}
		u := &url.URL{
			Scheme: "mongodb",
			Host:   fmt.Sprintf("%s:%d", params.Host, params.Port),
		}
		if username != "" {
			u.User = url.UserPassword(username, password)
		}
		uri = u.String()
	}
	if params.Database == "" {
		return nil, fmt.Errorf("mongodb connection requires a database for the synchronization log")
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	return NewMongoAdapter(client, params.Database, logger), nil
}

func openNeo4j(ctx context.Context, params *config.ConnectionParams, username, password string, logger *zap.Logger) (Adapter, error) {
	uri := params.URI
	if uri == "" {
		if params.Host == "" || params.Port == 0 {
			return nil, fmt.Errorf("neo4j connection requires uri, or host and port")
		}
		uri = fmt.Sprintf("neo4j://%s:%d", params.Host, params.Port)
	}

	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("connect to neo4j: %w", err)
	}
	return NewNeo4jAdapter(driver, logger), nil
}
