//go:build integration

package integration

import (
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/arwahdevops/schemasync/internal/config"
	"github.com/arwahdevops/schemasync/internal/dialect"
	schemasync "github.com/arwahdevops/schemasync/internal/sync"
)

const (
	postgresImage = "postgres:13-alpine"
	mysqlImage    = "mysql:8.0"
)

// TestDBInstance holds the details of one containerized database. DB is a
// direct GORM handle for seeding schemas outside the engine under test.
type TestDBInstance struct {
	Container testcontainers.Container
	Dialect   string
	DB        *gorm.DB
	Host      string
	Port      nat.Port
	Username  string
	Password  string
	DBName    string
}

// mustPortInt converts a nat.Port to int.
func mustPortInt(t *testing.T, port nat.Port) int {
	t.Helper()
	p, err := strconv.Atoi(port.Port())
	if err != nil {
		t.Fatalf("Failed to convert port %s to int: %v", port.Port(), err)
	}
	return p
}

// startPostgresContainer starts a PostgreSQL container for tests.
func startPostgresContainer(ctx context.Context, t *testing.T) *TestDBInstance {
	t.Helper()
	dbName := "testpgdb"
	dbUser := "testpguser"
	dbPassword := "testpgpass"

	req := testcontainers.ContainerRequest{
		Image:        postgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       dbName,
			"POSTGRES_USER":     dbUser,
			"POSTGRES_PASSWORD": dbPassword,
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start postgres container: %s", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("Failed to get postgres container host: %s", err)
	}
	mappedPort, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("Failed to get mapped port for postgres: %s", err)
	}

	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable connect_timeout=10",
		host, mappedPort.Port(), dbUser, dbPassword, dbName)
	gormDB, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("Failed to connect to test postgres instance: %s", err)
	}

	t.Logf("PostgreSQL container started. Host: %s, Port: %s", host, mappedPort.Port())

	return &TestDBInstance{
		Container: container,
		Dialect:   "postgresql",
		DB:        gormDB,
		Host:      host,
		Port:      mappedPort,
		Username:  dbUser,
		Password:  dbPassword,
		DBName:    dbName,
	}
}

// startMySQLContainer starts a MySQL container for tests.
func startMySQLContainer(ctx context.Context, t *testing.T) *TestDBInstance {
	t.Helper()
	dbName := "testmysqldb"
	dbUser := "testmysqluser"
	dbPassword := "testmysqlpass"
	rootPassword := "MYSQL_R00T_P@$$W0RD!"

	req := testcontainers.ContainerRequest{
		Image:        mysqlImage,
		ExposedPorts: []string{"3306/tcp"},
		Env: map[string]string{
			"MYSQL_DATABASE":      dbName,
			"MYSQL_USER":          dbUser,
			"MYSQL_PASSWORD":      dbPassword,
			"MYSQL_ROOT_PASSWORD": rootPassword,
		},
		WaitingFor: wait.ForListeningPort("3306/tcp").
			WithStartupTimeout(120 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start mysql container: %s", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("Failed to get mysql container host: %s", err)
	}
	mappedPort, err := container.MappedPort(ctx, "3306/tcp")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("Failed to get mapped port for mysql: %s", err)
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local&timeout=20s",
		dbUser, dbPassword, host, mappedPort.Port(), dbName)

	// The listening port comes up before the server accepts credentials,
	// so the first connections may still be rejected.
	var gormDB *gorm.DB
	var gormErr error
	for i := 0; i < 10; i++ {
		gormDB, gormErr = gorm.Open(mysql.Open(dsn), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
		if gormErr == nil {
			sqlDB, dbErr := gormDB.DB()
			if dbErr == nil {
				pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
				pingErr := sqlDB.PingContext(pingCtx)
				cancelPing()
				if pingErr == nil {
					break
				}
				gormErr = fmt.Errorf("ping failed: %w", pingErr)
			} else {
				gormErr = fmt.Errorf("failed to get underlying sql.DB: %w", dbErr)
			}
		}
		if i < 9 {
			t.Logf("MySQL connection attempt %d failed: %v. Retrying in 2s...", i+1, gormErr)
			select {
			case <-time.After(2 * time.Second):
			case <-ctx.Done():
				_ = container.Terminate(ctx)
				t.Fatalf("Context cancelled while retrying MySQL connection: %v", ctx.Err())
			}
		}
	}
	if gormErr != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("Failed to connect to test mysql instance after retries: %s", gormErr)
	}

	t.Logf("MySQL container started. Host: %s, Port: %s", host, mappedPort.Port())

	return &TestDBInstance{
		Container: container,
		Dialect:   "mysql",
		DB:        gormDB,
		Host:      host,
		Port:      mappedPort,
		Username:  dbUser,
		Password:  dbPassword,
		DBName:    dbName,
	}
}

// stopContainer closes the seeding handle and terminates the container.
func stopContainer(ctx context.Context, t *testing.T, instance *TestDBInstance) {
	t.Helper()
	if instance == nil {
		return
	}
	if instance.DB != nil {
		sqlDB, _ := instance.DB.DB()
		if sqlDB != nil {
			if err := sqlDB.Close(); err != nil {
				t.Logf("Warning: error closing GORM DB connection for %s: %v", instance.Dialect, err)
			}
		}
	}
	if instance.Container != nil {
		select {
		case <-time.After(200 * time.Millisecond):
		case <-ctx.Done():
		}
		if err := instance.Container.Terminate(ctx); err != nil {
			t.Logf("Warning: failed to terminate container for %s: %s", instance.Dialect, err)
		} else {
			t.Logf("%s container terminated successfully.", instance.Dialect)
		}
	}
}

// openAdapter opens a schemasync adapter against a test instance, the same
// way main does from a connection document.
func openAdapter(ctx context.Context, t *testing.T, inst *TestDBInstance) dialect.Adapter {
	t.Helper()
	vendor, err := dialect.ParseVendor(inst.Dialect)
	require.NoError(t, err)

	params := &config.ConnectionParams{
		Host:     inst.Host,
		Port:     mustPortInt(t, inst.Port),
		Database: inst.DBName,
		SSLMode:  "disable",
	}
	adapter, err := dialect.Open(ctx, vendor, params, inst.Username, inst.Password, dialect.OpenOptions{
		PoolSize:    4,
		MaxLifetime: time.Hour,
		GormLogger:  gormlogger.Default.LogMode(gormlogger.Silent),
		Logger:      zaptest.NewLogger(t),
	})
	require.NoError(t, err, "Failed to open %s adapter", inst.Dialect)
	t.Cleanup(func() { _ = adapter.Close() })
	return adapter
}

// resultsByName indexes object results by object name for assertions.
func resultsByName(objects []schemasync.ObjectResult) map[string]schemasync.ObjectResult {
	byName := make(map[string]schemasync.ObjectResult, len(objects))
	for _, obj := range objects {
		byName[obj.ObjectName] = obj
	}
	return byName
}

// mustExec runs one seeding statement and fails the test on error.
func mustExec(t *testing.T, db *gorm.DB, stmt string) {
	t.Helper()
	require.NoError(t, db.Exec(stmt).Error, "seed statement failed: %s", stmt)
}
