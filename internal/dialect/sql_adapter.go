package dialect

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/arwahdevops/schemasync/internal/audit"
	"github.com/arwahdevops/schemasync/internal/db"
	"github.com/arwahdevops/schemasync/internal/utils"
)

// SQLAdapter implements Adapter for every relational vendor. Vendor
// differences live in per-vendor query functions; everything above the
// query level (serialization, dry-run mechanics, missing-object
// tolerance) is shared.
//
// The mutex serializes statement execution on the underlying
// connection. Recreate holds it across its whole drop/validate/execute
// sequence so no other statement can interleave.
type SQLAdapter struct {
	conn   *db.Connector
	vendor Vendor
	store  audit.Store
	logger *zap.Logger
	mu     sync.Mutex
}

var _ Adapter = (*SQLAdapter)(nil)

func NewSQLAdapter(conn *db.Connector, vendor Vendor, store audit.Store, logger *zap.Logger) *SQLAdapter {
	return &SQLAdapter{
		conn:   conn,
		vendor: vendor,
		store:  store,
		logger: logger.With(zap.String("vendor", string(vendor))),
	}
}

func (a *SQLAdapter) Vendor() Vendor          { return a.vendor }
func (a *SQLAdapter) AuditStore() audit.Store { return a.store }

func (a *SQLAdapter) Ping(ctx context.Context) error { return a.conn.Ping(ctx) }
func (a *SQLAdapter) Close() error                   { return a.conn.Close() }

func (a *SQLAdapter) Exists(ctx context.Context, objectType ObjectType, name string) (bool, error) {
	if err := checkObjectName(objectType, name); err != nil {
		return false, err
	}
	switch a.vendor {
	case VendorMySQL:
		return mysqlExists(ctx, a.conn.DB, objectType, name)
	case VendorPostgres:
		return postgresExists(ctx, a.conn.DB, objectType, name)
	case VendorSQLite:
		return sqliteExists(ctx, a.conn.DB, objectType, name)
	case VendorSQLServer:
		return sqlserverExists(ctx, a.conn.DB, objectType, name)
	case VendorOracle:
		return oracleExists(ctx, a.conn.DB, objectType, name)
	}
	return false, fmt.Errorf("existence check on %s: %w", a.vendor, ErrUnsupported)
}

func (a *SQLAdapter) GetDefinition(ctx context.Context, objectType ObjectType, name string) (string, error) {
	if err := checkObjectName(objectType, name); err != nil {
		return "", err
	}
	switch a.vendor {
	case VendorMySQL:
		return mysqlDefinition(ctx, a.conn.DB, objectType, name)
	case VendorPostgres:
		return postgresDefinition(ctx, a.conn.DB, objectType, name)
	case VendorSQLite:
		return sqliteDefinition(ctx, a.conn.DB, objectType, name)
	case VendorSQLServer:
		return sqlserverDefinition(ctx, a.conn.DB, objectType, name)
	case VendorOracle:
		return oracleDefinition(ctx, a.conn.DB, objectType, name)
	}
	return "", fmt.Errorf("definition retrieval on %s: %w", a.vendor, ErrUnsupported)
}

func (a *SQLAdapter) ListObjects(ctx context.Context, objectType ObjectType) ([]string, error) {
	switch a.vendor {
	case VendorMySQL:
		return mysqlListObjects(ctx, a.conn.DB, objectType)
	case VendorPostgres:
		return postgresListObjects(ctx, a.conn.DB, objectType)
	case VendorSQLite:
		return sqliteListObjects(ctx, a.conn.DB, objectType)
	case VendorSQLServer:
		return sqlserverListObjects(ctx, a.conn.DB, objectType)
	case VendorOracle:
		return oracleListObjects(ctx, a.conn.DB, objectType)
	}
	return nil, fmt.Errorf("object enumeration on %s: %w", a.vendor, ErrUnsupported)
}

func (a *SQLAdapter) ListIndexes(ctx context.Context, table string) ([]IndexDef, error) {
	if err := utils.ValidateIdentifier(table); err != nil {
		return nil, err
	}
	switch a.vendor {
	case VendorMySQL:
		return mysqlListIndexes(ctx, a.conn.DB, table)
	case VendorPostgres:
		return postgresListIndexes(ctx, a.conn.DB, table)
	case VendorSQLite:
		return sqliteListIndexes(ctx, a.conn.DB, table)
	case VendorSQLServer:
		return sqlserverListIndexes(ctx, a.conn.DB, table)
	case VendorOracle:
		return oracleListIndexes(ctx, a.conn.DB, table)
	}
	return nil, fmt.Errorf("index enumeration on %s: %w", a.vendor, ErrUnsupported)
}

func (a *SQLAdapter) BuildCreateIndex(def IndexDef) (string, error) {
	return buildCreateIndex(def, a.vendor)
}

func (a *SQLAdapter) Validate(ctx context.Context, statement string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.validateLocked(ctx, statement)
}

func (a *SQLAdapter) Execute(ctx context.Context, statement string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.executeLocked(ctx, statement)
}

func (a *SQLAdapter) Drop(ctx context.Context, objectType ObjectType, name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dropLocked(ctx, objectType, name)
}

func (a *SQLAdapter) Recreate(ctx context.Context, objectType ObjectType, name, definition string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.dropLocked(ctx, objectType, name); err != nil {
		return err
	}
	if err := a.validateLocked(ctx, definition); err != nil {
		return err
	}
	return a.executeLocked(ctx, definition)
}

func (a *SQLAdapter) validateLocked(ctx context.Context, statement string) error {
	switch a.vendor {
	case VendorMySQL:
		// MySQL autocommits DDL, a transactional dry-run would apply
		// the statement for real. PREPARE parses without executing.
		return a.prepareValidate(ctx, statement)
	case VendorOracle:
		// Oracle autocommits DDL as well and DBMS_SQL.PARSE executes
		// DDL at parse time, so there is no safe dry-run. Errors
		// surface at execute time instead.
		a.logger.Debug("No transactional DDL dry-run on this vendor, validation passes through",
			zap.String("statement_preview", statementPreview(statement)))
		return nil
	default:
		return a.transactionValidate(ctx, statement)
	}
}

// transactionValidate executes the statement inside a transaction that
// is always rolled back.
func (a *SQLAdapter) transactionValidate(ctx context.Context, statement string) error {
	tx := a.conn.DB.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("begin validation transaction: %w", tx.Error)
	}
	execErr := tx.Exec(statement).Error
	if rbErr := tx.Rollback().Error; rbErr != nil && execErr == nil {
		return fmt.Errorf("roll back validation transaction: %w", rbErr)
	}
	if execErr != nil {
		return fmt.Errorf("statement rejected by dry-run: %w", execErr)
	}
	return nil
}

// prepareValidate stages the statement in a session variable and asks
// the server to PREPARE it. Both steps are pinned to one pooled
// connection because user variables are connection-local.
func (a *SQLAdapter) prepareValidate(ctx context.Context, statement string) error {
	return a.conn.DB.WithContext(ctx).Connection(func(tx *gorm.DB) error {
		if err := tx.Exec("SET @schemasync_validate_stmt = ?", statement).Error; err != nil {
			return fmt.Errorf("stage statement for validation: %w", err)
		}
		if err := tx.Exec("PREPARE schemasync_validate FROM @schemasync_validate_stmt").Error; err != nil {
			// Error 1295: This command is not supported in the prepared
			// statement protocol (CREATE PROCEDURE and friends).
			if strings.Contains(err.Error(), "1295") ||
				strings.Contains(strings.ToLower(err.Error()), "not supported in the prepared statement protocol") {
				a.logger.Debug("Statement not preparable, dry-run validation skipped",
					zap.String("statement_preview", statementPreview(statement)))
				return nil
			}
			return fmt.Errorf("statement rejected by dry-run: %w", err)
		}
		if err := tx.Exec("DEALLOCATE PREPARE schemasync_validate").Error; err != nil {
			a.logger.Warn("Failed to deallocate validation statement", zap.Error(err))
		}
		return nil
	})
}

func (a *SQLAdapter) executeLocked(ctx context.Context, statement string) error {
	if err := a.conn.DB.WithContext(ctx).Exec(statement).Error; err != nil {
		return fmt.Errorf("execute statement: %w", err)
	}
	return nil
}

func (a *SQLAdapter) dropLocked(ctx context.Context, objectType ObjectType, name string) error {
	stmt, err := a.dropStatement(objectType, name)
	if err != nil {
		return err
	}
	if err := a.conn.DB.WithContext(ctx).Exec(stmt).Error; err != nil {
		if isMissingObjectError(err, a.vendor) {
			a.logger.Debug("Drop target already absent",
				zap.String("object_type", string(objectType)),
				zap.String("object_name", name))
			return nil
		}
		return fmt.Errorf("drop %s %s: %w", objectType, name, err)
	}
	return nil
}

func (a *SQLAdapter) dropStatement(objectType ObjectType, name string) (string, error) {
	switch a.vendor {
	case VendorMySQL:
		return mysqlDropStatement(objectType, name)
	case VendorPostgres:
		return postgresDropStatement(objectType, name)
	case VendorSQLite:
		return sqliteDropStatement(objectType, name)
	case VendorSQLServer:
		return sqlserverDropStatement(objectType, name)
	case VendorOracle:
		return oracleDropStatement(objectType, name)
	}
	return "", fmt.Errorf("drop on %s: %w", a.vendor, ErrUnsupported)
}

// checkObjectName gates every identifier before it can reach DDL text.
// Index identities are table-qualified and validated per part.
func checkObjectName(objectType ObjectType, name string) error {
	if objectType == ObjectIndex {
		_, _, err := splitIndexName(name)
		return err
	}
	return utils.ValidateIdentifier(name)
}

// splitIndexName splits a table-qualified index identity into its
// validated parts.
func splitIndexName(name string) (table, index string, err error) {
	table, index, found := strings.Cut(name, ".")
	if !found {
		return "", "", fmt.Errorf("index name '%s' must be table-qualified as table.index", name)
	}
	if err := utils.ValidateIdentifier(table); err != nil {
		return "", "", fmt.Errorf("index table part: %w", err)
	}
	if err := utils.ValidateIdentifier(index); err != nil {
		return "", "", fmt.Errorf("index name part: %w", err)
	}
	return table, index, nil
}

// buildCreateIndex rebuilds a portable CREATE INDEX statement from the
// structural fields. RawDef is never replayed on another vendor; it is
// source-dialect text and only useful for logs.
func buildCreateIndex(def IndexDef, vendor Vendor) (string, error) {
	name, table := def.Name, def.Table
	if vendor == VendorOracle {
		name, table = strings.ToUpper(name), strings.ToUpper(table)
	}
	if err := utils.ValidateIdentifier(name); err != nil {
		return "", fmt.Errorf("index name: %w", err)
	}
	if err := utils.ValidateIdentifier(table); err != nil {
		return "", fmt.Errorf("index table: %w", err)
	}
	if len(def.Columns) == 0 {
		return "", fmt.Errorf("index %s on %s has no key columns", def.Name, def.Table)
	}
	dialect := vendor.Dialect()
	cols := make([]string, len(def.Columns))
	for i, col := range def.Columns {
		if vendor == VendorOracle {
			col = strings.ToUpper(col)
		}
		if err := utils.ValidateIdentifier(col); err != nil {
			return "", fmt.Errorf("index column: %w", err)
		}
		cols[i] = utils.QuoteIdentifier(col, dialect)
	}
	unique := ""
	if def.Unique {
		unique = "UNIQUE "
	}
	return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)",
		unique,
		utils.QuoteIdentifier(name, dialect),
		utils.QuoteIdentifier(table, dialect),
		strings.Join(cols, ", ")), nil
}

func statementPreview(statement string) string {
	const max = 120
	statement = strings.Join(strings.Fields(statement), " ")
	if len(statement) > max {
		return statement[:max] + "..."
	}
	return statement
}
