package dialect

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"gorm.io/gorm"

	"github.com/arwahdevops/schemasync/internal/utils"
)

func mysqlExists(ctx context.Context, db *gorm.DB, objectType ObjectType, name string) (bool, error) {
	var query string
	args := []interface{}{name}
	switch objectType {
	case ObjectTable:
		query = `SELECT COUNT(*) FROM information_schema.TABLES
				 WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? AND TABLE_TYPE = 'BASE TABLE'`
	case ObjectView:
		query = `SELECT COUNT(*) FROM information_schema.VIEWS
				 WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?`
	case ObjectProcedure:
		query = `SELECT COUNT(*) FROM information_schema.ROUTINES
				 WHERE ROUTINE_SCHEMA = DATABASE() AND ROUTINE_NAME = ? AND ROUTINE_TYPE = 'PROCEDURE'`
	case ObjectIndex:
		table, index, err := splitIndexName(name)
		if err != nil {
			return false, err
		}
		query = `SELECT COUNT(*) FROM information_schema.STATISTICS
				 WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? AND INDEX_NAME = ?`
		args = []interface{}{table, index}
	default:
		return false, fmt.Errorf("existence check for %s on mysql: %w", objectType, ErrUnsupported)
	}

	var count int64
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&count).Error; err != nil {
		return false, fmt.Errorf("mysql existence check for %s '%s': %w", objectType, name, err)
	}
	return count > 0, nil
}

func mysqlDefinition(ctx context.Context, db *gorm.DB, objectType ObjectType, name string) (string, error) {
	quoted := utils.QuoteIdentifier(name, "mysql")
	switch objectType {
	case ObjectTable:
		row := db.WithContext(ctx).Raw(fmt.Sprintf("SHOW CREATE TABLE %s", quoted)).Row()
		var tableName, createStmt string
		if err := row.Scan(&tableName, &createStmt); err != nil {
			return "", mysqlDefinitionError(objectType, name, err)
		}
		return createStmt, nil
	case ObjectView:
		row := db.WithContext(ctx).Raw(fmt.Sprintf("SHOW CREATE VIEW %s", quoted)).Row()
		var viewName, createStmt, charset, collation string
		if err := row.Scan(&viewName, &createStmt, &charset, &collation); err != nil {
			return "", mysqlDefinitionError(objectType, name, err)
		}
		return createStmt, nil
	case ObjectProcedure:
		row := db.WithContext(ctx).Raw(fmt.Sprintf("SHOW CREATE PROCEDURE %s", quoted)).Row()
		var procName, sqlMode, charset, collation, dbCollation string
		var createStmt sql.NullString
		if err := row.Scan(&procName, &sqlMode, &createStmt, &charset, &collation, &dbCollation); err != nil {
			return "", mysqlDefinitionError(objectType, name, err)
		}
		// NULL when the connection lacks privileges on mysql.proc.
		if !createStmt.Valid || createStmt.String == "" {
			return "", fmt.Errorf("mysql procedure '%s': %w", name, ErrDefinitionUnavailable)
		}
		return createStmt.String, nil
	default:
		return "", fmt.Errorf("mysql %s '%s': %w", objectType, name, ErrDefinitionUnavailable)
	}
}

func mysqlDefinitionError(objectType ObjectType, name string, err error) error {
	if isMissingObjectError(err, VendorMySQL) {
		return fmt.Errorf("mysql %s '%s': %w", objectType, name, ErrDefinitionUnavailable)
	}
	return fmt.Errorf("mysql definition fetch for %s '%s': %w", objectType, name, err)
}

func mysqlListObjects(ctx context.Context, db *gorm.DB, objectType ObjectType) ([]string, error) {
	var query string
	switch objectType {
	case ObjectTable:
		query = `SELECT table_name FROM information_schema.tables
				 WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE'
				 ORDER BY table_name`
	case ObjectView:
		query = `SELECT table_name FROM information_schema.views
				 WHERE table_schema = DATABASE()
				 ORDER BY table_name`
	case ObjectProcedure:
		query = `SELECT routine_name FROM information_schema.routines
				 WHERE routine_schema = DATABASE() AND routine_type = 'PROCEDURE'
				 ORDER BY routine_name`
	default:
		return nil, fmt.Errorf("enumeration of %s on mysql: %w", objectType, ErrUnsupported)
	}

	var names []string
	if err := db.WithContext(ctx).Raw(query).Scan(&names).Error; err != nil {
		return nil, fmt.Errorf("mysql %s enumeration: %w", objectType, err)
	}
	return names, nil
}

func mysqlListIndexes(ctx context.Context, db *gorm.DB, table string) ([]IndexDef, error) {
	var tableExists int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM information_schema.TABLES WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?`,
		table).Scan(&tableExists).Error
	if err != nil {
		return nil, fmt.Errorf("mysql table check before index fetch for '%s': %w", table, err)
	}
	if tableExists == 0 {
		return []IndexDef{}, nil
	}

	var rows []struct {
		NonUnique  int            `gorm:"column:Non_unique"`
		KeyName    string         `gorm:"column:Key_name"`
		SeqInIndex int            `gorm:"column:Seq_in_index"`
		ColumnName sql.NullString `gorm:"column:Column_name"`
	}
	query := fmt.Sprintf("SHOW INDEX FROM %s", utils.QuoteIdentifier(table, "mysql"))
	if err := db.WithContext(ctx).Raw(query).Scan(&rows).Error; err != nil {
		if isMissingObjectError(err, VendorMySQL) {
			return []IndexDef{}, nil
		}
		return nil, fmt.Errorf("mysql SHOW INDEX failed for table '%s': %w", table, err)
	}

	type indexColumn struct {
		Seq  int
		Name string
	}
	colsByIndex := make(map[string][]indexColumn)
	uniqueByIndex := make(map[string]bool)
	// Functional index parts report a NULL column name; those indexes
	// cannot be rebuilt structurally and are left out.
	unsupported := make(map[string]bool)

	for _, r := range rows {
		if r.KeyName == "PRIMARY" {
			continue
		}
		if !r.ColumnName.Valid {
			unsupported[r.KeyName] = true
			continue
		}
		uniqueByIndex[r.KeyName] = r.NonUnique == 0
		colsByIndex[r.KeyName] = append(colsByIndex[r.KeyName], indexColumn{Seq: r.SeqInIndex, Name: r.ColumnName.String})
	}

	indexes := make([]IndexDef, 0, len(colsByIndex))
	for keyName, cols := range colsByIndex {
		if unsupported[keyName] {
			continue
		}
		sort.Slice(cols, func(i, j int) bool { return cols[i].Seq < cols[j].Seq })
		def := IndexDef{Name: keyName, Table: table, Unique: uniqueByIndex[keyName]}
		for _, col := range cols {
			def.Columns = append(def.Columns, col.Name)
		}
		indexes = append(indexes, def)
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i].Name < indexes[j].Name })
	return indexes, nil
}

func mysqlDropStatement(objectType ObjectType, name string) (string, error) {
	switch objectType {
	case ObjectTable:
		if err := utils.ValidateIdentifier(name); err != nil {
			return "", err
		}
		return fmt.Sprintf("DROP TABLE IF EXISTS %s", utils.QuoteIdentifier(name, "mysql")), nil
	case ObjectView:
		if err := utils.ValidateIdentifier(name); err != nil {
			return "", err
		}
		return fmt.Sprintf("DROP VIEW IF EXISTS %s", utils.QuoteIdentifier(name, "mysql")), nil
	case ObjectProcedure:
		if err := utils.ValidateIdentifier(name); err != nil {
			return "", err
		}
		return fmt.Sprintf("DROP PROCEDURE IF EXISTS %s", utils.QuoteIdentifier(name, "mysql")), nil
	case ObjectIndex:
		table, index, err := splitIndexName(name)
		if err != nil {
			return "", err
		}
		// No IF EXISTS form; a missing index surfaces as error 1091
		// and is tolerated by the caller.
		return fmt.Sprintf("DROP INDEX %s ON %s",
			utils.QuoteIdentifier(index, "mysql"),
			utils.QuoteIdentifier(table, "mysql")), nil
	}
	return "", fmt.Errorf("drop of %s on mysql: %w", objectType, ErrUnsupported)
}
