package dialect

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"gorm.io/gorm"

	"github.com/arwahdevops/schemasync/internal/utils"
)

func sqliteExists(ctx context.Context, db *gorm.DB, objectType ObjectType, name string) (bool, error) {
	var query string
	args := []interface{}{name}
	switch objectType {
	case ObjectTable:
		query = `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`
	case ObjectView:
		query = `SELECT COUNT(*) FROM sqlite_master WHERE type = 'view' AND name = ?`
	case ObjectProcedure:
		// SQLite has no stored procedures.
		return false, nil
	case ObjectIndex:
		table, index, err := splitIndexName(name)
		if err != nil {
			return false, err
		}
		query = `SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND tbl_name = ? AND name = ?`
		args = []interface{}{table, index}
	default:
		return false, fmt.Errorf("existence check for %s on sqlite: %w", objectType, ErrUnsupported)
	}

	var count int64
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&count).Error; err != nil {
		return false, fmt.Errorf("sqlite existence check for %s '%s': %w", objectType, name, err)
	}
	return count > 0, nil
}

// sqliteDefinition reads the stored DDL text verbatim. sqlite_master
// keeps exactly the statement that created the object, so round-trips
// are byte-stable.
func sqliteDefinition(ctx context.Context, db *gorm.DB, objectType ObjectType, name string) (string, error) {
	var query string
	args := []interface{}{name}
	switch objectType {
	case ObjectTable:
		query = `SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?`
	case ObjectView:
		query = `SELECT sql FROM sqlite_master WHERE type = 'view' AND name = ?`
	case ObjectIndex:
		table, index, err := splitIndexName(name)
		if err != nil {
			return "", err
		}
		query = `SELECT sql FROM sqlite_master WHERE type = 'index' AND tbl_name = ? AND name = ?`
		args = []interface{}{table, index}
	case ObjectProcedure:
		return "", fmt.Errorf("sqlite has no stored procedures: %w", ErrUnsupported)
	default:
		return "", fmt.Errorf("sqlite %s '%s': %w", objectType, name, ErrDefinitionUnavailable)
	}

	var def sql.NullString
	res := db.WithContext(ctx).Raw(query, args...).Scan(&def)
	if res.Error != nil {
		return "", fmt.Errorf("sqlite definition fetch for %s '%s': %w", objectType, name, res.Error)
	}
	// sql is NULL for internal auto-indexes.
	if res.RowsAffected == 0 || !def.Valid || def.String == "" {
		return "", fmt.Errorf("sqlite %s '%s': %w", objectType, name, ErrDefinitionUnavailable)
	}
	return def.String, nil
}

func sqliteListObjects(ctx context.Context, db *gorm.DB, objectType ObjectType) ([]string, error) {
	var query string
	switch objectType {
	case ObjectTable:
		query = `SELECT name FROM sqlite_master
				 WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
				 ORDER BY name`
	case ObjectView:
		query = `SELECT name FROM sqlite_master
				 WHERE type = 'view'
				 ORDER BY name`
	case ObjectProcedure:
		// SQLite has no stored procedures; enumeration is empty rather
		// than an error so bulk procedure sync stays a clean no-op.
		return []string{}, nil
	default:
		return nil, fmt.Errorf("enumeration of %s on sqlite: %w", objectType, ErrUnsupported)
	}

	var names []string
	if err := db.WithContext(ctx).Raw(query).Scan(&names).Error; err != nil {
		return nil, fmt.Errorf("sqlite %s enumeration: %w", objectType, err)
	}
	return names, nil
}

func sqliteListIndexes(ctx context.Context, db *gorm.DB, table string) ([]IndexDef, error) {
	var count int64
	if err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&count).Error; err != nil {
		return nil, fmt.Errorf("sqlite table check before index fetch for '%s': %w", table, err)
	}
	if count == 0 {
		return []IndexDef{}, nil
	}

	// Raw CREATE INDEX text per index name, NULL for auto-indexes.
	var masterRows []struct {
		Name string         `gorm:"column:name"`
		SQL  sql.NullString `gorm:"column:sql"`
	}
	if err := db.WithContext(ctx).Raw(
		`SELECT name, sql FROM sqlite_master WHERE type = 'index' AND tbl_name = ?`, table).Scan(&masterRows).Error; err != nil {
		return nil, fmt.Errorf("sqlite index text fetch for table '%s': %w", table, err)
	}
	rawByName := make(map[string]string, len(masterRows))
	for _, r := range masterRows {
		if r.SQL.Valid {
			rawByName[r.Name] = r.SQL.String
		}
	}

	var indexList []struct {
		Seq     int    `gorm:"column:seq"`
		Name    string `gorm:"column:name"`
		Unique  int    `gorm:"column:unique"`
		Origin  string `gorm:"column:origin"` // 'c' CREATE INDEX, 'u' UNIQUE constraint, 'pk' PRIMARY KEY
		Partial int    `gorm:"column:partial"`
	}
	if err := db.WithContext(ctx).Raw(
		fmt.Sprintf("PRAGMA index_list(%s)", utils.QuoteIdentifier(table, "sqlite"))).Scan(&indexList).Error; err != nil {
		return nil, fmt.Errorf("sqlite PRAGMA index_list failed for table '%s': %w", table, err)
	}

	indexes := make([]IndexDef, 0, len(indexList))
	for _, item := range indexList {
		// Constraint-backed indexes travel with the table DDL itself;
		// only explicitly created ones are replicated.
		if item.Origin != "c" || strings.HasPrefix(item.Name, "sqlite_autoindex_") {
			continue
		}

		var columns []struct {
			SeqNo int            `gorm:"column:seqno"`
			Cid   sql.NullInt64  `gorm:"column:cid"`
			Name  sql.NullString `gorm:"column:name"`
		}
		if err := db.WithContext(ctx).Raw(
			fmt.Sprintf("PRAGMA index_info(%s)", utils.QuoteIdentifier(item.Name, "sqlite"))).Scan(&columns).Error; err != nil {
			return nil, fmt.Errorf("sqlite PRAGMA index_info failed for index '%s': %w", item.Name, err)
		}

		def := IndexDef{
			Name:   item.Name,
			Table:  table,
			Unique: item.Unique == 1,
			RawDef: rawByName[item.Name],
		}
		sort.Slice(columns, func(i, j int) bool { return columns[i].SeqNo < columns[j].SeqNo })
		expression := false
		for _, col := range columns {
			// NULL column name marks an expression part.
			if !col.Name.Valid || col.Name.String == "" {
				expression = true
				break
			}
			def.Columns = append(def.Columns, col.Name.String)
		}
		if expression || len(def.Columns) == 0 {
			continue
		}
		indexes = append(indexes, def)
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i].Name < indexes[j].Name })
	return indexes, nil
}

func sqliteDropStatement(objectType ObjectType, name string) (string, error) {
	switch objectType {
	case ObjectTable:
		if err := utils.ValidateIdentifier(name); err != nil {
			return "", err
		}
		return fmt.Sprintf("DROP TABLE IF EXISTS %s", utils.QuoteIdentifier(name, "sqlite")), nil
	case ObjectView:
		if err := utils.ValidateIdentifier(name); err != nil {
			return "", err
		}
		return fmt.Sprintf("DROP VIEW IF EXISTS %s", utils.QuoteIdentifier(name, "sqlite")), nil
	case ObjectIndex:
		_, index, err := splitIndexName(name)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("DROP INDEX IF EXISTS %s", utils.QuoteIdentifier(index, "sqlite")), nil
	case ObjectProcedure:
		return "", fmt.Errorf("sqlite has no stored procedures: %w", ErrUnsupported)
	}
	return "", fmt.Errorf("drop of %s on sqlite: %w", objectType, ErrUnsupported)
}
