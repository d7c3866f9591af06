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

func sqlserverExists(ctx context.Context, db *gorm.DB, objectType ObjectType, name string) (bool, error) {
	var query string
	args := []interface{}{name}
	switch objectType {
	case ObjectTable:
		query = `SELECT COUNT(*) FROM INFORMATION_SCHEMA.TABLES
				 WHERE TABLE_SCHEMA = SCHEMA_NAME() AND TABLE_NAME = @p1 AND TABLE_TYPE = 'BASE TABLE'`
	case ObjectView:
		query = `SELECT COUNT(*) FROM INFORMATION_SCHEMA.VIEWS
				 WHERE TABLE_SCHEMA = SCHEMA_NAME() AND TABLE_NAME = @p1`
	case ObjectProcedure:
		query = `SELECT COUNT(*) FROM sys.procedures WHERE name = @p1`
	case ObjectIndex:
		table, index, err := splitIndexName(name)
		if err != nil {
			return false, err
		}
		query = `SELECT COUNT(*) FROM sys.indexes
				 WHERE name = @p1 AND object_id = OBJECT_ID(@p2)`
		args = []interface{}{index, table}
	default:
		return false, fmt.Errorf("existence check for %s on sqlserver: %w", objectType, ErrUnsupported)
	}

	var count int64
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&count).Error; err != nil {
		return false, fmt.Errorf("sqlserver existence check for %s '%s': %w", objectType, name, err)
	}
	return count > 0, nil
}

func sqlserverDefinition(ctx context.Context, db *gorm.DB, objectType ObjectType, name string) (string, error) {
	switch objectType {
	case ObjectTable:
		// OBJECT_DEFINITION returns NULL for tables, they have to be
		// rebuilt from the catalog.
		return sqlserverTableDefinition(ctx, db, name)
	case ObjectView, ObjectProcedure:
		var def sql.NullString
		res := db.WithContext(ctx).Raw(`SELECT OBJECT_DEFINITION(OBJECT_ID(@p1))`, name).Scan(&def)
		if res.Error != nil {
			return "", fmt.Errorf("sqlserver definition fetch for %s '%s': %w", objectType, name, res.Error)
		}
		if res.RowsAffected == 0 || !def.Valid || def.String == "" {
			return "", fmt.Errorf("sqlserver %s '%s': %w", objectType, name, ErrDefinitionUnavailable)
		}
		return def.String, nil
	}
	return "", fmt.Errorf("sqlserver %s '%s': %w", objectType, name, ErrDefinitionUnavailable)
}

// sqlserverTableDefinition rebuilds a canonical CREATE TABLE from
// INFORMATION_SCHEMA, columns in ordinal order with length and
// precision qualifiers, then the primary key. Deterministic so two
// reconstructions of the same structure compare byte-equal.
func sqlserverTableDefinition(ctx context.Context, db *gorm.DB, name string) (string, error) {
	var columns []struct {
		ColumnName    string
		DataType      string
		CharMaxLength sql.NullInt64
		NumPrecision  sql.NullInt64
		NumScale      sql.NullInt64
		IsNullable    string
		ColumnDefault sql.NullString
	}
	colQuery := `
	SELECT COLUMN_NAME AS column_name,
	       DATA_TYPE AS data_type,
	       CHARACTER_MAXIMUM_LENGTH AS char_max_length,
	       NUMERIC_PRECISION AS num_precision,
	       NUMERIC_SCALE AS num_scale,
	       IS_NULLABLE AS is_nullable,
	       COLUMN_DEFAULT AS column_default
	FROM INFORMATION_SCHEMA.COLUMNS
	WHERE TABLE_SCHEMA = SCHEMA_NAME() AND TABLE_NAME = @p1
	ORDER BY ORDINAL_POSITION`
	if err := db.WithContext(ctx).Raw(colQuery, name).Scan(&columns).Error; err != nil {
		return "", fmt.Errorf("sqlserver column fetch for table '%s': %w", name, err)
	}
	if len(columns) == 0 {
		return "", fmt.Errorf("sqlserver table '%s': %w", name, ErrDefinitionUnavailable)
	}

	var pkColumns []string
	pkQuery := `
	SELECT kcu.COLUMN_NAME
	FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
	JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
	  ON tc.CONSTRAINT_NAME = kcu.CONSTRAINT_NAME AND tc.TABLE_NAME = kcu.TABLE_NAME
	WHERE tc.TABLE_SCHEMA = SCHEMA_NAME() AND tc.TABLE_NAME = @p1
	  AND tc.CONSTRAINT_TYPE = 'PRIMARY KEY'
	ORDER BY kcu.ORDINAL_POSITION`
	if err := db.WithContext(ctx).Raw(pkQuery, name).Scan(&pkColumns).Error; err != nil {
		return "", fmt.Errorf("sqlserver primary key fetch for table '%s': %w", name, err)
	}

	parts := make([]string, 0, len(columns)+1)
	for _, col := range columns {
		part := utils.QuoteIdentifier(col.ColumnName, "sqlserver") + " " + sqlserverColumnType(col.DataType, col.CharMaxLength, col.NumPrecision, col.NumScale)
		if strings.EqualFold(col.IsNullable, "NO") {
			part += " NOT NULL"
		}
		if col.ColumnDefault.Valid && col.ColumnDefault.String != "" {
			part += " DEFAULT " + col.ColumnDefault.String
		}
		parts = append(parts, part)
	}
	if len(pkColumns) > 0 {
		quoted := make([]string, len(pkColumns))
		for i, col := range pkColumns {
			quoted[i] = utils.QuoteIdentifier(col, "sqlserver")
		}
		parts = append(parts, "PRIMARY KEY ("+strings.Join(quoted, ", ")+")")
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", utils.QuoteIdentifier(name, "sqlserver"), strings.Join(parts, ", ")), nil
}

func sqlserverColumnType(dataType string, charLen, precision, scale sql.NullInt64) string {
	switch strings.ToLower(dataType) {
	case "char", "varchar", "nchar", "nvarchar", "binary", "varbinary":
		if charLen.Valid {
			if charLen.Int64 < 0 {
				return dataType + "(max)"
			}
			return fmt.Sprintf("%s(%d)", dataType, charLen.Int64)
		}
	case "decimal", "numeric":
		if precision.Valid && scale.Valid {
			return fmt.Sprintf("%s(%d,%d)", dataType, precision.Int64, scale.Int64)
		}
	}
	return dataType
}

func sqlserverListObjects(ctx context.Context, db *gorm.DB, objectType ObjectType) ([]string, error) {
	var query string
	switch objectType {
	case ObjectTable:
		query = `SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES
				 WHERE TABLE_SCHEMA = SCHEMA_NAME() AND TABLE_TYPE = 'BASE TABLE'
				 ORDER BY TABLE_NAME`
	case ObjectView:
		query = `SELECT TABLE_NAME FROM INFORMATION_SCHEMA.VIEWS
				 WHERE TABLE_SCHEMA = SCHEMA_NAME()
				 ORDER BY TABLE_NAME`
	case ObjectProcedure:
		query = `SELECT name FROM sys.procedures ORDER BY name`
	default:
		return nil, fmt.Errorf("enumeration of %s on sqlserver: %w", objectType, ErrUnsupported)
	}

	var names []string
	if err := db.WithContext(ctx).Raw(query).Scan(&names).Error; err != nil {
		return nil, fmt.Errorf("sqlserver %s enumeration: %w", objectType, err)
	}
	return names, nil
}

func sqlserverListIndexes(ctx context.Context, db *gorm.DB, table string) ([]IndexDef, error) {
	query := `
	SELECT i.name AS index_name,
	       i.is_unique,
	       c.name AS column_name,
	       ic.key_ordinal
	FROM sys.indexes i
	JOIN sys.index_columns ic ON i.object_id = ic.object_id AND i.index_id = ic.index_id
	JOIN sys.columns c ON ic.object_id = c.object_id AND ic.column_id = c.column_id
	WHERE i.object_id = OBJECT_ID(@p1)
	  AND i.is_primary_key = 0 AND i.type > 0 AND i.is_hypothetical = 0
	  AND ic.is_included_column = 0
	ORDER BY i.name, ic.key_ordinal`

	var rows []struct {
		IndexName  string
		IsUnique   bool
		ColumnName string
		KeyOrdinal int
	}
	// OBJECT_ID yields NULL for a missing table, the join then matches
	// nothing.
	if err := db.WithContext(ctx).Raw(query, table).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("sqlserver index query failed for table '%s': %w", table, err)
	}

	type indexColumn struct {
		Seq  int
		Name string
	}
	colsByIndex := make(map[string][]indexColumn)
	uniqueByIndex := make(map[string]bool)
	for _, r := range rows {
		uniqueByIndex[r.IndexName] = r.IsUnique
		colsByIndex[r.IndexName] = append(colsByIndex[r.IndexName], indexColumn{Seq: r.KeyOrdinal, Name: r.ColumnName})
	}

	indexes := make([]IndexDef, 0, len(colsByIndex))
	for name, cols := range colsByIndex {
		sort.Slice(cols, func(i, j int) bool { return cols[i].Seq < cols[j].Seq })
		def := IndexDef{Name: name, Table: table, Unique: uniqueByIndex[name]}
		for _, col := range cols {
			def.Columns = append(def.Columns, col.Name)
		}
		indexes = append(indexes, def)
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i].Name < indexes[j].Name })
	return indexes, nil
}

func sqlserverDropStatement(objectType ObjectType, name string) (string, error) {
	switch objectType {
	case ObjectTable:
		if err := utils.ValidateIdentifier(name); err != nil {
			return "", err
		}
		return fmt.Sprintf("DROP TABLE IF EXISTS %s", utils.QuoteIdentifier(name, "sqlserver")), nil
	case ObjectView:
		if err := utils.ValidateIdentifier(name); err != nil {
			return "", err
		}
		return fmt.Sprintf("DROP VIEW IF EXISTS %s", utils.QuoteIdentifier(name, "sqlserver")), nil
	case ObjectProcedure:
		if err := utils.ValidateIdentifier(name); err != nil {
			return "", err
		}
		return fmt.Sprintf("DROP PROCEDURE IF EXISTS %s", utils.QuoteIdentifier(name, "sqlserver")), nil
	case ObjectIndex:
		table, index, err := splitIndexName(name)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("DROP INDEX IF EXISTS %s ON %s",
			utils.QuoteIdentifier(index, "sqlserver"),
			utils.QuoteIdentifier(table, "sqlserver")), nil
	}
	return "", fmt.Errorf("drop of %s on sqlserver: %w", objectType, ErrUnsupported)
}
