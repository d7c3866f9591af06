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

// Oracle folds unquoted identifiers to upper case; every name is
// normalized to upper before it reaches the catalog or DDL.

func oracleExists(ctx context.Context, db *gorm.DB, objectType ObjectType, name string) (bool, error) {
	var query string
	args := []interface{}{strings.ToUpper(name)}
	switch objectType {
	case ObjectTable:
		query = `SELECT COUNT(*) FROM user_tables WHERE table_name = ?`
	case ObjectView:
		query = `SELECT COUNT(*) FROM user_views WHERE view_name = ?`
	case ObjectProcedure:
		query = `SELECT COUNT(*) FROM user_objects WHERE object_type = 'PROCEDURE' AND object_name = ?`
	case ObjectIndex:
		table, index, err := splitIndexName(name)
		if err != nil {
			return false, err
		}
		query = `SELECT COUNT(*) FROM user_indexes WHERE index_name = ? AND table_name = ?`
		args = []interface{}{strings.ToUpper(index), strings.ToUpper(table)}
	default:
		return false, fmt.Errorf("existence check for %s on oracle: %w", objectType, ErrUnsupported)
	}

	var count int64
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&count).Error; err != nil {
		return false, fmt.Errorf("oracle existence check for %s '%s': %w", objectType, name, err)
	}
	return count > 0, nil
}

func oracleDefinition(ctx context.Context, db *gorm.DB, objectType ObjectType, name string) (string, error) {
	var ddlType, objectName string
	switch objectType {
	case ObjectTable:
		ddlType, objectName = "TABLE", strings.ToUpper(name)
	case ObjectView:
		ddlType, objectName = "VIEW", strings.ToUpper(name)
	case ObjectProcedure:
		ddlType, objectName = "PROCEDURE", strings.ToUpper(name)
	case ObjectIndex:
		_, index, err := splitIndexName(name)
		if err != nil {
			return "", err
		}
		ddlType, objectName = "INDEX", strings.ToUpper(index)
	default:
		return "", fmt.Errorf("oracle %s '%s': %w", objectType, name, ErrDefinitionUnavailable)
	}

	var def sql.NullString
	res := db.WithContext(ctx).Raw(
		fmt.Sprintf(`SELECT dbms_metadata.get_ddl('%s', ?) FROM dual`, ddlType),
		objectName).Scan(&def)
	if res.Error != nil {
		// ORA-31608: specified object of type ... not found
		msg := strings.ToLower(res.Error.Error())
		if strings.Contains(msg, "ora-31608") || isMissingObjectError(res.Error, VendorOracle) {
			return "", fmt.Errorf("oracle %s '%s': %w", objectType, name, ErrDefinitionUnavailable)
		}
		return "", fmt.Errorf("oracle definition fetch for %s '%s': %w", objectType, name, res.Error)
	}
	if res.RowsAffected == 0 || !def.Valid || strings.TrimSpace(def.String) == "" {
		return "", fmt.Errorf("oracle %s '%s': %w", objectType, name, ErrDefinitionUnavailable)
	}
	// get_ddl output leads with a newline and indentation.
	return strings.TrimSpace(def.String), nil
}

func oracleListObjects(ctx context.Context, db *gorm.DB, objectType ObjectType) ([]string, error) {
	var query string
	switch objectType {
	case ObjectTable:
		query = `SELECT table_name FROM user_tables ORDER BY table_name`
	case ObjectView:
		query = `SELECT view_name FROM user_views ORDER BY view_name`
	case ObjectProcedure:
		query = `SELECT object_name FROM user_objects WHERE object_type = 'PROCEDURE' ORDER BY object_name`
	default:
		return nil, fmt.Errorf("enumeration of %s on oracle: %w", objectType, ErrUnsupported)
	}

	var names []string
	if err := db.WithContext(ctx).Raw(query).Scan(&names).Error; err != nil {
		return nil, fmt.Errorf("oracle %s enumeration: %w", objectType, err)
	}
	return names, nil
}

func oracleListIndexes(ctx context.Context, db *gorm.DB, table string) ([]IndexDef, error) {
	query := `
	SELECT i.index_name,
	       i.uniqueness,
	       c.column_name,
	       c.column_position
	FROM user_indexes i
	JOIN user_ind_columns c ON i.index_name = c.index_name
	WHERE i.table_name = ?
	  AND NOT EXISTS (
	    SELECT 1 FROM user_constraints uc
	    WHERE uc.constraint_type = 'P' AND uc.index_name = i.index_name
	  )
	ORDER BY i.index_name, c.column_position`

	var rows []struct {
		IndexName      string
		Uniqueness     string
		ColumnName     string
		ColumnPosition int
	}
	if err := db.WithContext(ctx).Raw(query, strings.ToUpper(table)).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("oracle index query failed for table '%s': %w", table, err)
	}

	type indexColumn struct {
		Seq  int
		Name string
	}
	colsByIndex := make(map[string][]indexColumn)
	uniqueByIndex := make(map[string]bool)
	// Function-based index parts surface as hidden SYS_NC columns;
	// those indexes cannot be rebuilt structurally and are left out.
	unsupported := make(map[string]bool)

	for _, r := range rows {
		if strings.HasPrefix(r.IndexName, "SYS_") {
			continue
		}
		if strings.HasPrefix(r.ColumnName, "SYS_NC") {
			unsupported[r.IndexName] = true
			continue
		}
		uniqueByIndex[r.IndexName] = r.Uniqueness == "UNIQUE"
		colsByIndex[r.IndexName] = append(colsByIndex[r.IndexName], indexColumn{Seq: r.ColumnPosition, Name: r.ColumnName})
	}

	indexes := make([]IndexDef, 0, len(colsByIndex))
	for name, cols := range colsByIndex {
		if unsupported[name] {
			continue
		}
		sort.Slice(cols, func(i, j int) bool { return cols[i].Seq < cols[j].Seq })
		def := IndexDef{Name: name, Table: strings.ToUpper(table), Unique: uniqueByIndex[name]}
		for _, col := range cols {
			def.Columns = append(def.Columns, col.Name)
		}
		indexes = append(indexes, def)
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i].Name < indexes[j].Name })
	return indexes, nil
}

func oracleDropStatement(objectType ObjectType, name string) (string, error) {
	quoteUpper := func(s string) string {
		return utils.QuoteIdentifier(strings.ToUpper(s), "oracle")
	}
	switch objectType {
	case ObjectTable:
		if err := utils.ValidateIdentifier(name); err != nil {
			return "", err
		}
		// No IF EXISTS before 23c; a missing object surfaces as
		// ORA-00942 and is tolerated by the caller.
		return fmt.Sprintf("DROP TABLE %s", quoteUpper(name)), nil
	case ObjectView:
		if err := utils.ValidateIdentifier(name); err != nil {
			return "", err
		}
		return fmt.Sprintf("DROP VIEW %s", quoteUpper(name)), nil
	case ObjectProcedure:
		if err := utils.ValidateIdentifier(name); err != nil {
			return "", err
		}
		return fmt.Sprintf("DROP PROCEDURE %s", quoteUpper(name)), nil
	case ObjectIndex:
		_, index, err := splitIndexName(name)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("DROP INDEX %s", quoteUpper(index)), nil
	}
	return "", fmt.Errorf("drop of %s on oracle: %w", objectType, ErrUnsupported)
}
