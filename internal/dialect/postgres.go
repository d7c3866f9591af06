package dialect

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/arwahdevops/schemasync/internal/utils"
)

func postgresExists(ctx context.Context, db *gorm.DB, objectType ObjectType, name string) (bool, error) {
	var query string
	args := []interface{}{name}
	switch objectType {
	case ObjectTable:
		query = `SELECT COUNT(*) FROM information_schema.tables
				 WHERE table_schema = current_schema() AND table_name = $1 AND table_type = 'BASE TABLE'`
	case ObjectView:
		query = `SELECT COUNT(*) FROM information_schema.views
				 WHERE table_schema = current_schema() AND table_name = $1`
	case ObjectProcedure:
		query = `SELECT COUNT(*) FROM pg_catalog.pg_proc p
				 JOIN pg_catalog.pg_namespace n ON p.pronamespace = n.oid
				 WHERE n.nspname = current_schema() AND p.proname = $1 AND p.prokind IN ('f', 'p')`
	case ObjectIndex:
		table, index, err := splitIndexName(name)
		if err != nil {
			return false, err
		}
		query = `SELECT COUNT(*) FROM pg_indexes
				 WHERE schemaname = current_schema() AND tablename = $1 AND indexname = $2`
		args = []interface{}{table, index}
	default:
		return false, fmt.Errorf("existence check for %s on postgres: %w", objectType, ErrUnsupported)
	}

	var count int64
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&count).Error; err != nil {
		return false, fmt.Errorf("postgres existence check for %s '%s': %w", objectType, name, err)
	}
	return count > 0, nil
}

func postgresDefinition(ctx context.Context, db *gorm.DB, objectType ObjectType, name string) (string, error) {
	switch objectType {
	case ObjectTable:
		return postgresTableDefinition(ctx, db, name)
	case ObjectView:
		return postgresViewDefinition(ctx, db, name)
	case ObjectProcedure:
		return postgresRoutineDefinition(ctx, db, name)
	case ObjectIndex:
		table, index, err := splitIndexName(name)
		if err != nil {
			return "", err
		}
		var def sql.NullString
		res := db.WithContext(ctx).Raw(
			`SELECT indexdef FROM pg_indexes
			 WHERE schemaname = current_schema() AND tablename = $1 AND indexname = $2`,
			table, index).Scan(&def)
		if res.Error != nil {
			return "", fmt.Errorf("postgres index definition for '%s': %w", name, res.Error)
		}
		if res.RowsAffected == 0 || !def.Valid {
			return "", fmt.Errorf("postgres index '%s': %w", name, ErrDefinitionUnavailable)
		}
		return def.String, nil
	}
	return "", fmt.Errorf("postgres %s '%s': %w", objectType, name, ErrDefinitionUnavailable)
}

// postgresTableDefinition rebuilds a canonical CREATE TABLE from the
// catalog. Postgres has no "show create" primitive, so the text is a
// deterministic reconstruction: columns in attnum order with
// format_type output, NOT NULL and DEFAULT clauses, then the primary
// key. Comparing two reconstructions of the same structure is
// byte-stable.
func postgresTableDefinition(ctx context.Context, db *gorm.DB, name string) (string, error) {
	var columns []struct {
		ColumnName  string
		DataType    string
		NotNull     bool
		DefaultExpr sql.NullString
	}
	colQuery := `
	SELECT a.attname AS column_name,
	       pg_catalog.format_type(a.atttypid, a.atttypmod) AS data_type,
	       a.attnotnull AS not_null,
	       pg_catalog.pg_get_expr(d.adbin, d.adrelid) AS default_expr
	FROM pg_catalog.pg_attribute a
	JOIN pg_catalog.pg_class c ON c.oid = a.attrelid
	JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
	LEFT JOIN pg_catalog.pg_attrdef d ON d.adrelid = a.attrelid AND d.adnum = a.attnum
	WHERE n.nspname = current_schema() AND c.relname = $1 AND c.relkind = 'r'
	  AND a.attnum > 0 AND NOT a.attisdropped
	ORDER BY a.attnum`
	if err := db.WithContext(ctx).Raw(colQuery, name).Scan(&columns).Error; err != nil {
		return "", fmt.Errorf("postgres column fetch for table '%s': %w", name, err)
	}
	if len(columns) == 0 {
		return "", fmt.Errorf("postgres table '%s': %w", name, ErrDefinitionUnavailable)
	}

	var pkColumns []string
	pkQuery := `
	SELECT a.attname
	FROM pg_catalog.pg_index i
	JOIN pg_catalog.pg_class c ON c.oid = i.indrelid
	JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
	JOIN pg_catalog.pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = ANY(i.indkey)
	WHERE n.nspname = current_schema() AND c.relname = $1 AND i.indisprimary
	ORDER BY array_position(i.indkey::int[], a.attnum::int)`
	if err := db.WithContext(ctx).Raw(pkQuery, name).Scan(&pkColumns).Error; err != nil {
		return "", fmt.Errorf("postgres primary key fetch for table '%s': %w", name, err)
	}

	parts := make([]string, 0, len(columns)+1)
	for _, col := range columns {
		part := pq.QuoteIdentifier(col.ColumnName) + " " + col.DataType
		if col.NotNull {
			part += " NOT NULL"
		}
		if col.DefaultExpr.Valid && col.DefaultExpr.String != "" {
			part += " DEFAULT " + col.DefaultExpr.String
		}
		parts = append(parts, part)
	}
	if len(pkColumns) > 0 {
		quoted := make([]string, len(pkColumns))
		for i, col := range pkColumns {
			quoted[i] = pq.QuoteIdentifier(col)
		}
		parts = append(parts, "PRIMARY KEY ("+strings.Join(quoted, ", ")+")")
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", pq.QuoteIdentifier(name), strings.Join(parts, ", ")), nil
}

func postgresViewDefinition(ctx context.Context, db *gorm.DB, name string) (string, error) {
	var def sql.NullString
	res := db.WithContext(ctx).Raw(
		`SELECT pg_get_viewdef(c.oid, true)
		 FROM pg_catalog.pg_class c
		 JOIN pg_catalog.pg_namespace n ON c.relnamespace = n.oid
		 WHERE n.nspname = current_schema() AND c.relname = $1 AND c.relkind = 'v'`,
		name).Scan(&def)
	if res.Error != nil {
		return "", fmt.Errorf("postgres view definition for '%s': %w", name, res.Error)
	}
	if res.RowsAffected == 0 || !def.Valid || def.String == "" {
		return "", fmt.Errorf("postgres view '%s': %w", name, ErrDefinitionUnavailable)
	}
	body := strings.TrimSuffix(strings.TrimSpace(def.String), ";")
	return fmt.Sprintf("CREATE OR REPLACE VIEW %s AS %s", pq.QuoteIdentifier(name), body), nil
}

func postgresRoutineDefinition(ctx context.Context, db *gorm.DB, name string) (string, error) {
	var def sql.NullString
	res := db.WithContext(ctx).Raw(
		`SELECT pg_get_functiondef(p.oid)
		 FROM pg_catalog.pg_proc p
		 JOIN pg_catalog.pg_namespace n ON p.pronamespace = n.oid
		 WHERE n.nspname = current_schema() AND p.proname = $1 AND p.prokind IN ('f', 'p')
		 ORDER BY p.oid LIMIT 1`,
		name).Scan(&def)
	if res.Error != nil {
		return "", fmt.Errorf("postgres routine definition for '%s': %w", name, res.Error)
	}
	if res.RowsAffected == 0 || !def.Valid || def.String == "" {
		return "", fmt.Errorf("postgres routine '%s': %w", name, ErrDefinitionUnavailable)
	}
	return strings.TrimSpace(def.String), nil
}

func postgresListObjects(ctx context.Context, db *gorm.DB, objectType ObjectType) ([]string, error) {
	var query string
	switch objectType {
	case ObjectTable:
		query = `SELECT table_name FROM information_schema.tables
				 WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'
				 AND table_name NOT LIKE 'pg_%' AND table_name NOT LIKE 'sql_%'
				 ORDER BY table_name`
	case ObjectView:
		query = `SELECT table_name FROM information_schema.views
				 WHERE table_schema = current_schema()
				 AND table_name NOT LIKE 'pg_%'
				 ORDER BY table_name`
	case ObjectProcedure:
		query = `SELECT p.proname FROM pg_catalog.pg_proc p
				 JOIN pg_catalog.pg_namespace n ON p.pronamespace = n.oid
				 WHERE n.nspname = current_schema() AND p.prokind IN ('f', 'p')
				 ORDER BY p.proname`
	default:
		return nil, fmt.Errorf("enumeration of %s on postgres: %w", objectType, ErrUnsupported)
	}

	var names []string
	if err := db.WithContext(ctx).Raw(query).Scan(&names).Error; err != nil {
		return nil, fmt.Errorf("postgres %s enumeration: %w", objectType, err)
	}
	return names, nil
}

func postgresListIndexes(ctx context.Context, db *gorm.DB, table string) ([]IndexDef, error) {
	query := `
	SELECT
		i.relname AS index_name,
		idx.indisunique AS is_unique,
		a.attname AS column_name,
		array_position(idx.indkey::int[], a.attnum::int) AS column_seq,
		pg_get_indexdef(idx.indexrelid) AS raw_def
	FROM pg_catalog.pg_class t
	JOIN pg_catalog.pg_index idx ON t.oid = idx.indrelid
	JOIN pg_catalog.pg_class i ON i.oid = idx.indexrelid
	LEFT JOIN pg_catalog.pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(idx.indkey)
	WHERE t.relkind IN ('r', 'm', 'p')
	  AND t.relname = $1
	  AND t.relnamespace = (SELECT oid FROM pg_catalog.pg_namespace WHERE nspname = current_schema())
	  AND NOT idx.indisprimary
	ORDER BY index_name, column_seq`

	var rows []struct {
		IndexName  string
		IsUnique   bool
		ColumnName sql.NullString
		ColumnSeq  sql.NullInt64
		RawDef     string
	}
	if err := db.WithContext(ctx).Raw(query, table).Scan(&rows).Error; err != nil {
		if isMissingObjectError(err, VendorPostgres) {
			return []IndexDef{}, nil
		}
		return nil, fmt.Errorf("postgres index query failed for table '%s': %w", table, err)
	}

	type indexColumn struct {
		Seq  int64
		Name string
	}
	colsByIndex := make(map[string][]indexColumn)
	detailsByIndex := make(map[string]IndexDef)
	// Expression index parts report a NULL attribute; those indexes
	// cannot be rebuilt structurally and are left out.
	unsupported := make(map[string]bool)

	for _, r := range rows {
		if !r.ColumnName.Valid {
			unsupported[r.IndexName] = true
			continue
		}
		if _, ok := detailsByIndex[r.IndexName]; !ok {
			detailsByIndex[r.IndexName] = IndexDef{
				Name:   r.IndexName,
				Table:  table,
				Unique: r.IsUnique,
				RawDef: r.RawDef,
			}
		}
		seq := int64(0)
		if r.ColumnSeq.Valid {
			seq = r.ColumnSeq.Int64
		}
		colsByIndex[r.IndexName] = append(colsByIndex[r.IndexName], indexColumn{Seq: seq, Name: r.ColumnName.String})
	}

	indexes := make([]IndexDef, 0, len(detailsByIndex))
	for name, def := range detailsByIndex {
		if unsupported[name] {
			continue
		}
		cols := colsByIndex[name]
		sort.Slice(cols, func(i, j int) bool { return cols[i].Seq < cols[j].Seq })
		for _, col := range cols {
			def.Columns = append(def.Columns, col.Name)
		}
		indexes = append(indexes, def)
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i].Name < indexes[j].Name })
	return indexes, nil
}

func postgresDropStatement(objectType ObjectType, name string) (string, error) {
	switch objectType {
	case ObjectTable:
		if err := utils.ValidateIdentifier(name); err != nil {
			return "", err
		}
		return fmt.Sprintf("DROP TABLE IF EXISTS %s", pq.QuoteIdentifier(name)), nil
	case ObjectView:
		if err := utils.ValidateIdentifier(name); err != nil {
			return "", err
		}
		return fmt.Sprintf("DROP VIEW IF EXISTS %s", pq.QuoteIdentifier(name)), nil
	case ObjectProcedure:
		if err := utils.ValidateIdentifier(name); err != nil {
			return "", err
		}
		// ROUTINE covers both functions and procedures.
		return fmt.Sprintf("DROP ROUTINE IF EXISTS %s", pq.QuoteIdentifier(name)), nil
	case ObjectIndex:
		_, index, err := splitIndexName(name)
		if err != nil {
			return "", err
		}
		// Index names are schema-scoped on postgres, the table part is
		// only identity metadata.
		return fmt.Sprintf("DROP INDEX IF EXISTS %s", pq.QuoteIdentifier(index)), nil
	}
	return "", fmt.Errorf("drop of %s on postgres: %w", objectType, ErrUnsupported)
}
