package dialect

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseObjectType(t *testing.T) {
	testCases := []struct {
		input    string
		expected ObjectType
		wantErr  bool
	}{
		{input: "table", expected: ObjectTable},
		{input: "view", expected: ObjectView},
		{input: "procedure", expected: ObjectProcedure},
		{input: "index", expected: ObjectIndex},
		{input: " Table ", expected: ObjectTable},
		{input: "VIEW", expected: ObjectView},
		{input: "sequence", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			got, err := ParseObjectType(tc.input)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestParseVendor(t *testing.T) {
	testCases := []struct {
		input    string
		expected Vendor
		wantErr  bool
	}{
		{input: "mysql", expected: VendorMySQL},
		{input: "mariadb", expected: VendorMySQL},
		{input: "postgresql", expected: VendorPostgres},
		{input: "postgres", expected: VendorPostgres},
		{input: "sqlite", expected: VendorSQLite},
		{input: "sqlite3", expected: VendorSQLite},
		{input: "sqlserver", expected: VendorSQLServer},
		{input: "mssql", expected: VendorSQLServer},
		{input: "oracle", expected: VendorOracle},
		{input: "mongodb", expected: VendorMongoDB},
		{input: "mongo", expected: VendorMongoDB},
		{input: "neo4j", expected: VendorNeo4j},
		{input: "MySQL", expected: VendorMySQL},
		{input: "db2", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			got, err := ParseVendor(tc.input)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestVendorRelational(t *testing.T) {
	assert.True(t, VendorMySQL.Relational())
	assert.True(t, VendorPostgres.Relational())
	assert.True(t, VendorSQLite.Relational())
	assert.True(t, VendorSQLServer.Relational())
	assert.True(t, VendorOracle.Relational())
	assert.False(t, VendorMongoDB.Relational())
	assert.False(t, VendorNeo4j.Relational())
}

func TestVendorDialect(t *testing.T) {
	assert.Equal(t, "postgres", VendorPostgres.Dialect())
	assert.Equal(t, "mysql", VendorMySQL.Dialect())
	assert.Equal(t, "sqlite", VendorSQLite.Dialect())
	assert.Equal(t, "sqlserver", VendorSQLServer.Dialect())
	assert.Equal(t, "oracle", VendorOracle.Dialect())
}

func TestIndexDefQualifiedName(t *testing.T) {
	def := IndexDef{Name: "idx_users_email", Table: "users"}
	assert.Equal(t, "users.idx_users_email", def.QualifiedName())
}

func TestSplitIndexName(t *testing.T) {
	testCases := []struct {
		name      string
		input     string
		wantTable string
		wantIndex string
		wantErr   bool
	}{
		{name: "qualified", input: "users.idx_users_email", wantTable: "users", wantIndex: "idx_users_email"},
		{name: "unqualified", input: "idx_users_email", wantErr: true},
		{name: "empty parts", input: ".", wantErr: true},
		{name: "injection in table part", input: "users; DROP TABLE x.idx", wantErr: true},
		{name: "injection in index part", input: "users.idx`--", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			table, index, err := splitIndexName(tc.input)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.wantTable, table)
			assert.Equal(t, tc.wantIndex, index)
		})
	}
}

func TestIsMissingObjectError(t *testing.T) {
	testCases := []struct {
		name     string
		vendor   Vendor
		err      error
		expected bool
	}{
		{name: "nil error", vendor: VendorMySQL, err: nil, expected: false},
		{name: "mysql unknown table", vendor: VendorMySQL, err: errors.New("Error 1051 (42S02): Unknown table 'db.users'"), expected: true},
		{name: "mysql doesn't exist", vendor: VendorMySQL, err: errors.New("Error 1146 (42S02): Table 'db.users' doesn't exist"), expected: true},
		{name: "mysql drop index", vendor: VendorMySQL, err: errors.New("Error 1091 (42000): Can't DROP INDEX `i`; check that it exists"), expected: true},
		{name: "mysql syntax error", vendor: VendorMySQL, err: errors.New("Error 1064 (42000): You have an error in your SQL syntax"), expected: false},
		{name: "postgres missing relation", vendor: VendorPostgres, err: errors.New(`ERROR: relation "users" does not exist (SQLSTATE 42P01)`), expected: true},
		{name: "postgres permission denied", vendor: VendorPostgres, err: errors.New("ERROR: permission denied for table users"), expected: false},
		{name: "sqlite no such table", vendor: VendorSQLite, err: errors.New("no such table: users"), expected: true},
		{name: "sqlite no such index", vendor: VendorSQLite, err: errors.New("no such index: idx_users_email"), expected: true},
		{name: "sqlite locked", vendor: VendorSQLite, err: errors.New("database is locked"), expected: false},
		{name: "sqlserver missing", vendor: VendorSQLServer, err: errors.New("mssql: Cannot drop the table 'users', because it does not exist or you do not have permission."), expected: true},
		{name: "oracle missing table", vendor: VendorOracle, err: errors.New("ORA-00942: table or view does not exist"), expected: true},
		{name: "oracle missing index", vendor: VendorOracle, err: errors.New("ORA-01418: specified index does not exist"), expected: true},
		{name: "oracle other", vendor: VendorOracle, err: errors.New("ORA-00955: name is already used by an existing object"), expected: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, isMissingObjectError(tc.err, tc.vendor))
		})
	}
}
