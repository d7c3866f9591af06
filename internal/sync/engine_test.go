package sync

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	gormlogger "gorm.io/gorm/logger"

	"github.com/arwahdevops/schemasync/internal/audit"
	"github.com/arwahdevops/schemasync/internal/config"
	"github.com/arwahdevops/schemasync/internal/dialect"
)

func openSQLite(t *testing.T, name string) dialect.Adapter {
	t.Helper()
	params := &config.ConnectionParams{Database: filepath.Join(t.TempDir(), name+".db")}
	adapter, err := dialect.Open(context.Background(), dialect.VendorSQLite, params, "", "", dialect.OpenOptions{
		PoolSize:    2,
		MaxLifetime: time.Minute,
		GormLogger:  gormlogger.Default.LogMode(gormlogger.Silent),
		Logger:      zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = adapter.Close() })
	return adapter
}

func testConfig(ops config.Operations) *config.Config {
	return &config.Config{
		TargetWorkers: 2,
		ObjectTimeout: time.Minute,
		Ops:           ops,
	}
}

func mustExec(t *testing.T, a dialect.Adapter, stmt string) {
	t.Helper()
	require.NoError(t, a.Execute(context.Background(), stmt))
}

func resultsByName(res TargetResult) map[string]ObjectResult {
	byName := make(map[string]ObjectResult, len(res.Objects))
	for _, obj := range res.Objects {
		byName[obj.ObjectName] = obj
	}
	return byName
}

func TestEngineSingleObjectCreate(t *testing.T) {
	ctx := context.Background()
	source := openSQLite(t, "source")
	target := openSQLite(t, "target")
	mustExec(t, source, "CREATE TABLE users (id INTEGER PRIMARY KEY, email TEXT)")

	eng := NewEngine(testConfig(config.Operations{SyncObject: "table:users", CreateOnTarget: true}),
		source, zaptest.NewLogger(t), nil)
	results := eng.Run(ctx, []Target{{Index: 0, Vendor: dialect.VendorSQLite, Adapter: target}})
	require.Len(t, results, 1)
	require.Len(t, results[0].Objects, 1)

	obj := results[0].Objects[0]
	assert.Equal(t, OutcomeApplied, obj.Outcome)
	assert.Equal(t, DriftAbsent, obj.Drift)
	assert.True(t, results[0].Clean())

	srcDef, err := source.GetDefinition(ctx, dialect.ObjectTable, "users")
	require.NoError(t, err)
	tgtDef, err := target.GetDefinition(ctx, dialect.ObjectTable, "users")
	require.NoError(t, err)
	assert.Equal(t, srcDef, tgtDef)

	rec, err := target.AuditStore().Latest(ctx, "table", "users")
	require.NoError(t, err)
	assert.Equal(t, audit.ActionCreate, rec.Action)
	assert.Nil(t, rec.OriginalState)
	assert.Equal(t, srcDef, rec.NewState)
	assert.Equal(t, audit.RollbackDrop, rec.RollbackAction)
	assert.False(t, rec.Timestamp.IsZero())
}

func TestEngineBulkTableSync(t *testing.T) {
	ctx := context.Background()
	source := openSQLite(t, "source")
	target := openSQLite(t, "target")

	mustExec(t, source, "CREATE TABLE users (id INTEGER PRIMARY KEY)")
	mustExec(t, target, "CREATE TABLE users (id INTEGER PRIMARY KEY)")
	mustExec(t, source, "CREATE TABLE orders (id INTEGER PRIMARY KEY, total REAL)")
	mustExec(t, target, "CREATE TABLE orders (id INTEGER PRIMARY KEY)")

	eng := NewEngine(testConfig(config.Operations{SyncAllTables: true}),
		source, zaptest.NewLogger(t), nil)
	targets := []Target{{Index: 0, Vendor: dialect.VendorSQLite, Adapter: target}}

	results := eng.Run(ctx, targets)
	require.Len(t, results, 1)
	byName := resultsByName(results[0])

	assert.Equal(t, OutcomeUpToDate, byName["users"].Outcome)
	assert.Equal(t, DriftIdentical, byName["users"].Drift)
	assert.Equal(t, OutcomeApplied, byName["orders"].Outcome)
	assert.Equal(t, DriftDivergent, byName["orders"].Drift)
	// The engine's own history table is never treated as a user object.
	assert.NotContains(t, byName, audit.LogTable)

	// An identical object writes no history.
	_, err := target.AuditStore().Latest(ctx, "table", "users")
	assert.ErrorIs(t, err, audit.ErrNoHistory)

	// The replaced object preserved the pre-sync target text.
	rec, err := target.AuditStore().Latest(ctx, "table", "orders")
	require.NoError(t, err)
	assert.Equal(t, audit.ActionSync, rec.Action)
	require.NotNil(t, rec.OriginalState)
	assert.Equal(t, "CREATE TABLE orders (id INTEGER PRIMARY KEY)", *rec.OriginalState)
	assert.Equal(t, audit.RollbackRecreate, rec.RollbackAction)

	// A second run finds everything identical and writes nothing new.
	results = eng.Run(ctx, targets)
	require.Len(t, results, 1)
	for _, obj := range results[0].Objects {
		assert.Equal(t, OutcomeUpToDate, obj.Outcome, "object %s", obj.ObjectName)
	}
	rec2, err := target.AuditStore().Latest(ctx, "table", "orders")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, rec2.ID)
}

func TestEngineReplaceThenRollbackRoundTrip(t *testing.T) {
	ctx := context.Background()
	source := openSQLite(t, "source")
	target := openSQLite(t, "target")

	mustExec(t, source, "CREATE VIEW v_active AS SELECT 2 AS n")
	mustExec(t, target, "CREATE VIEW v_active AS SELECT 1 AS n")

	before, err := target.GetDefinition(ctx, dialect.ObjectView, "v_active")
	require.NoError(t, err)

	targets := []Target{{Index: 0, Vendor: dialect.VendorSQLite, Adapter: target}}
	eng := NewEngine(testConfig(config.Operations{SyncAllViews: true}),
		source, zaptest.NewLogger(t), nil)
	results := eng.Run(ctx, targets)
	require.Len(t, results, 1)
	require.Equal(t, OutcomeApplied, resultsByName(results[0])["v_active"].Outcome)

	synced, err := target.GetDefinition(ctx, dialect.ObjectView, "v_active")
	require.NoError(t, err)
	srcDef, err := source.GetDefinition(ctx, dialect.ObjectView, "v_active")
	require.NoError(t, err)
	require.Equal(t, srcDef, synced)

	recBefore, err := target.AuditStore().Latest(ctx, "view", "v_active")
	require.NoError(t, err)

	// Rollback runs source-less and restores the preserved text exactly.
	rbEng := NewEngine(testConfig(config.Operations{Rollback: "view:v_active"}),
		nil, zaptest.NewLogger(t), nil)
	rbResults := rbEng.Run(ctx, targets)
	require.Len(t, rbResults, 1)
	require.Len(t, rbResults[0].Objects, 1)
	assert.Equal(t, OutcomeRolledBack, rbResults[0].Objects[0].Outcome)

	restored, err := target.GetDefinition(ctx, dialect.ObjectView, "v_active")
	require.NoError(t, err)
	assert.Equal(t, before, restored)

	// Rollback wrote no history of its own.
	recAfter, err := target.AuditStore().Latest(ctx, "view", "v_active")
	require.NoError(t, err)
	assert.Equal(t, recBefore.ID, recAfter.ID)
}

func TestEngineRollbackOfCreateDropsObject(t *testing.T) {
	ctx := context.Background()
	source := openSQLite(t, "source")
	target := openSQLite(t, "target")
	mustExec(t, source, "CREATE TABLE widgets (id INTEGER PRIMARY KEY)")

	targets := []Target{{Index: 0, Vendor: dialect.VendorSQLite, Adapter: target}}
	eng := NewEngine(testConfig(config.Operations{SyncObject: "table:widgets", CreateOnTarget: true}),
		source, zaptest.NewLogger(t), nil)
	results := eng.Run(ctx, targets)
	require.Equal(t, OutcomeApplied, results[0].Objects[0].Outcome)

	recBefore, err := target.AuditStore().Latest(ctx, "table", "widgets")
	require.NoError(t, err)
	require.Equal(t, audit.ActionCreate, recBefore.Action)

	rbEng := NewEngine(testConfig(config.Operations{Rollback: "table:widgets"}),
		nil, zaptest.NewLogger(t), nil)
	rbResults := rbEng.Run(ctx, targets)
	require.Equal(t, OutcomeRolledBack, rbResults[0].Objects[0].Outcome)

	exists, err := target.Exists(ctx, dialect.ObjectTable, "widgets")
	require.NoError(t, err)
	assert.False(t, exists)

	// Still only the original create record.
	recAfter, err := target.AuditStore().Latest(ctx, "table", "widgets")
	require.NoError(t, err)
	assert.Equal(t, recBefore.ID, recAfter.ID)

	// A second rollback replays the drop, which is not an error.
	rbResults = rbEng.Run(ctx, targets)
	assert.Equal(t, OutcomeRolledBack, rbResults[0].Objects[0].Outcome)
}

func TestEngineRollbackWithoutHistory(t *testing.T) {
	ctx := context.Background()
	target := openSQLite(t, "target")

	eng := NewEngine(testConfig(config.Operations{Rollback: "table:ghost"}),
		nil, zaptest.NewLogger(t), nil)
	results := eng.Run(ctx, []Target{{Index: 0, Vendor: dialect.VendorSQLite, Adapter: target}})
	require.Len(t, results, 1)
	require.Len(t, results[0].Objects, 1)

	obj := results[0].Objects[0]
	assert.Equal(t, OutcomeNoHistory, obj.Outcome)
	assert.ErrorIs(t, obj.Err, audit.ErrNoHistory)
}

func TestEngineValidationFailureLeavesTargetUntouched(t *testing.T) {
	ctx := context.Background()
	source := openSQLite(t, "source")
	target := openSQLite(t, "target")

	// Same name, different object type: the create is rejected by the
	// dry-run because a view already occupies the name.
	mustExec(t, source, "CREATE TABLE dup (id INTEGER PRIMARY KEY)")
	mustExec(t, target, "CREATE VIEW dup AS SELECT 1 AS id")

	eng := NewEngine(testConfig(config.Operations{SyncObject: "table:dup", CreateOnTarget: true}),
		source, zaptest.NewLogger(t), nil)
	results := eng.Run(ctx, []Target{{Index: 0, Vendor: dialect.VendorSQLite, Adapter: target}})
	require.Len(t, results, 1)
	require.Len(t, results[0].Objects, 1)

	obj := results[0].Objects[0]
	assert.Equal(t, OutcomeValidationFailed, obj.Outcome)
	require.Error(t, obj.Err)
	assert.Contains(t, obj.Err.Error(), "already exists")

	// The target still has its view, untouched, and no history was written.
	def, err := target.GetDefinition(ctx, dialect.ObjectView, "dup")
	require.NoError(t, err)
	assert.Equal(t, "CREATE VIEW dup AS SELECT 1 AS id", def)
	exists, err := target.Exists(ctx, dialect.ObjectTable, "dup")
	require.NoError(t, err)
	assert.False(t, exists)
	_, err = target.AuditStore().Latest(ctx, "table", "dup")
	assert.ErrorIs(t, err, audit.ErrNoHistory)
}

func TestEngineIndexPass(t *testing.T) {
	ctx := context.Background()
	source := openSQLite(t, "source")
	target := openSQLite(t, "target")

	mustExec(t, source, "CREATE TABLE events (id INTEGER PRIMARY KEY, kind TEXT, at TEXT)")
	mustExec(t, source, "CREATE INDEX idx_events_kind ON events (kind)")
	mustExec(t, source, "CREATE UNIQUE INDEX idx_events_kind_at ON events (kind, at)")
	mustExec(t, target, "CREATE TABLE events (id INTEGER PRIMARY KEY, kind TEXT, at TEXT)")

	targets := []Target{{Index: 0, Vendor: dialect.VendorSQLite, Adapter: target}}
	eng := NewEngine(testConfig(config.Operations{SyncAllTables: true, SyncIndexes: true}),
		source, zaptest.NewLogger(t), nil)
	results := eng.Run(ctx, targets)
	require.Len(t, results, 1)
	byName := resultsByName(results[0])

	assert.Equal(t, OutcomeUpToDate, byName["events"].Outcome)
	assert.Equal(t, OutcomeApplied, byName["events.idx_events_kind"].Outcome)
	assert.Equal(t, OutcomeApplied, byName["events.idx_events_kind_at"].Outcome)

	for _, name := range []string{"events.idx_events_kind", "events.idx_events_kind_at"} {
		exists, err := target.Exists(ctx, dialect.ObjectIndex, name)
		require.NoError(t, err)
		assert.True(t, exists, name)

		rec, err := target.AuditStore().Latest(ctx, "index", name)
		require.NoError(t, err)
		assert.Equal(t, audit.ActionCreate, rec.Action)
		assert.Equal(t, audit.RollbackDrop, rec.RollbackAction)
	}

	// The pass is additive and idempotent: a second run skips everything.
	rec, err := target.AuditStore().Latest(ctx, "index", "events.idx_events_kind")
	require.NoError(t, err)
	results = eng.Run(ctx, targets)
	byName = resultsByName(results[0])
	assert.Equal(t, OutcomeUpToDate, byName["events.idx_events_kind"].Outcome)
	assert.Equal(t, OutcomeUpToDate, byName["events.idx_events_kind_at"].Outcome)
	rec2, err := target.AuditStore().Latest(ctx, "index", "events.idx_events_kind")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, rec2.ID)
}

func TestEngineMultipleTargets(t *testing.T) {
	ctx := context.Background()
	source := openSQLite(t, "source")
	targetA := openSQLite(t, "target-a")
	targetB := openSQLite(t, "target-b")

	mustExec(t, source, "CREATE TABLE folks (id INTEGER PRIMARY KEY, name TEXT)")
	// targetB already has a diverged copy; targetA has none.
	mustExec(t, targetB, "CREATE TABLE folks (id INTEGER PRIMARY KEY)")

	eng := NewEngine(testConfig(config.Operations{SyncObject: "table:folks", CreateOnTarget: true}),
		source, zaptest.NewLogger(t), nil)
	results := eng.Run(ctx, []Target{
		{Index: 0, Vendor: dialect.VendorSQLite, Adapter: targetA},
		{Index: 1, Vendor: dialect.VendorSQLite, Adapter: targetB},
	})
	require.Len(t, results, 2)
	assert.Equal(t, 0, results[0].TargetIndex)
	assert.Equal(t, 1, results[1].TargetIndex)

	assert.Equal(t, DriftAbsent, results[0].Objects[0].Drift)
	assert.Equal(t, OutcomeApplied, results[0].Objects[0].Outcome)
	assert.Equal(t, DriftDivergent, results[1].Objects[0].Drift)
	assert.Equal(t, OutcomeApplied, results[1].Objects[0].Outcome)

	// Each target keeps its own history with its own action.
	recA, err := targetA.AuditStore().Latest(ctx, "table", "folks")
	require.NoError(t, err)
	assert.Equal(t, audit.ActionCreate, recA.Action)
	recB, err := targetB.AuditStore().Latest(ctx, "table", "folks")
	require.NoError(t, err)
	assert.Equal(t, audit.ActionSync, recB.Action)
}

func TestEngineRunCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	eng := NewEngine(testConfig(config.Operations{SyncAllTables: true}),
		newFakeAdapter(), zaptest.NewLogger(t), nil)
	results := eng.Run(ctx, []Target{
		{Index: 0, Vendor: dialect.VendorSQLite, Adapter: newFakeAdapter()},
		{Index: 1, Vendor: dialect.VendorSQLite, Adapter: newFakeAdapter()},
	})
	require.Len(t, results, 2)
	for _, res := range results {
		assert.Error(t, res.Err)
		assert.Empty(t, res.Objects)
	}
}

func TestEngineRefusesHistoryTableAsObject(t *testing.T) {
	ctx := context.Background()
	source := openSQLite(t, "source")
	target := openSQLite(t, "target")

	eng := NewEngine(testConfig(config.Operations{SyncObject: "table:" + audit.LogTable, CreateOnTarget: true}),
		source, zaptest.NewLogger(t), nil)
	results := eng.Run(ctx, []Target{{Index: 0, Vendor: dialect.VendorSQLite, Adapter: target}})
	require.Len(t, results, 1)
	require.Len(t, results[0].Objects, 1)

	obj := results[0].Objects[0]
	assert.Equal(t, OutcomeFailed, obj.Outcome)
	require.Error(t, obj.Err)
	assert.Contains(t, obj.Err.Error(), "cannot be synchronized")
}

func TestParseObjectSpec(t *testing.T) {
	testCases := []struct {
		name     string
		spec     string
		wantType dialect.ObjectType
		wantName string
		wantErr  bool
	}{
		{"table spec", "table:users", dialect.ObjectTable, "users", false},
		{"view spec", "view:v_active", dialect.ObjectView, "v_active", false},
		{"procedure spec", "procedure:calc_totals", dialect.ObjectProcedure, "calc_totals", false},
		{"padded name is trimmed", "table: users ", dialect.ObjectTable, "users", false},
		{"missing separator", "users", "", "", true},
		{"empty type", ":users", "", "", true},
		{"empty name", "table:", "", "", true},
		{"unknown type", "sequence:s1", "", "", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			objectType, name, err := ParseObjectSpec(tc.spec)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantType, objectType)
			assert.Equal(t, tc.wantName, name)
		})
	}
}
