package sync

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/arwahdevops/schemasync/internal/audit"
	"github.com/arwahdevops/schemasync/internal/dialect"
)

// fakeStore is an in-memory audit.Store. Latest returns the most recently
// appended record for an identity, matching the timestamp order the
// executor writes in.
type fakeStore struct {
	records   []audit.SyncRecord
	appendErr error
	latestErr error
}

func (s *fakeStore) EnsureSchema(ctx context.Context) error { return nil }

func (s *fakeStore) Append(ctx context.Context, rec *audit.SyncRecord) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	s.records = append(s.records, *rec)
	return nil
}

func (s *fakeStore) Latest(ctx context.Context, objectType, objectName string) (*audit.SyncRecord, error) {
	if s.latestErr != nil {
		return nil, s.latestErr
	}
	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].ObjectType == objectType && s.records[i].ObjectName == objectName {
			rec := s.records[i]
			return &rec, nil
		}
	}
	return nil, audit.ErrNoHistory
}

// fakeAdapter records every statement-level call so tests can assert what
// was, and was not, sent to the database.
type fakeAdapter struct {
	vendor         dialect.Vendor
	store          *fakeStore
	definitions    map[string]string
	existsOverride map[string]bool
	indexes        map[string][]dialect.IndexDef
	objects        map[dialect.ObjectType][]string
	validateErr    error
	executeErr     error
	dropErr        error
	recreateErr    error
	listErr        error
	calls          []string
}

var _ dialect.Adapter = (*fakeAdapter)(nil)

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		vendor:         dialect.VendorSQLite,
		store:          &fakeStore{},
		definitions:    make(map[string]string),
		existsOverride: make(map[string]bool),
		indexes:        make(map[string][]dialect.IndexDef),
		objects:        make(map[dialect.ObjectType][]string),
	}
}

func defKey(objectType dialect.ObjectType, name string) string {
	return string(objectType) + ":" + name
}

func (a *fakeAdapter) setDefinition(objectType dialect.ObjectType, name, definition string) {
	a.definitions[defKey(objectType, name)] = definition
}

func (a *fakeAdapter) Vendor() dialect.Vendor         { return a.vendor }
func (a *fakeAdapter) Ping(ctx context.Context) error { return nil }
func (a *fakeAdapter) Close() error                   { return nil }
func (a *fakeAdapter) AuditStore() audit.Store        { return a.store }

func (a *fakeAdapter) Exists(ctx context.Context, objectType dialect.ObjectType, name string) (bool, error) {
	a.calls = append(a.calls, "exists:"+defKey(objectType, name))
	if forced, ok := a.existsOverride[defKey(objectType, name)]; ok {
		return forced, nil
	}
	_, ok := a.definitions[defKey(objectType, name)]
	return ok, nil
}

func (a *fakeAdapter) GetDefinition(ctx context.Context, objectType dialect.ObjectType, name string) (string, error) {
	a.calls = append(a.calls, "definition:"+defKey(objectType, name))
	def, ok := a.definitions[defKey(objectType, name)]
	if !ok {
		return "", fmt.Errorf("%s %s: %w", objectType, name, dialect.ErrDefinitionUnavailable)
	}
	return def, nil
}

func (a *fakeAdapter) ListObjects(ctx context.Context, objectType dialect.ObjectType) ([]string, error) {
	if a.listErr != nil {
		return nil, a.listErr
	}
	return append([]string(nil), a.objects[objectType]...), nil
}

func (a *fakeAdapter) ListIndexes(ctx context.Context, table string) ([]dialect.IndexDef, error) {
	if a.listErr != nil {
		return nil, a.listErr
	}
	return append([]dialect.IndexDef(nil), a.indexes[table]...), nil
}

func (a *fakeAdapter) BuildCreateIndex(def dialect.IndexDef) (string, error) {
	return fmt.Sprintf("CREATE INDEX %s ON %s", def.Name, def.Table), nil
}

func (a *fakeAdapter) Validate(ctx context.Context, statement string) error {
	a.calls = append(a.calls, "validate:"+statement)
	return a.validateErr
}

func (a *fakeAdapter) Execute(ctx context.Context, statement string) error {
	a.calls = append(a.calls, "execute:"+statement)
	return a.executeErr
}

func (a *fakeAdapter) Drop(ctx context.Context, objectType dialect.ObjectType, name string) error {
	a.calls = append(a.calls, "drop:"+defKey(objectType, name))
	if a.dropErr != nil {
		return a.dropErr
	}
	delete(a.definitions, defKey(objectType, name))
	return nil
}

func (a *fakeAdapter) Recreate(ctx context.Context, objectType dialect.ObjectType, name, definition string) error {
	a.calls = append(a.calls, "recreate:"+defKey(objectType, name))
	if a.recreateErr != nil {
		return a.recreateErr
	}
	a.definitions[defKey(objectType, name)] = definition
	return nil
}

func TestApplyPolicyTable(t *testing.T) {
	testCases := []struct {
		name           string
		drift          *Drift
		createOnTarget bool
		alterSync      bool
		wantOutcome    Outcome
		wantErr        bool
		wantCalls      []string
		wantRecords    int
	}{
		{
			name: "identical is a no-op",
			drift: &Drift{
				State:            DriftIdentical,
				SourceDefinition: "CREATE TABLE t (id int)",
				TargetDefinition: "CREATE TABLE t (id int)",
			},
			wantOutcome: OutcomeUpToDate,
		},
		{
			name:        "absent without create sends nothing",
			drift:       &Drift{State: DriftAbsent, SourceDefinition: "CREATE TABLE t (id int)"},
			wantOutcome: OutcomeSkippedAbsent,
		},
		{
			name:           "absent with create validates then executes",
			drift:          &Drift{State: DriftAbsent, SourceDefinition: "CREATE TABLE t (id int)"},
			createOnTarget: true,
			wantOutcome:    OutcomeApplied,
			wantCalls: []string{
				"validate:CREATE TABLE t (id int)",
				"execute:CREATE TABLE t (id int)",
			},
			wantRecords: 1,
		},
		{
			name: "divergent with alter is refused untouched",
			drift: &Drift{
				State:            DriftDivergent,
				SourceDefinition: "CREATE TABLE t (id int, n text)",
				TargetDefinition: "CREATE TABLE t (id int)",
			},
			alterSync:   true,
			wantOutcome: OutcomeAlterUnsupported,
			wantErr:     true,
		},
		{
			name: "divergent replaces via drop validate execute",
			drift: &Drift{
				State:            DriftDivergent,
				SourceDefinition: "CREATE TABLE t (id int, n text)",
				TargetDefinition: "CREATE TABLE t (id int)",
			},
			wantOutcome: OutcomeApplied,
			wantCalls: []string{
				"drop:table:t",
				"validate:CREATE TABLE t (id int, n text)",
				"execute:CREATE TABLE t (id int, n text)",
			},
			wantRecords: 1,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			target := newFakeAdapter()
			exec := NewSafeApplyExecutor(target, zaptest.NewLogger(t))

			outcome, err := exec.Apply(context.Background(), ApplyInput{
				ObjectType:     dialect.ObjectTable,
				ObjectName:     "t",
				Drift:          tc.drift,
				CreateOnTarget: tc.createOnTarget,
				AlterSync:      tc.alterSync,
			})
			assert.Equal(t, tc.wantOutcome, outcome)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			if len(tc.wantCalls) == 0 {
				assert.Empty(t, target.calls)
			} else {
				assert.Equal(t, tc.wantCalls, target.calls)
			}
			assert.Len(t, target.store.records, tc.wantRecords)
		})
	}
}

func TestApplyCreateRecordShape(t *testing.T) {
	target := newFakeAdapter()
	exec := NewSafeApplyExecutor(target, zaptest.NewLogger(t))

	outcome, err := exec.Apply(context.Background(), ApplyInput{
		ObjectType:     dialect.ObjectView,
		ObjectName:     "v_orders",
		Drift:          &Drift{State: DriftAbsent, SourceDefinition: "CREATE VIEW v_orders AS SELECT 1"},
		CreateOnTarget: true,
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, outcome)

	require.Len(t, target.store.records, 1)
	rec := target.store.records[0]
	assert.Equal(t, "view", rec.ObjectType)
	assert.Equal(t, "v_orders", rec.ObjectName)
	assert.Equal(t, audit.ActionCreate, rec.Action)
	assert.Nil(t, rec.OriginalState)
	assert.Equal(t, "CREATE VIEW v_orders AS SELECT 1", rec.NewState)
	assert.Equal(t, audit.RollbackDrop, rec.RollbackAction)
	assert.Equal(t, audit.DirectionSourceToTarget, rec.SyncDirection)
	assert.Equal(t, audit.Fingerprint(), rec.SourceFingerprint)
}

func TestApplyReplacePreservesOriginalState(t *testing.T) {
	target := newFakeAdapter()
	target.setDefinition(dialect.ObjectView, "v", "CREATE VIEW v AS SELECT 1")
	exec := NewSafeApplyExecutor(target, zaptest.NewLogger(t))

	outcome, err := exec.Apply(context.Background(), ApplyInput{
		ObjectType: dialect.ObjectView,
		ObjectName: "v",
		Drift: &Drift{
			State:            DriftDivergent,
			SourceDefinition: "CREATE VIEW v AS SELECT 2",
			TargetDefinition: "CREATE VIEW v AS SELECT 1",
		},
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, outcome)

	require.Len(t, target.store.records, 1)
	rec := target.store.records[0]
	assert.Equal(t, audit.ActionSync, rec.Action)
	require.NotNil(t, rec.OriginalState)
	assert.Equal(t, "CREATE VIEW v AS SELECT 1", *rec.OriginalState)
	assert.Equal(t, "CREATE VIEW v AS SELECT 2", rec.NewState)
	assert.Equal(t, audit.RollbackRecreate, rec.RollbackAction)
}

func TestApplyValidationFailure(t *testing.T) {
	t.Run("create path leaves target untouched", func(t *testing.T) {
		target := newFakeAdapter()
		target.validateErr = errors.New(`near "BOOM": syntax error`)
		exec := NewSafeApplyExecutor(target, zaptest.NewLogger(t))

		outcome, err := exec.Apply(context.Background(), ApplyInput{
			ObjectType:     dialect.ObjectTable,
			ObjectName:     "t",
			Drift:          &Drift{State: DriftAbsent, SourceDefinition: "BOOM"},
			CreateOnTarget: true,
		})
		assert.Equal(t, OutcomeValidationFailed, outcome)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "syntax error")
		assert.Equal(t, []string{"validate:BOOM"}, target.calls)
		assert.Empty(t, target.store.records)
	})

	t.Run("replace path reports the dropped object", func(t *testing.T) {
		target := newFakeAdapter()
		target.setDefinition(dialect.ObjectTable, "t", "CREATE TABLE t (id int)")
		target.validateErr = errors.New(`near "BOOM": syntax error`)
		exec := NewSafeApplyExecutor(target, zaptest.NewLogger(t))

		outcome, err := exec.Apply(context.Background(), ApplyInput{
			ObjectType: dialect.ObjectTable,
			ObjectName: "t",
			Drift: &Drift{
				State:            DriftDivergent,
				SourceDefinition: "BOOM",
				TargetDefinition: "CREATE TABLE t (id int)",
			},
		})
		assert.Equal(t, OutcomeValidationFailed, outcome)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already dropped")
		assert.Equal(t, []string{"drop:table:t", "validate:BOOM"}, target.calls)
		assert.Empty(t, target.store.records)
	})
}

func TestApplyExecutionFailureWritesNoRecord(t *testing.T) {
	target := newFakeAdapter()
	target.executeErr = errors.New("disk I/O error")
	exec := NewSafeApplyExecutor(target, zaptest.NewLogger(t))

	outcome, err := exec.Apply(context.Background(), ApplyInput{
		ObjectType:     dialect.ObjectTable,
		ObjectName:     "t",
		Drift:          &Drift{State: DriftAbsent, SourceDefinition: "CREATE TABLE t (id int)"},
		CreateOnTarget: true,
	})
	assert.Equal(t, OutcomeFailed, outcome)
	require.Error(t, err)
	assert.Empty(t, target.store.records)
}

func TestApplyHistoryWriteFailureDegrades(t *testing.T) {
	target := newFakeAdapter()
	target.store.appendErr = errors.New("database or disk is full")
	exec := NewSafeApplyExecutor(target, zaptest.NewLogger(t))

	outcome, err := exec.Apply(context.Background(), ApplyInput{
		ObjectType:     dialect.ObjectTable,
		ObjectName:     "t",
		Drift:          &Drift{State: DriftAbsent, SourceDefinition: "CREATE TABLE t (id int)"},
		CreateOnTarget: true,
	})
	assert.Equal(t, OutcomeAppliedUnlogged, outcome)
	require.Error(t, err)
	// The DDL still ran; only the history write failed.
	assert.Contains(t, target.calls, "execute:CREATE TABLE t (id int)")
	assert.True(t, outcome.Mutated())
	assert.False(t, outcome.Success())
}

func TestApplyIndex(t *testing.T) {
	def := dialect.IndexDef{Name: "idx_users_email", Table: "users", Columns: []string{"email"}}

	t.Run("creates missing index", func(t *testing.T) {
		target := newFakeAdapter()
		exec := NewSafeApplyExecutor(target, zaptest.NewLogger(t))

		outcome, err := exec.ApplyIndex(context.Background(), def)
		require.NoError(t, err)
		assert.Equal(t, OutcomeApplied, outcome)

		require.Len(t, target.store.records, 1)
		rec := target.store.records[0]
		assert.Equal(t, "index", rec.ObjectType)
		assert.Equal(t, "users.idx_users_email", rec.ObjectName)
		assert.Equal(t, audit.ActionCreate, rec.Action)
		assert.Equal(t, audit.RollbackDrop, rec.RollbackAction)
		assert.Equal(t, "CREATE INDEX idx_users_email ON users", rec.NewState)
	})

	t.Run("skips existing index", func(t *testing.T) {
		target := newFakeAdapter()
		target.setDefinition(dialect.ObjectIndex, "users.idx_users_email", "CREATE INDEX idx_users_email ON users")
		exec := NewSafeApplyExecutor(target, zaptest.NewLogger(t))

		outcome, err := exec.ApplyIndex(context.Background(), def)
		require.NoError(t, err)
		assert.Equal(t, OutcomeUpToDate, outcome)
		assert.Equal(t, []string{"exists:index:users.idx_users_email"}, target.calls)
		assert.Empty(t, target.store.records)
	})

	t.Run("validation failure executes nothing", func(t *testing.T) {
		target := newFakeAdapter()
		target.validateErr = errors.New("no such column: email")
		exec := NewSafeApplyExecutor(target, zaptest.NewLogger(t))

		outcome, err := exec.ApplyIndex(context.Background(), def)
		assert.Equal(t, OutcomeValidationFailed, outcome)
		require.Error(t, err)
		assert.NotContains(t, target.calls, "execute:CREATE INDEX idx_users_email ON users")
		assert.Empty(t, target.store.records)
	})
}
