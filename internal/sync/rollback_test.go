package sync

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/arwahdevops/schemasync/internal/audit"
	"github.com/arwahdevops/schemasync/internal/dialect"
)

func TestRollbackNoHistory(t *testing.T) {
	target := newFakeAdapter()
	r := NewRollbackResolver(target, zaptest.NewLogger(t))

	err := r.Rollback(context.Background(), dialect.ObjectTable, "users")
	require.Error(t, err)
	assert.ErrorIs(t, err, audit.ErrNoHistory)
	assert.Empty(t, target.calls)
}

func TestRollbackHistoryReadFailure(t *testing.T) {
	target := newFakeAdapter()
	target.store.latestErr = errors.New("database is locked")
	r := NewRollbackResolver(target, zaptest.NewLogger(t))

	err := r.Rollback(context.Background(), dialect.ObjectTable, "users")
	require.Error(t, err)
	assert.NotErrorIs(t, err, audit.ErrNoHistory)
	assert.Contains(t, err.Error(), "read history")
}

func TestRollbackCreateDropsObject(t *testing.T) {
	target := newFakeAdapter()
	target.setDefinition(dialect.ObjectTable, "users", "CREATE TABLE users (id int)")
	target.store.records = []audit.SyncRecord{{
		ObjectType:     "table",
		ObjectName:     "users",
		Action:         audit.ActionCreate,
		NewState:       "CREATE TABLE users (id int)",
		RollbackAction: audit.RollbackDrop,
	}}

	r := NewRollbackResolver(target, zaptest.NewLogger(t))
	require.NoError(t, r.Rollback(context.Background(), dialect.ObjectTable, "users"))
	assert.Equal(t, []string{"drop:table:users"}, target.calls)
	// Rollback reads history, it never writes it.
	assert.Len(t, target.store.records, 1)
}

func TestRollbackSyncRestoresOriginal(t *testing.T) {
	original := "CREATE VIEW v AS SELECT 1"
	target := newFakeAdapter()
	target.setDefinition(dialect.ObjectView, "v", "CREATE VIEW v AS SELECT 2")
	target.store.records = []audit.SyncRecord{{
		ObjectType:     "view",
		ObjectName:     "v",
		Action:         audit.ActionSync,
		OriginalState:  &original,
		NewState:       "CREATE VIEW v AS SELECT 2",
		RollbackAction: audit.RollbackRecreate,
	}}

	r := NewRollbackResolver(target, zaptest.NewLogger(t))
	require.NoError(t, r.Rollback(context.Background(), dialect.ObjectView, "v"))
	assert.Equal(t, []string{"recreate:view:v"}, target.calls)
	assert.Equal(t, original, target.definitions[defKey(dialect.ObjectView, "v")])
	assert.Len(t, target.store.records, 1)
}

func TestRollbackUsesOnlyLatestRecord(t *testing.T) {
	older := "CREATE VIEW v AS SELECT 1"
	newer := "CREATE VIEW v AS SELECT 2"
	target := newFakeAdapter()
	target.store.records = []audit.SyncRecord{
		{ObjectType: "view", ObjectName: "v", Action: audit.ActionSync, OriginalState: &older, RollbackAction: audit.RollbackRecreate},
		{ObjectType: "view", ObjectName: "v", Action: audit.ActionSync, OriginalState: &newer, RollbackAction: audit.RollbackRecreate},
	}

	r := NewRollbackResolver(target, zaptest.NewLogger(t))
	require.NoError(t, r.Rollback(context.Background(), dialect.ObjectView, "v"))
	assert.Equal(t, newer, target.definitions[defKey(dialect.ObjectView, "v")])
}

func TestRollbackSyncWithoutOriginalState(t *testing.T) {
	target := newFakeAdapter()
	target.store.records = []audit.SyncRecord{{
		ObjectType:     "view",
		ObjectName:     "v",
		Action:         audit.ActionSync,
		RollbackAction: audit.RollbackRecreate,
	}}

	r := NewRollbackResolver(target, zaptest.NewLogger(t))
	err := r.Rollback(context.Background(), dialect.ObjectView, "v")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no original state")
	assert.Empty(t, target.calls)
}

func TestRollbackForwardCompatibleRecords(t *testing.T) {
	t.Run("unknown action with recreate and state is honored", func(t *testing.T) {
		original := "CREATE TABLE t (id int)"
		target := newFakeAdapter()
		target.store.records = []audit.SyncRecord{{
			ObjectType:     "table",
			ObjectName:     "t",
			Action:         "migrate",
			OriginalState:  &original,
			RollbackAction: audit.RollbackRecreate,
		}}

		r := NewRollbackResolver(target, zaptest.NewLogger(t))
		require.NoError(t, r.Rollback(context.Background(), dialect.ObjectTable, "t"))
		assert.Equal(t, []string{"recreate:table:t"}, target.calls)
	})

	t.Run("unknown action without a usable inverse is refused", func(t *testing.T) {
		target := newFakeAdapter()
		target.store.records = []audit.SyncRecord{{
			ObjectType:     "table",
			ObjectName:     "t",
			Action:         "migrate",
			RollbackAction: "transmute",
		}}

		r := NewRollbackResolver(target, zaptest.NewLogger(t))
		err := r.Rollback(context.Background(), dialect.ObjectTable, "t")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not reversible")
		assert.Empty(t, target.calls)
	})
}
