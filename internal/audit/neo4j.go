package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jStore keeps the log as SyncLog nodes on a graph target.
// Timestamps are stored as Unix milliseconds so ORDER BY is cheap.
type Neo4jStore struct {
	driver neo4j.DriverWithContext
}

var _ Store = (*Neo4jStore)(nil)

func NewNeo4jStore(driver neo4j.DriverWithContext) *Neo4jStore {
	return &Neo4jStore{driver: driver}
}

func (s *Neo4jStore) EnsureSchema(ctx context.Context) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.Run(ctx,
		"CREATE INDEX sync_log_identity IF NOT EXISTS FOR (r:SyncLog) ON (r.object_type, r.object_name)",
		nil)
	if err != nil {
		return fmt.Errorf("create sync_log index: %w", err)
	}
	return nil
}

func (s *Neo4jStore) Append(ctx context.Context, rec *SyncRecord) error {
	stampRecord(rec)
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	params := map[string]any{
		"object_type":        rec.ObjectType,
		"object_name":        rec.ObjectName,
		"action":             rec.Action,
		"source_fingerprint": rec.SourceFingerprint,
		"sync_direction":     rec.SyncDirection,
		"new_state":          rec.NewState,
		"rollback_action":    rec.RollbackAction,
		"timestamp":          rec.Timestamp.UnixMilli(),
	}
	if rec.OriginalState != nil {
		params["original_state"] = *rec.OriginalState
	} else {
		params["original_state"] = nil
	}

	_, err := session.Run(ctx,
		`CREATE (:SyncLog {object_type: $object_type, object_name: $object_name,
			action: $action, source_fingerprint: $source_fingerprint,
			sync_direction: $sync_direction, original_state: $original_state,
			new_state: $new_state, rollback_action: $rollback_action,
			timestamp: $timestamp})`,
		params)
	if err != nil {
		return fmt.Errorf("append sync_log record for %s %s: %w", rec.ObjectType, rec.ObjectName, err)
	}
	return nil
}

func (s *Neo4jStore) Latest(ctx context.Context, objectType, objectName string) (*SyncRecord, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`MATCH (r:SyncLog {object_type: $object_type, object_name: $object_name})
		 RETURN r ORDER BY r.timestamp DESC LIMIT 1`,
		map[string]any{"object_type": objectType, "object_name": objectName})
	if err != nil {
		return nil, fmt.Errorf("read sync_log for %s %s: %w", objectType, objectName, err)
	}
	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return nil, fmt.Errorf("read sync_log for %s %s: %w", objectType, objectName, err)
		}
		return nil, ErrNoHistory
	}

	value, ok := result.Record().Get("r")
	if !ok {
		return nil, fmt.Errorf("read sync_log for %s %s: malformed result", objectType, objectName)
	}
	node, ok := value.(neo4j.Node)
	if !ok {
		return nil, fmt.Errorf("read sync_log for %s %s: unexpected result type %T", objectType, objectName, value)
	}
	return recordFromNode(node), nil
}

func recordFromNode(node neo4j.Node) *SyncRecord {
	rec := &SyncRecord{
		ObjectType:        nodeString(node, "object_type"),
		ObjectName:        nodeString(node, "object_name"),
		Action:            nodeString(node, "action"),
		SourceFingerprint: nodeString(node, "source_fingerprint"),
		SyncDirection:     nodeString(node, "sync_direction"),
		NewState:          nodeString(node, "new_state"),
		RollbackAction:    nodeString(node, "rollback_action"),
	}
	if v, ok := node.Props["original_state"]; ok && v != nil {
		if s, ok := v.(string); ok {
			rec.OriginalState = &s
		}
	}
	if v, ok := node.Props["timestamp"]; ok {
		if ms, ok := v.(int64); ok {
			rec.Timestamp = time.UnixMilli(ms).UTC()
		}
	}
	return rec
}

func nodeString(node neo4j.Node, key string) string {
	v, ok := node.Props[key]
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}
