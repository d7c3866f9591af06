package audit

import (
	"time"
)

// Actions recorded in the synchronization log.
const (
	ActionCreate = "create"
	ActionSync   = "sync"
	ActionDrop   = "drop"
)

// Inverse operations precomputed at write time.
const (
	RollbackDrop     = "drop"
	RollbackRecreate = "recreate"
)

// DirectionSourceToTarget is the only direction this engine writes.
// The column exists for future bidirectional support.
const DirectionSourceToTarget = "source_to_target"

// LogTable is the reserved name of the history store on relational targets.
// The orchestrator must never treat it as a user object.
const LogTable = "sync_log"

// SyncRecord is one applied synchronization action. Records are append-only:
// they are written exactly once, immediately after a DDL statement commits
// on a target, and are never updated or deleted by the engine.
type SyncRecord struct {
	ID                uint      `gorm:"primaryKey;autoIncrement" bson:"-"`
	ObjectType        string    `gorm:"column:object_type;size:32;not null;index:idx_sync_log_identity,priority:1" bson:"object_type"`
	ObjectName        string    `gorm:"column:object_name;size:256;not null;index:idx_sync_log_identity,priority:2" bson:"object_name"`
	Action            string    `gorm:"column:action;size:16;not null" bson:"action"`
	SourceFingerprint string    `gorm:"column:source_fingerprint;size:64;not null" bson:"source_fingerprint"`
	SyncDirection     string    `gorm:"column:sync_direction;size:32;not null" bson:"sync_direction"`
	OriginalState     *string   `gorm:"column:original_state;type:text" bson:"original_state"`
	NewState          string    `gorm:"column:new_state;type:text;not null" bson:"new_state"`
	RollbackAction    string    `gorm:"column:rollback_action;size:16;not null" bson:"rollback_action"`
	Timestamp         time.Time `gorm:"column:timestamp;not null;index" bson:"timestamp"`
}

// TableName pins the relational table name for every target vendor.
func (SyncRecord) TableName() string {
	return LogTable
}

func stampRecord(rec *SyncRecord) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if rec.SyncDirection == "" {
		rec.SyncDirection = DirectionSourceToTarget
	}
}
