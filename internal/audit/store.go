package audit

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ErrNoHistory is returned by Latest when no record exists for the
// requested object identity.
var ErrNoHistory = errors.New("no synchronization history for object")

// Store persists SyncRecords on a single target. Implementations are
// append-only: there is no update or delete surface.
type Store interface {
	// EnsureSchema creates the sync_log store if it does not exist.
	EnsureSchema(ctx context.Context) error
	// Append writes one record. A zero Timestamp is stamped with the
	// current UTC time before the write.
	Append(ctx context.Context, rec *SyncRecord) error
	// Latest returns the most recent record for the given object
	// identity, or ErrNoHistory.
	Latest(ctx context.Context, objectType, objectName string) (*SyncRecord, error)
}

// GormStore keeps the log in a sync_log table on the target itself, so
// history travels with the database it describes.
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) EnsureSchema(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&SyncRecord{}); err != nil {
		return fmt.Errorf("migrate sync_log: %w", err)
	}
	return nil
}

func (s *GormStore) Append(ctx context.Context, rec *SyncRecord) error {
	stampRecord(rec)
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("append sync_log record for %s %s: %w", rec.ObjectType, rec.ObjectName, err)
	}
	return nil
}

func (s *GormStore) Latest(ctx context.Context, objectType, objectName string) (*SyncRecord, error) {
	var rec SyncRecord
	err := s.db.WithContext(ctx).
		Where("object_type = ? AND object_name = ?", objectType, objectName).
		Order("timestamp DESC, id DESC").
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoHistory
		}
		return nil, fmt.Errorf("read sync_log for %s %s: %w", objectType, objectName, err)
	}
	return &rec, nil
}
