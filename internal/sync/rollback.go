package sync

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/arwahdevops/schemasync/internal/audit"
	"github.com/arwahdevops/schemasync/internal/dialect"
)

// RollbackResolver reverts the most recent recorded action for one object
// on one target. Only the latest history record counts; earlier records are
// never consulted. Rollback itself writes no history, so running it twice
// replays the same inverse operation.
type RollbackResolver struct {
	target dialect.Adapter
	audits audit.Store
	logger *zap.Logger
}

func NewRollbackResolver(target dialect.Adapter, logger *zap.Logger) *RollbackResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RollbackResolver{
		target: target,
		audits: target.AuditStore(),
		logger: logger,
	}
}

// Rollback reads the latest record for the object and applies its inverse.
// A recorded create is undone by dropping the object; a recorded sync is
// undone by recreating the preserved original definition. Records written
// by a newer engine are honored as long as they carry a recognizable
// rollback action and the state it needs.
func (r *RollbackResolver) Rollback(ctx context.Context, objectType dialect.ObjectType, name string) error {
	rec, err := r.audits.Latest(ctx, string(objectType), name)
	if err != nil {
		if errors.Is(err, audit.ErrNoHistory) {
			return fmt.Errorf("rollback %s %s: %w", objectType, name, err)
		}
		return fmt.Errorf("rollback %s %s: read history: %w", objectType, name, err)
	}

	log := r.logger.With(
		zap.String("object_type", string(objectType)),
		zap.String("object_name", name),
		zap.String("recorded_action", rec.Action),
		zap.Time("recorded_at", rec.Timestamp))

	switch {
	case rec.Action == audit.ActionCreate:
		log.Info("Reverting recorded create by dropping the object.")
		if err := r.target.Drop(ctx, objectType, name); err != nil {
			return fmt.Errorf("rollback %s %s: drop: %w", objectType, name, err)
		}
		return nil

	case rec.OriginalState != nil && (rec.Action == audit.ActionSync || rec.RollbackAction == audit.RollbackRecreate):
		log.Info("Restoring recorded original definition.")
		if err := r.target.Recreate(ctx, objectType, name, *rec.OriginalState); err != nil {
			return fmt.Errorf("rollback %s %s: recreate original: %w", objectType, name, err)
		}
		return nil

	case rec.Action == audit.ActionSync:
		return fmt.Errorf("rollback %s %s: latest record has no original state to restore", objectType, name)
	}
	return fmt.Errorf("rollback %s %s: latest record action %q is not reversible", objectType, name, rec.Action)
}
