package sync

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/arwahdevops/schemasync/internal/audit"
	"github.com/arwahdevops/schemasync/internal/dialect"
)

// ApplyInput is one classified object plus the behavior flags for this run.
type ApplyInput struct {
	ObjectType     dialect.ObjectType
	ObjectName     string
	Drift          *Drift
	CreateOnTarget bool
	AlterSync      bool
}

// SafeApplyExecutor turns a drift classification into target DDL. Every
// statement is validated by the adapter's dry-run before it is executed,
// and every executed change is followed by a synchronous history write.
type SafeApplyExecutor struct {
	target      dialect.Adapter
	audits      audit.Store
	logger      *zap.Logger
	fingerprint string
}

func NewSafeApplyExecutor(target dialect.Adapter, logger *zap.Logger) *SafeApplyExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SafeApplyExecutor{
		target:      target,
		audits:      target.AuditStore(),
		logger:      logger,
		fingerprint: audit.Fingerprint(),
	}
}

// Apply dispatches on the drift state. The returned error explains any
// outcome other than a clean success; callers decide severity from the
// outcome, not from the error being non-nil.
func (e *SafeApplyExecutor) Apply(ctx context.Context, in ApplyInput) (Outcome, error) {
	log := e.logger.With(
		zap.String("object_type", string(in.ObjectType)),
		zap.String("object_name", in.ObjectName))

	switch in.Drift.State {
	case DriftIdentical:
		log.Info("Object is already synchronized.")
		return OutcomeUpToDate, nil

	case DriftAbsent:
		if !in.CreateOnTarget {
			log.Info("Object missing on target and create-on-target not requested, skipping.")
			return OutcomeSkippedAbsent, nil
		}
		return e.applyCreate(ctx, in, log)

	case DriftDivergent:
		if in.AlterSync {
			log.Warn("Alter-based synchronization is not implemented, object left untouched.")
			return OutcomeAlterUnsupported, fmt.Errorf("alter-based synchronization of %s %s: not yet supported", in.ObjectType, in.ObjectName)
		}
		return e.applyReplace(ctx, in, log)
	}
	return OutcomeFailed, fmt.Errorf("unknown drift state %q for %s %s", in.Drift.State, in.ObjectType, in.ObjectName)
}

// applyCreate validates and executes the source definition on a target that
// does not have the object. The history record carries a null original
// state: there was nothing to preserve.
func (e *SafeApplyExecutor) applyCreate(ctx context.Context, in ApplyInput, log *zap.Logger) (Outcome, error) {
	log.Info("Object missing on target, creating.")
	if err := e.target.Validate(ctx, in.Drift.SourceDefinition); err != nil {
		return OutcomeValidationFailed, fmt.Errorf("validate create of %s %s: %w", in.ObjectType, in.ObjectName, err)
	}
	if err := e.target.Execute(ctx, in.Drift.SourceDefinition); err != nil {
		return OutcomeFailed, fmt.Errorf("create %s %s: %w", in.ObjectType, in.ObjectName, err)
	}
	log.Info("Object created on target.")
	return e.record(ctx, log, &audit.SyncRecord{
		ObjectType:     string(in.ObjectType),
		ObjectName:     in.ObjectName,
		Action:         audit.ActionCreate,
		NewState:       in.Drift.SourceDefinition,
		RollbackAction: audit.RollbackDrop,
	})
}

// applyReplace drops the diverged object and recreates it from the source
// definition. The pre-drop target text goes into the history record as the
// original state, which is what rollback later restores. A validation
// failure after the drop leaves the object missing on the target; the
// returned error says so.
func (e *SafeApplyExecutor) applyReplace(ctx context.Context, in ApplyInput, log *zap.Logger) (Outcome, error) {
	log.Info("Object diverged from source, replacing.")
	original := in.Drift.TargetDefinition

	if err := e.target.Drop(ctx, in.ObjectType, in.ObjectName); err != nil {
		return OutcomeFailed, fmt.Errorf("drop diverged %s %s: %w", in.ObjectType, in.ObjectName, err)
	}
	if err := e.target.Validate(ctx, in.Drift.SourceDefinition); err != nil {
		return OutcomeValidationFailed, fmt.Errorf("validate replacement of %s %s (old object already dropped, not recreated): %w", in.ObjectType, in.ObjectName, err)
	}
	if err := e.target.Execute(ctx, in.Drift.SourceDefinition); err != nil {
		return OutcomeFailed, fmt.Errorf("replace %s %s: %w", in.ObjectType, in.ObjectName, err)
	}
	log.Info("Object replaced with source definition.")
	return e.record(ctx, log, &audit.SyncRecord{
		ObjectType:     string(in.ObjectType),
		ObjectName:     in.ObjectName,
		Action:         audit.ActionSync,
		OriginalState:  &original,
		NewState:       in.Drift.SourceDefinition,
		RollbackAction: audit.RollbackRecreate,
	})
}

// ApplyIndex adds one source index to the target if no index with the same
// qualified name exists there. The pass is additive only: extra target
// indexes are never dropped.
func (e *SafeApplyExecutor) ApplyIndex(ctx context.Context, def dialect.IndexDef) (Outcome, error) {
	qualified := def.QualifiedName()
	log := e.logger.With(
		zap.String("object_type", string(dialect.ObjectIndex)),
		zap.String("object_name", qualified))

	exists, err := e.target.Exists(ctx, dialect.ObjectIndex, qualified)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("index existence check for %s: %w", qualified, err)
	}
	if exists {
		log.Debug("Index already present on target.")
		return OutcomeUpToDate, nil
	}

	stmt, err := e.target.BuildCreateIndex(def)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("build create statement for index %s: %w", qualified, err)
	}
	if err := e.target.Validate(ctx, stmt); err != nil {
		return OutcomeValidationFailed, fmt.Errorf("validate index %s: %w", qualified, err)
	}
	if err := e.target.Execute(ctx, stmt); err != nil {
		return OutcomeFailed, fmt.Errorf("create index %s: %w", qualified, err)
	}
	log.Info("Index created on target.")
	return e.record(ctx, log, &audit.SyncRecord{
		ObjectType:     string(dialect.ObjectIndex),
		ObjectName:     qualified,
		Action:         audit.ActionCreate,
		NewState:       stmt,
		RollbackAction: audit.RollbackDrop,
	})
}

// record writes the history entry for an already-executed change. A failed
// write degrades the outcome to AppliedUnlogged instead of failing the
// object: the DDL is already live on the target.
func (e *SafeApplyExecutor) record(ctx context.Context, log *zap.Logger, rec *audit.SyncRecord) (Outcome, error) {
	rec.SourceFingerprint = e.fingerprint
	rec.SyncDirection = audit.DirectionSourceToTarget
	if err := e.audits.Append(ctx, rec); err != nil {
		log.Warn("Change applied but the history write failed; this object cannot be rolled back.",
			zap.Error(err))
		return OutcomeAppliedUnlogged, fmt.Errorf("write sync history for %s %s: %w", rec.ObjectType, rec.ObjectName, err)
	}
	return OutcomeApplied, nil
}
