package sync

import (
	"time"

	"go.uber.org/multierr"

	"github.com/arwahdevops/schemasync/internal/dialect"
)

// Outcome is the terminal state of one object-level operation.
type Outcome string

const (
	// OutcomeApplied means DDL was executed and the history record written.
	OutcomeApplied Outcome = "applied"
	// OutcomeAppliedUnlogged means DDL was executed but the history write
	// failed. The change is live and cannot be rolled back through the log.
	OutcomeAppliedUnlogged Outcome = "applied_unlogged"
	// OutcomeUpToDate means the definitions already matched byte for byte.
	OutcomeUpToDate Outcome = "up_to_date"
	// OutcomeSkippedAbsent means the object is missing on the target and
	// create-on-target was not requested, so nothing was sent.
	OutcomeSkippedAbsent Outcome = "skipped_absent"
	// OutcomeSourceUnavailable means the source could not produce a
	// definition for the object, so no comparison was possible.
	OutcomeSourceUnavailable Outcome = "source_unavailable"
	// OutcomeValidationFailed means the dry-run rejected the statement and
	// nothing was executed against the target.
	OutcomeValidationFailed Outcome = "validation_failed"
	// OutcomeAlterUnsupported means the object diverged but alter-based
	// synchronization was requested, which is not implemented.
	OutcomeAlterUnsupported Outcome = "alter_unsupported"
	// OutcomeRolledBack means the latest recorded action was reverted.
	OutcomeRolledBack Outcome = "rolled_back"
	// OutcomeNoHistory means rollback found no record for the object.
	OutcomeNoHistory Outcome = "no_history"
	// OutcomeCanceled means the run was interrupted before the object
	// (or target) was processed.
	OutcomeCanceled Outcome = "canceled"
	// OutcomeFailed covers execution and infrastructure errors.
	OutcomeFailed Outcome = "failed"
)

// Success reports whether the outcome needs no operator attention.
// AppliedUnlogged is deliberately excluded: the target changed but the
// history record is missing, which an operator must know about.
func (o Outcome) Success() bool {
	switch o {
	case OutcomeApplied, OutcomeUpToDate, OutcomeSkippedAbsent, OutcomeRolledBack:
		return true
	}
	return false
}

// Mutated reports whether the outcome changed the target database.
func (o Outcome) Mutated() bool {
	switch o {
	case OutcomeApplied, OutcomeAppliedUnlogged, OutcomeRolledBack:
		return true
	}
	return false
}

// ObjectResult describes what happened to a single schema object on a
// single target.
type ObjectResult struct {
	ObjectType dialect.ObjectType
	ObjectName string
	Drift      DriftState // empty when classification never ran
	Outcome    Outcome
	Err        error // explains any outcome other than a clean success
	Duration   time.Duration
}

// TargetResult aggregates one target's run. Err is set only for failures
// that stopped the whole target (connection, history schema, cancellation);
// per-object problems stay in Objects.
type TargetResult struct {
	TargetIndex int
	Vendor      dialect.Vendor
	Err         error
	Objects     []ObjectResult
	Duration    time.Duration
}

// Tally counts object outcomes for summary logging.
func (r *TargetResult) Tally() map[Outcome]int {
	counts := make(map[Outcome]int, len(r.Objects))
	for _, obj := range r.Objects {
		counts[obj.Outcome]++
	}
	return counts
}

// Clean reports whether the target finished without anything an operator
// should look at.
func (r *TargetResult) Clean() bool {
	if r.Err != nil {
		return false
	}
	for _, obj := range r.Objects {
		if !obj.Outcome.Success() {
			return false
		}
	}
	return true
}

// CombinedError collapses the target-level error and every object error
// into one, for the end-of-run summary.
func (r *TargetResult) CombinedError() error {
	err := r.Err
	for _, obj := range r.Objects {
		if obj.Err != nil {
			err = multierr.Append(err, obj.Err)
		}
	}
	return err
}
