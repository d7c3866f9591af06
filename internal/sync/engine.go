package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arwahdevops/schemasync/internal/audit"
	"github.com/arwahdevops/schemasync/internal/config"
	"github.com/arwahdevops/schemasync/internal/dialect"
	"github.com/arwahdevops/schemasync/internal/metrics"
)

// Target is one reachable destination database with its already-open
// adapter. Adapters are never shared between targets; the engine relies on
// that exclusive ownership for its one-validation-execution-at-a-time
// guarantee per adapter.
type Target struct {
	Index   int
	Vendor  dialect.Vendor
	Adapter dialect.Adapter
}

// Engine drives one invocation's requested operations against every
// reachable target. Targets run in parallel under a worker cap; objects
// within a target run strictly in order.
type Engine struct {
	cfg     *config.Config
	source  dialect.Adapter
	logger  *zap.Logger
	metrics *metrics.Store
}

// NewEngine wires the engine. source may be nil when the invocation only
// performs rollbacks; metricsStore may be nil in tests.
func NewEngine(cfg *config.Config, source dialect.Adapter, logger *zap.Logger, metricsStore *metrics.Store) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{cfg: cfg, source: source, logger: logger, metrics: metricsStore}
}

// Run processes all targets and returns one result per target, ordered by
// target index. Cancellation stops new work; targets already past the
// semaphore finish their current object list.
func (e *Engine) Run(ctx context.Context, targets []Target) []TargetResult {
	if len(targets) == 0 {
		e.logger.Warn("No reachable targets to process.")
		return nil
	}
	workers := e.cfg.TargetWorkers
	if workers > len(targets) {
		workers = len(targets)
	}
	if workers < 1 {
		workers = 1
	}
	e.logger.Info("Processing targets.",
		zap.Int("target_count", len(targets)),
		zap.Int("workers", workers))

	var wg sync.WaitGroup
	resultChan := make(chan TargetResult, len(targets))
	sem := make(chan struct{}, workers)
	launched := 0
	results := make([]TargetResult, 0, len(targets))

	for _, t := range targets {
		select {
		case <-ctx.Done():
			e.logger.Warn("Cancellation requested, remaining targets will not start.", zap.Error(ctx.Err()))
			goto collect
		default:
		}
		wg.Add(1)
		launched++
		go func(t Target) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				resultChan <- canceledTarget(t, ctx.Err())
				return
			}
			defer func() { <-sem }()
			resultChan <- e.processTarget(ctx, t)
		}(t)
	}

collect:
	go func() {
		wg.Wait()
		close(resultChan)
	}()
	for res := range resultChan {
		results = append(results, res)
	}
	for _, t := range targets[launched:] {
		results = append(results, canceledTarget(t, ctx.Err()))
	}
	sort.Slice(results, func(i, j int) bool { return results[i].TargetIndex < results[j].TargetIndex })
	return results
}

func canceledTarget(t Target, cause error) TargetResult {
	if cause == nil {
		cause = context.Canceled
	}
	return TargetResult{
		TargetIndex: t.Index,
		Vendor:      t.Vendor,
		Err:         fmt.Errorf("target not processed: %w", cause),
	}
}

// processTarget runs the invocation's operations against one target. A
// failure here fails this target alone; the pool keeps the others running.
func (e *Engine) processTarget(ctx context.Context, t Target) (res TargetResult) {
	res = TargetResult{TargetIndex: t.Index, Vendor: t.Vendor}
	log := e.logger.With(
		zap.Int("target_index", t.Index),
		zap.String("target_vendor", string(t.Vendor)))
	start := time.Now()
	defer func() {
		res.Duration = time.Since(start)
		e.summarize(log, &res)
	}()

	if err := t.Adapter.AuditStore().EnsureSchema(ctx); err != nil {
		log.Error("Synchronization history schema could not be ensured, target skipped.", zap.Error(err))
		e.countError("sync_log_schema", "")
		res.Err = fmt.Errorf("ensure synchronization history schema: %w", err)
		return res
	}

	if spec := e.cfg.Ops.Rollback; spec != "" {
		res.Objects = append(res.Objects, e.rollbackObject(ctx, t, spec, log))
		return res
	}

	detector := NewDriftDetector(e.source, t.Adapter, log)
	executor := NewSafeApplyExecutor(t.Adapter, log)

	if spec := e.cfg.Ops.SyncObject; spec != "" {
		res.Objects = append(res.Objects, e.syncNamedObject(ctx, detector, executor, spec, log)...)
		return res
	}

	if e.cfg.Ops.SyncAllTables {
		res.Objects = append(res.Objects, e.syncCollection(ctx, detector, executor, t, dialect.ObjectTable, log)...)
		if e.cfg.Ops.SyncIndexes {
			res.Objects = append(res.Objects, e.syncAllIndexes(ctx, executor, t, log)...)
		}
	} else if e.cfg.Ops.SyncIndexes {
		log.Warn("Index synchronization runs as part of table synchronization; nothing to do without the table pass.")
	}
	if e.cfg.Ops.SyncAllViews {
		res.Objects = append(res.Objects, e.syncCollection(ctx, detector, executor, t, dialect.ObjectView, log)...)
	}
	if e.cfg.Ops.SyncAllProcedures {
		res.Objects = append(res.Objects, e.syncCollection(ctx, detector, executor, t, dialect.ObjectProcedure, log)...)
	}
	return res
}

// syncCollection enumerates one object type on the target and runs the
// per-object pipeline over the result. Enumeration is target-driven: the
// pass reconciles what the target already has, and create-on-target covers
// names reaching the engine through the single-object path.
func (e *Engine) syncCollection(ctx context.Context, detector *DriftDetector, executor *SafeApplyExecutor, t Target, objectType dialect.ObjectType, log *zap.Logger) []ObjectResult {
	names, err := t.Adapter.ListObjects(ctx, objectType)
	if err != nil {
		log.Error("Object enumeration failed on target.",
			zap.String("object_type", string(objectType)), zap.Error(err))
		e.countError("enumeration", objectType)
		return []ObjectResult{{
			ObjectType: objectType,
			ObjectName: "*",
			Outcome:    OutcomeFailed,
			Err:        fmt.Errorf("enumerate %s objects on target: %w", objectType, err),
		}}
	}
	log.Info("Enumerated objects on target.",
		zap.String("object_type", string(objectType)),
		zap.Int("count", len(names)))

	results := make([]ObjectResult, 0, len(names))
	for _, name := range names {
		if ctx.Err() != nil {
			log.Warn("Cancellation requested, remaining objects skipped.",
				zap.String("object_type", string(objectType)))
			break
		}
		if objectType == dialect.ObjectTable && strings.EqualFold(name, audit.LogTable) {
			log.Debug("Skipping the synchronization history table.")
			continue
		}
		results = append(results, e.syncOne(ctx, detector, executor, objectType, name, log))
	}
	return results
}

// syncOne runs classification and the apply policy for a single object
// under the per-object timeout.
func (e *Engine) syncOne(ctx context.Context, detector *DriftDetector, executor *SafeApplyExecutor, objectType dialect.ObjectType, name string, log *zap.Logger) ObjectResult {
	octx, cancel := context.WithTimeout(ctx, e.cfg.ObjectTimeout)
	defer cancel()

	start := time.Now()
	res := ObjectResult{ObjectType: objectType, ObjectName: name}

	drift, err := detector.Classify(octx, objectType, name)
	if err != nil {
		switch {
		case errors.Is(err, dialect.ErrDefinitionUnavailable):
			res.Outcome = OutcomeSourceUnavailable
			e.countError("source_definition", objectType)
		case errors.Is(err, context.Canceled):
			res.Outcome = OutcomeCanceled
		default:
			res.Outcome = OutcomeFailed
			e.countError("classification", objectType)
		}
		res.Err = err
	} else {
		res.Drift = drift.State
		outcome, applyErr := executor.Apply(octx, ApplyInput{
			ObjectType:     objectType,
			ObjectName:     name,
			Drift:          drift,
			CreateOnTarget: e.cfg.Ops.CreateOnTarget,
			AlterSync:      e.cfg.Ops.AlterSync,
		})
		res.Outcome = outcome
		res.Err = applyErr
		e.countApply(objectType, outcome)
	}
	res.Duration = time.Since(start)
	e.observeObject(res)
	logObjectResult(log, res)
	return res
}

// syncNamedObject handles the single-object flag. The name is user input,
// so it gets the checks enumeration-driven passes get for free.
func (e *Engine) syncNamedObject(ctx context.Context, detector *DriftDetector, executor *SafeApplyExecutor, spec string, log *zap.Logger) []ObjectResult {
	objectType, name, err := ParseObjectSpec(spec)
	if err != nil {
		log.Error("Invalid object spec.", zap.String("spec", spec), zap.Error(err))
		return []ObjectResult{{ObjectName: spec, Outcome: OutcomeFailed, Err: err}}
	}
	if objectType == dialect.ObjectIndex {
		err := fmt.Errorf("indexes are synchronized by the index pass, not by name")
		log.Error("Invalid object spec.", zap.String("spec", spec), zap.Error(err))
		return []ObjectResult{{ObjectType: objectType, ObjectName: name, Outcome: OutcomeFailed, Err: err}}
	}
	if strings.EqualFold(name, audit.LogTable) {
		err := fmt.Errorf("%s is the synchronization history table and cannot be synchronized", audit.LogTable)
		log.Error("Invalid object spec.", zap.String("spec", spec), zap.Error(err))
		return []ObjectResult{{ObjectType: objectType, ObjectName: name, Outcome: OutcomeFailed, Err: err}}
	}

	results := []ObjectResult{e.syncOne(ctx, detector, executor, objectType, name, log)}
	if e.cfg.Ops.SyncIndexes && objectType == dialect.ObjectTable {
		results = append(results, e.syncTableIndexes(ctx, executor, name, log)...)
	}
	return results
}

// syncAllIndexes runs after the table pass so indexes land on tables that
// pass just created. Like every other pass it walks the target's catalog.
func (e *Engine) syncAllIndexes(ctx context.Context, executor *SafeApplyExecutor, t Target, log *zap.Logger) []ObjectResult {
	tables, err := t.Adapter.ListObjects(ctx, dialect.ObjectTable)
	if err != nil {
		log.Error("Table enumeration for the index pass failed.", zap.Error(err))
		e.countError("enumeration", dialect.ObjectIndex)
		return []ObjectResult{{
			ObjectType: dialect.ObjectIndex,
			ObjectName: "*",
			Outcome:    OutcomeFailed,
			Err:        fmt.Errorf("enumerate tables for index pass: %w", err),
		}}
	}
	var results []ObjectResult
	for _, table := range tables {
		if ctx.Err() != nil {
			log.Warn("Cancellation requested, remaining index work skipped.")
			break
		}
		if strings.EqualFold(table, audit.LogTable) {
			continue
		}
		results = append(results, e.syncTableIndexes(ctx, executor, table, log)...)
	}
	return results
}

// syncTableIndexes mirrors every source index of one table that the target
// does not already have. Primary keys never show up here; the adapters
// exclude them at enumeration.
func (e *Engine) syncTableIndexes(ctx context.Context, executor *SafeApplyExecutor, table string, log *zap.Logger) []ObjectResult {
	defs, err := e.source.ListIndexes(ctx, table)
	if err != nil {
		log.Error("Source index enumeration failed.", zap.String("table", table), zap.Error(err))
		e.countError("enumeration", dialect.ObjectIndex)
		return []ObjectResult{{
			ObjectType: dialect.ObjectIndex,
			ObjectName: table + ".*",
			Outcome:    OutcomeFailed,
			Err:        fmt.Errorf("enumerate source indexes of %s: %w", table, err),
		}}
	}
	if len(defs) == 0 {
		return nil
	}

	results := make([]ObjectResult, 0, len(defs))
	for _, def := range defs {
		if ctx.Err() != nil {
			log.Warn("Cancellation requested, remaining indexes skipped.", zap.String("table", table))
			break
		}
		octx, cancel := context.WithTimeout(ctx, e.cfg.ObjectTimeout)
		start := time.Now()
		outcome, err := executor.ApplyIndex(octx, def)
		cancel()

		res := ObjectResult{
			ObjectType: dialect.ObjectIndex,
			ObjectName: def.QualifiedName(),
			Outcome:    outcome,
			Err:        err,
			Duration:   time.Since(start),
		}
		e.countApply(dialect.ObjectIndex, outcome)
		e.observeObject(res)
		logObjectResult(log, res)
		results = append(results, res)
	}
	return results
}

// rollbackObject reverts the latest recorded action for the object named
// by the rollback spec. No history is written; only read.
func (e *Engine) rollbackObject(ctx context.Context, t Target, spec string, log *zap.Logger) ObjectResult {
	start := time.Now()
	objectType, name, err := ParseObjectSpec(spec)
	if err != nil {
		log.Error("Invalid rollback spec.", zap.String("spec", spec), zap.Error(err))
		return ObjectResult{ObjectName: spec, Outcome: OutcomeFailed, Err: err, Duration: time.Since(start)}
	}

	octx, cancel := context.WithTimeout(ctx, e.cfg.ObjectTimeout)
	defer cancel()

	res := ObjectResult{ObjectType: objectType, ObjectName: name}
	resolver := NewRollbackResolver(t.Adapter, log)
	if err := resolver.Rollback(octx, objectType, name); err == nil {
		res.Outcome = OutcomeRolledBack
		e.countRollback("ok")
	} else if errors.Is(err, audit.ErrNoHistory) {
		res.Outcome = OutcomeNoHistory
		res.Err = err
		e.countRollback("no_history")
	} else {
		res.Outcome = OutcomeFailed
		res.Err = err
		e.countRollback("failed")
		e.countError("rollback", objectType)
	}
	res.Duration = time.Since(start)
	logObjectResult(log, res)
	return res
}

// ParseObjectSpec splits the "type:name" form shared by the rollback and
// single-object flags.
func ParseObjectSpec(spec string) (dialect.ObjectType, string, error) {
	typePart, name, found := strings.Cut(spec, ":")
	name = strings.TrimSpace(name)
	if !found || strings.TrimSpace(typePart) == "" || name == "" {
		return "", "", fmt.Errorf("object spec %q: want type:name", spec)
	}
	objectType, err := dialect.ParseObjectType(typePart)
	if err != nil {
		return "", "", fmt.Errorf("object spec %q: %w", spec, err)
	}
	return objectType, name, nil
}

// logObjectResult emits the one line per object a run log is read by: what
// the object was, how it classified, and how it ended. Nothing is skipped
// silently.
func logObjectResult(log *zap.Logger, res ObjectResult) {
	fields := []zap.Field{
		zap.String("object_type", string(res.ObjectType)),
		zap.String("object_name", res.ObjectName),
		zap.String("outcome", string(res.Outcome)),
		zap.Duration("duration", res.Duration),
	}
	if res.Drift != "" {
		fields = append(fields, zap.String("drift", string(res.Drift)))
	}
	if res.Err != nil {
		fields = append(fields, zap.Error(res.Err))
	}
	switch res.Outcome {
	case OutcomeFailed, OutcomeAlterUnsupported:
		log.Error("Object processing failed.", fields...)
	case OutcomeValidationFailed, OutcomeAppliedUnlogged, OutcomeSourceUnavailable, OutcomeNoHistory, OutcomeCanceled:
		log.Warn("Object processing needs attention.", fields...)
	default:
		log.Info("Object processing finished.", fields...)
	}
}

func (e *Engine) summarize(log *zap.Logger, res *TargetResult) {
	fields := []zap.Field{
		zap.Int("objects", len(res.Objects)),
		zap.Duration("duration", res.Duration),
	}
	tally := res.Tally()
	outcomes := make([]Outcome, 0, len(tally))
	for o := range tally {
		outcomes = append(outcomes, o)
	}
	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i] < outcomes[j] })
	for _, o := range outcomes {
		fields = append(fields, zap.Int("outcome_"+string(o), tally[o]))
	}
	if res.Err != nil {
		fields = append(fields, zap.Error(res.Err))
	}
	if res.Clean() {
		log.Info("Target run finished.", fields...)
	} else {
		log.Warn("Target run finished with problems.", fields...)
	}
}

func (e *Engine) observeObject(res ObjectResult) {
	if e.metrics == nil {
		return
	}
	e.metrics.ObjectsProcessedTotal.WithLabelValues(string(res.ObjectType), string(res.Outcome)).Inc()
	e.metrics.ObjectSyncDuration.WithLabelValues(string(res.ObjectType)).Observe(res.Duration.Seconds())
}

func (e *Engine) countApply(objectType dialect.ObjectType, outcome Outcome) {
	if e.metrics == nil {
		return
	}
	switch outcome {
	case OutcomeApplied:
		e.metrics.AuditWritesTotal.WithLabelValues("ok").Inc()
	case OutcomeAppliedUnlogged:
		e.metrics.AuditWritesTotal.WithLabelValues("failed").Inc()
	case OutcomeValidationFailed:
		e.metrics.SyncErrorsTotal.WithLabelValues("validation", string(objectType)).Inc()
	case OutcomeFailed:
		e.metrics.SyncErrorsTotal.WithLabelValues("execution", string(objectType)).Inc()
	}
}

func (e *Engine) countError(kind string, objectType dialect.ObjectType) {
	if e.metrics == nil {
		return
	}
	e.metrics.SyncErrorsTotal.WithLabelValues(kind, string(objectType)).Inc()
}

func (e *Engine) countRollback(status string) {
	if e.metrics == nil {
		return
	}
	e.metrics.RollbacksTotal.WithLabelValues(status).Inc()
}
