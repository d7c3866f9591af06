package sync

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/arwahdevops/schemasync/internal/dialect"
)

// DriftState classifies a target object against its source counterpart.
type DriftState string

const (
	// DriftAbsent means the object does not exist on the target.
	DriftAbsent DriftState = "absent"
	// DriftIdentical means the definition text matches byte for byte.
	DriftIdentical DriftState = "identical"
	// DriftDivergent means the object exists on the target with different
	// definition text.
	DriftDivergent DriftState = "divergent"
)

// Drift is the classification of one object plus the definition text it was
// derived from. TargetDefinition is empty when State is DriftAbsent.
type Drift struct {
	State            DriftState
	SourceDefinition string
	TargetDefinition string
}

// DriftDetector compares definition text between one source and one target
// adapter. The comparison is an exact byte match: formatting differences in
// a vendor's introspection output count as divergence, and divergence is
// resolved by rewriting the object, never by interpreting the text.
type DriftDetector struct {
	source dialect.Adapter
	target dialect.Adapter
	logger *zap.Logger
}

func NewDriftDetector(source, target dialect.Adapter, logger *zap.Logger) *DriftDetector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DriftDetector{source: source, target: target, logger: logger}
}

// Classify fetches both sides and returns the drift state. The source
// definition is mandatory: an error from the source fails classification
// before the target is touched, so an unreadable source can never be
// mistaken for "absent everywhere, nothing to do".
func (d *DriftDetector) Classify(ctx context.Context, objectType dialect.ObjectType, name string) (*Drift, error) {
	srcDef, err := d.source.GetDefinition(ctx, objectType, name)
	if err != nil {
		return nil, fmt.Errorf("source definition for %s %s: %w", objectType, name, err)
	}

	exists, err := d.target.Exists(ctx, objectType, name)
	if err != nil {
		return nil, fmt.Errorf("target existence check for %s %s: %w", objectType, name, err)
	}
	if !exists {
		d.logger.Debug("Object missing on target.",
			zap.String("object_type", string(objectType)),
			zap.String("object_name", name))
		return &Drift{State: DriftAbsent, SourceDefinition: srcDef}, nil
	}

	tgtDef, err := d.target.GetDefinition(ctx, objectType, name)
	if err != nil {
		if errors.Is(err, dialect.ErrDefinitionUnavailable) {
			// Without the current target text a replacement could never be
			// rolled back, so refuse instead of replacing blindly.
			return nil, fmt.Errorf("target %s %s exists but its definition cannot be read: %v", objectType, name, err)
		}
		return nil, fmt.Errorf("target definition for %s %s: %w", objectType, name, err)
	}

	state := DriftDivergent
	if srcDef == tgtDef {
		state = DriftIdentical
	}
	d.logger.Debug("Drift classified.",
		zap.String("object_type", string(objectType)),
		zap.String("object_name", name),
		zap.String("state", string(state)))
	return &Drift{State: state, SourceDefinition: srcDef, TargetDefinition: tgtDef}, nil
}
