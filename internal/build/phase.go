package build

import (
	"context"

	"github.com/shinji-kodama/mutafix/internal/model"
)

type phaseKey struct{}

// WithPhase returns a context that tells builders which session phase the
// build belongs to. Builders use it for logging and container labels.
func WithPhase(ctx context.Context, phase model.BuildPhase) context.Context {
	return context.WithValue(ctx, phaseKey{}, phase)
}

// PhaseFrom returns the phase stored by WithPhase, or "" when none is set.
func PhaseFrom(ctx context.Context) model.BuildPhase {
	phase, _ := ctx.Value(phaseKey{}).(model.BuildPhase)
	return phase
}
