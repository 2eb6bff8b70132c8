package docker

import (
	"fmt"
	"strings"
	"time"

	"github.com/shinji-kodama/mutafix/internal/model"
)

// Label keys attached to every build container. They are the only record
// of which session a container belongs to; `mutafix clean` finds
// leftovers through them.
//
// All keys share the "mutafix." prefix to avoid collisions with labels set
// by other tools.
const (
	LabelPrefix = "mutafix."

	// LabelManagedBy marks containers created by mutafix. Its value is
	// always ManagedByValue.
	LabelManagedBy = LabelPrefix + "managed-by"

	// LabelRunID holds the session's run ID, shared with the report.
	LabelRunID = LabelPrefix + "run-id"

	// LabelOperation holds the mutation operation name.
	LabelOperation = LabelPrefix + "operation"

	// LabelPhase is "baseline" or "mutated".
	LabelPhase = LabelPrefix + "phase"

	// LabelRepo holds the absolute path of the repository being built.
	LabelRepo = LabelPrefix + "repo"

	// LabelCreatedAt holds the RFC3339 UTC creation time.
	LabelCreatedAt = LabelPrefix + "created-at"
)

// ManagedByValue is the value of LabelManagedBy.
const ManagedByValue = "mutafix"

// RunLabels is the session metadata carried by container labels.
type RunLabels struct {
	RunID     string
	Operation model.Operation
	Phase     model.BuildPhase
	Repo      string
	CreatedAt time.Time
}

// BuildLabels returns the Docker label map for a build container.
func BuildLabels(l RunLabels) map[string]string {
	return map[string]string{
		LabelManagedBy: ManagedByValue,
		LabelRunID:     l.RunID,
		LabelOperation: l.Operation.String(),
		LabelPhase:     l.Phase.String(),
		LabelRepo:      l.Repo,
		LabelCreatedAt: l.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// ParseLabels is the inverse of BuildLabels. All keys must be present and
// the container must be managed by mutafix.
func ParseLabels(labels map[string]string) (*RunLabels, error) {
	required := []string{
		LabelManagedBy,
		LabelRunID,
		LabelOperation,
		LabelPhase,
		LabelRepo,
		LabelCreatedAt,
	}

	// Report every missing key at once.
	var missing []string
	for _, key := range required {
		if _, ok := labels[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required Docker labels: %s", strings.Join(missing, ", "))
	}

	if labels[LabelManagedBy] != ManagedByValue {
		return nil, fmt.Errorf(
			"label %s has unexpected value %q (expected %q)",
			LabelManagedBy, labels[LabelManagedBy], ManagedByValue,
		)
	}

	op, err := model.ParseOperation(labels[LabelOperation])
	if err != nil {
		return nil, fmt.Errorf("invalid label %s: %w", LabelOperation, err)
	}

	phase := model.BuildPhase(labels[LabelPhase])
	if phase != model.PhaseBaseline && phase != model.PhaseMutated {
		return nil, fmt.Errorf("invalid label %s: unknown phase %q", LabelPhase, labels[LabelPhase])
	}

	createdAt, err := time.Parse(time.RFC3339, labels[LabelCreatedAt])
	if err != nil {
		return nil, fmt.Errorf("invalid label %s: %w", LabelCreatedAt, err)
	}

	return &RunLabels{
		RunID:     labels[LabelRunID],
		Operation: op,
		Phase:     phase,
		Repo:      labels[LabelRepo],
		CreatedAt: createdAt,
	}, nil
}

// FilterLabels returns the label selector matching mutafix containers,
// in "key=value" form as used by the Docker API's label filter.
func FilterLabels() []string {
	return []string{LabelManagedBy + "=" + ManagedByValue}
}
