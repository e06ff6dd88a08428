package engine

import (
	"log/slog"
	"maps"
	"sync"

	"github.com/roach88/moments/internal/condition"
	"github.com/roach88/moments/internal/ir"
)

// ArtifactState reports a subject's artifact as seen by the tracker.
// ok is false when the subject has no record of the artifact. valid is the
// result of structural validation and is only meaningful for ready artifacts.
type ArtifactState func(artifactID string) (status ir.ArtifactStatus, valid bool, ok bool)

// Firings is the outcome of one detection pass.
type Firings struct {
	// Fired moments flipped from unmet to met this turn.
	Fired []string
	// StillLatent moments are unmet this turn (or have no prerequisite).
	StillLatent []string
	// Guarded moments flipped to met but their artifact is already ready.
	Guarded []string
	// Retry moments are met, did not fire, and own an artifact that is
	// absent, failed, or ready but invalid.
	Retry []string
}

// Tracker remembers, per subject, whether each moment's prerequisite held on
// the previous turn and reports the ones that flipped.
//
// A subject's state is replaced as a whole at the end of each detection, so
// the next comparison is always against exactly one complete previous turn.
// Safe for concurrent use across subjects.
type Tracker struct {
	mu        sync.RWMutex
	state     map[string]map[string]bool
	evaluator *condition.Evaluator
}

// NewTracker creates a tracker that evaluates with the given logger for
// evaluation failures.
func NewTracker(logger *slog.Logger) *Tracker {
	return &Tracker{
		state:     make(map[string]map[string]bool),
		evaluator: condition.NewEvaluator(logger),
	}
}

// DetectFirings evaluates every moment against the same context snapshot.
//
// A moment fires iff its prerequisite is met now and was not met on the
// previous turn (unseen counts as not met). A moment whose bound artifact is
// already ready and valid never fires: it is reported as Guarded instead.
// Moments without a prerequisite are always latent.
//
// artifacts may be nil when no artifact state is available.
func (t *Tracker) DetectFirings(subjectID string, moments []ir.MomentDefinition, ctx condition.Context, artifacts ArtifactState) Firings {
	t.mu.RLock()
	previous := t.state[subjectID]
	t.mu.RUnlock()

	lookup := func(id string) (ir.ArtifactStatus, bool, bool) {
		if artifacts == nil {
			return "", false, false
		}
		return artifacts(id)
	}

	next := make(map[string]bool, len(moments))
	var out Firings

	for i := range moments {
		m := &moments[i]
		if m.Prerequisite == nil {
			out.StillLatent = append(out.StillLatent, m.ID)
			continue
		}

		met := t.evaluator.Evaluate(m.Prerequisite, ctx)
		next[m.ID] = met
		if !met {
			out.StillLatent = append(out.StillLatent, m.ID)
			continue
		}

		flipped := !previous[m.ID]

		if m.ArtifactID == "" {
			if flipped {
				out.Fired = append(out.Fired, m.ID)
			}
			continue
		}

		status, valid, ok := lookup(m.ArtifactID)
		switch {
		case ok && status == ir.StatusReady && valid:
			if flipped {
				out.Guarded = append(out.Guarded, m.ID)
			}
		case flipped:
			out.Fired = append(out.Fired, m.ID)
		case ok && status == ir.StatusGenerating:
			// In flight; nothing to retry.
		default:
			out.Retry = append(out.Retry, m.ID)
		}
	}

	t.mu.Lock()
	t.state[subjectID] = next
	t.mu.Unlock()

	return out
}

// State returns a copy of a subject's last evaluation results.
func (t *Tracker) State(subjectID string) map[string]bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return maps.Clone(t.state[subjectID])
}

// Restore replaces a subject's state, typically from persistence.
func (t *Tracker) Restore(subjectID string, state map[string]bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state[subjectID] = maps.Clone(state)
}

// Forget drops a subject's state.
func (t *Tracker) Forget(subjectID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.state, subjectID)
}
