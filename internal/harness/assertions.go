package harness

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/moments/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Index    int
	Type     string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "assertions[%d] failed: %s\n", e.Index, e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// evaluateAssertions checks every assertion and returns failure messages.
func (h *Harness) evaluateAssertions(ctx context.Context) []string {
	var errs []string

	for i, a := range h.scenario.Assertions {
		var err error
		switch a.Type {
		case AssertArtifact:
			err = h.assertArtifact(ctx, i, a)
		case AssertAttempts:
			err = h.assertAttempts(ctx, i, a)
		case AssertCard:
			err = h.assertCard(ctx, i, a)
		case AssertVisible:
			err = h.assertVisible(i, a)
		case AssertFeasible:
			err = h.assertFeasible(ctx, i, a)
		default:
			err = fmt.Errorf("assertions[%d]: unknown assertion type %q", i, a.Type)
		}
		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	return errs
}

func (h *Harness) assertArtifact(ctx context.Context, index int, a Assertion) error {
	artifacts, err := h.store.ReadArtifacts(ctx, h.scenario.Subject)
	if err != nil {
		return fmt.Errorf("assertions[%d]: read artifacts: %w", index, err)
	}

	i := slices.IndexFunc(artifacts, func(x ir.Artifact) bool { return x.ArtifactID == a.Artifact })
	if i < 0 {
		return &AssertionError{Index: index, Type: AssertArtifact,
			Expected: fmt.Sprintf("artifact %s", a.Artifact),
			Actual:   "absent"}
	}
	got := artifacts[i]

	fail := func(field string, expected, actual any) error {
		return &AssertionError{Index: index, Type: AssertArtifact,
			Expected: fmt.Sprintf("%s.%s = %v", a.Artifact, field, expected),
			Actual:   fmt.Sprintf("%v", actual)}
	}

	if a.Status != "" && string(got.Status) != a.Status {
		return fail("status", a.Status, got.Status)
	}
	if a.Attempt != nil && got.Attempt != *a.Attempt {
		return fail("attempt", *a.Attempt, got.Attempt)
	}
	if a.Error != "" && got.Error != a.Error {
		return fail("error", a.Error, got.Error)
	}
	if !matchSubset(got.Content, a.Content) {
		return fail("content", a.Content, got.Content)
	}
	return nil
}

func (h *Harness) assertAttempts(ctx context.Context, index int, a Assertion) error {
	snap, err := h.store.LoadSnapshot(ctx, h.scenario.Subject)
	if err != nil {
		return fmt.Errorf("assertions[%d]: load snapshot: %w", index, err)
	}
	if got := snap.Attempts[a.Artifact]; got != *a.Count {
		return &AssertionError{Index: index, Type: AssertAttempts,
			Expected: fmt.Sprintf("%d attempts for %s", *a.Count, a.Artifact),
			Actual:   fmt.Sprintf("%d", got)}
	}
	return nil
}

// assertCard checks the newest event card instance with the given card id.
func (h *Harness) assertCard(ctx context.Context, index int, a Assertion) error {
	cards, err := h.store.ReadCards(ctx, h.scenario.Subject)
	if err != nil {
		return fmt.Errorf("assertions[%d]: read cards: %w", index, err)
	}

	var found *ir.ActiveCard
	for i := range cards {
		if cards[i].CardID == a.Card {
			found = &cards[i]
		}
	}
	if found == nil {
		return &AssertionError{Index: index, Type: AssertCard,
			Expected: fmt.Sprintf("card %s", a.Card),
			Actual:   "never created"}
	}
	if a.Dismissed != nil && found.Dismissed != *a.Dismissed {
		return &AssertionError{Index: index, Type: AssertCard,
			Expected: fmt.Sprintf("%s dismissed = %t", a.Card, *a.Dismissed),
			Actual:   fmt.Sprintf("dismissed = %t (%s)", found.Dismissed, found.DismissCause)}
	}
	return nil
}

func (h *Harness) assertVisible(index int, a Assertion) error {
	want := a.Cards
	if want == nil {
		want = []string{}
	}
	got := h.visible
	if got == nil {
		got = []string{}
	}
	if !slices.Equal(want, got) {
		return &AssertionError{Index: index, Type: AssertVisible,
			Expected: fmt.Sprintf("%v", want),
			Actual:   fmt.Sprintf("%v", got)}
	}
	return nil
}

func (h *Harness) assertFeasible(ctx context.Context, index int, a Assertion) error {
	f, err := h.engine.IsActionFeasibleFor(ctx, h.scenario.Subject, a.Action, a.Context)
	if err != nil {
		return fmt.Errorf("assertions[%d]: %w", index, err)
	}
	if f.Feasible != *a.Expect {
		return &AssertionError{Index: index, Type: AssertFeasible,
			Expected: fmt.Sprintf("%s feasible = %t", a.Action, *a.Expect),
			Actual:   fmt.Sprintf("feasible = %t: %s", f.Feasible, f.Explanation)}
	}
	return nil
}

// matchSubset checks if actual contains all expected keys (subset match).
// Extra keys in actual are ignored.
func matchSubset(actual, expected map[string]any) bool {
	for key, expectedVal := range expected {
		actualVal, exists := actual[key]
		if !exists {
			return false
		}
		if !valuesEqual(actualVal, expectedVal) {
			return false
		}
	}
	return true
}

// valuesEqual compares two values through their canonical JSON, so numbers
// decoded as int and float64 compare equal.
func valuesEqual(actual, expected any) bool {
	a, err := ir.MarshalCanonical(actual)
	if err != nil {
		return false
	}
	e, err := ir.MarshalCanonical(expected)
	if err != nil {
		return false
	}
	return bytes.Equal(a, e)
}
