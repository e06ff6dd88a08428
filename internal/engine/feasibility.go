package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/moments/internal/condition"
	"github.com/roach88/moments/internal/ir"
)

// IsActionFeasible evaluates an action's prerequisite against ctx without
// side effects. An unknown action id is an error.
func (e *Engine) IsActionFeasible(actionID string, ctx condition.Context) (ir.Feasibility, error) {
	action, ok := e.catalog.Action(actionID)
	if !ok {
		return ir.Feasibility{
			ActionID:    actionID,
			Missing:     []string{},
			Explanation: fmt.Sprintf("unknown action %q", actionID),
		}, fmt.Errorf("unknown action %q", actionID)
	}
	return feasibility(e.evaluator, action, ctx), nil
}

// IsActionFeasibleFor is IsActionFeasible evaluated against the subject's
// view: ctx plus the subject's artifacts under artifacts.<id>. It reads
// subject state but changes nothing.
func (e *Engine) IsActionFeasibleFor(ctx context.Context, subjectID, actionID string, input condition.Context) (ir.Feasibility, error) {
	if _, ok := e.catalog.Action(actionID); !ok {
		return e.IsActionFeasible(actionID, input)
	}

	s, ok, err := e.lookup(subjectID)
	if err != nil {
		return ir.Feasibility{}, err
	}
	if !ok {
		return e.IsActionFeasible(actionID, input)
	}

	var view condition.Context
	err = s.call(ctx, func() { view = s.view(input) })
	if errors.Is(err, errSubjectDeleted) {
		return e.IsActionFeasible(actionID, input)
	}
	if err != nil {
		return ir.Feasibility{}, err
	}
	return e.IsActionFeasible(actionID, view)
}

func feasibility(ev *condition.Evaluator, action *ir.ActionDefinition, ctx condition.Context) ir.Feasibility {
	f := ir.Feasibility{ActionID: action.ID, Missing: []string{}}

	if action.Prerequisite == nil {
		f.Feasible = true
		f.Explanation = "no prerequisite"
		return f
	}

	if ev.Evaluate(action.Prerequisite, ctx) {
		f.Feasible = true
		f.Explanation = "all prerequisites met"
		return f
	}

	f.Missing = condition.Unmet(action.Prerequisite, ctx)
	f.Explanation = "missing: " + strings.Join(f.Missing, "; ")
	return f
}
