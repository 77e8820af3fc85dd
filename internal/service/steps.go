package service

import (
	"fmt"
	"sort"

	appErrors "github.com/unclebandit/drip-engine/internal/errors"
	"github.com/unclebandit/drip-engine/internal/model"
)

// The helpers below work on a campaign's full step list and always return a
// fresh slice numbered 1..len. Callers persist the result with ReplaceSteps.

func sortedSteps(steps []model.Step) []model.Step {
	out := append([]model.Step(nil), steps...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].StepNumber < out[j].StepNumber })
	return out
}

func renumber(steps []model.Step) []model.Step {
	for i := range steps {
		steps[i].StepNumber = i + 1
	}
	return steps
}

// insertStep places s at 1-based position pos, shifting later steps up.
// pos 0 appends.
func insertStep(steps []model.Step, s model.Step, pos int) ([]model.Step, error) {
	out := sortedSteps(steps)
	if pos == 0 {
		pos = len(out) + 1
	}
	if pos < 1 || pos > len(out)+1 {
		return nil, appErrors.NewValidation("step_number", fmt.Sprintf("must be between 1 and %d", len(out)+1))
	}
	out = append(out, model.Step{})
	copy(out[pos:], out[pos-1:])
	out[pos-1] = s
	return renumber(out), nil
}

// removeStep drops step number n and closes the gap.
func removeStep(steps []model.Step, n int) ([]model.Step, model.Step, error) {
	out := sortedSteps(steps)
	if n < 1 || n > len(out) {
		return nil, model.Step{}, appErrors.NewNotFound("step", fmt.Sprint(n))
	}
	removed := out[n-1]
	out = append(out[:n-1], out[n:]...)
	return renumber(out), removed, nil
}

// reorderSteps applies order, a permutation of the current step numbers
// listing them in their new sequence.
func reorderSteps(steps []model.Step, order []int) ([]model.Step, error) {
	cur := sortedSteps(steps)
	if len(order) != len(cur) {
		return nil, appErrors.NewValidation("order", fmt.Sprintf("must list all %d steps", len(cur)))
	}

	seen := make(map[int]bool, len(order))
	out := make([]model.Step, 0, len(order))
	for _, n := range order {
		if n < 1 || n > len(cur) || seen[n] {
			return nil, appErrors.NewValidation("order", "must be a permutation of the current step numbers")
		}
		seen[n] = true
		out = append(out, cur[n-1])
	}
	return renumber(out), nil
}
