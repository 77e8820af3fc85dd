// Package schedule decides when a contact's next drip message is due. It is
// pure: every caller, from the dispatch sweep to the dashboard, goes through
// IsDue so timing is derived in exactly one place.
package schedule

import (
	"time"

	"github.com/unclebandit/drip-engine/internal/model"
)

type Reason string

const (
	ReasonTerminal  Reason = "terminal"
	ReasonPaused    Reason = "paused"
	ReasonScheduled Reason = "scheduled"
)

// Detail refines Reason for logs and display.
type Detail string

const (
	DetailReplied          Detail = "replied"
	DetailCompleted        Detail = "completed"
	DetailUnassigned       Detail = "unassigned"
	DetailMissingCampaign  Detail = "missing_campaign"
	DetailCampaignInactive Detail = "campaign_inactive"
	DetailAccountInactive  Detail = "account_inactive"
	DetailStepMissing      Detail = "step_missing"
	DetailFirstStep        Detail = "first_step"
	DetailInterval         Detail = "interval"
)

// Snapshot is the campaign context a contact is evaluated against. Campaign
// nil means the referenced campaign does not exist. Account nil skips the
// account status check.
type Snapshot struct {
	Account  *model.Account
	Campaign *model.Campaign
	Steps    []model.Step
}

type Result struct {
	Due       bool          `json:"due"`
	NextDueAt *time.Time    `json:"next_due_at"`
	Reason    Reason        `json:"reason"`
	Detail    Detail        `json:"detail"`
	NextStep  int           `json:"next_step,omitempty"`
	Interval  time.Duration `json:"-"`
}

func (r Result) Terminal() bool { return r.Reason == ReasonTerminal }

func paused(d Detail) Result   { return Result{Reason: ReasonPaused, Detail: d} }
func terminal(d Detail) Result { return Result{Reason: ReasonTerminal, Detail: d} }

// IsDue applies the rules in order, first match wins:
//
//  1. replied: terminal
//  2. no campaign, missing or inactive campaign, inactive account: paused
//  3. completed or current_step >= max_steps: terminal
//  4. next step not defined: paused
//  5. never messaged: due now
//  6. due once now >= last_message_at + interval of the next step
func IsDue(c *model.Contact, snap Snapshot, now time.Time) Result {
	if c.Replied {
		return terminal(DetailReplied)
	}

	if !c.Assigned() {
		return paused(DetailUnassigned)
	}
	camp := snap.Campaign
	if camp == nil || camp.ID != *c.CampaignID {
		return paused(DetailMissingCampaign)
	}
	if !camp.Active {
		return paused(DetailCampaignInactive)
	}
	if snap.Account != nil && !snap.Account.IsActive() {
		return paused(DetailAccountInactive)
	}

	if c.CompletedAt != nil || c.CurrentStep >= camp.MaxSteps {
		return terminal(DetailCompleted)
	}

	k := c.CurrentStep + 1
	step := StepByNumber(snap.Steps, k)
	if step == nil {
		res := paused(DetailStepMissing)
		res.NextStep = k
		return res
	}

	if c.LastMessageAt == nil {
		return Result{Due: true, Reason: ReasonScheduled, Detail: DetailFirstStep, NextStep: k}
	}

	interval := ResolveInterval(camp, step)
	next := c.LastMessageAt.Add(interval)
	return Result{
		Due:       !now.Before(next),
		NextDueAt: &next,
		Reason:    ReasonScheduled,
		Detail:    DetailInterval,
		NextStep:  k,
		Interval:  interval,
	}
}

// StepByNumber returns the step with the given 1-based number, or nil.
func StepByNumber(steps []model.Step, n int) *model.Step {
	for i := range steps {
		if steps[i].StepNumber == n {
			return &steps[i]
		}
	}
	return nil
}

// ResolveInterval is the wait before step: its override when set, else the
// campaign default.
func ResolveInterval(camp *model.Campaign, step *model.Step) time.Duration {
	if d, ok := step.IntervalOverride(); ok {
		return d
	}
	return camp.DefaultInterval()
}
