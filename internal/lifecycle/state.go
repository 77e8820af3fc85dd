package lifecycle

import (
	"time"

	"github.com/unclebandit/drip-engine/internal/model"
	"github.com/unclebandit/drip-engine/internal/schedule"
)

type State string

const (
	StateUnassigned       State = "unassigned"
	StateScheduled        State = "scheduled"
	StateAwaitingInterval State = "awaiting_interval"
	StateCompleted        State = "completed"
	StateReplied          State = "replied"
	StatePaused           State = "paused"
)

func (s State) Terminal() bool {
	return s == StateCompleted || s == StateReplied
}

// Status is what the dashboard shows for a contact's next message.
// For Scheduled, Step is the step about to go out; for AwaitingInterval it
// is the last step sent and NextStep the one waiting on ETA.
type Status struct {
	State    State           `json:"state"`
	Step     int             `json:"step"`
	NextStep int             `json:"next_step,omitempty"`
	Due      bool            `json:"due"`
	ETA      *time.Time      `json:"eta"`
	Reason   schedule.Reason `json:"reason"`
	Detail   schedule.Detail `json:"detail"`
	Message  string          `json:"message,omitempty"`
}

// Derive maps IsDue onto the contact lifecycle. It is the only place the
// presentation layer gets timing from.
func Derive(c *model.Contact, snap schedule.Snapshot, now time.Time) Status {
	res := schedule.IsDue(c, snap, now)
	st := Status{
		Step:     c.CurrentStep,
		NextStep: res.NextStep,
		Due:      res.Due,
		ETA:      res.NextDueAt,
		Reason:   res.Reason,
		Detail:   res.Detail,
	}

	switch {
	case res.Detail == schedule.DetailReplied:
		st.State = StateReplied
	case res.Detail == schedule.DetailCompleted:
		st.State = StateCompleted
	case res.Detail == schedule.DetailUnassigned:
		st.State = StateUnassigned
	case res.Reason == schedule.ReasonPaused:
		st.State = StatePaused
	case res.Due:
		st.State = StateScheduled
		st.Step = res.NextStep
	default:
		st.State = StateAwaitingInterval
	}

	if res.Reason == schedule.ReasonScheduled {
		if step := schedule.StepByNumber(snap.Steps, res.NextStep); step != nil {
			st.Message = step.Message
		}
	}
	return st
}
