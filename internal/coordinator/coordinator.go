// Package coordinator runs the periodic scheduling sweep: it finds due
// contacts, hands them to the sender through a bounded worker pool and
// records confirmed sends through the lifecycle machine.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/unclebandit/drip-engine/internal/alert"
	appErrors "github.com/unclebandit/drip-engine/internal/errors"
	"github.com/unclebandit/drip-engine/internal/failures"
	"github.com/unclebandit/drip-engine/internal/lifecycle"
	"github.com/unclebandit/drip-engine/internal/model"
	"github.com/unclebandit/drip-engine/internal/queue"
	"github.com/unclebandit/drip-engine/internal/schedule"
	"github.com/unclebandit/drip-engine/internal/service"
)

// Obligation is one message the sweep found due.
type Obligation struct {
	ContactID      string `json:"contact_id"`
	AccountID      string `json:"account_id"`
	CampaignID     string `json:"campaign_id"`
	ExternalUserID string `json:"external_user_id"`
	Step           int    `json:"step"`
	Message        string `json:"message"`

	accountWarned bool
}

type Sender interface {
	Send(ctx context.Context, msg queue.OutboundMessage) error
}

type Advancer interface {
	MessageSent(ctx context.Context, s lifecycle.Sent) error
}

type ContactLister interface {
	ListAssigned(ctx context.Context) ([]*model.Contact, error)
}

type AccountStore interface {
	lifecycle.AccountLister
	SetWarning(ctx context.Context, id, warning string) error
}

type Coordinator struct {
	Contacts  ContactLister
	Accounts  AccountStore
	Campaigns lifecycle.CampaignLister
	Lifecycle Advancer
	Sender    Sender
	Failures  failures.Tracker
	Alerts    alert.Notifier
	Log       logrus.FieldLogger

	Interval         time.Duration
	Deadline         time.Duration
	Workers          int
	FailureThreshold int

	Now func() time.Time
}

// TickResult summarizes one sweep and dispatch round.
type TickResult struct {
	Due       int
	Sent      int
	Failed    int
	Conflicts int
	Skipped   int
}

func (c *Coordinator) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now().UTC()
}

// Sweep evaluates every assigned contact against current persisted state and
// returns the due obligations. When ctx expires mid-sweep the obligations
// found so far are returned with ctx's error; the rest wait for the next tick.
func (c *Coordinator) Sweep(ctx context.Context, now time.Time) ([]Obligation, error) {
	cat, err := lifecycle.LoadCatalog(ctx, c.Accounts, c.Campaigns)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	contacts, err := c.Contacts.ListAssigned(ctx)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}

	var obligations []Obligation
	for i, ct := range contacts {
		if err := ctx.Err(); err != nil {
			c.Log.WithField("deferred", len(contacts)-i).Warn("sweep deadline reached, remaining contacts wait for next tick")
			return obligations, err
		}

		snap := cat.Snapshot(ct)
		res := schedule.IsDue(ct, snap, now)
		if res.Detail == schedule.DetailMissingCampaign {
			c.Log.WithFields(logrus.Fields{"contact_id": ct.ID, "account_id": ct.AccountID}).
				WithError(appErrors.NewMissingReference("campaign", *ct.CampaignID)).
				Warn("contact points at a missing campaign")
			continue
		}
		if !res.Due {
			continue
		}

		step := schedule.StepByNumber(snap.Steps, res.NextStep)
		obligations = append(obligations, Obligation{
			ContactID:      ct.ID,
			AccountID:      ct.AccountID,
			CampaignID:     snap.Campaign.ID,
			ExternalUserID: ct.ExternalUserID,
			Step:           res.NextStep,
			Message:        service.RenderStep(step.Message, ct),
			accountWarned:  snap.Account != nil && snap.Account.Warning != "",
		})
	}
	return obligations, nil
}

// Tick runs one sweep and dispatches what it found, all within Deadline.
func (c *Coordinator) Tick(ctx context.Context) TickResult {
	if c.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Deadline)
		defer cancel()
	}

	started := time.Now()
	obligations, err := c.Sweep(ctx, c.now())
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		c.Log.WithError(err).Error("sweep failed")
		return TickResult{}
	}

	res := c.Dispatch(ctx, obligations)
	c.Log.WithFields(logrus.Fields{
		"due":       res.Due,
		"sent":      res.Sent,
		"failed":    res.Failed,
		"conflicts": res.Conflicts,
		"skipped":   res.Skipped,
		"took":      time.Since(started).String(),
	}).Info("sweep finished")
	return res
}

// Run ticks immediately and then every Interval until ctx is done. The tick
// in progress is allowed to finish.
func (c *Coordinator) Run(ctx context.Context) {
	c.Log.WithFields(logrus.Fields{"interval": c.Interval.String(), "workers": c.Workers}).Info("starting scheduling coordinator")
	ticker := time.NewTicker(c.Interval)
	defer ticker.Stop()

	c.Tick(ctx)
	for {
		select {
		case <-ticker.C:
			c.Tick(ctx)
		case <-ctx.Done():
			c.Log.Info("stopping scheduling coordinator")
			return
		}
	}
}
