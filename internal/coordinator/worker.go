package coordinator

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	appErrors "github.com/unclebandit/drip-engine/internal/errors"
	"github.com/unclebandit/drip-engine/internal/lifecycle"
	"github.com/unclebandit/drip-engine/internal/queue"
)

type outcome int

const (
	outcomeSent outcome = iota
	outcomeFailed
	outcomeConflict
	outcomeSkipped
)

// worker processes obligations from a shared channel until it is closed.
type worker struct {
	c       *Coordinator
	jobs    <-chan Obligation
	results chan<- outcome
}

func (w *worker) start(ctx context.Context) {
	for ob := range w.jobs {
		w.results <- w.c.dispatchOne(ctx, ob)
	}
}

// Dispatch fans obligations out to Workers goroutines and waits for all of
// them. One slow send never holds up the others beyond the pool size.
func (c *Coordinator) Dispatch(ctx context.Context, obligations []Obligation) TickResult {
	res := TickResult{Due: len(obligations)}
	if len(obligations) == 0 {
		return res
	}

	n := c.Workers
	if n < 1 {
		n = 1
	}
	if n > len(obligations) {
		n = len(obligations)
	}

	jobs := make(chan Obligation)
	results := make(chan outcome, len(obligations))

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		w := &worker{c: c, jobs: jobs, results: results}
		go func() {
			defer wg.Done()
			w.start(ctx)
		}()
	}
	for _, ob := range obligations {
		jobs <- ob
	}
	close(jobs)
	wg.Wait()
	close(results)

	for o := range results {
		switch o {
		case outcomeSent:
			res.Sent++
		case outcomeFailed:
			res.Failed++
		case outcomeConflict:
			res.Conflicts++
		case outcomeSkipped:
			res.Skipped++
		}
	}
	return res
}

func (c *Coordinator) dispatchOne(ctx context.Context, ob Obligation) outcome {
	log := c.Log.WithFields(logrus.Fields{
		"contact_id":  ob.ContactID,
		"campaign_id": ob.CampaignID,
		"account_id":  ob.AccountID,
		"step":        ob.Step,
	})
	if ctx.Err() != nil {
		log.Debug("tick deadline reached before send, deferring")
		return outcomeSkipped
	}

	err := c.Sender.Send(ctx, queue.OutboundMessage{
		AccountID:      ob.AccountID,
		ContactID:      ob.ContactID,
		ExternalUserID: ob.ExternalUserID,
		Step:           ob.Step,
		Text:           ob.Message,
	})
	if err != nil {
		log.WithError(appErrors.NewTransportFailure(ob.AccountID, ob.ContactID, err)).Warn("send failed, contact stays due")
		c.recordFailure(ctx, ob.AccountID)
		return outcomeFailed
	}
	c.recordSuccess(ctx, ob)

	// the message is out; record it even if the tick is being cancelled
	err = c.Lifecycle.MessageSent(context.WithoutCancel(ctx), lifecycle.Sent{
		ContactID:  ob.ContactID,
		CampaignID: ob.CampaignID,
		Step:       ob.Step,
		SentAt:     c.now(),
	})
	switch {
	case err == nil:
		return outcomeSent
	case appErrors.IsConflict(err):
		log.WithError(err).Info("contact moved on during send, advancement discarded")
		return outcomeConflict
	default:
		log.WithError(err).Error("send succeeded but advancement failed")
		return outcomeFailed
	}
}

func (c *Coordinator) recordFailure(ctx context.Context, accountID string) {
	if c.Failures == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	n, err := c.Failures.Fail(ctx, accountID)
	if err != nil {
		c.Log.WithError(err).WithField("account_id", accountID).Error("failed to count send failure")
		return
	}
	if c.FailureThreshold <= 0 || n < c.FailureThreshold {
		return
	}

	warning := fmt.Sprintf("%d consecutive send failures", n)
	if err := c.Accounts.SetWarning(ctx, accountID, warning); err != nil {
		c.Log.WithError(err).WithField("account_id", accountID).Error("failed to set account warning")
	}
	if n == c.FailureThreshold && c.Alerts != nil {
		c.Alerts.Alert(ctx, "send_failures", "account keeps failing to send", map[string]string{
			"account_id": accountID,
			"failures":   fmt.Sprint(n),
		})
	}
}

func (c *Coordinator) recordSuccess(ctx context.Context, ob Obligation) {
	ctx = context.WithoutCancel(ctx)
	if c.Failures != nil {
		if err := c.Failures.Reset(ctx, ob.AccountID); err != nil {
			c.Log.WithError(err).WithField("account_id", ob.AccountID).Error("failed to reset send failures")
		}
	}
	if ob.accountWarned {
		if err := c.Accounts.SetWarning(ctx, ob.AccountID, ""); err != nil {
			c.Log.WithError(err).WithField("account_id", ob.AccountID).Error("failed to clear account warning")
		}
	}
}
