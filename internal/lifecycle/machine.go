// Package lifecycle owns every write to a contact's scheduling fields. The
// HTTP layer, the reply listener and the coordinator all go through Machine.
package lifecycle

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	appErrors "github.com/unclebandit/drip-engine/internal/errors"
	"github.com/unclebandit/drip-engine/internal/model"
	"github.com/unclebandit/drip-engine/internal/repository"
	"github.com/unclebandit/drip-engine/internal/schedule"
)

type CampaignStore interface {
	GetByID(ctx context.Context, id string) (*model.Campaign, error)
	ListSteps(ctx context.Context, campaignID string) ([]model.Step, error)
	SetActive(ctx context.Context, id string, active bool) error
}

type AccountReader interface {
	GetByID(ctx context.Context, id string) (*model.Account, error)
}

// Sent is a send acknowledgement from the dispatch boundary.
type Sent struct {
	ContactID  string
	CampaignID string
	Step       int
	SentAt     time.Time
}

type Machine struct {
	Contacts  repository.SchedulingStore
	Campaigns CampaignStore
	Accounts  AccountReader
	Log       logrus.FieldLogger
	Now       func() time.Time
}

func NewMachine(contacts repository.SchedulingStore, campaigns CampaignStore, accounts AccountReader, log logrus.FieldLogger) *Machine {
	return &Machine{
		Contacts:  contacts,
		Campaigns: campaigns,
		Accounts:  accounts,
		Log:       log,
		Now:       func() time.Time { return time.Now().UTC() },
	}
}

// Enroll starts contactID on campaignID at step 1. Only unassigned or paused
// contacts can be enrolled; use Reassign to move a running contact.
func (m *Machine) Enroll(ctx context.Context, contactID, campaignID string) (Status, error) {
	cur, err := m.Describe(ctx, contactID)
	if err != nil {
		return Status{}, err
	}
	if cur.State != StateUnassigned && cur.State != StatePaused {
		return cur, appErrors.NewInvalidTransition(contactID, string(cur.State), "enroll")
	}
	return m.Reassign(ctx, contactID, &campaignID)
}

// Reassign moves the contact to campaignID, or unassigns it when nil. The
// sequence restarts from step 1 under the new campaign.
//
// When the target campaign is inactive or has no steps the assignment is
// still recorded, the contact lands in Paused and EnrollmentPausedError is
// returned alongside its status.
func (m *Machine) Reassign(ctx context.Context, contactID string, campaignID *string) (Status, error) {
	c, err := m.Contacts.GetByID(ctx, contactID)
	if err != nil {
		return Status{}, err
	}

	var target *string
	if campaignID != nil && *campaignID != "" {
		camp, err := m.CampaignFor(ctx, c.AccountID, *campaignID)
		if err != nil {
			return Status{}, err
		}
		target = &camp.ID
	}
	if err := m.Contacts.Assign(ctx, c.ID, target); err != nil {
		return Status{}, err
	}

	st, err := m.Describe(ctx, c.ID)
	if err != nil {
		return st, err
	}

	log := m.Log.WithField("contact_id", c.ID)
	if target == nil {
		log.Info("contact unassigned")
		return st, nil
	}
	log = log.WithField("campaign_id", *target)
	if st.State == StatePaused {
		log.WithField("detail", st.Detail).Warn("contact enrolled into a paused campaign")
		return st, appErrors.NewEnrollmentPaused(*target, string(st.Detail))
	}
	log.Info("contact enrolled")
	return st, nil
}

// MessageSent records a confirmed send of s.Step. It is accepted only when
// s.Step == current_step+1 and the contact is still on s.CampaignID and has
// not replied. The write is a compare-and-swap on the step the sweep read, so
// of two concurrent acknowledgements for the same step exactly one wins and
// the other gets ConcurrencyConflictError.
func (m *Machine) MessageSent(ctx context.Context, s Sent) error {
	c, err := m.Contacts.GetByID(ctx, s.ContactID)
	if err != nil {
		return err
	}
	camp, err := m.Campaigns.GetByID(ctx, s.CampaignID)
	if err != nil {
		if appErrors.IsNotFound(err) {
			return appErrors.NewMissingReference("campaign", s.CampaignID)
		}
		return err
	}

	expected := s.Step - 1
	if s.Step < 1 || s.Step > camp.MaxSteps {
		return appErrors.NewInvalidTransition(c.ID, "step", "message_sent")
	}
	if c.Replied || c.CurrentStep != expected || !c.Assigned() || *c.CampaignID != s.CampaignID {
		return appErrors.NewConcurrencyConflict(c.ID, expected)
	}

	ok, err := m.Contacts.AdvanceStep(ctx, repository.Advance{
		ContactID:    c.ID,
		AccountID:    c.AccountID,
		CampaignID:   s.CampaignID,
		ExpectedStep: expected,
		NewStep:      s.Step,
		SentAt:       s.SentAt,
		Completed:    s.Step >= camp.MaxSteps,
	})
	if err != nil {
		return err
	}
	if !ok {
		return appErrors.NewConcurrencyConflict(c.ID, expected)
	}

	m.Log.WithFields(logrus.Fields{
		"contact_id":  c.ID,
		"campaign_id": s.CampaignID,
		"step":        s.Step,
		"completed":   s.Step >= camp.MaxSteps,
	}).Info("step advanced")
	return nil
}

// ReplyReceived marks the contact as replied. It always wins over in-flight
// sends and is idempotent; changed is false when it was already set.
func (m *Machine) ReplyReceived(ctx context.Context, contactID string) (changed bool, err error) {
	changed, err = m.Contacts.MarkReplied(ctx, contactID)
	if err != nil {
		return false, err
	}
	if changed {
		m.Log.WithField("contact_id", contactID).Info("reply received, sequence stopped")
	}
	return changed, nil
}

// ReplyFromUser resolves an inbound reply by platform identity.
func (m *Machine) ReplyFromUser(ctx context.Context, accountID, externalUserID string) (contactID string, changed bool, err error) {
	c, err := m.Contacts.FindByExternalUser(ctx, accountID, externalUserID)
	if err != nil {
		return "", false, err
	}
	changed, err = m.ReplyReceived(ctx, c.ID)
	return c.ID, changed, err
}

// CampaignDeactivated pauses every contact of the campaign without touching
// their progress or clocks.
func (m *Machine) CampaignDeactivated(ctx context.Context, campaignID string) error {
	return m.setActive(ctx, campaignID, false)
}

// CampaignReactivated resumes the campaign. Due times are recomputed from the
// original last_message_at.
func (m *Machine) CampaignReactivated(ctx context.Context, campaignID string) error {
	return m.setActive(ctx, campaignID, true)
}

func (m *Machine) setActive(ctx context.Context, campaignID string, active bool) error {
	if err := m.Campaigns.SetActive(ctx, campaignID, active); err != nil {
		return err
	}
	m.Log.WithFields(logrus.Fields{"campaign_id": campaignID, "active": active}).Info("campaign toggled")
	return nil
}

// Describe derives the contact's current lifecycle state.
func (m *Machine) Describe(ctx context.Context, contactID string) (Status, error) {
	c, err := m.Contacts.GetByID(ctx, contactID)
	if err != nil {
		return Status{}, err
	}
	snap, err := m.snapshot(ctx, c)
	if err != nil {
		return Status{}, err
	}
	return Derive(c, snap, m.Now()), nil
}

// CampaignFor loads campaignID and checks it belongs to accountID. Callers
// use it to reject an enrollment before writing anything.
func (m *Machine) CampaignFor(ctx context.Context, accountID, campaignID string) (*model.Campaign, error) {
	camp, err := m.Campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if camp.AccountID != accountID {
		return nil, appErrors.NewValidation("campaign_id", "campaign belongs to another account")
	}
	return camp, nil
}

func (m *Machine) snapshot(ctx context.Context, c *model.Contact) (schedule.Snapshot, error) {
	var snap schedule.Snapshot

	acc, err := m.Accounts.GetByID(ctx, c.AccountID)
	switch {
	case err == nil:
		snap.Account = acc
	case !appErrors.IsNotFound(err):
		return snap, err
	}

	if !c.Assigned() {
		return snap, nil
	}
	camp, err := m.Campaigns.GetByID(ctx, *c.CampaignID)
	if err != nil {
		if appErrors.IsNotFound(err) {
			m.Log.WithField("contact_id", c.ID).
				WithError(appErrors.NewMissingReference("campaign", *c.CampaignID)).
				Warn("contact points at a deleted campaign")
			return snap, nil
		}
		return snap, err
	}
	steps, err := m.Campaigns.ListSteps(ctx, camp.ID)
	if err != nil {
		return snap, err
	}
	snap.Campaign = camp
	snap.Steps = steps
	return snap, nil
}
