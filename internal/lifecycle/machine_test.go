package lifecycle_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/drip-engine/internal/errors"
	"github.com/unclebandit/drip-engine/internal/lifecycle"
	"github.com/unclebandit/drip-engine/internal/logging"
	"github.com/unclebandit/drip-engine/internal/model"
	"github.com/unclebandit/drip-engine/internal/testutil"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store   *testutil.Store
	machine *lifecycle.Machine
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	s := testutil.OpenStore(t)

	require.NoError(t, s.Accounts.Create(ctx, &model.Account{ID: "acc", Phone: "+100", Status: model.AccountActive}))
	require.NoError(t, s.Accounts.Create(ctx, &model.Account{ID: "other", Phone: "+200", Status: model.AccountActive}))

	require.NoError(t, s.Campaigns.Create(ctx, &model.Campaign{ID: "camp", AccountID: "acc", Name: "Onboarding", IntervalSeconds: 3600, MaxSteps: 3, Active: true}))
	require.NoError(t, s.Campaigns.ReplaceSteps(ctx, "camp", []model.Step{
		{ID: "s1", StepNumber: 1, Message: "one"},
		{ID: "s2", StepNumber: 2, Message: "two"},
		{ID: "s3", StepNumber: 3, Message: "three"},
	}))
	require.NoError(t, s.Campaigns.Create(ctx, &model.Campaign{ID: "empty", AccountID: "acc", Name: "Draft", IntervalSeconds: 60, MaxSteps: 2, Active: true}))
	require.NoError(t, s.Campaigns.Create(ctx, &model.Campaign{ID: "foreign", AccountID: "other", Name: "Theirs", IntervalSeconds: 60, MaxSteps: 1, Active: true}))

	require.NoError(t, s.Contacts.Create(ctx, &model.Contact{ID: "c", AccountID: "acc", ExternalUserID: "u-1"}))

	f := &fixture{store: s, now: t0}
	f.machine = lifecycle.NewMachine(s.Contacts, s.Campaigns, s.Accounts, logging.Discard())
	f.machine.Now = func() time.Time { return f.now }
	return f
}

func (f *fixture) send(t *testing.T, step int, at time.Time) {
	t.Helper()
	require.NoError(t, f.machine.MessageSent(context.Background(), lifecycle.Sent{
		ContactID: "c", CampaignID: "camp", Step: step, SentAt: at,
	}))
}

func TestEnrollStartsAtStepOne(t *testing.T) {
	f := newFixture(t)

	st, err := f.machine.Enroll(context.Background(), "c", "camp")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StateScheduled, st.State)
	assert.Equal(t, 1, st.Step)
	assert.True(t, st.Due)
	assert.Equal(t, "one", st.Message)
}

func TestEnrollRejectsRunningContact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.machine.Enroll(ctx, "c", "camp")
	require.NoError(t, err)

	_, err = f.machine.Enroll(ctx, "c", "camp")
	var invalid *appErrors.InvalidTransitionError
	assert.ErrorAs(t, err, &invalid)
}

func TestEnrollIntoEmptyOrInactiveCampaignPauses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	st, err := f.machine.Enroll(ctx, "c", "empty")
	var paused *appErrors.EnrollmentPausedError
	require.ErrorAs(t, err, &paused)
	assert.Equal(t, lifecycle.StatePaused, st.State)

	require.NoError(t, f.machine.CampaignDeactivated(ctx, "camp"))
	st, err = f.machine.Enroll(ctx, "c", "camp")
	require.ErrorAs(t, err, &paused)
	assert.Equal(t, "campaign_inactive", paused.Reason)
	assert.Equal(t, lifecycle.StatePaused, st.State)
}

func TestEnrollRejectsForeignCampaign(t *testing.T) {
	f := newFixture(t)
	_, err := f.machine.Enroll(context.Background(), "c", "foreign")
	assert.True(t, appErrors.IsValidation(err))

	_, err = f.machine.Enroll(context.Background(), "c", "nope")
	assert.True(t, appErrors.IsNotFound(err))
}

func TestMessageSentAdvancesAndCompletes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.machine.Enroll(ctx, "c", "camp")
	require.NoError(t, err)

	f.send(t, 1, t0)
	st, err := f.machine.Describe(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StateAwaitingInterval, st.State)
	assert.Equal(t, 1, st.Step)
	assert.Equal(t, 2, st.NextStep)
	require.NotNil(t, st.ETA)
	assert.Equal(t, t0.Add(time.Hour), *st.ETA)

	f.send(t, 2, t0.Add(time.Hour))
	f.send(t, 3, t0.Add(2*time.Hour))

	st, err = f.machine.Describe(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StateCompleted, st.State)

	c, err := f.store.Contacts.GetByID(ctx, "c")
	require.NoError(t, err)
	assert.NotNil(t, c.CompletedAt)

	logs, err := f.store.Messages.ListByContact(ctx, "c")
	require.NoError(t, err)
	assert.Len(t, logs, 3)
}

func TestMessageSentRejectsStaleStep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.machine.Enroll(ctx, "c", "camp")
	require.NoError(t, err)
	f.send(t, 1, t0)

	err = f.machine.MessageSent(ctx, lifecycle.Sent{ContactID: "c", CampaignID: "camp", Step: 1, SentAt: t0})
	assert.True(t, appErrors.IsConflict(err))

	err = f.machine.MessageSent(ctx, lifecycle.Sent{ContactID: "c", CampaignID: "camp", Step: 3, SentAt: t0})
	assert.True(t, appErrors.IsConflict(err))

	err = f.machine.MessageSent(ctx, lifecycle.Sent{ContactID: "c", CampaignID: "camp", Step: 4, SentAt: t0})
	var invalid *appErrors.InvalidTransitionError
	assert.ErrorAs(t, err, &invalid)
}

func TestConcurrentMessageSentOnlyOneSucceeds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.machine.Enroll(ctx, "c", "camp")
	require.NoError(t, err)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.machine.MessageSent(ctx, lifecycle.Sent{ContactID: "c", CampaignID: "camp", Step: 1, SentAt: t0})
		}(i)
	}
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case appErrors.IsConflict(err):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, conflicts)

	counts, err := f.store.Messages.CountByStep(ctx, "camp")
	require.NoError(t, err)
	assert.Equal(t, 1, counts[1])
}

func TestReplyIsTerminalAndIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.machine.Enroll(ctx, "c", "camp")
	require.NoError(t, err)
	f.send(t, 1, t0)

	changed, err := f.machine.ReplyReceived(ctx, "c")
	require.NoError(t, err)
	assert.True(t, changed)
	first, err := f.store.Contacts.GetByID(ctx, "c")
	require.NoError(t, err)

	changed, err = f.machine.ReplyReceived(ctx, "c")
	require.NoError(t, err)
	assert.False(t, changed)
	second, err := f.store.Contacts.GetByID(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	st, err := f.machine.Describe(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StateReplied, st.State)

	err = f.machine.MessageSent(ctx, lifecycle.Sent{ContactID: "c", CampaignID: "camp", Step: 2, SentAt: t0.Add(time.Hour)})
	assert.True(t, appErrors.IsConflict(err), "a reply wins over an in-flight send")
}

func TestReplyFromUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, changed, err := f.machine.ReplyFromUser(ctx, "acc", "u-1")
	require.NoError(t, err)
	assert.Equal(t, "c", id)
	assert.True(t, changed)

	_, _, err = f.machine.ReplyFromUser(ctx, "acc", "stranger")
	assert.True(t, appErrors.IsNotFound(err))
}

func TestReassignRestartsSequence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.machine.Enroll(ctx, "c", "camp")
	require.NoError(t, err)
	f.send(t, 1, t0)

	st, err := f.machine.Reassign(ctx, "c", nil)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StateUnassigned, st.State)

	c, err := f.store.Contacts.GetByID(ctx, "c")
	require.NoError(t, err)
	assert.Zero(t, c.CurrentStep)
	assert.Nil(t, c.LastMessageAt)

	id := "camp"
	st, err = f.machine.Reassign(ctx, "c", &id)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StateScheduled, st.State)
	assert.Equal(t, 1, st.Step)
}

func TestReassignDuringSendFailsCompareAndSwap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.machine.Enroll(ctx, "c", "camp")
	require.NoError(t, err)
	require.NoError(t, f.store.Campaigns.ReplaceSteps(ctx, "empty", []model.Step{{ID: "e1", StepNumber: 1, Message: "x"}}))

	empty := "empty"
	_, err = f.machine.Reassign(ctx, "c", &empty)
	require.NoError(t, err)

	err = f.machine.MessageSent(ctx, lifecycle.Sent{ContactID: "c", CampaignID: "camp", Step: 1, SentAt: t0})
	assert.True(t, appErrors.IsConflict(err))
}

func TestDeactivationPreservesClock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.machine.Enroll(ctx, "c", "camp")
	require.NoError(t, err)
	f.send(t, 1, t0)

	require.NoError(t, f.machine.CampaignDeactivated(ctx, "camp"))
	f.now = t0.Add(30 * time.Minute)
	st, err := f.machine.Describe(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatePaused, st.State)

	require.NoError(t, f.machine.CampaignReactivated(ctx, "camp"))
	f.now = t0.Add(5 * time.Hour)
	st, err = f.machine.Describe(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StateScheduled, st.State)
	require.NotNil(t, st.ETA)
	assert.Equal(t, t0.Add(time.Hour), *st.ETA)
}

func TestDeletedCampaignIsPaused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.machine.Enroll(ctx, "c", "camp")
	require.NoError(t, err)
	require.NoError(t, f.store.Campaigns.Delete(ctx, "camp"))

	st, err := f.machine.Describe(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatePaused, st.State)

	err = f.machine.MessageSent(ctx, lifecycle.Sent{ContactID: "c", CampaignID: "camp", Step: 1, SentAt: t0})
	var missing *appErrors.MissingReferenceError
	assert.True(t, errors.As(err, &missing))
}
