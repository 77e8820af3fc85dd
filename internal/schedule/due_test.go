package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/drip-engine/internal/model"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func threeStepCampaign() Snapshot {
	camp := &model.Campaign{ID: "camp", AccountID: "acc", IntervalSeconds: 3600, MaxSteps: 3, Active: true}
	return Snapshot{
		Account:  &model.Account{ID: "acc", Status: model.AccountActive},
		Campaign: camp,
		Steps: []model.Step{
			{StepNumber: 1, Message: "one"},
			{StepNumber: 2, Message: "two", IntervalSeconds: ptr(int64(60))},
			{StepNumber: 3, Message: "three"},
		},
	}
}

func enrolled() *model.Contact {
	return &model.Contact{ID: "c", AccountID: "acc", CampaignID: ptr("camp")}
}

// sent mirrors a successful MessageSent on the contact fields.
func sent(c *model.Contact, step int, at time.Time) {
	c.CurrentStep = step
	c.LastMessageAt = &at
}

func TestRepliedIsNeverDue(t *testing.T) {
	snaps := []Snapshot{threeStepCampaign(), {}}
	inactive := threeStepCampaign()
	inactive.Campaign.Active = false
	snaps = append(snaps, inactive)

	for _, snap := range snaps {
		c := enrolled()
		c.Replied = true
		res := IsDue(c, snap, t0)
		assert.False(t, res.Due)
		assert.Equal(t, ReasonTerminal, res.Reason)
		assert.Equal(t, DetailReplied, res.Detail)
	}
}

func TestUnassignedIsPaused(t *testing.T) {
	c := &model.Contact{ID: "c", AccountID: "acc"}
	res := IsDue(c, threeStepCampaign(), t0)
	assert.False(t, res.Due)
	assert.Equal(t, ReasonPaused, res.Reason)
	assert.Equal(t, DetailUnassigned, res.Detail)
}

func TestPausedReasons(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Snapshot, *model.Contact)
		want   Detail
	}{
		{"missing campaign", func(s *Snapshot, _ *model.Contact) { s.Campaign = nil }, DetailMissingCampaign},
		{"campaign of another id", func(_ *Snapshot, c *model.Contact) { c.CampaignID = ptr("deleted") }, DetailMissingCampaign},
		{"inactive campaign", func(s *Snapshot, _ *model.Contact) { s.Campaign.Active = false }, DetailCampaignInactive},
		{"account in error", func(s *Snapshot, _ *model.Contact) { s.Account.Status = model.AccountError }, DetailAccountInactive},
		{"no steps defined", func(s *Snapshot, _ *model.Contact) { s.Steps = nil }, DetailStepMissing},
		{"fewer steps than max", func(s *Snapshot, c *model.Contact) { s.Steps = s.Steps[:1]; sent(c, 1, t0) }, DetailStepMissing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := threeStepCampaign()
			c := enrolled()
			tt.mutate(&snap, c)
			res := IsDue(c, snap, t0.Add(48*time.Hour))
			assert.False(t, res.Due)
			assert.Equal(t, ReasonPaused, res.Reason)
			assert.Equal(t, tt.want, res.Detail)
		})
	}
}

func TestAccountCheckSkippedWithoutAccount(t *testing.T) {
	snap := threeStepCampaign()
	snap.Account = nil
	assert.True(t, IsDue(enrolled(), snap, t0).Due)
}

func TestFirstStepDueImmediately(t *testing.T) {
	res := IsDue(enrolled(), threeStepCampaign(), t0)
	assert.True(t, res.Due)
	assert.Equal(t, ReasonScheduled, res.Reason)
	assert.Equal(t, DetailFirstStep, res.Detail)
	assert.Equal(t, 1, res.NextStep)
	assert.Nil(t, res.NextDueAt)
}

func TestScenarioDefaultInterval(t *testing.T) {
	snap := threeStepCampaign()
	c := enrolled()
	require.True(t, IsDue(c, snap, t0).Due)

	sent(c, 1, t0)
	res := IsDue(c, snap, t0.Add(3599*time.Second))
	assert.False(t, res.Due)
	require.NotNil(t, res.NextDueAt)
	assert.Equal(t, t0.Add(time.Hour), *res.NextDueAt)
	assert.Equal(t, 2, res.NextStep)

	// step 2 carries a 60s override
	assert.True(t, IsDue(c, snap, t0.Add(time.Minute)).Due)
}

func TestScenarioOverrideAppliesToItsOwnStepOnly(t *testing.T) {
	snap := threeStepCampaign()
	c := enrolled()
	sent(c, 1, t0)
	sent(c, 2, t0.Add(time.Hour))

	res := IsDue(c, snap, t0.Add(time.Hour+time.Minute))
	assert.False(t, res.Due, "step 3 uses the campaign default, not step 2's override")
	require.NotNil(t, res.NextDueAt)
	assert.Equal(t, t0.Add(2*time.Hour), *res.NextDueAt)
	assert.Equal(t, time.Hour, res.Interval)
}

func TestScenarioCompletionIsPermanent(t *testing.T) {
	snap := threeStepCampaign()
	c := enrolled()
	sent(c, 3, t0)
	completed := t0
	c.CompletedAt = &completed

	res := IsDue(c, snap, t0.Add(24*time.Hour))
	assert.Equal(t, ReasonTerminal, res.Reason)
	assert.Equal(t, DetailCompleted, res.Detail)

	snap.Campaign.MaxSteps = 5
	snap.Steps = append(snap.Steps, model.Step{StepNumber: 4, Message: "four"})
	res = IsDue(c, snap, t0.Add(24*time.Hour))
	assert.Equal(t, ReasonTerminal, res.Reason, "raising max_steps does not reopen a completed contact")
}

func TestScenarioReactivationKeepsClock(t *testing.T) {
	snap := threeStepCampaign()
	c := enrolled()
	sent(c, 1, t0)

	snap.Campaign.Active = false
	res := IsDue(c, snap, t0.Add(30*time.Minute))
	assert.Equal(t, ReasonPaused, res.Reason)

	snap.Campaign.Active = true
	res = IsDue(c, snap, t0.Add(3*time.Hour))
	assert.True(t, res.Due)
	require.NotNil(t, res.NextDueAt)
	assert.Equal(t, t0.Add(time.Minute), *res.NextDueAt)
}

func TestDueAtExactBoundary(t *testing.T) {
	snap := threeStepCampaign()
	c := enrolled()
	sent(c, 2, t0)
	assert.True(t, IsDue(c, snap, t0.Add(time.Hour)).Due)
}

func TestNonPositiveOverrideFallsBackToDefault(t *testing.T) {
	camp := &model.Campaign{IntervalSeconds: 120}
	step := &model.Step{IntervalSeconds: ptr(int64(0))}
	assert.Equal(t, 2*time.Minute, ResolveInterval(camp, step))
}
