// internal/model/campaign.go
package model

import "time"

type Campaign struct {
	ID              string    `db:"id" json:"id"`
	AccountID       string    `db:"account_id" json:"account_id"`
	Name            string    `db:"name" json:"name"`
	IntervalSeconds int64     `db:"interval_seconds" json:"interval_seconds"`
	MaxSteps        int       `db:"max_steps" json:"max_steps"`
	Active          bool      `db:"active" json:"active"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`

	Steps []Step `json:"steps,omitempty"`
}

// DefaultInterval is the wait applied before a step that has no override.
func (c *Campaign) DefaultInterval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// Step is one message of a campaign sequence. StepNumber is 1-based and
// contiguous within a campaign.
type Step struct {
	ID              string `db:"id" json:"id"`
	CampaignID      string `db:"campaign_id" json:"campaign_id"`
	StepNumber      int    `db:"step_number" json:"step_number"`
	Message         string `db:"message" json:"message"`
	IntervalSeconds *int64 `db:"interval_seconds" json:"interval_seconds,omitempty"`
}

// IntervalOverride reports the per-step wait, if one is set. Non-positive
// values count as unset.
func (s *Step) IntervalOverride() (time.Duration, bool) {
	if s == nil || s.IntervalSeconds == nil || *s.IntervalSeconds <= 0 {
		return 0, false
	}
	return time.Duration(*s.IntervalSeconds) * time.Second, true
}
