// internal/model/contact.go
package model

import "time"

// Contact is a recipient enrolled (or not) in one campaign of its account.
// CampaignID nil means unscheduled. CurrentStep counts steps already sent.
type Contact struct {
	ID             string     `db:"id" json:"id"`
	AccountID      string     `db:"account_id" json:"account_id"`
	CampaignID     *string    `db:"campaign_id" json:"campaign_id"`
	ExternalUserID string     `db:"external_user_id" json:"external_user_id"`
	Name           string     `db:"name" json:"name,omitempty"`
	Tag            string     `db:"tag" json:"tag,omitempty"`
	CurrentStep    int        `db:"current_step" json:"current_step"`
	Replied        bool       `db:"replied" json:"replied"`
	LastMessageAt  *time.Time `db:"last_message_at" json:"last_message_at"`
	CompletedAt    *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

func (c *Contact) Assigned() bool {
	return c.CampaignID != nil && *c.CampaignID != ""
}
