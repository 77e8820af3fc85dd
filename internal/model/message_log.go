// internal/model/message_log.go
package model

import "time"

// MessageLog records one acknowledged send.
type MessageLog struct {
	ID         string    `db:"id" json:"id"`
	AccountID  string    `db:"account_id" json:"account_id"`
	ContactID  string    `db:"contact_id" json:"contact_id"`
	CampaignID string    `db:"campaign_id" json:"campaign_id"`
	StepNumber int       `db:"step_number" json:"step_number"`
	SentAt     time.Time `db:"sent_at" json:"sent_at"`
}
