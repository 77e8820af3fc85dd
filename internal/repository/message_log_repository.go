package repository

import (
	"context"
	"database/sql"

	"github.com/unclebandit/drip-engine/internal/db"
	"github.com/unclebandit/drip-engine/internal/model"
)

// MessageLogRepository reads the send log written by ContactRepository.AdvanceStep.
type MessageLogRepository struct {
	DB      *sql.DB
	Dialect db.Dialect
}

// ListByContact returns the contact's sends, oldest first.
func (r *MessageLogRepository) ListByContact(ctx context.Context, contactID string) ([]model.MessageLog, error) {
	query := r.Dialect.Rebind(`
        SELECT id, account_id, contact_id, campaign_id, step_number, sent_at
        FROM messages_sent
        WHERE contact_id = ?
        ORDER BY sent_at, step_number
    `)
	rows, err := r.DB.QueryContext(ctx, query, contactID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []model.MessageLog{}
	for rows.Next() {
		var (
			m      model.MessageLog
			sentAt int64
		)
		if err := rows.Scan(&m.ID, &m.AccountID, &m.ContactID, &m.CampaignID, &m.StepNumber, &sentAt); err != nil {
			return nil, err
		}
		m.SentAt = fromMillis(sentAt)
		logs = append(logs, m)
	}
	return logs, rows.Err()
}

// CountByStep returns sends per step number for a campaign.
func (r *MessageLogRepository) CountByStep(ctx context.Context, campaignID string) (map[int]int, error) {
	query := r.Dialect.Rebind(`SELECT step_number, COUNT(*) FROM messages_sent WHERE campaign_id = ? GROUP BY step_number`)
	rows, err := r.DB.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[int]int{}
	for rows.Next() {
		var step, count int
		if err := rows.Scan(&step, &count); err != nil {
			return nil, err
		}
		stats[step] = count
	}
	return stats, rows.Err()
}
