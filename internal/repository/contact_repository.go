package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/unclebandit/drip-engine/internal/db"
	appErrors "github.com/unclebandit/drip-engine/internal/errors"
	"github.com/unclebandit/drip-engine/internal/model"
)

// ContactFilter narrows List. Zero values match everything.
type ContactFilter struct {
	AccountID  string
	CampaignID string
	Replied    *bool
}

// ContactRepositoryInterface covers reads and profile edits. Scheduling
// fields are written only through SchedulingStore.
type ContactRepositoryInterface interface {
	Create(ctx context.Context, c *model.Contact) error
	GetByID(ctx context.Context, id string) (*model.Contact, error)
	List(ctx context.Context, filter ContactFilter) ([]*model.Contact, error)
	ListAssigned(ctx context.Context) ([]*model.Contact, error)
	FindByExternalUser(ctx context.Context, accountID, externalUserID string) (*model.Contact, error)
	UpdateProfile(ctx context.Context, id, name, tag string) error
	Delete(ctx context.Context, id string) error
}

// Advance is a conditional step advancement. It applies only while the
// stored row still has CampaignID, ExpectedStep and replied = false.
type Advance struct {
	ContactID    string
	AccountID    string
	CampaignID   string
	ExpectedStep int
	NewStep      int
	SentAt       time.Time
	Completed    bool
}

// SchedulingStore holds the only writes allowed on scheduling fields.
type SchedulingStore interface {
	GetByID(ctx context.Context, id string) (*model.Contact, error)
	FindByExternalUser(ctx context.Context, accountID, externalUserID string) (*model.Contact, error)
	AdvanceStep(ctx context.Context, adv Advance) (bool, error)
	MarkReplied(ctx context.Context, id string) (bool, error)
	Assign(ctx context.Context, id string, campaignID *string) error
}

type ContactRepository struct {
	DB      *sql.DB
	Dialect db.Dialect
}

const contactColumns = `id, account_id, campaign_id, external_user_id, name, tag, current_step, replied, last_message_at, completed_at, created_at`

func scanContact(row rowScanner) (*model.Contact, error) {
	var (
		c                  model.Contact
		campaignID         sql.NullString
		lastMsg, completed sql.NullInt64
		created            int64
	)
	if err := row.Scan(
		&c.ID, &c.AccountID, &campaignID, &c.ExternalUserID, &c.Name, &c.Tag,
		&c.CurrentStep, &c.Replied, &lastMsg, &completed, &created,
	); err != nil {
		return nil, err
	}
	c.CampaignID = stringPtr(campaignID)
	c.LastMessageAt = timePtr(lastMsg)
	c.CompletedAt = timePtr(completed)
	c.CreatedAt = fromMillis(created)
	return &c, nil
}

// Create inserts a new, unassigned or freshly enrolled contact.
func (r *ContactRepository) Create(ctx context.Context, c *model.Contact) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	query := r.Dialect.Rebind(`
        INSERT INTO contacts (` + contactColumns + `)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `)
	_, err := r.DB.ExecContext(ctx, query,
		c.ID, c.AccountID, nullString(c.CampaignID), c.ExternalUserID, c.Name, c.Tag,
		c.CurrentStep, c.Replied, nullMillis(c.LastMessageAt), nullMillis(c.CompletedAt),
		toMillis(c.CreatedAt),
	)
	return err
}

// GetByID fetches a contact by ID
func (r *ContactRepository) GetByID(ctx context.Context, id string) (*model.Contact, error) {
	query := r.Dialect.Rebind(`SELECT ` + contactColumns + ` FROM contacts WHERE id = ?`)
	c, err := scanContact(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewContactNotFound(id)
		}
		return nil, err
	}
	return c, nil
}

func (r *ContactRepository) FindByExternalUser(ctx context.Context, accountID, externalUserID string) (*model.Contact, error) {
	query := r.Dialect.Rebind(`
        SELECT ` + contactColumns + `
        FROM contacts
        WHERE account_id = ? AND external_user_id = ?
        ORDER BY created_at
        LIMIT 1
    `)
	c, err := scanContact(r.DB.QueryRowContext(ctx, query, accountID, externalUserID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewNotFound("contact", accountID+"/"+externalUserID)
		}
		return nil, err
	}
	return c, nil
}

func (r *ContactRepository) List(ctx context.Context, filter ContactFilter) ([]*model.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE 1=1`
	args := []any{}
	if filter.AccountID != "" {
		query += ` AND account_id = ?`
		args = append(args, filter.AccountID)
	}
	if filter.CampaignID != "" {
		query += ` AND campaign_id = ?`
		args = append(args, filter.CampaignID)
	}
	if filter.Replied != nil {
		query += ` AND replied = ?`
		args = append(args, *filter.Replied)
	}
	query += ` ORDER BY created_at, id`
	return r.query(ctx, r.Dialect.Rebind(query), args...)
}

// ListAssigned returns every contact with a campaign assignment. It is the
// input of each scheduling sweep.
func (r *ContactRepository) ListAssigned(ctx context.Context) ([]*model.Contact, error) {
	return r.query(ctx, `SELECT `+contactColumns+` FROM contacts WHERE campaign_id IS NOT NULL ORDER BY last_message_at, id`)
}

func (r *ContactRepository) query(ctx context.Context, query string, args ...any) ([]*model.Contact, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contacts := []*model.Contact{}
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

func (r *ContactRepository) UpdateProfile(ctx context.Context, id, name, tag string) error {
	query := r.Dialect.Rebind(`UPDATE contacts SET name = ?, tag = ? WHERE id = ?`)
	res, err := r.DB.ExecContext(ctx, query, name, tag, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.NewContactNotFound(id)
	}
	return nil
}

// Delete removes the contact and its send log. The next sweep no longer sees it.
func (r *ContactRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, r.Dialect.Rebind(`DELETE FROM messages_sent WHERE contact_id = ?`), id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, r.Dialect.Rebind(`DELETE FROM contacts WHERE id = ?`), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.NewContactNotFound(id)
	}
	return tx.Commit()
}

// ====================== Scheduling writes ======================

// AdvanceStep is the compare-and-swap on (id, campaign_id, current_step,
// replied). It reports false without error when the row moved on. On
// success the send is logged in the same transaction.
func (r *ContactRepository) AdvanceStep(ctx context.Context, adv Advance) (bool, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var completedAt sql.NullInt64
	if adv.Completed {
		completedAt = sql.NullInt64{Int64: toMillis(adv.SentAt), Valid: true}
	}

	res, err := tx.ExecContext(ctx, r.Dialect.Rebind(`
        UPDATE contacts
        SET current_step = ?, last_message_at = ?, completed_at = ?
        WHERE id = ? AND campaign_id = ? AND current_step = ? AND replied = ?
    `),
		adv.NewStep, toMillis(adv.SentAt), completedAt,
		adv.ContactID, adv.CampaignID, adv.ExpectedStep, false,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	_, err = tx.ExecContext(ctx, r.Dialect.Rebind(`
        INSERT INTO messages_sent (id, account_id, contact_id, campaign_id, step_number, sent_at)
        VALUES (?, ?, ?, ?, ?, ?)
    `),
		uuid.NewString(), adv.AccountID, adv.ContactID, adv.CampaignID, adv.NewStep, toMillis(adv.SentAt),
	)
	if err != nil {
		return false, err
	}
	return true, tx.Commit()
}

// MarkReplied sets the terminal reply flag unconditionally. It reports
// whether the flag changed; a second call is a no-op.
func (r *ContactRepository) MarkReplied(ctx context.Context, id string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, r.Dialect.Rebind(`UPDATE contacts SET replied = ? WHERE id = ? AND replied = ?`), true, id, false)
	if err != nil {
		return false, err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return true, nil
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// Assign points the contact at campaignID (nil clears it) and restarts its
// sequence.
func (r *ContactRepository) Assign(ctx context.Context, id string, campaignID *string) error {
	query := r.Dialect.Rebind(`
        UPDATE contacts
        SET campaign_id = ?, current_step = 0, last_message_at = NULL, completed_at = NULL
        WHERE id = ?
    `)
	res, err := r.DB.ExecContext(ctx, query, nullString(campaignID), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.NewContactNotFound(id)
	}
	return nil
}

var (
	_ ContactRepositoryInterface = (*ContactRepository)(nil)
	_ SchedulingStore            = (*ContactRepository)(nil)
)
