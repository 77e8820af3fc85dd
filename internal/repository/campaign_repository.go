package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/unclebandit/drip-engine/internal/db"
	appErrors "github.com/unclebandit/drip-engine/internal/errors"
	"github.com/unclebandit/drip-engine/internal/model"
)

type CampaignRepositoryInterface interface {
	// Campaign CRUD
	ListCampaigns(ctx context.Context, offset, limit int, accountID string, active *bool) ([]*model.Campaign, int, error)
	ListAll(ctx context.Context) ([]*model.Campaign, error)
	GetByID(ctx context.Context, id string) (*model.Campaign, error)
	Create(ctx context.Context, c *model.Campaign) error
	CreateWithSteps(ctx context.Context, c *model.Campaign, steps []model.Step) error
	Update(ctx context.Context, c *model.Campaign) error
	SetActive(ctx context.Context, id string, active bool) error
	Delete(ctx context.Context, id string) error

	// Steps
	ListSteps(ctx context.Context, campaignID string) ([]model.Step, error)
	ListAllSteps(ctx context.Context) (map[string][]model.Step, error)
	ReplaceSteps(ctx context.Context, campaignID string, steps []model.Step) error
	MaxCurrentStep(ctx context.Context, campaignID string) (int, error)
}

type CampaignRepository struct {
	DB      *sql.DB
	Dialect db.Dialect
}

// ====================== Campaign CRUD ======================

const campaignColumns = `id, account_id, name, interval_seconds, max_steps, active, created_at, updated_at`

func scanCampaign(row rowScanner) (*model.Campaign, error) {
	var (
		c                model.Campaign
		created, updated int64
	)
	if err := row.Scan(&c.ID, &c.AccountID, &c.Name, &c.IntervalSeconds, &c.MaxSteps, &c.Active, &created, &updated); err != nil {
		return nil, err
	}
	c.CreatedAt = fromMillis(created)
	c.UpdatedAt = fromMillis(updated)
	return &c, nil
}

func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) error {
	return r.CreateWithSteps(ctx, c, nil)
}

// CreateWithSteps inserts the campaign and its steps in one transaction, so a
// failed step write leaves no campaign behind.
func (r *CampaignRepository) CreateWithSteps(ctx context.Context, c *model.Campaign, steps []model.Step) error {
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := r.Dialect.Rebind(`
        INSERT INTO campaigns (` + campaignColumns + `)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
    `)
	_, err = tx.ExecContext(ctx, query,
		c.ID, c.AccountID, c.Name, c.IntervalSeconds, c.MaxSteps, c.Active,
		toMillis(c.CreatedAt), toMillis(c.UpdatedAt),
	)
	if err != nil {
		return err
	}
	if err := r.insertSteps(ctx, tx, c.ID, steps); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *CampaignRepository) Update(ctx context.Context, c *model.Campaign) error {
	c.UpdatedAt = time.Now().UTC()
	query := r.Dialect.Rebind(`
        UPDATE campaigns
        SET name = ?, interval_seconds = ?, max_steps = ?, updated_at = ?
        WHERE id = ?
    `)
	res, err := r.DB.ExecContext(ctx, query, c.Name, c.IntervalSeconds, c.MaxSteps, toMillis(c.UpdatedAt), c.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.NewCampaignNotFound(c.ID)
	}
	return nil
}

func (r *CampaignRepository) SetActive(ctx context.Context, id string, active bool) error {
	query := r.Dialect.Rebind(`UPDATE campaigns SET active = ?, updated_at = ? WHERE id = ?`)
	res, err := r.DB.ExecContext(ctx, query, active, toMillis(time.Now()), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.NewCampaignNotFound(id)
	}
	return nil
}

// Delete removes the campaign and its steps. Contacts keep their dangling
// campaign_id and are reported as paused until reassigned.
func (r *CampaignRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, r.Dialect.Rebind(`DELETE FROM campaign_steps WHERE campaign_id = ?`), id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, r.Dialect.Rebind(`DELETE FROM campaigns WHERE id = ?`), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.NewCampaignNotFound(id)
	}
	return tx.Commit()
}

func (r *CampaignRepository) GetByID(ctx context.Context, id string) (*model.Campaign, error) {
	query := r.Dialect.Rebind(`SELECT ` + campaignColumns + ` FROM campaigns WHERE id = ?`)
	c, err := scanCampaign(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return c, nil
}

func (r *CampaignRepository) ListAll(ctx context.Context) ([]*model.Campaign, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+campaignColumns+` FROM campaigns ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

func (r *CampaignRepository) ListCampaigns(ctx context.Context, offset, limit int, accountID string, active *bool) ([]*model.Campaign, int, error) {
	where := ` WHERE 1=1`
	args := []any{}

	if accountID != "" {
		where += ` AND account_id = ?`
		args = append(args, accountID)
	}
	if active != nil {
		where += ` AND active = ?`
		args = append(args, *active)
	}

	query := r.Dialect.Rebind(`SELECT ` + campaignColumns + ` FROM campaigns` + where + ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`)
	rows, err := r.DB.QueryContext(ctx, query, append(append([]any{}, args...), limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	// Count total
	var total int
	countQuery := r.Dialect.Rebind(`SELECT COUNT(*) FROM campaigns` + where)
	if err := r.DB.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	return campaigns, total, nil
}

// ====================== Steps ======================

const stepColumns = `id, campaign_id, step_number, message, interval_seconds`

func scanStep(row rowScanner) (model.Step, error) {
	var (
		s        model.Step
		interval sql.NullInt64
	)
	if err := row.Scan(&s.ID, &s.CampaignID, &s.StepNumber, &s.Message, &interval); err != nil {
		return s, err
	}
	s.IntervalSeconds = int64Ptr(interval)
	return s, nil
}

func (r *CampaignRepository) ListSteps(ctx context.Context, campaignID string) ([]model.Step, error) {
	query := r.Dialect.Rebind(`SELECT ` + stepColumns + ` FROM campaign_steps WHERE campaign_id = ? ORDER BY step_number`)
	rows, err := r.DB.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	steps := []model.Step{}
	for rows.Next() {
		s, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		steps = append(steps, s)
	}
	return steps, rows.Err()
}

// ListAllSteps returns every step grouped by campaign, ordered by number.
func (r *CampaignRepository) ListAllSteps(ctx context.Context) (map[string][]model.Step, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+stepColumns+` FROM campaign_steps ORDER BY campaign_id, step_number`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	steps := map[string][]model.Step{}
	for rows.Next() {
		s, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		steps[s.CampaignID] = append(steps[s.CampaignID], s)
	}
	return steps, rows.Err()
}

// ReplaceSteps atomically rewrites the campaign's step list. Callers pass the
// full, already renumbered list.
func (r *CampaignRepository) ReplaceSteps(ctx context.Context, campaignID string, steps []model.Step) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, r.Dialect.Rebind(`DELETE FROM campaign_steps WHERE campaign_id = ?`), campaignID); err != nil {
		return err
	}

	if err := r.insertSteps(ctx, tx, campaignID, steps); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, r.Dialect.Rebind(`UPDATE campaigns SET updated_at = ? WHERE id = ?`), toMillis(time.Now()), campaignID); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *CampaignRepository) insertSteps(ctx context.Context, tx *sql.Tx, campaignID string, steps []model.Step) error {
	insert := r.Dialect.Rebind(`INSERT INTO campaign_steps (` + stepColumns + `) VALUES (?, ?, ?, ?, ?)`)
	for _, s := range steps {
		if _, err := tx.ExecContext(ctx, insert, s.ID, campaignID, s.StepNumber, s.Message, nullInt64(s.IntervalSeconds)); err != nil {
			return err
		}
	}
	return nil
}

// MaxCurrentStep is the furthest progress of any contact assigned to the campaign.
func (r *CampaignRepository) MaxCurrentStep(ctx context.Context, campaignID string) (int, error) {
	var furthest int
	query := r.Dialect.Rebind(`SELECT COALESCE(MAX(current_step), 0) FROM contacts WHERE campaign_id = ?`)
	if err := r.DB.QueryRowContext(ctx, query, campaignID).Scan(&furthest); err != nil {
		return 0, err
	}
	return furthest, nil
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
