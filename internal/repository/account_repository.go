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

type AccountRepositoryInterface interface {
	Create(ctx context.Context, a *model.Account) error
	GetByID(ctx context.Context, id string) (*model.Account, error)
	List(ctx context.Context) ([]*model.Account, error)
	UpdateProfile(ctx context.Context, id, name, tag string) error
	UpdateStatus(ctx context.Context, id string, status model.AccountStatus) error
	SetWarning(ctx context.Context, id, warning string) error
	Delete(ctx context.Context, id string) error
}

type AccountRepository struct {
	DB      *sql.DB
	Dialect db.Dialect
}

const accountColumns = `id, phone, name, tag, status, warning, created_at, updated_at`

func scanAccount(row rowScanner) (*model.Account, error) {
	var (
		a                model.Account
		status           string
		created, updated int64
	)
	if err := row.Scan(&a.ID, &a.Phone, &a.Name, &a.Tag, &status, &a.Warning, &created, &updated); err != nil {
		return nil, err
	}
	a.Status = model.AccountStatus(status)
	a.CreatedAt = fromMillis(created)
	a.UpdatedAt = fromMillis(updated)
	return &a, nil
}

func (r *AccountRepository) Create(ctx context.Context, a *model.Account) error {
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	if a.Status == "" {
		a.Status = model.AccountPending
	}
	query := r.Dialect.Rebind(`
        INSERT INTO accounts (` + accountColumns + `)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
    `)
	_, err := r.DB.ExecContext(ctx, query,
		a.ID, a.Phone, a.Name, a.Tag, string(a.Status), a.Warning,
		toMillis(a.CreatedAt), toMillis(a.UpdatedAt),
	)
	return err
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*model.Account, error) {
	query := r.Dialect.Rebind(`SELECT ` + accountColumns + ` FROM accounts WHERE id = ?`)
	a, err := scanAccount(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewAccountNotFound(id)
		}
		return nil, err
	}
	return a, nil
}

func (r *AccountRepository) List(ctx context.Context) ([]*model.Account, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := []*model.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *AccountRepository) UpdateProfile(ctx context.Context, id, name, tag string) error {
	query := r.Dialect.Rebind(`UPDATE accounts SET name = ?, tag = ?, updated_at = ? WHERE id = ?`)
	return r.execOne(ctx, id, query, name, tag, toMillis(time.Now()), id)
}

func (r *AccountRepository) UpdateStatus(ctx context.Context, id string, status model.AccountStatus) error {
	query := r.Dialect.Rebind(`UPDATE accounts SET status = ?, updated_at = ? WHERE id = ?`)
	return r.execOne(ctx, id, query, string(status), toMillis(time.Now()), id)
}

func (r *AccountRepository) SetWarning(ctx context.Context, id, warning string) error {
	query := r.Dialect.Rebind(`UPDATE accounts SET warning = ?, updated_at = ? WHERE id = ?`)
	return r.execOne(ctx, id, query, warning, toMillis(time.Now()), id)
}

// Delete removes the account together with its campaigns, steps, contacts
// and send log.
func (r *AccountRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmts := []string{
		`DELETE FROM campaign_steps WHERE campaign_id IN (SELECT id FROM campaigns WHERE account_id = ?)`,
		`DELETE FROM campaigns WHERE account_id = ?`,
		`DELETE FROM messages_sent WHERE account_id = ?`,
		`DELETE FROM contacts WHERE account_id = ?`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, r.Dialect.Rebind(stmt), id); err != nil {
			return err
		}
	}

	res, err := tx.ExecContext(ctx, r.Dialect.Rebind(`DELETE FROM accounts WHERE id = ?`), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.NewAccountNotFound(id)
	}
	return tx.Commit()
}

func (r *AccountRepository) execOne(ctx context.Context, id, query string, args ...any) error {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.NewAccountNotFound(id)
	}
	return nil
}

var _ AccountRepositoryInterface = (*AccountRepository)(nil)
