// internal/model/account.go
package model

import "time"

type AccountStatus string

const (
	AccountPending AccountStatus = "pending"
	AccountActive  AccountStatus = "active"
	AccountError   AccountStatus = "error"
)

// Account is a messaging-platform identity that owns campaigns and contacts.
// Only active accounts run campaigns.
type Account struct {
	ID        string        `db:"id" json:"id"`
	Phone     string        `db:"phone" json:"phone"`
	Name      string        `db:"name" json:"name,omitempty"`
	Tag       string        `db:"tag" json:"tag,omitempty"`
	Status    AccountStatus `db:"status" json:"status"`
	Warning   string        `db:"warning" json:"warning,omitempty"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt time.Time     `db:"updated_at" json:"updated_at"`
}

func (a *Account) IsActive() bool {
	return a != nil && a.Status == AccountActive
}
