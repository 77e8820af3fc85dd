// Package testutil opens throwaway sqlite stores for package tests.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/unclebandit/drip-engine/internal/db"
	"github.com/unclebandit/drip-engine/internal/repository"
)

// Store bundles the repositories over one temp database.
type Store struct {
	Accounts  *repository.AccountRepository
	Campaigns *repository.CampaignRepository
	Contacts  *repository.ContactRepository
	Messages  *repository.MessageLogRepository
}

// OpenStore creates a fresh sqlite file under t.TempDir with the schema applied.
func OpenStore(t *testing.T) *Store {
	t.Helper()

	conn, dialect, err := db.Open("sqlite", filepath.Join(t.TempDir(), "drip.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return &Store{
		Accounts:  &repository.AccountRepository{DB: conn, Dialect: dialect},
		Campaigns: &repository.CampaignRepository{DB: conn, Dialect: dialect},
		Contacts:  &repository.ContactRepository{DB: conn, Dialect: dialect},
		Messages:  &repository.MessageLogRepository{DB: conn, Dialect: dialect},
	}
}
