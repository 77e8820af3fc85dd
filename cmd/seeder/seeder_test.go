package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/drip-engine/internal/lifecycle"
	"github.com/unclebandit/drip-engine/internal/logging"
	"github.com/unclebandit/drip-engine/internal/repository"
	"github.com/unclebandit/drip-engine/internal/service"
	"github.com/unclebandit/drip-engine/internal/testutil"
)

func TestSeedEnrollsDemoContacts(t *testing.T) {
	st := testutil.OpenStore(t)
	log := logging.Discard()
	m := lifecycle.NewMachine(st.Contacts, st.Campaigns, st.Accounts, log)
	contacts := &service.ContactService{ContactRepo: st.Contacts, AccountRepo: st.Accounts, Lifecycle: m, Log: log}

	s := seeder{
		accounts: &service.AccountService{AccountRepo: st.Accounts, Log: log},
		campaigns: &service.CampaignService{
			CampaignRepo: st.Campaigns,
			AccountRepo:  st.Accounts,
			ContactRepo:  st.Contacts,
			Messages:     st.Messages,
			Lifecycle:    m,
			MaxStepsCap:  10,
			Log:          log,
		},
		contacts: contacts,
	}
	require.NoError(t, s.seed(context.Background(), 3))

	list, err := contacts.ListContacts(context.Background(), repository.ContactFilter{})
	require.NoError(t, err)
	require.Len(t, list, 3)
	for _, c := range list {
		require.NotNil(t, c.CampaignID)
		next, err := contacts.NextMessage(context.Background(), c.ID)
		require.NoError(t, err)
		assert.Equal(t, lifecycle.StateScheduled, next.State)
		assert.Equal(t, 1, next.Step)
	}
}
