package service

import (
	"context"
	"time"

	"github.com/unclebandit/drip-engine/internal/lifecycle"
	"github.com/unclebandit/drip-engine/internal/model"
	"github.com/unclebandit/drip-engine/internal/repository"
)

var nowUTC = func() time.Time { return time.Now().UTC() }

// DashboardService builds read-only views straight from the store on every
// call. Nothing is cached between requests.
type DashboardService struct {
	AccountRepo  repository.AccountRepositoryInterface
	CampaignRepo repository.CampaignRepositoryInterface
	ContactRepo  repository.ContactRepositoryInterface
}

type Dashboard struct {
	GeneratedAt time.Time               `json:"generated_at"`
	Accounts    []*model.Account        `json:"accounts"`
	Campaigns   []*model.Campaign       `json:"campaigns"`
	Contacts    []ContactView           `json:"contacts"`
	Totals      map[lifecycle.State]int `json:"totals"`
}

// Dashboard lists everything, optionally narrowed to one account.
func (s *DashboardService) Dashboard(ctx context.Context, accountID string) (*Dashboard, error) {
	accounts, err := s.AccountRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	campaigns, err := s.CampaignRepo.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	steps, err := s.CampaignRepo.ListAllSteps(ctx)
	if err != nil {
		return nil, err
	}
	contacts, err := s.ContactRepo.List(ctx, repository.ContactFilter{AccountID: accountID})
	if err != nil {
		return nil, err
	}

	cat := lifecycle.NewCatalog(accounts, campaigns, steps)
	now := nowUTC()

	d := &Dashboard{
		GeneratedAt: now,
		Accounts:    []*model.Account{},
		Campaigns:   []*model.Campaign{},
		Contacts:    make([]ContactView, 0, len(contacts)),
		Totals:      map[lifecycle.State]int{},
	}
	for _, a := range accounts {
		if accountID == "" || a.ID == accountID {
			d.Accounts = append(d.Accounts, a)
		}
	}
	for _, c := range campaigns {
		if accountID != "" && c.AccountID != accountID {
			continue
		}
		c.Steps = cat.Steps(c.ID)
		d.Campaigns = append(d.Campaigns, c)
	}
	for _, c := range contacts {
		st := lifecycle.Derive(c, cat.Snapshot(c), now)
		d.Contacts = append(d.Contacts, ContactView{Contact: c, Next: st})
		d.Totals[st.State]++
	}
	return d, nil
}
