package lifecycle

import (
	"context"

	"github.com/unclebandit/drip-engine/internal/model"
	"github.com/unclebandit/drip-engine/internal/schedule"
)

type AccountLister interface {
	List(ctx context.Context) ([]*model.Account, error)
}

type CampaignLister interface {
	ListAll(ctx context.Context) ([]*model.Campaign, error)
	ListAllSteps(ctx context.Context) (map[string][]model.Step, error)
}

// Catalog is a point-in-time read of accounts, campaigns and steps, built
// once per sweep or dashboard query and then discarded.
type Catalog struct {
	accounts  map[string]*model.Account
	campaigns map[string]*model.Campaign
	steps     map[string][]model.Step
}

func NewCatalog(accounts []*model.Account, campaigns []*model.Campaign, steps map[string][]model.Step) *Catalog {
	cat := &Catalog{
		accounts:  make(map[string]*model.Account, len(accounts)),
		campaigns: make(map[string]*model.Campaign, len(campaigns)),
		steps:     steps,
	}
	for _, a := range accounts {
		cat.accounts[a.ID] = a
	}
	for _, c := range campaigns {
		cat.campaigns[c.ID] = c
	}
	if cat.steps == nil {
		cat.steps = map[string][]model.Step{}
	}
	return cat
}

func LoadCatalog(ctx context.Context, accounts AccountLister, campaigns CampaignLister) (*Catalog, error) {
	accs, err := accounts.List(ctx)
	if err != nil {
		return nil, err
	}
	camps, err := campaigns.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	steps, err := campaigns.ListAllSteps(ctx)
	if err != nil {
		return nil, err
	}
	return NewCatalog(accs, camps, steps), nil
}

// Snapshot returns the context for c. A dangling campaign_id yields a nil
// Campaign, which IsDue reports as paused.
func (cat *Catalog) Snapshot(c *model.Contact) schedule.Snapshot {
	snap := schedule.Snapshot{Account: cat.accounts[c.AccountID]}
	if !c.Assigned() {
		return snap
	}
	if camp, ok := cat.campaigns[*c.CampaignID]; ok {
		snap.Campaign = camp
		snap.Steps = cat.steps[camp.ID]
	}
	return snap
}

func (cat *Catalog) Campaign(id string) (*model.Campaign, bool) {
	c, ok := cat.campaigns[id]
	return c, ok
}

func (cat *Catalog) Account(id string) (*model.Account, bool) {
	a, ok := cat.accounts[id]
	return a, ok
}

func (cat *Catalog) Steps(campaignID string) []model.Step {
	return cat.steps[campaignID]
}
