// internal/service/campaign_service.go
package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	appErrors "github.com/unclebandit/drip-engine/internal/errors"
	"github.com/unclebandit/drip-engine/internal/lifecycle"
	"github.com/unclebandit/drip-engine/internal/model"
	"github.com/unclebandit/drip-engine/internal/repository"
)

// CampaignToggler is the slice of the lifecycle machine campaigns need.
type CampaignToggler interface {
	CampaignDeactivated(ctx context.Context, campaignID string) error
	CampaignReactivated(ctx context.Context, campaignID string) error
}

type SendCounter interface {
	CountByStep(ctx context.Context, campaignID string) (map[int]int, error)
}

// CampaignService is the operator surface for campaigns and their steps. Every
// step edit rewrites the whole list so numbering stays 1..count.
type CampaignService struct {
	CampaignRepo repository.CampaignRepositoryInterface
	AccountRepo  repository.AccountRepositoryInterface
	ContactRepo  repository.ContactRepositoryInterface
	Messages     SendCounter
	Lifecycle    CampaignToggler
	MaxStepsCap  int
	Log          logrus.FieldLogger

	// serializes read-modify-write of step lists
	stepsMu sync.Mutex
}

type StepInput struct {
	StepNumber      int    `json:"step_number,omitempty" validate:"gte=0"`
	Message         string `json:"message" validate:"required"`
	IntervalSeconds *int64 `json:"interval_seconds,omitempty" validate:"omitempty,gte=0"`
}

// StepPatch changes a step in place. Nil fields are left alone; an interval
// of 0 clears the override.
type StepPatch struct {
	Message         *string `json:"message,omitempty"`
	IntervalSeconds *int64  `json:"interval_seconds,omitempty" validate:"omitempty,gte=0"`
}

type CampaignInput struct {
	AccountID       string      `json:"account_id" validate:"required"`
	Name            string      `json:"name" validate:"required,max=200"`
	IntervalSeconds int64       `json:"interval_seconds" validate:"gt=0"`
	MaxSteps        int         `json:"max_steps" validate:"gte=1"`
	Active          *bool       `json:"active,omitempty"`
	Steps           []StepInput `json:"steps,omitempty" validate:"dive"`
}

type CampaignUpdate struct {
	Name            string `json:"name" validate:"required,max=200"`
	IntervalSeconds int64  `json:"interval_seconds" validate:"gt=0"`
	MaxSteps        int    `json:"max_steps" validate:"gte=1"`
}

type CampaignStats struct {
	CampaignID string                  `json:"campaign_id"`
	SentByStep map[int]int             `json:"sent_by_step"`
	TotalSent  int                     `json:"total_sent"`
	Contacts   map[lifecycle.State]int `json:"contacts"`
}

func (s *CampaignService) logger() logrus.FieldLogger {
	if s.Log == nil {
		return logrus.StandardLogger()
	}
	return s.Log
}

func (s *CampaignService) checkMaxSteps(n int) error {
	if s.MaxStepsCap > 0 && n > s.MaxStepsCap {
		return appErrors.NewValidation("max_steps", fmt.Sprintf("must be at most %d", s.MaxStepsCap))
	}
	return nil
}

func newStep(campaignID string, in StepInput) (model.Step, error) {
	if err := requireText("message", in.Message); err != nil {
		return model.Step{}, err
	}
	st := model.Step{ID: uuid.NewString(), CampaignID: campaignID, Message: in.Message}
	if in.IntervalSeconds != nil && *in.IntervalSeconds > 0 {
		v := *in.IntervalSeconds
		st.IntervalSeconds = &v
	}
	return st, nil
}

func (s *CampaignService) CreateCampaign(ctx context.Context, in CampaignInput) (*model.Campaign, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if err := requireText("name", in.Name); err != nil {
		return nil, err
	}
	if err := s.checkMaxSteps(in.MaxSteps); err != nil {
		return nil, err
	}
	if len(in.Steps) > in.MaxSteps {
		return nil, appErrors.NewValidation("steps", fmt.Sprintf("at most %d steps allowed", in.MaxSteps))
	}
	if _, err := s.AccountRepo.GetByID(ctx, in.AccountID); err != nil {
		return nil, err
	}

	c := &model.Campaign{
		ID:              uuid.NewString(),
		AccountID:       in.AccountID,
		Name:            strings.TrimSpace(in.Name),
		IntervalSeconds: in.IntervalSeconds,
		MaxSteps:        in.MaxSteps,
		Active:          in.Active == nil || *in.Active,
	}

	steps := make([]model.Step, 0, len(in.Steps))
	for _, si := range in.Steps {
		st, err := newStep(c.ID, si)
		if err != nil {
			return nil, err
		}
		steps = append(steps, st)
	}
	steps = renumber(steps)

	if err := s.CampaignRepo.CreateWithSteps(ctx, c, steps); err != nil {
		return nil, err
	}
	c.Steps = steps

	s.logger().WithFields(logrus.Fields{"campaign_id": c.ID, "account_id": c.AccountID, "steps": len(steps)}).Info("campaign created")
	return c, nil
}

// GetCampaign returns the campaign with its ordered steps.
func (s *CampaignService) GetCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	c, err := s.CampaignRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	steps, err := s.CampaignRepo.ListSteps(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Steps = steps
	return c, nil
}

// ListCampaigns fetches campaigns with pagination
func (s *CampaignService) ListCampaigns(ctx context.Context, page, pageSize int, accountID string, active *bool) ([]model.Campaign, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	ptrs, total, err := s.CampaignRepo.ListCampaigns(ctx, offset, pageSize, accountID, active)
	if err != nil {
		return nil, nil, err
	}

	campaigns := make([]model.Campaign, len(ptrs))
	for i, c := range ptrs {
		campaigns[i] = *c
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}

	return campaigns, pagination, nil
}

// UpdateCampaign edits name, default interval and max_steps. Lowering
// max_steps below the step count or below any enrolled contact's progress is
// rejected.
func (s *CampaignService) UpdateCampaign(ctx context.Context, id string, in CampaignUpdate) (*model.Campaign, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if err := requireText("name", in.Name); err != nil {
		return nil, err
	}
	if err := s.checkMaxSteps(in.MaxSteps); err != nil {
		return nil, err
	}

	s.stepsMu.Lock()
	defer s.stepsMu.Unlock()

	c, err := s.GetCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.MaxSteps < len(c.Steps) {
		return nil, appErrors.NewValidation("max_steps", fmt.Sprintf("campaign already has %d steps", len(c.Steps)))
	}
	if in.MaxSteps < c.MaxSteps {
		furthest, err := s.CampaignRepo.MaxCurrentStep(ctx, id)
		if err != nil {
			return nil, err
		}
		if in.MaxSteps < furthest {
			return nil, appErrors.NewValidation("max_steps", fmt.Sprintf("a contact has already received %d steps", furthest))
		}
	}

	c.Name = strings.TrimSpace(in.Name)
	c.IntervalSeconds = in.IntervalSeconds
	c.MaxSteps = in.MaxSteps
	if err := s.CampaignRepo.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// SetActive pauses or resumes every contact of the campaign.
func (s *CampaignService) SetActive(ctx context.Context, id string, active bool) error {
	if active {
		return s.Lifecycle.CampaignReactivated(ctx, id)
	}
	return s.Lifecycle.CampaignDeactivated(ctx, id)
}

// DeleteCampaign removes the campaign and its steps. Contacts still pointing
// at it show as paused until reassigned.
func (s *CampaignService) DeleteCampaign(ctx context.Context, id string) error {
	if err := s.CampaignRepo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger().WithField("campaign_id", id).Info("campaign deleted")
	return nil
}

// ====================== Steps ======================

// withSteps loads the campaign, lets fn rewrite its step list and persists
// the result atomically.
func (s *CampaignService) withSteps(ctx context.Context, campaignID string, fn func(c *model.Campaign) ([]model.Step, error)) ([]model.Step, error) {
	s.stepsMu.Lock()
	defer s.stepsMu.Unlock()

	c, err := s.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	steps, err := fn(c)
	if err != nil {
		return nil, err
	}
	if err := s.CampaignRepo.ReplaceSteps(ctx, campaignID, steps); err != nil {
		return nil, err
	}
	return steps, nil
}

// AddStep appends a step, or inserts it at in.StepNumber shifting later
// steps up.
func (s *CampaignService) AddStep(ctx context.Context, campaignID string, in StepInput) ([]model.Step, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	st, err := newStep(campaignID, in)
	if err != nil {
		return nil, err
	}
	return s.withSteps(ctx, campaignID, func(c *model.Campaign) ([]model.Step, error) {
		if len(c.Steps)+1 > c.MaxSteps {
			return nil, appErrors.NewValidation("steps", fmt.Sprintf("campaign allows at most %d steps", c.MaxSteps))
		}
		return insertStep(c.Steps, st, in.StepNumber)
	})
}

// UpdateStep changes message or interval override. The change is picked up by
// the next due check.
func (s *CampaignService) UpdateStep(ctx context.Context, campaignID string, number int, patch StepPatch) ([]model.Step, error) {
	if err := validateStruct(patch); err != nil {
		return nil, err
	}
	if patch.Message != nil {
		if err := requireText("message", *patch.Message); err != nil {
			return nil, err
		}
	}
	return s.withSteps(ctx, campaignID, func(c *model.Campaign) ([]model.Step, error) {
		steps := sortedSteps(c.Steps)
		if number < 1 || number > len(steps) {
			return nil, appErrors.NewNotFound("step", fmt.Sprint(number))
		}
		st := &steps[number-1]
		if patch.Message != nil {
			st.Message = *patch.Message
		}
		if patch.IntervalSeconds != nil {
			if *patch.IntervalSeconds > 0 {
				v := *patch.IntervalSeconds
				st.IntervalSeconds = &v
			} else {
				st.IntervalSeconds = nil
			}
		}
		return steps, nil
	})
}

// DeleteStep removes a step and renumbers the rest down. Contacts keep their
// numeric progress, so the message a given step count maps to may shift.
func (s *CampaignService) DeleteStep(ctx context.Context, campaignID string, number int) ([]model.Step, error) {
	return s.withSteps(ctx, campaignID, func(c *model.Campaign) ([]model.Step, error) {
		steps, _, err := removeStep(c.Steps, number)
		return steps, err
	})
}

// ReorderSteps applies order, the current step numbers in their new sequence.
func (s *CampaignService) ReorderSteps(ctx context.Context, campaignID string, order []int) ([]model.Step, error) {
	return s.withSteps(ctx, campaignID, func(c *model.Campaign) ([]model.Step, error) {
		return reorderSteps(c.Steps, order)
	})
}

// Stats reports sends per step and how the campaign's contacts are spread
// across lifecycle states.
func (s *CampaignService) Stats(ctx context.Context, campaignID string) (*CampaignStats, error) {
	c, err := s.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	sent, err := s.Messages.CountByStep(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	contacts, err := s.ContactRepo.List(ctx, repository.ContactFilter{CampaignID: campaignID})
	if err != nil {
		return nil, err
	}
	acc, err := s.AccountRepo.GetByID(ctx, c.AccountID)
	if err != nil && !appErrors.IsNotFound(err) {
		return nil, err
	}

	var accounts []*model.Account
	if acc != nil {
		accounts = append(accounts, acc)
	}
	cat := lifecycle.NewCatalog(accounts, []*model.Campaign{c}, map[string][]model.Step{c.ID: c.Steps})

	stats := &CampaignStats{CampaignID: c.ID, SentByStep: sent, Contacts: map[lifecycle.State]int{}}
	for _, n := range sent {
		stats.TotalSent += n
	}
	now := nowUTC()
	for _, ct := range contacts {
		st := lifecycle.Derive(ct, cat.Snapshot(ct), now)
		stats.Contacts[st.State]++
	}
	return stats, nil
}
