package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/unclebandit/drip-engine/internal/model"
	"github.com/unclebandit/drip-engine/internal/repository"
)

type AccountService struct {
	AccountRepo repository.AccountRepositoryInterface
	Log         logrus.FieldLogger
}

type AccountInput struct {
	Phone  string `json:"phone" validate:"required,max=32"`
	Name   string `json:"name" validate:"max=200"`
	Tag    string `json:"tag" validate:"max=100"`
	Status string `json:"status,omitempty" validate:"omitempty,oneof=pending active error"`
}

type AccountProfile struct {
	Name string `json:"name" validate:"max=200"`
	Tag  string `json:"tag" validate:"max=100"`
}

type AccountStatusInput struct {
	Status string `json:"status" validate:"required,oneof=pending active error"`
}

func (s *AccountService) CreateAccount(ctx context.Context, in AccountInput) (*model.Account, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if err := requireText("phone", in.Phone); err != nil {
		return nil, err
	}
	a := &model.Account{
		ID:     uuid.NewString(),
		Phone:  strings.TrimSpace(in.Phone),
		Name:   strings.TrimSpace(in.Name),
		Tag:    strings.TrimSpace(in.Tag),
		Status: model.AccountPending,
	}
	if in.Status != "" {
		a.Status = model.AccountStatus(in.Status)
	}
	if err := s.AccountRepo.Create(ctx, a); err != nil {
		return nil, err
	}
	s.Log.WithFields(logrus.Fields{"account_id": a.ID, "status": a.Status}).Info("account created")
	return a, nil
}

func (s *AccountService) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	return s.AccountRepo.GetByID(ctx, id)
}

func (s *AccountService) ListAccounts(ctx context.Context) ([]*model.Account, error) {
	return s.AccountRepo.List(ctx)
}

func (s *AccountService) UpdateProfile(ctx context.Context, id string, in AccountProfile) (*model.Account, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if err := s.AccountRepo.UpdateProfile(ctx, id, strings.TrimSpace(in.Name), strings.TrimSpace(in.Tag)); err != nil {
		return nil, err
	}
	return s.AccountRepo.GetByID(ctx, id)
}

// SetStatus changes whether the account may run campaigns. Only active
// accounts get their contacts scheduled.
func (s *AccountService) SetStatus(ctx context.Context, id string, in AccountStatusInput) (*model.Account, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if err := s.AccountRepo.UpdateStatus(ctx, id, model.AccountStatus(in.Status)); err != nil {
		return nil, err
	}
	s.Log.WithFields(logrus.Fields{"account_id": id, "status": in.Status}).Info("account status changed")
	return s.AccountRepo.GetByID(ctx, id)
}

// DeleteAccount removes the account with its campaigns, steps and contacts.
func (s *AccountService) DeleteAccount(ctx context.Context, id string) error {
	if err := s.AccountRepo.Delete(ctx, id); err != nil {
		return err
	}
	s.Log.WithField("account_id", id).Info("account deleted")
	return nil
}
