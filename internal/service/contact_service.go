package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	appErrors "github.com/unclebandit/drip-engine/internal/errors"
	"github.com/unclebandit/drip-engine/internal/lifecycle"
	"github.com/unclebandit/drip-engine/internal/model"
	"github.com/unclebandit/drip-engine/internal/repository"
)

// ContactLifecycle is the part of lifecycle.Machine that operators drive.
type ContactLifecycle interface {
	Enroll(ctx context.Context, contactID, campaignID string) (lifecycle.Status, error)
	Reassign(ctx context.Context, contactID string, campaignID *string) (lifecycle.Status, error)
	ReplyReceived(ctx context.Context, contactID string) (bool, error)
	Describe(ctx context.Context, contactID string) (lifecycle.Status, error)
	CampaignFor(ctx context.Context, accountID, campaignID string) (*model.Campaign, error)
}

type ContactService struct {
	ContactRepo repository.ContactRepositoryInterface
	AccountRepo repository.AccountRepositoryInterface
	Lifecycle   ContactLifecycle
	Log         logrus.FieldLogger
}

type ContactInput struct {
	AccountID      string  `json:"account_id" validate:"required"`
	ExternalUserID string  `json:"external_user_id" validate:"required,max=200"`
	Name           string  `json:"name" validate:"max=200"`
	Tag            string  `json:"tag" validate:"max=100"`
	CampaignID     *string `json:"campaign_id,omitempty"`
}

type ContactProfile struct {
	Name string `json:"name" validate:"max=200"`
	Tag  string `json:"tag" validate:"max=100"`
}

// ContactView is a contact together with its derived lifecycle status.
type ContactView struct {
	*model.Contact
	Next lifecycle.Status `json:"next"`
}

// CreateContact stores an unassigned contact and, when a campaign is given,
// enrolls it. The campaign is checked before anything is written. An
// EnrollmentPausedError is returned together with the created contact; any
// other enrollment failure leaves no contact behind.
func (s *ContactService) CreateContact(ctx context.Context, in ContactInput) (*ContactView, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if err := requireText("external_user_id", in.ExternalUserID); err != nil {
		return nil, err
	}
	if _, err := s.AccountRepo.GetByID(ctx, in.AccountID); err != nil {
		return nil, err
	}
	enroll := in.CampaignID != nil && *in.CampaignID != ""
	if enroll {
		if _, err := s.Lifecycle.CampaignFor(ctx, in.AccountID, *in.CampaignID); err != nil {
			return nil, err
		}
	}

	c := &model.Contact{
		ID:             uuid.NewString(),
		AccountID:      in.AccountID,
		ExternalUserID: strings.TrimSpace(in.ExternalUserID),
		Name:           strings.TrimSpace(in.Name),
		Tag:            strings.TrimSpace(in.Tag),
	}
	if err := s.ContactRepo.Create(ctx, c); err != nil {
		return nil, err
	}
	s.Log.WithFields(logrus.Fields{"contact_id": c.ID, "account_id": c.AccountID}).Info("contact created")

	if !enroll {
		return s.GetContact(ctx, c.ID)
	}
	if _, err := s.Lifecycle.Enroll(ctx, c.ID, *in.CampaignID); err != nil {
		var paused *appErrors.EnrollmentPausedError
		if !errors.As(err, &paused) {
			// only a paused enrollment keeps the row
			if derr := s.ContactRepo.Delete(ctx, c.ID); derr != nil {
				s.Log.WithError(derr).WithField("contact_id", c.ID).Error("failed to remove contact after rejected enrollment")
			}
			return nil, err
		}
		view, gerr := s.GetContact(ctx, c.ID)
		if gerr != nil {
			return nil, gerr
		}
		return view, err
	}
	return s.GetContact(ctx, c.ID)
}

func (s *ContactService) GetContact(ctx context.Context, id string) (*ContactView, error) {
	c, err := s.ContactRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	st, err := s.Lifecycle.Describe(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ContactView{Contact: c, Next: st}, nil
}

func (s *ContactService) ListContacts(ctx context.Context, filter repository.ContactFilter) ([]*model.Contact, error) {
	return s.ContactRepo.List(ctx, filter)
}

// UpdateProfile edits name and tag; scheduling fields are never touched here.
func (s *ContactService) UpdateProfile(ctx context.Context, id string, in ContactProfile) (*ContactView, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if err := s.ContactRepo.UpdateProfile(ctx, id, strings.TrimSpace(in.Name), strings.TrimSpace(in.Tag)); err != nil {
		return nil, err
	}
	return s.GetContact(ctx, id)
}

// DeleteContact removes the contact; the next sweep no longer sees it.
func (s *ContactService) DeleteContact(ctx context.Context, id string) error {
	if err := s.ContactRepo.Delete(ctx, id); err != nil {
		return err
	}
	s.Log.WithField("contact_id", id).Info("contact deleted")
	return nil
}

// AssignCampaign reassigns the contact, or unassigns it when campaignID is nil.
func (s *ContactService) AssignCampaign(ctx context.Context, id string, campaignID *string) (*ContactView, error) {
	_, err := s.Lifecycle.Reassign(ctx, id, campaignID)
	if err != nil {
		view, gerr := s.GetContact(ctx, id)
		if gerr != nil {
			return nil, err
		}
		return view, err
	}
	return s.GetContact(ctx, id)
}

// MarkReplied stops the contact's sequence. Repeating it is a no-op.
func (s *ContactService) MarkReplied(ctx context.Context, id string) (*ContactView, error) {
	if _, err := s.Lifecycle.ReplyReceived(ctx, id); err != nil {
		return nil, err
	}
	return s.GetContact(ctx, id)
}

// NextMessage describes the contact's next message.
func (s *ContactService) NextMessage(ctx context.Context, id string) (lifecycle.Status, error) {
	return s.Lifecycle.Describe(ctx, id)
}
