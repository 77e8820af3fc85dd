// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

// ValidationError is a synchronous rejection of operator input. Nothing is
// written when it is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func NewValidation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFoundError is returned when a referenced record does not exist.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Kind, e.ID)
}

func NewNotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

func NewCampaignNotFound(id string) error {
	return NewNotFound("campaign", id)
}

func NewContactNotFound(id string) error {
	return NewNotFound("contact", id)
}

func NewAccountNotFound(id string) error {
	return NewNotFound("account", id)
}

// ConcurrencyConflictError means a conditional advancement lost the race:
// the stored current_step (or reply flag, or assignment) no longer matches
// what was read at due-check time.
type ConcurrencyConflictError struct {
	ContactID    string
	ExpectedStep int
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("contact %s is no longer at step %d", e.ContactID, e.ExpectedStep)
}

func NewConcurrencyConflict(contactID string, expectedStep int) error {
	return &ConcurrencyConflictError{ContactID: contactID, ExpectedStep: expectedStep}
}

// TransportFailureError wraps a sender failure. The contact stays due.
type TransportFailureError struct {
	AccountID string
	ContactID string
	Err       error
}

func (e *TransportFailureError) Error() string {
	return fmt.Sprintf("send to contact %s via account %s failed: %v", e.ContactID, e.AccountID, e.Err)
}

func (e *TransportFailureError) Unwrap() error {
	return e.Err
}

func NewTransportFailure(accountID, contactID string, err error) error {
	return &TransportFailureError{AccountID: accountID, ContactID: contactID, Err: err}
}

// MissingReferenceError flags a dangling id, e.g. a contact whose campaign
// was deleted. It is a data-integrity warning, never fatal.
type MissingReferenceError struct {
	Kind string
	ID   string
}

func (e *MissingReferenceError) Error() string {
	return fmt.Sprintf("dangling %s reference %s", e.Kind, e.ID)
}

func NewMissingReference(kind, id string) error {
	return &MissingReferenceError{Kind: kind, ID: id}
}

// InvalidTransitionError is returned when a lifecycle event does not apply
// to the contact's current state.
type InvalidTransitionError struct {
	ContactID string
	From      string
	Event     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot apply %s to contact %s in state %s", e.Event, e.ContactID, e.From)
}

func NewInvalidTransition(contactID, from, event string) error {
	return &InvalidTransitionError{ContactID: contactID, From: from, Event: event}
}

// EnrollmentPausedError reports an enrollment that was recorded but cannot
// run yet because the campaign is inactive or has no steps.
type EnrollmentPausedError struct {
	CampaignID string
	Reason     string
}

func (e *EnrollmentPausedError) Error() string {
	return fmt.Sprintf("enrolled in campaign %s but paused: %s", e.CampaignID, e.Reason)
}

func NewEnrollmentPaused(campaignID, reason string) error {
	return &EnrollmentPausedError{CampaignID: campaignID, Reason: reason}
}

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsConflict(err error) bool {
	var target *ConcurrencyConflictError
	return errors.As(err, &target)
}
