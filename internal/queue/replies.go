package queue

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"

	appErrors "github.com/unclebandit/drip-engine/internal/errors"
)

// ReplyEvent identifies the replying contact either directly or by platform
// identity within an account.
type ReplyEvent struct {
	ContactID      string `json:"contact_id,omitempty"`
	AccountID      string `json:"account_id,omitempty"`
	ExternalUserID string `json:"external_user_id,omitempty"`
}

type ReplyReceiver interface {
	ReplyReceived(ctx context.Context, contactID string) (bool, error)
	ReplyFromUser(ctx context.Context, accountID, externalUserID string) (string, bool, error)
}

// ReplyListener applies inbound replies. Deliveries may repeat; the
// transition is idempotent.
type ReplyListener struct {
	Queue   Queue
	Replies ReplyReceiver
	Log     logrus.FieldLogger
}

func (l *ReplyListener) Start() error {
	return l.Queue.Subscribe(TopicReplies, l.Handle)
}

// Handle applies one reply. Malformed payloads and unknown contacts are
// dropped; storage errors are returned for redelivery.
func (l *ReplyListener) Handle(ctx context.Context, body []byte) error {
	var ev ReplyEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		l.Log.WithError(err).Warn("invalid reply payload, dropping")
		return nil
	}

	var (
		contactID = ev.ContactID
		changed   bool
		err       error
	)
	switch {
	case ev.ContactID != "":
		changed, err = l.Replies.ReplyReceived(ctx, ev.ContactID)
	case ev.AccountID != "" && ev.ExternalUserID != "":
		contactID, changed, err = l.Replies.ReplyFromUser(ctx, ev.AccountID, ev.ExternalUserID)
	default:
		l.Log.WithField("payload", string(body)).Warn("reply without contact reference, dropping")
		return nil
	}

	log := l.Log.WithFields(logrus.Fields{"contact_id": contactID, "account_id": ev.AccountID})
	if err != nil {
		if appErrors.IsNotFound(err) {
			log.WithError(err).Warn("reply for unknown contact, dropping")
			return nil
		}
		return err
	}
	if !changed {
		log.Debug("duplicate reply ignored")
	}
	return nil
}
