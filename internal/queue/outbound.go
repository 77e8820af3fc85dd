package queue

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"
)

// OutboundMessage is one rendered drip step handed to the messaging gateway.
type OutboundMessage struct {
	AccountID      string `json:"account_id"`
	ContactID      string `json:"contact_id"`
	ExternalUserID string `json:"external_user_id"`
	Step           int    `json:"step"`
	Text           string `json:"text"`
}

// Publisher is the coordinator's sender. A message counts as sent once the
// broker has accepted it; delivery to the platform is the gateway's job.
type Publisher struct {
	Queue Queue
	Topic string
}

func NewPublisher(q Queue) *Publisher {
	return &Publisher{Queue: q, Topic: TopicOutbound}
}

func (p *Publisher) Send(ctx context.Context, msg OutboundMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return p.Queue.Publish(ctx, p.Topic, body)
}

// StartLogGateway subscribes a gateway that only logs outbound messages.
// Used in development when no real gateway consumes the topic.
func StartLogGateway(q Queue, log logrus.FieldLogger) error {
	return q.Subscribe(TopicOutbound, func(ctx context.Context, body []byte) error {
		var msg OutboundMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			log.WithError(err).Warn("invalid outbound payload")
			return nil
		}
		log.WithFields(logrus.Fields{
			"account_id":       msg.AccountID,
			"contact_id":       msg.ContactID,
			"external_user_id": msg.ExternalUserID,
			"step":             msg.Step,
		}).Infof("gateway send: %q", msg.Text)
		return nil
	})
}
