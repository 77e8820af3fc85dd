package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// TopicOutbound carries due drip messages to the messaging gateway.
	TopicOutbound = "drip_outbound"
	// TopicReplies carries inbound replies observed by the gateway.
	TopicReplies = "drip_replies"
)

// Handler processes one message body. A non-nil error asks for redelivery.
type Handler func(ctx context.Context, body []byte) error

// Queue interface
type Queue interface {
	Publish(ctx context.Context, topic string, body []byte) error
	Subscribe(topic string, handler Handler) error
	Close() error
}

// InMemoryQueue fans messages out to in-process subscribers with retry. It
// stands in for the broker when no AMQP_URL is configured.
type InMemoryQueue struct {
	mu         sync.Mutex
	handlers   map[string][]Handler
	wg         sync.WaitGroup
	log        logrus.FieldLogger
	MaxRetries int
	Backoff    time.Duration
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue(log logrus.FieldLogger) *InMemoryQueue {
	return &InMemoryQueue{
		handlers:   make(map[string][]Handler),
		log:        log,
		MaxRetries: 3,
		Backoff:    500 * time.Millisecond,
	}
}

// Publish sends a message to all subscribers
func (q *InMemoryQueue) Publish(ctx context.Context, topic string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	for _, handler := range handlers {
		q.wg.Add(1)
		go q.processJob(topic, handler, append([]byte(nil), body...))
	}
	return nil
}

// processJob handles retries and errors
func (q *InMemoryQueue) processJob(topic string, handler Handler, body []byte) {
	defer q.wg.Done()
	log := q.log.WithField("topic", topic)

	for attempt := 0; ; attempt++ {
		err := handler(context.Background(), body)
		if err == nil {
			return
		}
		if attempt >= q.MaxRetries {
			log.WithError(err).Errorf("job permanently failed after %d attempts", attempt+1)
			return
		}
		log.WithError(err).Warnf("job failed (attempt %d/%d)", attempt+1, q.MaxRetries+1)

		// linear backoff before retry
		time.Sleep(time.Duration(attempt+1) * q.Backoff)
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// Close waits for in-flight jobs, retries included.
func (q *InMemoryQueue) Close() error {
	q.wg.Wait()
	return nil
}
