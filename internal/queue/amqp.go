package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

// AMQPQueue maps topics onto durable RabbitMQ queues on the default exchange.
type AMQPQueue struct {
	conn *amqp.Connection
	log  logrus.FieldLogger

	mu       sync.Mutex
	pub      *amqp.Channel
	declared map[string]bool
	subs     []*amqp.Channel
	wg       sync.WaitGroup
}

func DialAMQP(url string, log logrus.FieldLogger) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open publish channel: %w", err)
	}
	return &AMQPQueue{conn: conn, pub: ch, log: log, declared: map[string]bool{}}, nil
}

func declare(ch *amqp.Channel, topic string) error {
	_, err := ch.QueueDeclare(
		topic, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	return err
}

func (q *AMQPQueue) Publish(ctx context.Context, topic string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.declared[topic] {
		if err := declare(q.pub, topic); err != nil {
			return fmt.Errorf("declare queue %s: %w", topic, err)
		}
		q.declared[topic] = true
	}

	return q.pub.Publish("", topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
}

// Subscribe consumes topic with manual acks. A failed delivery is requeued
// once; a second failure drops it.
func (q *AMQPQueue) Subscribe(topic string, handler Handler) error {
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("open consume channel: %w", err)
	}
	if err := declare(ch, topic); err != nil {
		ch.Close()
		return fmt.Errorf("declare queue %s: %w", topic, err)
	}
	if err := ch.Qos(16, 0, false); err != nil {
		ch.Close()
		return err
	}

	msgs, err := ch.Consume(
		topic,
		"",
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		return fmt.Errorf("register consumer: %w", err)
	}

	q.mu.Lock()
	q.subs = append(q.subs, ch)
	q.mu.Unlock()

	log := q.log.WithField("topic", topic)
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for d := range msgs {
			err := handler(context.Background(), d.Body)
			switch {
			case err == nil:
				d.Ack(false)
			case !d.Redelivered:
				log.WithError(err).Warn("delivery failed, requeueing")
				d.Nack(false, true)
			default:
				log.WithError(err).Error("redelivery failed, dropping")
				d.Nack(false, false)
			}
		}
	}()
	return nil
}

// Close stops consumers, waits for their handlers and closes the connection.
func (q *AMQPQueue) Close() error {
	q.mu.Lock()
	subs := q.subs
	q.subs = nil
	q.mu.Unlock()

	for _, ch := range subs {
		ch.Close()
	}
	q.wg.Wait()
	q.pub.Close()
	return q.conn.Close()
}

var (
	_ Queue = (*AMQPQueue)(nil)
	_ Queue = (*InMemoryQueue)(nil)
)
