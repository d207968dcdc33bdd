package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/dac-governance/internal/service"
	"github.com/iliyamo/dac-governance/internal/utils/logger"
)

const dialTimeout = 5 * time.Second

// Publisher sends events to the broker.  It implements service.Notifier
// and service.Matcher.  Each publish opens its own connection, so a broker
// outage only fails the publishes made while it lasts.
type Publisher struct {
	url string
	log *logger.Logger
	now func() time.Time
}

var (
	_ service.Notifier = (*Publisher)(nil)
	_ service.Matcher  = (*Publisher)(nil)
)

func NewPublisher(url string, log *logger.Logger) *Publisher {
	if log == nil {
		log = logger.Discard()
	}
	return &Publisher{url: url, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// Send publishes a NotificationEvent.
func (p *Publisher) Send(ctx context.Context, kind service.NotificationKind, recipients []uint64, data map[string]string) error {
	return p.publish(ctx, notificationQueue, NotificationEvent{
		Kind:       string(kind),
		Recipients: recipients,
		Data:       data,
		SentAt:     p.now().Format(time.RFC3339),
	})
}

// Reprocess publishes a MatchEvent.
func (p *Publisher) Reprocess(ctx context.Context, referenceID string) error {
	return p.publish(ctx, matchQueue, MatchEvent{
		ReferenceID: referenceID,
		RequestedAt: p.now().Format(time.RFC3339),
	})
}

func (p *Publisher) publish(ctx context.Context, queue string, event interface{}) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", queue, err)
	}

	conn, err := amqp.DialConfig(p.url, amqp.Config{Dial: amqp.DefaultDial(dialTimeout)})
	if err != nil {
		return p.log.Error("rabbitmq dial", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return p.log.Error("rabbitmq channel open", err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := declare(ch, queue); err != nil {
		return p.log.Error("rabbitmq queue declare %s", err, queue)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    p.now(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", queue, false, false, pub); err != nil {
		return p.log.Error("rabbitmq publish to %s", err, queue)
	}
	p.log.Debug("published to %s: %s", queue, body)
	return nil
}

// declare creates queue as durable.  Publisher and consumer must agree on
// the arguments or the broker closes the channel.
func declare(ch *amqp.Channel, queue string) (amqp.Queue, error) {
	return ch.QueueDeclare(queue, true, false, false, false, nil)
}
