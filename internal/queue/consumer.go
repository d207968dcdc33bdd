package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/dac-governance/internal/utils/logger"
)

// Consumer drains the notification and match queues and appends one line
// per message to files under dir.  Delivery of real mail and the matching
// algorithm live outside this service; the log files are their hand-off.
type Consumer struct {
	url string
	dir string
	log *logger.Logger
}

func NewConsumer(url, dir string, log *logger.Logger) *Consumer {
	if log == nil {
		log = logger.Discard()
	}
	return &Consumer{url: url, dir: dir, log: log}
}

// Run keeps a connection to the broker until ctx is done, reconnecting
// with exponential backoff.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.DialConfig(c.url, amqp.Config{Dial: amqp.DefaultDial(dialTimeout)})
		if err != nil {
			c.log.Warn("consumer: dial failed: %v; retrying in %s", err, backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn("consumer: %v; reconnecting", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.Warn("consumer: set QoS failed: %v", err)
	}

	handlers := map[string]func([]byte) error{
		notificationQueue: c.handleNotification,
		matchQueue:        c.handleMatch,
	}
	merged := make(chan delivery)
	for queue, handle := range handlers {
		if _, err := declare(ch, queue); err != nil {
			return fmt.Errorf("queue declare %s: %w", queue, err)
		}
		msgs, err := ch.Consume(queue, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("queue consume %s: %w", queue, err)
		}
		go forward(ctx, msgs, handle, merged)
	}
	c.log.Info("consumer: listening on %s and %s", notificationQueue, matchQueue)

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case amqpErr := <-closed:
			if amqpErr == nil {
				return errors.New("connection closed")
			}
			return amqpErr
		case d := <-merged:
			if err := d.handle(d.Body); err != nil {
				c.log.Warn("consumer: %s message rejected: %v", d.RoutingKey, err)
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

type delivery struct {
	amqp.Delivery
	handle func([]byte) error
}

func forward(ctx context.Context, msgs <-chan amqp.Delivery, handle func([]byte) error, out chan<- delivery) {
	for d := range msgs {
		select {
		case out <- delivery{Delivery: d, handle: handle}:
		case <-ctx.Done():
			return
		}
	}
}

func (c *Consumer) handleNotification(body []byte) error {
	var ev NotificationEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Kind == "" {
		return errors.New("notification without kind")
	}
	return c.appendLine("notifications.log", formatNotification(ev))
}

func (c *Consumer) handleMatch(body []byte) error {
	var ev MatchEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.ReferenceID == "" {
		return errors.New("match request without reference id")
	}
	return c.appendLine("match.log", fmt.Sprintf("[%s] Match reprocess requested | reference_id=%s\n", ev.RequestedAt, ev.ReferenceID))
}

func (c *Consumer) appendLine(name, line string) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", c.dir, err)
	}
	f, err := os.OpenFile(filepath.Join(c.dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

func formatNotification(ev NotificationEvent) string {
	recipients := make([]string, len(ev.Recipients))
	for i, id := range ev.Recipients {
		recipients[i] = fmt.Sprint(id)
	}
	keys := make([]string, 0, len(ev.Data))
	for k := range ev.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var data strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&data, " | %s=%q", k, ev.Data[k])
	}
	return fmt.Sprintf("[%s] Notification %s | recipients=[%s]%s\n",
		ev.SentAt, ev.Kind, strings.Join(recipients, ","), data.String())
}

// sleep waits for d or until ctx is done.  It reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
