// Package broker wraps the AMQP command queue: publishing SFTP
// download commands (Scanner), consuming them with ack/nack feedback
// (Consumer), and publishing notifier messages (Target Sink). No repo
// in the example pack imports an AMQP client directly; the reconnect-
// with-backoff shape here is grounded on birdnet-go's
// internal/mqtt/client.go (Connect/reconnectWithBackoff), the pack's
// closest pub/sub analog. See DESIGN.md Open Question 4.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/1Optic/cortex-dispatcher/internal/core"
	direrrors "github.com/1Optic/cortex-dispatcher/internal/errors"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Client owns one AMQP connection/channel pair and knows how to
// rebuild it on connection loss, mirroring client.reconnectWithBackoff
// (birdnet-go, internal/mqtt/client.go).
type Client struct {
	url string

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewClient returns a Client that is not yet connected; call Connect
// before use.
func NewClient(url string) *Client {
	return &Client{url: url}
}

// Connect dials the broker and opens a channel, replacing any prior
// connection.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := amqp.DialConfig(c.url, amqp.Config{})
	if err != nil {
		return direrrors.New(err).Component("broker").
			Category(direrrors.CategoryConnection).Context("operation", "dial").Build()
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return direrrors.New(err).Component("broker").
			Category(direrrors.CategoryConnection).Context("operation", "open_channel").Build()
	}

	c.conn = conn
	c.channel = ch
	return nil
}

// ReconnectWithBackoff retries Connect with exponential backoff from
// 1s up to 5m, mirroring birdnet-go's reconnectWithBackoff, until
// success or shutdown fires.
func (c *Client) ReconnectWithBackoff(shutdown *core.Shutdown) {
	backoff := time.Second
	maxBackoff := 5 * time.Minute

	for {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := c.Connect(ctx)
		cancel()
		if err == nil {
			return
		}

		select {
		case <-time.After(backoff):
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		case <-shutdown.Ctx.Done():
			return
		}
	}
}

// Close tears down the channel and connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var chErr, connErr error
	if c.channel != nil {
		chErr = c.channel.Close()
	}
	if c.conn != nil {
		connErr = c.conn.Close()
	}
	if chErr != nil {
		return chErr
	}
	return connErr
}

// PublishDownload enqueues an SftpDownload command to the exchange
// named after the source, bounding the publish by timeout. A publish
// that runs into the timeout is reported as a Connection error and any
// other publish failure as a Disconnected error, so a caller following
// sftp_scanner.rs's send-with-timeout-and-retry (original_source)
// retries the timeout and not the disconnect.
func (c *Client) PublishDownload(ctx context.Context, sourceName string, cmd core.SftpDownload, timeout time.Duration) error {
	body, err := json.Marshal(cmd)
	if err != nil {
		return direrrors.New(err).Component("broker").
			Category(direrrors.CategoryOther).Context("operation", "marshal_command").Build()
	}

	c.mu.Lock()
	ch := c.channel
	c.mu.Unlock()
	if ch == nil {
		return direrrors.Newf("broker channel not connected").Component("broker").
			Category(direrrors.CategoryDisconnected).Build()
	}

	if err := declareSourceTopology(ch, sourceName); err != nil {
		return err
	}

	publishCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err = ch.PublishWithContext(publishCtx, sourceName, sourceName, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		category := direrrors.CategoryDisconnected
		if errors.Is(err, context.DeadlineExceeded) {
			category = direrrors.CategoryConnection
		}
		return direrrors.New(err).Component("broker").
			Category(category).
			Context("operation", "publish").Context("source", sourceName).Build()
	}
	return nil
}

// PublishNotification publishes an arbitrary string body to
// (exchange, routingKey), used by the Target Sink's notifier.
func (c *Client) PublishNotification(ctx context.Context, exchange, routingKey, body string) error {
	c.mu.Lock()
	ch := c.channel
	c.mu.Unlock()
	if ch == nil {
		return direrrors.Newf("broker channel not connected").Component("broker").
			Category(direrrors.CategoryDisconnected).Build()
	}

	return ch.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		ContentType: "text/plain",
		Body:        []byte(body),
	})
}

// ConsumeSource opens a consumer on the named source's queue and
// returns a channel of decoded (delivery tag, SftpDownload) pairs,
// implementing the Command Consumer of spec.md §4.5.
func (c *Client) ConsumeSource(ctx context.Context, sourceName string) (<-chan Delivery, error) {
	c.mu.Lock()
	ch := c.channel
	c.mu.Unlock()
	if ch == nil {
		return nil, direrrors.Newf("broker channel not connected").Component("broker").
			Category(direrrors.CategoryDisconnected).Build()
	}

	if err := declareSourceTopology(ch, sourceName); err != nil {
		return nil, err
	}

	deliveries, err := ch.ConsumeWithContext(ctx, sourceName, "", false, false, false, false, nil)
	if err != nil {
		return nil, direrrors.New(err).Component("broker").
			Category(direrrors.CategoryConnection).Context("operation", "consume").Build()
	}

	out := make(chan Delivery, 10)
	go func() {
		defer close(out)
		for d := range deliveries {
			var cmd core.SftpDownload
			if err := json.Unmarshal(d.Body, &cmd); err != nil {
				_ = d.Nack(false, false)
				continue
			}
			select {
			case out <- Delivery{Tag: d.DeliveryTag, Command: cmd, raw: d}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// topologyDeclarer is the narrow slice of *amqp.Channel that
// declareSourceTopology needs, so its logic can be exercised against a
// fake in tests without a live broker connection.
type topologyDeclarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// declareSourceTopology idempotently declares the direct exchange and
// queue named after sourceName and binds the queue to the exchange
// under the same routing key, so publish and consume agree on a
// concrete topology instead of relying on an implicit default-exchange
// binding. Safe to call repeatedly; RabbitMQ no-ops a redeclare of an
// identical exchange/queue.
func declareSourceTopology(ch topologyDeclarer, sourceName string) error {
	if err := ch.ExchangeDeclare(sourceName, "direct", true, false, false, false, nil); err != nil {
		return direrrors.New(err).Component("broker").
			Category(direrrors.CategoryConnection).Context("operation", "exchange_declare").Build()
	}
	if _, err := ch.QueueDeclare(sourceName, true, false, false, false, nil); err != nil {
		return direrrors.New(err).Component("broker").
			Category(direrrors.CategoryConnection).Context("operation", "queue_declare").Build()
	}
	if err := ch.QueueBind(sourceName, sourceName, sourceName, false, nil); err != nil {
		return direrrors.New(err).Component("broker").
			Category(direrrors.CategoryConnection).Context("operation", "queue_bind").Build()
	}
	return nil
}

// Delivery pairs a decoded command with the raw AMQP delivery needed
// to ack/nack it.
type Delivery struct {
	Tag     uint64
	Command core.SftpDownload
	raw     amqp.Delivery
}

// Ack acknowledges the underlying delivery.
func (d Delivery) Ack() error { return d.raw.Ack(false) }

// Nack negatively acknowledges the underlying delivery without
// requeueing. The command's sftp_download row stays in the catalog, so
// a scanner with deduplication enabled skips the file on later scans;
// without deduplication the next scan enqueues it again if it is still
// present.
func (d Delivery) Nack() error { return d.raw.Nack(false, false) }
