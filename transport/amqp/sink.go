// Package amqp publishes outbound activities to a RabbitMQ exchange. Sink
// implements core.ActivitySink, so a host can hand the activities of every
// turn to channel connectors through a broker instead of calling them inline.
package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/logging"
)

// channel is the subset of *amqp.Channel used by Sink.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Options configure a Sink.
type Options struct {
	// RoutingKey derives the routing key of an activity. The default is
	// "activity.{channelId}.{type}".
	RoutingKey func(a core.Activity) string
	// AppID is stamped on every publishing.
	AppID  string
	Logger logging.Logger
}

// Sink publishes activities as persistent JSON messages.
type Sink struct {
	ch       channel
	exchange string
	opts     Options
	closeFn  func() error
}

// NewSink creates a sink on an already opened channel.
func NewSink(ch channel, exchange string, optFns ...func(o *Options)) *Sink {
	opts := Options{
		RoutingKey: DefaultRoutingKey,
		AppID:      "dialogmesh",
		Logger:     logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Sink{ch: ch, exchange: exchange, opts: opts, closeFn: func() error { return nil }}
}

// Dial connects to url, declares a durable topic exchange and returns a
// sink owning the connection.
func Dial(url, exchange string, optFns ...func(o *Options)) (*Sink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %q: %w", exchange, err)
	}

	s := NewSink(ch, exchange, optFns...)
	s.closeFn = func() error {
		return errors.Join(ch.Close(), conn.Close())
	}
	return s, nil
}

// DefaultRoutingKey returns "activity.{channelId}.{type}".
func DefaultRoutingKey(a core.Activity) string {
	return fmt.Sprintf("activity.%s.%s", a.ChannelID, a.Type)
}

// Send publishes each activity in order and stops at the first failure.
func (s *Sink) Send(ctx context.Context, activities []core.Activity) error {
	for _, a := range activities {
		if err := s.publish(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sink) publish(ctx context.Context, a core.Activity) error {
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal activity: %w", err)
	}

	msgID := a.ID
	if msgID == "" {
		msgID = core.NewID()
	}
	cid := a.Conversation.ID()
	if cid == "" {
		cid = msgID
	}
	ts := a.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	key := s.opts.RoutingKey(a)
	err = s.ch.PublishWithContext(ctx, s.exchange, key, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     msgID,
		CorrelationId: cid,
		Type:          a.Type,
		Timestamp:     ts,
		AppId:         s.opts.AppID,
		Body:          body,
	})
	if err != nil {
		return fmt.Errorf("publish activity %s: %w", msgID, err)
	}
	s.opts.Logger.Debug("activity.published", "key", key, "exchange", s.exchange, "activity_id", msgID)
	return nil
}

// Close releases the connection opened by Dial. It is a no-op for sinks
// created with NewSink.
func (s *Sink) Close() error {
	return s.closeFn()
}

var _ core.ActivitySink = (*Sink)(nil)
