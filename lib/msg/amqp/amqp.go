// Package amqp implements the message broker interface for AMQP compliant brokers (ie RabbitMQ)
package amqp

import (
	"encoding/json"
	"sync"

	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/tarancss/stakewallet/lib/msg"
)

// Exchange is the topic exchange wallet events are published to ("wallet events").
const Exchange = "we"

// Amqp implements a connection to a broker and a channel for reuse.
type Amqp struct {
	conn *amqp.Connection
	mu   sync.Mutex // guards ch
	ch   *amqp.Channel
	log  *zap.Logger
}

// New instantiates a new amqp broker.
func New(uri string, log *zap.Logger) (*Amqp, error) {
	if log == nil {
		log = zap.NewNop()
	}

	r := Amqp{log: log.With(zap.String("component", "amqp"))}

	var err error
	if r.conn, err = amqp.Dial(uri); err != nil {
		return nil, err
	}

	r.log.Info("connected to message broker")

	return &r, nil
}

// Setup declares the message broker exchange on a one-use channel:
//
// - we ("wallet events"): the wallet service publishes record changes to this exchange
func (r *Amqp) Setup() error {
	channel, err := r.conn.Channel()
	if err != nil {
		return err
	}
	defer channel.Close()

	return channel.ExchangeDeclare(Exchange, amqp.ExchangeTopic, true, false, false, false, nil)
}

// Close terminates gracefully the connection to the AMQP message broker
func (r *Amqp) Close() error {
	r.mu.Lock()
	if r.ch != nil {
		if err := r.ch.Close(); err != nil {
			r.log.Warn("error closing amqp channel", zap.Error(err))
		}

		r.ch = nil
	}
	r.mu.Unlock()

	return r.conn.Close()
}

// channel returns the reusable channel, opening it if not present.
func (r *Amqp) channel() (*amqp.Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ch == nil {
		ch, err := r.conn.Channel()
		if err != nil {
			return nil, err
		}

		r.ch = ch
	}

	return r.ch, nil
}

// reset drops the reusable channel after a failure so the next call opens a new one.
func (r *Amqp) reset(ch *amqp.Channel) {
	r.mu.Lock()
	if r.ch == ch {
		_ = r.ch.Close()
		r.ch = nil
	}
	r.mu.Unlock()
}

// SendEvent publishes a wallet event to the "we" exchange
func (r *Amqp) SendEvent(e msg.WalletEvent) error {
	jsonDoc, err := json.Marshal(e)
	if err != nil {
		return err
	}

	ch, err := r.channel()
	if err != nil {
		return err
	}

	m := amqp.Publishing{
		Headers:      amqp.Table{"x-event-name": e.Name()},
		Body:         jsonDoc,
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    e.At,
	}

	if err = ch.Publish(Exchange, e.RoutingKey(), false, false, m); err != nil {
		r.log.Error("error sending event to message broker", zap.String("net", e.Net), zap.String("event", e.Name()),
			zap.Int64("id", e.ID), zap.Error(err))
		r.reset(ch)

		return err
	}

	return nil
}

// GetEvents consumes events for net from the "we" exchange pushing them to the returned channel. The Mutex pointer is
// provided to ensure the consumed message has been fully dealt with by the management function, so the message
// consumed is only acknowledged when the mutex is unlocked.
func (r *Amqp) GetEvents(net string, mut *sync.Mutex) (<-chan msg.WalletEvent, <-chan error, error) {
	ch, err := r.channel()
	if err != nil {
		return nil, nil, err
	}

	queue := Exchange + net

	if _, err = ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return nil, nil, err
	}

	if err = ch.QueueBind(queue, net+".*.*", Exchange, false, nil); err != nil {
		return nil, nil, err
	}

	msgs, err := ch.Consume(queue, "stakewallet-"+net, false, false, false, false, nil)
	if err != nil {
		return nil, nil, err
	}

	eves := make(chan msg.WalletEvent)
	errs := make(chan error)

	go func() {
		defer close(eves)

		for m := range msgs {
			var e msg.WalletEvent
			if err := json.Unmarshal(m.Body, &e); err != nil {
				_ = m.Nack(false, false)
				errs <- err

				continue
			}

			eves <- e
			mut.Lock() // wait for the consumer to finish processing the event
			_ = m.Ack(false)
		}
	}()

	return eves, errs, nil
}
