// Package events publishes field group change notifications.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mikepea/fieldgroup/pkg/fieldgroup/models"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/samber/lo"
)

// Routing keys.
const (
	GroupSaved   = "field_group.saved"
	GroupDeleted = "field_group.deleted"
)

const DefaultExchange = "fieldgroup.events"

type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
	Close() error
}

// Change is the body of every event.
type Change struct {
	ConfigName string    `json:"config_name"`
	UUID       string    `json:"uuid"`
	Op         string    `json:"op"`
	At         time.Time `json:"at"`
}

// NewChange describes an operation applied to g.
func NewChange(g *models.FieldGroup, op string) Change {
	return Change{ConfigName: g.ConfigName(), UUID: g.UUID, Op: op, At: time.Now().UTC()}
}

// PublishChange encodes c and publishes it under routingKey.
func PublishChange(ctx context.Context, p Publisher, routingKey string, c Change) error {
	body, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return p.Publish(ctx, routingKey, body)
}

type RabbitPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

func NewRabbitPublisher(url string, exchange string) (*RabbitPublisher, error) {
	exchange = lo.Ternary(exchange != "", exchange, DefaultExchange)
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return &RabbitPublisher{conn: conn, ch: ch, exchange: exchange}, nil
}

func (p *RabbitPublisher) Publish(ctx context.Context, routingKey string, body []byte) error {
	return p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		Timestamp:    time.Now(),
		DeliveryMode: amqp.Persistent,
	})
}

func (p *RabbitPublisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// NopPublisher drops every event. It is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, []byte) error { return nil }
func (NopPublisher) Close() error                                  { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	Events []Recorded
}

type Recorded struct {
	RoutingKey string
	Change     Change
}

func (r *Recorder) Publish(_ context.Context, routingKey string, body []byte) error {
	var c Change
	if err := json.Unmarshal(body, &c); err != nil {
		return err
	}
	r.Events = append(r.Events, Recorded{RoutingKey: routingKey, Change: c})
	return nil
}

func (r *Recorder) Close() error { return nil }
