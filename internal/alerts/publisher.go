package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/streadway/amqp"

	"github.com/hotdog2030/hotdog-etl/internal/logging"
)

// Publisher fans detected alerts out to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, alerts []Alert) error
	Close() error
}

// NopPublisher drops alerts.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, []Alert) error { return nil }
func (NopPublisher) Close() error                           { return nil }

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes every alert as JSON to a topic exchange with
// routing key alert.<type>.
type AMQPPublisher struct {
	conn     *amqp.Connection
	ch       channel
	exchange string
}

// NewAMQPPublisher connects and declares a durable topic exchange.
func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange, // name
		"topic",  // kind
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("amqp exchange %s: %w", exchange, err)
	}

	logging.Info().Str("exchange", exchange).Msg("Alert publisher connected")
	return &AMQPPublisher{conn: conn, ch: ch, exchange: exchange}, nil
}

// RoutingKey is the routing key of an alert type.
func RoutingKey(alertType string) string {
	return "alert." + strings.ToLower(alertType)
}

// Publish sends each alert as a persistent message.
func (p *AMQPPublisher) Publish(ctx context.Context, alerts []Alert) error {
	for _, a := range alerts {
		if err := ctx.Err(); err != nil {
			return err
		}
		body, err := json.Marshal(a)
		if err != nil {
			return err
		}
		err = p.ch.Publish(
			p.exchange,         // exchange
			RoutingKey(a.Type), // routing key
			false,              // mandatory
			false,              // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				Body:         body,
			})
		if err != nil {
			return fmt.Errorf("publish %s for store %d: %w", a.Type, a.StoreID, err)
		}
	}
	return nil
}

// Close closes the channel and the connection.
func (p *AMQPPublisher) Close() error {
	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
