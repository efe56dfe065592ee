package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pesio-ai/be-brgy-identity/internal/logger"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher publishes a JSON body to an exchange.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body any) error
	Close()
}

// EventProducer publishes events to a durable RabbitMQ topic exchange.
type EventProducer struct {
	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	log     *logger.Logger
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// NewEventProducer dials RabbitMQ and opens a channel.
func NewEventProducer(amqpURL string, log *logger.Logger) (*EventProducer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp.DialConfig(cleanURL, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &EventProducer{conn: conn, channel: ch, log: log}, nil
}

// Publish declares the exchange and publishes body as JSON. A failed publish
// reopens the channel and is retried once.
func (p *EventProducer) Publish(ctx context.Context, exchange, routingKey string, body any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.publish(ctx, exchange, routingKey, jsonBody)
	if err == nil {
		return nil
	}

	p.log.Warn().Err(err).Str("exchange", exchange).Msg("Publish failed, reopening channel")
	ch, chErr := p.conn.Channel()
	if chErr != nil {
		return chErr
	}
	p.channel = ch
	return p.publish(ctx, exchange, routingKey, jsonBody)
}

func (p *EventProducer) publish(ctx context.Context, exchange, routingKey string, body []byte) error {
	if err := p.channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return err
	}
	return p.channel.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
}

// Close closes the channel and connection.
func (p *EventProducer) Close() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}

// BrokerNotifier publishes CodeIssued events for the delivery service.
type BrokerNotifier struct {
	publisher Publisher
	exchange  string
	log       *logger.Logger
}

// NewBrokerNotifier creates a notifier publishing to exchange.
func NewBrokerNotifier(publisher Publisher, exchange string, log *logger.Logger) *BrokerNotifier {
	return &BrokerNotifier{publisher: publisher, exchange: exchange, log: log}
}

func (n *BrokerNotifier) CodeIssued(ctx context.Context, event CodeIssued) error {
	if err := n.publisher.Publish(ctx, n.exchange, RoutingKeyCodeIssued, event); err != nil {
		n.log.Error().Err(err).Str("account_id", event.AccountID).Msg("Failed to publish code issued event")
		return err
	}

	n.log.Debug().
		Str("account_id", event.AccountID).
		Str("purpose", event.Purpose).
		Str("code", logger.MaskCode(event.Code)).
		Msg("Code issued event published")
	return nil
}
