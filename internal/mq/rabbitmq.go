package mq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gallery-app/apiserver/config"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQClient publishes to and consumes from queues on the default exchange.
// Publishing and consuming use separate AMQP channels; publishes are serialized.
type RabbitMQClient struct {
	conn    *amqp.Connection
	pub     *amqp.Channel
	durable bool
	auto    bool
	qos     int

	mu       sync.Mutex
	declared map[string]bool
}

func NewRabbitMQClient(cfg config.RabbitMQConfig) (*RabbitMQClient, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("rabbitmq url is required")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, err
	}
	pub, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	return &RabbitMQClient{
		conn:     conn,
		pub:      pub,
		durable:  cfg.QueueDurable,
		auto:     cfg.QueueAutoDelete,
		qos:      cfg.PrefetchCount,
		declared: make(map[string]bool),
	}, nil
}

func (r *RabbitMQClient) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("rabbitmq channel is required")
	}

	msg := toPublishing(data, attrs, r.durable)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.declareLocked(r.pub, channel); err != nil {
		return "", err
	}
	if err := r.pub.PublishWithContext(ctx, "", channel, false, false, msg); err != nil {
		return "", fmt.Errorf("publish to %s: %w", channel, err)
	}
	return msg.MessageId, nil
}

// Subscribe consumes the queue on its own channel until ctx is done.
// A handler error requeues the delivery.
func (r *RabbitMQClient) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("rabbitmq channel is required")
	}

	ch, err := r.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if r.qos > 0 {
		if err := ch.Qos(r.qos, 0, false); err != nil {
			return err
		}
	}
	r.mu.Lock()
	err = r.declareLocked(ch, channel)
	r.mu.Unlock()
	if err != nil {
		return err
	}

	tag := "gallery-" + uuid.NewString()
	deliveries, err := ch.Consume(channel, tag, false, false, false, false, nil)
	if err != nil {
		return err
	}
	defer func() { _ = ch.Cancel(tag, false) }()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("rabbitmq delivery channel closed")
			}
			if err := handler(ctx, fromDelivery(delivery)); err != nil {
				_ = delivery.Nack(false, true)
				continue
			}
			_ = delivery.Ack(false)
		}
	}
}

func (r *RabbitMQClient) Close() error {
	_ = r.pub.Close()
	return r.conn.Close()
}

func (r *RabbitMQClient) declareLocked(ch *amqp.Channel, name string) error {
	if r.declared[name] {
		return nil
	}
	if _, err := ch.QueueDeclare(name, r.durable, r.auto, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", name, err)
	}
	r.declared[name] = true
	return nil
}

func toPublishing(data []byte, attrs map[string]string, persistent bool) amqp.Publishing {
	headers := amqp.Table{}
	for key, value := range attrs {
		if key != AttrContentType {
			headers[key] = value
		}
	}
	contentType := attrs[AttrContentType]
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	mode := amqp.Transient
	if persistent {
		mode = amqp.Persistent
	}
	return amqp.Publishing{
		ContentType:  contentType,
		DeliveryMode: mode,
		MessageId:    uuid.NewString(),
		Headers:      headers,
		Body:         data,
	}
}

func fromDelivery(d amqp.Delivery) Message {
	attrs := make(map[string]string, len(d.Headers)+1)
	for key, value := range d.Headers {
		switch v := value.(type) {
		case string:
			attrs[key] = v
		case []byte:
			attrs[key] = string(v)
		default:
			attrs[key] = fmt.Sprint(v)
		}
	}
	if d.ContentType != "" {
		attrs[AttrContentType] = d.ContentType
	}
	return Message{ID: d.MessageId, Data: d.Body, Attributes: attrs}
}
