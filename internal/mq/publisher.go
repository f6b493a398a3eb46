package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/septivank/electricity-billing/internal/ledger"
	"go.uber.org/zap"
)

// Publisher publishes ledger events to a topic exchange
type Publisher struct {
	conn          *Connection
	channel       *amqp.Channel
	exchange      string
	registeredKey string
	recordedKey   string
	logger        *zap.Logger

	// amqp channels are not safe for concurrent publishing
	mu sync.Mutex
}

// PublisherConfig holds publisher configuration
type PublisherConfig struct {
	Connection           *Connection
	Exchange             string
	RegisteredRoutingKey string
	RecordedRoutingKey   string
	Logger               *zap.Logger
}

// NewPublisher creates a new RabbitMQ publisher
func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	ch, err := cfg.Connection.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		cfg.Exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &Publisher{
		conn:          cfg.Connection,
		channel:       ch,
		exchange:      cfg.Exchange,
		registeredKey: cfg.RegisteredRoutingKey,
		recordedKey:   cfg.RecordedRoutingKey,
		logger:        cfg.Logger,
	}, nil
}

// MeterRegisteredEvent is published once a meter and its registration record are committed
type MeterRegisteredEvent struct {
	MeterID      string  `json:"meter_id"`
	DayReading   float64 `json:"day_reading"`
	NightReading float64 `json:"night_reading"`
	RegisteredAt string  `json:"registered_at"`
}

// BillingRecordedEvent is published once a billing record is committed
type BillingRecordedEvent struct {
	RecordID           string  `json:"record_id"`
	MeterID            string  `json:"meter_id"`
	Date               string  `json:"date"`
	DayConsumption     float64 `json:"day_consumption"`
	NightConsumption   float64 `json:"night_consumption"`
	DayTariff          float64 `json:"day_tariff"`
	NightTariff        float64 `json:"night_tariff"`
	TotalAmount        float64 `json:"total_amount"`
	DayResetDetected   bool    `json:"day_reset_detected"`
	NightResetDetected bool    `json:"night_reset_detected"`
	Notes              string  `json:"notes,omitempty"`
}

// NewMeterRegisteredEvent builds the event for a committed meter
func NewMeterRegisteredEvent(meter *ledger.Meter) MeterRegisteredEvent {
	return MeterRegisteredEvent{
		MeterID:      meter.MeterID,
		DayReading:   meter.DayReading,
		NightReading: meter.NightReading,
		RegisteredAt: meter.CreatedAt.Format(time.RFC3339Nano),
	}
}

// NewBillingRecordedEvent builds the event for a committed record
func NewBillingRecordedEvent(record *ledger.BillingRecord) BillingRecordedEvent {
	return BillingRecordedEvent{
		RecordID:           record.ID.String(),
		MeterID:            record.MeterID,
		Date:               record.Date.Format(time.RFC3339Nano),
		DayConsumption:     record.DayConsumption,
		NightConsumption:   record.NightConsumption,
		DayTariff:          record.DayTariff,
		NightTariff:        record.NightTariff,
		TotalAmount:        record.TotalAmount,
		DayResetDetected:   record.DayResetDetected,
		NightResetDetected: record.NightResetDetected,
		Notes:              record.Notes,
	}
}

// PublishMeterRegistered publishes a meter registered event
func (p *Publisher) PublishMeterRegistered(ctx context.Context, meter *ledger.Meter) error {
	return p.publish(ctx, p.registeredKey, meter.MeterID, NewMeterRegisteredEvent(meter))
}

// PublishBillingRecorded publishes a billing recorded event
func (p *Publisher) PublishBillingRecorded(ctx context.Context, record *ledger.BillingRecord) error {
	return p.publish(ctx, p.recordedKey, record.MeterID, NewBillingRecordedEvent(record))
}

func (p *Publisher) publish(ctx context.Context, routingKey, meterID string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	p.mu.Lock()
	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
		},
	)
	p.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("published event",
		zap.String("routing_key", routingKey),
		zap.String("meter_id", meterID),
	)

	return nil
}

// Close closes the publisher channel
func (p *Publisher) Close() error {
	if p.channel != nil {
		return p.channel.Close()
	}
	return nil
}
