package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/septivank/electricity-billing/internal/ledger"
	"github.com/septivank/electricity-billing/internal/logging"
	"github.com/septivank/electricity-billing/internal/validator"
	"go.uber.org/zap"
)

// Command types accepted on the command queue
const (
	CommandRegister = "register"
	CommandReading  = "reading"
)

// CommandMessage represents the incoming message from RabbitMQ. Readings
// arrive as strings the way meters report them.
type CommandMessage struct {
	RequestID    string    `json:"request_id"`
	Type         string    `json:"type"`
	MeterID      string    `json:"meter_id"`
	DayReading   string    `json:"day_reading"`
	NightReading string    `json:"night_reading"`
	ReportedAt   string    `json:"reported_at"`
	ReceivedAt   time.Time `json:"received_at"`
}

// ProcessorService turns queued commands into ledger operations
type ProcessorService struct {
	ledger    *LedgerService
	validator *validator.Validator
	logger    *zap.Logger
	now       func() time.Time
}

// NewProcessorService creates a new processor service
func NewProcessorService(
	ledger *LedgerService,
	validator *validator.Validator,
	logger *zap.Logger,
) *ProcessorService {
	return &ProcessorService{
		ledger:    ledger,
		validator: validator,
		logger:    logger,
		now:       time.Now,
	}
}

// ProcessMessage handles one command. A returned error makes the consumer
// NACK the message to the DLQ.
func (s *ProcessorService) ProcessMessage(ctx context.Context, body []byte) error {
	var msg CommandMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("%w: failed to unmarshal message: %v", ledger.ErrInvalidInput, err)
	}

	reqLogger := logging.WithRequestID(s.logger, msg.RequestID)
	reqLogger.Info("processing command",
		zap.String("type", msg.Type),
		zap.String("meter_id", msg.MeterID),
	)

	receivedAt := msg.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = s.now()
	}

	reading, err := s.validator.ValidateReading(validator.ReadingInput{
		MeterID:    msg.MeterID,
		Day:        msg.DayReading,
		Night:      msg.NightReading,
		ReportedAt: msg.ReportedAt,
	}, receivedAt)
	if err != nil {
		reqLogger.Warn("command rejected", zap.Error(err))
		return err
	}

	switch msg.Type {
	case CommandRegister:
		if _, err := s.ledger.RegisterMeter(ctx, reading.MeterID, reading.Day, reading.Night); err != nil {
			return fmt.Errorf("failed to register meter: %w", err)
		}
	case CommandReading:
		record, err := s.ledger.RecordReading(ctx, reading.MeterID, reading.Day, reading.Night)
		if err != nil {
			return fmt.Errorf("failed to record reading: %w", err)
		}
		reqLogger.Debug("reading billed",
			zap.String("record_id", record.ID.String()),
			zap.Float64("total_amount", record.TotalAmount),
		)
	default:
		return fmt.Errorf("%w: unknown command type %q", ledger.ErrInvalidInput, msg.Type)
	}

	reqLogger.Info("command processed successfully", zap.String("type", msg.Type))
	return nil
}
