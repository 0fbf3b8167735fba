package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/taxi-dashboard/internal/models"
	"github.com/example/taxi-dashboard/internal/observability"
)

const maxReadBackoff = 30 * time.Second

// MessageReader is the subset of *kafka.Reader the consumer uses.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// TripSaver persists ingested trips.
type TripSaver interface {
	SaveTrips(ctx context.Context, trips []models.Trip) error
}

// Consumer reads trip messages and saves them with bounded retry.
type Consumer struct {
	reader MessageReader
	store  TripSaver
	logger *slog.Logger

	Attempts int
	Delay    time.Duration
}

func NewConsumer(reader MessageReader, store TripSaver, logger *slog.Logger) *Consumer {
	return &Consumer{reader: reader, store: store, logger: logger, Attempts: 3, Delay: 200 * time.Millisecond}
}

func NewKafkaReader(brokers []string, topic, group string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{Brokers: brokers, Topic: topic, GroupID: group, MinBytes: 10e3, MaxBytes: 10e6})
}

// Run consumes until ctx is done. Read errors back off exponentially up to
// maxReadBackoff; invalid messages and failed saves are counted and skipped.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("shutting down consumer")
				return nil
			}
			c.logger.Warn("kafka read error", "error", err, "backoff", backoff)
			if !sleep(ctx, backoff) {
				return nil
			}
			backoff *= 2
			if backoff > maxReadBackoff {
				backoff = maxReadBackoff
			}
			continue
		}
		backoff = time.Second
		c.handle(ctx, m)
	}
}

func (c *Consumer) handle(ctx context.Context, m kafka.Message) {
	observability.IngestConsumed.Inc()

	var t models.Trip
	if err := json.Unmarshal(m.Value, &t); err != nil {
		observability.IngestInvalid.Inc()
		c.logger.Warn("invalid message", "error", err, "offset", m.Offset)
		return
	}
	if err := ValidateTrip(t); err != nil {
		observability.IngestInvalid.Inc()
		c.logger.Warn("invalid trip", "error", err, "offset", m.Offset)
		return
	}

	if err := saveWithRetry(ctx, c.store, t, c.Attempts, c.Delay); err != nil {
		observability.IngestErrors.Inc()
		c.logger.Error("trip save failed", "error", err, "trip_id", t.ID, "offset", m.Offset)
		return
	}
	observability.IngestSaved.Inc()
}

// ValidateTrip checks the fields every stored trip must carry.
func ValidateTrip(t models.Trip) error {
	var errs []error
	if t.PickupDateTime.IsZero() {
		errs = append(errs, errors.New("pickupDateTime is required"))
	}
	if t.DropoffDateTime.IsZero() {
		errs = append(errs, errors.New("dropoffDateTime is required"))
	}
	if !t.PickupDateTime.IsZero() && t.DropoffDateTime.Before(t.PickupDateTime.Time) {
		errs = append(errs, errors.New("dropoffDateTime is before pickupDateTime"))
	}
	if t.PickupLocationID <= 0 {
		errs = append(errs, fmt.Errorf("invalid pickupLocationID %d", t.PickupLocationID))
	}
	if t.DropoffLocationID <= 0 {
		errs = append(errs, fmt.Errorf("invalid dropoffLocationID %d", t.DropoffLocationID))
	}
	return errors.Join(errs...)
}

// saveWithRetry tries attempts times, doubling delay after each failure.
func saveWithRetry(ctx context.Context, s TripSaver, t models.Trip, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = s.SaveTrips(ctx, []models.Trip{t}); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		if !sleep(ctx, delay) {
			return ctx.Err()
		}
		delay *= 2
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
