package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/taxi-dashboard/internal/models"
	"github.com/example/taxi-dashboard/internal/observability"
)

// KafkaProducer publishes trips for the ingestion consumer.
type KafkaProducer struct {
	writer  *kafka.Writer
	timeout time.Duration
}

func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.LeastBytes{}})
	return &KafkaProducer{writer: w, timeout: 2 * time.Second}
}

// PublishTrip writes the trip keyed by its pickup zone, so trips from one
// zone stay ordered within a partition.
func (k *KafkaProducer) PublishTrip(ctx context.Context, t models.Trip) error {
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()
	b, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode trip: %w", err)
	}
	if err := k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(strconv.Itoa(t.PickupLocationID)), Value: b}); err != nil {
		return fmt.Errorf("publish trip: %w", err)
	}
	observability.TripsPublished.Inc()
	return nil
}

func (k *KafkaProducer) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
