// Package publisher forwards enriched buildings to Kafka.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/0xcro3dile/solarmap-go/internal/domain/entities"
)

// DefaultBatch is the number of messages written per WriteMessages call.
const DefaultBatch = 500

// messageWriter is the subset of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Record is the JSON payload of one building message.
type Record struct {
	ID          string   `json:"id"`
	Source      string   `json:"source"`
	Lat         *float64 `json:"lat"`
	Lon         *float64 `json:"lon"`
	GHI         *float64 `json:"ghi_sum"`
	RoofArea    *float64 `json:"roof_area"`
	Azimuth     *float64 `json:"azimuth"`
	Orientation string   `json:"orientation"`
	KWhEstimate *float64 `json:"kwh_estimate"`
	RunID       string   `json:"run_id"`
}

// KafkaPublisher implements ports.Publisher on a kafka-go writer.
type KafkaPublisher struct {
	w     messageWriter
	batch int
	log   *slog.Logger
}

// NewKafkaPublisher creates a publisher writing to topic on brokers.
func NewKafkaPublisher(brokers []string, topic string, log *slog.Logger) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
		Async:        false,
	}
	return newPublisher(w, log)
}

func newPublisher(w messageWriter, log *slog.Logger) *KafkaPublisher {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &KafkaPublisher{w: w, batch: DefaultBatch, log: log.With(slog.String("component", "kafka-publisher"))}
}

// Publish writes one message per building keyed by source/bldg_id.
func (p *KafkaPublisher) Publish(ctx context.Context, runID string, buildings []entities.Building) error {
	msgs := make([]kafka.Message, 0, p.batch)
	sent := 0
	flush := func() error {
		if len(msgs) == 0 {
			return nil
		}
		if err := p.w.WriteMessages(ctx, msgs...); err != nil {
			return fmt.Errorf("writing messages: %w", err)
		}
		sent += len(msgs)
		msgs = msgs[:0]
		return nil
	}

	for _, b := range buildings {
		value, err := json.Marshal(NewRecord(runID, b))
		if err != nil {
			return fmt.Errorf("encoding building %s: %w", b.ID, err)
		}
		msgs = append(msgs, kafka.Message{Key: []byte(b.Key()), Value: value})
		if len(msgs) == p.batch {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}

	p.log.Debug("published buildings", "run_id", runID, "count", sent)
	return nil
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

// NewRecord converts a building to its message payload. NaN becomes null.
func NewRecord(runID string, b entities.Building) Record {
	return Record{
		ID:          b.ID,
		Source:      b.SourceID,
		Lat:         ptr(b.Lat),
		Lon:         ptr(b.Lon),
		GHI:         ptr(b.GHI),
		RoofArea:    ptr(b.RoofArea),
		Azimuth:     ptr(b.Azimuth),
		Orientation: string(b.Orientation),
		KWhEstimate: ptr(b.KWhEstimate),
		RunID:       runID,
	}
}

func ptr(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
