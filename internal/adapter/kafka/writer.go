package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/romanesquibel562/pwhl-data-engineering-pipeline/internal/config"
	"github.com/romanesquibel562/pwhl-data-engineering-pipeline/internal/domain"
	"github.com/romanesquibel562/pwhl-data-engineering-pipeline/internal/observability"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher produces one message per fact row to a Kafka topic.
// It implements pipeline.FactSink.
type Publisher struct {
	writer  messageWriter
	clock   clockwork.Clock
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured fact topic.
func NewPublisher(cfg *config.Config, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaFactTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, clock: clock, metrics: metrics, logger: logger}
}

func (p *Publisher) Name() string { return "kafka" }

// LoadFacts serializes and publishes the fact rows in a single WriteMessages
// call. Messages are keyed by the fact grain.
func (p *Publisher) LoadFacts(ctx context.Context, rows []domain.FactRow) error {
	if len(rows) == 0 {
		return nil
	}
	publishedAt := p.clock.Now().UTC()
	msgs := make([]kafkago.Message, len(rows))
	for i := range rows {
		msg, err := serializeToMessage(rows[i], publishedAt)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish facts: %w", err)
	}
	p.metrics.FactRowsPublished.Add(float64(len(msgs)))
	p.logger.Info("facts published", "messages", len(msgs))
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// factMessage is the JSON form of a fact row. Missing values are null.
type factMessage struct {
	EventDate       string   `json:"event_date"`
	Market          string   `json:"market"`
	VenueID         string   `json:"venue_id"`
	Venue           string   `json:"venue"`
	Section         string   `json:"section"`
	TicketsSold     int64    `json:"tickets_sold"`
	Revenue         float64  `json:"revenue"`
	AvgPrice        *float64 `json:"avg_price"`
	SectionCapacity *int64   `json:"section_capacity"`
	Utilization     *float64 `json:"utilization"`
	AvgTempC        *float64 `json:"avg_temp_c"`
	MinTempC        *float64 `json:"min_temp_c"`
	MaxTempC        *float64 `json:"max_temp_c"`
	AvgRhPct        *float64 `json:"avg_rh_pct"`
	AvgWindMps      *float64 `json:"avg_wind_mps"`
	TotalPrecipMm   *float64 `json:"total_precip_mm"`
	WindyHours      *int64   `json:"windy_hours"`
	RainyHours      *int64   `json:"rainy_hours"`
	FreezingHours   *int64   `json:"freezing_hours"`
	HoursObserved   *int64   `json:"hours_observed"`
}

func newFactMessage(f domain.FactRow) factMessage {
	return factMessage{
		EventDate:       domain.FormatOptDate(f.EventDate),
		Market:          f.Market,
		VenueID:         f.VenueID,
		Venue:           f.Venue,
		Section:         f.Section,
		TicketsSold:     f.TicketsSold,
		Revenue:         f.Revenue,
		AvgPrice:        f.AvgPrice.Ptr(),
		SectionCapacity: f.SectionCapacity.Ptr(),
		Utilization:     f.Utilization.Ptr(),
		AvgTempC:        f.AvgTempC.Ptr(),
		MinTempC:        f.MinTempC.Ptr(),
		MaxTempC:        f.MaxTempC.Ptr(),
		AvgRhPct:        f.AvgRhPct.Ptr(),
		AvgWindMps:      f.AvgWindMps.Ptr(),
		TotalPrecipMm:   f.TotalPrecipMm.Ptr(),
		WindyHours:      f.WindyHours.Ptr(),
		RainyHours:      f.RainyHours.Ptr(),
		FreezingHours:   f.FreezingHours.Ptr(),
		HoursObserved:   f.HoursObserved.Ptr(),
	}
}

// serializeToMessage marshals a FactRow into a Kafka message.
func serializeToMessage(f domain.FactRow, publishedAt time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(newFactMessage(f))
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize fact row: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(domain.FactKey(f)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "market", Value: []byte(f.Market)},
			{Key: "published_at", Value: []byte(publishedAt.Format(time.RFC3339))},
		},
	}, nil
}
