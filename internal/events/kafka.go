package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"fixshop/internal/metrics"
)

// KafkaProducer publishes envelopes to a single topic from a background loop.
type KafkaProducer struct {
	w        *kafka.Writer
	producer string
	inbox    chan kafka.Message
	closeCh  chan struct{}
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// KafkaConfig configures the producer.
type KafkaConfig struct {
	Brokers  []string
	Topic    string
	Producer string
	Buffer   int
}

// NewKafkaProducer builds a producer; call Start before publishing.
func NewKafkaProducer(cfg KafkaConfig, logger *slog.Logger, m *metrics.Metrics) *KafkaProducer {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}
	return &KafkaProducer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
		producer: cfg.Producer,
		inbox:    make(chan kafka.Message, cfg.Buffer),
		closeCh:  make(chan struct{}),
		logger:   logger.With("component", "kafka_producer"),
		metrics:  m,
	}
}

// Start runs the write loop until ctx is cancelled, then flushes what is
// queued and closes the writer.
func (p *KafkaProducer) Start(ctx context.Context) {
	go func() {
		defer close(p.closeCh)
		for {
			select {
			case <-ctx.Done():
				for {
					select {
					case m := <-p.inbox:
						p.write(m)
					default:
						if err := p.w.Close(); err != nil {
							p.logger.Warn("close kafka writer", "error", err)
						}
						return
					}
				}
			case m := <-p.inbox:
				p.write(m)
			}
		}
	}()
}

// Publish queues env keyed by its correlation id so events for one job or
// warranty stay ordered. A full buffer drops the event.
func (p *KafkaProducer) Publish(ctx context.Context, env Envelope) {
	if env.Producer == "" {
		env.Producer = p.producer
	}
	value, err := json.Marshal(env)
	if err != nil {
		p.logger.Error("marshal envelope", "type", env.EventType, "error", err)
		p.count(env.EventType, "error")
		return
	}
	key := env.CorrelationID
	if key == "" {
		key = env.TenantID
	}
	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  env.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(env.EventType)},
		},
	}
	select {
	case p.inbox <- msg:
	case <-ctx.Done():
		p.count(env.EventType, "cancelled")
	default:
		p.logger.Warn("event buffer full, dropping", "type", env.EventType, "correlation_id", env.CorrelationID)
		p.count(env.EventType, "dropped")
	}
}

// WaitClosed blocks until the write loop has flushed and exited.
func (p *KafkaProducer) WaitClosed() { <-p.closeCh }

func (p *KafkaProducer) write(m kafka.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	eventType := headerValue(m, "event_type")
	if err := p.w.WriteMessages(ctx, m); err != nil {
		p.logger.Error("write kafka message", "type", eventType, "error", err)
		p.count(eventType, "error")
		return
	}
	p.count(eventType, "ok")
}

func (p *KafkaProducer) count(eventType, status string) {
	if p.metrics == nil {
		return
	}
	p.metrics.EventsPublished.WithLabelValues(eventType, status).Inc()
}

func headerValue(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
