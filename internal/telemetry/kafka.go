package telemetry

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"luxctl/internal/config"
	"luxctl/internal/model"
)

// Publisher exports readings and action events to a Kafka topic. Writes are
// async and best-effort: a broker outage is logged and never stalls the
// control loop.
type Publisher struct {
	writer *kafka.Writer
	logger *slog.Logger
}

func NewPublisher(cfg config.KafkaConfig, logger *slog.Logger) *Publisher {
	if !cfg.Enabled {
		if logger != nil {
			logger.Info("kafka telemetry disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("kafka telemetry enabled", "brokers", cfg.Brokers, "topic", cfg.Topic)
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
		Async:                  true,
	}
	p := &Publisher{writer: w, logger: logger}
	w.Completion = func(messages []kafka.Message, err error) {
		if err != nil && logger != nil {
			logger.Warn("kafka publish failed", "err", err, "messages", len(messages))
		}
	}
	return p
}

type envelope struct {
	Type    string             `json:"type"`
	Reading *model.Reading     `json:"reading,omitempty"`
	Action  *model.ActionEvent `json:"action,omitempty"`
}

func (p *Publisher) PublishReading(ctx context.Context, r model.Reading) {
	if p == nil {
		return
	}
	p.publish(ctx, "reading", envelope{Type: "reading", Reading: &r})
}

func (p *Publisher) PublishAction(ctx context.Context, a model.ActionEvent) {
	if p == nil {
		return
	}
	p.publish(ctx, "action", envelope{Type: "action", Action: &a})
}

func (p *Publisher) publish(ctx context.Context, key string, env envelope) {
	value, err := json.Marshal(env)
	if err != nil {
		return
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: value})
	if err != nil && p.logger != nil {
		p.logger.Warn("kafka publish failed", "err", err)
	}
}

func (p *Publisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
