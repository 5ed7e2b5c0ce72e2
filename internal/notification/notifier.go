package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/util"
)

const TemplateClientAccessCode = "client_access_code"

var ErrDispatchFailed = errors.New("notification dispatch failed")

// Producer is satisfied by client.KafkaProducer.
type Producer interface {
	ProduceMessage(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// Message is the request consumed by the mail worker.
type Message struct {
	Template string `json:"template"`
	To       string `json:"to"`
	Name     string `json:"name"`
	Code     string `json:"code"`
}

// KafkaNotifier hands access codes to the mail worker through a topic.
type KafkaNotifier struct {
	producer Producer
	topic    string
	logger   *zap.Logger
}

func NewKafkaNotifier(producer Producer, topic string, logger *zap.Logger) *KafkaNotifier {
	return &KafkaNotifier{producer: producer, topic: topic, logger: logger}
}

func (n *KafkaNotifier) SendCode(ctx context.Context, address, displayName, code string) error {
	msg := Message{
		Template: TemplateClientAccessCode,
		To:       address,
		Name:     util.SanitizeInput(displayName),
		Code:     code,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDispatchFailed, err)
	}

	headers := map[string]string{"template": TemplateClientAccessCode}
	if err := n.producer.ProduceMessage(ctx, n.topic, []byte(address), payload, headers); err != nil {
		return fmt.Errorf("%w: %w", ErrDispatchFailed, err)
	}

	n.logger.Info("Access code dispatched", util.Email("to", address))
	return nil
}

// LogNotifier stands in for the mail worker when Kafka is not configured.
// The code itself is only written in development.
type LogNotifier struct {
	logger    *zap.Logger
	revealing bool
}

func NewLogNotifier(logger *zap.Logger, development bool) *LogNotifier {
	return &LogNotifier{logger: logger, revealing: development}
}

func (n *LogNotifier) SendCode(_ context.Context, address, displayName, code string) error {
	fields := []zap.Field{
		util.Email("to", address),
		util.String("name", displayName),
	}
	if n.revealing {
		fields = append(fields, util.String("code", code))
	}
	n.logger.Info("Access code ready for delivery", fields...)
	return nil
}
