package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/util"
)

// LogSink writes events to the structured log.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Write(_ context.Context, e Event) error {
	fields := []zap.Field{
		util.String("event_id", e.ID),
		util.String("actor", e.Actor),
		util.String("action", e.Action),
		util.String("outcome", string(e.Outcome)),
		util.String("tag", e.Tag),
		util.Time("timestamp", e.Timestamp),
	}
	if e.Detail != "" {
		fields = append(fields, util.String("detail", e.Detail))
	}
	if e.Outcome == OutcomeSuccess {
		s.logger.Info("Audit event", fields...)
	} else {
		s.logger.Warn("Audit event", fields...)
	}
	return nil
}

// Producer is satisfied by client.KafkaProducer.
type Producer interface {
	ProduceMessage(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// KafkaSink publishes events keyed by actor so one actor's events stay ordered.
type KafkaSink struct {
	producer Producer
	topic    string
}

func NewKafkaSink(producer Producer, topic string) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Write(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}
	headers := map[string]string{
		"event_type": e.Action,
		"outcome":    string(e.Outcome),
	}
	return s.producer.ProduceMessage(ctx, s.topic, []byte(e.Actor), payload, headers)
}

// Indexer is satisfied by client.ESClient.
type Indexer interface {
	IndexDocument(ctx context.Context, index, id string, document interface{}) error
}

type ElasticsearchSink struct {
	indexer Indexer
	index   string
}

func NewElasticsearchSink(indexer Indexer, index string) *ElasticsearchSink {
	return &ElasticsearchSink{indexer: indexer, index: index}
}

func (s *ElasticsearchSink) Name() string { return "elasticsearch" }

func (s *ElasticsearchSink) Write(ctx context.Context, e Event) error {
	return s.indexer.IndexDocument(ctx, s.index, e.ID, e)
}

// Execer is satisfied by client.ClickHouseClient.
type Execer interface {
	Exec(ctx context.Context, query string, args ...interface{}) error
}

type ClickHouseSink struct {
	conn  Execer
	table string
}

func NewClickHouseSink(conn Execer, table string) *ClickHouseSink {
	return &ClickHouseSink{conn: conn, table: table}
}

func (s *ClickHouseSink) Name() string { return "clickhouse" }

// EnsureTable creates the audit table when it does not exist.
func (s *ClickHouseSink) EnsureTable(ctx context.Context) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id String,
		actor String,
		action LowCardinality(String),
		outcome LowCardinality(String),
		tag LowCardinality(String),
		detail String,
		timestamp DateTime64(3)
	) ENGINE = MergeTree()
	ORDER BY (action, timestamp)`, s.table)
	if err := s.conn.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("failed to create audit table: %w", err)
	}
	return nil
}

func (s *ClickHouseSink) Write(ctx context.Context, e Event) error {
	query := fmt.Sprintf(
		"INSERT INTO %s (id, actor, action, outcome, tag, detail, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?)",
		s.table,
	)
	return s.conn.Exec(ctx, query, e.ID, e.Actor, e.Action, string(e.Outcome), e.Tag, e.Detail, e.Timestamp)
}
