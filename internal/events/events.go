// Package events carries sync requests and sync reports over Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"catalogsync/internal/logger"
	"catalogsync/internal/syncer"
)

const (
	TypeSyncRequested = "sync.requested"
	TypeSyncCompleted = "sync.completed"
)

// SyncRequest asks the worker to sync one channel.
type SyncRequest struct {
	Type        string    `json:"type"`
	Channel     string    `json:"channel"`
	RunID       string    `json:"run_id,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// ReportEvent wraps a finished run's report.
type ReportEvent struct {
	Type      string         `json:"type"`
	Report    *syncer.Report `json:"report"`
	Timestamp time.Time      `json:"timestamp"`
}

// MessageWriter is the subset of *kafka.Writer used here.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// MessageReader is the subset of *kafka.Reader used here.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

func splitBrokers(brokers string) []string {
	var out []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// NewWriter returns a Kafka writer for topic.
func NewWriter(brokers, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(splitBrokers(brokers)...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
}

// NewReader returns a consumer-group reader for topic.
func NewReader(brokers, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        splitBrokers(brokers),
		GroupID:        groupID,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		CommitInterval: time.Second,
	})
}

// Publisher writes events to a single topic.
type Publisher struct {
	writer MessageWriter
	logger *logger.Logger
	now    func() time.Time
}

func NewPublisher(writer MessageWriter, logger *logger.Logger) *Publisher {
	return &Publisher{writer: writer, logger: logger, now: time.Now}
}

// PublishReport sends a finished report keyed by its run ID.
func (p *Publisher) PublishReport(ctx context.Context, report *syncer.Report) error {
	event := ReportEvent{Type: TypeSyncCompleted, Report: report, Timestamp: p.now()}
	if err := p.write(ctx, report.RunID, event); err != nil {
		return fmt.Errorf("publish report %s: %w", report.RunID, err)
	}
	p.logger.Debug("Published report %s for channel %s", report.RunID, report.Channel)
	return nil
}

// RequestSync publishes a sync request for channel and returns its run ID.
func (p *Publisher) RequestSync(ctx context.Context, channel string) (string, error) {
	req := SyncRequest{
		Type:        TypeSyncRequested,
		Channel:     channel,
		RunID:       uuid.NewString(),
		RequestedAt: p.now(),
	}
	if err := p.write(ctx, req.Channel, req); err != nil {
		return "", fmt.Errorf("publish sync request for %s: %w", channel, err)
	}
	return req.RunID, nil
}

func (p *Publisher) write(ctx context.Context, key string, v interface{}) error {
	value, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: value})
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// DecodeSyncRequest parses a sync request message.
func DecodeSyncRequest(value []byte) (SyncRequest, error) {
	var req SyncRequest
	if err := json.Unmarshal(value, &req); err != nil {
		return req, fmt.Errorf("decode sync request: %w", err)
	}
	if req.Type != TypeSyncRequested {
		return req, fmt.Errorf("unexpected event type %q", req.Type)
	}
	if req.Channel == "" {
		return req, fmt.Errorf("sync request without channel")
	}
	return req, nil
}

// DecodeReport parses a report event message.
func DecodeReport(value []byte) (*syncer.Report, error) {
	var event ReportEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	if event.Type != TypeSyncCompleted || event.Report == nil {
		return nil, fmt.Errorf("unexpected event type %q", event.Type)
	}
	return event.Report, nil
}
