package events

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalogsync/internal/logger"
	"catalogsync/internal/syncer"
)

type memoryWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	closed   bool
}

func (w *memoryWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *memoryWriter) Close() error {
	w.closed = true
	return nil
}

// sliceReader replays messages, then reports io.EOF.
type sliceReader struct {
	messages []kafka.Message
}

func (r *sliceReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if err := ctx.Err(); err != nil {
		return kafka.Message{}, err
	}
	if len(r.messages) == 0 {
		return kafka.Message{}, io.EOF
	}
	msg := r.messages[0]
	r.messages = r.messages[1:]
	return msg, nil
}

func (r *sliceReader) Close() error { return nil }

func TestPublishReportKeysByRunID(t *testing.T) {
	w := &memoryWriter{}
	p := NewPublisher(w, logger.NewNop())

	report := &syncer.Report{RunID: "run-1", Channel: "store-cl", Status: syncer.StatusSuccess, TotalProcessed: 350}
	require.NoError(t, p.PublishReport(context.Background(), report))

	require.Len(t, w.messages, 1)
	assert.Equal(t, "run-1", string(w.messages[0].Key))

	decoded, err := DecodeReport(w.messages[0].Value)
	require.NoError(t, err)
	assert.Equal(t, 350, decoded.TotalProcessed)
	assert.Equal(t, syncer.StatusSuccess, decoded.Status)
}

func TestRequestSync(t *testing.T) {
	w := &memoryWriter{}
	p := NewPublisher(w, logger.NewNop())

	runID, err := p.RequestSync(context.Background(), "store-cl")
	require.NoError(t, err)
	assert.NotEmpty(t, runID)

	require.Len(t, w.messages, 1)
	req, err := DecodeSyncRequest(w.messages[0].Value)
	require.NoError(t, err)
	assert.Equal(t, "store-cl", req.Channel)
	assert.Equal(t, runID, req.RunID)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestDecodeSyncRequestRejectsBadMessages(t *testing.T) {
	_, err := DecodeSyncRequest([]byte(`{"type":"product.updated","channel":"x"}`))
	assert.Error(t, err)
	_, err = DecodeSyncRequest([]byte(`{"type":"sync.requested"}`))
	assert.Error(t, err)
	_, err = DecodeSyncRequest([]byte(`not json`))
	assert.Error(t, err)

	req, err := DecodeSyncRequest([]byte(`{"type":"sync.requested","channel":"store-ar"}`))
	require.NoError(t, err)
	assert.Equal(t, "store-ar", req.Channel)
}

func reportMessage(t *testing.T, r *syncer.Report) kafka.Message {
	value, err := json.Marshal(ReportEvent{Type: TypeSyncCompleted, Report: r})
	require.NoError(t, err)
	return kafka.Message{Key: []byte(r.RunID), Value: value}
}

func TestConsumeReportsKeepsLatestPerChannel(t *testing.T) {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	reader := &sliceReader{messages: []kafka.Message{
		reportMessage(t, &syncer.Report{RunID: "a2", Channel: "a", StartedAt: base.Add(time.Hour)}),
		reportMessage(t, &syncer.Report{RunID: "a1", Channel: "a", StartedAt: base}),
		{Value: []byte(`garbage`)},
		reportMessage(t, &syncer.Report{RunID: "b1", Channel: "b", StartedAt: base}),
	}}
	store := NewStatusStore()

	require.NoError(t, ConsumeReports(context.Background(), reader, store, logger.NewNop()))

	latest := store.Latest()
	require.Len(t, latest, 2)
	assert.Equal(t, "a2", latest[0].RunID)
	assert.Equal(t, "b1", latest[1].RunID)
}
