package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalogsync/internal/config"
	"catalogsync/internal/events"
	"catalogsync/internal/logger"
	"catalogsync/internal/syncer"
)

// blockingRunner holds every run until release is closed.
type blockingRunner struct {
	mu      sync.Mutex
	runs    []string
	release chan struct{}
}

func (r *blockingRunner) RunWithID(_ context.Context, runID string, ch config.ChannelConfig) *syncer.Report {
	r.mu.Lock()
	r.runs = append(r.runs, ch.Name+":"+runID)
	r.mu.Unlock()
	if r.release != nil {
		<-r.release
	}
	return &syncer.Report{RunID: runID, Channel: ch.Name, Status: syncer.StatusSuccess}
}

func (r *blockingRunner) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.runs...)
}

type recordingPublisher struct {
	mu      sync.Mutex
	reports []*syncer.Report
}

func (p *recordingPublisher) PublishReport(_ context.Context, r *syncer.Report) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reports = append(p.reports, r)
	return nil
}

type sliceReader struct {
	messages []kafka.Message
}

func (r *sliceReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.messages) == 0 {
		return kafka.Message{}, io.EOF
	}
	msg := r.messages[0]
	r.messages = r.messages[1:]
	return msg, nil
}

func (r *sliceReader) Close() error { return nil }

// brokerDownReader fails every read the way kafka-go does when no broker is
// reachable.
type brokerDownReader struct {
	calls atomic.Int32
}

func (r *brokerDownReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	r.calls.Add(1)
	return kafka.Message{}, errors.New("dial tcp 10.0.0.9:9092: connect: connection refused")
}

func (r *brokerDownReader) Close() error { return nil }

var testChannels = []config.ChannelConfig{
	{Name: "store-cl", ChannelID: 1},
	{Name: "store-ar", ChannelID: 2},
}

func TestTriggerSkipsOverlappingRuns(t *testing.T) {
	runner := &blockingRunner{release: make(chan struct{})}
	pub := &recordingPublisher{}
	w := New(runner, nil, pub, testChannels, 0, logger.NewNop())

	assert.True(t, w.Trigger(context.Background(), "store-cl", "r1"))
	assert.False(t, w.Trigger(context.Background(), "store-cl", "r2"), "same channel is still running")
	assert.True(t, w.Trigger(context.Background(), "store-ar", "r3"), "other channels are independent")
	assert.False(t, w.Trigger(context.Background(), "store-xx", "r4"))

	close(runner.release)
	w.Wait()

	assert.ElementsMatch(t, []string{"store-cl:r1", "store-ar:r3"}, runner.snapshot())
	assert.Len(t, pub.reports, 2)

	assert.True(t, w.Trigger(context.Background(), "store-cl", "r5"), "channel is free again")
	w.Wait()
}

func TestWorkerRunsRequestsFromKafka(t *testing.T) {
	msg := func(v interface{}) kafka.Message {
		b, err := json.Marshal(v)
		require.NoError(t, err)
		return kafka.Message{Value: b}
	}
	reader := &sliceReader{messages: []kafka.Message{
		msg(events.SyncRequest{Type: events.TypeSyncRequested, Channel: "store-ar", RunID: "from-api"}),
		{Value: []byte(`{broken`)},
		msg(events.SyncRequest{Type: "product.updated", Channel: "store-cl"}),
	}}
	runner := &blockingRunner{}
	pub := &recordingPublisher{}
	w := New(runner, reader, pub, testChannels, 0, logger.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	w.Start(ctx)

	assert.Equal(t, []string{"store-ar:from-api"}, runner.snapshot())
	require.Len(t, pub.reports, 1)
	assert.Equal(t, "from-api", pub.reports[0].RunID)
}

func TestSchedulerSyncsEveryChannel(t *testing.T) {
	runner := &blockingRunner{}
	w := New(runner, nil, nil, testChannels, time.Hour, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(runner.snapshot()) == 2 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done
	assert.ElementsMatch(t, []string{"store-cl:", "store-ar:"}, runner.snapshot())
}

func TestListenBacksOffWhileBrokerIsDown(t *testing.T) {
	reader := &brokerDownReader{}
	w := New(&blockingRunner{}, reader, nil, testChannels, 0, logger.NewNop())
	w.readBackoff = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.listen(ctx)
		close(done)
	}()

	// Reads at roughly 0, 20, 60 and 140ms.
	time.Sleep(150 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("listen did not return after cancel")
	}
	calls := reader.calls.Load()
	assert.GreaterOrEqual(t, calls, int32(2))
	assert.LessOrEqual(t, calls, int32(6))
}

func TestListenStopsDuringReadBackoff(t *testing.T) {
	reader := &brokerDownReader{}
	w := New(&blockingRunner{}, reader, nil, testChannels, 0, logger.NewNop())
	w.readBackoff = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.listen(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return reader.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("listen kept waiting after cancel")
	}
	assert.Equal(t, int32(1), reader.calls.Load())
}
