package worker

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"catalogsync/internal/config"
	"catalogsync/internal/events"
	"catalogsync/internal/logger"
	"catalogsync/internal/syncer"
)

// Runner performs one sync run.
type Runner interface {
	RunWithID(ctx context.Context, runID string, ch config.ChannelConfig) *syncer.Report
}

// ReportPublisher receives every finished report.
type ReportPublisher interface {
	PublishReport(ctx context.Context, report *syncer.Report) error
}

const maxReadBackoff = 30 * time.Second

// Worker runs channel syncs on a schedule and on request. Runs of the same
// channel never overlap.
type Worker struct {
	runner    Runner
	reader    events.MessageReader
	publisher ReportPublisher
	channels  []config.ChannelConfig
	interval  time.Duration
	logger    *logger.Logger
	// First pause after a failed read; doubles up to maxReadBackoff.
	readBackoff time.Duration

	mu      sync.Mutex
	running map[string]bool
	wg      sync.WaitGroup
}

func New(runner Runner, reader events.MessageReader, publisher ReportPublisher, channels []config.ChannelConfig, interval time.Duration, logger *logger.Logger) *Worker {
	return &Worker{
		runner:    runner,
		reader:    reader,
		publisher: publisher,
		channels:  channels,
		interval:  interval,
		logger:    logger,
		running:   map[string]bool{},

		readBackoff: time.Second,
	}
}

// Start runs the scheduler and the request listener until ctx is cancelled,
// then waits for in-flight runs.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Worker started: %d channels, interval %s", len(w.channels), w.interval)

	var loops sync.WaitGroup
	if w.interval > 0 {
		loops.Add(1)
		go func() {
			defer loops.Done()
			w.schedule(ctx)
		}()
	}
	if w.reader != nil {
		loops.Add(1)
		go func() {
			defer loops.Done()
			w.listen(ctx)
		}()
	}

	loops.Wait()
	w.wg.Wait()
}

func (w *Worker) schedule(ctx context.Context) {
	w.syncAll(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.syncAll(ctx)
		}
	}
}

func (w *Worker) syncAll(ctx context.Context) {
	for _, ch := range w.channels {
		w.Trigger(ctx, ch.Name, "")
	}
}

func (w *Worker) listen(ctx context.Context) {
	w.logger.Info("Listening for sync requests...")

	backoff := w.readBackoff
	for {
		message, err := w.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return
			}
			w.logger.Error("Failed to read message, retrying in %s: %v", backoff, err)
			if !pause(ctx, backoff) {
				return
			}
			backoff = min(2*backoff, maxReadBackoff)
			continue
		}
		backoff = w.readBackoff

		w.logger.Debug("Received message: %s", string(message.Value))

		req, err := events.DecodeSyncRequest(message.Value)
		if err != nil {
			w.logger.Error("Failed to parse sync request: %v", err)
			continue
		}
		w.Trigger(ctx, req.Channel, req.RunID)
	}
}

// pause waits for d and reports false if ctx ended first.
func pause(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Trigger starts a run for the named channel in the background. It returns
// false when the channel is unknown or already syncing.
func (w *Worker) Trigger(ctx context.Context, channel, runID string) bool {
	ch, ok := config.FindChannel(w.channels, channel)
	if !ok {
		w.logger.Warn("Ignoring sync request for unknown channel %q", channel)
		return false
	}

	w.mu.Lock()
	if w.running[ch.Name] {
		w.mu.Unlock()
		w.logger.Warn("Channel %s is already syncing, skipping request", ch.Name)
		return false
	}
	w.running[ch.Name] = true
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() {
			w.mu.Lock()
			delete(w.running, ch.Name)
			w.mu.Unlock()
		}()
		w.run(ctx, ch, runID)
	}()
	return true
}

func (w *Worker) run(ctx context.Context, ch config.ChannelConfig, runID string) {
	report := w.runner.RunWithID(ctx, runID, ch)
	if w.publisher == nil {
		return
	}
	// Publish even when ctx was cancelled mid-run.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := w.publisher.PublishReport(pubCtx, report); err != nil {
		w.logger.Error("Failed to publish report %s: %v", report.RunID, err)
	}
}

// Wait blocks until every triggered run has finished.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	if w.reader != nil {
		w.reader.Close()
	}
}
