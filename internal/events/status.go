package events

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"

	"catalogsync/internal/logger"
	"catalogsync/internal/syncer"
)

// StatusStore keeps the latest report per channel.
type StatusStore struct {
	mu      sync.RWMutex
	reports map[string]*syncer.Report
}

func NewStatusStore() *StatusStore {
	return &StatusStore{reports: map[string]*syncer.Report{}}
}

// Record stores report unless a newer one for the channel is already known.
func (s *StatusStore) Record(report *syncer.Report) {
	if report == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.reports[report.Channel]; ok && cur.StartedAt.After(report.StartedAt) {
		return
	}
	s.reports[report.Channel] = report
}

// Latest returns the most recent report of every channel, ordered by channel.
func (s *StatusStore) Latest() []*syncer.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*syncer.Report, 0, len(s.reports))
	for _, r := range s.reports {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Channel < out[j].Channel })
	return out
}

// ConsumeReports feeds report events from reader into store until ctx ends.
func ConsumeReports(ctx context.Context, reader MessageReader, store *StatusStore, log *logger.Logger) error {
	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			log.Error("Failed to read report: %v", err)
			continue
		}
		report, err := DecodeReport(msg.Value)
		if err != nil {
			log.Warn("Skipping report message: %v", err)
			continue
		}
		store.Record(report)
	}
}
