package syncer

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrFatal marks failures that terminate a run: unreachable database or
// upstream listing, or missing configuration.
var ErrFatal = errors.New("fatal sync error")

type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

type ReconcileState string

const (
	StateClean            ReconcileState = "clean"
	StatePartiallyCleaned ReconcileState = "partially_cleaned"
)

// Entity names used in stats and metric labels.
const (
	EntityProducts   = "products"
	EntityVariants   = "variants"
	EntityOptions    = "options"
	EntityCategories = "categories"
)

// maxRecordedFailures caps the per-entity failure list; counts stay exact.
const maxRecordedFailures = 1000

type Failure struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

type EntityStats struct {
	Processed int       `json:"processed"`
	Failed    int       `json:"failed"`
	Failures  []Failure `json:"failures,omitempty"`
}

type ReconciliationReport struct {
	State                    ReconcileState `json:"state"`
	Orphans                  int            `json:"orphans"`
	HiddenIDs                []int64        `json:"hidden_ids,omitempty"`
	DetachedIDs              []int64        `json:"detached_ids,omitempty"`
	DeletedVariants          int64          `json:"deleted_variants"`
	DeletedCategoryRelations int64          `json:"deleted_category_relations"`
	DeletedOptionRelations   int64          `json:"deleted_option_relations"`
	DeletedChannelRelations  int64          `json:"deleted_channel_relations"`
	PrunedOptions            int64          `json:"pruned_options"`
	HiddenCategories         int64          `json:"hidden_categories"`
	GateTripped              bool           `json:"gate_tripped"`
}

type CacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// Report is the outcome of one sync run. It is produced even when the run
// fails, carrying whatever was accumulated up to that point.
type Report struct {
	RunID           string               `json:"run_id"`
	Channel         string               `json:"channel"`
	Status          Status               `json:"status"`
	StartedAt       time.Time            `json:"started_at"`
	FinishedAt      time.Time            `json:"finished_at"`
	Products        EntityStats          `json:"products"`
	Variants        EntityStats          `json:"variants"`
	Options         EntityStats          `json:"options"`
	Categories      EntityStats          `json:"categories"`
	TotalProcessed  int                  `json:"total_processed"`
	TotalFailed     int                  `json:"total_failed"`
	Listed          int                  `json:"listed"`
	Duplicates      int                  `json:"duplicates"`
	// Extra detail requests spent on transient upstream failures.
	UpstreamRetries int                  `json:"upstream_retries"`
	SafetyStock     int                  `json:"safety_stock_skus"`
	Reconciliation  ReconciliationReport `json:"reconciliation"`
	Cache           CacheStats           `json:"cache"`
	Warnings        []string             `json:"warnings,omitempty"`
	Error           string               `json:"error,omitempty"`
}

// Err returns a non-nil error wrapping ErrFatal for failed runs.
func (r *Report) Err() error {
	if r.Status != StatusFailed {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrFatal, r.Error)
}

// Tracker accumulates per-entity counts for one run. Safe for concurrent use.
type Tracker struct {
	mu       sync.Mutex
	entities map[string]*EntityStats
	warnings []string
}

func NewTracker() *Tracker {
	return &Tracker{entities: map[string]*EntityStats{
		EntityProducts:   {},
		EntityVariants:   {},
		EntityOptions:    {},
		EntityCategories: {},
	}}
}

func (t *Tracker) entity(name string) *EntityStats {
	e, ok := t.entities[name]
	if !ok {
		e = &EntityStats{}
		t.entities[name] = e
	}
	return e
}

func (t *Tracker) Processed(entity string, n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entity(entity).Processed += n
}

func (t *Tracker) Fail(entity, id, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.entity(entity)
	e.Failed++
	if len(e.Failures) < maxRecordedFailures {
		e.Failures = append(e.Failures, Failure{ID: id, Reason: reason})
	}
}

// FailProducts records every ID as a failed product with the same reason.
func (t *Tracker) FailProducts(ids []int64, reason string) {
	for _, id := range ids {
		t.Fail(EntityProducts, fmt.Sprint(id), reason)
	}
}

func (t *Tracker) Warn(format string, args ...interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.warnings = append(t.warnings, fmt.Sprintf(format, args...))
}

// Snapshot copies an entity's stats.
func (t *Tracker) Snapshot(entity string) EntityStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := *t.entity(entity)
	e.Failures = append([]Failure(nil), e.Failures...)
	return e
}

// FailedIDs lists the IDs recorded as failed for an entity.
func (t *Tracker) FailedIDs(entity string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.entity(entity)
	ids := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		ids[i] = f.ID
	}
	return ids
}

func (t *Tracker) fill(r *Report) {
	r.Products = t.Snapshot(EntityProducts)
	r.Variants = t.Snapshot(EntityVariants)
	r.Options = t.Snapshot(EntityOptions)
	r.Categories = t.Snapshot(EntityCategories)
	r.TotalProcessed = r.Products.Processed
	r.TotalFailed = r.Products.Failed

	t.mu.Lock()
	r.Warnings = append([]string(nil), t.warnings...)
	t.mu.Unlock()
}
