package syncer

import (
	"context"
	"fmt"

	"catalogsync/internal/logger"
	"catalogsync/internal/repository"
)

const defaultOrphanMaxRatio = 0.5

// CatalogStore is the product side of the local store.
type CatalogStore interface {
	ChunkWriter
	Ping(ctx context.Context) error
	ListVisibleProductIDs(ctx context.Context, channelID int64) ([]int64, error)
	HideProducts(ctx context.Context, channelID int64, ids []int64) (repository.CleanupResult, error)
	PruneOrphanOptions(ctx context.Context) (int64, error)
}

// Reconciler hides local products the upstream no longer lists for a channel.
type Reconciler struct {
	store    CatalogStore
	maxRatio float64
	logger   *logger.Logger
}

func NewReconciler(store CatalogStore, maxRatio float64, log *logger.Logger) *Reconciler {
	if maxRatio <= 0 || maxRatio > 1 {
		maxRatio = defaultOrphanMaxRatio
	}
	return &Reconciler{store: store, maxRatio: maxRatio, logger: log}
}

// gateTripped reports whether orphans exceed the allowed share of the
// visible set.
func gateTripped(orphans, visible int, maxRatio float64) bool {
	if visible == 0 || orphans == 0 {
		return false
	}
	return float64(orphans)/float64(visible) > maxRatio
}

// Reconcile diffs the locally visible products of the channel against seen,
// the IDs the upstream listed or returned this run. With an incomplete
// listing nothing is hidden.
func (r *Reconciler) Reconcile(ctx context.Context, channelID int64, seen []int64, listingComplete bool) (ReconciliationReport, error) {
	rep := ReconciliationReport{State: StatePartiallyCleaned}

	visible, err := r.store.ListVisibleProductIDs(ctx, channelID)
	if err != nil {
		return rep, fmt.Errorf("%w: %v", ErrFatal, err)
	}

	upstream := make(map[int64]struct{}, len(seen))
	for _, id := range seen {
		upstream[id] = struct{}{}
	}
	var orphans []int64
	for _, id := range visible {
		if _, ok := upstream[id]; !ok {
			orphans = append(orphans, id)
		}
	}
	rep.Orphans = len(orphans)

	if !listingComplete {
		r.logger.Warn("listing incomplete, skipping cleanup of %d orphan candidates", len(orphans))
		return rep, nil
	}
	if gateTripped(len(orphans), len(visible), r.maxRatio) {
		rep.GateTripped = true
		r.logger.Warn("safety gate: %d of %d visible products missing upstream (limit %.0f%%), skipping cleanup",
			len(orphans), len(visible), r.maxRatio*100)
		return rep, nil
	}

	if len(orphans) > 0 {
		res, err := r.store.HideProducts(ctx, channelID, orphans)
		rep.DeletedVariants = res.DeletedVariants
		rep.DeletedCategoryRelations = res.DeletedCategoryRelations
		rep.DeletedOptionRelations = res.DeletedOptionRelations
		rep.DeletedChannelRelations = res.DeletedChannelRelations
		rep.HiddenIDs = res.HiddenIDs
		rep.DetachedIDs = res.DetachedIDs
		if err != nil {
			r.logger.Error("hide orphans: %v", err)
			return rep, nil
		}
		r.logger.Info("removed %d orphan products from channel %d: %d hidden, %d still sold elsewhere",
			len(orphans), channelID, len(res.HiddenIDs), len(res.DetachedIDs))
	}

	pruned, err := r.store.PruneOrphanOptions(ctx)
	if err != nil {
		r.logger.Error("prune options: %v", err)
		return rep, nil
	}
	rep.PrunedOptions = pruned
	rep.State = StateClean
	return rep, nil
}
