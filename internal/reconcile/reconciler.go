package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ariefcatur/go-mango-store/internal/crm"
	"github.com/ariefcatur/go-mango-store/internal/logging"
	"github.com/ariefcatur/go-mango-store/internal/metrics"
	"github.com/ariefcatur/go-mango-store/internal/stalls"
	"go.uber.org/zap"
)

type Policy string

const (
	PolicyRelabel Policy = "relabel"
	PolicyRemove  Policy = "remove"
)

func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyRelabel, PolicyRemove:
		return p, nil
	}
	return "", fmt.Errorf("reconcile: unknown orphan policy %q", s)
}

// ItemDeactivator soft-deletes a stall's inventory partition.
type ItemDeactivator interface {
	DeactivateAll(ctx context.Context, stallID string) (int, error)
}

type Report struct {
	Scanned          int      `json:"scanned"`
	Relabeled        int      `json:"relabeled"`
	Removed          int      `json:"removed"`
	ItemsDeactivated int      `json:"items_deactivated"`
	Stalls           []string `json:"stalls"`
}

// Reconciler repairs CRM records whose stall was deleted. Runs are
// serialized and idempotent.
type Reconciler struct {
	Stalls  stalls.Registry
	Records crm.Store
	Items   ItemDeactivator
	Policy  Policy
	Log     *zap.Logger
	Metrics *metrics.Collectors

	mu sync.Mutex
}

// Run reads the live stall set once and filters the records against it
// once. A stall that shows up missing is looked up again before anything
// is touched, so stalls created after the snapshot are never treated as
// deleted. hints are stall ids known to be deleted, e.g. from a
// stall.deleted event, whose inventory should be retired even when no
// record references them.
func (r *Reconciler) Run(ctx context.Context, hints ...string) (Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	base := r.Log
	if base == nil {
		base = zap.NewNop()
	}
	log := logging.FromContext(ctx, base)

	live, err := r.Stalls.LiveIDs(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("read live stalls: %w", err)
	}
	records, err := r.Records.List(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list crm records: %w", err)
	}

	rep := Report{Scanned: len(records)}
	orphans := map[string][]string{}
	for _, rec := range records {
		if rec.StallID == crm.DeletedStoreLabel || rec.StallID == "" {
			continue
		}
		if _, ok := live[rec.StallID]; ok {
			continue
		}
		orphans[rec.StallID] = append(orphans[rec.StallID], rec.ID)
	}
	for _, id := range hints {
		if _, ok := live[id]; !ok {
			if _, seen := orphans[id]; !seen {
				orphans[id] = nil
			}
		}
	}

	ids := make([]string, 0, len(orphans))
	for id := range orphans {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, stallID := range ids {
		if _, err := r.Stalls.Get(ctx, stallID); !errors.Is(err, stalls.ErrNotFound) {
			if err != nil {
				return rep, fmt.Errorf("recheck stall %s: %w", stallID, err)
			}
			continue
		}
		rep.Stalls = append(rep.Stalls, stallID)
		for _, recID := range orphans[stallID] {
			var changed bool
			switch r.Policy {
			case PolicyRemove:
				changed, err = r.Records.Delete(ctx, recID, stallID)
				if changed {
					rep.Removed++
				}
			default:
				changed, err = r.Records.Relabel(ctx, recID, stallID, crm.DeletedStoreLabel)
				if changed {
					rep.Relabeled++
				}
			}
			if err != nil {
				return rep, fmt.Errorf("reconcile record %s: %w", recID, err)
			}
		}
		if r.Items != nil {
			n, err := r.Items.DeactivateAll(ctx, stallID)
			rep.ItemsDeactivated += n
			if err != nil {
				return rep, fmt.Errorf("deactivate items of stall %s: %w", stallID, err)
			}
		}
	}

	r.Metrics.Orphan("relabeled", rep.Relabeled)
	r.Metrics.Orphan("removed", rep.Removed)
	log.Info("orphan_reconcile_done",
		zap.String("policy", string(r.Policy)),
		zap.Int("scanned", rep.Scanned),
		zap.Int("relabeled", rep.Relabeled),
		zap.Int("removed", rep.Removed),
		zap.Int("items_deactivated", rep.ItemsDeactivated),
		zap.Strings("stalls", rep.Stalls),
	)
	return rep, nil
}
