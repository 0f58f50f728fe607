// Package tracker owns the population of plan coordinators: capacity-bounded
// admission and retention-based purging (SPEC_FULL.md component G).
// Grounded on the teacher's queue/dlq.go bounded-list-with-retry-count shape
// (repurposed here as a ring of recently-purged plan summaries) and the
// call-time admission check idiom of queue/scheduler.go.
package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jobctl/jobmaster/internal/clock"
	"github.com/jobctl/jobmaster/internal/command"
	"github.com/jobctl/jobmaster/internal/coordinator"
	"github.com/jobctl/jobmaster/internal/jobstate"
	"github.com/jobctl/jobmaster/internal/metrics"
	"github.com/jobctl/jobmaster/internal/plandef"
	"github.com/jobctl/jobmaster/internal/workerset"
)

// ErrCapacityExceeded is returned by Run when admission fails even after an
// attempted purge.
var ErrCapacityExceeded = errors.New("tracker: job capacity exceeded")

// HistoryEntry is a compact record of a purged plan, kept so that List
// still surfaces recently-finished ids after their coordinator is dropped.
type HistoryEntry struct {
	ID            int64
	Name          string
	FinalState    jobstate.State
	FinalError    string
	LastUpdatedMS int64
}

// Config bounds the tracker's behavior.
type Config struct {
	Capacity            int
	RetentionMS         int64
	PurgeCount          int // -1 means unlimited
	HistorySize         int
}

type entry struct {
	coord       *coordinator.Coordinator
	name        string
	admittedMS  int64
}

// Tracker is safe for concurrent use. Run is serialized by its own mutex,
// distinct from the mutex guarding the live map, matching the lock
// ordering in SPEC_FULL.md §5 (facade monitor -> tracker lock -> ...).
type Tracker struct {
	cfg   Config
	clock clock.Clock

	admitMu sync.Mutex // serializes Run end-to-end

	mu      sync.RWMutex
	live    map[int64]*entry
	history []HistoryEntry // ring buffer, oldest overwritten first
	histPos int
	histLen int
}

// New constructs a Tracker. cfg.HistorySize defaults to 256 if <= 0.
func New(clk clock.Clock, cfg Config) *Tracker {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 256
	}
	return &Tracker{
		cfg:     cfg,
		clock:   clk,
		live:    make(map[int64]*entry),
		history: make([]HistoryEntry, cfg.HistorySize),
	}
}

// Run attempts to admit a new plan coordinator under planID. It first
// purges eligible finished plans if at capacity, then admits if there is
// room. Construction of the Coordinator happens under the admission lock so
// that a racing query never observes planID as admitted before its initial
// commands are enqueued.
func (t *Tracker) Run(
	ctx context.Context,
	clk clock.Clock,
	cmdMgr *command.Manager,
	def plandef.Definition,
	planID int64,
	name string,
	cfg json.RawMessage,
	workers []workerset.Worker,
	onEvent coordinator.EventFunc,
) (*coordinator.Coordinator, error) {
	t.admitMu.Lock()
	defer t.admitMu.Unlock()

	if t.liveCount() >= t.cfg.Capacity {
		t.purgeEligible()
	}
	if t.liveCount() >= t.cfg.Capacity {
		return nil, ErrCapacityExceeded
	}

	c := coordinator.New(ctx, clk, cmdMgr, def, planID, name, cfg, workers, onEvent)

	t.mu.Lock()
	t.live[planID] = &entry{coord: c, name: name, admittedMS: t.clock.NowMS()}
	t.mu.Unlock()

	return c, nil
}

func (t *Tracker) liveCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.live)
}

// purgeEligible removes up to PurgeCount finished coordinators whose
// time-since-finished is at least RetentionMS, oldest-finished first, appending
// a HistoryEntry for each. Must be called with admitMu held (so no new
// admission races a purge decision), but takes its own mu internally.
func (t *Tracker) purgeEligible() {
	now := t.clock.NowMS()

	type candidate struct {
		id       int64
		finished int64
	}

	t.mu.RLock()
	var candidates []candidate
	for id, e := range t.live {
		if e.coord.IsFinished() {
			candidates = append(candidates, candidate{id: id, finished: e.coord.LastStatusChangeMS()})
		}
	}
	t.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].finished < candidates[j].finished })

	limit := t.cfg.PurgeCount
	purged := 0
	for _, cand := range candidates {
		if limit >= 0 && purged >= limit {
			break
		}
		if now-cand.finished < t.cfg.RetentionMS {
			continue
		}

		t.mu.Lock()
		e, ok := t.live[cand.id]
		if ok {
			delete(t.live, cand.id)
			snap := e.coord.Snapshot()
			t.appendHistoryLocked(HistoryEntry{
				ID:            cand.id,
				Name:          e.name,
				FinalState:    snap.State,
				FinalError:    snap.ErrorMessage,
				LastUpdatedMS: snap.LastStatusChangeMS,
			})
		}
		t.mu.Unlock()

		if ok {
			purged++
			metrics.RecordPlanPurge(t.liveCount())
		}
	}
}

// appendHistoryLocked must be called with mu held.
func (t *Tracker) appendHistoryLocked(he HistoryEntry) {
	t.history[t.histPos] = he
	t.histPos = (t.histPos + 1) % len(t.history)
	if t.histLen < len(t.history) {
		t.histLen++
	}
}

// Get returns the live coordinator for id, or nil if not present (including
// if it was purged into history).
func (t *Tracker) Get(id int64) *coordinator.Coordinator {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.live[id]
	if !ok {
		return nil
	}
	return e.coord
}

// Jobs returns every live plan id plus every id still present in the purge
// history, live ids first.
func (t *Tracker) Jobs() []int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := make([]int64, 0, len(t.live)+t.histLen)
	for id := range t.live {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for i := 0; i < t.histLen; i++ {
		ids = append(ids, t.history[i].ID)
	}
	return ids
}

// Coordinators returns a snapshot slice of every live coordinator, safe to
// range over without holding any tracker lock.
func (t *Tracker) Coordinators() []*coordinator.Coordinator {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*coordinator.Coordinator, 0, len(t.live))
	for _, e := range t.live {
		out = append(out, e.coord)
	}
	return out
}

// History returns a copy of the current purge history, oldest first.
func (t *Tracker) History() []HistoryEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]HistoryEntry, 0, t.histLen)
	for i := 0; i < t.histLen; i++ {
		idx := (t.histPos - t.histLen + i + len(t.history)) % len(t.history)
		out = append(out, t.history[idx])
	}
	return out
}

// DefaultRetention is a standalone retention default outside of
// viper-bound configuration; nothing in this repository references it.
const DefaultRetention = 5 * time.Minute
