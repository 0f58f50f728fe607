// Package lostworker implements the periodic sweep that fails tasks on
// workers that have gone silent (SPEC_FULL.md component I). Grounded on the
// teacher's worker/pool.go recoveryLoop/recoverOrphanedTasks (periodic
// reclaim of work whose owner has gone quiet) and the lock-then-recheck
// race handling in the teacher's scheduler.
package lostworker

import (
	"context"
	"fmt"

	"github.com/jobctl/jobmaster/internal/metrics"
	"github.com/jobctl/jobmaster/internal/tracker"
	"github.com/jobctl/jobmaster/internal/workerset"
)

// Detector periodically evicts workers that have not heartbeat within the
// configured timeout and fails their in-flight tasks across every live
// plan.
type Detector struct {
	workers    *workerset.Set
	tracker    *tracker.Tracker
	timeoutMS  int64
	onLost     func(workerID int64)
}

// New constructs a Detector. onLost, if non-nil, is called once per worker
// actually evicted (after the recheck), useful for metrics/events.
func New(workers *workerset.Set, tr *tracker.Tracker, timeoutMS int64, onLost func(workerID int64)) *Detector {
	return &Detector{workers: workers, tracker: tr, timeoutMS: timeoutMS, onLost: onLost}
}

// Sweep runs one detection pass at nowMS. First it collects workers stale
// as of nowMS and fails their tasks across every live coordinator; then it
// rechecks each candidate under the exclusive worker-set lock and removes
// only those still stale, so a heartbeat that raced in during the first
// pass is not evicted even though its already-failed tasks stay failed.
func (d *Detector) Sweep(ctx context.Context, nowMS int64) {
	cutoff := nowMS - d.timeoutMS
	stale := d.workers.StaleBefore(cutoff)
	if len(stale) == 0 {
		return
	}

	for _, workerID := range stale {
		reason := fmt.Sprintf("worker %d heartbeat timeout", workerID)
		for _, c := range d.tracker.Coordinators() {
			c.FailTasksForWorker(ctx, workerID, reason)
		}
	}

	for _, workerID := range stale {
		if d.workers.RemoveIfStillStale(workerID, cutoff) != nil {
			metrics.RecordWorkerLost()
			if d.onLost != nil {
				d.onLost(workerID)
			}
		}
	}
}
