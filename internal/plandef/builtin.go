package plandef

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"

	"github.com/jobctl/jobmaster/internal/workerset"
)

// Echo expands to one task per worker in the snapshot; each task's argument
// is echoed back as its result. Join concatenates the per-task results in
// task-id order. Grounded on the teacher's echo task handler in
// cmd/worker/main.go, repurposed from "execute an echo task" to "describe
// an echo plan."
type Echo struct{}

func (Echo) Expand(_ context.Context, cfg json.RawMessage, workers []workerset.Worker) ([]TaskDescriptor, error) {
	sorted := append([]workerset.Worker(nil), workers...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	tasks := make([]TaskDescriptor, 0, len(sorted))
	for i, w := range sorted {
		tasks = append(tasks, TaskDescriptor{
			TaskID:     int64(i),
			WorkerID:   w.ID,
			WorkerHost: w.Address.Host,
			Payload:    cfg,
		})
	}
	return tasks, nil
}

func (Echo) Join(_ context.Context, results []TaskResult) (json.RawMessage, error) {
	sort.Slice(results, func(i, j int) bool { return results[i].TaskID < results[j].TaskID })

	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, r := range results {
		if i > 0 {
			buf.WriteByte(',')
		}
		if len(r.Result) == 0 {
			buf.WriteString("null")
			continue
		}
		buf.Write(r.Result)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func (Echo) TriviallyComplete() bool { return false }

// Noop always expands to zero tasks and is declared trivially complete, so
// a plan coordinator built from it transitions straight to COMPLETED. It
// exercises the empty-expansion edge case in SPEC_FULL.md §4.F.
type Noop struct{}

func (Noop) Expand(context.Context, json.RawMessage, []workerset.Worker) ([]TaskDescriptor, error) {
	return nil, nil
}

func (Noop) Join(context.Context, []TaskResult) (json.RawMessage, error) {
	return json.RawMessage(`null`), nil
}

func (Noop) TriviallyComplete() bool { return true }

// fanoutConfig is the JSON shape accepted by Fanout's configuration.
type fanoutConfig struct {
	Shards int `json:"shards"`
}

// Fanout expands into a configurable number of tasks distributed
// round-robin across the worker snapshot, and merges per-shard results
// into one JSON array ordered by shard index.
type Fanout struct{}

func (Fanout) Expand(_ context.Context, cfg json.RawMessage, workers []workerset.Worker) ([]TaskDescriptor, error) {
	if len(workers) == 0 {
		return nil, nil
	}

	var fc fanoutConfig
	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &fc); err != nil {
			return nil, err
		}
	}
	if fc.Shards <= 0 {
		fc.Shards = len(workers)
	}

	sorted := append([]workerset.Worker(nil), workers...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	tasks := make([]TaskDescriptor, 0, fc.Shards)
	for shard := 0; shard < fc.Shards; shard++ {
		w := sorted[shard%len(sorted)]
		payload, _ := json.Marshal(map[string]int{"shard": shard})
		tasks = append(tasks, TaskDescriptor{
			TaskID:     int64(shard),
			WorkerID:   w.ID,
			WorkerHost: w.Address.Host,
			Payload:    payload,
		})
	}
	return tasks, nil
}

func (Fanout) Join(_ context.Context, results []TaskResult) (json.RawMessage, error) {
	sort.Slice(results, func(i, j int) bool { return results[i].TaskID < results[j].TaskID })
	out := make([]json.RawMessage, len(results))
	for i, r := range results {
		out[i] = r.Result
	}
	return json.Marshal(out)
}

func (Fanout) TriviallyComplete() bool { return false }
