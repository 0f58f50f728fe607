package demoworker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jobctl/jobmaster/internal/jobstate"
	"github.com/jobctl/jobmaster/internal/logger"
	"github.com/jobctl/jobmaster/pkg/client"
)

// State is the worker pool's current operational state, mirroring the
// teacher's worker.State enum.
type State int

const (
	StateIdle State = iota
	StateBusy
	StateShuttingDown
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBusy:
		return "busy"
	case StateShuttingDown:
		return "shutting_down"
	default:
		return "unknown"
	}
}

// Config governs a Pool's registration, polling cadence, and shutdown
// behavior.
type Config struct {
	Host              string
	RPCPort           int
	Concurrency       int
	HeartbeatInterval time.Duration
	TaskTimeout       time.Duration
	ShutdownTimeout   time.Duration
}

// Pool registers a worker with the job master and loops heartbeating,
// executing RUN commands up to Concurrency at a time, and reporting results
// on the next heartbeat. Grounded on the teacher's worker.Pool, replacing
// its Redis dequeue loop with the job master's heartbeat-driven command
// protocol (SPEC_FULL.md §4, components D and H).
type Pool struct {
	cfg      Config
	client   *client.Client
	executor *Executor

	workerID int64

	state   State
	stateMu sync.RWMutex

	reportsMu sync.Mutex
	reports   []client.TaskReport

	concurrencySem chan struct{}
	wg             sync.WaitGroup
	stopCh         chan struct{}
	stopOnce       sync.Once
}

// NewPool constructs a Pool bound to c, dispatching RUN commands to handler.
func NewPool(c *client.Client, handler Handler, cfg Config) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 5 * time.Second
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 30 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	return &Pool{
		cfg:            cfg,
		client:         c,
		executor:       NewExecutor(handler),
		state:          StateIdle,
		concurrencySem: make(chan struct{}, cfg.Concurrency),
		stopCh:         make(chan struct{}),
	}
}

// Start registers the pool with the job master and begins heartbeating.
func (p *Pool) Start(ctx context.Context) error {
	id, err := p.client.RegisterWorker(ctx, client.RegisterWorkerRequest{
		Host:    p.cfg.Host,
		RPCPort: p.cfg.RPCPort,
	})
	if err != nil {
		return fmt.Errorf("register worker: %w", err)
	}
	p.workerID = id

	p.stateMu.Lock()
	p.state = StateBusy
	p.stateMu.Unlock()

	p.wg.Add(1)
	go p.heartbeatLoop(ctx)

	logger.Info().Int64("worker_id", id).Int("concurrency", p.cfg.Concurrency).Msg("worker pool started")
	return nil
}

// Stop signals the heartbeat loop to exit and waits for in-flight tasks.
func (p *Pool) Stop(ctx context.Context) {
	p.stateMu.Lock()
	p.state = StateShuttingDown
	p.stateMu.Unlock()

	p.stopOnce.Do(func() { close(p.stopCh) })

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Int64("worker_id", p.workerID).Msg("worker pool stopped gracefully")
	case <-time.After(p.cfg.ShutdownTimeout):
		logger.Warn().Int64("worker_id", p.workerID).Msg("worker pool shutdown timed out")
	case <-ctx.Done():
	}
}

// State returns the pool's current operational state.
func (p *Pool) State() State {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return p.state
}

// WorkerID returns the id allocated at registration, or 0 before Start.
func (p *Pool) WorkerID() int64 {
	return p.workerID
}

func (p *Pool) heartbeatLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.HeartbeatInterval)
	defer ticker.Stop()

	p.beat(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.beat(ctx)
		}
	}
}

func (p *Pool) beat(ctx context.Context) {
	p.reportsMu.Lock()
	pending := p.reports
	p.reports = nil
	p.reportsMu.Unlock()

	cmds, err := p.client.Heartbeat(ctx, p.workerID, pending)
	if err != nil {
		logger.Error().Err(err).Int64("worker_id", p.workerID).Msg("heartbeat failed")
		p.reportsMu.Lock()
		p.reports = append(pending, p.reports...)
		p.reportsMu.Unlock()
		return
	}

	for _, c := range cmds {
		p.dispatch(ctx, c)
	}
}

func (p *Pool) dispatch(ctx context.Context, c client.Command) {
	switch c.Kind {
	case "RUN":
		p.wg.Add(1)
		go p.runTask(ctx, c)
	case "REGISTER":
		logger.Warn().Int64("worker_id", p.workerID).Msg("job master requested re-registration")
		if id, err := p.client.RegisterWorker(ctx, client.RegisterWorkerRequest{Host: p.cfg.Host, RPCPort: p.cfg.RPCPort}); err == nil {
			p.workerID = id
		}
	case "CANCEL":
		// Tasks here run to completion; there is no in-flight cancellation
		// hook to wire a CANCEL command into.
		logger.Debug().Int64("plan_id", c.PlanID).Int64("task_id", c.TaskID).Msg("cancel command ignored: task already dispatched")
	case "SETUP":
		logger.Debug().Int64("worker_id", p.workerID).Msg("setup command received")
	}
}

func (p *Pool) runTask(ctx context.Context, c client.Command) {
	defer p.wg.Done()

	select {
	case p.concurrencySem <- struct{}{}:
	case <-p.stopCh:
		return
	case <-ctx.Done():
		return
	}
	defer func() { <-p.concurrencySem }()

	taskCtx, cancel := context.WithTimeout(ctx, p.cfg.TaskTimeout)
	defer cancel()

	result, err := p.executor.Execute(taskCtx, c.PlanID, c.TaskID, c.Payload)

	report := client.TaskReport{PlanID: c.PlanID, TaskID: c.TaskID}
	if err != nil {
		report.State = jobstate.Failed
		report.ErrorMessage = err.Error()
	} else {
		report.State = jobstate.Completed
		report.Result = json.RawMessage(result)
	}

	p.reportsMu.Lock()
	p.reports = append(p.reports, report)
	p.reportsMu.Unlock()
}
