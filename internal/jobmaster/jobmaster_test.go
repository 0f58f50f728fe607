package jobmaster

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobctl/jobmaster/internal/command"
	"github.com/jobctl/jobmaster/internal/jobstate"
	"github.com/jobctl/jobmaster/internal/lostworker"
	"github.com/jobctl/jobmaster/internal/plandef"
	"github.com/jobctl/jobmaster/internal/workerset"
)

type fakeClock struct{ ms atomic.Int64 }

func (f *fakeClock) NowMS() int64     { return f.ms.Load() }
func (f *fakeClock) Advance(ms int64) { f.ms.Add(ms) }

func newTestMaster(t *testing.T, cfg Config) (*Master, *fakeClock) {
	t.Helper()
	fc := &fakeClock{}
	reg := plandef.NewRegistry()
	reg.Register("echo", plandef.Echo{})
	reg.Register("noop", plandef.Noop{})
	if cfg.JobCapacity == 0 {
		cfg.JobCapacity = 100
	}
	if cfg.WorkerTimeout == 0 {
		cfg.WorkerTimeout = 30 * time.Second
	}
	return New(fc, reg, cfg, nil), fc
}

func registerAt(t *testing.T, m *Master, host string) int64 {
	t.Helper()
	return m.RegisterWorker(workerset.Address{Host: host, RPCPort: 1})
}

// S1: run-to-completion.
func TestScenarioRunToCompletion(t *testing.T) {
	m, _ := newTestMaster(t, Config{})
	w1 := registerAt(t, m, "w1")
	w2 := registerAt(t, m, "w2")

	planID, err := m.Run(context.Background(), "echo", json.RawMessage(`"x"`))
	require.NoError(t, err)

	cmds1 := m.Commands().PollAll(w1)
	cmds2 := m.Commands().PollAll(w2)
	require.Len(t, cmds1, 1)
	require.Len(t, cmds2, 1)

	m.WorkerHeartbeat(context.Background(), w1, []PlanTaskReport{{PlanID: planID, TaskID: cmds1[0].TaskID, State: jobstate.Running}})
	m.WorkerHeartbeat(context.Background(), w2, []PlanTaskReport{{PlanID: planID, TaskID: cmds2[0].TaskID, State: jobstate.Running}})
	m.WorkerHeartbeat(context.Background(), w1, []PlanTaskReport{{PlanID: planID, TaskID: cmds1[0].TaskID, State: jobstate.Completed, Result: json.RawMessage(`"a"`)}})
	m.WorkerHeartbeat(context.Background(), w2, []PlanTaskReport{{PlanID: planID, TaskID: cmds2[0].TaskID, State: jobstate.Completed, Result: json.RawMessage(`"b"`)}})

	status, err := m.GetStatus(planID)
	require.NoError(t, err)
	assert.Equal(t, jobstate.Completed, status.State)
}

// S2: capacity denial.
func TestScenarioCapacityDenial(t *testing.T) {
	m, _ := newTestMaster(t, Config{JobCapacity: 2, FinishedJobRetention: time.Hour})

	_, err := m.Run(context.Background(), "noop", nil)
	require.NoError(t, err)
	_, err = m.Run(context.Background(), "noop", nil)
	require.NoError(t, err)
	_, err = m.Run(context.Background(), "noop", nil)
	assert.ErrorIs(t, err, ErrCapacityExceeded)
}

// S3: purge on admission.
func TestScenarioPurgeOnAdmission(t *testing.T) {
	m, fc := newTestMaster(t, Config{JobCapacity: 1, FinishedJobRetention: 0, FinishedJobPurgeCount: 1})

	p1, err := m.Run(context.Background(), "noop", nil)
	require.NoError(t, err)
	fc.Advance(1)

	p2, err := m.Run(context.Background(), "noop", nil)
	require.NoError(t, err)

	ids := m.List()
	assert.Contains(t, ids, p1)
	assert.Contains(t, ids, p2)
}

// S4: worker timeout.
func TestScenarioWorkerTimeout(t *testing.T) {
	m, fc := newTestMaster(t, Config{WorkerTimeout: 1000 * time.Millisecond})
	w1 := registerAt(t, m, "w1")

	planID, err := m.Run(context.Background(), "echo", nil)
	require.NoError(t, err)

	fc.Advance(2000)
	det := lostworker.New(m.Workers(), m.Tracker(), m.cfg.WorkerTimeout.Milliseconds(), nil)
	det.Sweep(context.Background(), m.clock.NowMS())

	status, err := m.GetStatus(planID)
	require.NoError(t, err)
	assert.Equal(t, jobstate.Failed, status.State)
	assert.Nil(t, m.Workers().FirstByID(w1))
}

// S5: re-registration races heartbeat.
func TestScenarioReRegistrationRacesHeartbeat(t *testing.T) {
	m, _ := newTestMaster(t, Config{})
	w1 := registerAt(t, m, "w1")

	planID, err := m.Run(context.Background(), "echo", nil)
	require.NoError(t, err)

	// Re-register at the same address: w1 is evicted, w2 takes over.
	w2 := registerAt(t, m, "w1")
	assert.NotEqual(t, w1, w2)

	cmds := m.WorkerHeartbeat(context.Background(), w1, nil)
	require.Len(t, cmds, 1)
	assert.Equal(t, command.Register, cmds[0].Kind)

	status, err := m.GetStatus(planID)
	require.NoError(t, err)
	assert.Equal(t, jobstate.Failed, status.State)
}

// S6: cancel then late completion.
func TestScenarioCancelThenLateCompletion(t *testing.T) {
	m, _ := newTestMaster(t, Config{})
	w1 := registerAt(t, m, "w1")
	w2 := registerAt(t, m, "w2")

	planID, err := m.Run(context.Background(), "echo", nil)
	require.NoError(t, err)

	cmds1 := m.Commands().PollAll(w1)
	cmds2 := m.Commands().PollAll(w2)

	m.WorkerHeartbeat(context.Background(), w1, []PlanTaskReport{{PlanID: planID, TaskID: cmds1[0].TaskID, State: jobstate.Running}})
	m.WorkerHeartbeat(context.Background(), w2, []PlanTaskReport{{PlanID: planID, TaskID: cmds2[0].TaskID, State: jobstate.Running}})

	require.NoError(t, m.Cancel(planID))

	m.WorkerHeartbeat(context.Background(), w1, []PlanTaskReport{{PlanID: planID, TaskID: cmds1[0].TaskID, State: jobstate.Canceled}})
	m.WorkerHeartbeat(context.Background(), w2, []PlanTaskReport{{PlanID: planID, TaskID: cmds2[0].TaskID, State: jobstate.Completed}})

	status, err := m.GetStatus(planID)
	require.NoError(t, err)
	assert.Equal(t, jobstate.Canceled, status.State)
}

func TestRunUnknownPlanName(t *testing.T) {
	m, _ := newTestMaster(t, Config{})
	_, err := m.Run(context.Background(), "nonexistent", nil)
	assert.ErrorIs(t, err, ErrUnknownPlan)
}

func TestCancelUnknownPlan(t *testing.T) {
	m, _ := newTestMaster(t, Config{})
	assert.ErrorIs(t, m.Cancel(999), ErrNotFound)
}

func TestGetStatusUnknownPlan(t *testing.T) {
	m, _ := newTestMaster(t, Config{})
	_, err := m.GetStatus(999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHeartbeatUnknownWorkerAsksToReregister(t *testing.T) {
	m, _ := newTestMaster(t, Config{})
	cmds := m.WorkerHeartbeat(context.Background(), 12345, nil)
	require.Len(t, cmds, 1)
	assert.Equal(t, command.Register, cmds[0].Kind)
}

func TestGetSummaryGroupsByState(t *testing.T) {
	m, _ := newTestMaster(t, Config{})
	_, err := m.Run(context.Background(), "noop", nil)
	require.NoError(t, err)

	summary := m.GetSummary()
	assert.Equal(t, 1, summary.Total)
	assert.Len(t, summary.ByState["COMPLETED"], 1)
}
