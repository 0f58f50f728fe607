package coordinator

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobctl/jobmaster/internal/clock"
	"github.com/jobctl/jobmaster/internal/command"
	"github.com/jobctl/jobmaster/internal/jobstate"
	"github.com/jobctl/jobmaster/internal/plandef"
	"github.com/jobctl/jobmaster/internal/workerset"
)

func workers(ids ...int64) []workerset.Worker {
	ws := make([]workerset.Worker, len(ids))
	for i, id := range ids {
		ws[i] = workerset.Worker{ID: id, Address: workerset.Address{Host: "h"}}
	}
	return ws
}

func newTestCoordinator(t *testing.T, def plandef.Definition, ws []workerset.Worker) (*Coordinator, *command.Manager) {
	t.Helper()
	cmdMgr := command.NewManager()
	c := New(context.Background(), clock.Real{}, cmdMgr, def, 1, "echo", nil, ws, nil)
	return c, cmdMgr
}

func TestRunToCompletion(t *testing.T) {
	c, cmdMgr := newTestCoordinator(t, plandef.Echo{}, workers(10, 20))
	require.False(t, c.IsFinished())

	cmds10 := cmdMgr.PollAll(10)
	cmds20 := cmdMgr.PollAll(20)
	require.Len(t, cmds10, 1)
	require.Len(t, cmds20, 1)

	c.UpdateTasks(context.Background(), []TaskReport{{TaskID: cmds10[0].TaskID, State: jobstate.Running}})
	c.UpdateTasks(context.Background(), []TaskReport{{TaskID: cmds20[0].TaskID, State: jobstate.Running}})
	assert.Equal(t, jobstate.Running, c.Snapshot().State)

	c.UpdateTasks(context.Background(), []TaskReport{{TaskID: cmds10[0].TaskID, State: jobstate.Completed, Result: json.RawMessage(`"a"`)}})
	assert.Equal(t, jobstate.Running, c.Snapshot().State)

	c.UpdateTasks(context.Background(), []TaskReport{{TaskID: cmds20[0].TaskID, State: jobstate.Completed, Result: json.RawMessage(`"b"`)}})

	snap := c.Snapshot()
	assert.Equal(t, jobstate.Completed, snap.State)
	assert.JSONEq(t, `["a","b"]`, string(snap.Result))
	assert.True(t, c.IsFinished())
}

func TestTerminalStickiness(t *testing.T) {
	c, cmdMgr := newTestCoordinator(t, plandef.Echo{}, workers(1))
	cmds := cmdMgr.PollAll(1)
	taskID := cmds[0].TaskID

	c.UpdateTasks(context.Background(), []TaskReport{{TaskID: taskID, State: jobstate.Completed}})
	assert.Equal(t, jobstate.Completed, c.Snapshot().State)

	// A late, stale report must not flip the task or plan backwards.
	c.UpdateTasks(context.Background(), []TaskReport{{TaskID: taskID, State: jobstate.Failed, ErrorMessage: "late"}})
	snap := c.Snapshot()
	assert.Equal(t, jobstate.Completed, snap.State)
	assert.Equal(t, jobstate.Completed, snap.Children[0].State)
}

func TestCancelThenLateCompletion(t *testing.T) {
	c, cmdMgr := newTestCoordinator(t, plandef.Echo{}, workers(1, 2))
	cmds1 := cmdMgr.PollAll(1)
	cmds2 := cmdMgr.PollAll(2)

	c.UpdateTasks(context.Background(), []TaskReport{{TaskID: cmds1[0].TaskID, State: jobstate.Running}})
	c.UpdateTasks(context.Background(), []TaskReport{{TaskID: cmds2[0].TaskID, State: jobstate.Running}})

	c.Cancel(cmdMgr)
	cancelCmds := cmdMgr.PollAll(1)
	require.Len(t, cancelCmds, 1)
	assert.Equal(t, command.Cancel, cancelCmds[0].Kind)

	c.UpdateTasks(context.Background(), []TaskReport{{TaskID: cmds1[0].TaskID, State: jobstate.Canceled}})
	c.UpdateTasks(context.Background(), []TaskReport{{TaskID: cmds2[0].TaskID, State: jobstate.Completed}})

	assert.Equal(t, jobstate.Canceled, c.Snapshot().State)
}

func TestFailTasksForWorkerContainsOnlyThatWorker(t *testing.T) {
	c, cmdMgr := newTestCoordinator(t, plandef.Echo{}, workers(1, 2))
	cmds1 := cmdMgr.PollAll(1)
	cmds2 := cmdMgr.PollAll(2)
	c.UpdateTasks(context.Background(), []TaskReport{{TaskID: cmds1[0].TaskID, State: jobstate.Running}})
	c.UpdateTasks(context.Background(), []TaskReport{{TaskID: cmds2[0].TaskID, State: jobstate.Running}})

	c.FailTasksForWorker(context.Background(), 1, "worker lost")

	snap := c.Snapshot()
	for _, ts := range snap.Children {
		if ts.WorkerID == 1 {
			assert.Equal(t, jobstate.Failed, ts.State)
		} else {
			assert.Equal(t, jobstate.Running, ts.State)
		}
	}
	assert.Equal(t, jobstate.Failed, snap.State)
}

func TestNoopExpandsToImmediateCompletion(t *testing.T) {
	c, _ := newTestCoordinator(t, plandef.Noop{}, workers(1))
	assert.True(t, c.IsFinished())
	assert.Equal(t, jobstate.Completed, c.Snapshot().State)
}

func TestExpansionFailureLeavesCoordinatorFailed(t *testing.T) {
	c, _ := newTestCoordinator(t, failingDef{}, workers(1))
	assert.True(t, c.IsFinished())
	snap := c.Snapshot()
	assert.Equal(t, jobstate.Failed, snap.State)
	assert.NotEmpty(t, snap.ErrorMessage)
}

type failingDef struct{}

func (failingDef) Expand(context.Context, json.RawMessage, []workerset.Worker) ([]plandef.TaskDescriptor, error) {
	return nil, assertErr
}
func (failingDef) Join(context.Context, []plandef.TaskResult) (json.RawMessage, error) {
	return nil, nil
}
func (failingDef) TriviallyComplete() bool { return false }

var assertErr = jsonErr("boom")

type jsonErr string

func (e jsonErr) Error() string { return string(e) }
