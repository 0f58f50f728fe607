package lostworker

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobctl/jobmaster/internal/command"
	"github.com/jobctl/jobmaster/internal/jobstate"
	"github.com/jobctl/jobmaster/internal/plandef"
	"github.com/jobctl/jobmaster/internal/tracker"
	"github.com/jobctl/jobmaster/internal/workerset"
)

type fakeClock struct{ ms atomic.Int64 }

func (f *fakeClock) NowMS() int64 { return f.ms.Load() }

func TestSweepFailsTasksAndEvictsStaleWorker(t *testing.T) {
	fc := &fakeClock{}
	ws := workerset.New()
	ws.Insert(&workerset.Worker{ID: 1, Address: workerset.Address{Host: "h1"}, LastHeartbeat: 0})

	tr := tracker.New(fc, tracker.Config{Capacity: 10, RetentionMS: 0, PurgeCount: -1})
	cmdMgr := command.NewManager()
	c, err := tr.Run(context.Background(), fc, cmdMgr, plandef.Echo{}, 1, "echo", nil, []workerset.Worker{{ID: 1, Address: workerset.Address{Host: "h1"}}}, nil)
	require.NoError(t, err)

	var lost []int64
	d := New(ws, tr, 1000, func(id int64) { lost = append(lost, id) })

	d.Sweep(context.Background(), 2000) // now - lastHeartbeat(0) = 2000 > timeout(1000)

	assert.Equal(t, jobstate.Failed, c.Snapshot().State)
	assert.Nil(t, ws.FirstByID(1))
	assert.Equal(t, []int64{1}, lost)
}

func TestSweepDoesNotEvictFreshWorker(t *testing.T) {
	fc := &fakeClock{}
	ws := workerset.New()
	ws.Insert(&workerset.Worker{ID: 1, Address: workerset.Address{Host: "h1"}, LastHeartbeat: 900})

	tr := tracker.New(fc, tracker.Config{Capacity: 10, RetentionMS: 0, PurgeCount: -1})
	d := New(ws, tr, 1000, nil)

	d.Sweep(context.Background(), 1000) // now - lastHeartbeat(900) = 100 < timeout(1000)

	assert.NotNil(t, ws.FirstByID(1))
}
