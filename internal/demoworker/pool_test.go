package demoworker

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobctl/jobmaster/internal/api"
	"github.com/jobctl/jobmaster/internal/clock"
	"github.com/jobctl/jobmaster/internal/config"
	"github.com/jobctl/jobmaster/internal/jobmaster"
	"github.com/jobctl/jobmaster/internal/plandef"
	"github.com/jobctl/jobmaster/pkg/client"
)

func newTestMaster(t *testing.T) (*httptest.Server, *jobmaster.Master) {
	t.Helper()
	reg := plandef.NewRegistry()
	reg.Register("echo", plandef.Echo{})
	m := jobmaster.New(clock.Real{}, reg, jobmaster.Config{
		JobCapacity:   10,
		WorkerTimeout: 30 * time.Second,
	}, nil)

	cfg := &config.Config{Metrics: config.MetricsConfig{Enabled: false}}
	s := api.NewServer(cfg, m, nil)
	return httptest.NewServer(s), m
}

func TestPoolRegistersAndExecutesRunCommand(t *testing.T) {
	srv, m := newTestMaster(t)
	defer srv.Close()

	c, err := client.New(srv.URL)
	require.NoError(t, err)

	pool := NewPool(c, EchoHandler, Config{
		Host:              "demo-1",
		Concurrency:       2,
		HeartbeatInterval: 20 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, pool.Start(ctx))
	assert.NotZero(t, pool.WorkerID())

	planID, err := c.RunPlan(ctx, "echo", nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		status, err := c.GetPlanStatus(ctx, planID)
		if err != nil {
			return false
		}
		return status.State.String() == "COMPLETED"
	}, 2*time.Second, 20*time.Millisecond)

	pool.Stop(ctx)
	_ = m
}

func TestPoolDispatchIgnoresUnknownCommandKind(t *testing.T) {
	pool := NewPool(nil, EchoHandler, Config{})
	pool.dispatch(context.Background(), client.Command{Kind: "BOGUS"})
}
