//go:build integration
// +build integration

package integration

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
	"github.com/jobctl/jobmaster/internal/demoworker"
	"github.com/jobctl/jobmaster/internal/jobmaster"
	"github.com/jobctl/jobmaster/internal/logger"
	"github.com/jobctl/jobmaster/internal/plandef"
	"github.com/jobctl/jobmaster/pkg/client"
)

func init() {
	logger.Init("error", false)
}

func newIntegrationServer(t *testing.T) (*httptest.Server, *jobmaster.Master) {
	t.Helper()
	reg := plandef.NewRegistry()
	reg.Register("echo", plandef.Echo{})
	reg.Register("fanout", plandef.Fanout{})

	m := jobmaster.New(clock.Real{}, reg, jobmaster.Config{
		JobCapacity:   10,
		WorkerTimeout: 30 * time.Second,
	}, nil)

	cfg := &config.Config{Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"}}
	server := api.NewServer(cfg, m, nil)
	return httptest.NewServer(server), m
}

// TestPlanLifecycle_RunToCompletionOverHTTP exercises S1 end-to-end: two
// real demoworker.Pool processes register against a real HTTP server, the
// "echo" plan admits a task per worker, and the plan rolls up to COMPLETED
// once both workers report.
func TestPlanLifecycle_RunToCompletionOverHTTP(t *testing.T) {
	srv, _ := newIntegrationServer(t)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var pools []*demoworker.Pool
	for i := 0; i < 2; i++ {
		c, err := client.New(srv.URL)
		require.NoError(t, err)

		pool := demoworker.NewPool(c, demoworker.EchoHandler, demoworker.Config{
			Host:              "demo-worker",
			RPCPort:           9000 + i,
			Concurrency:       1,
			HeartbeatInterval: 20 * time.Millisecond,
		})
		require.NoError(t, pool.Start(ctx))
		pools = append(pools, pool)
	}
	defer func() {
		for _, p := range pools {
			p.Stop(ctx)
		}
	}()

	adminClient, err := client.New(srv.URL)
	require.NoError(t, err)

	planID, err := adminClient.RunPlan(ctx, "echo", nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		status, err := adminClient.GetPlanStatus(ctx, planID)
		return err == nil && status.State.String() == "COMPLETED"
	}, 3*time.Second, 25*time.Millisecond)
}

// TestPlanLifecycle_CapacityDenialOverHTTP exercises S2: admitting past the
// job master's configured capacity returns a 503 over the wire.
func TestPlanLifecycle_CapacityDenialOverHTTP(t *testing.T) {
	reg := plandef.NewRegistry()
	reg.Register("noop", plandef.Noop{})
	m := jobmaster.New(clock.Real{}, reg, jobmaster.Config{JobCapacity: 1}, nil)
	cfg := &config.Config{Metrics: config.MetricsConfig{Enabled: false}}
	server := api.NewServer(cfg, m, nil)
	srv := httptest.NewServer(server)
	defer srv.Close()

	c, err := client.New(srv.URL)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = c.RunPlan(ctx, "noop", nil)
	require.NoError(t, err)

	_, err = c.RunPlan(ctx, "noop", nil)
	require.Error(t, err)
}

// TestPlanLifecycle_SummaryCountsNoPlansAfterWorkerRegistration exercises the
// summary and worker-registration RPCs together over a live HTTP round trip:
// registering a worker admits no plan, so the summary stays empty.
func TestPlanLifecycle_SummaryCountsNoPlansAfterWorkerRegistration(t *testing.T) {
	srv, _ := newIntegrationServer(t)
	defer srv.Close()

	c, err := client.New(srv.URL)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = c.RegisterWorker(ctx, client.RegisterWorkerRequest{Host: "w1", RPCPort: 9000})
	require.NoError(t, err)

	summary, err := c.GetSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Total)
}
