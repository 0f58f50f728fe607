package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/jobctl/jobmaster/internal/jobstate"
)

// Client is a hand-written HTTP client for the job master's §6 RPCs (not
// generated from an OpenAPI document: see DESIGN.md). Grounded on the
// teacher's pkg/client/client.go for its functional-option shape and
// WebSocket-bridging methods; the request/response plumbing below replaces
// the teacher's oapi-codegen-generated transport with direct net/http calls.
type Client struct {
	baseURL string
	opts    *options
	ws      *WebSocketClient
}

// New creates a new Client bound to the job master at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSuffix(baseURL, "/")

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	return &Client{
		baseURL: baseURL,
		opts:    o,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.opts.applyHeaders(req)

	resp, err := c.opts.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if jsonErr := json.Unmarshal(data, &errResp); jsonErr == nil && errResp.Message != "" {
			return resp.StatusCode, fmt.Errorf("%s: %s", errResp.Error, errResp.Message)
		}
		return resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return resp.StatusCode, nil
}

// RunPlanRequest is the wire request for RunPlan.
type RunPlanRequest struct {
	Name   string          `json:"name"`
	Config json.RawMessage `json:"config,omitempty"`
}

// RunPlan submits a new plan run and returns its allocated plan id.
func (c *Client) RunPlan(ctx context.Context, name string, cfg json.RawMessage) (int64, error) {
	var resp struct {
		PlanID int64 `json:"plan_id"`
	}
	_, err := c.do(ctx, http.MethodPost, "/api/v1/plans", RunPlanRequest{Name: name, Config: cfg}, &resp)
	if err != nil {
		return 0, err
	}
	return resp.PlanID, nil
}

// CancelPlan requests cancellation of a live plan.
func (c *Client) CancelPlan(ctx context.Context, planID int64) error {
	_, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/v1/plans/%d", planID), nil, nil)
	return err
}

// ListPlans returns every known plan id.
func (c *Client) ListPlans(ctx context.Context) ([]int64, error) {
	var resp struct {
		PlanIDs []int64 `json:"plan_ids"`
	}
	_, err := c.do(ctx, http.MethodGet, "/api/v1/plans", nil, &resp)
	if err != nil {
		return nil, err
	}
	return resp.PlanIDs, nil
}

// GetPlanStatus fetches a single plan's current status.
func (c *Client) GetPlanStatus(ctx context.Context, planID int64) (*jobstate.PlanStatus, error) {
	var status jobstate.PlanStatus
	_, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/plans/%d", planID), nil, &status)
	if err != nil {
		return nil, err
	}
	return &status, nil
}

// JobServiceSummary mirrors jobmaster.JobServiceSummary's wire shape.
type JobServiceSummary struct {
	ByState map[string][]jobstate.PlanStatus `json:"by_state"`
	Total   int                              `json:"total"`
}

// GetSummary fetches the job master's live-plan summary.
func (c *Client) GetSummary(ctx context.Context) (*JobServiceSummary, error) {
	var summary JobServiceSummary
	_, err := c.do(ctx, http.MethodGet, "/api/v1/summary", nil, &summary)
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

// RegisterWorkerRequest is the wire request for RegisterWorker.
type RegisterWorkerRequest struct {
	Host         string `json:"host"`
	RPCPort      int    `json:"rpc_port"`
	DataPort     int    `json:"data_port"`
	WebPort      int    `json:"web_port"`
	DomainSocket string `json:"domain_socket,omitempty"`
}

// RegisterWorker registers a worker address and returns its allocated id.
func (c *Client) RegisterWorker(ctx context.Context, req RegisterWorkerRequest) (int64, error) {
	var resp struct {
		WorkerID int64 `json:"worker_id"`
	}
	_, err := c.do(ctx, http.MethodPost, "/api/v1/workers/register", req, &resp)
	if err != nil {
		return 0, err
	}
	return resp.WorkerID, nil
}

// TaskReport is one worker-reported task status update.
type TaskReport struct {
	PlanID       int64           `json:"plan_id"`
	TaskID       int64           `json:"task_id"`
	State        jobstate.State  `json:"state"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
}

// Command is one instruction returned to a worker by Heartbeat.
type Command struct {
	Kind    string          `json:"kind"`
	PlanID  int64           `json:"plan_id,omitempty"`
	TaskID  int64           `json:"task_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Heartbeat reports task progress for workerID and returns its pending
// commands. A REGISTER command means "forget your id and re-register."
func (c *Client) Heartbeat(ctx context.Context, workerID int64, reports []TaskReport) ([]Command, error) {
	var resp struct {
		Commands []Command `json:"commands"`
	}
	body := struct {
		Reports []TaskReport `json:"reports"`
	}{Reports: reports}
	_, err := c.do(ctx, http.MethodPost, "/api/v1/workers/"+strconv.FormatInt(workerID, 10)+"/heartbeat", body, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Commands, nil
}

// ConnectWebSocket establishes a WebSocket connection for real-time events.
func (c *Client) ConnectWebSocket(ctx context.Context) error {
	if c.ws != nil && c.ws.IsConnected() {
		return nil
	}
	c.ws = newWebSocketClient(c.baseURL, c.opts.apiKey)
	return c.ws.Connect(ctx)
}

// Events returns a channel that receives WebSocket events. Call
// ConnectWebSocket first.
func (c *Client) Events() <-chan *Event {
	if c.ws == nil {
		ch := make(chan *Event)
		close(ch)
		return ch
	}
	return c.ws.Events()
}

// CloseWebSocket closes the WebSocket connection.
func (c *Client) CloseWebSocket() error {
	if c.ws == nil {
		return nil
	}
	return c.ws.Close()
}

// SubscribeEvents subscribes to specific event types.
func (c *Client) SubscribeEvents(eventTypes ...EventType) error {
	if c.ws == nil {
		return fmt.Errorf("websocket not connected")
	}
	return c.ws.Subscribe(eventTypes...)
}
