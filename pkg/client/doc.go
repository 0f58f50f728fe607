// Package client provides a Go SDK for the job master API.
//
// It is a hand-written HTTP client, not generated from an OpenAPI document,
// and provides typed methods for running plans, querying their status, and
// registering/heartbeating workers, plus a WebSocket client for the live
// status feed.
//
// # Basic Usage
//
//	c, err := client.New("http://localhost:8080")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	planID, err := c.RunPlan(ctx, "echo", nil)
//
// # WebSocket Events
//
//	err := c.ConnectWebSocket(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.CloseWebSocket()
//
//	for event := range c.Events() {
//	    fmt.Printf("Event: %s\n", event.Type)
//	}
//
// # Configuration
//
// The client supports functional options for configuration:
//
//	c, err := client.New("http://localhost:8080",
//	    client.WithAPIKey("your-api-key"),
//	    client.WithTimeout(30 * time.Second),
//	)
package client
