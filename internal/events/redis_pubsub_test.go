package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRedisPubSub(t *testing.T) {
	// Test with nil client - should create struct correctly even with nil
	// (actual operations would fail but construction should work)
	pubsub := NewRedisPubSub(nil)

	assert.NotNil(t, pubsub)
	assert.Nil(t, pubsub.client)
	assert.NotNil(t, pubsub.subscribers)
	assert.Len(t, pubsub.subscribers, 0)
}

func TestRedisPubSub_channelName(t *testing.T) {
	pubsub := NewRedisPubSub(nil)

	tests := []struct {
		eventType EventType
		expected  string
	}{
		{EventPlanAdmitted, "jobmaster:events:plan.admitted"},
		{EventPlanDenied, "jobmaster:events:plan.denied"},
		{EventPlanStateChanged, "jobmaster:events:plan.state_changed"},
		{EventWorkerRegistered, "jobmaster:events:worker.registered"},
		{EventWorkerEvicted, "jobmaster:events:worker.evicted"},
		{EventWorkerLost, "jobmaster:events:worker.lost"},
		{EventCommandEnqueued, "jobmaster:events:command.enqueued"},
	}

	for _, tc := range tests {
		t.Run(string(tc.eventType), func(t *testing.T) {
			channel := pubsub.channelName(tc.eventType)
			assert.Equal(t, tc.expected, channel)
		})
	}
}

func TestRedisPubSub_Close_EmptySubscribers(t *testing.T) {
	pubsub := NewRedisPubSub(nil)

	// Should not panic with empty subscribers
	err := pubsub.Close()
	assert.NoError(t, err)
	assert.Len(t, pubsub.subscribers, 0)
}

func TestChannelPrefix(t *testing.T) {
	assert.Equal(t, "jobmaster:events:", channelPrefix)
}
