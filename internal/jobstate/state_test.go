package jobstate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRollUpRules(t *testing.T) {
	tests := []struct {
		name  string
		tasks []TaskStatus
		want  State
	}{
		{"empty", nil, Created},
		{"all created", []TaskStatus{{State: Created}, {State: Created}}, Created},
		{"one running", []TaskStatus{{State: Created}, {State: Running}}, Running},
		{"all completed", []TaskStatus{{State: Completed}, {State: Completed}}, Completed},
		{"one failed wins over running", []TaskStatus{{State: Running}, {State: Failed}}, Failed},
		{"one canceled wins over failed", []TaskStatus{{State: Failed}, {State: Canceled}}, Canceled},
		{"one canceled wins over completed", []TaskStatus{{State: Completed}, {State: Canceled}}, Canceled},
		{"mixed completed and created is not completed", []TaskStatus{{State: Completed}, {State: Created}}, Created},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RollUp(tt.tasks))
		})
	}
}

func TestStateIsTerminal(t *testing.T) {
	assert.True(t, Completed.IsTerminal())
	assert.True(t, Canceled.IsTerminal())
	assert.True(t, Failed.IsTerminal())
	assert.False(t, Created.IsTerminal())
	assert.False(t, Running.IsTerminal())
}

func TestStateJSONRoundTrip(t *testing.T) {
	for _, s := range []State{Created, Running, Completed, Canceled, Failed} {
		data, err := json.Marshal(s)
		require.NoError(t, err)

		var got State
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, s, got)
	}
}
