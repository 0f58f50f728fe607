package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollAllDrainsInFIFOOrder(t *testing.T) {
	m := NewManager()
	m.SubmitRegister(1)
	m.SubmitRunTask(1, 10, 0, []byte("a"))
	m.SubmitCancelTask(1, 10, 1)

	got := m.PollAll(1)
	require.Len(t, got, 3)
	assert.Equal(t, Register, got[0].Kind)
	assert.Equal(t, Run, got[1].Kind)
	assert.Equal(t, Cancel, got[2].Kind)
}

func TestPollAllEmptiesQueue(t *testing.T) {
	m := NewManager()
	m.SubmitRegister(1)
	m.PollAll(1)
	assert.Nil(t, m.PollAll(1))
}

func TestPollAllUnknownWorkerReturnsNil(t *testing.T) {
	m := NewManager()
	assert.Nil(t, m.PollAll(999))
}

func TestQueuesAreIndependentPerWorker(t *testing.T) {
	m := NewManager()
	m.SubmitRegister(1)
	m.SubmitRunTask(2, 5, 0, nil)

	got1 := m.PollAll(1)
	got2 := m.PollAll(2)
	require.Len(t, got1, 1)
	require.Len(t, got2, 1)
	assert.Equal(t, Register, got1[0].Kind)
	assert.Equal(t, Run, got2[0].Kind)
}

func TestForgetDropsQueue(t *testing.T) {
	m := NewManager()
	m.SubmitRegister(1)
	m.Forget(1)
	assert.Nil(t, m.PollAll(1))
}
