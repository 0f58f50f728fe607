package workerset

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addr(host string, port int) Address {
	return Address{Host: host, RPCPort: port}
}

func TestInsertIndexesByIDAndAddr(t *testing.T) {
	s := New()
	w := &Worker{ID: 1, Address: addr("h1", 9000)}
	s.Insert(w)

	require.Equal(t, w, s.FirstByID(1))
	require.Equal(t, w, s.FirstByAddr(addr("h1", 9000)))
	assert.True(t, s.ContainsByAddr(addr("h1", 9000)))
	assert.Equal(t, 1, s.Size())
}

func TestRemoveForgetsBothIndicesAtomically(t *testing.T) {
	s := New()
	w := &Worker{ID: 1, Address: addr("h1", 9000)}
	s.Insert(w)

	removed := s.Remove(1)
	require.NotNil(t, removed)
	assert.Nil(t, s.FirstByID(1))
	assert.False(t, s.ContainsByAddr(addr("h1", 9000)))
	assert.Equal(t, 0, s.Size())
}

func TestRemoveUnknownIDReturnsNil(t *testing.T) {
	s := New()
	assert.Nil(t, s.Remove(42))
}

func TestTouchHeartbeatUnknownWorker(t *testing.T) {
	s := New()
	ok, _ := s.TouchHeartbeat(7, 100)
	assert.False(t, ok)
}

func TestStaleBeforeAndRemoveIfStillStale(t *testing.T) {
	s := New()
	s.Insert(&Worker{ID: 1, Address: addr("h1", 1), LastHeartbeat: 10})
	s.Insert(&Worker{ID: 2, Address: addr("h2", 2), LastHeartbeat: 100})

	stale := s.StaleBefore(50)
	require.Len(t, stale, 1)
	assert.Equal(t, int64(1), stale[0])

	// A heartbeat races in before the detector removes it.
	s.TouchHeartbeat(1, 200)
	assert.Nil(t, s.RemoveIfStillStale(1, 50))
	assert.NotNil(t, s.FirstByID(1))

	// Genuinely still stale.
	assert.NotNil(t, s.RemoveIfStillStale(2, 150))
	assert.Nil(t, s.FirstByID(2))
}

func TestConcurrentInsertAndIterate(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Insert(&Worker{ID: int64(i), Address: addr("h", i)})
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 100, s.Size())

	count := 0
	s.Iterate(func(w Worker) { count++ })
	assert.Equal(t, 100, count)
}
