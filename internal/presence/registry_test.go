package presence

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndLookup(t *testing.T) {
	r := NewRegistry[string]()

	r.Register("u1", "conn-a")
	h, ok := r.Lookup("u1")
	require.True(t, ok)
	assert.Equal(t, "conn-a", h)

	_, ok = r.Lookup("u2")
	assert.False(t, ok)
}

func TestLastRegisterWins(t *testing.T) {
	r := NewRegistry[string]()

	r.Register("u1", "tab-1")
	r.Register("u1", "tab-2")

	h, ok := r.Lookup("u1")
	require.True(t, ok)
	assert.Equal(t, "tab-2", h)
	assert.Equal(t, 1, r.Len())
}

func TestStaleUnregisterKeepsNewerEntry(t *testing.T) {
	r := NewRegistry[string]()

	old := r.Register("u1", "tab-1")
	cur := r.Register("u1", "tab-2")

	assert.False(t, r.Unregister("u1", old))
	h, ok := r.Lookup("u1")
	require.True(t, ok)
	assert.Equal(t, "tab-2", h)

	assert.True(t, r.Unregister("u1", cur))
	_, ok = r.Lookup("u1")
	assert.False(t, ok)
}

func TestUnregisterUnknownIsNoop(t *testing.T) {
	r := NewRegistry[string]()
	assert.False(t, r.Unregister("ghost", 42))
	assert.Equal(t, 0, r.Len())
}

func TestSnapshotIsSorted(t *testing.T) {
	r := NewRegistry[int]()
	r.Register("c", 3)
	r.Register("a", 1)
	r.Register("b", 2)

	assert.Equal(t, []string{"a", "b", "c"}, r.Snapshot())
	assert.ElementsMatch(t, []int{1, 2, 3}, r.Handles())
}

func TestConcurrentChurn(t *testing.T) {
	r := NewRegistry[int]()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("u%d", i%5)
			tok := r.Register(id, i)
			_ = r.Snapshot()
			r.Unregister(id, tok)
		}(i)
	}
	wg.Wait()

	// Every registration was either removed by its own token or superseded
	// by a later one that was removed in turn.
	assert.Equal(t, 0, r.Len())
}
