package stats

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterAccounting(t *testing.T) {
	c := newCounter()
	assert.Equal(t, 0.0, c.Percentage())

	c.Add(2, 1)
	c.Add(2, 2)

	assert.EqualValues(t, 2, c.Calls())
	assert.EqualValues(t, 3, c.Hits())
	assert.EqualValues(t, 1, c.Misses())
	assert.InDelta(t, 75.0, c.Percentage(), 1e-9)
	assert.Equal(t, "75.0% (3/4)", c.String())

	c.Reset()
	assert.EqualValues(t, 0, c.Calls())
	assert.Equal(t, 0.0, c.Percentage())
}

func TestPercentageZeroWhenAllMisses(t *testing.T) {
	c := newCounter()
	c.Add(5, 0)
	assert.Equal(t, 0.0, c.Percentage())
	assert.Equal(t, "0.0% (0/5)", c.String())
}

func TestRegistryLookupAndReset(t *testing.T) {
	r := New()
	assert.False(t, r.Active())
	r.Start()
	assert.True(t, r.Active())
	assert.False(t, r.Toggle())
	assert.True(t, r.Toggle())
	r.Stop()
	assert.False(t, r.Active())

	r.Counter("person", "id").Add(1, 1)
	r.Counter("person", "name").Add(1, 0)
	r.Counter("store", "id").Add(3, 3)

	require.Same(t, r.Counter("person", "id"), r.Counter("person", "id"))
	assert.Len(t, r.Entity("person"), 2)
	assert.Empty(t, r.Entity("unknown"))
	assert.Len(t, r.All(), 2)

	r.Reset("person")
	assert.EqualValues(t, 0, r.Counter("person", "id").Hits())
	assert.EqualValues(t, 3, r.Counter("store", "id").Hits())

	r.ResetAll()
	assert.EqualValues(t, 0, r.Counter("store", "id").Hits())
}

func TestCounterConcurrentAdds(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Counter("person", "id").Add(2, 1)
			}
		}()
	}
	wg.Wait()
	c := r.Counter("person", "id")
	assert.EqualValues(t, 1600, c.Calls())
	assert.EqualValues(t, 1600, c.Hits())
	assert.EqualValues(t, 1600, c.Misses())
}
