package stream

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOnce_Take(t *testing.T) {
	once := &Once{}
	assert.False(t, once.Taken())

	require.NoError(t, once.Take())
	assert.True(t, once.Taken())

	assert.ErrorIs(t, once.Take(), ErrAlreadyTaken)
	assert.ErrorIs(t, once.Take(), ErrAlreadyTaken)
}

func TestOnce_ConcurrentTake(t *testing.T) {
	once := &Once{}

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if once.Take() == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
}
