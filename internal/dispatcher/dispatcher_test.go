// Package dispatcher contains tests for worker coordination.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsEmptyPool(t *testing.T) {
	t.Parallel()

	_, err := New(0)
	require.Error(t, err)

	p, err := New(3)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Workers())
}

// TestDispatchRunsEveryURL ensures the round only returns after all tasks finished.
func TestDispatchRunsEveryURL(t *testing.T) {
	t.Parallel()

	p, err := New(2)
	require.NoError(t, err)

	var (
		mu   sync.Mutex
		seen []string
	)
	urls := []string{"a", "b", "c", "d", "e"}
	err = p.Dispatch(context.Background(), urls, func(_ context.Context, url string) error {
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		seen = append(seen, url)
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, urls, seen)
}

// TestDispatchBoundsParallelism verifies no more than the pool size run together.
func TestDispatchBoundsParallelism(t *testing.T) {
	t.Parallel()

	p, err := New(3)
	require.NoError(t, err)

	var inFlight, peak atomic.Int32
	urls := make([]string, 12)
	for i := range urls {
		urls[i] = fmt.Sprintf("u%d", i)
	}
	err = p.Dispatch(context.Background(), urls, func(_ context.Context, _ string) error {
		n := inFlight.Add(1)
		for {
			cur := peak.Load()
			if n <= cur || peak.CompareAndSwap(cur, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return nil
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Positive(t, peak.Load())
}

// TestDispatchPropagatesError verifies task errors are wrapped for callers.
func TestDispatchPropagatesError(t *testing.T) {
	t.Parallel()

	p, err := New(1)
	require.NoError(t, err)

	boom := errors.New("blob store down")
	err = p.Dispatch(context.Background(), []string{"a", "b"}, func(_ context.Context, url string) error {
		if url == "a" {
			return boom
		}
		return nil
	})
	require.ErrorIs(t, err, boom)
}
