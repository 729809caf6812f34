package pool

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapPreservesOrder(t *testing.T) {
	items := make([]int, 100)
	for i := range items {
		items[i] = i
	}

	results, errs := Map(items, 8, func(n int) (int, error) {
		return n * 2, nil
	})

	require.Len(t, results, 100)
	for i, r := range results {
		assert.Equal(t, i*2, r)
		assert.NoError(t, errs[i])
	}
}

func TestMapKeepsPerItemErrors(t *testing.T) {
	items := []int{1, 2, 3, 4}

	results, errs := Map(items, 2, func(n int) (int, error) {
		if n%2 == 0 {
			return 0, fmt.Errorf("item %d failed", n)
		}
		return n, nil
	})

	assert.Equal(t, []int{1, 0, 3, 0}, results)
	assert.NoError(t, errs[0])
	assert.EqualError(t, errs[1], "item 2 failed")
	assert.NoError(t, errs[2])
	assert.EqualError(t, errs[3], "item 4 failed")
}

func TestMapHonorsConcurrencyLimit(t *testing.T) {
	var active, peak int64
	items := make([]int, 50)

	Map(items, 3, func(int) (int, error) {
		cur := atomic.AddInt64(&active, 1)
		for {
			old := atomic.LoadInt64(&peak)
			if cur <= old || atomic.CompareAndSwapInt64(&peak, old, cur) {
				break
			}
		}
		atomic.AddInt64(&active, -1)
		return 0, nil
	})

	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(3))
}

func TestMapSequentialFallback(t *testing.T) {
	results, errs := Map([]string{"a", "b"}, 0, func(s string) (string, error) {
		return s + s, nil
	})
	assert.Equal(t, []string{"aa", "bb"}, results)
	assert.Len(t, errs, 2)
}

func TestMapEmptyInput(t *testing.T) {
	results, errs := Map(nil, 4, func(int) (int, error) { return 0, nil })
	assert.Empty(t, results)
	assert.Empty(t, errs)
}
