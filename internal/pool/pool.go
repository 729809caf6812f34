// Package pool provides a bounded parallel fan-out over independent items.
// It exists for latency, not throughput: per-element DOM reads are I/O-light
// and embarrassingly parallel, but must come back in input order.
package pool

import "sync"

// Map applies fn to every item using at most limit concurrent workers and
// returns the results in input order regardless of completion order. A limit
// below 1 runs sequentially.
func Map[T, R any](items []T, limit int, fn func(T) (R, error)) ([]R, []error) {
	results := make([]R, len(items))
	errs := make([]error, len(items))

	if limit < 1 {
		limit = 1
	}
	sem := make(chan struct{}, limit)

	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, item T) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i], errs[i] = fn(item)
		}(i, item)
	}
	wg.Wait()

	return results, errs
}
