package calibrate

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
)

// ScanResult is the first outer candidate, in scan order, whose inner solve found a root.
type ScanResult struct {
	Outer float64 `json:"outer"`
	Inner float64 `json:"inner"`
	// Tried counts candidates evaluated before the scan settled.
	Tried int `json:"tried"`
}

// Steps returns from, from+step, ... up to and including to (within half a step).
func Steps(from, to, step float64) ([]float64, error) {
	if step == 0 || math.IsNaN(step) {
		return nil, fmt.Errorf("Steps: step must be non-zero")
	}
	if (to-from)/step < 0 {
		return nil, fmt.Errorf("Steps: step %v does not move %v towards %v", step, from, to)
	}
	n := int(math.Floor((to-from)/step+0.5)) + 1
	out := make([]float64, n)
	for i := range out {
		out[i] = from + float64(i)*step
	}
	return out, nil
}

// Scan runs solve for every outer candidate on up to opts.Workers goroutines and returns
// the first candidate in outer order that settled the scan: a root is returned as the
// result, a hard (non-ErrNoRoot) error aborts the scan. Candidates after the settling one
// are skipped. When every candidate reports ErrNoRoot the scan returns ErrNoRoot.
func Scan(outer []float64, solve func(outer float64) (float64, error), opts Options) (ScanResult, error) {
	opts = opts.withDefaults()
	if len(outer) == 0 {
		return ScanResult{}, fmt.Errorf("Scan: no outer candidates: %w", ErrNoRoot)
	}

	type outcome struct {
		inner float64
		err   error
		done  bool
	}
	results := make([]outcome, len(outer))

	var settled atomic.Int64
	settled.Store(int64(len(outer)))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < min(opts.Workers, len(outer)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if int64(i) > settled.Load() {
					continue
				}
				inner, err := solve(outer[i])
				results[i] = outcome{inner: inner, err: err, done: true}
				if err == nil || !errors.Is(err, ErrNoRoot) {
					for {
						cur := settled.Load()
						if int64(i) >= cur || settled.CompareAndSwap(cur, int64(i)) {
							break
						}
					}
				}
			}
		}()
	}
	for i := range outer {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	tried := 0
	for i, r := range results {
		if !r.done {
			continue
		}
		tried++
		if r.err == nil {
			opts.Logger.Debug("scan found root", "outer", outer[i], "inner", r.inner, "index", i)
			return ScanResult{Outer: outer[i], Inner: r.inner, Tried: tried}, nil
		}
		if !errors.Is(r.err, ErrNoRoot) {
			return ScanResult{}, fmt.Errorf("Scan: outer %v: %w", outer[i], r.err)
		}
	}
	return ScanResult{}, fmt.Errorf("Scan: %d candidates in [%v, %v]: %w", len(outer), outer[0], outer[len(outer)-1], ErrNoRoot)
}
