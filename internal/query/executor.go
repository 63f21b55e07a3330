package query

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/clarisma/geodesk-go/internal/gderr"
	"github.com/clarisma/geodesk-go/internal/gdstore"
	"github.com/clarisma/geodesk-go/internal/match"
	"github.com/clarisma/geodesk-go/internal/mercator"
)

// Query describes one bbox/matcher/filter request against a store, the
// input to Run (spec §4.7). Workers bounds how many TileQueryTasks run
// concurrently; 0 means "use runtime.NumCPU()" (spec §4.7 "a small
// bounded worker pool, sized to the host's core count by default").
type Query struct {
	Store    *gdstore.Store
	Bbox     mercator.Bounds
	Matcher  *match.Matcher
	Filter   Filter
	Resolver GeometryResolver
	Workers  int
}

func (q Query) workerCount() int {
	if q.Workers > 0 {
		return q.Workers
	}
	n := runtime.NumCPU()
	if n < 1 {
		n = 1
	}
	return n
}

// Results is a submission-ordered, cancellable stream of query matches
// (spec §4.6/§4.7: "Results are produced strictly in submission order —
// the order tiles were handed to the pool — though work within a tile may
// complete out of order relative to other tiles"). It satisfies no
// standard iterator interface itself; callers drive it with All, One, or
// Count.
type Results struct {
	segments <-chan []Ref
	cancel   context.CancelFunc
	err      *error
	done     <-chan struct{}
}

// Run submits one TileQueryTask per tile intersecting q.Bbox to a bounded
// worker pool and returns a Results stream that drains them in submission
// order (spec §4.7 steps 1-4). The caller must eventually call Close (or
// drain to exhaustion, or cancel the supplied context) to release workers.
func Run(ctx context.Context, q Query) *Results {
	ctx, cancel := context.WithCancel(ctx)
	tips := q.Store.TilesIntersecting(q.Bbox)

	type taskOut struct {
		ch  chan []Ref
	}
	outs := make([]taskOut, len(tips))
	for i := range outs {
		outs[i].ch = make(chan []Ref, 4)
	}

	sem := make(chan struct{}, q.workerCount())
	var wg sync.WaitGroup
	var firstErr atomic.Value // stores error

	cancelled := func() bool {
		select {
		case <-ctx.Done():
			return true
		default:
			return false
		}
	}

	for i, tip := range tips {
		i, tip := i, tip
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			defer close(outs[i].ch)

			if cancelled() {
				return
			}
			tile, ok, err := q.Store.LoadTile(tip)
			if err != nil {
				firstErr.CompareAndSwap(nil, err)
				cancel()
				return
			}
			if !ok {
				return
			}
			send := func(batch []Ref) bool {
				select {
				case outs[i].ch <- batch:
					return true
				case <-ctx.Done():
					return false
				}
			}
			runTileTask(tip, tile, q.Bbox, q.Matcher, q.Filter, q.Resolver, send, cancelled)
		}()
	}

	merged := make(chan []Ref, 4)
	done := make(chan struct{})
	var errSlot error
	go func() {
		defer close(merged)
		defer close(done)
		defer func() {
			if v := firstErr.Load(); v != nil {
				errSlot = v.(error)
			}
		}()
		for i := range outs {
			for batch := range outs[i].ch {
				select {
				case merged <- batch:
				case <-ctx.Done():
					wg.Wait()
					return
				}
			}
		}
		wg.Wait()
	}()

	r := &Results{segments: merged, cancel: cancel, done: done}
	r.err = &errSlot
	return r
}

// Close cancels any in-flight tasks and releases worker-pool resources.
// Safe to call multiple times and after the stream is exhausted.
func (r *Results) Close() {
	r.cancel()
}

// All drains the stream, invoking fn once per matching Ref in submission
// order. Returning a non-nil error from fn stops iteration early and is
// returned from All. If a worker failed (e.g. tile I/O error), that error
// is returned once the stream is fully drained.
func (r *Results) All(fn func(Ref) error) error {
	defer r.cancel()
	for batch := range r.segments {
		for _, ref := range batch {
			if err := fn(ref); err != nil {
				return err
			}
		}
	}
	<-r.done
	return *r.err
}

// One returns the first matching Ref, or gderr.NotFound if the stream is
// empty. It cancels remaining work immediately after the first match
// (spec §4.7 "one() cancels outstanding tasks once a single result is
// found").
func (r *Results) One() (Ref, error) {
	var found Ref
	var ok bool
	err := r.All(func(ref Ref) error {
		found, ok = ref, true
		return errStop
	})
	if err != nil && err != errStop {
		return Ref{}, err
	}
	if !ok {
		return Ref{}, gderr.New(gderr.NotFound, "no matching feature")
	}
	return found, nil
}

// Count drains the entire stream and returns the number of matches. If
// limit > 0 and the count would exceed it, Count stops early and returns
// gderr.TooManyResults (spec §4.7 "count(maxResults)").
func (r *Results) Count(limit int) (int, error) {
	n := 0
	err := r.All(func(Ref) error {
		n++
		if limit > 0 && n > limit {
			return gderr.New(gderr.TooManyResults, "result count exceeds limit")
		}
		return nil
	})
	if err != nil {
		return n, err
	}
	return n, nil
}

// errStop is a sentinel used internally by One to halt All without it
// being mistaken for a real failure.
var errStop = gderr.New(gderr.Internal, "stop iteration")
