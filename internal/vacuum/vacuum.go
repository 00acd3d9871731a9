// Package vacuum implements the background compaction pass that
// sweeps tombstoned short-ids out of the inverted index, coalescing
// concurrent requests the way the engine's query cache coalesces
// concurrent cache misses.
package vacuum

import (
	"context"
	"log/slog"
	"time"

	"github.com/nullstream/slimsearch/internal/store"
)

const (
	// DefaultBatchSize is the number of dictionary terms swept per
	// batch before yielding.
	DefaultBatchSize = 1000
	// DefaultBatchWait is how long a pass yields between batches.
	DefaultBatchWait = 10 * time.Millisecond
)

// request is one caller's vacuum conditions, with a channel that
// closes once the pass that honors (or discards) it has finished.
type request struct {
	minDirtCount  int
	minDirtFactor float64
	done          chan struct{}
}

// Scheduler runs at most one vacuum pass at a time over a Store, with
// at most one queued follow-up. Additional requests while a pass is
// running fold into the queued slot by taking the minimum of each
// threshold, so the queued pass always reflects the most permissive
// (easiest to satisfy) outstanding request.
type Scheduler struct {
	st        *store.Store
	batchSize int
	batchWait time.Duration
	logger    *slog.Logger

	mu      chan struct{} // 1-buffered mutex, allows select-free locking
	running bool
	queued  *request
}

// New builds a Scheduler with the given batch size and inter-batch
// wait; zero values fall back to DefaultBatchSize/DefaultBatchWait.
func New(st *store.Store, batchSize int, batchWait time.Duration, logger *slog.Logger) *Scheduler {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if batchWait <= 0 {
		batchWait = DefaultBatchWait
	}
	if logger == nil {
		logger = slog.Default()
	}
	mu := make(chan struct{}, 1)
	mu <- struct{}{}
	return &Scheduler{st: st, batchSize: batchSize, batchWait: batchWait, logger: logger, mu: mu}
}

func (s *Scheduler) lock()   { <-s.mu }
func (s *Scheduler) unlock() { s.mu <- struct{}{} }

// Run schedules a vacuum under the given conditions and blocks until
// the pass that ultimately honors (or discards) this request
// completes. Concurrent callers while a pass is already running are
// folded into a single queued follow-up.
func (s *Scheduler) Run(ctx context.Context, minDirtCount int, minDirtFactor float64) {
	s.lock()
	if !s.running {
		s.running = true
		req := &request{minDirtCount: minDirtCount, minDirtFactor: minDirtFactor, done: make(chan struct{})}
		s.unlock()
		s.loop(ctx, req)
		return
	}
	if s.queued == nil {
		s.queued = &request{minDirtCount: minDirtCount, minDirtFactor: minDirtFactor, done: make(chan struct{})}
	} else {
		if minDirtCount < s.queued.minDirtCount {
			s.queued.minDirtCount = minDirtCount
		}
		if minDirtFactor < s.queued.minDirtFactor {
			s.queued.minDirtFactor = minDirtFactor
		}
	}
	wait := s.queued.done
	s.unlock()
	<-wait
}

func (s *Scheduler) loop(ctx context.Context, req *request) {
	s.runPass(ctx, req.minDirtCount, req.minDirtFactor)
	close(req.done)

	s.lock()
	next := s.queued
	s.queued = nil
	if next != nil && conditionsHold(s.st, next.minDirtCount, next.minDirtFactor) {
		s.unlock()
		s.loop(ctx, next)
		return
	}
	s.running = false
	s.unlock()
	if next != nil {
		close(next.done)
	}
}

func conditionsHold(st *store.Store, minDirtCount int, minDirtFactor float64) bool {
	return st.DirtCount() >= minDirtCount && st.DirtFactor() >= minDirtFactor
}

// runPass sweeps the dictionary in batches, yielding batchWait between
// each, then resets dirt accounting and recomputes the average field
// lengths to absorb any drift. It does nothing if the conditions don't
// hold at the time it would start.
func (s *Scheduler) runPass(ctx context.Context, minDirtCount int, minDirtFactor float64) {
	if !conditionsHold(s.st, minDirtCount, minDirtFactor) {
		s.logger.Debug("vacuum skipped, conditions not met",
			"dirtCount", s.st.DirtCount(), "dirtFactor", s.st.DirtFactor())
		return
	}

	cursor := ""
	swept := 0
	for {
		last, visited := s.st.VacuumBatch(cursor, s.batchSize, s.st.IsLive)
		if visited == 0 {
			break
		}
		swept += visited
		cursor = last + "\x00"

		select {
		case <-ctx.Done():
			s.logger.Warn("vacuum pass interrupted", "context_error", ctx.Err())
			return
		case <-time.After(s.batchWait):
		}
	}

	s.st.ResetDirt()
	s.st.RecomputeAvgFieldLength()
	s.logger.Info("vacuum pass complete", "terms_visited", swept)
}
