package tilemesh

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorustyt/tilenav/common/message"
	"github.com/gorustyt/tilenav/detour"
	"go.uber.org/zap"
)

// BuildSession tracks one bulk build. Counters are updated by the applier
// and may be read from any goroutine.
type BuildSession struct {
	cancel atomic.Bool

	processed atomic.Int64
	built     atomic.Int64
	empty     atomic.Int64
	failed    atomic.Int64
	elapsed   atomic.Int64

	total int
	start time.Time
	done  chan struct{}

	mu       sync.Mutex
	failures []message.TileFailure
}

func newBuildSession(total int) *BuildSession {
	return &BuildSession{
		total: total,
		start: time.Now(),
		done:  make(chan struct{}),
	}
}

// Cancel stops workers from starting new tiles. Tiles already being built
// finish and are applied. Cancelling a drained session is a no-op.
func (s *BuildSession) Cancel() {
	if s.Running() {
		s.cancel.Store(true)
	}
}

func (s *BuildSession) Cancelled() bool {
	return s.cancel.Load()
}

// Wait blocks until every worker and the applier have exited.
func (s *BuildSession) Wait() {
	<-s.done
}

func (s *BuildSession) Done() <-chan struct{} {
	return s.done
}

func (s *BuildSession) Running() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Progress returns the number of applied tiles, the tile total and the
// time spent so far.
func (s *BuildSession) Progress() (built, total int, elapsed time.Duration) {
	return int(s.processed.Load()), s.total, s.Elapsed()
}

func (s *BuildSession) Elapsed() time.Duration {
	if s.Running() {
		return time.Since(s.start)
	}
	return time.Duration(s.elapsed.Load())
}

func (s *BuildSession) Report() *message.BuildReport {
	s.mu.Lock()
	failures := append([]message.TileFailure(nil), s.failures...)
	s.mu.Unlock()
	return &message.BuildReport{
		TilesTotal:  s.total,
		TilesBuilt:  int(s.built.Load()),
		TilesEmpty:  int(s.empty.Load()),
		TilesFailed: int(s.failed.Load()),
		Elapsed:     s.Elapsed(),
		Cancelled:   s.Cancelled(),
		Failures:    failures,
	}
}

func (s *BuildSession) recordFailure(coord detour.TileCoord, err error) {
	s.failed.Add(1)
	s.mu.Lock()
	s.failures = append(s.failures, message.TileFailure{X: coord.X, Y: coord.Y, Reason: err.Error()})
	s.mu.Unlock()
}

// Scheduler fans tile builds out over a worker pool and applies the
// results to the store from a single goroutine.
type Scheduler struct {
	Builder *TileBuilder
	Store   *detour.NavMesh
	Workers int
	Log     *zap.Logger
}

func (s *Scheduler) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

func (s *Scheduler) workers(n int) int {
	w := s.Workers
	if w <= 0 {
		w = runtime.GOMAXPROCS(0)
	}
	return max(min(w, n), 1)
}

// Start builds every coordinate in the background and returns at once.
func (s *Scheduler) Start(coords []detour.TileCoord) *BuildSession {
	sess := newBuildSession(len(coords))
	log := s.logger()

	tasks := make(chan detour.TileCoord, len(coords))
	for _, c := range coords {
		tasks <- c
	}
	close(tasks)

	nworkers := s.workers(len(coords))
	results := make(chan TileBuildResult, nworkers)

	var wg sync.WaitGroup
	wg.Add(nworkers)
	for i := 0; i < nworkers; i++ {
		go func() {
			defer wg.Done()
			for c := range tasks {
				if sess.cancel.Load() {
					continue
				}
				results <- s.buildTile(c)
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	go func() {
		for res := range results {
			s.apply(sess, res)
			sess.processed.Add(1)
		}
		sess.elapsed.Store(int64(time.Since(sess.start)))
		log.Info("build finished",
			zap.Int("total", sess.total),
			zap.Int64("built", sess.built.Load()),
			zap.Int64("empty", sess.empty.Load()),
			zap.Int64("failed", sess.failed.Load()),
			zap.Bool("cancelled", sess.Cancelled()),
			zap.Duration("elapsed", time.Duration(sess.elapsed.Load())))
		close(sess.done)
	}()

	log.Info("build started", zap.Int("tiles", len(coords)), zap.Int("workers", nworkers))
	return sess
}

// buildTile turns a panicking build into a failed result.
func (s *Scheduler) buildTile(c detour.TileCoord) (res TileBuildResult) {
	defer func() {
		if r := recover(); r != nil {
			res = TileBuildResult{
				Status: TileFailed,
				Coord:  c,
				Err:    fmt.Errorf("%w: panic: %v", ErrStepFailure, r),
			}
		}
	}()
	return s.Builder.Build(int(c.X), int(c.Y))
}

// apply is the only store writer during a build. A failed tile leaves
// whatever the store held for its coordinate.
func (s *Scheduler) apply(sess *BuildSession, res TileBuildResult) {
	log := s.logger()
	switch res.Status {
	case TileBuilt:
		if _, err := s.Store.Replace(res.Coord, res.Buffer); err != nil {
			log.Warn("tile rejected by store", zap.Stringer("tile", res.Coord), zap.Error(err))
			sess.recordFailure(res.Coord, err)
			return
		}
		sess.built.Add(1)
	case TileEmpty:
		s.Store.Remove(res.Coord)
		sess.empty.Add(1)
	default:
		res.Buffer.Release()
		log.Warn("tile build failed", zap.Stringer("tile", res.Coord), zap.Error(res.Err))
		sess.recordFailure(res.Coord, res.Err)
	}
}
