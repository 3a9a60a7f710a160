package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/knowable-run/chain-metrics-gateway/internal/metrics"
	"go.uber.org/zap"
)

// Refresher is anything the Scheduler can keep warm. force is false during
// warm-up and true on every scheduled tick.
type Refresher interface {
	Refresh(ctx context.Context, force bool) error
}

// RefreshFunc adapts a plain function, such as an uncached producer that must
// run on the same cadence, to Refresher.
type RefreshFunc func(ctx context.Context, force bool) error

func (f RefreshFunc) Refresh(ctx context.Context, force bool) error {
	return f(ctx, force)
}

// Health is the last known outcome of one registered entry.
type Health struct {
	Name        string    `json:"name"`
	LastSuccess *time.Time `json:"last_success,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	LastAttempt *time.Time `json:"last_attempt,omitempty"`
}

type entry struct {
	name      string
	refresher Refresher

	mu     sync.Mutex
	health Health
}

// Scheduler owns the registered entries, performs the startup warm-up and
// drives the periodic forced refresh.
//
// A tick that fires while the previous one is still running is skipped, so
// a slow upstream never accumulates overlapping refreshes.
type Scheduler struct {
	logger *zap.Logger

	mu      sync.RWMutex
	entries []*entry
	names   map[string]bool

	tickLock chan struct{}
	inflight sync.WaitGroup

	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(logger *zap.Logger) *Scheduler {
	return &Scheduler{
		logger:   logger.Named("scheduler"),
		names:    make(map[string]bool),
		tickLock: make(chan struct{}, 1),
	}
}

// Register adds r under a unique name. Entries run in no particular order.
func (s *Scheduler) Register(name string, r Refresher) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.names[name] {
		return fmt.Errorf("refresher %q already registered", name)
	}
	s.names[name] = true
	s.entries = append(s.entries, &entry{name: name, refresher: r, health: Health{Name: name}})
	return nil
}

// WarmUp runs every entry once without forcing, so values persisted by a
// previous process are reused. It returns after all entries finished; the
// returned error aggregates the failures, which have already been logged.
func (s *Scheduler) WarmUp(ctx context.Context) error {
	start := time.Now()
	err := s.runAll(ctx, false)
	s.logger.Info("Warm-up finished", zap.Duration("took", time.Since(start)), zap.Int("entries", len(s.snapshot())))
	return err
}

// Tick runs one forced refresh of every entry unless a tick is already in
// progress. It reports whether the tick ran.
func (s *Scheduler) Tick(ctx context.Context) (bool, error) {
	select {
	case s.tickLock <- struct{}{}:
	default:
		metrics.RefreshTicksSkipped.Inc()
		s.logger.Warn("Previous refresh still running, skipping tick")
		return false, nil
	}
	defer func() {
		<-s.tickLock
	}()
	return true, s.runAll(ctx, true)
}

// Run refreshes every entry each interval until ctx is done, then waits for
// the in-flight tick to finish. A non-positive interval disables the loop.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		s.logger.Info("Refresh interval is not positive, cache will not be updated periodically.")
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer s.inflight.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.inflight.Add(1)
			go func() {
				defer s.inflight.Done()
				// Errors are logged per entry inside runAll.
				_, _ = s.Tick(ctx)
			}()
		}
	}
}

// Start launches Run in the background. Stop cancels it.
func (s *Scheduler) Start(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		s.Run(ctx, interval)
	}()
}

// Stop cancels the loop started by Start and waits for in-flight refreshes,
// or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Health returns the last outcome of every entry in registration order.
func (s *Scheduler) Health() []Health {
	entries := s.snapshot()
	out := make([]Health, len(entries))
	for i, e := range entries {
		e.mu.Lock()
		out[i] = e.health
		e.mu.Unlock()
	}
	return out
}

func (s *Scheduler) snapshot() []*entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*entry(nil), s.entries...)
}

// runAll invokes every entry concurrently. One entry failing does not stop
// or delay the others.
func (s *Scheduler) runAll(ctx context.Context, force bool) error {
	entries := s.snapshot()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)
	for _, e := range entries {
		wg.Add(1)
		go func(e *entry) {
			defer wg.Done()
			err := s.runOne(ctx, e, force)
			if err != nil {
				mu.Lock()
				errs = multierror.Append(errs, err)
				mu.Unlock()
			}
		}(e)
	}
	wg.Wait()
	return errs
}

func (s *Scheduler) runOne(ctx context.Context, e *entry, force bool) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("refresher %s panicked: %v", e.name, r)
		}
		now := time.Now()
		e.mu.Lock()
		e.health.LastAttempt = &now
		if err != nil {
			e.health.LastError = err.Error()
		} else {
			e.health.LastSuccess = &now
			e.health.LastError = ""
		}
		e.mu.Unlock()
		if err != nil {
			s.logger.Error("Failed to refresh", zap.String("name", e.name), zap.Bool("force", force), zap.Error(err))
		}
	}()
	return e.refresher.Refresh(ctx, force)
}
