// Package scheduler drives the trading agent's periodic cycle (spec §4.7):
// one cycle runs immediately on Start, then again on every interval tick,
// until a shutdown signal or context cancellation stops the loop.
package scheduler

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"nof0-api/internal/metrics"
)

// CycleFunc runs one trading cycle over symbols.
type CycleFunc func(ctx context.Context, symbols []string) error

// Scheduler is the spec §4.7 Scheduler: state is {intervalId|none, isRunning,
// runCount}.
type Scheduler struct {
	mu       sync.Mutex
	running  bool
	runCount int
	stopCh   chan struct{}
	stopOnce sync.Once

	// exit is called once the loop has stopped; defaults to os.Exit(0) to
	// match the spec's "terminate the process" shutdown behavior. Tests
	// substitute a no-op so they can assert on state afterward.
	exit func(code int)

	metrics *metrics.Metrics // optional
}

// SetMetrics attaches cycle instrumentation; optional.
func (s *Scheduler) SetMetrics(m *metrics.Metrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = m
}

// New constructs a Scheduler.
func New() *Scheduler {
	return &Scheduler{exit: os.Exit}
}

// SetExitFunc overrides the process-termination hook invoked by Stop.
func (s *Scheduler) SetExitFunc(fn func(code int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exit = fn
}

// IsRunning reports whether the periodic loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// RunCount returns the number of cycles started so far.
func (s *Scheduler) RunCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runCount
}

// Start runs one cycle immediately, then installs a periodic timer and
// signal handlers, and blocks until the loop stops (spec §4.7). If already
// running, it warns and returns immediately.
func (s *Scheduler) Start(ctx context.Context, run CycleFunc, symbols []string, interval time.Duration) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		logx.Info("scheduler: start requested while already running, ignoring")
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.stopOnce = sync.Once{}
	s.mu.Unlock()

	logx.Infof("scheduler: starting symbols=%v interval=%s", symbols, interval)
	s.runCycle(ctx, run, symbols)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-ctx.Done():
			logx.Infof("scheduler: context cancelled: %v", ctx.Err())
			s.Stop()
			return
		case sig := <-sigCh:
			logx.Infof("scheduler: received signal %s", sig)
			s.Stop()
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.runCycle(ctx, run, symbols)
		}
	}
}

// RunOnce executes exactly one cycle without installing a timer or signal
// handlers, for the CLI's --once/--dev single-shot mode (spec §6).
func (s *Scheduler) RunOnce(ctx context.Context, run CycleFunc, symbols []string) {
	s.runCycle(ctx, run, symbols)
}

func (s *Scheduler) runCycle(ctx context.Context, run CycleFunc, symbols []string) {
	s.mu.Lock()
	s.runCount++
	count := s.runCount
	m := s.metrics
	s.mu.Unlock()

	start := time.Now()
	logx.Infof("scheduler: cycle %d starting at %s", count, start.Format(time.RFC3339))

	func() {
		defer func() {
			if r := recover(); r != nil {
				logx.Errorf("scheduler: cycle %d panicked: %v", count, r)
			}
		}()
		if err := run(ctx, symbols); err != nil {
			logx.Errorf("scheduler: cycle %d failed: %v", count, err)
		}
	}()

	duration := time.Since(start)
	if m != nil {
		m.CyclesTotal.Inc()
		m.CycleDuration.Observe(duration.Seconds())
	}
	logx.Infof("scheduler: cycle %d finished duration=%s", count, duration)
}

// Stop halts the periodic loop, logs totals, and terminates the process
// (spec §4.7). Safe to call more than once or concurrently.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	count := s.runCount
	exit := s.exit
	stopCh := s.stopCh
	s.mu.Unlock()

	s.stopOnce.Do(func() {
		close(stopCh)
	})

	logx.Infof("scheduler: stopped after %d cycles", count)
	if exit != nil {
		exit(0)
	}
}
