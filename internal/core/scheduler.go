package core

import (
	"context"
	"sync"
	"time"
)

// DefaultScanInterval is how often the scheduler runs the auto-complete scan.
const DefaultScanInterval = 10 * time.Minute

// Scheduler owns the periodic auto-complete scan. Callers hold the handle
// and stop it explicitly on shutdown; an in-flight scan always runs to
// completion.
type Scheduler struct {
	facade        *Facade
	interval      time.Duration
	completeAfter time.Duration

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// StartScheduler launches the scan loop. The first scan runs immediately,
// then every interval until Stop is called or ctx is cancelled. Zero
// durations select the defaults.
func (f *Facade) StartScheduler(ctx context.Context, interval, completeAfter time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultScanInterval
	}
	s := &Scheduler{
		facade:        f,
		interval:      interval,
		completeAfter: completeAfter,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	go s.run(ctx)
	return s
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)
	// Scans are detached from the loop context so a shutdown mid-scan never
	// abandons half-transitioned orders.
	scanCtx := context.WithoutCancel(ctx)

	s.scan(scanCtx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.scan(scanCtx)
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) scan(ctx context.Context) {
	completed, err := s.facade.AutoCompleteOverdueOrders(ctx, s.completeAfter)
	if err != nil {
		s.facade.logger.Warn("auto-complete scan failed", "error", err)
		return
	}
	if completed > 0 {
		s.facade.logger.Info("auto-complete scan finished", "completed", completed)
	}
}

// Stop halts the loop and waits for it to exit. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}
