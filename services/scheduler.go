package services

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// IssuanceScheduler drives TicketIssuanceQueue.ProcessDue on a fixed
// interval. The loop is serial, which is what gives ProcessDue its
// single-invocation guarantee; the queue itself assumes nothing about
// scheduling.
type IssuanceScheduler struct {
	queue    *TicketIssuanceQueue
	interval time.Duration

	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewIssuanceScheduler(queue *TicketIssuanceQueue, interval time.Duration) *IssuanceScheduler {
	return &IssuanceScheduler{
		queue:    queue,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start launches the background drain loop.
func (s *IssuanceScheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.run(ctx)
	slog.Info("issuance scheduler started", "interval", s.interval)
}

func (s *IssuanceScheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			report, err := s.queue.ProcessDue(ctx, time.Now())
			if err != nil {
				slog.Error("ticket task drain failed", "error", err)
				continue
			}
			if len(report.Failed) > 0 {
				slog.Error("ticket tasks exhausted their retry budget",
					"bookings", report.Failed)
			}
		case <-s.stopChan:
			slog.Info("issuance scheduler stopping")
			return
		case <-ctx.Done():
			return
		}
	}
}

// Shutdown stops the loop and waits for an in-flight drain to finish,
// bounded by a timeout.
func (s *IssuanceScheduler) Shutdown(timeout time.Duration) {
	close(s.stopChan)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("issuance scheduler stopped")
	case <-time.After(timeout):
		slog.Warn("timeout waiting for issuance scheduler to stop")
	}
}
