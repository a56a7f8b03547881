// Upkeep Scheduler
// Polls the raffle and triggers performUpkeep when the round is due
package services

import (
	"context"
	"errors"
	"log"
	"math/big"
	"sync"
	"time"

	"raffle-backend/internal/metrics"
	"raffle-backend/internal/raffle"
)

// UpkeepTarget is the subset of the raffle the scheduler drives
type UpkeepTarget interface {
	CheckUpkeep(ctx context.Context) raffle.UpkeepStatus
	PerformUpkeep(ctx context.Context) (*big.Int, error)
}

// UpkeepScheduler calls CheckUpkeep on every tick and PerformUpkeep when due.
// A failed PerformUpkeep is not retried within the same tick.
type UpkeepScheduler struct {
	target       UpkeepTarget
	pollInterval time.Duration
	stopChan     chan struct{}
	doneChan     chan struct{}

	mu      sync.Mutex
	running bool
}

// NewUpkeepScheduler creates a new UpkeepScheduler instance
func NewUpkeepScheduler(target UpkeepTarget, pollInterval time.Duration) *UpkeepScheduler {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &UpkeepScheduler{
		target:       target,
		pollInterval: pollInterval,
	}
}

// Start begins polling in a background goroutine. A stopped scheduler can
// be started again.
func (s *UpkeepScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.doneChan = make(chan struct{})

	log.Println("🚀 Upkeep scheduler starting...")
	log.Printf("📅 Upkeep poll interval: %v", s.pollInterval)
	go s.run(s.stopChan, s.doneChan)
	log.Println("✅ Upkeep scheduler started")
}

// Stop stops polling and waits for an in-flight tick to finish
func (s *UpkeepScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stopChan, doneChan := s.stopChan, s.doneChan
	s.mu.Unlock()

	log.Println("🛑 Stopping upkeep scheduler...")
	close(stopChan)
	<-doneChan
	log.Println("✅ Upkeep scheduler stopped")
}

func (s *UpkeepScheduler) run(stopChan <-chan struct{}, doneChan chan<- struct{}) {
	defer close(doneChan)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		select {
		case <-stopChan:
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				log.Printf("⚠️  Upkeep tick failed: %v", err)
			}
		}
	}
}

// RunOnce evaluates upkeep once. It returns the new request id when
// performUpkeep ran, nil when nothing was due.
func (s *UpkeepScheduler) RunOnce(ctx context.Context) (*big.Int, error) {
	status := s.target.CheckUpkeep(ctx)
	if !status.Due {
		metrics.UpkeepChecks.WithLabelValues("not_needed").Inc()
		return nil, nil
	}
	metrics.UpkeepChecks.WithLabelValues("due").Inc()

	requestID, err := s.target.PerformUpkeep(ctx)
	if err != nil {
		if errors.Is(err, raffle.ErrUpkeepNotNeeded) {
			// state moved between check and perform
			metrics.RandomnessRequests.WithLabelValues("skipped").Inc()
			return nil, nil
		}
		metrics.RandomnessRequests.WithLabelValues("failed").Inc()
		return nil, err
	}

	metrics.RandomnessRequests.WithLabelValues("success").Inc()
	log.Printf("🎲 Upkeep performed: request_id=%s players=%d balance=%s", requestID, status.Players, status.Balance)
	return requestID, nil
}
