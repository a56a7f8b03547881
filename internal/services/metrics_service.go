package services

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"raffle-backend/internal/events"
	"raffle-backend/internal/metrics"
	"raffle-backend/internal/raffle"
)

// MetricsRecorder turns raffle events into settlement counters and the
// request to settlement latency histogram
type MetricsRecorder struct {
	mu          sync.Mutex
	requestedAt map[string]time.Time // request id -> request event time
}

// NewMetricsRecorder creates a new MetricsRecorder
func NewMetricsRecorder() *MetricsRecorder {
	return &MetricsRecorder{requestedAt: make(map[string]time.Time)}
}

// Run observes events from sub until ctx is done or sub is closed
func (r *MetricsRecorder) Run(ctx context.Context, sub *events.Subscription) {
	sub.Dispatch(ctx, r.Observe)
}

// Observe updates metrics for one event
func (r *MetricsRecorder) Observe(evt raffle.Event) {
	switch evt.Name {
	case raffle.EventEntered:
		metrics.RafflePlayers.Set(float64(evt.Players))

	case raffle.EventRandomnessRequested:
		if evt.RequestID == nil {
			return
		}
		r.mu.Lock()
		r.requestedAt[evt.RequestID.String()] = evt.Timestamp
		r.mu.Unlock()

	case raffle.EventWinnerPicked:
		metrics.Settlements.Inc()
		metrics.RafflePlayers.Set(0)
		metrics.RaffleRound.Set(float64(evt.Round + 1))
		if evt.RequestID == nil {
			return
		}
		r.mu.Lock()
		key := evt.RequestID.String()
		started, ok := r.requestedAt[key]
		delete(r.requestedAt, key)
		r.mu.Unlock()
		if ok {
			metrics.SettlementLatency.Observe(evt.Timestamp.Sub(started).Seconds())
		}
	}
}

// Outstanding number of requests still waiting for settlement
func (r *MetricsRecorder) Outstanding() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requestedAt)
}

// InstrumentedConsumer counts failed payouts reported by the wrapped consumer
type InstrumentedConsumer struct {
	next raffle.RandomnessConsumer
}

// NewInstrumentedConsumer wraps next
func NewInstrumentedConsumer(next raffle.RandomnessConsumer) *InstrumentedConsumer {
	return &InstrumentedConsumer{next: next}
}

// FulfillRandomness implements raffle.RandomnessConsumer
func (c *InstrumentedConsumer) FulfillRandomness(ctx context.Context, requestID *big.Int, randomWords []*big.Int) error {
	err := c.next.FulfillRandomness(ctx, requestID, randomWords)
	if errors.Is(err, raffle.ErrPayoutFailed) {
		metrics.PayoutFailures.Inc()
	}
	return err
}
