package events

import (
	"context"
	"encoding/json"
	"math/big"
	"sync"
	"testing"
	"time"

	"raffle-backend/internal/dto"
	"raffle-backend/internal/raffle"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entered(round uint64) raffle.Event {
	return raffle.Event{
		Name:        raffle.EventEntered,
		Round:       round,
		Participant: common.HexToAddress("0xa1"),
		Amount:      big.NewInt(10),
		Players:     1,
	}
}

func TestBus_FanOut(t *testing.T) {
	bus := NewBus()
	a := bus.Subscribe("a", 4)
	b := bus.Subscribe("b", 4)
	assert.Equal(t, 2, bus.Subscribers())

	bus.Emit(entered(1))

	assert.Equal(t, uint64(1), (<-a.C).Round)
	assert.Equal(t, uint64(1), (<-b.C).Round)
}

func TestBus_DropsWhenFull(t *testing.T) {
	bus := NewBus()
	slow := bus.Subscribe("slow", 1)
	fast := bus.Subscribe("fast", 8)

	bus.Emit(entered(1))
	bus.Emit(entered(2))
	bus.Emit(entered(3))

	assert.Equal(t, uint64(2), slow.Dropped())
	assert.Equal(t, uint64(0), fast.Dropped())
	assert.Equal(t, uint64(1), (<-slow.C).Round)
	assert.Len(t, fast.C, 3)
}

func TestBus_PreservesOrder(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe("ordered", 16)
	for i := uint64(1); i <= 10; i++ {
		bus.Emit(entered(i))
	}
	for i := uint64(1); i <= 10; i++ {
		assert.Equal(t, i, (<-sub.C).Round)
	}
}

func TestBus_UnsubscribeAndClose(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe("x", 1)
	sub.Unsubscribe()
	sub.Unsubscribe()

	_, ok := <-sub.C
	assert.False(t, ok)
	assert.Equal(t, 0, bus.Subscribers())

	other := bus.Subscribe("y", 1)
	bus.Close()
	bus.Emit(entered(1))
	_, ok = <-other.C
	assert.False(t, ok)

	late := bus.Subscribe("late", 1)
	_, ok = <-late.C
	assert.False(t, ok)
}

func TestSubscription_WaitFor(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe("waiter", 8)

	go func() {
		bus.Emit(entered(1))
		bus.Emit(raffle.Event{Name: raffle.EventWinnerPicked, Round: 1, Winner: common.HexToAddress("0xb2")})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	evt, err := sub.WaitFor(ctx, Named(raffle.EventWinnerPicked))
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xb2"), evt.Winner)

	short, cancelShort := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancelShort()
	_, err = sub.WaitFor(short, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSubscription_Dispatch(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe("dispatch", 8)

	var mu sync.Mutex
	var got []uint64
	done := make(chan struct{})
	go func() {
		sub.Dispatch(context.Background(), func(evt raffle.Event) {
			mu.Lock()
			got = append(got, evt.Round)
			mu.Unlock()
		})
		close(done)
	}()

	bus.Emit(entered(1))
	bus.Emit(entered(2))
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, time.Second, 5*time.Millisecond)

	bus.Close()
	<-done
}

type capturePublisher struct {
	subject string
	data    []byte
}

func (c *capturePublisher) Publish(subject string, data []byte) error {
	c.subject = subject
	c.data = data
	return nil
}

func TestNATSEventPublisher(t *testing.T) {
	pub := &capturePublisher{}
	p := NewNATSEventPublisher(pub, "localhost")

	require.NoError(t, p.Publish(raffle.Event{
		Name:      raffle.EventRandomnessRequested,
		Raffle:    common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"),
		Round:     3,
		RequestID: big.NewInt(42),
		Players:   2,
	}))

	assert.Equal(t, "raffle.localhost.Raffle.RandomnessRequested", pub.subject)
	var msg dto.RaffleEventMessage
	require.NoError(t, json.Unmarshal(pub.data, &msg))
	assert.Equal(t, "RandomnessRequested", msg.Event)
	assert.Equal(t, "42", msg.RequestID)
	assert.Equal(t, uint64(3), msg.Round)
	assert.Empty(t, msg.Winner)
	assert.Empty(t, msg.Participant)
	assert.Equal(t, []string{"raffle.localhost.Raffle.*"}, StreamSubjects("localhost"))
}
