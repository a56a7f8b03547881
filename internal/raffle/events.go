package raffle

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventName externally visible notification points
type EventName string

const (
	EventEntered             EventName = "Entered"
	EventRandomnessRequested EventName = "RandomnessRequested"
	EventWinnerPicked        EventName = "WinnerPicked"
)

// Event notification emitted by the state machine.
// Entered carries Participant, RandomnessRequested carries RequestID and
// WinnerPicked carries Winner; the remaining fields are context.
type Event struct {
	Name        EventName      `json:"name"`
	Raffle      common.Address `json:"raffle"`
	Round       uint64         `json:"round"`
	Participant common.Address `json:"participant"`
	RequestID   *big.Int       `json:"request_id,omitempty"`
	Winner      common.Address `json:"winner"`
	Amount      *big.Int       `json:"amount,omitempty"` // deposit for Entered, prize for WinnerPicked
	Players     int            `json:"players"`
	Timestamp   time.Time      `json:"timestamp"`
}

// EventSink receives events. Emit is called while the state machine holds
// its lock and must not block or call back into the state machine.
type EventSink interface {
	Emit(evt Event)
}

type discardSink struct{}

func (discardSink) Emit(Event) {}

// EventSinkFunc adapts a function to EventSink
type EventSinkFunc func(evt Event)

func (f EventSinkFunc) Emit(evt Event) { f(evt) }
