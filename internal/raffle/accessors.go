package raffle

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

func (s *StateMachine) EntranceFee() *big.Int {
	return new(big.Int).Set(s.cfg.EntranceFee)
}

func (s *StateMachine) Interval() time.Duration {
	return s.cfg.Interval
}

func (s *StateMachine) RequestConfirmations() uint16 {
	return s.cfg.RequestConfirmations
}

func (s *StateMachine) NumWords() uint32 {
	return NumWords
}

// Config returns a copy of the construction parameters
func (s *StateMachine) Config() Config {
	cfg := s.cfg
	cfg.EntranceFee = new(big.Int).Set(s.cfg.EntranceFee)
	return cfg
}

func (s *StateMachine) RaffleState() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

func (s *StateMachine) NumberOfPlayers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.players)
}

// Player returns the entrant at index in entry order
func (s *StateMachine) Player(index int) (common.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index < 0 || index >= len(s.players) {
		return common.Address{}, fmt.Errorf("%w: index %d, players %d", ErrIndexOutOfRange, index, len(s.players))
	}
	return s.players[index], nil
}

// RecentWinner zero address before the first settlement
func (s *StateMachine) RecentWinner() common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recentWinner
}

func (s *StateMachine) LatestTimestamp() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastTimestamp
}

// PendingRequestID nil when no request is outstanding
func (s *StateMachine) PendingRequestID() *big.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.pendingRequestID == nil {
		return nil
	}
	return new(big.Int).Set(s.pendingRequestID)
}

// Round current round number, starting at 1
func (s *StateMachine) Round() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.round
}

// Snapshot reads the whole aggregate in one critical section
func (s *StateMachine) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Phase:         s.phase,
		Players:       append([]common.Address(nil), s.players...),
		LastTimestamp: s.lastTimestamp,
		RecentWinner:  s.recentWinner,
		Round:         s.round,
	}
	if s.pendingRequestID != nil {
		snap.PendingRequestID = new(big.Int).Set(s.pendingRequestID)
	}
	return snap
}
