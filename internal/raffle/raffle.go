// Package raffle implements the raffle state machine: phase-gated entry,
// upkeep evaluation, the randomness request/fulfillment pairing and the
// atomic payout-and-reset settlement.
//
// A request whose callback never arrives leaves the raffle in CALCULATING;
// there is no timeout or re-request path.
package raffle

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// StateMachine owns the raffle aggregate. Enter, PerformUpkeep and
// FulfillRandomness are serialized by mu and each completes as one step.
type StateMachine struct {
	cfg    Config
	oracle RandomnessOracleClient
	payout PayoutSink
	events EventSink
	clock  Clock
	logger *logrus.Logger

	mu               sync.RWMutex
	phase            Phase
	players          []common.Address
	lastTimestamp    time.Time
	recentWinner     common.Address
	pendingRequestID *big.Int
	round            uint64
}

// Option configures optional collaborators
type Option func(*StateMachine)

// WithEventSink sets the event sink
func WithEventSink(sink EventSink) Option {
	return func(s *StateMachine) {
		if sink != nil {
			s.events = sink
		}
	}
}

// WithClock sets the time source
func WithClock(clock Clock) Option {
	return func(s *StateMachine) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *logrus.Logger) Option {
	return func(s *StateMachine) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithStartRound resumes numbering at round, used when earlier rounds are
// already recorded in history
func WithStartRound(round uint64) Option {
	return func(s *StateMachine) {
		if round > 0 {
			s.round = round
		}
	}
}

// New creates a raffle in the OPEN phase with no players
func New(cfg Config, oracle RandomnessOracleClient, payout PayoutSink, opts ...Option) (*StateMachine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if oracle == nil {
		return nil, fmt.Errorf("%w: randomness oracle client is required", ErrInvalidConfig)
	}
	if payout == nil {
		return nil, fmt.Errorf("%w: payout sink is required", ErrInvalidConfig)
	}
	if cfg.RequestConfirmations == 0 {
		cfg.RequestConfirmations = DefaultRequestConfirmations
	}
	cfg.EntranceFee = new(big.Int).Set(cfg.EntranceFee)

	s := &StateMachine{
		cfg:    cfg,
		oracle: oracle,
		payout: payout,
		events: discardSink{},
		clock:  SystemClock,
		logger: logrus.StandardLogger(),
		phase:  PhaseOpen,
		round:  1,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lastTimestamp = s.clock.Now()
	return s, nil
}

// Enter records participant as an entrant after moving amount into the pool
func (s *StateMachine) Enter(ctx context.Context, participant common.Address, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enter(ctx, participant, amount)
}

// EnterRound is Enter bound to one round. It fails with ErrRoundClosed when
// round is no longer the current round.
func (s *StateMachine) EnterRound(ctx context.Context, round uint64, participant common.Address, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if round != s.round {
		return fmt.Errorf("%w: round %d, current round is %d", ErrRoundClosed, round, s.round)
	}
	return s.enter(ctx, participant, amount)
}

// enter requires mu held
func (s *StateMachine) enter(ctx context.Context, participant common.Address, amount *big.Int) error {
	if amount == nil || amount.Cmp(s.cfg.EntranceFee) < 0 {
		return fmt.Errorf("%w: got %v, entrance fee is %s", ErrInsufficientDeposit, amount, s.cfg.EntranceFee)
	}
	if s.phase != PhaseOpen {
		return ErrRaffleNotOpen
	}
	if err := s.payout.Deposit(ctx, participant, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrDepositFailed, err)
	}

	s.players = append(s.players, participant)
	s.logger.WithFields(logrus.Fields{
		"round":       s.round,
		"participant": participant.Hex(),
		"amount":      amount.String(),
		"players":     len(s.players),
	}).Info("Raffle entered")

	s.events.Emit(Event{
		Name:        EventEntered,
		Raffle:      s.cfg.Address,
		Round:       s.round,
		Participant: participant,
		Amount:      new(big.Int).Set(amount),
		Players:     len(s.players),
		Timestamp:   s.clock.Now(),
	})
	return nil
}

// CheckUpkeep reports whether PerformUpkeep would currently succeed
func (s *StateMachine) CheckUpkeep(ctx context.Context) UpkeepStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.upkeepStatus(ctx)
}

// upkeepStatus requires mu held
func (s *StateMachine) upkeepStatus(ctx context.Context) UpkeepStatus {
	status := UpkeepStatus{
		Open:       s.phase == PhaseOpen,
		HasPlayers: len(s.players) > 0,
		TimePassed: s.clock.Now().Sub(s.lastTimestamp) >= s.cfg.Interval,
		Phase:      s.phase,
		Players:    len(s.players),
		Balance:    new(big.Int),
	}
	balance, err := s.payout.Balance(ctx)
	if err != nil {
		status.BalanceErr = err
	} else if balance != nil {
		status.Balance = balance
		status.HasBalance = balance.Sign() > 0
	}
	status.Due = status.Open && status.HasPlayers && status.TimePassed && status.HasBalance
	return status
}

// PerformUpkeep closes entry and requests randomness for the current round
func (s *StateMachine) PerformUpkeep(ctx context.Context) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := s.upkeepStatus(ctx)
	if !status.Due {
		return nil, &UpkeepNotNeededError{Status: status}
	}

	requestID, err := s.oracle.RequestRandomness(ctx, RandomnessRequest{
		KeyHash:              s.cfg.GasLane,
		SubscriptionID:       s.cfg.SubscriptionID,
		RequestConfirmations: s.cfg.RequestConfirmations,
		CallbackGasLimit:     s.cfg.CallbackGasLimit,
		NumWords:             NumWords,
		Consumer:             s.cfg.Address,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRandomnessRequestFailed, err)
	}
	if requestID == nil {
		return nil, fmt.Errorf("%w: oracle returned no request id", ErrRandomnessRequestFailed)
	}

	s.phase = PhaseCalculating
	s.pendingRequestID = new(big.Int).Set(requestID)

	s.logger.WithFields(logrus.Fields{
		"round":      s.round,
		"request_id": requestID.String(),
		"players":    len(s.players),
		"balance":    status.Balance.String(),
	}).Info("Requested raffle winner")

	s.events.Emit(Event{
		Name:      EventRandomnessRequested,
		Raffle:    s.cfg.Address,
		Round:     s.round,
		RequestID: new(big.Int).Set(requestID),
		Players:   len(s.players),
		Timestamp: s.clock.Now(),
	})
	return new(big.Int).Set(requestID), nil
}

// FulfillRandomness settles the round for the pending request: picks
// players[words[0] mod len(players)], pays it the whole pool and reopens.
// The modulo bias of this selection is kept on purpose. If the payout fails
// nothing changes and the same request can be delivered again.
func (s *StateMachine) FulfillRandomness(ctx context.Context, requestID *big.Int, randomWords []*big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if requestID == nil || s.pendingRequestID == nil || requestID.Cmp(s.pendingRequestID) != 0 {
		return fmt.Errorf("%w: %v", ErrUnknownRequest, requestID)
	}
	if s.phase != PhaseCalculating || len(s.players) == 0 {
		// unreachable while invariants hold
		return fmt.Errorf("%w: raffle is %s with %d players", ErrUnknownRequest, s.phase, len(s.players))
	}
	if len(randomWords) == 0 || randomWords[0] == nil {
		return ErrNoRandomWords
	}

	index := new(big.Int).Mod(randomWords[0], big.NewInt(int64(len(s.players))))
	winner := s.players[index.Int64()]

	prize, err := s.payout.Balance(ctx)
	if err != nil {
		return &PayoutError{Winner: winner, Amount: new(big.Int), Err: err}
	}
	if err := s.payout.Transfer(ctx, winner, prize); err != nil {
		s.logger.WithFields(logrus.Fields{
			"round":      s.round,
			"request_id": requestID.String(),
			"winner":     winner.Hex(),
			"prize":      prize.String(),
			"error":      err.Error(),
		}).Error("Payout to raffle winner failed")
		return &PayoutError{Winner: winner, Amount: prize, Err: err}
	}

	settledRound := s.round
	numPlayers := len(s.players)
	now := s.clock.Now()

	s.recentWinner = winner
	s.players = nil
	s.phase = PhaseOpen
	s.lastTimestamp = now
	s.pendingRequestID = nil
	s.round++

	s.logger.WithFields(logrus.Fields{
		"round":      settledRound,
		"request_id": requestID.String(),
		"winner":     winner.Hex(),
		"index":      index.Int64(),
		"players":    numPlayers,
		"prize":      prize.String(),
	}).Info("Winner picked")

	s.events.Emit(Event{
		Name:      EventWinnerPicked,
		Raffle:    s.cfg.Address,
		Round:     settledRound,
		RequestID: new(big.Int).Set(requestID),
		Winner:    winner,
		Amount:    new(big.Int).Set(prize),
		Players:   numPlayers,
		Timestamp: now,
	})
	return nil
}
