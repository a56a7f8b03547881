package raffle

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Phase raffle phase
type Phase uint8

const (
	PhaseOpen        Phase = 0 // accepting entrants
	PhaseCalculating Phase = 1 // randomness in flight, entry closed
)

func (p Phase) String() string {
	switch p {
	case PhaseOpen:
		return "OPEN"
	case PhaseCalculating:
		return "CALCULATING"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(p))
	}
}

const (
	// DefaultRequestConfirmations block confirmations the oracle waits for
	DefaultRequestConfirmations uint16 = 3
	// NumWords random words requested per round
	NumWords uint32 = 1
)

// Config immutable raffle parameters, fixed at construction
type Config struct {
	EntranceFee          *big.Int       // wei
	GasLane              common.Hash    // oracle key hash (gas price tier)
	SubscriptionID       uint64         // oracle subscription credential
	CallbackGasLimit     uint32         // upper bound for the oracle callback
	RequestConfirmations uint16         // 0 means DefaultRequestConfirmations
	Interval             time.Duration  // minimum OPEN dwell time before upkeep
	Address              common.Address // consumer identity and pool account
	Coordinator          common.Address // oracle endpoint address
}

// Validate checks the construction parameters
func (c Config) Validate() error {
	if c.EntranceFee == nil || c.EntranceFee.Sign() <= 0 {
		return fmt.Errorf("%w: entrance fee must be positive", ErrInvalidConfig)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive", ErrInvalidConfig)
	}
	return nil
}

// RandomnessRequest parameters submitted to the oracle
type RandomnessRequest struct {
	KeyHash              common.Hash
	SubscriptionID       uint64
	RequestConfirmations uint16
	CallbackGasLimit     uint32
	NumWords             uint32
	Consumer             common.Address
}

// RandomnessOracleClient submits randomness requests to an external oracle.
// The oracle later delivers exactly one callback per request through a
// RandomnessConsumer.
type RandomnessOracleClient interface {
	RequestRandomness(ctx context.Context, req RandomnessRequest) (*big.Int, error)
}

// RandomnessConsumer receives oracle callbacks
type RandomnessConsumer interface {
	FulfillRandomness(ctx context.Context, requestID *big.Int, randomWords []*big.Int) error
}

// PayoutSink moves value in and out of the raffle pool. Every call either
// succeeds completely or changes nothing.
type PayoutSink interface {
	Deposit(ctx context.Context, from common.Address, amount *big.Int) error
	Transfer(ctx context.Context, to common.Address, amount *big.Int) error
	Balance(ctx context.Context) (*big.Int, error)
}

// Clock time source
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock wall clock
var SystemClock Clock = systemClock{}

// UpkeepStatus result of an upkeep evaluation
type UpkeepStatus struct {
	Due        bool     `json:"upkeep_needed"`
	Open       bool     `json:"is_open"`
	HasPlayers bool     `json:"has_players"`
	TimePassed bool     `json:"time_passed"`
	HasBalance bool     `json:"has_balance"`
	Phase      Phase    `json:"raffle_state"`
	Players    int      `json:"num_players"`
	Balance    *big.Int `json:"balance"`
	BalanceErr error    `json:"-"`
}

// Reason names the failed conditions, empty when due
func (s UpkeepStatus) Reason() string {
	if s.Due {
		return ""
	}
	reason := ""
	add := func(r string) {
		if reason != "" {
			reason += ", "
		}
		reason += r
	}
	if !s.Open {
		add("raffle not open")
	}
	if !s.HasPlayers {
		add("no players")
	}
	if !s.TimePassed {
		add("interval not elapsed")
	}
	if !s.HasBalance {
		if s.BalanceErr != nil {
			add(fmt.Sprintf("balance unavailable: %v", s.BalanceErr))
		} else {
			add("no balance")
		}
	}
	return reason
}

// Snapshot consistent view of the raffle state
type Snapshot struct {
	Phase            Phase
	Players          []common.Address
	LastTimestamp    time.Time
	RecentWinner     common.Address
	PendingRequestID *big.Int
	Round            uint64
}
