package raffle

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInsufficientDeposit     = errors.New("raffle: not enough value entered")
	ErrRaffleNotOpen           = errors.New("raffle: not open")
	ErrRoundClosed             = errors.New("raffle: round already closed")
	ErrUpkeepNotNeeded         = errors.New("raffle: upkeep not needed")
	ErrUnknownRequest          = errors.New("raffle: unknown randomness request")
	ErrIndexOutOfRange         = errors.New("raffle: player index out of range")
	ErrPayoutFailed            = errors.New("raffle: payout to winner failed")
	ErrDepositFailed           = errors.New("raffle: deposit not accepted")
	ErrRandomnessRequestFailed = errors.New("raffle: randomness request failed")
	ErrNoRandomWords           = errors.New("raffle: no random words delivered")
	ErrInvalidConfig           = errors.New("raffle: invalid config")
)

// UpkeepNotNeededError carries the condition values that blocked performUpkeep
type UpkeepNotNeededError struct {
	Status UpkeepStatus
}

func (e *UpkeepNotNeededError) Error() string {
	balance := "0"
	if e.Status.Balance != nil {
		balance = e.Status.Balance.String()
	}
	return fmt.Sprintf("%v (balance=%s, players=%d, state=%s: %s)",
		ErrUpkeepNotNeeded, balance, e.Status.Players, e.Status.Phase, e.Status.Reason())
}

func (e *UpkeepNotNeededError) Is(target error) bool {
	return target == ErrUpkeepNotNeeded
}

// PayoutError settlement aborted because the winner could not be paid
type PayoutError struct {
	Winner common.Address
	Amount *big.Int
	Err    error
}

func (e *PayoutError) Error() string {
	return fmt.Sprintf("%v: winner=%s amount=%s: %v", ErrPayoutFailed, e.Winner.Hex(), e.Amount, e.Err)
}

func (e *PayoutError) Unwrap() []error {
	return []error{ErrPayoutFailed, e.Err}
}
