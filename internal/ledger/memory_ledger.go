// Package ledger keeps off-chain account balances and the raffle pool.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")
	ErrInvalidAmount     = errors.New("ledger: amount must be non-negative")
	ErrPoolAccount       = errors.New("ledger: pool account cannot be used as a participant")
)

// MemoryLedger in-memory balances. The pool account is the raffle address
// and is only moved through Deposit and Transfer.
type MemoryLedger struct {
	mu       sync.RWMutex
	pool     common.Address
	balances map[common.Address]*big.Int
}

// NewMemoryLedger creates a ledger whose pool account is pool
func NewMemoryLedger(pool common.Address) *MemoryLedger {
	return &MemoryLedger{
		pool:     pool,
		balances: make(map[common.Address]*big.Int),
	}
}

// PoolAddress returns the pool account
func (l *MemoryLedger) PoolAddress() common.Address {
	return l.pool
}

// Credit adds amount to account (faucet / external funding)
func (l *MemoryLedger) Credit(_ context.Context, account common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if account == l.pool {
		return ErrPoolAccount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.add(account, amount)
	return nil
}

// BalanceOf returns the balance of account
func (l *MemoryLedger) BalanceOf(_ context.Context, account common.Address) (*big.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.get(account), nil
}

// Deposit moves amount from the participant account into the pool
func (l *MemoryLedger) Deposit(_ context.Context, from common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if from == l.pool {
		return ErrPoolAccount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	have := l.get(from)
	if have.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientFunds, from.Hex(), have, amount)
	}
	l.balances[from] = have.Sub(have, amount)
	l.add(l.pool, amount)
	return nil
}

// Transfer moves amount out of the pool to account
func (l *MemoryLedger) Transfer(_ context.Context, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	pool := l.get(l.pool)
	if pool.Cmp(amount) < 0 {
		return fmt.Errorf("%w: pool has %s, needs %s", ErrInsufficientFunds, pool, amount)
	}
	l.balances[l.pool] = pool.Sub(pool, amount)
	l.add(to, amount)
	return nil
}

// Balance returns the pool balance
func (l *MemoryLedger) Balance(ctx context.Context) (*big.Int, error) {
	return l.BalanceOf(ctx, l.pool)
}

// get returns a copy, requires mu held
func (l *MemoryLedger) get(account common.Address) *big.Int {
	if b, ok := l.balances[account]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

func (l *MemoryLedger) add(account common.Address, amount *big.Int) {
	l.balances[account] = new(big.Int).Add(l.get(account), amount)
}
