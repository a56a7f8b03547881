package ledger

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	poolAddr  = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	aliceAddr = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bobAddr   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func balanceOf(t *testing.T, l *MemoryLedger, addr common.Address) int64 {
	t.Helper()
	b, err := l.BalanceOf(context.Background(), addr)
	require.NoError(t, err)
	return b.Int64()
}

func TestMemoryLedger_DepositAndTransfer(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(poolAddr)
	require.NoError(t, l.Credit(ctx, aliceAddr, big.NewInt(100)))

	require.NoError(t, l.Deposit(ctx, aliceAddr, big.NewInt(40)))
	assert.Equal(t, int64(60), balanceOf(t, l, aliceAddr))

	pool, err := l.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(40), pool.Int64())

	require.NoError(t, l.Transfer(ctx, bobAddr, big.NewInt(40)))
	assert.Equal(t, int64(40), balanceOf(t, l, bobAddr))
	assert.Equal(t, int64(0), balanceOf(t, l, poolAddr))
}

func TestMemoryLedger_AllOrNothing(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(poolAddr)
	require.NoError(t, l.Credit(ctx, aliceAddr, big.NewInt(10)))

	err := l.Deposit(ctx, aliceAddr, big.NewInt(11))
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, int64(10), balanceOf(t, l, aliceAddr))
	assert.Equal(t, int64(0), balanceOf(t, l, poolAddr))

	err = l.Transfer(ctx, bobAddr, big.NewInt(1))
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, int64(0), balanceOf(t, l, bobAddr))
}

func TestMemoryLedger_RejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(poolAddr)

	assert.ErrorIs(t, l.Credit(ctx, aliceAddr, big.NewInt(-1)), ErrInvalidAmount)
	assert.ErrorIs(t, l.Credit(ctx, poolAddr, big.NewInt(1)), ErrPoolAccount)
	assert.ErrorIs(t, l.Deposit(ctx, poolAddr, big.NewInt(1)), ErrPoolAccount)
	assert.ErrorIs(t, l.Deposit(ctx, aliceAddr, nil), ErrInvalidAmount)
	assert.ErrorIs(t, l.Transfer(ctx, aliceAddr, nil), ErrInvalidAmount)
}

func TestMemoryLedger_BalanceIsCopy(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(poolAddr)
	require.NoError(t, l.Credit(ctx, aliceAddr, big.NewInt(5)))

	b, err := l.BalanceOf(ctx, aliceAddr)
	require.NoError(t, err)
	b.SetInt64(1000)

	assert.Equal(t, int64(5), balanceOf(t, l, aliceAddr))
}
