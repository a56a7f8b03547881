package raffle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckUpkeep_AllConditionCombinations(t *testing.T) {
	ctx := context.Background()

	for mask := 0; mask < 16; mask++ {
		open := mask&1 != 0
		hasPlayers := mask&2 != 0
		timePassed := mask&4 != 0
		hasBalance := mask&8 != 0

		name := fmt.Sprintf("open=%t players=%t time=%t balance=%t", open, hasPlayers, timePassed, hasBalance)
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			r := f.raffle

			if !open {
				r.phase = PhaseCalculating
				r.pendingRequestID = big.NewInt(1)
			}
			if hasPlayers {
				r.players = append(r.players, playerA)
			}
			if timePassed {
				f.clock.Advance(r.Interval())
			} else {
				f.clock.Advance(r.Interval() - time.Second)
			}
			if hasBalance {
				f.payout.pool.SetInt64(1)
			}

			status := r.CheckUpkeep(ctx)
			want := open && hasPlayers && timePassed && hasBalance
			assert.Equal(t, want, status.Due)
			assert.Equal(t, open, status.Open)
			assert.Equal(t, hasPlayers, status.HasPlayers)
			assert.Equal(t, timePassed, status.TimePassed)
			assert.Equal(t, hasBalance, status.HasBalance)
			if want {
				assert.Empty(t, status.Reason())
			} else {
				assert.NotEmpty(t, status.Reason())
			}

			// performUpkeep agrees with checkUpkeep
			_, err := r.PerformUpkeep(ctx)
			if want {
				require.NoError(t, err)
				assert.Equal(t, PhaseCalculating, r.RaffleState())
			} else {
				assert.ErrorIs(t, err, ErrUpkeepNotNeeded)
			}
		})
	}
}

func TestCheckUpkeep_IntervalBoundary(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.enterAll(t, playerA)

	f.clock.Advance(f.raffle.Interval() - time.Nanosecond)
	assert.False(t, f.raffle.CheckUpkeep(ctx).TimePassed)

	f.clock.Advance(time.Nanosecond)
	assert.True(t, f.raffle.CheckUpkeep(ctx).Due)
}

func TestCheckUpkeep_BalanceError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.enterAll(t, playerA)
	f.clock.Advance(time.Hour)
	f.payout.balanceErr = errors.New("ledger offline")

	status := f.raffle.CheckUpkeep(ctx)
	assert.False(t, status.Due)
	assert.False(t, status.HasBalance)
	assert.Contains(t, status.Reason(), "ledger offline")
}

func TestCheckUpkeep_IsReadOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.enterAll(t, playerA)
	f.clock.Advance(time.Hour)

	before := f.raffle.Snapshot()
	for i := 0; i < 3; i++ {
		assert.True(t, f.raffle.CheckUpkeep(ctx).Due)
	}
	assert.Equal(t, before, f.raffle.Snapshot())
	assert.Empty(t, f.oracle.requests)
}
