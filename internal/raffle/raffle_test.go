package raffle

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	raffleAddr = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	gasLane    = common.HexToHash("0xd89b2bf150e3b9e13446986e571fb9cab24b13cea0a43ea20a6049a85cc807cc")
	playerA    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	playerB    = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	playerC    = common.HexToAddress("0x00000000000000000000000000000000000000c3")
)

func oneHundredthEther() *big.Int {
	return big.NewInt(10_000_000_000_000_000)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeOracle struct {
	mu       sync.Mutex
	nextID   int64
	requests []RandomnessRequest
	err      error
}

func (o *fakeOracle) RequestRandomness(_ context.Context, req RandomnessRequest) (*big.Int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	o.nextID++
	o.requests = append(o.requests, req)
	return big.NewInt(o.nextID), nil
}

// fakePayout pool ledger with failure injection
type fakePayout struct {
	mu          sync.Mutex
	pool        *big.Int
	paid        map[common.Address]*big.Int
	depositErr  error
	transferErr error
	balanceErr  error
}

func newFakePayout() *fakePayout {
	return &fakePayout{pool: new(big.Int), paid: make(map[common.Address]*big.Int)}
}

func (p *fakePayout) Deposit(_ context.Context, _ common.Address, amount *big.Int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.depositErr != nil {
		return p.depositErr
	}
	p.pool.Add(p.pool, amount)
	return nil
}

func (p *fakePayout) Transfer(_ context.Context, to common.Address, amount *big.Int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.transferErr != nil {
		return p.transferErr
	}
	if p.pool.Cmp(amount) < 0 {
		return errors.New("pool underflow")
	}
	p.pool.Sub(p.pool, amount)
	if p.paid[to] == nil {
		p.paid[to] = new(big.Int)
	}
	p.paid[to].Add(p.paid[to], amount)
	return nil
}

func (p *fakePayout) Balance(context.Context) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.balanceErr != nil {
		return nil, p.balanceErr
	}
	return new(big.Int).Set(p.pool), nil
}

func (p *fakePayout) paidTo(addr common.Address) *big.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paid[addr] == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(p.paid[addr])
}

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) Emit(evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *eventRecorder) names() []EventName {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]EventName, 0, len(r.events))
	for _, e := range r.events {
		names = append(names, e.Name)
	}
	return names
}

type fixture struct {
	raffle *StateMachine
	clock  *fakeClock
	oracle *fakeOracle
	payout *fakePayout
	events *eventRecorder
}

func testConfig() Config {
	return Config{
		EntranceFee:      oneHundredthEther(),
		GasLane:          gasLane,
		SubscriptionID:   1,
		CallbackGasLimit: 500000,
		Interval:         30 * time.Second,
		Address:          raffleAddr,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	f := &fixture{
		clock:  newFakeClock(),
		oracle: &fakeOracle{},
		payout: newFakePayout(),
		events: &eventRecorder{},
	}
	r, err := New(testConfig(), f.oracle, f.payout,
		WithClock(f.clock), WithEventSink(f.events), WithLogger(logger))
	require.NoError(t, err)
	f.raffle = r
	return f
}

func (f *fixture) enterAll(t *testing.T, players ...common.Address) {
	t.Helper()
	for _, p := range players {
		require.NoError(t, f.raffle.Enter(context.Background(), p, oneHundredthEther()))
	}
}

func (f *fixture) startRound(t *testing.T, players ...common.Address) *big.Int {
	t.Helper()
	f.enterAll(t, players...)
	f.clock.Advance(f.raffle.Interval() + time.Second)
	id, err := f.raffle.PerformUpkeep(context.Background())
	require.NoError(t, err)
	return id
}

func TestNew(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, PhaseOpen, f.raffle.RaffleState())
	assert.Equal(t, 0, f.raffle.NumberOfPlayers())
	assert.Equal(t, oneHundredthEther(), f.raffle.EntranceFee())
	assert.Equal(t, 30*time.Second, f.raffle.Interval())
	assert.Equal(t, DefaultRequestConfirmations, f.raffle.RequestConfirmations())
	assert.Equal(t, uint32(1), f.raffle.NumWords())
	assert.Equal(t, common.Address{}, f.raffle.RecentWinner())
	assert.Equal(t, f.clock.Now(), f.raffle.LatestTimestamp())
	assert.Nil(t, f.raffle.PendingRequestID())
	assert.Equal(t, uint64(1), f.raffle.Round())
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"nil fee", func(c *Config) { c.EntranceFee = nil }},
		{"zero fee", func(c *Config) { c.EntranceFee = big.NewInt(0) }},
		{"zero interval", func(c *Config) { c.Interval = 0 }},
		{"negative interval", func(c *Config) { c.Interval = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			_, err := New(cfg, &fakeOracle{}, newFakePayout())
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}

	_, err := New(testConfig(), nil, newFakePayout())
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = New(testConfig(), &fakeOracle{}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNew_ConfigIsCopied(t *testing.T) {
	cfg := testConfig()
	r, err := New(cfg, &fakeOracle{}, newFakePayout())
	require.NoError(t, err)

	cfg.EntranceFee.SetInt64(1)
	assert.Equal(t, oneHundredthEther(), r.EntranceFee())

	r.EntranceFee().SetInt64(2)
	assert.Equal(t, oneHundredthEther(), r.Config().EntranceFee)
}

func TestEnter(t *testing.T) {
	ctx := context.Background()

	t.Run("below fee is rejected", func(t *testing.T) {
		f := newFixture(t)
		short := new(big.Int).Sub(oneHundredthEther(), big.NewInt(1))
		err := f.raffle.Enter(ctx, playerA, short)
		assert.ErrorIs(t, err, ErrInsufficientDeposit)
		assert.Equal(t, 0, f.raffle.NumberOfPlayers())
		assert.Empty(t, f.events.names())

		assert.ErrorIs(t, f.raffle.Enter(ctx, playerA, nil), ErrInsufficientDeposit)
	})

	t.Run("exact fee records player and emits event", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.raffle.Enter(ctx, playerA, oneHundredthEther()))

		p, err := f.raffle.Player(0)
		require.NoError(t, err)
		assert.Equal(t, playerA, p)
		require.Len(t, f.events.events, 1)
		evt := f.events.events[0]
		assert.Equal(t, EventEntered, evt.Name)
		assert.Equal(t, playerA, evt.Participant)
		assert.Equal(t, raffleAddr, evt.Raffle)
		assert.Equal(t, 1, evt.Players)
	})

	t.Run("overpayment joins the pool", func(t *testing.T) {
		f := newFixture(t)
		over := new(big.Int).Mul(oneHundredthEther(), big.NewInt(3))
		require.NoError(t, f.raffle.Enter(ctx, playerA, over))
		bal, err := f.payout.Balance(ctx)
		require.NoError(t, err)
		assert.Equal(t, over, bal)
	})

	t.Run("duplicates allowed in entry order", func(t *testing.T) {
		f := newFixture(t)
		f.enterAll(t, playerA, playerB, playerA)
		assert.Equal(t, 3, f.raffle.NumberOfPlayers())
		for i, want := range []common.Address{playerA, playerB, playerA} {
			got, err := f.raffle.Player(i)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}
	})

	t.Run("closed while calculating", func(t *testing.T) {
		f := newFixture(t)
		f.startRound(t, playerA)
		err := f.raffle.Enter(ctx, playerB, oneHundredthEther())
		assert.ErrorIs(t, err, ErrRaffleNotOpen)
		assert.Equal(t, 1, f.raffle.NumberOfPlayers())
	})

	t.Run("deposit refused by ledger", func(t *testing.T) {
		f := newFixture(t)
		f.payout.depositErr = errors.New("no funds")
		err := f.raffle.Enter(ctx, playerA, oneHundredthEther())
		assert.ErrorIs(t, err, ErrDepositFailed)
		assert.Equal(t, 0, f.raffle.NumberOfPlayers())
		assert.Empty(t, f.events.names())
	})
}

func TestPlayer_OutOfRange(t *testing.T) {
	f := newFixture(t)
	f.enterAll(t, playerA)

	_, err := f.raffle.Player(1)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = f.raffle.Player(-1)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestPerformUpkeep(t *testing.T) {
	ctx := context.Background()

	t.Run("requests randomness with configured parameters", func(t *testing.T) {
		f := newFixture(t)
		id := f.startRound(t, playerA)

		assert.Equal(t, big.NewInt(1), id)
		assert.Equal(t, PhaseCalculating, f.raffle.RaffleState())
		assert.Equal(t, big.NewInt(1), f.raffle.PendingRequestID())
		require.Len(t, f.oracle.requests, 1)
		assert.Equal(t, RandomnessRequest{
			KeyHash:              gasLane,
			SubscriptionID:       1,
			RequestConfirmations: 3,
			CallbackGasLimit:     500000,
			NumWords:             1,
			Consumer:             raffleAddr,
		}, f.oracle.requests[0])
		assert.Equal(t, []EventName{EventEntered, EventRandomnessRequested}, f.events.names())
		assert.Equal(t, id, f.events.events[1].RequestID)
	})

	t.Run("not needed carries status", func(t *testing.T) {
		f := newFixture(t)
		f.enterAll(t, playerA)

		_, err := f.raffle.PerformUpkeep(ctx)
		require.ErrorIs(t, err, ErrUpkeepNotNeeded)
		var notNeeded *UpkeepNotNeededError
		require.True(t, errors.As(err, &notNeeded))
		assert.Equal(t, 1, notNeeded.Status.Players)
		assert.Equal(t, oneHundredthEther(), notNeeded.Status.Balance)
		assert.Equal(t, PhaseOpen, notNeeded.Status.Phase)
		assert.False(t, notNeeded.Status.TimePassed)
		assert.Contains(t, err.Error(), "interval not elapsed")
		assert.Empty(t, f.oracle.requests)
	})

	t.Run("second call while calculating fails", func(t *testing.T) {
		f := newFixture(t)
		f.startRound(t, playerA)
		_, err := f.raffle.PerformUpkeep(ctx)
		assert.ErrorIs(t, err, ErrUpkeepNotNeeded)
		assert.Len(t, f.oracle.requests, 1)
	})

	t.Run("oracle failure leaves raffle open", func(t *testing.T) {
		f := newFixture(t)
		f.enterAll(t, playerA)
		f.clock.Advance(time.Minute)
		f.oracle.err = errors.New("subscription not funded")

		_, err := f.raffle.PerformUpkeep(ctx)
		assert.ErrorIs(t, err, ErrRandomnessRequestFailed)
		assert.Equal(t, PhaseOpen, f.raffle.RaffleState())
		assert.Nil(t, f.raffle.PendingRequestID())
	})
}

func TestFulfillRandomness_ThreePlayerScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	start := f.raffle.LatestTimestamp()
	id := f.startRound(t, playerA, playerB, playerC)

	require.NoError(t, f.raffle.FulfillRandomness(ctx, id, []*big.Int{big.NewInt(7)}))

	assert.Equal(t, playerB, f.raffle.RecentWinner())
	assert.Equal(t, new(big.Int).Mul(oneHundredthEther(), big.NewInt(3)), f.payout.paidTo(playerB))
	assert.Equal(t, 0, f.raffle.NumberOfPlayers())
	assert.Equal(t, PhaseOpen, f.raffle.RaffleState())
	assert.Nil(t, f.raffle.PendingRequestID())
	assert.True(t, f.raffle.LatestTimestamp().After(start))
	assert.Equal(t, uint64(2), f.raffle.Round())

	bal, err := f.payout.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal.Int64())

	names := f.events.names()
	require.Len(t, names, 5)
	assert.Equal(t, EventWinnerPicked, names[4])
	winnerEvt := f.events.events[4]
	assert.Equal(t, playerB, winnerEvt.Winner)
	assert.Equal(t, uint64(1), winnerEvt.Round)
	assert.Equal(t, 3, winnerEvt.Players)
}

func TestFulfillRandomness_IndexIsFirstWordModPlayers(t *testing.T) {
	huge, ok := new(big.Int).SetString("115792089237316195423570985008687907853269984665640564039457584007913129639935", 10)
	require.True(t, ok)

	tests := []struct {
		name string
		word *big.Int
		want common.Address
	}{
		{"zero", big.NewInt(0), playerA},
		{"one", big.NewInt(1), playerB},
		{"wraps", big.NewInt(5), playerC},
		{"max uint256", huge, playerA}, // 2^256-1 mod 3 == 0
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			id := f.startRound(t, playerA, playerB, playerC)
			words := []*big.Int{tt.word, big.NewInt(1)}
			require.NoError(t, f.raffle.FulfillRandomness(context.Background(), id, words))
			assert.Equal(t, tt.want, f.raffle.RecentWinner())
		})
	}
}

func TestFulfillRandomness_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("no pending request", func(t *testing.T) {
		f := newFixture(t)
		f.enterAll(t, playerA)
		err := f.raffle.FulfillRandomness(ctx, big.NewInt(1), []*big.Int{big.NewInt(1)})
		assert.ErrorIs(t, err, ErrUnknownRequest)
		assert.Equal(t, 1, f.raffle.NumberOfPlayers())
	})

	t.Run("wrong request id", func(t *testing.T) {
		f := newFixture(t)
		id := f.startRound(t, playerA, playerB)
		before := f.raffle.Snapshot()

		err := f.raffle.FulfillRandomness(ctx, big.NewInt(999), []*big.Int{big.NewInt(7)})
		assert.ErrorIs(t, err, ErrUnknownRequest)
		assert.Equal(t, before, f.raffle.Snapshot())
		assert.Equal(t, id, f.raffle.PendingRequestID())
	})

	t.Run("empty words", func(t *testing.T) {
		f := newFixture(t)
		id := f.startRound(t, playerA)
		assert.ErrorIs(t, f.raffle.FulfillRandomness(ctx, id, nil), ErrNoRandomWords)
		assert.Equal(t, PhaseCalculating, f.raffle.RaffleState())
	})

	t.Run("delivered twice", func(t *testing.T) {
		f := newFixture(t)
		id := f.startRound(t, playerA)
		require.NoError(t, f.raffle.FulfillRandomness(ctx, id, []*big.Int{big.NewInt(3)}))
		err := f.raffle.FulfillRandomness(ctx, id, []*big.Int{big.NewInt(3)})
		assert.ErrorIs(t, err, ErrUnknownRequest)
	})
}

func TestFulfillRandomness_PayoutFailureRetainsState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.startRound(t, playerA, playerB, playerC)
	before := f.raffle.Snapshot()

	cause := errors.New("recipient rejected transfer")
	f.payout.transferErr = cause
	err := f.raffle.FulfillRandomness(ctx, id, []*big.Int{big.NewInt(7)})
	require.ErrorIs(t, err, ErrPayoutFailed)
	assert.ErrorIs(t, err, cause)

	var payoutErr *PayoutError
	require.True(t, errors.As(err, &payoutErr))
	assert.Equal(t, playerB, payoutErr.Winner)

	assert.Equal(t, before, f.raffle.Snapshot())
	assert.NotContains(t, f.events.names(), EventWinnerPicked)

	// redelivery of the same request succeeds once the sink recovers
	f.payout.transferErr = nil
	require.NoError(t, f.raffle.FulfillRandomness(ctx, id, []*big.Int{big.NewInt(7)}))
	assert.Equal(t, playerB, f.raffle.RecentWinner())
}

func TestMultipleRounds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	id := f.startRound(t, playerA, playerB)
	require.NoError(t, f.raffle.FulfillRandomness(ctx, id, []*big.Int{big.NewInt(0)}))
	assert.Equal(t, playerA, f.raffle.RecentWinner())

	// a fresh round needs a full interval from the settlement
	f.enterAll(t, playerC)
	assert.False(t, f.raffle.CheckUpkeep(ctx).Due)

	id2 := f.startRound(t)
	assert.Equal(t, big.NewInt(2), id2)
	require.NoError(t, f.raffle.FulfillRandomness(ctx, id2, []*big.Int{big.NewInt(42)}))
	assert.Equal(t, playerC, f.raffle.RecentWinner())
	assert.Equal(t, uint64(3), f.raffle.Round())
	assert.Equal(t, oneHundredthEther(), f.payout.paidTo(playerC))
}

func TestEnter_Concurrent(t *testing.T) {
	f := newFixture(t)
	const n = 64

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			addr := common.BigToAddress(big.NewInt(int64(i + 1)))
			assert.NoError(t, f.raffle.Enter(context.Background(), addr, oneHundredthEther()))
			_ = f.raffle.CheckUpkeep(context.Background())
			_ = f.raffle.Snapshot()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, n, f.raffle.NumberOfPlayers())
	bal, err := f.payout.Balance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, new(big.Int).Mul(oneHundredthEther(), big.NewInt(n)), bal)
}

func TestSnapshot_IsIsolated(t *testing.T) {
	f := newFixture(t)
	id := f.startRound(t, playerA)

	snap := f.raffle.Snapshot()
	snap.Players[0] = playerC
	snap.PendingRequestID.SetInt64(555)

	assert.Equal(t, []common.Address{playerA}, f.raffle.Snapshot().Players)
	assert.Equal(t, id, f.raffle.PendingRequestID())
}

func TestWithStartRound(t *testing.T) {
	ctx := context.Background()
	oracle := &fakeOracle{}
	events := &eventRecorder{}
	r, err := New(testConfig(), oracle, newFakePayout(), WithStartRound(5), WithEventSink(events))
	require.NoError(t, err)
	assert.Equal(t, uint64(5), r.Round())

	require.NoError(t, r.Enter(ctx, playerA, oneHundredthEther()))
	require.Len(t, events.events, 1)
	assert.Equal(t, uint64(5), events.events[0].Round)

	// zero keeps the default
	r, err = New(testConfig(), oracle, newFakePayout(), WithStartRound(0))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), r.Round())
}

func TestEnterRound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.raffle.EnterRound(ctx, 1, playerA, oneHundredthEther()))

	err := f.raffle.EnterRound(ctx, 2, playerB, oneHundredthEther())
	assert.ErrorIs(t, err, ErrRoundClosed)
	assert.Equal(t, 1, f.raffle.NumberOfPlayers())

	f.clock.Advance(f.raffle.Interval() + time.Second)
	id, err := f.raffle.PerformUpkeep(ctx)
	require.NoError(t, err)
	require.NoError(t, f.raffle.FulfillRandomness(ctx, id, []*big.Int{big.NewInt(0)}))

	// an entry prepared for the settled round does not leak into the next
	err = f.raffle.EnterRound(ctx, 1, playerB, oneHundredthEther())
	assert.ErrorIs(t, err, ErrRoundClosed)
	assert.Equal(t, 0, f.raffle.NumberOfPlayers())

	require.NoError(t, f.raffle.EnterRound(ctx, 2, playerB, oneHundredthEther()))
	assert.Equal(t, 1, f.raffle.NumberOfPlayers())
}
