package clients

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"raffle-backend/internal/metrics"
	"raffle-backend/internal/raffle"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// MaxNumWords upper bound on words per request
const MaxNumWords = 500

var (
	ErrInvalidSubscription = errors.New("vrf: invalid subscription")
	ErrInvalidConsumer     = errors.New("vrf: invalid consumer")
	ErrNumWordsTooBig      = errors.New("vrf: numWords too big")
	ErrWrongNumWords       = errors.New("vrf: wrong numWords")
	ErrNonexistentRequest  = errors.New("nonexistent request")
	ErrInsufficientBalance = errors.New("vrf: insufficient subscription balance")
)

// VRFSubscription funding account for randomness requests
type VRFSubscription struct {
	ID        uint64           `json:"id"`
	Balance   *big.Int         `json:"balance"`
	Consumers []common.Address `json:"consumers"`
}

type vrfRequest struct {
	subID    uint64
	numWords uint32
	consumer common.Address
	created  time.Time
}

// VRFCoordinatorMock in-process randomness coordinator for local networks.
// Randomness is derived from the request id and is therefore predictable.
type VRFCoordinatorMock struct {
	mu            sync.Mutex
	address       common.Address
	baseFee       *big.Int
	nextSubID     uint64
	nextRequestID int64
	subs          map[uint64]*VRFSubscription
	requests      map[string]*vrfRequest
	consumers     map[common.Address]raffle.RandomnessConsumer

	autoFulfillDelay time.Duration
	timers           map[string]*time.Timer
	logger           *logrus.Logger
}

// NewVRFCoordinatorMock creates a coordinator charging baseFee per fulfilment.
// autoFulfillDelay > 0 fulfils every request on its own after the delay.
func NewVRFCoordinatorMock(address common.Address, baseFee *big.Int, autoFulfillDelay time.Duration, logger *logrus.Logger) *VRFCoordinatorMock {
	if baseFee == nil {
		baseFee = new(big.Int)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &VRFCoordinatorMock{
		address:          address,
		baseFee:          new(big.Int).Set(baseFee),
		subs:             make(map[uint64]*VRFSubscription),
		requests:         make(map[string]*vrfRequest),
		consumers:        make(map[common.Address]raffle.RandomnessConsumer),
		autoFulfillDelay: autoFulfillDelay,
		timers:           make(map[string]*time.Timer),
		logger:           logger,
	}
}

// Address coordinator endpoint address
func (m *VRFCoordinatorMock) Address() common.Address {
	return m.address
}

// CreateSubscription returns a new subscription id, starting at 1
func (m *VRFCoordinatorMock) CreateSubscription() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSubID++
	m.subs[m.nextSubID] = &VRFSubscription{ID: m.nextSubID, Balance: new(big.Int)}
	m.logger.WithField("subscription_id", m.nextSubID).Info("VRF subscription created")
	return m.nextSubID
}

// FundSubscription adds amount to the subscription balance
func (m *VRFCoordinatorMock) FundSubscription(subID uint64, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[subID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrInvalidSubscription, subID)
	}
	sub.Balance.Add(sub.Balance, amount)
	m.logger.WithFields(logrus.Fields{
		"subscription_id": subID,
		"amount":          amount.String(),
		"balance":         sub.Balance.String(),
	}).Info("VRF subscription funded")
	return nil
}

// AddConsumer authorises consumer to request against subID
func (m *VRFCoordinatorMock) AddConsumer(subID uint64, consumer common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[subID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrInvalidSubscription, subID)
	}
	for _, c := range sub.Consumers {
		if c == consumer {
			return nil
		}
	}
	sub.Consumers = append(sub.Consumers, consumer)
	m.logger.WithFields(logrus.Fields{
		"subscription_id": subID,
		"consumer":        consumer.Hex(),
	}).Info("VRF consumer added")
	return nil
}

// RemoveConsumer revokes consumer from subID
func (m *VRFCoordinatorMock) RemoveConsumer(subID uint64, consumer common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[subID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrInvalidSubscription, subID)
	}
	for i, c := range sub.Consumers {
		if c == consumer {
			sub.Consumers = append(sub.Consumers[:i], sub.Consumers[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalidConsumer, consumer.Hex())
}

// GetSubscription returns a copy of the subscription
func (m *VRFCoordinatorMock) GetSubscription(subID uint64) (VRFSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[subID]
	if !ok {
		return VRFSubscription{}, fmt.Errorf("%w: %d", ErrInvalidSubscription, subID)
	}
	return VRFSubscription{
		ID:        sub.ID,
		Balance:   new(big.Int).Set(sub.Balance),
		Consumers: append([]common.Address(nil), sub.Consumers...),
	}, nil
}

// RegisterConsumer sets the callback target for address
func (m *VRFCoordinatorMock) RegisterConsumer(address common.Address, consumer raffle.RandomnessConsumer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consumers[address] = consumer
}

// RequestRandomness implements raffle.RandomnessOracleClient
func (m *VRFCoordinatorMock) RequestRandomness(_ context.Context, req raffle.RandomnessRequest) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subs[req.SubscriptionID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSubscription, req.SubscriptionID)
	}
	if !containsAddress(sub.Consumers, req.Consumer) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidConsumer, req.Consumer.Hex())
	}
	if req.NumWords > MaxNumWords {
		return nil, fmt.Errorf("%w: %d > %d", ErrNumWordsTooBig, req.NumWords, MaxNumWords)
	}

	m.nextRequestID++
	requestID := big.NewInt(m.nextRequestID)
	m.requests[requestID.String()] = &vrfRequest{
		subID:    req.SubscriptionID,
		numWords: req.NumWords,
		consumer: req.Consumer,
		created:  time.Now(),
	}

	m.logger.WithFields(logrus.Fields{
		"request_id":      requestID.String(),
		"subscription_id": req.SubscriptionID,
		"consumer":        req.Consumer.Hex(),
		"num_words":       req.NumWords,
		"key_hash":        req.KeyHash.Hex(),
	}).Info("Random words requested")

	if m.autoFulfillDelay > 0 {
		id := new(big.Int).Set(requestID)
		consumer := req.Consumer
		m.timers[id.String()] = time.AfterFunc(m.autoFulfillDelay, func() {
			m.mu.Lock()
			delete(m.timers, id.String())
			m.mu.Unlock()
			if err := m.FulfillRandomWords(context.Background(), id, consumer); err != nil {
				m.logger.WithFields(logrus.Fields{
					"request_id": id.String(),
					"error":      err.Error(),
				}).Warn("Automatic fulfilment failed")
			}
		})
	}
	return requestID, nil
}

// FulfillRandomWords fulfils requestID with words derived from the id
func (m *VRFCoordinatorMock) FulfillRandomWords(ctx context.Context, requestID *big.Int, consumer common.Address) error {
	m.mu.Lock()
	req, ok := m.requests[requestID.String()]
	m.mu.Unlock()
	if !ok {
		return ErrNonexistentRequest
	}
	return m.FulfillRandomWordsWithOverride(ctx, requestID, consumer, DeriveRandomWords(requestID, req.numWords))
}

// FulfillRandomWordsWithOverride fulfils requestID with caller supplied
// words. A consumer error leaves the request outstanding.
func (m *VRFCoordinatorMock) FulfillRandomWordsWithOverride(ctx context.Context, requestID *big.Int, consumer common.Address, words []*big.Int) error {
	if requestID == nil {
		return ErrNonexistentRequest
	}
	key := requestID.String()

	m.mu.Lock()
	req, ok := m.requests[key]
	if !ok {
		m.mu.Unlock()
		return ErrNonexistentRequest
	}
	if len(words) != int(req.numWords) {
		m.mu.Unlock()
		return fmt.Errorf("%w: got %d, want %d", ErrWrongNumWords, len(words), req.numWords)
	}
	target, ok := m.consumers[consumer]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: no callback registered for %s", ErrInvalidConsumer, consumer.Hex())
	}
	sub := m.subs[req.subID]
	if sub == nil || sub.Balance.Cmp(m.baseFee) < 0 {
		m.mu.Unlock()
		return fmt.Errorf("%w: subscription %d", ErrInsufficientBalance, req.subID)
	}
	m.mu.Unlock()

	// consumer runs without mu; it may request again
	if err := target.FulfillRandomness(ctx, requestID, words); err != nil {
		metrics.VRFFulfillments.WithLabelValues("mock", "rejected").Inc()
		m.logger.WithFields(logrus.Fields{
			"request_id": key,
			"consumer":   consumer.Hex(),
			"error":      err.Error(),
		}).Warn("Consumer rejected random words")
		return fmt.Errorf("consumer rejected request %s: %w", key, err)
	}

	m.mu.Lock()
	if _, still := m.requests[key]; still {
		delete(m.requests, key)
		if sub := m.subs[req.subID]; sub != nil {
			sub.Balance.Sub(sub.Balance, m.baseFee)
		}
	}
	if t, ok := m.timers[key]; ok {
		t.Stop()
		delete(m.timers, key)
	}
	m.mu.Unlock()

	metrics.VRFFulfillments.WithLabelValues("mock", "success").Inc()
	m.logger.WithFields(logrus.Fields{
		"request_id": key,
		"consumer":   consumer.Hex(),
		"payment":    m.baseFee.String(),
	}).Info("Random words fulfilled")
	return nil
}

// PendingRequests ids of outstanding requests
func (m *VRFCoordinatorMock) PendingRequests() []*big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]*big.Int, 0, len(m.requests))
	for key := range m.requests {
		id, _ := new(big.Int).SetString(key, 10)
		ids = append(ids, id)
	}
	return ids
}

// Stop cancels pending automatic fulfilments
func (m *VRFCoordinatorMock) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, t := range m.timers {
		t.Stop()
		delete(m.timers, key)
	}
}

func containsAddress(list []common.Address, addr common.Address) bool {
	for _, a := range list {
		if a == addr {
			return true
		}
	}
	return false
}
