package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"raffle-backend/internal/dto"
	"raffle-backend/internal/metrics"
	"raffle-backend/internal/raffle"

	"github.com/ethereum/go-ethereum/common"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

var (
	ErrConsumerNotSet      = errors.New("vrf: no consumer registered")
	ErrMalformedFulfilment = errors.New("vrf: malformed fulfillment")
)

// Subscriber subscribes a handler to a subject
type Subscriber interface {
	Subscribe(subject string, handler nats.MsgHandler) error
}

type natsVRFKey struct {
	sender common.Address
	subID  uint64
}

// NATSVRFClient requests randomness from an oracle worker over NATS and
// routes the worker's fulfillments back to the consumer.
type NATSVRFClient struct {
	pub                Publisher
	requestSubject     string
	fulfillmentSubject string
	logger             *logrus.Logger

	mu       sync.Mutex
	consumer raffle.RandomnessConsumer
	nonces   map[natsVRFKey]uint64
	pending  map[string]dto.VRFRequestMessage
}

// NewNATSVRFClient creates a client publishing on requestSubject
func NewNATSVRFClient(pub Publisher, requestSubject, fulfillmentSubject string, logger *logrus.Logger) *NATSVRFClient {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &NATSVRFClient{
		pub:                pub,
		requestSubject:     requestSubject,
		fulfillmentSubject: fulfillmentSubject,
		logger:             logger,
		nonces:             make(map[natsVRFKey]uint64),
		pending:            make(map[string]dto.VRFRequestMessage),
	}
}

// SetConsumer sets the fulfillment target
func (c *NATSVRFClient) SetConsumer(consumer raffle.RandomnessConsumer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consumer = consumer
}

// Start subscribes to the fulfillment subject
func (c *NATSVRFClient) Start(sub Subscriber) error {
	return sub.Subscribe(c.fulfillmentSubject, func(msg *nats.Msg) {
		metrics.NATSMessagesReceived.WithLabelValues("vrf_fulfillment").Inc()
		if err := c.HandleFulfillment(context.Background(), msg.Data); err != nil {
			c.logger.WithFields(logrus.Fields{
				"subject": msg.Subject,
				"error":   err.Error(),
			}).Warn("VRF fulfillment not applied")
		}
	})
}

// RequestRandomness implements raffle.RandomnessOracleClient
func (c *NATSVRFClient) RequestRandomness(_ context.Context, req raffle.RandomnessRequest) (*big.Int, error) {
	if req.NumWords == 0 || req.NumWords > MaxNumWords {
		return nil, fmt.Errorf("%w: %d", ErrNumWordsTooBig, req.NumWords)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := natsVRFKey{sender: req.Consumer, subID: req.SubscriptionID}
	nonce := c.nonces[key] + 1
	requestID, preSeed := ComputeRequestID(req.KeyHash, req.Consumer, req.SubscriptionID, nonce)

	msg := dto.VRFRequestMessage{
		RequestID:            requestID.String(),
		PreSeed:              preSeed.String(),
		KeyHash:              req.KeyHash.Hex(),
		SubscriptionID:       req.SubscriptionID,
		RequestConfirmations: req.RequestConfirmations,
		CallbackGasLimit:     req.CallbackGasLimit,
		NumWords:             req.NumWords,
		Sender:               req.Consumer.Hex(),
		Nonce:                nonce,
		RequestedAt:          time.Now().UTC(),
	}
	if err := PublishJSON(c.pub, c.requestSubject, msg); err != nil {
		metrics.NATSMessagesFailed.WithLabelValues("vrf_request", "publish").Inc()
		return nil, err
	}
	metrics.NATSMessagesPublished.WithLabelValues("vrf_request").Inc()

	c.nonces[key] = nonce
	c.pending[msg.RequestID] = msg

	c.logger.WithFields(logrus.Fields{
		"request_id":      msg.RequestID,
		"subscription_id": req.SubscriptionID,
		"nonce":           nonce,
		"subject":         c.requestSubject,
	}).Info("VRF request published")
	return requestID, nil
}

// HandleFulfillment applies a fulfillment message to the consumer.
// Unknown or malformed messages are rejected without side effects.
func (c *NATSVRFClient) HandleFulfillment(ctx context.Context, data []byte) error {
	var msg dto.VRFFulfillmentMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		metrics.VRFFulfillments.WithLabelValues("nats", "malformed").Inc()
		return fmt.Errorf("%w: %v", ErrMalformedFulfilment, err)
	}

	requestID, ok := new(big.Int).SetString(msg.RequestID, 10)
	if !ok {
		metrics.VRFFulfillments.WithLabelValues("nats", "malformed").Inc()
		return fmt.Errorf("%w: request id %q", ErrMalformedFulfilment, msg.RequestID)
	}
	words := make([]*big.Int, 0, len(msg.RandomWords))
	for _, w := range msg.RandomWords {
		word, ok := new(big.Int).SetString(w, 10)
		if !ok || word.Sign() < 0 {
			metrics.VRFFulfillments.WithLabelValues("nats", "malformed").Inc()
			return fmt.Errorf("%w: random word %q", ErrMalformedFulfilment, w)
		}
		words = append(words, word)
	}

	c.mu.Lock()
	req, known := c.pending[msg.RequestID]
	consumer := c.consumer
	c.mu.Unlock()

	if !known {
		metrics.VRFFulfillments.WithLabelValues("nats", "unknown").Inc()
		return fmt.Errorf("%w: %s", ErrNonexistentRequest, msg.RequestID)
	}
	if len(words) != int(req.NumWords) {
		metrics.VRFFulfillments.WithLabelValues("nats", "malformed").Inc()
		return fmt.Errorf("%w: got %d, want %d", ErrWrongNumWords, len(words), req.NumWords)
	}
	if consumer == nil {
		return ErrConsumerNotSet
	}

	if err := consumer.FulfillRandomness(ctx, requestID, words); err != nil {
		metrics.VRFFulfillments.WithLabelValues("nats", "rejected").Inc()
		return fmt.Errorf("consumer rejected request %s: %w", msg.RequestID, err)
	}

	c.mu.Lock()
	delete(c.pending, msg.RequestID)
	c.mu.Unlock()

	metrics.VRFFulfillments.WithLabelValues("nats", "success").Inc()
	c.logger.WithFields(logrus.Fields{
		"request_id": msg.RequestID,
		"oracle":     msg.Oracle,
	}).Info("VRF fulfillment applied")
	return nil
}

// PendingCount number of requests awaiting fulfillment
func (c *NATSVRFClient) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
