package dto

import "time"

// VRFRequestMessage randomness request published for the oracle worker.
// Integers are base-10 strings, hashes and addresses 0x hex.
type VRFRequestMessage struct {
	RequestID            string    `json:"request_id"`
	PreSeed              string    `json:"pre_seed"`
	KeyHash              string    `json:"key_hash"`
	SubscriptionID       uint64    `json:"subscription_id"`
	RequestConfirmations uint16    `json:"request_confirmations"`
	CallbackGasLimit     uint32    `json:"callback_gas_limit"`
	NumWords             uint32    `json:"num_words"`
	Sender               string    `json:"sender"`
	Nonce                uint64    `json:"nonce"`
	RequestedAt          time.Time `json:"requested_at"`
}

// VRFFulfillmentMessage oracle answer to a VRFRequestMessage
type VRFFulfillmentMessage struct {
	RequestID   string    `json:"request_id"`
	Sender      string    `json:"sender"`
	RandomWords []string  `json:"random_words"`
	Oracle      string    `json:"oracle,omitempty"`
	FulfilledAt time.Time `json:"fulfilled_at"`
}
