package dto

import "time"

// EnterRaffleRequest POST /api/raffle/enter
type EnterRaffleRequest struct {
	Participant string `json:"participant" binding:"required"`
	Amount      string `json:"amount" binding:"required"` // wei
	Round       uint64 `json:"round"`                     // signed round, current round when zero
	Nonce       string `json:"nonce"`
	Signature   string `json:"signature"`
}

// EnterRaffleResponse result of a successful entry
type EnterRaffleResponse struct {
	Participant string `json:"participant"`
	Amount      string `json:"amount"`
	Round       uint64 `json:"round"`
	Players     int    `json:"players"`
}

// RaffleStateResponse GET /api/raffle
type RaffleStateResponse struct {
	Address              string    `json:"address"`
	Coordinator          string    `json:"coordinator"`
	RaffleState          string    `json:"raffle_state"`
	RaffleStateCode      uint8     `json:"raffle_state_code"`
	EntranceFee          string    `json:"entrance_fee"`
	EntranceFeeEther     string    `json:"entrance_fee_ether"`
	IntervalSeconds      int64     `json:"interval_seconds"`
	NumPlayers           int       `json:"num_players"`
	RecentWinner         string    `json:"recent_winner"`
	LatestTimestamp      time.Time `json:"latest_timestamp"`
	PendingRequestID     string    `json:"pending_request_id,omitempty"`
	Round                uint64    `json:"round"`
	PoolBalance          string    `json:"pool_balance"`
	PoolBalanceEther     string    `json:"pool_balance_ether"`
	NumWords             uint32    `json:"num_words"`
	RequestConfirmations uint16    `json:"request_confirmations"`
	UpkeepNeeded         bool      `json:"upkeep_needed"`
}

// UpkeepStatusResponse GET /api/raffle/upkeep
type UpkeepStatusResponse struct {
	UpkeepNeeded bool   `json:"upkeep_needed"`
	IsOpen       bool   `json:"is_open"`
	HasPlayers   bool   `json:"has_players"`
	TimePassed   bool   `json:"time_passed"`
	HasBalance   bool   `json:"has_balance"`
	RaffleState  string `json:"raffle_state"`
	NumPlayers   int    `json:"num_players"`
	Balance      string `json:"balance"`
	Reason       string `json:"reason,omitempty"`
}

// PerformUpkeepResponse POST /api/raffle/upkeep
type PerformUpkeepResponse struct {
	RequestID string `json:"request_id"`
	Round     uint64 `json:"round"`
}

// PlayerResponse one entrant
type PlayerResponse struct {
	Index   int    `json:"index"`
	Address string `json:"address"`
}

// WinnerResponse one settled round from history
type WinnerResponse struct {
	Round     uint64    `json:"round"`
	Winner    string    `json:"winner"`
	Prize     string    `json:"prize"`
	Players   int       `json:"players"`
	RequestID string    `json:"request_id"`
	SettledAt time.Time `json:"settled_at"`
}

// LedgerBalanceResponse GET /api/ledger/:address
type LedgerBalanceResponse struct {
	Address      string `json:"address"`
	Balance      string `json:"balance"`
	BalanceEther string `json:"balance_ether"`
}

// AdminFulfillRequest POST /api/admin/vrf/fulfill; empty RandomWords uses derived words
type AdminFulfillRequest struct {
	RequestID   string   `json:"request_id" binding:"required"`
	RandomWords []string `json:"random_words"`
}

// AdminCreditRequest POST /api/admin/ledger/credit
type AdminCreditRequest struct {
	Address string `json:"address" binding:"required"`
	Amount  string `json:"amount" binding:"required"` // ether, decimal
}

// RaffleEventMessage wire form of a raffle event (NATS and websocket)
type RaffleEventMessage struct {
	Event       string    `json:"event"`
	Raffle      string    `json:"raffle"`
	Round       uint64    `json:"round"`
	Participant string    `json:"participant,omitempty"`
	RequestID   string    `json:"request_id,omitempty"`
	Winner      string    `json:"winner,omitempty"`
	Amount      string    `json:"amount,omitempty"`
	Players     int       `json:"players"`
	Timestamp   time.Time `json:"timestamp"`
}
