package models

import (
	"time"
)

// RaffleEntry one accepted entry
type RaffleEntry struct {
	ID            string    `json:"id" gorm:"primaryKey"` // UUID
	RaffleAddress string    `json:"raffle_address" gorm:"type:varchar(42);not null;index:idx_entry_round"`
	Round         uint64    `json:"round" gorm:"not null;index:idx_entry_round"`
	Participant   string    `json:"participant" gorm:"type:varchar(42);not null;index"`
	Amount        string    `json:"amount" gorm:"type:numeric(78,0);not null"` // wei
	Position      int       `json:"position" gorm:"not null"`                  // players count after entry
	EnteredAt     time.Time `json:"entered_at" gorm:"not null"`
	CreatedAt     time.Time `json:"created_at"`
}

func (RaffleEntry) TableName() string { return "raffle_entries" }

// RandomnessRequestStatus lifecycle of a randomness request
type RandomnessRequestStatus string

const (
	RandomnessRequestPending   RandomnessRequestStatus = "pending"
	RandomnessRequestFulfilled RandomnessRequestStatus = "fulfilled"
)

// RandomnessRequestRecord one oracle request issued by performUpkeep.
// Coordinator request ids restart with the coordinator, so a request is
// unique only within its raffle round.
type RandomnessRequestRecord struct {
	ID            string                  `json:"id" gorm:"primaryKey"` // UUID
	RaffleAddress string                  `json:"raffle_address" gorm:"type:varchar(42);not null;uniqueIndex:idx_request_round"`
	Round         uint64                  `json:"round" gorm:"not null;uniqueIndex:idx_request_round"`
	RequestID     string                  `json:"request_id" gorm:"type:numeric(78,0);not null;uniqueIndex:idx_request_round"`
	Players       int                     `json:"players" gorm:"not null"`
	Status        RandomnessRequestStatus `json:"status" gorm:"type:varchar(16);not null;default:'pending'"`
	RequestedAt   time.Time               `json:"requested_at" gorm:"not null"`
	FulfilledAt   *time.Time              `json:"fulfilled_at"`
	CreatedAt     time.Time               `json:"created_at"`
	UpdatedAt     time.Time               `json:"updated_at"`
}

func (RandomnessRequestRecord) TableName() string { return "raffle_randomness_requests" }

// RaffleSettlement one completed round
type RaffleSettlement struct {
	ID            string    `json:"id" gorm:"primaryKey"` // UUID
	RaffleAddress string    `json:"raffle_address" gorm:"type:varchar(42);not null;uniqueIndex:idx_settlement_round"`
	Round         uint64    `json:"round" gorm:"not null;uniqueIndex:idx_settlement_round"`
	RequestID     string    `json:"request_id" gorm:"type:numeric(78,0);not null"`
	Winner        string    `json:"winner" gorm:"type:varchar(42);not null;index"`
	Prize         string    `json:"prize" gorm:"type:numeric(78,0);not null"` // wei
	Players       int       `json:"players" gorm:"not null"`
	SettledAt     time.Time `json:"settled_at" gorm:"not null;index"`
	CreatedAt     time.Time `json:"created_at"`
}

func (RaffleSettlement) TableName() string { return "raffle_settlements" }
