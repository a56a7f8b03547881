package events

import (
	"raffle-backend/internal/dto"
	"raffle-backend/internal/raffle"

	"github.com/ethereum/go-ethereum/common"
)

// ToMessage converts an event to its wire form
func ToMessage(evt raffle.Event) dto.RaffleEventMessage {
	msg := dto.RaffleEventMessage{
		Event:     string(evt.Name),
		Raffle:    evt.Raffle.Hex(),
		Round:     evt.Round,
		Players:   evt.Players,
		Timestamp: evt.Timestamp.UTC(),
	}
	if evt.Participant != (common.Address{}) {
		msg.Participant = evt.Participant.Hex()
	}
	if evt.Winner != (common.Address{}) {
		msg.Winner = evt.Winner.Hex()
	}
	if evt.RequestID != nil {
		msg.RequestID = evt.RequestID.String()
	}
	if evt.Amount != nil {
		msg.Amount = evt.Amount.String()
	}
	return msg
}
