package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"raffle-backend/internal/events"
	"raffle-backend/internal/models"
	"raffle-backend/internal/raffle"
	"raffle-backend/internal/repository"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// RaffleHistoryService persists raffle events as entry, request and
// settlement rows
type RaffleHistoryService struct {
	repo repository.RaffleRepository
}

// NewRaffleHistoryService creates a new RaffleHistoryService instance
func NewRaffleHistoryService(repo repository.RaffleRepository) *RaffleHistoryService {
	return &RaffleHistoryService{repo: repo}
}

// ResumeRound the round a raffle at raffleAddress should start with so that
// its rows do not collide with rounds recorded by earlier runs
func (s *RaffleHistoryService) ResumeRound(ctx context.Context, raffleAddress common.Address) (uint64, error) {
	latest, err := s.repo.LatestRound(ctx, raffleAddress.Hex())
	if err != nil {
		return 0, fmt.Errorf("failed to read latest recorded round: %w", err)
	}
	return latest + 1, nil
}

// Run records events from sub until ctx is done or sub is closed
func (s *RaffleHistoryService) Run(ctx context.Context, sub *events.Subscription) {
	log.Println("📚 Raffle history recorder started")
	sub.Dispatch(ctx, func(evt raffle.Event) {
		if err := s.Record(ctx, evt); err != nil {
			log.Printf("❌ Failed to record %s event for round %d: %v", evt.Name, evt.Round, err)
		}
	})
	log.Println("📚 Raffle history recorder stopped")
}

// Record writes the rows for one event
func (s *RaffleHistoryService) Record(ctx context.Context, evt raffle.Event) error {
	raffleAddress := evt.Raffle.Hex()

	switch evt.Name {
	case raffle.EventEntered:
		entry := &models.RaffleEntry{
			ID:            uuid.New().String(),
			RaffleAddress: raffleAddress,
			Round:         evt.Round,
			Participant:   evt.Participant.Hex(),
			Amount:        amountString(evt),
			Position:      evt.Players,
			EnteredAt:     evt.Timestamp,
		}
		if err := s.repo.CreateEntry(ctx, entry); err != nil {
			return fmt.Errorf("failed to create entry: %w", err)
		}

	case raffle.EventRandomnessRequested:
		if evt.RequestID == nil {
			return fmt.Errorf("randomness request event without request id")
		}
		record := &models.RandomnessRequestRecord{
			ID:            uuid.New().String(),
			RaffleAddress: raffleAddress,
			Round:         evt.Round,
			RequestID:     evt.RequestID.String(),
			Players:       evt.Players,
			Status:        models.RandomnessRequestPending,
			RequestedAt:   evt.Timestamp,
		}
		if err := s.repo.CreateRandomnessRequest(ctx, record); err != nil {
			return fmt.Errorf("failed to create randomness request: %w", err)
		}

	case raffle.EventWinnerPicked:
		if evt.RequestID == nil {
			return fmt.Errorf("winner event without request id")
		}
		requestID := evt.RequestID.String()
		err := s.repo.MarkRequestFulfilled(ctx, raffleAddress, evt.Round, requestID, evt.Timestamp)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			// request row was never recorded; keep the settlement
			log.Printf("⚠️ No request row for round %d request %s", evt.Round, requestID)
		case err != nil:
			return fmt.Errorf("failed to mark request %s fulfilled: %w", requestID, err)
		}
		settlement := &models.RaffleSettlement{
			ID:            uuid.New().String(),
			RaffleAddress: raffleAddress,
			Round:         evt.Round,
			RequestID:     requestID,
			Winner:        evt.Winner.Hex(),
			Prize:         amountString(evt),
			Players:       evt.Players,
			SettledAt:     evt.Timestamp,
		}
		if err := s.repo.CreateSettlement(ctx, settlement); err != nil {
			return fmt.Errorf("failed to create settlement: %w", err)
		}
		log.Printf("🏆 Settlement recorded: round=%d winner=%s prize=%s", evt.Round, settlement.Winner, settlement.Prize)
	}
	return nil
}

func amountString(evt raffle.Event) string {
	if evt.Amount == nil {
		return "0"
	}
	return evt.Amount.String()
}
