package repository

import (
	"context"
	"errors"
	"time"

	"raffle-backend/internal/metrics"
	"raffle-backend/internal/models"

	"gorm.io/gorm"
)

// ErrNotFound no row matched the lookup
var ErrNotFound = errors.New("record not found")

// RaffleRepository defines the interface for raffle history data access
type RaffleRepository interface {
	CreateEntry(ctx context.Context, entry *models.RaffleEntry) error
	CreateRandomnessRequest(ctx context.Context, record *models.RandomnessRequestRecord) error
	MarkRequestFulfilled(ctx context.Context, raffleAddress string, round uint64, requestID string, fulfilledAt time.Time) error
	CreateSettlement(ctx context.Context, settlement *models.RaffleSettlement) error

	// LatestRound highest round with any recorded row, 0 when none
	LatestRound(ctx context.Context, raffleAddress string) (uint64, error)
	FindEntriesByRound(ctx context.Context, raffleAddress string, round uint64) ([]*models.RaffleEntry, error)
	FindSettlements(ctx context.Context, raffleAddress string, page, pageSize int) ([]*models.RaffleSettlement, int64, error)
	FindSettlementsByWinner(ctx context.Context, winner string, limit int) ([]*models.RaffleSettlement, error)
	// GetRequest most recent request with requestID
	GetRequest(ctx context.Context, raffleAddress, requestID string) (*models.RandomnessRequestRecord, error)
}

// raffleRepository implements RaffleRepository
type raffleRepository struct {
	db *gorm.DB
}

// NewRaffleRepository creates a new RaffleRepository instance
func NewRaffleRepository(db *gorm.DB) RaffleRepository {
	return &raffleRepository{db: db}
}

func (r *raffleRepository) CreateEntry(ctx context.Context, entry *models.RaffleEntry) error {
	defer observe("create_entry", time.Now())
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *raffleRepository) CreateRandomnessRequest(ctx context.Context, record *models.RandomnessRequestRecord) error {
	defer observe("create_request", time.Now())
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *raffleRepository) MarkRequestFulfilled(ctx context.Context, raffleAddress string, round uint64, requestID string, fulfilledAt time.Time) error {
	defer observe("mark_request_fulfilled", time.Now())
	result := r.db.WithContext(ctx).
		Model(&models.RandomnessRequestRecord{}).
		Where("raffle_address = ? AND round = ? AND request_id = ?", raffleAddress, round, requestID).
		Updates(map[string]interface{}{
			"status":       models.RandomnessRequestFulfilled,
			"fulfilled_at": fulfilledAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *raffleRepository) CreateSettlement(ctx context.Context, settlement *models.RaffleSettlement) error {
	defer observe("create_settlement", time.Now())
	return r.db.WithContext(ctx).Create(settlement).Error
}

func (r *raffleRepository) LatestRound(ctx context.Context, raffleAddress string) (uint64, error) {
	defer observe("latest_round", time.Now())
	var latest uint64
	for _, model := range []interface{}{&models.RaffleEntry{}, &models.RandomnessRequestRecord{}, &models.RaffleSettlement{}} {
		var round uint64
		err := r.db.WithContext(ctx).
			Model(model).
			Where("raffle_address = ?", raffleAddress).
			Select("COALESCE(MAX(round), 0)").
			Scan(&round).Error
		if err != nil {
			return 0, err
		}
		if round > latest {
			latest = round
		}
	}
	return latest, nil
}

func (r *raffleRepository) FindEntriesByRound(ctx context.Context, raffleAddress string, round uint64) ([]*models.RaffleEntry, error) {
	defer observe("find_entries", time.Now())
	var entries []*models.RaffleEntry
	err := r.db.WithContext(ctx).
		Where("raffle_address = ? AND round = ?", raffleAddress, round).
		Order("position ASC").
		Find(&entries).Error
	return entries, err
}

func (r *raffleRepository) FindSettlements(ctx context.Context, raffleAddress string, page, pageSize int) ([]*models.RaffleSettlement, int64, error) {
	defer observe("find_settlements", time.Now())
	var settlements []*models.RaffleSettlement
	var total int64

	query := r.db.WithContext(ctx).Model(&models.RaffleSettlement{}).Where("raffle_address = ?", raffleAddress)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Order("round DESC").Offset(pageOffset(page, pageSize)).Limit(pageSize).Find(&settlements).Error
	return settlements, total, err
}

func (r *raffleRepository) FindSettlementsByWinner(ctx context.Context, winner string, limit int) ([]*models.RaffleSettlement, error) {
	defer observe("find_settlements_by_winner", time.Now())
	var settlements []*models.RaffleSettlement
	err := r.db.WithContext(ctx).
		Where("winner = ?", winner).
		Order("settled_at DESC").
		Limit(limit).
		Find(&settlements).Error
	return settlements, err
}

func (r *raffleRepository) GetRequest(ctx context.Context, raffleAddress, requestID string) (*models.RandomnessRequestRecord, error) {
	defer observe("get_request", time.Now())
	var record models.RandomnessRequestRecord
	err := r.db.WithContext(ctx).
		Where("raffle_address = ? AND request_id = ?", raffleAddress, requestID).
		Order("round DESC").
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// pageOffset rows to skip for a 1-based page
func pageOffset(page, pageSize int) int {
	if page < 1 || pageSize < 1 {
		return 0
	}
	return (page - 1) * pageSize
}

func observe(queryType string, start time.Time) {
	metrics.DBQueryDuration.WithLabelValues(queryType).Observe(time.Since(start).Seconds())
}
