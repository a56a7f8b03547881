package services

import (
	"context"
	"log"
	"math/big"
	"sync"
	"time"

	"raffle-backend/internal/metrics"
	"raffle-backend/internal/raffle"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RaffleReader read side of the raffle used for gauges
type RaffleReader interface {
	Snapshot() raffle.Snapshot
}

// PoolBalanceReader reports the prize pool balance in wei
type PoolBalanceReader interface {
	Balance(ctx context.Context) (*big.Int, error)
}

// MonitoringService 监控服务，负责定期更新 Prometheus metrics
type MonitoringService struct {
	db       *gorm.DB // nil when history is disabled
	raffle   RaffleReader
	pool     PoolBalanceReader
	stopCh   chan struct{}
	wg       sync.WaitGroup
	interval time.Duration
}

// NewMonitoringService 创建监控服务
func NewMonitoringService(db *gorm.DB, reader RaffleReader, pool PoolBalanceReader, interval time.Duration) *MonitoringService {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &MonitoringService{
		db:       db,
		raffle:   reader,
		pool:     pool,
		stopCh:   make(chan struct{}),
		interval: interval,
	}
}

// Start 启动监控服务
func (m *MonitoringService) Start() {
	log.Println("🚀 Starting monitoring service...")

	m.wg.Add(1)
	go m.monitorRaffle()

	if m.db != nil {
		m.wg.Add(1)
		go m.monitorDatabaseConnection()
	}

	log.Println("✅ Monitoring service started")
}

// Stop 停止监控服务
func (m *MonitoringService) Stop() {
	log.Println("🛑 Stopping monitoring service...")
	close(m.stopCh)
	m.wg.Wait()
	log.Println("✅ Monitoring service stopped")
}

func (m *MonitoringService) monitorRaffle() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	// 立即执行一次
	m.UpdateRaffleMetrics(context.Background())

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.UpdateRaffleMetrics(context.Background())
		}
	}
}

// UpdateRaffleMetrics refreshes the phase, player, round and pool gauges
func (m *MonitoringService) UpdateRaffleMetrics(ctx context.Context) {
	snap := m.raffle.Snapshot()
	metrics.RafflePhase.Set(float64(snap.Phase))
	metrics.RafflePlayers.Set(float64(len(snap.Players)))
	metrics.RaffleRound.Set(float64(snap.Round))

	if m.pool == nil {
		return
	}
	balance, err := m.pool.Balance(ctx)
	if err != nil {
		log.Printf("⚠️  Failed to read pool balance: %v", err)
		return
	}
	metrics.RafflePoolBalance.Set(decimal.NewFromBigInt(balance, -18).InexactFloat64())
}

// monitorDatabaseConnection 监控数据库连接
func (m *MonitoringService) monitorDatabaseConnection() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.updateDatabaseMetrics()
		}
	}
}

// updateDatabaseMetrics 更新数据库指标
func (m *MonitoringService) updateDatabaseMetrics() {
	sqlDB, err := m.db.DB()
	if err != nil {
		metrics.DBConnectionStatus.Set(0)
		return
	}

	stats := sqlDB.Stats()
	metrics.DBConnectionPoolSize.Set(float64(stats.MaxOpenConnections))
	metrics.DBConnectionActive.Set(float64(stats.OpenConnections - stats.Idle))
	metrics.DBConnectionIdle.Set(float64(stats.Idle))

	if err := sqlDB.Ping(); err != nil {
		metrics.DBConnectionStatus.Set(0)
	} else {
		metrics.DBConnectionStatus.Set(1)
	}
}
