package app

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"raffle-backend/internal/clients"
	"raffle-backend/internal/config"
	"raffle-backend/internal/db"
	"raffle-backend/internal/events"
	"raffle-backend/internal/handlers"
	"raffle-backend/internal/ledger"
	"raffle-backend/internal/raffle"
	"raffle-backend/internal/repository"
	"raffle-backend/internal/router"
	"raffle-backend/internal/services"
	"raffle-backend/internal/utils"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	// first deployment addresses of the local dev chain
	DefaultRaffleAddress      = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	DefaultCoordinatorAddress = "0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512"

	natsStreamName = "raffle-events"
	eventBuffer    = 256
)

// ServiceContainer -
type ServiceContainer struct {
	Config *config.Config
	Logger *logrus.Logger

	// Database (nil without database.dsn)
	DB         *gorm.DB
	RaffleRepo repository.RaffleRepository

	// Core
	Ledger *ledger.MemoryLedger
	Raffle *raffle.StateMachine
	Bus    *events.Bus

	// Oracle, one of the two is set
	VRFCoordinator *clients.VRFCoordinatorMock
	NATSVRFClient  *clients.NATSVRFClient

	// Event & Push Services
	NATSClient      *clients.NATSClient
	EventPublisher  *events.NATSEventPublisher
	HistoryService  *services.RaffleHistoryService
	MetricsRecorder *services.MetricsRecorder
	PushService     *services.EventPushService

	// Background Services
	UpkeepScheduler   *services.UpkeepScheduler
	MonitoringService *services.MonitoringService

	publisherSub *events.Subscription
	historySub   *events.Subscription
	metricsSub   *events.Subscription
	pushSub      *events.Subscription

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewServiceContainer wires every component from cfg. Nothing runs until Start.
func NewServiceContainer(cfg *config.Config, logger *logrus.Logger) (*ServiceContainer, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	log.Println("🚀 Initializing Service Container...")

	c := &ServiceContainer{
		Config: cfg,
		Logger: logger,
		Bus:    events.NewBus(),
	}

	// 1. Database (optional)
	if err := c.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// 2. NATS (required for oracle.mode nats, optional otherwise)
	if err := c.initNATS(); err != nil {
		if cfg.Oracle.Mode == config.OracleModeNATS {
			return nil, fmt.Errorf("failed to initialize NATS: %w", err)
		}
		log.Printf("⚠️ NATS event publishing skipped: %v", err)
	}

	// 3. Raffle core
	if err := c.initRaffle(); err != nil {
		return nil, fmt.Errorf("failed to initialize raffle: %w", err)
	}

	// 4. Event subscribers and background services
	c.initServices()

	log.Println("✅ Service Container initialized successfully")
	return c, nil
}

func (c *ServiceContainer) initDatabase() error {
	database, err := db.InitDB(c.Config.Database)
	if err != nil {
		return err
	}
	if database == nil {
		return nil
	}
	c.DB = database
	c.RaffleRepo = repository.NewRaffleRepository(database)
	c.HistoryService = services.NewRaffleHistoryService(c.RaffleRepo)
	log.Println("✅ Raffle history repository initialized")
	return nil
}

func (c *ServiceContainer) initNATS() error {
	if c.Config.NATS.URL == "" {
		return fmt.Errorf("NATS not configured")
	}

	log.Println("🔌 Connecting to NATS...")
	subjects := append(events.StreamSubjects(c.Config.NATS.Network),
		c.Config.NATS.VRFRequests, c.Config.NATS.VRFFulfillments)
	natsClient, err := clients.NewNATSClient(c.Config.NATS, natsStreamName, subjects)
	if err != nil {
		log.Printf("❌ Failed to connect to NATS at %s: %v", c.Config.NATS.URL, err)
		log.Printf("   → Please ensure NATS server is running on port 4222 (or configured port)")
		return err
	}
	c.NATSClient = natsClient
	c.EventPublisher = events.NewNATSEventPublisher(natsClient, c.Config.NATS.Network)
	c.publisherSub = c.Bus.Subscribe("nats", eventBuffer)
	log.Printf("✅ NATS client connected: %s", c.Config.NATS.URL)
	return nil
}

func (c *ServiceContainer) initRaffle() error {
	cfg := c.Config

	address := common.HexToAddress(DefaultRaffleAddress)
	if cfg.Raffle.Address != "" {
		address = common.HexToAddress(cfg.Raffle.Address)
	}
	coordinator := common.HexToAddress(DefaultCoordinatorAddress)
	if cfg.Oracle.Coordinator != "" {
		coordinator = common.HexToAddress(cfg.Oracle.Coordinator)
	}

	c.Ledger = ledger.NewMemoryLedger(address)

	var oracle raffle.RandomnessOracleClient
	switch cfg.Oracle.Mode {
	case config.OracleModeNATS:
		c.NATSVRFClient = clients.NewNATSVRFClient(c.NATSClient, cfg.NATS.VRFRequests, cfg.NATS.VRFFulfillments, c.Logger)
		oracle = c.NATSVRFClient
	default:
		mock, subID, err := c.bootstrapMockCoordinator(coordinator, address)
		if err != nil {
			return err
		}
		c.VRFCoordinator = mock
		cfg.Raffle.SubscriptionID = subID
		oracle = mock
	}

	raffleCfg, err := cfg.Raffle.ToRaffle(address, coordinator)
	if err != nil {
		return err
	}
	startRound := uint64(1)
	if c.HistoryService != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		startRound, err = c.HistoryService.ResumeRound(ctx, address)
		cancel()
		if err != nil {
			return err
		}
		if startRound > 1 {
			log.Printf("📚 Resuming raffle at round %d after recorded history", startRound)
		}
	}

	sm, err := raffle.New(raffleCfg, oracle, c.Ledger,
		raffle.WithEventSink(c.Bus),
		raffle.WithLogger(c.Logger),
		raffle.WithStartRound(startRound),
	)
	if err != nil {
		return err
	}
	c.Raffle = sm

	consumer := services.NewInstrumentedConsumer(sm)
	if c.VRFCoordinator != nil {
		c.VRFCoordinator.RegisterConsumer(address, consumer)
	} else {
		c.NATSVRFClient.SetConsumer(consumer)
		if err := c.NATSVRFClient.Start(c.NATSClient); err != nil {
			return fmt.Errorf("failed to subscribe to VRF fulfillments: %w", err)
		}
	}

	c.Logger.WithFields(logrus.Fields{
		"address":           raffleCfg.Address.Hex(),
		"coordinator":       raffleCfg.Coordinator.Hex(),
		"entrance_fee":      raffleCfg.EntranceFee.String(),
		"interval":          raffleCfg.Interval.String(),
		"subscription_id":   raffleCfg.SubscriptionID,
		"callback_gas":      raffleCfg.CallbackGasLimit,
		"oracle_mode":       cfg.Oracle.Mode,
		"require_signature": cfg.Raffle.SignatureRequired(),
	}).Info("Raffle deployed")
	return nil
}

// bootstrapMockCoordinator creates, funds and authorizes a subscription
// for the raffle on an in-process coordinator
func (c *ServiceContainer) bootstrapMockCoordinator(coordinator, consumer common.Address) (*clients.VRFCoordinatorMock, uint64, error) {
	baseFee, err := utils.EtherToWei(c.Config.Oracle.BaseFee)
	if err != nil {
		return nil, 0, fmt.Errorf("oracle.baseFee: %w", err)
	}
	fund, err := utils.EtherToWei(c.Config.Oracle.SubscriptionFund)
	if err != nil {
		return nil, 0, fmt.Errorf("oracle.subscriptionFund: %w", err)
	}

	mock := clients.NewVRFCoordinatorMock(coordinator, baseFee, c.Config.Oracle.AutoFulfillDelay(), c.Logger)
	if configured := c.Config.Raffle.SubscriptionID; configured != 0 {
		log.Printf("⚠️ raffle.subscriptionId=%d ignored, the mock coordinator creates its own subscription", configured)
	}
	subID := mock.CreateSubscription()
	if err := mock.FundSubscription(subID, fund); err != nil {
		return nil, 0, err
	}
	if err := mock.AddConsumer(subID, consumer); err != nil {
		return nil, 0, err
	}

	c.Logger.WithFields(logrus.Fields{
		"coordinator":        coordinator.Hex(),
		"subscription_id":    subID,
		"funded":             c.Config.Oracle.SubscriptionFund,
		"base_fee":           c.Config.Oracle.BaseFee,
		"consumer":           consumer.Hex(),
		"auto_fulfill_delay": c.Config.Oracle.AutoFulfillDelay().String(),
	}).Info("Mock VRF coordinator ready")
	return mock, subID, nil
}

func (c *ServiceContainer) initServices() {
	log.Println("🔧 Initializing Services...")

	if c.HistoryService != nil {
		c.historySub = c.Bus.Subscribe("history", eventBuffer)
	}

	c.MetricsRecorder = services.NewMetricsRecorder()
	c.metricsSub = c.Bus.Subscribe("metrics", eventBuffer)

	c.PushService = services.NewEventPushService()
	c.pushSub = c.Bus.Subscribe("websocket", eventBuffer)

	if c.Config.Upkeep.IsEnabled() {
		c.UpkeepScheduler = services.NewUpkeepScheduler(c.Raffle, c.Config.Upkeep.PollInterval())
	} else {
		log.Println("⏸️ Upkeep scheduler disabled, performUpkeep must be triggered through the API")
	}

	c.MonitoringService = services.NewMonitoringService(c.DB, c.Raffle, c.Ledger, 0)
	log.Println("✅ Services initialized")
}

// Start launches the event subscribers and background services
func (c *ServiceContainer) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		ctx, c.cancel = context.WithCancel(ctx)

		if c.EventPublisher != nil {
			c.goRun(func() { c.EventPublisher.Run(ctx, c.publisherSub) })
		}
		if c.HistoryService != nil {
			c.goRun(func() { c.HistoryService.Run(ctx, c.historySub) })
		}
		c.goRun(func() { c.MetricsRecorder.Run(ctx, c.metricsSub) })
		c.goRun(func() { c.PushService.Run(ctx, c.pushSub) })

		if c.UpkeepScheduler != nil {
			c.UpkeepScheduler.Start()
		}
		c.MonitoringService.Start()
		log.Println("✅ Background services started")
	})
}

func (c *ServiceContainer) goRun(fn func()) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn()
	}()
}

// Handlers builds the HTTP handlers over the container's components
func (c *ServiceContainer) Handlers() router.Handlers {
	adminAuth := handlers.NewAdminAuthHandler()

	// the interface stays nil in nats mode
	var fulfiller handlers.VRFFulfiller
	if c.VRFCoordinator != nil {
		fulfiller = c.VRFCoordinator
	}

	return router.Handlers{
		Raffle:    handlers.NewRaffleHandler(c.Raffle, c.Ledger, c.RaffleRepo, c.Config.Raffle.SignatureRequired(), c.Logger),
		Admin:     handlers.NewAdminRaffleHandler(fulfiller, c.Raffle.Config().Address, c.Ledger, c.Logger),
		AdminAuth: adminAuth,
		WebSocket: handlers.NewWebSocketHandler(c.PushService),
		JWTSecret: handlers.AdminJWTSecret(),
		Readiness: c.readinessChecks(),
	}
}

func (c *ServiceContainer) readinessChecks() []handlers.ReadinessCheck {
	var checks []handlers.ReadinessCheck
	if c.DB != nil {
		checks = append(checks, handlers.ReadinessCheck{
			Name: "database",
			Check: func(ctx context.Context) error {
				sqlDB, err := c.DB.DB()
				if err != nil {
					return err
				}
				return sqlDB.PingContext(ctx)
			},
		})
	}
	if c.NATSClient != nil {
		checks = append(checks, handlers.ReadinessCheck{
			Name: "nats",
			Check: func(context.Context) error {
				if !c.NATSClient.IsConnected() {
					return fmt.Errorf("nats disconnected")
				}
				return nil
			},
		})
	}
	return checks
}

// Cleanup stops background work and releases connections
func (c *ServiceContainer) Cleanup() {
	c.stopOnce.Do(func() {
		log.Println("🧹 Cleaning up Service Container...")

		if c.UpkeepScheduler != nil {
			c.UpkeepScheduler.Stop()
		}
		if c.MonitoringService != nil {
			c.MonitoringService.Stop()
		}
		if c.VRFCoordinator != nil {
			c.VRFCoordinator.Stop()
		}
		if c.cancel != nil {
			c.cancel()
		}
		c.wg.Wait()
		c.Bus.Close()

		if c.NATSClient != nil {
			c.NATSClient.Close()
		}
		db.Close(c.DB)

		log.Println("✅ Service Container cleaned up")
	})
}
