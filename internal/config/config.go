package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"raffle-backend/internal/raffle"
	"raffle-backend/internal/utils"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	OracleModeMock = "mock"
	OracleModeNATS = "nats"

	DefaultEntranceFee      = "0.01"
	DefaultIntervalSeconds  = 30
	DefaultCallbackGasLimit = 500000
	DefaultPollIntervalMs   = 1000
	DefaultSubscriptionFund = "30"
	DefaultBaseFee          = "0.25"
	DefaultNetwork          = "localhost"
	DefaultVRFRequests      = "raffle.vrf.requests"
	DefaultVRFFulfillments  = "raffle.vrf.fulfillments"

	// gas lane used by the local coordinator mock
	DefaultGasLane = "0xd89b2bf150e3b9e13446986e571fb9cab24b13cea0a43ea20a6049a85cc807cc"
)

// Config application configuration structure
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	Raffle   RaffleConfig   `yaml:"raffle"`
	Oracle   OracleConfig   `yaml:"oracle"`
	Upkeep   UpkeepConfig   `yaml:"upkeep"`
	CORS     CORSConfig     `yaml:"cors"`
	Admin    AdminConfig    `yaml:"admin"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig history database; empty DSN disables persistence
type DatabaseConfig struct {
	DSN    string `yaml:"dsn"`
	Driver string `yaml:"driver"`
}

// NATSConfig NATS message server configuration; empty URL disables NATS
type NATSConfig struct {
	URL             string `yaml:"url"`
	Timeout         int    `yaml:"timeout"`        // seconds
	ReconnectWait   int    `yaml:"reconnect_wait"` // seconds
	MaxReconnects   int    `yaml:"max_reconnects"`
	EnableJetStream bool   `yaml:"enable_jetstream"`
	Network         string `yaml:"network"` // event subject segment: raffle.<network>.Raffle.<Event>
	VRFRequests     string `yaml:"vrf_requests"`
	VRFFulfillments string `yaml:"vrf_fulfillments"`
}

// RaffleConfig raffle construction parameters
type RaffleConfig struct {
	EntranceFee          string `yaml:"entranceFee"` // ether, decimal
	Interval             int    `yaml:"interval"`    // seconds
	GasLane              string `yaml:"gasLane"`
	SubscriptionID       uint64 `yaml:"subscriptionId"` // 0 lets the mock coordinator create one
	CallbackGasLimit     uint32 `yaml:"callbackGasLimit"`
	RequestConfirmations uint16 `yaml:"requestConfirmations"`
	Address              string `yaml:"address"`
	RequireSignature     *bool  `yaml:"requireSignature"`
}

// OracleConfig randomness oracle configuration
type OracleConfig struct {
	Mode               string `yaml:"mode"` // mock | nats
	Coordinator        string `yaml:"coordinator"`
	AutoFulfillDelayMs int    `yaml:"autoFulfillDelayMs"` // mock only, 0 disables
	SubscriptionFund   string `yaml:"subscriptionFund"`   // LINK, mock bootstrap
	BaseFee            string `yaml:"baseFee"`            // LINK per fulfilment, mock only
}

// UpkeepConfig upkeep scheduler configuration
type UpkeepConfig struct {
	Enabled        *bool `yaml:"enabled"`
	PollIntervalMs int   `yaml:"pollIntervalMs"`
}

// CORSConfig CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowedOrigins"`   // List of allowed origins
	AllowCredentials bool     `yaml:"allowCredentials"` // Whether to allow credentials
	MaxAge           int      `yaml:"maxAge"`           // Max age for preflight requests (seconds)
}

// AdminConfig Admin API access control configuration
type AdminConfig struct {
	AllowedIPs []string `yaml:"allowedIPs"` // List of allowed IP addresses or CIDR ranges
}

var AppConfig *Config

// LoadConfig Load configuration file
func LoadConfig(configPath string) error {
	config, err := Load(configPath)
	if err != nil {
		return err
	}
	AppConfig = config
	return nil
}

// Load reads, overrides and validates a configuration without touching AppConfig
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
		if _, err := os.Stat("config.local.yaml"); err == nil {
			configPath = "config.local.yaml"
			log.Printf("🔧 Using local configuration file: config.local.yaml")
		}
	}

	var config Config
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		fmt.Printf("✅ [%s] Loading configuration from config file: %s\n", time.Now().Format("2006-01-02 15:04:05"), configPath)
	case os.IsNotExist(err):
		fmt.Printf("⚠️ [Config] %s not found, using defaults and environment\n", configPath)
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := loadDotEnv(); err != nil {
		return nil, err
	}
	overrideFromEnv(&config)
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	fmt.Printf("📋 [Config] Raffle: fee=%s ETH, interval=%ds, gasLane=%s, subscriptionId=%d, callbackGasLimit=%d\n",
		config.Raffle.EntranceFee, config.Raffle.Interval, config.Raffle.GasLane,
		config.Raffle.SubscriptionID, config.Raffle.CallbackGasLimit)
	fmt.Printf("📋 [Config] Oracle mode: %s, upkeep enabled: %v\n", config.Oracle.Mode, config.Upkeep.IsEnabled())

	if len(config.Admin.AllowedIPs) > 0 {
		fmt.Printf("📋 [Config] Admin IP whitelist loaded: %d IPs/CIDRs configured\n", len(config.Admin.AllowedIPs))
		for i, ip := range config.Admin.AllowedIPs {
			fmt.Printf("   [%d] %s\n", i+1, ip)
		}
	} else {
		fmt.Printf("📋 [Config] Admin IP whitelist: not configured (localhost-only mode)\n")
	}

	if len(config.CORS.AllowedOrigins) > 0 {
		fmt.Printf("📋 [Config] CORS allowed origins loaded: %d origins configured\n", len(config.CORS.AllowedOrigins))
	} else {
		fmt.Printf("📋 [Config] CORS: not configured (will allow all origins *)\n")
	}

	return &config, nil
}

// loadDotEnv exports ENV_FILE (default .env) into the process environment.
// Variables already set win; a missing file is not an error.
func loadDotEnv() error {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(envFile); err != nil {
		return fmt.Errorf("failed to load %s: %w", envFile, err)
	}
	fmt.Printf("🔧 [Config] Environment loaded from %s\n", envFile)
	return nil
}

// overrideFromEnv Override configuration from environment
func overrideFromEnv(config *Config) {
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		config.Database.DSN = dsn
	}

	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		config.NATS.URL = natsURL
	}
	if natsTimeout := os.Getenv("NATS_TIMEOUT"); natsTimeout != "" {
		if t, err := strconv.Atoi(natsTimeout); err == nil {
			config.NATS.Timeout = t
		}
	}

	if fee := os.Getenv("RAFFLE_ENTRANCE_FEE"); fee != "" {
		config.Raffle.EntranceFee = fee
	}
	if interval := os.Getenv("RAFFLE_INTERVAL"); interval != "" {
		if i, err := strconv.Atoi(interval); err == nil {
			config.Raffle.Interval = i
		}
	}
	if gasLane := os.Getenv("RAFFLE_GAS_LANE"); gasLane != "" {
		config.Raffle.GasLane = gasLane
	}
	if subID := os.Getenv("RAFFLE_SUBSCRIPTION_ID"); subID != "" {
		if id, err := strconv.ParseUint(subID, 10, 64); err == nil {
			config.Raffle.SubscriptionID = id
		}
	}
	if gasLimit := os.Getenv("RAFFLE_CALLBACK_GAS_LIMIT"); gasLimit != "" {
		if limit, err := strconv.ParseUint(gasLimit, 10, 32); err == nil {
			config.Raffle.CallbackGasLimit = uint32(limit)
		}
	}
	if addr := os.Getenv("RAFFLE_ADDRESS"); addr != "" {
		config.Raffle.Address = addr
	}

	if coordinator := os.Getenv("VRF_COORDINATOR"); coordinator != "" {
		config.Oracle.Coordinator = coordinator
	}
	if mode := os.Getenv("ORACLE_MODE"); mode != "" {
		config.Oracle.Mode = strings.ToLower(mode)
	}

	if enabled := os.Getenv("UPKEEP_ENABLED"); enabled != "" {
		v := enabled == "true"
		config.Upkeep.Enabled = &v
	}
	if poll := os.Getenv("UPKEEP_POLL_INTERVAL"); poll != "" {
		if ms, err := strconv.Atoi(poll); err == nil {
			config.Upkeep.PollIntervalMs = ms
		}
	}

	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		config.CORS.AllowedOrigins = splitList(corsOrigins)
	}
	if adminIPs := os.Getenv("ADMIN_ALLOWED_IPS"); adminIPs != "" {
		config.Admin.AllowedIPs = splitList(adminIPs)
	}
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.NATS.Timeout == 0 {
		c.NATS.Timeout = 10
	}
	if c.NATS.ReconnectWait == 0 {
		c.NATS.ReconnectWait = 2
	}
	if c.NATS.MaxReconnects == 0 {
		c.NATS.MaxReconnects = 10
	}
	if c.NATS.Network == "" {
		c.NATS.Network = DefaultNetwork
	}
	if c.NATS.VRFRequests == "" {
		c.NATS.VRFRequests = DefaultVRFRequests
	}
	if c.NATS.VRFFulfillments == "" {
		c.NATS.VRFFulfillments = DefaultVRFFulfillments
	}

	if c.Raffle.EntranceFee == "" {
		c.Raffle.EntranceFee = DefaultEntranceFee
	}
	if c.Raffle.Interval == 0 {
		c.Raffle.Interval = DefaultIntervalSeconds
	}
	if c.Raffle.GasLane == "" {
		c.Raffle.GasLane = DefaultGasLane
	}
	if c.Raffle.CallbackGasLimit == 0 {
		c.Raffle.CallbackGasLimit = DefaultCallbackGasLimit
	}
	if c.Raffle.RequestConfirmations == 0 {
		c.Raffle.RequestConfirmations = raffle.DefaultRequestConfirmations
	}
	if c.Raffle.RequireSignature == nil {
		v := true
		c.Raffle.RequireSignature = &v
	}

	if c.Oracle.Mode == "" {
		c.Oracle.Mode = OracleModeMock
	}
	if c.Oracle.SubscriptionFund == "" {
		c.Oracle.SubscriptionFund = DefaultSubscriptionFund
	}
	if c.Oracle.BaseFee == "" {
		c.Oracle.BaseFee = DefaultBaseFee
	}

	if c.Upkeep.Enabled == nil {
		v := true
		c.Upkeep.Enabled = &v
	}
	if c.Upkeep.PollIntervalMs == 0 {
		c.Upkeep.PollIntervalMs = DefaultPollIntervalMs
	}
}

// Validate rejects configurations the raffle cannot start with
func (c *Config) Validate() error {
	fee, err := utils.EtherToWei(c.Raffle.EntranceFee)
	if err != nil {
		return fmt.Errorf("raffle.entranceFee: %w", err)
	}
	if fee.Sign() <= 0 {
		return fmt.Errorf("raffle.entranceFee must be positive, got %s", c.Raffle.EntranceFee)
	}
	if c.Raffle.Interval <= 0 {
		return fmt.Errorf("raffle.interval must be positive, got %d", c.Raffle.Interval)
	}
	if !utils.IsHash32(c.Raffle.GasLane) {
		return fmt.Errorf("raffle.gasLane must be a 32-byte hex value, got %q", c.Raffle.GasLane)
	}
	if c.Raffle.Address != "" && !utils.IsEvmAddress(c.Raffle.Address) {
		return fmt.Errorf("raffle.address is not a valid address: %q", c.Raffle.Address)
	}
	if c.Oracle.Coordinator != "" && !utils.IsEvmAddress(c.Oracle.Coordinator) {
		return fmt.Errorf("oracle.coordinator is not a valid address: %q", c.Oracle.Coordinator)
	}
	switch c.Oracle.Mode {
	case OracleModeMock:
	case OracleModeNATS:
		if c.NATS.URL == "" {
			return fmt.Errorf("oracle.mode %q requires nats.url", c.Oracle.Mode)
		}
		if c.Raffle.SubscriptionID == 0 {
			return fmt.Errorf("oracle.mode %q requires raffle.subscriptionId", c.Oracle.Mode)
		}
	default:
		return fmt.Errorf("unknown oracle.mode %q", c.Oracle.Mode)
	}
	if c.Upkeep.PollIntervalMs < 0 {
		return fmt.Errorf("upkeep.pollIntervalMs must not be negative")
	}
	if c.Oracle.AutoFulfillDelayMs < 0 {
		return fmt.Errorf("oracle.autoFulfillDelayMs must not be negative")
	}
	return nil
}

// SignatureRequired whether entries must carry a participant signature
func (r RaffleConfig) SignatureRequired() bool {
	return r.RequireSignature == nil || *r.RequireSignature
}

// IsEnabled whether the upkeep scheduler runs
func (u UpkeepConfig) IsEnabled() bool {
	return u.Enabled == nil || *u.Enabled
}

// PollInterval scheduler tick
func (u UpkeepConfig) PollInterval() time.Duration {
	if u.PollIntervalMs <= 0 {
		return DefaultPollIntervalMs * time.Millisecond
	}
	return time.Duration(u.PollIntervalMs) * time.Millisecond
}

// AutoFulfillDelay delay before the mock coordinator fulfils on its own
func (o OracleConfig) AutoFulfillDelay() time.Duration {
	return time.Duration(o.AutoFulfillDelayMs) * time.Millisecond
}

// ToRaffle converts to state machine parameters. address is used when
// raffle.address is unset, coordinator when oracle.coordinator is unset.
func (r RaffleConfig) ToRaffle(address, coordinator common.Address) (raffle.Config, error) {
	fee, err := utils.EtherToWei(r.EntranceFee)
	if err != nil {
		return raffle.Config{}, fmt.Errorf("raffle.entranceFee: %w", err)
	}
	if r.Address != "" {
		address = common.HexToAddress(r.Address)
	}
	return raffle.Config{
		EntranceFee:          fee,
		GasLane:              common.HexToHash(r.GasLane),
		SubscriptionID:       r.SubscriptionID,
		CallbackGasLimit:     r.CallbackGasLimit,
		RequestConfirmations: r.RequestConfirmations,
		Interval:             time.Duration(r.Interval) * time.Second,
		Address:              address,
		Coordinator:          coordinator,
	}, nil
}
