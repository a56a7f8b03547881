package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, DefaultEntranceFee, cfg.Raffle.EntranceFee)
	assert.Equal(t, DefaultIntervalSeconds, cfg.Raffle.Interval)
	assert.Equal(t, uint32(DefaultCallbackGasLimit), cfg.Raffle.CallbackGasLimit)
	assert.Equal(t, uint16(3), cfg.Raffle.RequestConfirmations)
	assert.Equal(t, OracleModeMock, cfg.Oracle.Mode)
	assert.True(t, cfg.Upkeep.IsEnabled())
	assert.Equal(t, time.Second, cfg.Upkeep.PollInterval())
	assert.True(t, cfg.Raffle.SignatureRequired())
	assert.Equal(t, DefaultVRFRequests, cfg.NATS.VRFRequests)
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	path := writeConfig(t, `
server:
  host: 127.0.0.1
  port: 9000
raffle:
  entranceFee: "0.5"
  interval: 60
  requireSignature: false
upkeep:
  enabled: false
admin:
  allowedIPs: ["10.0.0.0/8"]
`)
	t.Setenv("SERVER_PORT", "9100")
	t.Setenv("RAFFLE_INTERVAL", "120")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.test, http://b.test,")
	t.Setenv("UPKEEP_POLL_INTERVAL", "250")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "0.5", cfg.Raffle.EntranceFee)
	assert.Equal(t, 120, cfg.Raffle.Interval)
	assert.False(t, cfg.Raffle.SignatureRequired())
	assert.False(t, cfg.Upkeep.IsEnabled())
	assert.Equal(t, 250*time.Millisecond, cfg.Upkeep.PollInterval())
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, []string{"10.0.0.0/8"}, cfg.Admin.AllowedIPs)
}

func TestLoadConfig_SetsAppConfig(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 7000\n")
	require.NoError(t, LoadConfig(path))
	require.NotNil(t, AppConfig)
	assert.Equal(t, 7000, AppConfig.Server.Port)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"zero fee", "raffle:\n  entranceFee: \"0\"\n"},
		{"bad fee", "raffle:\n  entranceFee: lots\n"},
		{"negative interval", "raffle:\n  interval: -5\n"},
		{"bad gas lane", "raffle:\n  gasLane: \"0x1234\"\n"},
		{"bad address", "raffle:\n  address: \"0xnope\"\n"},
		{"unknown oracle mode", "oracle:\n  mode: chainlink\n"},
		{"nats mode without url", "oracle:\n  mode: nats\nraffle:\n  subscriptionId: 1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestRaffleConfig_ToRaffle(t *testing.T) {
	cfg, err := Load(writeConfig(t, "raffle:\n  subscriptionId: 7\n"))
	require.NoError(t, err)

	fallback := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	coordinator := common.HexToAddress("0x00000000000000000000000000000000000000cc")
	rc, err := cfg.Raffle.ToRaffle(fallback, coordinator)
	require.NoError(t, err)

	assert.Equal(t, "10000000000000000", rc.EntranceFee.String())
	assert.Equal(t, 30*time.Second, rc.Interval)
	assert.Equal(t, uint64(7), rc.SubscriptionID)
	assert.Equal(t, fallback, rc.Address)
	assert.Equal(t, coordinator, rc.Coordinator)
	assert.Equal(t, common.HexToHash(DefaultGasLane), rc.GasLane)
	assert.NoError(t, rc.Validate())
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "raffle.env")
	require.NoError(t, os.WriteFile(envFile, []byte("RAFFLE_ENTRANCE_FEE=0.2\nSERVER_PORT=1111\n"), 0o600))

	if _, set := os.LookupEnv("RAFFLE_ENTRANCE_FEE"); set {
		t.Skip("RAFFLE_ENTRANCE_FEE set by the environment")
	}
	t.Cleanup(func() { os.Unsetenv("RAFFLE_ENTRANCE_FEE") })
	t.Setenv("ENV_FILE", envFile)
	t.Setenv("SERVER_PORT", "2222")

	cfg, err := Load(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "0.2", cfg.Raffle.EntranceFee)
	// already exported variables win over the file
	assert.Equal(t, 2222, cfg.Server.Port)
}
