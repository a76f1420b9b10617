package node

import (
	"testing"
	"time"

	"github.com/agoranet/agora/src/common"
	"github.com/sirupsen/logrus"
)

// Config holds the node's runtime parameters. The periodic task intervals
// follow the Fibonacci cadence of the protocol: heartbeat 8s, sync check
// 13s, validator refresh 21s, metrics 34s.
type Config struct {
	HeartbeatInterval        time.Duration `mapstructure:"heartbeat"`
	SyncCheckInterval        time.Duration `mapstructure:"sync-check"`
	ValidatorRefreshInterval time.Duration `mapstructure:"validator-refresh"`
	MetricsInterval          time.Duration `mapstructure:"metrics"`
	MinPeers                 int           `mapstructure:"min-peers"`
	EScore                   float64       `mapstructure:"e-score"`
	Cluster                  string        `mapstructure:"cluster"`
	Logger                   *logrus.Logger
}

func NewConfig(
	heartbeat time.Duration,
	syncCheck time.Duration,
	validatorRefresh time.Duration,
	metrics time.Duration,
	minPeers int,
	eScore float64,
	cluster string,
	logger *logrus.Logger) *Config {

	return &Config{
		HeartbeatInterval:        heartbeat,
		SyncCheckInterval:        syncCheck,
		ValidatorRefreshInterval: validatorRefresh,
		MetricsInterval:          metrics,
		MinPeers:                 minPeers,
		EScore:                   eScore,
		Cluster:                  cluster,
		Logger:                   logger,
	}
}

func DefaultConfig() *Config {
	logger := logrus.New()
	logger.Level = logrus.DebugLevel

	return &Config{
		HeartbeatInterval:        8 * time.Second,
		SyncCheckInterval:        13 * time.Second,
		ValidatorRefreshInterval: 21 * time.Second,
		MetricsInterval:          34 * time.Second,
		MinPeers:                 3,
		EScore:                   75,
		Cluster:                  "devnet",
		Logger:                   logger,
	}
}

// TestConfig shrinks the task intervals so integration tests can observe
// heartbeats without waiting out the production cadence.
func TestConfig(t *testing.T) *Config {
	config := DefaultConfig()
	config.HeartbeatInterval = 50 * time.Millisecond
	config.SyncCheckInterval = 75 * time.Millisecond
	config.ValidatorRefreshInterval = 100 * time.Millisecond
	config.MetricsInterval = 150 * time.Millisecond
	config.MinPeers = 1
	config.Logger = common.NewTestLogger(t)
	return config
}
