package config

import (
	"crypto/ecdsa"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/agoranet/agora/src/common"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default filenames.
const (
	// DefaultKeyfile is the default name of the file containing the validator's
	// private key
	DefaultKeyfile = "priv_key"

	// DefaultDBFile is the default name of the folder containing the block and
	// anchor database
	DefaultDBFile = "agora_db"
)

// Database backends.
const (
	// BadgerDB is the Badger database backend.
	BadgerDB = "badger"

	// LevelDB is the LevelDB database backend.
	LevelDB = "level"
)

// Default configuration values.
const (
	DefaultLogLevel                 = "debug"
	DefaultBindAddr                 = "127.0.0.1:1337"
	DefaultServiceAddr              = "127.0.0.1:8000"
	DefaultHeartbeatInterval        = 8 * time.Second
	DefaultSyncCheckInterval        = 13 * time.Second
	DefaultValidatorRefreshInterval = 21 * time.Second
	DefaultMetricsInterval          = 34 * time.Second
	DefaultTCPTimeout               = 1000 * time.Millisecond
	DefaultMinPeers                 = 3
	DefaultEScore                   = 75.0
	DefaultCluster                  = "devnet"
	DefaultStore                    = false
	DefaultDBBackend                = BadgerDB
	DefaultAnchorRetryInterval      = 55 * time.Second
	DefaultAnchorRetryBatch         = 10
)

// Config contains all the configuration properties of an Agora node.
type Config struct {
	// DataDir is the top-level directory containing Agora configuration and
	// data
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// Moniker defines the friendly name of this node
	Moniker string `mapstructure:"moniker"`

	// BindAddr is the local address:port where this node talks to other
	// nodes. In some cases, there may be a routable address that cannot be
	// bound. Use AdvertiseAddr to advertise a different address to support
	// this. If this address is not routable, the node will be in a constant
	// flapping state as other nodes will treat the non-routability as a
	// failure.
	BindAddr string `mapstructure:"listen"`

	// AdvertiseAddr is used to change the address that we advertise to other
	// nodes.
	AdvertiseAddr string `mapstructure:"advertise"`

	// TCPTimeout is the timeout of TCP connections to other nodes.
	TCPTimeout time.Duration `mapstructure:"timeout"`

	// NoService disables the HTTP API service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the optional HTTP service. If not
	// specified, and "no-service" is not set, the API handlers are registered
	// with the DefaultServerMux of the http package. It is possible that
	// another server in the same process is simultaneously using the
	// DefaultServerMux. In which case, the handlers will be accessible from
	// both servers. This is usefull when Agora is used in-memory and expected
	// to use the same endpoint (address:port) as the application's API.
	ServiceAddr string `mapstructure:"service-listen"`

	// HeartbeatInterval is the frequency at which the node sends heartbeats
	// to its connected peers.
	HeartbeatInterval time.Duration `mapstructure:"heartbeat"`

	// SyncCheckInterval is the frequency at which the node verifies that it
	// is not falling behind its peers.
	SyncCheckInterval time.Duration `mapstructure:"sync-check"`

	// ValidatorRefreshInterval is the frequency at which the node
	// re-announces its validator record to its peers.
	ValidatorRefreshInterval time.Duration `mapstructure:"validator-refresh"`

	// MetricsInterval is the frequency at which the node reports its
	// runtime statistics.
	MetricsInterval time.Duration `mapstructure:"metrics"`

	// MinPeers is the number of connected peers below which a participating
	// node falls back to syncing.
	MinPeers int `mapstructure:"min-peers"`

	// EScore is the engagement score this validator claims when joining the
	// network. It weighs the validator's backing in quorum calculations.
	EScore float64 `mapstructure:"e-score"`

	// Cluster is the name of the cluster that anchors are submitted for.
	Cluster string `mapstructure:"cluster"`

	// Store activates persistant storage. Without it, blocks and anchors
	// live in the in-memory tier only.
	Store bool `mapstructure:"store"`

	// DatabaseDir is the directory containing database files.
	DatabaseDir string `mapstructure:"db"`

	// DBBackend selects the database used for persistant storage: "badger"
	// or "level".
	DBBackend string `mapstructure:"db-backend"`

	// SubmitterAddr is the address:port of the JSON-RPC anchor submitter
	// daemon. When empty, anchors are recorded against an in-memory ledger,
	// which is only meaningfull for development.
	SubmitterAddr string `mapstructure:"submitter"`

	// AnchorRetryInterval is the frequency of the sweep that resubmits
	// failed anchors.
	AnchorRetryInterval time.Duration `mapstructure:"anchor-retry"`

	// AnchorRetryBatch is the max number of failed anchors resubmitted per
	// sweep.
	AnchorRetryBatch int `mapstructure:"anchor-retry-batch"`

	// Key is the private key of the validator.
	Key *ecdsa.PrivateKey

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:                  DefaultDataDir(),
		LogLevel:                 DefaultLogLevel,
		BindAddr:                 DefaultBindAddr,
		ServiceAddr:              DefaultServiceAddr,
		TCPTimeout:               DefaultTCPTimeout,
		HeartbeatInterval:        DefaultHeartbeatInterval,
		SyncCheckInterval:        DefaultSyncCheckInterval,
		ValidatorRefreshInterval: DefaultValidatorRefreshInterval,
		MetricsInterval:          DefaultMetricsInterval,
		MinPeers:                 DefaultMinPeers,
		EScore:                   DefaultEScore,
		Cluster:                  DefaultCluster,
		Store:                    DefaultStore,
		DatabaseDir:              DefaultDatabaseDir(),
		DBBackend:                DefaultDBBackend,
		AnchorRetryInterval:      DefaultAnchorRetryInterval,
		AnchorRetryBatch:         DefaultAnchorRetryBatch,
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t)
	return config
}

// SetDataDir sets the top-level Agora directory, and updates the database
// directory if it is currently set to the default value. If the database
// directory is not currently the default, it means the user has explicitely
// set it to something else, so avoid changing it again here.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.DatabaseDir == DefaultDatabaseDir() {
		c.DatabaseDir = filepath.Join(dataDir, DefaultDBFile)
	}
}

// Keyfile returns the full path of the file containing the private key.
func (c *Config) Keyfile() string {
	return filepath.Join(c.DataDir, DefaultKeyfile)
}

// Logger returns a formatted logrus Entry, with prefix set to "agora".
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)
	}
	return c.logger.WithField("prefix", "agora")
}

// DefaultDatabaseDir returns the default path for the database files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultDBFile)
}

// DefaultDataDir return the default directory name for top-level Agora
// config based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Agora")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Agora")
		} else {
			return filepath.Join(home, ".agora")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
