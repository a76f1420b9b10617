package commands

import (
	"github.com/agoranet/agora/src/agora"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

//NewRunCmd returns the command that starts an Agora node
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run node",
		PreRunE: loadConfig,
		RunE:    runAgora,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runAgora(cmd *cobra.Command, args []string) error {
	engine := agora.NewAgora(&_config.Agora)

	engine.Seeds = _config.Seeds

	if err := engine.Init(); err != nil {
		_config.Agora.Logger().Error("Cannot initialize engine:", err)
		return err
	}

	return engine.Run()
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {

	cmd.Flags().String("datadir", _config.Agora.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.Agora.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("moniker", _config.Agora.Moniker, "Optional name")

	// Network
	cmd.Flags().StringP("listen", "l", _config.Agora.BindAddr, "Listen IP:Port for agora node")
	cmd.Flags().StringP("advertise", "a", _config.Agora.AdvertiseAddr, "Advertise IP:Port for agora node")
	cmd.Flags().DurationP("timeout", "t", _config.Agora.TCPTimeout, "TCP Timeout")
	cmd.Flags().StringSlice("seeds", _config.Seeds, "Seed addresses to dial on startup")

	// Service
	cmd.Flags().StringP("service-listen", "s", _config.Agora.ServiceAddr, "Listen IP:Port for HTTP service")
	cmd.Flags().Bool("no-service", _config.Agora.NoService, "Do not expose the HTTP service")

	// Store
	cmd.Flags().Bool("store", _config.Agora.Store, "Use a persistant DB instead of in-mem DB")
	cmd.Flags().String("db", _config.Agora.DatabaseDir, "Dabatabase directory")
	cmd.Flags().String("db-backend", _config.Agora.DBBackend, "badger or level")

	// Node configuration
	cmd.Flags().Duration("heartbeat", _config.Agora.HeartbeatInterval, "Time between heartbeats")
	cmd.Flags().Duration("sync-check", _config.Agora.SyncCheckInterval, "Time between sync checks")
	cmd.Flags().Duration("validator-refresh", _config.Agora.ValidatorRefreshInterval, "Time between validator refreshes")
	cmd.Flags().Duration("metrics", _config.Agora.MetricsInterval, "Time between metrics reports")
	cmd.Flags().Int("min-peers", _config.Agora.MinPeers, "Min number of connected peers for full participation")
	cmd.Flags().Float64("e-score", _config.Agora.EScore, "Engagement score advertised to other validators")
	cmd.Flags().String("cluster", _config.Agora.Cluster, "Cluster name recorded in anchors")

	// Anchoring
	cmd.Flags().String("submitter", _config.Agora.SubmitterAddr, "IP:Port of the anchor submitter daemon")
	cmd.Flags().Duration("anchor-retry", _config.Agora.AnchorRetryInterval, "Time between anchor retry sweeps")
	cmd.Flags().Int("anchor-retry-batch", _config.Agora.AnchorRetryBatch, "Max anchors retried per sweep")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	// If --datadir was explicitely set, but not --db, this will update the
	// default database dir to be inside the new datadir
	_config.Agora.SetDataDir(_config.Agora.DataDir)

	logFields := logrus.Fields{
		"agora.DataDir":                  _config.Agora.DataDir,
		"agora.BindAddr":                 _config.Agora.BindAddr,
		"agora.AdvertiseAddr":            _config.Agora.AdvertiseAddr,
		"agora.ServiceAddr":              _config.Agora.ServiceAddr,
		"agora.NoService":                _config.Agora.NoService,
		"agora.LogLevel":                 _config.Agora.LogLevel,
		"agora.Moniker":                  _config.Agora.Moniker,
		"agora.HeartbeatInterval":        _config.Agora.HeartbeatInterval,
		"agora.SyncCheckInterval":        _config.Agora.SyncCheckInterval,
		"agora.ValidatorRefreshInterval": _config.Agora.ValidatorRefreshInterval,
		"agora.MetricsInterval":          _config.Agora.MetricsInterval,
		"agora.TCPTimeout":               _config.Agora.TCPTimeout,
		"agora.MinPeers":                 _config.Agora.MinPeers,
		"agora.EScore":                   _config.Agora.EScore,
		"agora.Cluster":                  _config.Agora.Cluster,
		"agora.Store":                    _config.Agora.Store,
		"agora.SubmitterAddr":            _config.Agora.SubmitterAddr,
		"Seeds":                          _config.Seeds,
	}

	if _config.Agora.Store {
		logFields["agora.DatabaseDir"] = _config.Agora.DatabaseDir
		logFields["agora.DBBackend"] = _config.Agora.DBBackend
	}

	_config.Agora.Logger().WithFields(logFields).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/agora.toml (.json, .yaml also work)
	viper.SetConfigName("agora")               // name of config file (without extension)
	viper.AddConfigPath(_config.Agora.DataDir) // search root directory

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.Agora.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Agora.Logger().Debugf("No config file found in: %s", _config.Agora.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}
