package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/agoranet/agora/src/anchor"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	config = NewDefaultCLIConfig()
	logger *logrus.Logger
)

func init() {
	RootCmd.Flags().String("listen", config.Listen, "Listen IP:Port of the submitter daemon")
	RootCmd.Flags().String("log", config.LogLevel, "debug, info, warn, error, fatal, panic")
}

//RootCmd is the root command for the submitter daemon
var RootCmd = &cobra.Command{
	Use:     "submitter",
	Short:   "Anchor submitter daemon for Agora",
	PreRunE: loadConfig,
	RunE:    runSubmitter,
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runSubmitter(cmd *cobra.Command, args []string) error {

	//Create and run the submitter daemon over an in-mem ledger
	daemon, err := anchor.NewSubmitter(config.Listen,
		anchor.NewInmemLedger(),
		logger.WithField("component", "SUBMITTER"))
	if err != nil {
		return err
	}

	logger.WithField("listen", config.Listen).Info("Submitter started")

	//Block until an interrupt or termination signal arrives
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	<-signalCh

	return daemon.Shutdown()
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

func loadConfig(cmd *cobra.Command, args []string) error {

	err := viper.BindPFlags(cmd.Flags())
	if err != nil {
		return err
	}

	config, err = parseConfig()
	if err != nil {
		return err
	}

	logger = newLogger()
	logger.Level = logLevel(config.LogLevel)

	logger.WithFields(logrus.Fields{
		"listen": config.Listen,
		"log":    config.LogLevel,
	}).Debug("RUN")

	return nil
}

//Retrieve the default environment configuration.
func parseConfig() (*CLIConfig, error) {
	conf := NewDefaultCLIConfig()
	err := viper.Unmarshal(conf)
	if err != nil {
		return nil, err
	}
	return conf, err
}

func newLogger() *logrus.Logger {
	logger := logrus.New()

	pathMap := lfshook.PathMap{}

	logFiles := map[logrus.Level]string{
		logrus.InfoLevel:  "submitter_info.log",
		logrus.DebugLevel: "submitter_debug.log",
	}

	for level, file := range logFiles {
		if _, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY, 0666); err != nil {
			logger.Infof("Failed to open %s file, using default stderr", file)
			continue
		}
		pathMap[level] = file
	}

	logger.Hooks.Add(lfshook.NewHook(
		pathMap,
		&logrus.TextFormatter{},
	))

	return logger
}

func logLevel(l string) logrus.Level {
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
