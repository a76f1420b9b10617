package commands

//CLIConfig contains configuration for the submitter daemon
type CLIConfig struct {
	Listen   string `mapstructure:"listen"`
	LogLevel string `mapstructure:"log"`
}

//NewDefaultCLIConfig creates a CLIConfig with default values
func NewDefaultCLIConfig() *CLIConfig {
	return &CLIConfig{
		Listen:   "127.0.0.1:1340",
		LogLevel: "debug",
	}
}
