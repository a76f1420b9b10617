package commands

import (
	"github.com/agoranet/agora/src/config"
)

//CLIConfig contains configuration for the Run command
type CLIConfig struct {
	Agora config.Config `mapstructure:",squash"`
	Seeds []string      `mapstructure:"seeds"`
}

//NewDefaultCLIConfig creates a CLIConfig with default values
func NewDefaultCLIConfig() *CLIConfig {
	return &CLIConfig{
		Agora: *config.NewDefaultConfig(),
		Seeds: []string{},
	}
}
