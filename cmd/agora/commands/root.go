package commands

import (
	"github.com/spf13/cobra"
)

var (
	_config = NewDefaultCLIConfig()
)

//RootCmd is the root command for Agora
var RootCmd = &cobra.Command{
	Use:              "agora",
	Short:            "agora validating node",
	TraverseChildren: true,
}
