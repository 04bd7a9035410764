package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/meshstream/meshstream/frame"
)

var version = "dev"

func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number and wire format version",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Just override the root one for this command and do nothing
		// (no config loading)
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("%s (wire format %d, %s)\n", version, frame.Version, runtime.Version())
	},
}
