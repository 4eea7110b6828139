// Command runvm is the VM Run Engine's CLI entry point: a single long-lived
// process per VM, owning that VM for its entire run.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/orbstack/runvm/conf"
	"github.com/orbstack/runvm/telemetry"
	"github.com/orbstack/runvm/util/errorx"
)

var rootCmd = &cobra.Command{
	Use:          "runvm",
	Short:        "Run a virtual machine using native hardware virtualization",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if conf.Debug() {
			logrus.SetLevel(logrus.DebugLevel)
		}
		telemetry.Init(buildVersion)
	},
}

// buildVersion is overridden via -ldflags at build time.
var buildVersion = "dev"

func init() {
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newStopCmd())
}

func main() {
	defer errorx.RecoverCLI(1)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
