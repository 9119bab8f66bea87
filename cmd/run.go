package cmd

import (
	"github.com/encodeous/fibbing/core"
	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the fibbing controller",
	Long:  `This will keep adjacencies with the configured injection points, and advertise the fake topology enforcing every requirement until interrupted.`,
	Run: func(cmd *cobra.Command, args []string) {
		verbose, _ := cmd.Flags().GetBool("verbose")
		logPath, _ := cmd.Flags().GetString("log")
		debugAddr, _ := cmd.Flags().GetString("debug")
		core.Bootstrap(centralConfigPath, nodeConfigPath, logPath, debugAddr, verbose)
	},
	GroupID: "fib",
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolP("verbose", "v", false, "Verbose output")
	runCmd.Flags().StringP("log", "l", "", "Also write logs to this file")
	runCmd.Flags().String("debug", "", "Serve expvar and metrics on this address, e.g. 127.0.0.1:6060")
}
