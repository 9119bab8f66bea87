package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	centralConfigPath = "central.yaml"
	nodeConfigPath    = "node.yaml"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "fibbing",
	Short: "Fibbing Controller CLI",
	Long: `Fibbing steers the shortest paths computed by unmodified link-state routers.
The controller injects fake nodes into the routing protocol, so that traffic towards a subnet follows an explicit path.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddGroup(&cobra.Group{
		ID:    "init",
		Title: "Initialize Fibbing",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "fib",
		Title: "Fibbing Commands",
	})
	rootCmd.PersistentFlags().StringVarP(&nodeConfigPath, "node-config", "n", nodeConfigPath, "controller config")
	rootCmd.PersistentFlags().StringVarP(&centralConfigPath, "central-config", "c", centralConfigPath, "network topology and requirements")
}
