package cmd

import (
	"fmt"

	"github.com/encodeous/fibbing/core"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Validates the configuration files",
	Run: func(cmd *cobra.Command, args []string) {
		centralCfg, nodeCfg, err := core.LoadConfig(centralConfigPath, nodeConfigPath)
		if err != nil {
			panic(err)
		}
		topo, err := centralCfg.BuildTopology()
		if err != nil {
			panic(err)
		}
		fmt.Println("Configuration is valid")
		fmt.Printf("%d routers, %d links, %d subnets, %d requirements\n",
			len(topo.Routers()), len(topo.Links()), len(topo.Subnets()), len(centralCfg.Requirements))
		for _, inj := range nodeCfg.InjectionPoints(topo.Routers()) {
			fmt.Printf(" - injecting at %s (cost: %d, endpoint: %s)\n", inj.Router, inj.Cost, inj.Endpoint)
		}
		fmt.Printf("diameter bound: %d\n", topo.DiameterBound())
	},
	GroupID: "fib",
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
