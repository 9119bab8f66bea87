package cmd

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/encodeous/fibbing/core"
	"github.com/encodeous/fibbing/state"
	"github.com/spf13/cobra"
)

var solveCmd = &cobra.Command{
	Use:   "solve",
	Short: "Computes the fake topology offline and prints the resulting forwarding paths",
	Run: func(cmd *cobra.Command, args []string) {
		centralCfg, err := core.ReadCentralConfig(centralConfigPath)
		if err != nil {
			panic(err)
		}
		err = state.CentralConfigValidator(centralCfg)
		if err != nil {
			panic(err)
		}
		topo, err := centralCfg.BuildTopology()
		if err != nil {
			panic(err)
		}
		reqs := centralCfg.PathRequirements()
		sol, err := core.OSPFSimple{}.Solve(topo, reqs, state.NewFakeArena())
		if err != nil {
			panic(err)
		}
		fmt.Print(core.DescribeSolution(topo, reqs, sol))

		fmt.Println("\n\nRecords:")
		for _, lsa := range core.NewAdvertiser().Update(sol.Advertisements(), time.Now()) {
			fmt.Printf(" - %s\n", lsa)
		}

		traces, _ := cmd.Flags().GetStringSlice("trace")
		if len(traces) > 0 {
			fmt.Println("\n\nTraces:")
		}
		for _, t := range traces {
			router, addr, ok := strings.Cut(t, "=")
			if !ok {
				panic(fmt.Sprintf("invalid trace %q, expected <router>=<address>", t))
			}
			path, err := core.Trace(topo, sol.Fakes, state.RouterId(router), netip.MustParseAddr(addr))
			if err != nil {
				fmt.Printf(" - %s: %s\n", t, err)
				continue
			}
			hops := make([]string, 0, len(path))
			for _, h := range path {
				hops = append(hops, string(h))
			}
			fmt.Printf(" - %s: %s\n", t, strings.Join(hops, " -> "))
		}
	},
	GroupID: "fib",
}

func init() {
	rootCmd.AddCommand(solveCmd)
	solveCmd.Flags().StringSliceP("trace", "t", nil, "Trace the forwarding path from a router to an address, e.g. r1=10.0.1.1")
}
