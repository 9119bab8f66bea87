package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/encodeous/fibbing/core"
	"github.com/encodeous/fibbing/mock"
	"github.com/spf13/cobra"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Runs the controller against in-memory routers and prints what they learnt",
	Run: func(cmd *cobra.Command, args []string) {
		centralCfg, nodeCfg, err := core.LoadConfig(centralConfigPath, nodeConfigPath)
		if err != nil {
			panic(err)
		}
		duration, _ := cmd.Flags().GetDuration("duration")
		level := slog.LevelInfo
		if ok, _ := cmd.Flags().GetBool("verbose"); ok {
			level = slog.LevelDebug
		}
		logger, err := core.NewLogger(*nodeCfg, level, os.Stderr)
		if err != nil {
			panic(err)
		}

		network := mock.NewNetwork(centralCfg.Routers...)
		f, err := core.NewFibber(*centralCfg, *nodeCfg, network, logger)
		if err != nil {
			panic(err)
		}
		err = f.Start()
		if err != nil {
			panic(err)
		}
		go func() {
			time.Sleep(duration)
			fmt.Print(f.Describe())
			fmt.Println("\n\nRouter Databases:")
			for _, inj := range nodeCfg.InjectionPoints(centralCfg.Routers) {
				fmt.Printf(" - %s\n", inj.Router)
				for _, lsa := range network.Router(inj.Router).Live() {
					fmt.Printf("   %s\n", lsa)
				}
			}
			f.Stop()
		}()
		err = f.Run()
		if err != nil {
			panic(err)
		}
		fmt.Println("\n\nAfter Shutdown:")
		for _, inj := range nodeCfg.InjectionPoints(centralCfg.Routers) {
			r := network.Router(inj.Router)
			fmt.Printf(" - %s: %d live records, %d received\n", inj.Router, len(r.Live()), r.Received())
		}
	},
	GroupID: "fib",
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().BoolP("verbose", "v", false, "Verbose output")
	simulateCmd.Flags().DurationP("duration", "d", time.Second, "How long to run before shutting down")
}
