package cmd

import (
	"fmt"
	"os"

	"github.com/encodeous/fibbing/mock"
	"github.com/encodeous/fibbing/state"
	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init [id]",
	Short: "Writes sample configuration files describing a four router network",
	Run: func(cmd *cobra.Command, args []string) {
		centralCfg, nodeCfg := mock.MockCfg()
		if len(args) == 1 {
			err := state.NameValidator(args[0])
			if err != nil {
				fmt.Printf("Invalid name: %s\n", args[0])
				os.Exit(-1)
			}
			nodeCfg.Id = args[0]
		}

		ccfg, err := yaml.Marshal(&centralCfg)
		if err != nil {
			panic(err)
		}
		ncfg, err := yaml.Marshal(&nodeCfg)
		if err != nil {
			panic(err)
		}
		for path, data := range map[string][]byte{centralConfigPath: ccfg, nodeConfigPath: ncfg} {
			if _, err := os.Stat(path); err == nil {
				fmt.Printf("%s already exists, not overwriting\n", path)
				continue
			}
			err = os.WriteFile(path, data, 0600)
			if err != nil {
				panic(err)
			}
			fmt.Printf("Wrote %s\n", path)
		}
	},
	GroupID: "init",
}

func init() {
	rootCmd.AddCommand(initCmd)
}
