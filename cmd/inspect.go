package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/encodeous/fibbing/core"
)

var inspectCmd = &cobra.Command{
	Use:     "inspect <socket> [trace <router> <address>]",
	Aliases: []string{"i"},
	Short:   "Inspects the current state of a running controller",
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) != 1 && len(args) != 4 {
			fmt.Println("Usage: fibbing inspect <socket> [trace <router> <address>]")
			return
		}
		command := "inspect"
		if len(args) == 4 {
			command = strings.Join(args[1:], " ")
		}
		result, err := core.IPCGet(args[0], command)
		if err != nil {
			fmt.Println("Error:", err.Error())
			return
		}
		fmt.Print(result)
	},
	GroupID: "fib",
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
