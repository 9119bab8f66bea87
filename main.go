package main

import "github.com/encodeous/fibbing/cmd"

func main() {
	cmd.Execute()
}
