package main

import "github.com/LENAX/conduit/pkg/cli/cmd"

func main() {
	cmd.Execute()
}
