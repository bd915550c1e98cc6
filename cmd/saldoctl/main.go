package main

import (
	"os"

	"saldo/internal/cli"
	"saldo/internal/commands"
	"saldo/internal/log"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentCLI)

	if err := commands.NewRootCommand(commands.NewApp(logger)).Execute(); err != nil {
		os.Exit(1)
	}
}
