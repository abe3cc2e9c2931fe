package main

import (
	"os"

	"multipost/infrastructure/logger"
	"multipost/interfaces/cli"
)

func recoverPanic() {
	if err := recover(); err != nil {
		logger.GetLogger().WithField("error", err).Error("Application panic recovered")
		os.Exit(cli.ExitNoSuccess)
	}
}

func main() {
	defer recoverPanic()
	os.Exit(cli.Execute())
}
