package main

import (
	"github.com/signalnine/expandbench/cmd"
	"github.com/signalnine/expandbench/internal/logging"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		logging.GetLogger().WithError(err).Fatal("Command execution failed")
	}
}
