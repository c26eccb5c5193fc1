package main

import (
	"os"

	"go.uber.org/zap"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		zap.S().Fatalw("command failed", "error", err)
		os.Exit(1)
	}
}
