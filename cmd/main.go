package main

import (
	"log/slog"
	"os"

	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}
