package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tigerroll/batchstate/internal/cli"
	"github.com/tigerroll/batchstate/pkg/batch/support/util/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.BuildCLI().ExecuteContext(ctx); err != nil {
		logger.Errorf("%v", err)
		stop()
		os.Exit(1)
	}
}
