package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/cradle5/cradlesync/internal/buildinfo"
	"github.com/cradle5/cradlesync/internal/client/cli"
	"github.com/cradle5/cradlesync/internal/client/config"
	"github.com/cradle5/cradlesync/internal/logging"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig()
	logger := logging.New(os.Stderr, cfg.LogFormat, cfg.LogLevel)

	app, err := cli.NewApp(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("%v", err)
		return
	}

	app.Run(ctx)

}
