package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ddm94/SlimyKitchenOnline/internal/app"
	"github.com/ddm94/SlimyKitchenOnline/internal/config"
	"github.com/ddm94/SlimyKitchenOnline/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, cfg, app.Options{Logger: telemetry.WrapLogger(log.Default())}); err != nil {
		log.Fatalf("%v", err)
	}
}
