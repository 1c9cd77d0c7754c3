// The dialer daemon resumes active campaigns whose runs were interrupted,
// for example by a deploy or a crash of the process that drove them.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/emirpiksel/dialara/internal/app"
	"github.com/emirpiksel/dialara/internal/telemetry"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	configPath := flag.String("config", getEnv("CONFIG_FILE", "configs/config.yaml"), "path to configuration file")
	flag.Parse()

	container, err := app.Build(ctx, *configPath)
	if err != nil {
		log.Fatalf("failed to bootstrap application: %v", err)
	}
	defer container.Close(context.Background())

	shutdown, err := telemetry.Setup(ctx, container.Config.Telemetry, container.Config.App.Name+"-dialer")
	if err != nil {
		log.Fatalf("failed to initialize telemetry: %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	if err := container.EnsureTopics(ctx); err != nil {
		log.Fatalf("failed to ensure kafka topics: %v", err)
	}

	svc := container.Services().Campaign
	batch := container.Config.Dialer.CampaignBatch

	if err := svc.Reconcile(ctx, batch); err != nil {
		log.Printf("reconcile failed: %v", err)
	}

	ticker := time.NewTicker(container.Config.Dialer.ReconcileInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Println("dialer shutting down")
			return
		case <-ticker.C:
			if err := svc.Reconcile(ctx, batch); err != nil {
				log.Printf("reconcile failed: %v", err)
			}
		}
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
