package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/lussekatt/internal/app"
	"github.com/shrimpsizemoose/lussekatt/internal/notify"
)

const schedulerActor = "scheduler"

func main() {
	var configPath = flag.String("config", "config.toml", "Path to config file")
	flag.Parse()

	service, err := app.NewService(*configPath)
	if err != nil {
		logger.Error.Fatalf("Failed to initialize service: %v", err)
	}
	defer service.Close()

	cfg := service.Config
	if cfg.Sync.Schedule == "" {
		logger.Error.Fatal("No sync schedule in config, nothing to do")
	}
	if len(cfg.Sync.CourseIDs) == 0 {
		logger.Error.Fatal("No course ids in config, nothing to do")
	}

	var notifier *notify.Notifier
	if cfg.Bot.Token != "" {
		notifier, err = notify.New(cfg.Bot.Token, cfg.Bot.ChatID)
		if err != nil {
			logger.Error.Fatalf("Failed to create notifier: %v", err)
		}
	}

	runBatch := func() {
		batchID := time.Now().UTC().Format("20060102-150405")
		logger.Info.Printf("Starting scheduled sync %s for %d courses", batchID, len(cfg.Sync.CourseIDs))

		ctx := context.Background()
		if err := service.Syncer.SyncCourses(ctx, schedulerActor, batchID, cfg.Sync.CourseIDs); err != nil {
			logger.Error.Printf("Scheduled sync %s failed: %v", batchID, err)
		}

		if notifier == nil {
			return
		}
		record, err := service.Progress.GetBatch(ctx, schedulerActor, batchID)
		if err != nil {
			logger.Error.Printf("Failed to read batch record %s: %v", batchID, err)
			return
		}
		if err := notifier.NotifyBatch(batchID, record); err != nil {
			logger.Error.Printf("Failed to notify about batch %s: %v", batchID, err)
		}
	}

	scheduler := gocron.NewScheduler(time.UTC)
	if _, err := scheduler.Cron(cfg.Sync.Schedule).Do(runBatch); err != nil {
		logger.Error.Fatalf("Failed to schedule sync: %v", err)
	}
	scheduler.StartAsync()

	logger.Info.Printf("Sync scheduler running, cron %q", cfg.Sync.Schedule)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	scheduler.Stop()
	logger.Info.Println("Sync scheduler stopped")
}
