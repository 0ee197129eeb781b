package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/lussekatt/internal/app"
	"github.com/shrimpsizemoose/lussekatt/internal/export"
)

func main() {
	var configPath = flag.String("config", "config.toml", "Path to config file")
	flag.Parse()

	service, err := app.NewService(*configPath)
	if err != nil {
		logger.Error.Fatalf("Failed to initialize service: %v", err)
	}
	defer service.Close()

	if len(service.Config.GSheet) == 0 {
		logger.Error.Fatal("No gsheet exports in config, nothing to do")
	}

	exporter, err := export.NewGSheetExporter(service.Config, service.Store)
	if err != nil {
		logger.Error.Fatalf("Failed to initialize Google Sheets exporter: %v", err)
	}
	exporter.Start()

	logger.Info.Println("Садимся экспортить")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	exporter.Stop()
	logger.Info.Println("Закончили экспортить")
}
