package main

import (
	"flag"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/lussekatt/internal/app"
	"github.com/shrimpsizemoose/lussekatt/internal/handlers"
)

func main() {
	var configPath = flag.String("config", "config.toml", "Path to config file")
	flag.Parse()

	service, err := app.NewService(*configPath)
	if err != nil {
		logger.Error.Fatalf("Failed to initialize service: %v", err)
	}
	defer service.Close()

	syncHandler := handlers.NewSyncHandler(service)

	http.HandleFunc("POST /api/v1/courses/{courseID}/sync", syncHandler.HandleCourseSync)
	http.HandleFunc("GET /api/v1/courses/{courseID}/sync", syncHandler.HandleCourseSyncStatus)
	http.HandleFunc("DELETE /api/v1/courses/{courseID}", syncHandler.HandleCourseDelete)
	http.HandleFunc("GET /api/v1/courses/{courseID}/gradebook", syncHandler.HandleGradebook)
	http.HandleFunc("POST /api/v1/sync/batch", syncHandler.HandleBatchSync)
	http.HandleFunc("GET /api/v1/sync/batch/{batchID}", syncHandler.HandleBatchSyncStatus)
	http.HandleFunc("POST /api/v1/group-categories/{categoryID}/reassignments", syncHandler.HandleReassignments)
	http.HandleFunc("POST /api/v1/teams/{teamID}/push", syncHandler.HandleTeamPush)

	http.Handle("/metrics", promhttp.Handler())

	logger.Info.Printf("Starting lussekatt server on %s", service.Config.Server.Port)
	if err := http.ListenAndServe(service.Config.Server.Port, nil); err != nil {
		logger.Error.Fatalf("Lussekatt server failed: %v", err)
	}
}
