package app

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/shrimpsizemoose/lussekatt/internal/canvas"
	"github.com/shrimpsizemoose/lussekatt/internal/jobs"
	"github.com/shrimpsizemoose/lussekatt/internal/progress"
	"github.com/shrimpsizemoose/lussekatt/internal/store"
	"github.com/shrimpsizemoose/lussekatt/internal/syncer"
)

type Service struct {
	Config   *Config
	Store    store.SyncStore
	Canvas   *canvas.Client
	Progress progress.Tracker
	Syncer   *syncer.Syncer
	Jobs     *jobs.Queue
}

func NewService(configPath string) (*Service, error) {
	config, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	store, err := NewStore(config.Database.DSN, config.Database.MigrationsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to init store: %w", err)
	}

	tracker, err := NewTracker(config)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to init progress tracker: %w", err)
	}

	client := canvas.New(config.Canvas.BaseURL, config.Canvas.Token, config.CanvasTimeout())

	return &Service{
		Config:   config,
		Store:    store,
		Canvas:   client,
		Progress: tracker,
		Syncer:   syncer.New(client, store, tracker),
		Jobs:     jobs.NewQueue(config.Sync.Workers, config.Sync.QueueSize),
	}, nil
}

// NewTracker picks the progress backend: redis when configured, otherwise
// a process-local tracker.
func NewTracker(config *Config) (progress.Tracker, error) {
	if config.Progress.RedisURL == "" {
		return progress.NewMemoryTracker(config.ProgressTTL()), nil
	}

	opts, err := redis.ParseURL(config.Progress.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return progress.NewRedisTracker(redis.NewClient(opts), config.ProgressTTL()), nil
}

func (s *Service) Close() error {
	var errs []error

	if s.Jobs != nil {
		s.Jobs.Shutdown()
	}

	if err := s.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store: %w", err))
	}
	if closer, ok := s.Progress.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("progress: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors while closing: %v", errs)
	}
	return nil
}
