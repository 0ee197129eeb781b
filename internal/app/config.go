package app

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"

	"github.com/shrimpsizemoose/trekker/logger"
)

type GSheetConfig struct {
	CourseID        int64  `toml:"course_id"`
	CredentialsPath string `toml:"credentials_path"`
	SheetID         string `toml:"sheet_id"`
	SheetName       string `toml:"sheet_name"`
	Schedule        string `toml:"schedule"`
	TimestampCell   string `toml:"timestamp_cell"`
}

type Config struct {
	Server struct {
		Port string `toml:"port"`
	} `toml:"server"`

	Canvas struct {
		BaseURL        string `toml:"base_url" validate:"required,url"`
		Token          string `toml:"token" validate:"required"`
		TimeoutSeconds int    `toml:"timeout_seconds"`
	} `toml:"canvas"`

	Database struct {
		DSN           string `toml:"dsn" validate:"required"`
		MigrationsDir string `toml:"migrations_dir"`
	} `toml:"database"`

	Progress struct {
		RedisURL   string `toml:"redis_url"`
		TTLMinutes int    `toml:"ttl_minutes"`
	} `toml:"progress"`

	Sync struct {
		Workers   int     `toml:"workers"`
		QueueSize int     `toml:"queue_size"`
		Schedule  string  `toml:"schedule"`
		CourseIDs []int64 `toml:"course_ids"`
	} `toml:"sync"`

	Bot struct {
		Token  string `toml:"token"`
		ChatID int64  `toml:"chat_id"`
	} `toml:"bot"`

	GSheet map[string]GSheetConfig `toml:"gsheet"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf(
			"error reading config file %s\n> Error: %w\n> Content:\n%s",
			path,
			err,
			string(data),
		)
	}

	if config.Server.Port == "" {
		return nil, fmt.Errorf("Server port is not specified in config, use a value like :9999")
	}

	if config.Canvas.TimeoutSeconds == 0 {
		config.Canvas.TimeoutSeconds = 10
	}
	if config.Progress.TTLMinutes == 0 {
		config.Progress.TTLMinutes = 60
	}
	if config.Sync.Workers == 0 {
		config.Sync.Workers = 4
	}
	if config.Sync.QueueSize == 0 {
		config.Sync.QueueSize = 64
	}
	if config.Database.MigrationsDir == "" {
		config.Database.MigrationsDir = "./migrations"
	}

	validate := validator.New()
	if err := validate.Struct(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger.Debug.Printf("Loaded sync config: %+v", config.Sync)

	return &config, nil
}

func (c *Config) CanvasTimeout() time.Duration {
	return time.Duration(c.Canvas.TimeoutSeconds) * time.Second
}

func (c *Config) ProgressTTL() time.Duration {
	return time.Duration(c.Progress.TTLMinutes) * time.Minute
}
