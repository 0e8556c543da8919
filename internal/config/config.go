package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	BatchSize int
	Workers   int

	// Input files, one JSON document per line.
	TileInputPath     string
	LocationInputPath string

	// EngineConfigPath points at an optional TOML file of engine parameters.
	EngineConfigPath string

	StoreDriver string
	StoreDSN    string

	KafkaEnabled   bool
	KafkaBrokers   []string
	KafkaSinkTopic string

	// Model inference configuration.
	ModelURL       string
	ModelEnabled   bool
	ModelTimeout   time.Duration
	ModelCacheSize int

	// TerrainMaxDistance bounds how far, in meters, a location may be from
	// the terrain sample it borrows.
	TerrainMaxDistance float64
}

// Load reads configuration from environment variables, applying defaults
// where unset. A .env file in the working directory is read first; variables
// already set in the environment win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	workers, err := parsePositiveInt("WORKERS", runtime.NumCPU())
	if err != nil {
		return nil, err
	}

	modelTimeout, err := time.ParseDuration(sharedcfg.EnvOrDefault("MODEL_TIMEOUT", "5s"))
	if err != nil || modelTimeout <= 0 {
		return nil, errors.New("invalid MODEL_TIMEOUT")
	}

	modelCacheSize, err := parsePositiveInt("MODEL_CACHE_SIZE", 1000)
	if err != nil {
		return nil, err
	}

	maxDistance, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("TERRAIN_MAX_DISTANCE", "5000"), 64)
	if err != nil || !(maxDistance > 0) {
		return nil, errors.New("invalid TERRAIN_MAX_DISTANCE")
	}

	modelURL := os.Getenv("MODEL_URL")

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
		BatchSize:       batchSize,
		Workers:         workers,

		TileInputPath:     os.Getenv("TILE_INPUT_PATH"),
		LocationInputPath: sharedcfg.EnvOrDefault("LOCATION_INPUT_PATH", "data/mock/locations.jsonl"),
		EngineConfigPath:  os.Getenv("ENGINE_CONFIG"),

		StoreDriver: sharedcfg.EnvOrDefault("STORE_DRIVER", "sqlite"),
		StoreDSN:    sharedcfg.EnvOrDefault("STORE_DSN", "file:features.db"),

		KafkaEnabled:   os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:   sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSinkTopic: sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "feature-vectors"),

		ModelURL:       modelURL,
		ModelEnabled:   modelURL != "",
		ModelTimeout:   modelTimeout,
		ModelCacheSize: modelCacheSize,

		TerrainMaxDistance: maxDistance,
	}

	if cfg.LocationInputPath == "" {
		return nil, errors.New("LOCATION_INPUT_PATH is required")
	}
	if cfg.StoreDriver != "sqlite" && cfg.StoreDriver != "postgres" {
		return nil, fmt.Errorf("STORE_DRIVER must be sqlite or postgres, got %q", cfg.StoreDriver)
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
	}
	if cfg.KafkaEnabled && cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required when KAFKA_ENABLED is true")
	}

	return cfg, nil
}

func parsePositiveInt(name string, def int) (int, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", name)
	}
	return n, nil
}
