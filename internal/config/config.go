package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server  ServerConfig
	Sync    SyncConfig
	Worker  WorkerConfig
	Notify  NotifyConfig
	Stream  StreamConfig
	DB      DatabaseConfig
	Logging LoggingConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type SyncConfig struct {
	Interval      time.Duration
	SourceTimeout time.Duration

	NWSEnabled bool
	NWSURL     string

	USGSEnabled bool
	USGSURL     string

	VolcanoEnabled bool
	VolcanoURL     string
}

type WorkerConfig struct {
	Count      int
	BufferSize int
}

type NotifyConfig struct {
	EmailEndpoint string
	SMSEndpoint   string
	VoiceEndpoint string
	ProviderToken string
	FromAddress   string

	// Timezone used to evaluate recipient quiet hours.
	Timezone string
}

type StreamConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

type DatabaseConfig struct {
	Path string
}

type LoggingConfig struct {
	Level string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "localhost"),
			Port: getEnvInt("SERVER_PORT", 8080),
		},
		Sync: SyncConfig{
			Interval:       getEnvDuration("SYNC_INTERVAL", 300*time.Second),
			SourceTimeout:  getEnvDuration("SYNC_SOURCE_TIMEOUT", 60*time.Second),
			NWSEnabled:     getEnvBool("NWS_ENABLED", true),
			NWSURL:         getEnv("NWS_URL", "https://api.weather.gov/alerts/active?area=HI"),
			USGSEnabled:    getEnvBool("USGS_ENABLED", true),
			USGSURL:        getEnv("USGS_URL", "https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary/all_hour.geojson"),
			VolcanoEnabled: getEnvBool("VOLCANO_ENABLED", true),
			VolcanoURL:     getEnv("VOLCANO_URL", "https://volcanoes.usgs.gov/hans-public/api/volcano/getElevatedVolcanoes"),
		},
		Worker: WorkerConfig{
			Count:      getEnvInt("WORKER_COUNT", 4),
			BufferSize: getEnvInt("WORKER_BUFFER_SIZE", 64),
		},
		Notify: NotifyConfig{
			EmailEndpoint: getEnv("NOTIFY_EMAIL_ENDPOINT", ""),
			SMSEndpoint:   getEnv("NOTIFY_SMS_ENDPOINT", ""),
			VoiceEndpoint: getEnv("NOTIFY_VOICE_ENDPOINT", ""),
			ProviderToken: getEnv("NOTIFY_PROVIDER_TOKEN", ""),
			FromAddress:   getEnv("NOTIFY_FROM_ADDRESS", "alerts@emergency-hub.local"),
			Timezone:      getEnv("NOTIFY_TIMEZONE", "Pacific/Honolulu"),
		},
		Stream: StreamConfig{
			Enabled: getEnvBool("STREAM_ENABLED", false),
			Brokers: splitList(getEnv("STREAM_BROKERS", "localhost:9092")),
			Topic:   getEnv("STREAM_TOPIC", "canonical-alerts"),
		},
		DB: DatabaseConfig{
			Path: getEnv("DB_PATH", "./data/emergency-alert-hub.db"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Sync.Interval < 30*time.Second {
		return fmt.Errorf("sync interval must be at least 30 seconds")
	}
	if c.Sync.SourceTimeout < time.Second {
		return fmt.Errorf("source timeout must be at least 1 second")
	}
	if c.Worker.Count < 1 {
		return fmt.Errorf("worker count must be at least 1")
	}

	if _, err := time.LoadLocation(c.Notify.Timezone); err != nil {
		return fmt.Errorf("invalid notify timezone %q: %w", c.Notify.Timezone, err)
	}

	if c.Stream.Enabled && len(c.Stream.Brokers) == 0 {
		return fmt.Errorf("stream enabled but no brokers configured")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
