package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required"`

	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"0s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	CORSOrigins  string        `env:"CORS_ORIGINS"`

	AuthToken string `env:"AUTH_TOKEN"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`

	// External media source
	YouTubeAPIKey string `env:"YOUTUBE_API_KEY"`
	YouTubeAPIURL string `env:"YOUTUBE_API_URL" envDefault:"https://www.googleapis.com/youtube/v3"`
	YTDLPBin      string `env:"YTDLP_BIN" envDefault:"yt-dlp"`

	// Waveform ingestion
	FFmpegBin             string        `env:"FFMPEG_BIN" envDefault:"ffmpeg"`
	AudiowaveformBin      string        `env:"AUDIOWAVEFORM_BIN" envDefault:"audiowaveform"`
	WaveformTmpDir        string        `env:"WAVEFORM_TMP_DIR"`
	IngestWorkers         int           `env:"INGEST_WORKERS" envDefault:"2"`
	IngestQueueSize       int           `env:"INGEST_QUEUE_SIZE" envDefault:"64"`
	IngestTimeout         time.Duration `env:"INGEST_TIMEOUT" envDefault:"10m"`
	IngestEnqueueWait     time.Duration `env:"INGEST_ENQUEUE_WAIT" envDefault:"10s"`
	IngestReconcilePeriod time.Duration `env:"INGEST_RECONCILE_INTERVAL" envDefault:"5m"`

	// Live events
	EventBusCapacity int           `env:"EVENT_BUS_CAPACITY" envDefault:"1024"`
	SSEKeepalive     time.Duration `env:"SSE_KEEPALIVE" envDefault:"15s"`

	// Optional MQTT event mirror
	MQTTBrokerURL   string `env:"MQTT_BROKER_URL"`
	MQTTClientID    string `env:"MQTT_CLIENT_ID" envDefault:"captionhub"`
	MQTTUsername    string `env:"MQTT_USERNAME"`
	MQTTPassword    string `env:"MQTT_PASSWORD"`
	MQTTTopicPrefix string `env:"MQTT_TOPIC_PREFIX" envDefault:"captionhub"`
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile     string
	HTTPAddr    string
	LogLevel    string
	DatabaseURL string
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.DatabaseURL != "" {
		cfg.DatabaseURL = overrides.DatabaseURL
	}

	if cfg.WaveformTmpDir == "" {
		cfg.WaveformTmpDir = os.TempDir()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the ingest pool and event bus cannot run with.
func (c *Config) Validate() error {
	if c.IngestWorkers < 1 {
		return fmt.Errorf("INGEST_WORKERS must be >= 1, got %d", c.IngestWorkers)
	}
	if c.IngestQueueSize < 1 {
		return fmt.Errorf("INGEST_QUEUE_SIZE must be >= 1, got %d", c.IngestQueueSize)
	}
	if c.EventBusCapacity < 1 {
		return fmt.Errorf("EVENT_BUS_CAPACITY must be >= 1, got %d", c.EventBusCapacity)
	}
	if c.IngestTimeout <= 0 {
		return fmt.Errorf("INGEST_TIMEOUT must be positive, got %s", c.IngestTimeout)
	}
	if c.IngestEnqueueWait <= 0 {
		return fmt.Errorf("INGEST_ENQUEUE_WAIT must be positive, got %s", c.IngestEnqueueWait)
	}
	return nil
}

// CORSOriginList splits CORS_ORIGINS on commas. Empty means allow all.
func (c *Config) CORSOriginList() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// MirrorEnabled reports whether bus events should be republished over MQTT.
func (c *Config) MirrorEnabled() bool {
	return c.MQTTBrokerURL != ""
}
