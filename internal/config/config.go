// Package config loads recapd's runtime configuration from the environment.
// A .env file is honored when present so local development does not require
// exporting every variable by hand.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type (
	// Config bundles every subsystem's settings. It is built once at startup
	// and passed down by value; tasks that fork processes construct their own
	// clients from it rather than inheriting live handles.
	Config struct {
		HTTP     HTTP
		Postgres Postgres
		Redis    Redis
		Temporal Temporal
		Storage  Storage
		Audio    Audio
		ASR      ASR
		LLM      LLM
		Zulip    Zulip
		Daily    Daily
		Webhook  Webhook

		FrontendBaseURL string
	}

	// HTTP configures the intake server.
	HTTP struct {
		Addr string
	}

	// Postgres configures the persistence pool.
	Postgres struct {
		DSN string
	}

	// Redis backs the Pulse progress streams.
	Redis struct {
		Addr     string
		Password string
	}

	// Temporal configures the workflow client and worker.
	Temporal struct {
		HostPort  string
		Namespace string
		TaskQueue string
	}

	// Storage configures the S3-compatible object store. RecordingBucket is
	// where the video platform drops raw tracks; Bucket receives produced
	// artifacts. Endpoint is optional and enables MinIO-style deployments.
	Storage struct {
		Bucket          string
		RecordingBucket string
		Region          string
		Endpoint        string
		AccessKeyID     string
		SecretAccessKey string
		PresignTTL      time.Duration
	}

	// Audio selects where CPU-bound audio work runs. With OffloadURL unset
	// the padder/mixdown/waveform tasks exec ffmpeg locally; otherwise they
	// POST to a remote CPU container exposing the same operations.
	Audio struct {
		FFmpegPath  string
		FFprobePath string
		OffloadURL  string
	}

	// ASR configures the remote GPU transcription and diarization services.
	ASR struct {
		TranscribeURL string
		DiarizeURL    string
		APIKey        string
	}

	// LLM selects the completion provider used for topics, titles and
	// summaries.
	LLM struct {
		Provider string // "openai" or "anthropic"
		APIKey   string
		Model    string
		BaseURL  string
		// RequestsPerSecond caps outbound completion calls; zero disables
		// local limiting and relies on provider 429s alone.
		RequestsPerSecond float64
	}

	// Zulip configures the chat integration. Empty Site disables posting.
	Zulip struct {
		Site     string
		Email    string
		APIKey   string
	}

	// Daily holds the shared secret used to verify inbound platform
	// webhooks.
	Daily struct {
		WebhookSecret string
	}

	// Webhook tunes outgoing room webhooks.
	Webhook struct {
		UserAgent string
	}
)

// Load reads configuration from the environment, honoring an optional .env
// file at envPath (pass "" to look for ./.env). Missing required settings
// return an error listing the first offending variable.
func Load(envPath string) (Config, error) {
	if envPath == "" {
		envPath = ".env"
	}
	// Best effort: absence of a .env file is the normal production case.
	_ = godotenv.Load(envPath)

	cfg := Config{
		HTTP: HTTP{
			Addr: getEnv("RECAPD_HTTP_ADDR", ":8080"),
		},
		Postgres: Postgres{
			DSN: os.Getenv("RECAPD_POSTGRES_DSN"),
		},
		Redis: Redis{
			Addr:     getEnv("RECAPD_REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("RECAPD_REDIS_PASSWORD"),
		},
		Temporal: Temporal{
			HostPort:  getEnv("RECAPD_TEMPORAL_HOSTPORT", "localhost:7233"),
			Namespace: getEnv("RECAPD_TEMPORAL_NAMESPACE", "default"),
			TaskQueue: getEnv("RECAPD_TEMPORAL_TASK_QUEUE", "recapd-pipeline"),
		},
		Storage: Storage{
			Bucket:          os.Getenv("RECAPD_STORAGE_BUCKET"),
			RecordingBucket: os.Getenv("RECAPD_RECORDING_BUCKET"),
			Region:          getEnv("RECAPD_STORAGE_REGION", "us-east-1"),
			Endpoint:        os.Getenv("RECAPD_STORAGE_ENDPOINT"),
			AccessKeyID:     os.Getenv("RECAPD_STORAGE_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("RECAPD_STORAGE_SECRET_ACCESS_KEY"),
			PresignTTL:      getEnvDuration("RECAPD_STORAGE_PRESIGN_TTL", 2*time.Hour),
		},
		Audio: Audio{
			FFmpegPath:  getEnv("RECAPD_FFMPEG_PATH", "ffmpeg"),
			FFprobePath: getEnv("RECAPD_FFPROBE_PATH", "ffprobe"),
			OffloadURL:  os.Getenv("RECAPD_AUDIO_OFFLOAD_URL"),
		},
		ASR: ASR{
			TranscribeURL: os.Getenv("RECAPD_ASR_TRANSCRIBE_URL"),
			DiarizeURL:    os.Getenv("RECAPD_ASR_DIARIZE_URL"),
			APIKey:        os.Getenv("RECAPD_ASR_API_KEY"),
		},
		LLM: LLM{
			Provider:          getEnv("RECAPD_LLM_PROVIDER", "openai"),
			APIKey:            os.Getenv("RECAPD_LLM_API_KEY"),
			Model:             getEnv("RECAPD_LLM_MODEL", "gpt-4o-mini"),
			BaseURL:           os.Getenv("RECAPD_LLM_BASE_URL"),
			RequestsPerSecond: getEnvFloat("RECAPD_LLM_RPS", 4),
		},
		Zulip: Zulip{
			Site:   os.Getenv("RECAPD_ZULIP_SITE"),
			Email:  os.Getenv("RECAPD_ZULIP_EMAIL"),
			APIKey: os.Getenv("RECAPD_ZULIP_API_KEY"),
		},
		Daily: Daily{
			WebhookSecret: os.Getenv("RECAPD_DAILY_WEBHOOK_SECRET"),
		},
		Webhook: Webhook{
			UserAgent: getEnv("RECAPD_WEBHOOK_USER_AGENT", "recapd-Webhook/1.0"),
		},
		FrontendBaseURL: getEnv("RECAPD_FRONTEND_BASE_URL", "http://localhost:3000"),
	}

	if cfg.Postgres.DSN == "" {
		return Config{}, fmt.Errorf("config: RECAPD_POSTGRES_DSN is required")
	}
	if cfg.Storage.Bucket == "" {
		return Config{}, fmt.Errorf("config: RECAPD_STORAGE_BUCKET is required")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
