package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	APIPort  string
	LogLevel string

	UploadRoot  string
	ResultsRoot string

	PipelineCommand string
	PipelineArgs    []string

	// NATSURL empty means lifecycle events are disabled.
	NATSURL           string
	NATSSubjectPrefix string

	MaxUploadBytes int64

	APIRateLimitRPS   float64
	APIRateLimitBurst int
	APIMaxConcurrent  int
	APIQueueTimeoutMS int

	ViewerBaseURL  string
	ResultsBaseURL string
}

func Load() Config {
	return Config{
		APIPort:  mustEnv("API_PORT", "8080"),
		LogLevel: mustEnv("LOG_LEVEL", "info"),

		UploadRoot:  mustEnv("UPLOAD_ROOT", "./data/uploads"),
		ResultsRoot: mustEnv("RESULTS_ROOT", "./data/results"),

		PipelineCommand: mustEnv("PIPELINE_COMMAND", "run_pipeline"),
		PipelineArgs:    strings.Fields(mustEnv("PIPELINE_ARGS", "")),

		NATSURL:           mustEnv("NATS_URL", ""),
		NATSSubjectPrefix: mustEnv("NATS_SUBJECT_PREFIX", "cases"),

		MaxUploadBytes: mustEnvInt64("MAX_UPLOAD_BYTES", 800*1024*1024),

		APIRateLimitRPS:   mustEnvFloat("API_RATE_LIMIT_RPS", 0),
		APIRateLimitBurst: mustEnvInt("API_RATE_LIMIT_BURST", 0),
		APIMaxConcurrent:  mustEnvInt("API_MAX_CONCURRENT", 0),
		APIQueueTimeoutMS: mustEnvInt("API_QUEUE_TIMEOUT_MS", 200),

		ViewerBaseURL:  mustEnv("VIEWER_BASE_URL", ""),
		ResultsBaseURL: mustEnv("RESULTS_BASE_URL", ""),
	}
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
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
