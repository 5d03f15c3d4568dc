package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains runtime configuration values.
type Config struct {
	Environment       string
	HTTPPort          string
	ServiceName       string
	EncryptionKey     []byte
	SigningSecret     string
	ClientID          string
	ClientSecret      string
	TokenURL          string
	RedirectURI       string
	WorkerURL         string
	QueueURL          string
	QueueName         string
	ServiceAccount    string
	DispatchKey       []byte
	DispatchTimeout   time.Duration
	SessionTTL        time.Duration
	ReplayWindow      time.Duration
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	RateLimitRPM      int
	TelemetryEndpoint string
	TelemetryInsecure bool
}

// Load reads configuration from environment variables with sane defaults.
// The encryption and dispatch keys are optional here; empty slices mean the
// caller should generate ephemeral ones and warn.
func Load() (Config, error) {
	_ = godotenv.Load()

	signingSecret := strings.TrimSpace(os.Getenv("SLACK_SIGNING_SECRET"))
	if signingSecret == "" {
		return Config{}, fmt.Errorf("SLACK_SIGNING_SECRET is required")
	}
	clientID := strings.TrimSpace(os.Getenv("SLACK_CLIENT_ID"))
	if clientID == "" {
		return Config{}, fmt.Errorf("SLACK_CLIENT_ID is required")
	}
	clientSecret := strings.TrimSpace(os.Getenv("SLACK_CLIENT_SECRET"))
	if clientSecret == "" {
		return Config{}, fmt.Errorf("SLACK_CLIENT_SECRET is required")
	}
	workerURL := strings.TrimSpace(os.Getenv("WORKER_URL"))
	if workerURL == "" {
		return Config{}, fmt.Errorf("WORKER_URL is required")
	}

	encryptionKey, err := getKey("BOTGATE_ENCRYPTION_KEY")
	if err != nil {
		return Config{}, err
	}
	dispatchKey, err := getKey("DISPATCH_SIGNING_KEY")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Environment:       getEnv("APP_ENV", "development"),
		HTTPPort:          getEnv("HTTP_PORT", "8080"),
		ServiceName:       getEnv("SERVICE_NAME", "botgate"),
		EncryptionKey:     encryptionKey,
		SigningSecret:     signingSecret,
		ClientID:          clientID,
		ClientSecret:      clientSecret,
		TokenURL:          getEnv("OAUTH_TOKEN_URL", "https://slack.com/api/oauth.v2.access"),
		RedirectURI:       os.Getenv("OAUTH_REDIRECT_URI"),
		WorkerURL:         workerURL,
		QueueURL:          os.Getenv("QUEUE_URL"),
		QueueName:         getEnv("QUEUE_NAME", "botgate-work"),
		ServiceAccount:    getEnv("SERVICE_ACCOUNT", "botgate@service"),
		DispatchKey:       dispatchKey,
		DispatchTimeout:   getDuration("DISPATCH_TIMEOUT", 10*time.Second),
		SessionTTL:        getDuration("SESSION_TTL", 30*time.Minute),
		ReplayWindow:      getDuration("REPLAY_WINDOW", 5*time.Minute),
		RedisAddr:         getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		RedisDB:           getInt("REDIS_DB", 0),
		RateLimitRPM:      getInt("RATE_LIMIT_RPM", 600),
		TelemetryEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure: getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
	}

	return cfg, nil
}

func getKey(key string) ([]byte, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be base64: %w", key, err)
	}
	return decoded, nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}
