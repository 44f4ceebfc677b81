package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	HTTPAddr string

	DatabaseURL string
	DBDriver    string // "postgres" (lib/pq) or "pgx"
	DBDebug     bool

	// Redis
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// RabbitMQ
	RabbitURL   string
	Exchange    string
	Queue       string
	BindKeysCSV string
	Prefetch    int
	ConsumeTag  string
	WorkerCount int

	// Auth
	JWTSecret string
	JWTIssuer string

	// HTTP rate limiting
	RLEnabled bool
	RLLimit   int
	RLWindow  time.Duration

	WSAllowedOriginsCSV string
	MaxBodyBytes        int64

	// Tracing
	TracingEnabled bool
	OTLPEndpoint   string

	ShutdownWait time.Duration

	// Notifications
	PendingQueueCap      int
	DigestIdempotencyTTL time.Duration

	// Client-side transport (used by readersim)
	TrackingAPIEndpoint   string
	TrackingBatchSize     int
	TrackingFlushInterval time.Duration
	TrackingMaxOffline    int
	TrackingPrivacyMode   bool
	TrackingToken         string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.Env = getEnvFirst([]string{"APP_ENV", "ENV"}, "dev")
	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":8085")

	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("missing required env var: DATABASE_URL")
	}
	cfg.DBDriver = getEnv("DB_DRIVER", "postgres")
	if cfg.DBDriver != "postgres" && cfg.DBDriver != "pgx" {
		return nil, fmt.Errorf("bad DB_DRIVER %q (want postgres or pgx)", cfg.DBDriver)
	}
	cfg.DBDebug = getBool("DB_DEBUG", false)

	cfg.RedisEnabled = getBool("REDIS_ENABLED", false)
	cfg.RedisAddr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.RedisDB = getInt("REDIS_DB", 0)

	// Guard: prevent the "REDIS_ADDR=localhost:6379 OTHER=..." parsing issue
	if strings.Contains(cfg.RedisAddr, " ") {
		return nil, fmt.Errorf("bad REDIS_ADDR (contains spaces): %q", cfg.RedisAddr)
	}

	cfg.RabbitURL = strings.TrimSpace(os.Getenv("RABBIT_URL"))
	if cfg.RabbitURL == "" && cfg.Env != "dev" {
		return nil, fmt.Errorf("missing required env var: RABBIT_URL")
	}
	cfg.Exchange = getEnv("RABBIT_EXCHANGE", "city.events")
	cfg.Queue = getEnv("RABBIT_QUEUE", "newsroom-notify.q")
	cfg.BindKeysCSV = getEnv("RABBIT_BIND_KEYS", "article.published,comment.created,user.digest.requested,user.recommendations.requested")
	cfg.Prefetch = getInt("RABBIT_PREFETCH", 10)
	cfg.ConsumeTag = getEnv("RABBIT_CONSUMER_TAG", "newsroom-notify")
	cfg.WorkerCount = getInt("WORKER_COUNT", 4)

	cfg.JWTSecret = strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("missing required env var: JWT_SECRET")
	}
	cfg.JWTIssuer = getEnv("JWT_ISSUER", "")

	cfg.RLEnabled = getBool("RL_ENABLED", true)
	cfg.RLLimit = getInt("RL_LIMIT", 120)
	cfg.RLWindow = getDuration("RL_WINDOW", 1*time.Minute)

	cfg.WSAllowedOriginsCSV = getEnv("WS_ALLOWED_ORIGINS", "")
	cfg.MaxBodyBytes = int64(getInt("MAX_BODY_BYTES", 1<<20))

	cfg.TracingEnabled = getBool("TRACING_ENABLED", false)
	cfg.OTLPEndpoint = getEnv("OTLP_ENDPOINT", "localhost:4318")

	cfg.ShutdownWait = getDuration("SHUTDOWN_WAIT", 10*time.Second)

	cfg.PendingQueueCap = getInt("PENDING_QUEUE_CAP", 50)
	cfg.DigestIdempotencyTTL = getDuration("DIGEST_IDEMPOTENCY_TTL", 24*time.Hour)

	loadTracking(cfg)

	return cfg, nil
}

// LoadClient reads only what the reader simulator needs: no database, broker
// or signing secret.
func LoadClient() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	cfg.Env = getEnvFirst([]string{"APP_ENV", "ENV"}, "dev")

	cfg.RedisEnabled = getBool("REDIS_ENABLED", false)
	cfg.RedisAddr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.RedisDB = getInt("REDIS_DB", 0)
	if strings.Contains(cfg.RedisAddr, " ") {
		return nil, fmt.Errorf("bad REDIS_ADDR (contains spaces): %q", cfg.RedisAddr)
	}

	cfg.TracingEnabled = getBool("TRACING_ENABLED", false)
	cfg.OTLPEndpoint = getEnv("OTLP_ENDPOINT", "localhost:4318")

	loadTracking(cfg)
	if cfg.TrackingBatchSize < 1 {
		return nil, fmt.Errorf("bad TRACKING_BATCH_SIZE %d (want >= 1)", cfg.TrackingBatchSize)
	}
	return cfg, nil
}

func loadTracking(cfg *Config) {
	cfg.TrackingAPIEndpoint = strings.TrimRight(getEnv("TRACKING_API_ENDPOINT", "http://localhost:8085/api/tracking"), "/")
	cfg.TrackingBatchSize = getInt("TRACKING_BATCH_SIZE", 10)
	cfg.TrackingFlushInterval = getDuration("TRACKING_FLUSH_INTERVAL", 30*time.Second)
	cfg.TrackingMaxOffline = getInt("TRACKING_MAX_OFFLINE", 1000)
	cfg.TrackingPrivacyMode = getBool("TRACKING_PRIVACY_MODE", false)
	cfg.TrackingToken = getEnv("TRACKING_TOKEN", "")
}

// WSAllowedOrigins splits WS_ALLOWED_ORIGINS; empty means any origin.
func (c *Config) WSAllowedOrigins() []string {
	return splitCSV(c.WSAllowedOriginsCSV)
}

// BindKeys splits the comma separated routing keys.
func (c *Config) BindKeys() []string {
	return splitCSV(c.BindKeysCSV)
}

func splitCSV(csv string) []string {
	raw := strings.Split(csv, ",")
	out := make([]string, 0, len(raw))
	for _, x := range raw {
		x = strings.TrimSpace(x)
		if x != "" {
			out = append(out, x)
		}
	}
	return out
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getEnvFirst(keys []string, def string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return def
}

func getInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n := def
	_, _ = fmt.Sscanf(v, "%d", &n)
	if n < 0 {
		return def
	}
	return n
}

func getDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func getBool(key string, def bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}
