package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTP        HTTPConfig
	Postgres    PostgresConfig
	Redis       RedisConfig
	NATS        NATSConfig
	Slack       SlackConfig
	Auth        AuthConfig
	Log         LogConfig
	Health      HealthConfig
	Events      EventsConfig
	Idempotency IdempotencyConfig
}

type HTTPConfig struct {
	Addr           string
	AllowedOrigins []string
}

type PostgresConfig struct {
	DatabaseURL string
	Host        string
	Port        string
	User        string
	Password    string
	Database    string
	SSLMode     string
	MaxConns    int
}

// Enabled - DATABASE_URL 또는 PGUSER/PGDATABASE가 있으면 Postgres 사용, 없으면 인메모리
func (c PostgresConfig) Enabled() bool {
	return c.DatabaseURL != "" || (c.User != "" && c.Database != "")
}

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	StreamKey string
}

type NATSConfig struct {
	URL           string
	SubjectPrefix string
}

type SlackConfig struct {
	BotToken  string
	ChannelID string
}

type AuthConfig struct {
	Enabled       bool
	JWTSecret     string
	JWTAccessTTL  string
	AdminUsername string
	AdminPassword string
	OIDCIssuer    string
	OIDCClientID  string
}

type LogConfig struct {
	Level  string
	Format string
}

type HealthConfig struct {
	StalenessThreshold  time.Duration
	AggregationInterval time.Duration
	ThresholdRule       bool
	WatchAlerts         bool
	DefaultBands        HealthBands
	CriticalBands       HealthBands
}

// HealthBands - healthStatus 점수 하한 (healthy >= Healthy, watch >= Watch, degrading >= Degrading)
type HealthBands struct {
	Healthy   float64
	Watch     float64
	Degrading float64
}

type EventsConfig struct {
	BufferSize       int
	DeliveryAttempts int
	RetryBackoff     time.Duration
	DrainTimeout     time.Duration
}

type IdempotencyConfig struct {
	TTL time.Duration
}

// Load - 환경변수(+ .env 파일)에서 설정 로드
func Load() Config {
	// .env 파일은 선택 사항 (없으면 무시)
	_ = godotenv.Load()

	return Config{
		HTTP: HTTPConfig{
			Addr:           getenv("HTTP_ADDR", ":8080"),
			AllowedOrigins: splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
		},
		Postgres: PostgresConfig{
			DatabaseURL: os.Getenv("DATABASE_URL"),
			Host:        getenv("PGHOST", "localhost"),
			Port:        getenv("PGPORT", "5432"),
			User:        os.Getenv("PGUSER"),
			Password:    os.Getenv("PGPASSWORD"),
			Database:    os.Getenv("PGDATABASE"),
			SSLMode:     getenv("PGSSLMODE", "disable"),
			MaxConns:    getenvInt("PG_MAX_CONNS", 0),
		},
		Redis: RedisConfig{
			Addr:      os.Getenv("REDIS_ADDR"),
			Password:  os.Getenv("REDIS_PASSWORD"),
			DB:        getenvInt("REDIS_DB", 0),
			StreamKey: getenv("REDIS_EVENT_STREAM", "equipment-health:events"),
		},
		NATS: NATSConfig{
			URL:           os.Getenv("NATS_URL"),
			SubjectPrefix: getenv("NATS_SUBJECT_PREFIX", "equipment.health"),
		},
		Slack: SlackConfig{
			BotToken:  os.Getenv("SLACK_BOT_TOKEN"),
			ChannelID: os.Getenv("SLACK_CHANNEL_ID"),
		},
		Auth: AuthConfig{
			Enabled:       getenvBool("AUTH_ENABLED", true),
			JWTSecret:     os.Getenv("JWT_SECRET"),
			JWTAccessTTL:  getenv("JWT_ACCESS_TTL", "12h"),
			AdminUsername: os.Getenv("ADMIN_USERNAME"),
			AdminPassword: os.Getenv("ADMIN_PASSWORD"),
			OIDCIssuer:    os.Getenv("OIDC_ISSUER"),
			OIDCClientID:  os.Getenv("OIDC_CLIENT_ID"),
		},
		Log: LogConfig{
			Level:  getenv("LOG_LEVEL", "info"),
			Format: getenv("LOG_FORMAT", "json"),
		},
		Health: HealthConfig{
			StalenessThreshold:  getenvDuration("HEALTH_STALENESS_THRESHOLD", 6*time.Hour),
			AggregationInterval: getenvDuration("HEALTH_AGGREGATION_INTERVAL", time.Minute),
			ThresholdRule:       getenvBool("HEALTH_THRESHOLD_RULE", true),
			WatchAlerts:         getenvBool("HEALTH_THRESHOLD_WATCH_ALERTS", false),
			DefaultBands:        getenvBands("HEALTH_BANDS", HealthBands{Healthy: 80, Watch: 60, Degrading: 40}),
			CriticalBands:       getenvBands("HEALTH_CRITICAL_BANDS", HealthBands{Healthy: 85, Watch: 70, Degrading: 50}),
		},
		Events: EventsConfig{
			BufferSize:       getenvInt("EVENT_BUFFER_SIZE", 1024),
			DeliveryAttempts: getenvInt("EVENT_DELIVERY_ATTEMPTS", 5),
			RetryBackoff:     getenvDuration("EVENT_RETRY_BACKOFF", 200*time.Millisecond),
			DrainTimeout:     getenvDuration("EVENT_DRAIN_TIMEOUT", 10*time.Second),
		},
		Idempotency: IdempotencyConfig{
			TTL: getenvDuration("IDEMPOTENCY_TTL", 24*time.Hour),
		},
	}
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}

func getenvBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return b
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return d
}

// getenvBands - "healthy,watch,degrading" 형식, 내림차순이 아니거나 0~100 밖이면 fallback
func getenvBands(key string, fallback HealthBands) HealthBands {
	vals := splitList(os.Getenv(key))
	if len(vals) != 3 {
		return fallback
	}
	var n [3]float64
	for i, v := range vals {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 100 {
			return fallback
		}
		n[i] = f
	}
	if n[0] <= n[1] || n[1] <= n[2] {
		return fallback
	}
	return HealthBands{Healthy: n[0], Watch: n[1], Degrading: n[2]}
}

func splitList(val string) []string {
	if val == "" {
		return nil
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
