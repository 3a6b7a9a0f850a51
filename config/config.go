package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App               AppConfig
	HTTP              ServerConfig
	GRPC              ServerConfig
	MySQL             MySQLConfig
	Redis             RedisConfig
	Log               LogConfig
	InternalEndpoints InternalEndpointsConfig
	Gateway           GatewayConfig
	Auth              AuthConfig
	Locks             LocksConfig
	Payments          PaymentsConfig
	Notifier          NotifierConfig
	Jobs              JobsConfig
}

type AppConfig struct {
	ServiceName string
}

type ServerConfig struct {
	Host string
	Port string
}

type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig is optional. An empty Addr keeps locks on MySQL and
// notifications in-process.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

type LogConfig struct {
	Level  string
	Format string
}

type InternalEndpointsConfig struct {
	AuthGRPCAddr string
}

type GatewayConfig struct {
	BaseURL       string
	SecretKey     string
	PublicKey     string
	WebhookSecret string
	VerifyTimeout time.Duration
}

type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

// LocksConfig.MySQLMaxConns sizes the pool dedicated to GET_LOCK sessions;
// it is kept apart from the query pool.
type LocksConfig struct {
	Backend        string
	TTL            time.Duration
	MySQLMaxConns  int
	AcquireTimeout time.Duration
}

type PaymentsConfig struct {
	PendingTimeout      time.Duration
	ReconcileStaleAfter time.Duration
	UnprocessedAfter    time.Duration
	JobBatchSize        int32
	SyncLockRetryDelay  time.Duration
	ServiceFeePercent   string
}

type NotifierConfig struct {
	Channel         string
	PollInterval    time.Duration
	PollMaxAttempts int
}

type JobsConfig struct {
	ReconcileInterval        time.Duration
	ExpirePendingInterval    time.Duration
	RetryUnprocessedInterval time.Duration
	OverdueInterval          time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}

	secretKey := getEnv("GATEWAY_SECRET_KEY", "")

	return &Config{
		App: AppConfig{
			ServiceName: getEnv("APP_SERVICE_NAME", "ajo-service"),
		},
		HTTP: ServerConfig{
			Host: getEnv("HTTP_HOST", "0.0.0.0"),
			Port: getEnv("HTTP_PORT", "8080"),
		},
		GRPC: ServerConfig{
			Host: getEnv("GRPC_HOST", "0.0.0.0"),
			Port: getEnv("GRPC_PORT", "9090"),
		},
		MySQL: MySQLConfig{
			DSN:             mysqlDSN,
			MaxOpenConns:    getIntEnv("MYSQL_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    getIntEnv("MYSQL_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getMinutesEnv("MYSQL_CONN_MAX_LIFETIME_MINUTES", 30*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: strings.ToLower(getEnv("LOG_FORMAT", "json")),
		},
		InternalEndpoints: InternalEndpointsConfig{
			AuthGRPCAddr: getEnv("AUTH_SERVICE_GRPC_ADDR", "localhost:9090"),
		},
		Gateway: GatewayConfig{
			BaseURL:       strings.TrimRight(getEnv("GATEWAY_BASE_URL", "https://api.paystack.co"), "/"),
			SecretKey:     secretKey,
			PublicKey:     getEnv("GATEWAY_PUBLIC_KEY", ""),
			WebhookSecret: getEnv("GATEWAY_WEBHOOK_SECRET", secretKey),
			VerifyTimeout: getSecondsEnv("GATEWAY_VERIFY_TIMEOUT_SECONDS", 30*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			Issuer:    getEnv("JWT_ISSUER", ""),
		},
		Locks: LocksConfig{
			Backend:        strings.ToLower(getEnv("LOCK_BACKEND", "mysql")),
			TTL:            getSecondsEnv("LOCK_TTL_SECONDS", 60*time.Second),
			MySQLMaxConns:  getIntEnv("LOCK_MYSQL_MAX_CONNS", 10),
			AcquireTimeout: getMillisecondsEnv("LOCK_ACQUIRE_TIMEOUT_MS", 2000*time.Millisecond),
		},
		Payments: PaymentsConfig{
			PendingTimeout:      getMinutesEnv("PAYMENTS_PENDING_TIMEOUT_MINUTES", 24*time.Hour),
			ReconcileStaleAfter: getMinutesEnv("PAYMENTS_RECONCILE_STALE_AFTER_MINUTES", 15*time.Minute),
			UnprocessedAfter:    getMinutesEnv("PAYMENTS_UNPROCESSED_AFTER_MINUTES", 5*time.Minute),
			JobBatchSize:        int32(getIntEnv("PAYMENTS_JOB_BATCH_SIZE", 100)),
			SyncLockRetryDelay:  getMillisecondsEnv("PAYMENTS_SYNC_LOCK_RETRY_DELAY_MS", 750*time.Millisecond),
			ServiceFeePercent:   getEnv("PAYMENTS_SERVICE_FEE_PERCENT", "10"),
		},
		Notifier: NotifierConfig{
			Channel:         getEnv("NOTIFIER_CHANNEL", "ajo:payments"),
			PollInterval:    getSecondsEnv("NOTIFIER_POLL_INTERVAL_SECONDS", 3*time.Second),
			PollMaxAttempts: getIntEnv("NOTIFIER_POLL_MAX_ATTEMPTS", 20),
		},
		Jobs: JobsConfig{
			ReconcileInterval:        getMinutesEnv("JOBS_RECONCILE_INTERVAL_MINUTES", 2*time.Minute),
			ExpirePendingInterval:    getMinutesEnv("JOBS_EXPIRE_PENDING_INTERVAL_MINUTES", 30*time.Minute),
			RetryUnprocessedInterval: getMinutesEnv("JOBS_RETRY_UNPROCESSED_INTERVAL_MINUTES", 5*time.Minute),
			OverdueInterval:          getMinutesEnv("JOBS_OVERDUE_INTERVAL_MINUTES", 60*time.Minute),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getMinutesEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getSecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}

func getMillisecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if ms, err := strconv.Atoi(value); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultValue
}
