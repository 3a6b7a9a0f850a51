package config

import (
	"os"
	"testing"
	"time"
)

func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old, had := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("setenv %s failed: %v", key, err)
	}
	t.Cleanup(func() {
		if had {
			_ = os.Setenv(key, old)
		} else {
			_ = os.Unsetenv(key)
		}
	})
}

func unsetEnv(t *testing.T, key string) {
	t.Helper()
	old, had := os.LookupEnv(key)
	_ = os.Unsetenv(key)
	t.Cleanup(func() {
		if had {
			_ = os.Setenv(key, old)
		}
	})
}

func TestLoadRequiresMySQLDSN(t *testing.T) {
	unsetEnv(t, "MYSQL_DSN")
	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing MYSQL_DSN")
	}
}

func TestLoadDefaults(t *testing.T) {
	setEnv(t, "MYSQL_DSN", "root:root@tcp(localhost:3306)/ajo?parseTime=true")
	setEnv(t, "GATEWAY_SECRET_KEY", "sk_test_123")
	unsetEnv(t, "GATEWAY_WEBHOOK_SECRET")
	unsetEnv(t, "REDIS_ADDR")
	unsetEnv(t, "GATEWAY_VERIFY_TIMEOUT_SECONDS")
	unsetEnv(t, "LOCK_BACKEND")
	unsetEnv(t, "LOCK_MYSQL_MAX_CONNS")
	unsetEnv(t, "LOCK_ACQUIRE_TIMEOUT_MS")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.Gateway.WebhookSecret != "sk_test_123" {
		t.Fatalf("expected webhook secret to default to gateway secret, got %q", cfg.Gateway.WebhookSecret)
	}
	if cfg.Gateway.VerifyTimeout != 30*time.Second {
		t.Fatalf("unexpected verify timeout: %v", cfg.Gateway.VerifyTimeout)
	}
	if cfg.Redis.Enabled() {
		t.Fatal("expected redis to be disabled without REDIS_ADDR")
	}
	if cfg.Locks.Backend != "mysql" {
		t.Fatalf("unexpected lock backend: %s", cfg.Locks.Backend)
	}
	if cfg.Locks.MySQLMaxConns != 10 || cfg.Locks.AcquireTimeout != 2*time.Second {
		t.Fatalf("unexpected lock pool config: %+v", cfg.Locks)
	}
}

func TestLoadOverrides(t *testing.T) {
	setEnv(t, "MYSQL_DSN", "root:root@tcp(localhost:3306)/ajo?parseTime=true")
	setEnv(t, "APP_SERVICE_NAME", "ajo-test")
	setEnv(t, "HTTP_PORT", "8181")
	setEnv(t, "GRPC_PORT", "9191")
	setEnv(t, "MYSQL_MAX_OPEN_CONNS", "30")
	setEnv(t, "MYSQL_MAX_IDLE_CONNS", "8")
	setEnv(t, "MYSQL_CONN_MAX_LIFETIME_MINUTES", "40")
	setEnv(t, "REDIS_ADDR", "localhost:6379")
	setEnv(t, "LOCK_BACKEND", "Redis")
	setEnv(t, "GATEWAY_BASE_URL", "http://gateway.local/")
	setEnv(t, "PAYMENTS_PENDING_TIMEOUT_MINUTES", "11")
	setEnv(t, "PAYMENTS_RECONCILE_STALE_AFTER_MINUTES", "13")
	setEnv(t, "PAYMENTS_JOB_BATCH_SIZE", "99")
	setEnv(t, "PAYMENTS_SYNC_LOCK_RETRY_DELAY_MS", "250")
	setEnv(t, "PAYMENTS_SERVICE_FEE_PERCENT", "2.5")
	setEnv(t, "NOTIFIER_POLL_MAX_ATTEMPTS", "7")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.App.ServiceName != "ajo-test" {
		t.Fatalf("unexpected app service name: %s", cfg.App.ServiceName)
	}
	if cfg.HTTP.Port != "8181" || cfg.GRPC.Port != "9191" {
		t.Fatalf("unexpected ports: http=%s grpc=%s", cfg.HTTP.Port, cfg.GRPC.Port)
	}
	if cfg.MySQL.MaxOpenConns != 30 || cfg.MySQL.MaxIdleConns != 8 {
		t.Fatalf("unexpected mysql pool config: %+v", cfg.MySQL)
	}
	if cfg.MySQL.ConnMaxLifetime != 40*time.Minute {
		t.Fatalf("unexpected mysql lifetime: %v", cfg.MySQL.ConnMaxLifetime)
	}
	if !cfg.Redis.Enabled() || cfg.Locks.Backend != "redis" {
		t.Fatalf("unexpected redis/lock config: %+v %+v", cfg.Redis, cfg.Locks)
	}
	if cfg.Gateway.BaseURL != "http://gateway.local" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Gateway.BaseURL)
	}
	if cfg.Payments.PendingTimeout != 11*time.Minute {
		t.Fatalf("unexpected pending timeout: %v", cfg.Payments.PendingTimeout)
	}
	if cfg.Payments.ReconcileStaleAfter != 13*time.Minute {
		t.Fatalf("unexpected reconcile stale after: %v", cfg.Payments.ReconcileStaleAfter)
	}
	if cfg.Payments.JobBatchSize != 99 {
		t.Fatalf("unexpected job batch size: %d", cfg.Payments.JobBatchSize)
	}
	if cfg.Payments.SyncLockRetryDelay != 250*time.Millisecond {
		t.Fatalf("unexpected sync lock retry delay: %v", cfg.Payments.SyncLockRetryDelay)
	}
	if cfg.Payments.ServiceFeePercent != "2.5" {
		t.Fatalf("unexpected service fee percent: %s", cfg.Payments.ServiceFeePercent)
	}
	if cfg.Notifier.PollMaxAttempts != 7 {
		t.Fatalf("unexpected poll max attempts: %d", cfg.Notifier.PollMaxAttempts)
	}
}
