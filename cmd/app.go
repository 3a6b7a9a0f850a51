package cmd

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-ajo/app/lock"
	"github.com/vibast-solutions/ms-go-ajo/app/metrics"
	"github.com/vibast-solutions/ms-go-ajo/app/notifier"
	"github.com/vibast-solutions/ms-go-ajo/app/provider"
	"github.com/vibast-solutions/ms-go-ajo/app/repository"
	"github.com/vibast-solutions/ms-go-ajo/app/service"
	"github.com/vibast-solutions/ms-go-ajo/config"
)

// application holds everything the serve and job commands share.
type application struct {
	cfg      *config.Config
	db       *sql.DB
	redis    *redis.Client
	broker   notifier.Broker
	registry *prometheus.Registry
	groups   *service.GroupService
	payments *service.PaymentService
}

func mustLoadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}
	return cfg
}

func mustOpenDB(cfg *config.Config) *sql.DB {
	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		logrus.WithError(err).Fatal("Failed to ping database")
	}
	return db
}

func mustOpenRedis(cfg *config.Config) *redis.Client {
	if !cfg.Redis.Enabled() {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		logrus.WithError(err).Fatal("Failed to ping redis")
	}
	return client
}

// newLocker returns the payment locker and a cleanup for anything it opened.
func newLocker(cfg *config.Config, client *redis.Client) (lock.Locker, func()) {
	switch cfg.Locks.Backend {
	case "redis":
		if client == nil {
			logrus.Fatal("LOCK_BACKEND=redis requires REDIS_ADDR")
		}
		return lock.NewRedisLocker(client, cfg.Locks.TTL), func() {}
	case "memory":
		logrus.Warn("Using in-process payment locks; only safe with a single instance")
		return lock.NewMemoryLocker(), func() {}
	case "mysql", "":
		lockDB := mustOpenLockDB(cfg)
		return lock.NewMySQLLocker(lockDB, cfg.Locks.AcquireTimeout), func() {
			if err := lockDB.Close(); err != nil {
				logrus.WithError(err).Warn("Failed to close lock database")
			}
		}
	default:
		logrus.WithField("backend", cfg.Locks.Backend).Fatal("Unknown lock backend")
		return nil, nil
	}
}

// mustOpenLockDB opens the pool that holds GET_LOCK sessions. A held lock pins
// one of its connections while the work under it draws from the main pool.
func mustOpenLockDB(cfg *config.Config) *sql.DB {
	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to lock database")
	}

	db.SetMaxOpenConns(cfg.Locks.MySQLMaxConns)
	db.SetMaxIdleConns(cfg.Locks.MySQLMaxConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		logrus.WithError(err).Fatal("Failed to ping lock database")
	}
	return db
}

func newBroker(cfg *config.Config, client *redis.Client) notifier.Broker {
	if client == nil {
		return notifier.NewLocalBroker()
	}
	return notifier.NewRedisBroker(client, cfg.Notifier.Channel)
}

func newStores(db *sql.DB) service.Stores {
	return service.Stores{
		Tx:              repository.NewTxManager(db),
		Payments:        repository.NewPaymentRepository(db),
		PaymentEvents:   repository.NewPaymentEventRepository(db),
		Callbacks:       repository.NewPaymentCallbackRepository(db),
		Groups:          repository.NewGroupRepository(db),
		Slots:           repository.NewPayoutSlotRepository(db),
		JoinRequests:    repository.NewJoinRequestRepository(db),
		Memberships:     repository.NewMembershipRepository(db),
		Cycles:          repository.NewCycleRepository(db),
		Contributions:   repository.NewContributionRepository(db),
		Transactions:    repository.NewTransactionRepository(db),
		Audit:           repository.NewAuditRepository(db),
		Reconciliations: repository.NewReconciliationRepository(db),
	}
}

func mustCreateApp() (*application, func()) {
	cfg := mustLoadConfig()
	db := mustOpenDB(cfg)
	redisClient := mustOpenRedis(cfg)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	stores := newStores(db)
	broker := newBroker(cfg, redisClient)

	gateways := provider.NewRegistry(provider.NewPaystackGateway(provider.PaystackConfig{
		BaseURL:       cfg.Gateway.BaseURL,
		SecretKey:     cfg.Gateway.SecretKey,
		PublicKey:     cfg.Gateway.PublicKey,
		WebhookSecret: cfg.Gateway.WebhookSecret,
		VerifyTimeout: cfg.Gateway.VerifyTimeout,
	}))

	locker, closeLocker := newLocker(cfg, redisClient)
	processor := service.NewProcessor(stores, collector)
	paymentService := service.NewPaymentService(
		stores,
		processor,
		gateways,
		lock.NewManager(locker),
		broker,
		collector,
		cfg.Payments,
	)

	app := &application{
		cfg:      cfg,
		db:       db,
		redis:    redisClient,
		broker:   broker,
		registry: registry,
		groups:   service.NewGroupService(stores, cfg.Payments),
		payments: paymentService,
	}

	cleanup := func() {
		if err := broker.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close notifier broker")
		}
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logrus.WithError(err).Warn("Failed to close redis")
			}
		}
		closeLocker()
		if err := db.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close database")
		}
	}

	return app, cleanup
}
