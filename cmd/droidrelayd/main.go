package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"DroidRelay/internal/api"
	"DroidRelay/internal/bootstrap"
	"DroidRelay/internal/config"
	"DroidRelay/internal/crypto"
	"DroidRelay/internal/droid"
	xerrors "DroidRelay/internal/errors"
	"DroidRelay/internal/events"
	"DroidRelay/internal/observability/alerting"
	"DroidRelay/internal/observability/metrics"
	"DroidRelay/internal/storage/mysql"
	redisstore "DroidRelay/internal/storage/redis"
	"DroidRelay/pkg/logger"
)

// main 是 DroidRelay 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("droidrelayd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.Audit.Enabled,
			Path:       cfg.Logging.Audit.Path,
			MaxSizeMB:  cfg.Logging.Audit.MaxSizeMB,
			MaxBackups: cfg.Logging.Audit.MaxBackups,
			MaxAgeDays: cfg.Logging.Audit.MaxAgeDays,
		},
	}); err != nil {
		return err
	}
	defer logger.Sync()

	log := logger.Named("droidrelayd")
	log.Info("configuration loaded", "summary", cfg.String())

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("close account store failed", xerrors.LogAttrs(err)...)
		}
	}()

	publisher, err := openPublisher(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Warn("close event publisher failed", xerrors.LogAttrs(err)...)
		}
	}()

	opts := []droid.Option{droid.WithPublisher(publisher)}
	if cfg.Crypto.EncryptionKey != "" {
		cipher, err := crypto.NewAESCipher(cfg.Crypto.EncryptionKey, cfg.Crypto.Salt)
		if err != nil {
			return err
		}
		opts = append(opts, droid.WithCipher(cipher))
	} else {
		log.Warn("no encryption key configured, droid credentials are stored unencrypted")
	}

	accounts, err := droid.NewService(store, opts...)
	if err != nil {
		return err
	}

	loaded, err := bootstrap.LoadEnvFile(cfg.Bootstrap.EnvFile)
	if err != nil {
		log.Warn("load env file failed", "path", cfg.Bootstrap.EnvFile, "error", err)
	} else if loaded {
		log.Info("env file loaded", "path", cfg.Bootstrap.EnvFile)
	}

	// 引导失败只记录日志与告警，不阻止服务启动。
	result := bootstrap.New(accounts, bootstrap.WithTimeout(cfg.Bootstrap.Timeout())).Initialize(ctx)
	metrics.Default().ObserveBootstrap(string(result.Outcome))
	if result.Outcome == bootstrap.OutcomeFailed {
		event := alerting.FromError("bootstrap", result.Err)
		event.AccountName = result.AccountName
		if err := newDispatcher(cfg).Notify(ctx, event); err != nil {
			log.Warn("dispatch bootstrap alert failed", "error", err)
		}
	}

	server := api.NewServer(cfg.Server.Address, accounts)
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (droid.Store, error) {
	switch cfg.Storage.Driver {
	case "memory":
		return droid.NewMemoryStore(), nil
	case "mysql":
		return mysql.NewAccountStore(ctx, mysql.Config{
			DSN:             cfg.Storage.MySQL.DSN,
			MaxOpenConns:    cfg.Storage.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.Storage.MySQL.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.Storage.MySQL.ConnMaxLifetimeSeconds) * time.Second,
			ConnMaxIdleTime: time.Duration(cfg.Storage.MySQL.ConnMaxIdleTimeSeconds) * time.Second,
		})
	case "redis":
		return redisstore.NewAccountStore(ctx, redisstore.Config{
			Address:   cfg.Storage.Redis.Address,
			Password:  cfg.Storage.Redis.Password,
			DB:        cfg.Storage.Redis.DB,
			KeyPrefix: cfg.Storage.Redis.KeyPrefix,
		})
	default:
		return nil, fmt.Errorf("未知的存储驱动: %s", cfg.Storage.Driver)
	}
}

func openPublisher(cfg *config.Config) (events.Publisher, error) {
	switch cfg.Events.Driver {
	case "none":
		return events.NopPublisher{}, nil
	case "rabbitmq":
		return events.NewRabbitMQPublisher(events.RabbitMQConfig{
			URL:      cfg.Events.RabbitMQ.URL,
			Exchange: cfg.Events.RabbitMQ.Exchange,
			Durable:  cfg.Events.RabbitMQ.Durable,
			Timeout:  cfg.Events.RabbitMQ.Timeout(),
		})
	default:
		return nil, fmt.Errorf("未知的事件驱动: %s", cfg.Events.Driver)
	}
}

func newDispatcher(cfg *config.Config) alerting.Dispatcher {
	notifiers := []alerting.Notifier{&alerting.LogNotifier{}}
	if cfg.Alerting.WebhookURL != "" {
		notifiers = append(notifiers, &alerting.WebhookNotifier{
			URL:    cfg.Alerting.WebhookURL,
			Client: &http.Client{Timeout: cfg.Alerting.Timeout()},
		})
	}
	return alerting.NewFanout(notifiers...)
}
