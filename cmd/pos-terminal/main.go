package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/alebrije/pos/internal/app"
	"github.com/alebrije/pos/internal/version"
)

const (
	envGRPCAddr            = "POS_GRPC_ADDR"
	envMetricsAddr         = "POS_METRICS_ADDR"
	envStorageDriver       = "POS_STORAGE_DRIVER"
	envPostgresDSN         = "POS_POSTGRES_DSN"
	envPostgresAutoMigrate = "POS_POSTGRES_AUTO_MIGRATE"
	envAPIURL              = "POS_API_URL"
	envAPIURLFallback      = "EXPO_PUBLIC_API_URL"
	envAPITimeout          = "POS_API_TIMEOUT"
	envCSRFToken           = "POS_CSRF_TOKEN"
	envAppID               = "POS_APP_ID"
	envTerminalID          = "POS_TERMINAL_ID"
	envTimezone            = "POS_TIMEZONE"
	envMaxDrafts           = "POS_MAX_DRAFTS"
	envSnapshotQueue       = "POS_SNAPSHOT_QUEUE"
	envKafkaBrokers        = "KAFKA_BROKERS"
	envSaleTopic           = "POS_SALE_TOPIC"
	envOutboxPollInterval  = "POS_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize     = "POS_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts   = "POS_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay    = "POS_OUTBOX_RETRY_DELAY"
	envLogLevel            = "POS_LOG_LEVEL"
)

type envLookup func(key string) (string, bool)

// setupLogger настраивает формат и уровень логирования терминала.
func setupLogger(lookup envLookup) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	level := log.InfoLevel
	if raw, ok := lookup(envLogLevel); ok && strings.TrimSpace(raw) != "" {
		parsed, err := log.ParseLevel(strings.TrimSpace(raw))
		if err != nil {
			log.WithError(err).Warnf("invalid %s, using info", envLogLevel)
		} else {
			level = parsed
		}
	}
	log.SetLevel(level)
}

// readConfigFromEnv накладывает переменные окружения на DefaultConfig.
// Некорректные значения не прерывают запуск: остаётся значение по умолчанию,
// а причина попадает в warnings.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	var warnings []string
	warn := func(key, raw string, err error) {
		warnings = append(warnings, fmt.Sprintf("%s=%q: %v", key, raw, err))
	}

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	positiveInt := func(key string, dst *int) {
		raw, ok := lookup(key)
		if !ok || strings.TrimSpace(raw) == "" {
			return
		}
		v, err := parseInt(raw, func(v int) bool { return v > 0 }, "must be > 0")
		if err != nil {
			warn(key, raw, err)
			return
		}
		*dst = v
	}
	duration := func(key string, dst *time.Duration, valid func(time.Duration) bool, rule string) {
		raw, ok := lookup(key)
		if !ok || strings.TrimSpace(raw) == "" {
			return
		}
		v, err := parseDuration(raw, valid, rule)
		if err != nil {
			warn(key, raw, err)
			return
		}
		*dst = v
	}
	positive := func(v time.Duration) bool { return v > 0 }

	str(envGRPCAddr, &cfg.GRPCAddr)
	str(envMetricsAddr, &cfg.MetricsAddr)
	if v, ok := lookup(envStorageDriver); ok && strings.TrimSpace(v) != "" {
		cfg.StorageDriver = strings.ToLower(strings.TrimSpace(v))
	}
	str(envPostgresDSN, &cfg.PostgresDSN)
	if raw, ok := lookup(envPostgresAutoMigrate); ok && strings.TrimSpace(raw) != "" {
		if v, err := parseBool(raw); err != nil {
			warn(envPostgresAutoMigrate, raw, err)
		} else {
			cfg.PostgresAutoMigrate = v
		}
	}

	str(envAPIURLFallback, &cfg.APIURL)
	str(envAPIURL, &cfg.APIURL)
	duration(envAPITimeout, &cfg.APITimeout, positive, "must be > 0")
	str(envCSRFToken, &cfg.CSRFToken)
	str(envAppID, &cfg.AppID)
	str(envTerminalID, &cfg.TerminalID)
	str(envTimezone, &cfg.Timezone)
	positiveInt(envMaxDrafts, &cfg.MaxDrafts)
	positiveInt(envSnapshotQueue, &cfg.SnapshotQueue)

	str(envKafkaBrokers, &cfg.KafkaBrokers)
	str(envSaleTopic, &cfg.SaleTopic)
	duration(envOutboxPollInterval, &cfg.OutboxPollInterval, positive, "must be > 0")
	positiveInt(envOutboxBatchSize, &cfg.OutboxBatchSize)
	positiveInt(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts)
	duration(envOutboxRetryDelay, &cfg.OutboxRetryDelay, func(v time.Duration) bool { return v >= 0 }, "must be >= 0")

	return cfg, warnings
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value")
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if !valid(v) {
		return 0, errors.New(rule)
	}
	return v, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if !valid(v) {
		return 0, errors.New(rule)
	}
	return v, nil
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.WithError(err).Warn("failed to load .env")
	}
	setupLogger(os.LookupEnv)

	cfg, warnings := readConfigFromEnv(os.LookupEnv)
	for _, w := range warnings {
		log.Warnf("ignoring invalid setting %s", w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"grpc_addr":    cfg.GRPCAddr,
		"metrics_addr": cfg.MetricsAddr,
		"storage":      cfg.StorageDriver,
		"version":      version.String(),
	}).Info("запускаем POS терминал")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("терминал завершился с ошибкой")
	}

	log.Info("POS терминал остановлен")
}
