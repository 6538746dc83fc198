package app

import (
	"time"

	"github.com/alebrije/pos/internal/draft"
)

// Драйверы хранилища снимков, токена и outbox.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// DefaultAPIURL: адрес backend по умолчанию для локальной разработки.
const DefaultAPIURL = "http://localhost:4000/api"

// Config описывает настройки запуска терминала.
type Config struct {
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	APIURL     string
	APITimeout time.Duration
	CSRFToken  string
	AppID      string
	TerminalID string
	Timezone   string

	MaxDrafts     int
	SnapshotQueue int

	KafkaBrokers       string
	SaleTopic          string
	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
}

// DefaultConfig возвращает настройки для запуска на одной машине без Kafka.
func DefaultConfig() Config {
	return Config{
		GRPCAddr:            ":50051",
		MetricsAddr:         ":9090",
		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		APIURL:              DefaultAPIURL,
		APITimeout:          15 * time.Second,
		TerminalID:          "pos-1",
		MaxDrafts:           draft.DefaultMaxDrafts,
		SnapshotQueue:       256,
		OutboxPollInterval:  2 * time.Second,
		OutboxBatchSize:     50,
		OutboxMaxAttempts:   3,
		OutboxRetryDelay:    100 * time.Millisecond,
	}
}

// location возвращает часовой пояс для фильтра истории; пустое значение: локальный пояс.
func (c Config) location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}
