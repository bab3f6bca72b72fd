package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/marketplace/internal/service/payment/zalopay"
)

// StorageDriver — тип хранилища.
type StorageDriver string

const (
	StorageDriverMemory   StorageDriver = "memory"
	StorageDriverPostgres StorageDriver = "postgres"
)

// Config описывает настройки запуска сервиса маркетплейса.
type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       StorageDriver
	PostgresDSN         string
	PostgresAutoMigrate bool
	// SeedFile — JSON с domain.Catalog, загружается при старте.
	SeedFile string

	KafkaBrokers       []string
	KafkaClientID      string
	KafkaOrderTopic    string
	KafkaCallbackTopic string
	KafkaGroupID       string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
	OutboxMaxPending   int
	OutboxMaxAge       time.Duration

	IdempotencyTTL              time.Duration
	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int

	ZaloPay zalopay.Config

	ShutdownTimeout time.Duration
}

// DefaultConfig возвращает настройки для локального запуска.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:    ":8080",
		GRPCAddr:    ":50051",
		MetricsAddr: ":9090",

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,

		KafkaClientID:      "marketplace",
		KafkaOrderTopic:    kafka.TopicOrderEvents,
		KafkaCallbackTopic: kafka.TopicPaymentCallbacks,
		KafkaGroupID:       "marketplace-callbacks",

		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
		OutboxMaxAttempts:  3,
		OutboxRetryDelay:   200 * time.Millisecond,
		OutboxMaxPending:   1000,
		OutboxMaxAge:       5 * time.Minute,

		IdempotencyTTL:              24 * time.Hour,
		IdempotencyCleanupInterval:  time.Minute,
		IdempotencyCleanupBatchSize: 500,

		ZaloPay: zalopay.Config{
			Endpoint:    "https://sb-openapi.zalopay.vn/v2/create",
			HTTPTimeout: 10 * time.Second,
		},

		ShutdownTimeout: 5 * time.Second,
	}
}

// LoadConfig читает переменные окружения поверх DefaultConfig.
func LoadConfig() (Config, error) {
	return loadConfig(os.LookupEnv)
}

func loadConfig(lookup func(string) (string, bool)) (Config, error) {
	cfg := DefaultConfig()
	env := envReader{lookup: lookup}

	env.str("MARKETPLACE_HTTP_ADDR", &cfg.HTTPAddr)
	env.str("MARKETPLACE_GRPC_ADDR", &cfg.GRPCAddr)
	env.str("MARKETPLACE_METRICS_ADDR", &cfg.MetricsAddr)

	var driver string
	if env.str("MARKETPLACE_STORAGE_DRIVER", &driver) {
		cfg.StorageDriver = StorageDriver(strings.ToLower(driver))
	}
	env.str("MARKETPLACE_POSTGRES_DSN", &cfg.PostgresDSN)
	env.boolean("MARKETPLACE_POSTGRES_AUTO_MIGRATE", &cfg.PostgresAutoMigrate)
	env.str("MARKETPLACE_SEED_FILE", &cfg.SeedFile)

	var brokers string
	if env.str("MARKETPLACE_KAFKA_BROKERS", &brokers) {
		cfg.KafkaBrokers = splitList(brokers)
	}
	env.str("MARKETPLACE_KAFKA_CLIENT_ID", &cfg.KafkaClientID)
	env.str("MARKETPLACE_KAFKA_ORDER_TOPIC", &cfg.KafkaOrderTopic)
	env.str("MARKETPLACE_KAFKA_CALLBACK_TOPIC", &cfg.KafkaCallbackTopic)
	env.str("MARKETPLACE_KAFKA_GROUP_ID", &cfg.KafkaGroupID)

	env.duration("MARKETPLACE_OUTBOX_POLL_INTERVAL", &cfg.OutboxPollInterval)
	env.integer("MARKETPLACE_OUTBOX_BATCH_SIZE", &cfg.OutboxBatchSize)
	env.integer("MARKETPLACE_OUTBOX_MAX_ATTEMPTS", &cfg.OutboxMaxAttempts)
	env.duration("MARKETPLACE_OUTBOX_RETRY_DELAY", &cfg.OutboxRetryDelay)
	env.integer("MARKETPLACE_OUTBOX_MAX_PENDING", &cfg.OutboxMaxPending)
	env.duration("MARKETPLACE_OUTBOX_MAX_AGE", &cfg.OutboxMaxAge)

	env.duration("MARKETPLACE_IDEMPOTENCY_TTL", &cfg.IdempotencyTTL)
	env.duration("MARKETPLACE_IDEMPOTENCY_CLEANUP_INTERVAL", &cfg.IdempotencyCleanupInterval)
	env.integer("MARKETPLACE_IDEMPOTENCY_CLEANUP_BATCH_SIZE", &cfg.IdempotencyCleanupBatchSize)

	env.str("ZALOPAY_APP_ID", &cfg.ZaloPay.AppID)
	env.str("ZALOPAY_KEY1", &cfg.ZaloPay.Key1)
	env.str("ZALOPAY_KEY2", &cfg.ZaloPay.Key2)
	env.str("ZALOPAY_API_URL", &cfg.ZaloPay.Endpoint)
	env.str("ZALOPAY_RETURN_URL", &cfg.ZaloPay.RedirectURL)
	env.str("ZALOPAY_NGROK_URL", &cfg.ZaloPay.CallbackBaseURL)

	env.duration("MARKETPLACE_SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout)

	if err := errors.Join(env.errs...); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.HTTPAddr) == "" {
		errs = append(errs, errors.New("http addr is required"))
	}
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New("MARKETPLACE_POSTGRES_DSN is required for postgres storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}

	if len(c.KafkaBrokers) > 0 {
		if c.KafkaOrderTopic == "" {
			errs = append(errs, errors.New("kafka order topic is required"))
		}
		if c.KafkaGroupID == "" {
			errs = append(errs, errors.New("kafka group id is required"))
		}
	}

	if c.OutboxPollInterval <= 0 {
		errs = append(errs, errors.New("outbox poll interval must be positive"))
	}
	if c.OutboxBatchSize <= 0 {
		errs = append(errs, errors.New("outbox batch size must be positive"))
	}
	if c.OutboxMaxAttempts <= 0 {
		errs = append(errs, errors.New("outbox max attempts must be positive"))
	}
	if c.OutboxRetryDelay < 0 {
		errs = append(errs, errors.New("outbox retry delay must not be negative"))
	}
	if c.IdempotencyTTL <= 0 {
		errs = append(errs, errors.New("idempotency ttl must be positive"))
	}
	if c.IdempotencyCleanupInterval <= 0 {
		errs = append(errs, errors.New("idempotency cleanup interval must be positive"))
	}
	if c.IdempotencyCleanupBatchSize <= 0 {
		errs = append(errs, errors.New("idempotency cleanup batch size must be positive"))
	}

	if c.ZaloPayEnabled() {
		if err := c.ZaloPay.Validate(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// ZaloPayEnabled сообщает, что задан хотя бы один ключ приложения ZaloPay.
func (c Config) ZaloPayEnabled() bool {
	return c.ZaloPay.AppID != "" || c.ZaloPay.Key1 != "" || c.ZaloPay.Key2 != ""
}

// KafkaEnabled сообщает, что заданы брокеры.
func (c Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

type envReader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *envReader) str(name string, dst *string) bool {
	v, ok := e.lookup(name)
	v = strings.TrimSpace(v)
	if !ok || v == "" {
		return false
	}
	*dst = v
	return true
}

func (e *envReader) integer(name string, dst *int) {
	var raw string
	if !e.str(name, &raw) {
		return
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid integer %q", name, raw))
		return
	}
	*dst = v
}

func (e *envReader) duration(name string, dst *time.Duration) {
	var raw string
	if !e.str(name, &raw) {
		return
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid duration %q", name, raw))
		return
	}
	*dst = v
}

func (e *envReader) boolean(name string, dst *bool) {
	var raw string
	if !e.str(name, &raw) {
		return
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid boolean %q", name, raw))
		return
	}
	*dst = v
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
