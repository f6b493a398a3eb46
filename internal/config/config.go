package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Store drivers
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

// Reading decrease policies
const (
	// PolicyRollover treats a lower reading as a counter reset
	PolicyRollover = "rollover"
	// PolicyReject refuses a lower reading as a data-entry error
	PolicyReject = "reject"
)

// Config holds all application configuration
type Config struct {
	ServiceName string
	ServicePort int
	LogLevel    string
	Store       StoreConfig
	Database    DatabaseConfig
	Mongo       MongoConfig
	Redis       RedisConfig
	Lock        LockConfig
	RabbitMQ    RabbitMQConfig
	Billing     BillingConfig
	Validation  ValidationConfig
	Anomaly     AnomalyConfig
}

// StoreConfig selects the persistence backend
type StoreConfig struct {
	Driver string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL string
}

// MongoConfig holds MongoDB connection settings
type MongoConfig struct {
	URI          string
	Database     string
	Transactions bool
}

// RedisConfig holds Redis connection settings; an empty Addr disables Redis
type RedisConfig struct {
	Addr     string
	Password string
}

// LockConfig holds per-meter lock settings
type LockConfig struct {
	TTLSeconds  int
	WaitSeconds int
}

// RabbitMQConfig holds RabbitMQ connection and queue settings
type RabbitMQConfig struct {
	URL                  string
	CommandExchange      string
	CommandQueue         string
	CommandRoutingKey    string
	EventsExchange       string
	RegisteredRoutingKey string
	RecordedRoutingKey   string
	DLQQueue             string
	PrefetchCount        int
}

// BillingConfig holds tariffs, rollover ceilings and the decrease policy
type BillingConfig struct {
	Tariffs        Rates  `yaml:"tariffs"`
	ResetValues    Rates  `yaml:"reset_values"`
	DecreasePolicy string `yaml:"decrease_policy"`
}

// Rates holds a day and night value
type Rates struct {
	Day   float64 `yaml:"day"`
	Night float64 `yaml:"night"`
}

// ValidationConfig holds validation settings
type ValidationConfig struct {
	TimestampToleranceMinutes int
}

// AnomalyConfig holds anomaly detection settings
type AnomalyConfig struct {
	SpikeThreshold            float64
	MinDataPointsForDetection int
}

// DefaultBilling is used when neither the tariff file nor the environment set a value
var DefaultBilling = BillingConfig{
	Tariffs:        Rates{Day: 4.32, Night: 2.16},
	ResetValues:    Rates{Day: 100000, Night: 100000},
	DecreasePolicy: PolicyRollover,
}

// Load loads configuration from environment variables, with billing values
// optionally read from the YAML file named by TARIFF_CONFIG_FILE
func Load() (*Config, error) {
	billing, err := loadBilling(os.Getenv("TARIFF_CONFIG_FILE"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "electricity-billing"),
		ServicePort: getEnvAsInt("SERVICE_PORT", 8081),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Store: StoreConfig{
			Driver: strings.ToLower(getEnv("STORE_DRIVER", DriverPostgres)),
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		Mongo: MongoConfig{
			URI:          getEnv("MONGO_URI", ""),
			Database:     getEnv("MONGO_DATABASE", "electricity_billing"),
			Transactions: getEnvAsBool("MONGO_TRANSACTIONS", true),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
		},
		Lock: LockConfig{
			TTLSeconds:  getEnvAsInt("LOCK_TTL_SECONDS", 30),
			WaitSeconds: getEnvAsInt("LOCK_WAIT_SECONDS", 10),
		},
		RabbitMQ: RabbitMQConfig{
			URL:                  getEnv("RABBITMQ_URL", ""),
			CommandExchange:      getEnv("RABBITMQ_COMMAND_EXCHANGE", "electricity-billing.commands.exchange"),
			CommandQueue:         getEnv("RABBITMQ_COMMAND_QUEUE", "electricity-billing.commands.queue"),
			CommandRoutingKey:    getEnv("RABBITMQ_COMMAND_ROUTING_KEY", "meter.command.#"),
			EventsExchange:       getEnv("RABBITMQ_EVENTS_EXCHANGE", "electricity-billing.events.exchange"),
			RegisteredRoutingKey: getEnv("RABBITMQ_REGISTERED_ROUTING_KEY", "meter.registered"),
			RecordedRoutingKey:   getEnv("RABBITMQ_RECORDED_ROUTING_KEY", "billing.record.created"),
			DLQQueue:             getEnv("RABBITMQ_DLQ_QUEUE", "electricity-billing.commands.dlq"),
			PrefetchCount:        getEnvAsInt("RABBITMQ_PREFETCH", 10),
		},
		Billing: BillingConfig{
			Tariffs: Rates{
				Day:   getEnvAsFloat("TARIFF_DAY", billing.Tariffs.Day),
				Night: getEnvAsFloat("TARIFF_NIGHT", billing.Tariffs.Night),
			},
			ResetValues: Rates{
				Day:   getEnvAsFloat("RESET_VALUE_DAY", billing.ResetValues.Day),
				Night: getEnvAsFloat("RESET_VALUE_NIGHT", billing.ResetValues.Night),
			},
			DecreasePolicy: strings.ToLower(getEnv("READING_DECREASE_POLICY", billing.DecreasePolicy)),
		},
		Validation: ValidationConfig{
			TimestampToleranceMinutes: getEnvAsInt("VALIDATION_TIMESTAMP_TOLERANCE_MINUTES", 10080),
		},
		Anomaly: AnomalyConfig{
			SpikeThreshold:            getEnvAsFloat("ANOMALY_SPIKE_THRESHOLD", 3.0),
			MinDataPointsForDetection: getEnvAsInt("ANOMALY_MIN_DATA_POINTS", 3),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case DriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=%s", DriverPostgres)
		}
	case DriverMongo:
		if c.Mongo.URI == "" {
			return fmt.Errorf("MONGO_URI is required when STORE_DRIVER=%s", DriverMongo)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q (expected %s, %s or %s)",
			c.Store.Driver, DriverPostgres, DriverMongo, DriverMemory)
	}

	switch c.Billing.DecreasePolicy {
	case PolicyRollover, PolicyReject:
	default:
		return fmt.Errorf("unknown READING_DECREASE_POLICY %q (expected %s or %s)",
			c.Billing.DecreasePolicy, PolicyRollover, PolicyReject)
	}

	tariffs := map[string]float64{
		"TARIFF_DAY":   c.Billing.Tariffs.Day,
		"TARIFF_NIGHT": c.Billing.Tariffs.Night,
	}
	for name, value := range tariffs {
		if err := checkFinite(name, value); err != nil {
			return err
		}
		if value < 0 {
			return fmt.Errorf("%s must not be negative, got %v", name, value)
		}
	}

	resetValues := map[string]float64{
		"RESET_VALUE_DAY":   c.Billing.ResetValues.Day,
		"RESET_VALUE_NIGHT": c.Billing.ResetValues.Night,
	}
	for name, value := range resetValues {
		if err := checkFinite(name, value); err != nil {
			return err
		}
		if value <= 0 {
			return fmt.Errorf("%s must be positive, got %v", name, value)
		}
	}

	return nil
}

func checkFinite(name string, value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("%s must be a finite number, got %v", name, value)
	}
	return nil
}

// RequireRabbitMQ checks the settings only the worker needs
func (c *Config) RequireRabbitMQ() error {
	if c.RabbitMQ.URL == "" {
		return fmt.Errorf("RABBITMQ_URL is required but not set in environment variables")
	}
	return nil
}

func loadBilling(path string) (BillingConfig, error) {
	billing := DefaultBilling
	if path == "" {
		return billing, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return billing, fmt.Errorf("failed to read tariff config %s: %w", path, err)
	}

	// unset keys keep their defaults
	if err := yaml.Unmarshal(data, &billing); err != nil {
		return billing, fmt.Errorf("failed to decode tariff config %s: %w", path, err)
	}

	return billing, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
