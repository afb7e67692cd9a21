package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Index backends
const (
	BackendMemory   = "memory"
	BackendDynamoDB = "dynamodb"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerAddress   string        `yaml:"server_address"`
	Environment     string        `yaml:"environment"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// AWS configuration
	AWSRegion     string `yaml:"aws_region"`
	AWSEndpoint   string `yaml:"aws_endpoint"` // LocalStack or MinIO
	DynamoDBTable string `yaml:"table_name"`
	EventBusName  string `yaml:"event_bus_name"`

	// Read index
	IndexBackend    string        `yaml:"index_backend"`
	PointerCacheTTL time.Duration `yaml:"pointer_cache_ttl"`
	QueryCacheTTL   int           `yaml:"query_cache_ttl"` // seconds, 0 disables

	// Fact store and rebuild
	SQLitePath       string        `yaml:"sqlite_path"`
	SnapshotLocation string        `yaml:"snapshot_location"` // directory or s3://bucket/prefix
	S3PathStyle      bool          `yaml:"s3_path_style"`
	LockTTL          time.Duration `yaml:"lock_ttl"`
	LockTimeout      time.Duration `yaml:"lock_timeout"`

	// Lambda configuration
	IsLambda           bool   `yaml:"is_lambda"`
	LambdaFunctionName string `yaml:"-"`

	// Logging
	LogLevel string `yaml:"log_level"`

	// Observability
	MetricsNamespace string `yaml:"metrics_namespace"`

	// Feature flags
	EnableMetrics bool     `yaml:"enable_metrics"`
	EnableTracing bool     `yaml:"enable_tracing"`
	EnableCORS    bool     `yaml:"enable_cors"`
	EnableBreaker bool     `yaml:"enable_breaker"`
	CORSOrigins   []string `yaml:"cors_origins"`

	// RateLimitPerMinute caps requests per client IP, 0 disables
	RateLimitPerMinute int `yaml:"rate_limit_per_minute"`
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	return &Config{
		ServerAddress:   ":8080",
		Environment:     "development",
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 30 * time.Second,

		AWSRegion:     "us-east-1",
		DynamoDBTable: "Commodities",

		IndexBackend:    BackendMemory,
		PointerCacheTTL: 5 * time.Second,
		QueryCacheTTL:   60,

		SQLitePath:  "commodities.db",
		LockTTL:     15 * time.Minute,
		LockTimeout: 30 * time.Second,

		LogLevel:         "info",
		MetricsNamespace: "Commodities",
		EnableCORS:       true,
		CORSOrigins:      []string{"*"},
	}
}

// LoadConfig layers defaults, the optional YAML file named by CONFIG_FILE,
// then environment variables
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	// Validate required configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load is an alias for LoadConfig
func Load() (*Config, error) {
	return LoadConfig()
}

// LoadFile overlays a YAML file onto the configuration
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.ServerAddress = getEnv("SERVER_ADDRESS", c.ServerAddress)
	c.Environment = getEnv("ENVIRONMENT", c.Environment)
	c.ReadTimeout = getEnvDuration("READ_TIMEOUT", c.ReadTimeout)
	c.WriteTimeout = getEnvDuration("WRITE_TIMEOUT", c.WriteTimeout)
	c.IdleTimeout = getEnvDuration("IDLE_TIMEOUT", c.IdleTimeout)
	c.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", c.ShutdownTimeout)

	c.AWSRegion = getEnv("AWS_REGION", c.AWSRegion)
	c.AWSEndpoint = getEnv("AWS_ENDPOINT_URL", c.AWSEndpoint)
	c.DynamoDBTable = getEnv("TABLE_NAME", getEnv("DYNAMODB_TABLE", c.DynamoDBTable))
	c.EventBusName = getEnv("EVENT_BUS_NAME", c.EventBusName)

	c.IndexBackend = strings.ToLower(getEnv("INDEX_BACKEND", c.IndexBackend))
	c.PointerCacheTTL = getEnvDuration("POINTER_CACHE_TTL", c.PointerCacheTTL)
	c.QueryCacheTTL = getEnvInt("CACHE_TTL", c.QueryCacheTTL)

	c.SQLitePath = getEnv("SQLITE_PATH", c.SQLitePath)
	c.SnapshotLocation = getEnv("SNAPSHOT_LOCATION", c.SnapshotLocation)
	c.S3PathStyle = getEnvBool("S3_PATH_STYLE", c.S3PathStyle)
	c.LockTTL = getEnvDuration("LOCK_TTL", c.LockTTL)
	c.LockTimeout = getEnvDuration("LOCK_TIMEOUT", c.LockTimeout)

	c.LambdaFunctionName = getEnv("AWS_LAMBDA_FUNCTION_NAME", c.LambdaFunctionName)
	c.IsLambda = getEnvBool("IS_LAMBDA", c.IsLambda || c.LambdaFunctionName != "")

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.MetricsNamespace = getEnv("METRICS_NAMESPACE", c.MetricsNamespace)
	c.EnableMetrics = getEnvBool("ENABLE_METRICS", c.EnableMetrics)
	c.EnableTracing = getEnvBool("ENABLE_TRACING", c.EnableTracing)
	c.EnableCORS = getEnvBool("ENABLE_CORS", c.EnableCORS)
	c.EnableBreaker = getEnvBool("ENABLE_BREAKER", c.EnableBreaker)
	c.RateLimitPerMinute = getEnvInt("RATE_LIMIT_PER_MINUTE", c.RateLimitPerMinute)
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		c.CORSOrigins = strings.Split(origins, ",")
	}
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	switch c.IndexBackend {
	case BackendMemory, BackendDynamoDB:
	default:
		return fmt.Errorf("INDEX_BACKEND must be %q or %q, got %q", BackendMemory, BackendDynamoDB, c.IndexBackend)
	}
	if c.IndexBackend == BackendDynamoDB && c.DynamoDBTable == "" {
		return fmt.Errorf("TABLE_NAME is required for the dynamodb backend")
	}
	if c.RateLimitPerMinute < 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must not be negative")
	}
	if c.QueryCacheTTL < 0 {
		return fmt.Errorf("CACHE_TTL must not be negative")
	}
	if c.IsProduction() && c.IndexBackend == BackendMemory && c.SnapshotLocation == "" {
		return fmt.Errorf("SNAPSHOT_LOCATION is required for the memory backend in production")
	}
	return nil
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("5s") or whole seconds
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
