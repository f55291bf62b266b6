package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store drivers
const (
	StoreDriverMemory   = "memory"
	StoreDriverPostgres = "postgres"
)

// BaseConfig holds base configuration
type BaseConfig struct {
	Debug     bool   `mapstructure:"debug"`
	SentryDSN string `mapstructure:"sentry_dsn"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`     // Maximum number of open connections to the database
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`     // Maximum number of idle connections in the pool
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`  // e.g. "5m", "1h"
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"` // e.g. "10m", "30m"
}

// StoreConfig selects the listing store backend
type StoreConfig struct {
	Driver       string `mapstructure:"driver"`
	SeedExamples bool   `mapstructure:"seed_examples"`
}

// NATSConfig holds NATS JetStream configuration.
// An empty URL disables NATS.
type NATSConfig struct {
	URL             string        `mapstructure:"url"`
	StreamName      string        `mapstructure:"stream_name"`
	SubjectPrefix   string        `mapstructure:"subject_prefix"`
	MaxReconnects   int           `mapstructure:"max_reconnects"`
	ReconnectWait   time.Duration `mapstructure:"reconnect_wait"`
	ConnectionName  string        `mapstructure:"connection_name"`
	PublishAttempts uint64        `mapstructure:"publish_attempts"`
}

// EventsConfig holds listing event fan-out configuration
type EventsConfig struct {
	PoolSize          int           `mapstructure:"pool_size"`
	QueueSize         int           `mapstructure:"queue_size"`
	SubscriberBuffer  int           `mapstructure:"subscriber_buffer"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
}

// LedgerConfig holds the ledger JSON-RPC configuration.
// An empty RPCURL leaves the ledger unavailable.
type LedgerConfig struct {
	RPCURL            string        `mapstructure:"rpc_url"`
	ConfirmPurchases  bool          `mapstructure:"confirm_purchases"`
	Timeout           time.Duration `mapstructure:"timeout"`
	StatusTTL         time.Duration `mapstructure:"status_ttl"`
	StatusStaleWindow time.Duration `mapstructure:"status_stale_window"`
}

// VerificationConfig holds KYC configuration
type VerificationConfig struct {
	Required bool          `mapstructure:"required"`
	Delay    time.Duration `mapstructure:"delay"`
}

// PricingConfig holds USD reference prices keyed by token symbol
type PricingConfig struct {
	Prices map[string]string `mapstructure:"prices"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string   `mapstructure:"host"`
	Port         int      `mapstructure:"port"`
	ReadTimeout  int      `mapstructure:"read_timeout"`  // seconds
	WriteTimeout int      `mapstructure:"write_timeout"` // seconds, 0 keeps event streams open
	IdleTimeout  int      `mapstructure:"idle_timeout"`  // seconds
	CORSOrigins  []string `mapstructure:"cors_origins"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTPublicKey string   `mapstructure:"jwt_public_key"`
	APIKeys      []string `mapstructure:"api_keys"`
}

// APIConfig holds configuration for the marketplace API server
type APIConfig struct {
	BaseConfig   `mapstructure:",squash"`
	Server       ServerConfig       `mapstructure:"server"`
	Store        StoreConfig        `mapstructure:"store"`
	Database     DatabaseConfig     `mapstructure:"database"`
	NATS         NATSConfig         `mapstructure:"nats"`
	Events       EventsConfig       `mapstructure:"events"`
	Ledger       LedgerConfig       `mapstructure:"ledger"`
	Verification VerificationConfig `mapstructure:"verification"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Pricing      PricingConfig      `mapstructure:"pricing"`
}

// DemoConfig drives the optional scripted actor run of the watcher
type DemoConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListingID  uint64 `mapstructure:"listing_id"`
	CancelOnly bool   `mapstructure:"cancel_only"`
}

// WatcherConfig holds configuration for marketplace-watcher
type WatcherConfig struct {
	BaseConfig     `mapstructure:",squash"`
	APIURL         string        `mapstructure:"api_url"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	HTTPTimeout    time.Duration `mapstructure:"http_timeout"`
	WalletAddress  string        `mapstructure:"wallet_address"`
	ExcludeCreator string        `mapstructure:"exclude_creator"`
	// NATS, when its URL is set, triggers a refresh on every listing event
	NATS NATSConfig `mapstructure:"nats"`
	Demo DemoConfig `mapstructure:"demo"`
}

// LoadAPIConfig loads configuration for the API server
func LoadAPIConfig(configFile string, envPath string) (*APIConfig, error) {
	v := configureViper("api", configFile, envPath)

	// Set defaults
	v.SetDefault("debug", false)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 0)
	v.SetDefault("server.idle_timeout", 120)
	v.SetDefault("store.driver", StoreDriverMemory)
	v.SetDefault("store.seed_examples", true)
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("nats.stream_name", "LISTINGS")
	v.SetDefault("nats.subject_prefix", "listings")
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("nats.connection_name", "novasettle-api")
	v.SetDefault("nats.publish_attempts", 3)
	v.SetDefault("events.pool_size", 4)
	v.SetDefault("events.queue_size", 256)
	v.SetDefault("events.subscriber_buffer", 32)
	v.SetDefault("events.heartbeat_interval", "15s")
	v.SetDefault("ledger.confirm_purchases", false)
	v.SetDefault("ledger.timeout", "10s")
	v.SetDefault("ledger.status_ttl", "2s")
	v.SetDefault("ledger.status_stale_window", "30s")
	v.SetDefault("verification.required", true)
	v.SetDefault("verification.delay", "1500ms")

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var config APIConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	switch config.Store.Driver {
	case StoreDriverMemory, StoreDriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported store driver %q", config.Store.Driver)
	}

	return &config, nil
}

// LoadWatcherConfig loads configuration for marketplace-watcher
func LoadWatcherConfig(configFile string, envPath string) (*WatcherConfig, error) {
	v := configureViper("marketplace-watcher", configFile, envPath)

	v.SetDefault("debug", false)
	v.SetDefault("api_url", "http://localhost:8080")
	v.SetDefault("poll_interval", "3s")
	v.SetDefault("http_timeout", "10s")
	v.SetDefault("nats.stream_name", "LISTINGS")
	v.SetDefault("nats.subject_prefix", "listings")
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("nats.connection_name", "marketplace-watcher")
	v.SetDefault("demo.enabled", false)

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg WatcherConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Demo.Enabled && cfg.WalletAddress == "" {
		return nil, errors.New("demo requires wallet_address")
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// Config file not found, use environment variables
			return nil
		}
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}
	return nil
}

// configureViper returns a viper instance with the config file and environment variables set
func configureViper(service string, configFile string, envPath string) *viper.Viper {
	v := viper.New()

	loadEnv(envPath, service)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		// Search order: working dir, cmd/<service>/, config/
		v.AddConfigPath(".")
		v.AddConfigPath(fmt.Sprintf("cmd/%s/", service))
		v.AddConfigPath("config/")
	}

	v.SetEnvPrefix("NOVASETTLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindAllEnvVars(v)
	return v
}

// bindAllEnvVars explicitly binds all possible environment variables
// This is required for viper to map env vars to config struct fields when no config file exists
func bindAllEnvVars(v *viper.Viper) {
	keys := []string{
		"debug",
		"sentry_dsn",
		// Server
		"server.host",
		"server.port",
		"server.read_timeout",
		"server.write_timeout",
		"server.idle_timeout",
		"server.cors_origins",
		// Store
		"store.driver",
		"store.seed_examples",
		// Database
		"database.host",
		"database.port",
		"database.user",
		"database.password",
		"database.dbname",
		"database.sslmode",
		"database.max_open_conns",
		"database.max_idle_conns",
		"database.conn_max_lifetime",
		"database.conn_max_idle_time",
		// NATS
		"nats.url",
		"nats.stream_name",
		"nats.subject_prefix",
		"nats.max_reconnects",
		"nats.reconnect_wait",
		"nats.connection_name",
		"nats.publish_attempts",
		// Events
		"events.pool_size",
		"events.queue_size",
		"events.subscriber_buffer",
		"events.heartbeat_interval",
		// Ledger
		"ledger.rpc_url",
		"ledger.confirm_purchases",
		"ledger.timeout",
		"ledger.status_ttl",
		"ledger.status_stale_window",
		// Verification
		"verification.required",
		"verification.delay",
		// Auth
		"auth.jwt_public_key",
		"auth.api_keys",
		// Watcher
		"api_url",
		"poll_interval",
		"http_timeout",
		"wallet_address",
		"exclude_creator",
		"demo.enabled",
		"demo.listing_id",
		"demo.cancel_only",
	}

	for _, key := range keys {
		_ = v.BindEnv(key)
	}
}

// loadEnv loads environment variables from the config directory
func loadEnv(envPath string, service string) {
	// Shared base first, then local, then optional per-service local
	envFiles := []string{".env", ".env.local"}
	if service != "" {
		envFiles = append(envFiles, ".env."+service+".local")
	}

	if envPath == "" {
		envPath = "config/"
	}

	for _, envFile := range envFiles {
		candidate := filepath.Join(envPath, envFile)
		_ = godotenv.Overload(candidate) // later files override earlier ones
	}
}

// ChdirRepoRoot changes the current working directory to the repository root
func ChdirRepoRoot() {
	cwd, _ := os.Getwd()
	for range 5 {
		if _, err := os.Stat(filepath.Join(cwd, "config")); err == nil {
			_ = os.Chdir(cwd)
			return
		}
		cwd = filepath.Dir(cwd)
	}
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// ServerTimeouts converts the second-based timeouts to durations
func (c *ServerConfig) ServerTimeouts() (read, write, idle time.Duration) {
	return time.Duration(c.ReadTimeout) * time.Second,
		time.Duration(c.WriteTimeout) * time.Second,
		time.Duration(c.IdleTimeout) * time.Second
}
