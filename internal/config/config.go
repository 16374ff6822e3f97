package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Storage     StorageConfig     `mapstructure:"storage"`
	StoreClient StoreClientConfig `mapstructure:"store_client"`
	Scraper     ScraperConfig     `mapstructure:"scraper"`
	Origin      OriginConfig      `mapstructure:"origin"`
	Processor   ProcessorConfig   `mapstructure:"processor"`
	Classifier  ClassifierConfig  `mapstructure:"classifier"`
	Notify      NotifyConfig      `mapstructure:"notify"`
}

type ServerConfig struct {
	Port       int        `mapstructure:"port"`
	WorkerPort int        `mapstructure:"worker_port"`
	Mode       string     `mapstructure:"mode"`
	APIKey     string     `mapstructure:"api_key"`
	CORS       CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

// DatabaseConfig configures the document store's backing database.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres
	Path            string        `mapstructure:"path"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// StorageConfig configures owned storage for rehosted media.
type StorageConfig struct {
	Type      string `mapstructure:"type"` // s3, r2, s3compatible, minio, local
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	PublicURL string `mapstructure:"public_url"`
	LocalPath string `mapstructure:"local_path"`
}

// StoreClientConfig configures the HTTP client to the document store.
type StoreClientConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	APIKey       string        `mapstructure:"api_key"`
	Timeout      time.Duration `mapstructure:"timeout"`
	RetryCount   int           `mapstructure:"retry_count"`
	RetryWait    time.Duration `mapstructure:"retry_wait"`
	RetryMaxWait time.Duration `mapstructure:"retry_max_wait"`
}

// ScraperConfig configures the partner portal scraper.
type ScraperConfig struct {
	Mode            string          `mapstructure:"mode"` // browser, staging
	StagingPath     string          `mapstructure:"staging_path"`
	ChromePath      string          `mapstructure:"chrome_path"`
	Timeout         time.Duration   `mapstructure:"timeout"`
	SettleDelay     time.Duration   `mapstructure:"settle_delay"`
	LateSettleDelay time.Duration   `mapstructure:"late_settle_delay"`
	MaxAttempts     int             `mapstructure:"max_attempts"`
	BackoffBase     time.Duration   `mapstructure:"backoff_base"`
	BackoffMax      time.Duration   `mapstructure:"backoff_max"`
	MetadataPattern EndpointPattern `mapstructure:"metadata_pattern"`
	ContentPattern  EndpointPattern `mapstructure:"content_pattern"`
	PriceUnit       string          `mapstructure:"price_unit"` // auto, dollars, cents
	Currency        string          `mapstructure:"currency"`
}

// EndpointPattern matches an intercepted response URL by substring with exclusions.
type EndpointPattern struct {
	Contains string   `mapstructure:"contains"`
	Excludes []string `mapstructure:"excludes"`
}

// OriginConfig configures the origin CDN client.
type OriginConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	VideoURLPattern string        `mapstructure:"video_url_pattern"` // e.g. https://cdn.example.com/videos/{slug}.mp4
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxBytes        int64         `mapstructure:"max_bytes"`
}

// ProcessorConfig configures the chunked media processor and the local driver.
type ProcessorConfig struct {
	ChunkSize       int           `mapstructure:"chunk_size"`
	Workers         int           `mapstructure:"workers"`
	ProcessingLease time.Duration `mapstructure:"processing_lease"`
	MaxChunkRounds  int           `mapstructure:"max_chunk_rounds"`
	Concurrency     int           `mapstructure:"concurrency"`
}

// ClassifierConfig configures media classification.
type ClassifierConfig struct {
	Enabled bool          `mapstructure:"enabled"` // use the vision model; rules always run as fallback
	Model   string        `mapstructure:"model"`
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type NotifyConfig struct {
	WebhookURL string        `mapstructure:"webhook_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("server.api_key", "STORE_API_KEY")
	v.BindEnv("database.dsn", "DATABASE_URL")
	v.BindEnv("storage.endpoint", "STORAGE_ENDPOINT")
	v.BindEnv("storage.access_key", "STORAGE_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "STORAGE_SECRET_KEY")
	v.BindEnv("storage.bucket", "STORAGE_BUCKET")
	v.BindEnv("storage.public_url", "STORAGE_PUBLIC_URL")
	v.BindEnv("store_client.base_url", "STORE_BASE_URL")
	v.BindEnv("store_client.api_key", "STORE_API_KEY")
	v.BindEnv("classifier.api_key", "OPENAI_API_KEY")
	v.BindEnv("classifier.base_url", "OPENAI_BASE_URL")
	v.BindEnv("classifier.model", "VLM_MODEL")
	v.BindEnv("notify.webhook_url", "NOTIFY_WEBHOOK_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.worker_port", 8081)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/itineraries.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.bucket", "itinerary-media")
	v.SetDefault("storage.local_path", "./data/media")

	v.SetDefault("store_client.base_url", "http://localhost:8080")
	v.SetDefault("store_client.timeout", 30*time.Second)
	v.SetDefault("store_client.retry_count", 3)
	v.SetDefault("store_client.retry_wait", 500*time.Millisecond)
	v.SetDefault("store_client.retry_max_wait", 5*time.Second)

	v.SetDefault("scraper.mode", "browser")
	v.SetDefault("scraper.staging_path", "./data/staging")
	v.SetDefault("scraper.timeout", 90*time.Second)
	v.SetDefault("scraper.settle_delay", 3*time.Second)
	v.SetDefault("scraper.late_settle_delay", 8*time.Second)
	v.SetDefault("scraper.max_attempts", 3)
	v.SetDefault("scraper.backoff_base", 2*time.Second)
	v.SetDefault("scraper.backoff_max", 30*time.Second)
	v.SetDefault("scraper.metadata_pattern.contains", "/api/itineraries")
	v.SetDefault("scraper.metadata_pattern.excludes", []string{"/render", "/content"})
	v.SetDefault("scraper.content_pattern.contains", "/render")
	v.SetDefault("scraper.content_pattern.excludes", []string{"/preview"})
	v.SetDefault("scraper.price_unit", "auto")
	v.SetDefault("scraper.currency", "USD")

	v.SetDefault("origin.base_url", "https://cdn.example.com")
	v.SetDefault("origin.timeout", 60*time.Second)
	v.SetDefault("origin.max_bytes", 50<<20)

	v.SetDefault("processor.chunk_size", 10)
	v.SetDefault("processor.workers", 4)
	v.SetDefault("processor.processing_lease", 10*time.Minute)
	v.SetDefault("processor.max_chunk_rounds", 500)
	v.SetDefault("processor.concurrency", 2)

	v.SetDefault("classifier.enabled", false)
	v.SetDefault("classifier.model", "gpt-4o-mini")
	v.SetDefault("classifier.base_url", "https://api.openai.com/v1")
	v.SetDefault("classifier.timeout", 30*time.Second)

	v.SetDefault("notify.timeout", 10*time.Second)
}
