package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig
	API       APIConfig
	Queue     QueueConfig
	Worker    WorkerConfig
	Storage   StorageConfig
	Database  DatabaseConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Telemetry TelemetryConfig
	Logging   LoggingConfig
	Webhook   WebhookConfig
	Editor    EditorConfig
}

type AppConfig struct {
	Name        string
	Environment string
}

type APIConfig struct {
	Addr              string
	MaxUploadBytes    int64
	MaxFilesPerUpload int
	StorageQuotaBytes int64
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
}

type QueueConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Name          string
}

func (q QueueConfig) RedisClientOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     q.RedisAddr,
		Password: q.RedisPassword,
		DB:       q.RedisDB,
	}
}

type WorkerConfig struct {
	Concurrency    int
	MaxActiveJobs  int
	LocalOutputDir string
	MetricsAddr    string
}

// StorageConfig selects the blob backend. Provider is "minio" or "azure".
type StorageConfig struct {
	Provider string

	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool

	AzureConnectionString string
	AzureContainer        string
}

type DatabaseConfig struct {
	// DSN empty means photos and edit jobs live in memory.
	DSN string
}

type AuthConfig struct {
	JWTSecret string
	Issuer    string
	TokenTTL  time.Duration
}

type RateLimitConfig struct {
	Enabled           bool
	RequestsPerWindow int
	Window            time.Duration
	// Backend is "redis" (shared token bucket) or "memory" (per process).
	Backend string
}

type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

type TelemetryConfig struct {
	ServiceName  string
	Exporter     string
	OTLPEndpoint string
	OTLPInsecure bool
}

type LoggingConfig struct {
	Level  string
	Format string
}

type WebhookConfig struct {
	URL            string
	SigningSecret  string
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

type EditorConfig struct {
	DefaultFormat  string
	DefaultQuality int
}

// envBindings maps config keys to the environment variables that override
// them.
var envBindings = map[string]string{
	"app.name":        "PHOTOFLOW_APP_NAME",
	"app.environment": "PHOTOFLOW_ENV",

	"api.addr":              "PHOTOFLOW_API_ADDR",
	"api.maxUploadBytes":    "PHOTOFLOW_MAX_UPLOAD_BYTES",
	"api.maxFilesPerUpload": "PHOTOFLOW_MAX_FILES_PER_UPLOAD",
	"api.storageQuotaBytes": "PHOTOFLOW_STORAGE_QUOTA_BYTES",
	"api.readTimeout":       "PHOTOFLOW_API_READ_TIMEOUT",
	"api.writeTimeout":      "PHOTOFLOW_API_WRITE_TIMEOUT",

	"queue.redisAddr":     "REDIS_ADDR",
	"queue.redisPassword": "REDIS_PASSWORD",
	"queue.redisDB":       "REDIS_DB",
	"queue.name":          "ASYNC_QUEUE",

	"worker.concurrency":    "WORKER_CONCURRENCY",
	"worker.maxActiveJobs":  "WORKER_MAX_ACTIVE_JOBS",
	"worker.localOutputDir": "WORKER_LOCAL_OUTPUT_DIR",
	"worker.metricsAddr":    "WORKER_METRICS_ADDR",

	"storage.provider":              "STORAGE_PROVIDER",
	"storage.endpoint":              "MINIO_ENDPOINT",
	"storage.accessKey":             "MINIO_ACCESS_KEY",
	"storage.secretKey":             "MINIO_SECRET_KEY",
	"storage.bucket":                "MINIO_BUCKET",
	"storage.useSSL":                "MINIO_USE_SSL",
	"storage.azureConnectionString": "AZURE_STORAGE_CONNECTION_STRING",
	"storage.azureContainer":        "AZURE_CONTAINER_NAME",

	"database.dsn": "POSTGRES_DSN",

	"auth.jwtSecret": "JWT_SECRET",
	"auth.issuer":    "JWT_ISSUER",
	"auth.tokenTTL":  "JWT_TOKEN_TTL",

	"rateLimit.enabled":           "RATE_LIMIT_ENABLED",
	"rateLimit.requestsPerWindow": "RATE_LIMIT_REQUESTS",
	"rateLimit.window":            "RATE_LIMIT_WINDOW",
	"rateLimit.backend":           "RATE_LIMIT_BACKEND",

	"cors.allowedOrigins":   "CORS_ALLOWED_ORIGINS",
	"cors.allowCredentials": "CORS_ALLOW_CREDENTIALS",

	"telemetry.serviceName":  "OTEL_SERVICE_NAME",
	"telemetry.exporter":     "OTEL_TRACES_EXPORTER",
	"telemetry.otlpEndpoint": "OTEL_EXPORTER_OTLP_ENDPOINT",
	"telemetry.otlpInsecure": "OTEL_EXPORTER_OTLP_INSECURE",

	"logging.level":  "LOG_LEVEL",
	"logging.format": "LOG_FORMAT",

	"webhook.url":            "WEBHOOK_URL",
	"webhook.signingSecret":  "WEBHOOK_SIGNING_SECRET",
	"webhook.timeout":        "WEBHOOK_TIMEOUT",
	"webhook.maxAttempts":    "WEBHOOK_MAX_ATTEMPTS",
	"webhook.initialBackoff": "WEBHOOK_INITIAL_BACKOFF",
	"webhook.maxBackoff":     "WEBHOOK_MAX_BACKOFF",

	"editor.defaultFormat":  "EDITOR_DEFAULT_FORMAT",
	"editor.defaultQuality": "EDITOR_DEFAULT_QUALITY",
}

// Load reads defaults, an optional config.{json,yaml} file, a .env file and
// the process environment, in increasing order of precedence.
func Load() (Config, error) {
	_ = godotenv.Load()
	return load(viper.New())
}

func load(v *viper.Viper) (Config, error) {
	setDefaults(v)

	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.CORS.AllowedOrigins = splitList(cfg.CORS.AllowedOrigins)
	cfg.Storage.Provider = strings.ToLower(strings.TrimSpace(cfg.Storage.Provider))
	cfg.RateLimit.Backend = strings.ToLower(strings.TrimSpace(cfg.RateLimit.Backend))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Storage.Provider {
	case "minio", "azure":
	default:
		return fmt.Errorf("unsupported storage provider: %q", c.Storage.Provider)
	}
	switch c.RateLimit.Backend {
	case "redis", "memory":
	default:
		return fmt.Errorf("unsupported rate limit backend: %q", c.RateLimit.Backend)
	}
	if c.API.MaxFilesPerUpload < 1 {
		return errors.New("api.maxFilesPerUpload must be at least 1")
	}
	if c.API.StorageQuotaBytes < 1 {
		return errors.New("api.storageQuotaBytes must be positive")
	}
	if c.Editor.DefaultQuality < 1 || c.Editor.DefaultQuality > 100 {
		return fmt.Errorf("editor.defaultQuality must be within 1..100, got %d", c.Editor.DefaultQuality)
	}
	return nil
}

func (c Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "photoflow")
	v.SetDefault("app.environment", "development")

	v.SetDefault("api.addr", ":8080")
	v.SetDefault("api.maxUploadBytes", 10<<20)
	v.SetDefault("api.maxFilesPerUpload", 10)
	v.SetDefault("api.storageQuotaBytes", 1<<30)
	v.SetDefault("api.readTimeout", 15*time.Second)
	v.SetDefault("api.writeTimeout", 30*time.Second)

	v.SetDefault("queue.redisAddr", "localhost:6379")
	v.SetDefault("queue.redisPassword", "")
	v.SetDefault("queue.redisDB", 0)
	v.SetDefault("queue.name", "default")

	v.SetDefault("worker.concurrency", max(2, runtime.NumCPU()))
	v.SetDefault("worker.maxActiveJobs", max(1, runtime.NumCPU()/2))
	v.SetDefault("worker.localOutputDir", "./.photoflow-output")
	v.SetDefault("worker.metricsAddr", ":9091")

	v.SetDefault("storage.provider", "minio")
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.accessKey", "minioadmin")
	v.SetDefault("storage.secretKey", "minioadmin")
	v.SetDefault("storage.bucket", "photoflow-photos")
	v.SetDefault("storage.useSSL", false)
	v.SetDefault("storage.azureContainer", "photos")

	v.SetDefault("database.dsn", "")

	v.SetDefault("auth.jwtSecret", "")
	v.SetDefault("auth.issuer", "photoflow")
	v.SetDefault("auth.tokenTTL", 24*time.Hour)

	v.SetDefault("rateLimit.enabled", true)
	v.SetDefault("rateLimit.requestsPerWindow", 100)
	v.SetDefault("rateLimit.window", 15*time.Minute)
	v.SetDefault("rateLimit.backend", "memory")

	v.SetDefault("cors.allowedOrigins", []string{})
	v.SetDefault("cors.allowedMethods", []string{"GET", "POST", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowedHeaders", []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"})
	v.SetDefault("cors.exposedHeaders", []string{"Retry-After", "X-RateLimit-Remaining"})
	v.SetDefault("cors.allowCredentials", true)
	v.SetDefault("cors.maxAge", 300)

	v.SetDefault("telemetry.serviceName", "photoflow")
	v.SetDefault("telemetry.exporter", "none")
	v.SetDefault("telemetry.otlpInsecure", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("webhook.timeout", 10*time.Second)
	v.SetDefault("webhook.maxAttempts", 3)
	v.SetDefault("webhook.initialBackoff", time.Second)
	v.SetDefault("webhook.maxBackoff", 10*time.Second)

	v.SetDefault("editor.defaultFormat", "jpeg")
	v.SetDefault("editor.defaultQuality", 95)
}

// splitList accepts both a real list and a single comma separated env value.
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
