package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Rate limit categories known to the service.
const (
	RateLimitLogin   = "login"
	RateLimitAPI     = "api"
	RateLimitOTPSend = "otp_send"
)

type Config struct {
	Environment   string
	Server        ServerConfig
	Logging       LoggingConfig
	Redis         RedisConfig
	Scylla        ScyllaConfig
	Kafka         KafkaConfig
	Elasticsearch ElasticsearchConfig
	Clickhouse    ClickhouseConfig
	KMS           KMSConfig
	Bucketing     BucketingConfig
	Auth          AuthConfig
	OTP           OTPConfig
	RateLimits    map[string]RateLimitRule
	Bootstrap     BootstrapConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
	AllowedOrigins []string
	// TrustProxyHeaders takes the client address from X-Forwarded-For /
	// X-Real-IP. Enable only behind a proxy that overwrites those headers.
	TrustProxyHeaders bool
}

type LoggingConfig struct {
	Level  string
	Format string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
	CAFile   string
	CertFile string
	KeyFile  string
}

type ScyllaConfig struct {
	Nodes       []string
	Keyspace    string
	Username    string
	Password    string
	TLS         bool
	CAPath      string
	CertPath    string
	KeyPath     string
	AutoMigrate bool
}

type KafkaConfig struct {
	Brokers           []string
	AuditTopic        string
	NotificationTopic string
}

type ElasticsearchConfig struct {
	URL        string
	Username   string
	Password   string
	AuditIndex string
}

type ClickhouseConfig struct {
	URL        string
	Username   string
	Password   string
	Database   string
	AuditTable string
	CAFile     string
}

type KMSConfig struct {
	Enabled bool
	KeyID   string
	Region  string
}

type BucketingConfig struct {
	AccountBuckets int
}

// AuthConfig controls token lifetimes and the signing secret.
type AuthConfig struct {
	StaffTokenTTL  time.Duration
	ClientTokenTTL time.Duration
	// SigningSecret, when set, replaces the persisted secret entirely.
	SigningSecret string
	// SealingKey is a base64 AES-256 key used to seal the persisted secret when KMS is off.
	SealingKey        string
	PasswordDigest    string
	MinPasswordLength int
	Argon2Memory      int
	Argon2Time        int
	Argon2Parallelism int
}

type OTPConfig struct {
	Length      int
	TTL         time.Duration
	MaxAttempts int
}

type RateLimitRule struct {
	Max     int
	Window  time.Duration
	Lockout time.Duration
}

// BootstrapConfig seeds a first staff account on an empty store.
type BootstrapConfig struct {
	AdminEmail    string
	AdminPassword string
	AdminName     string
}

var (
	globalConfig *Config
	loadOnce     sync.Once
)

// LoadConfig reads .env (if present) and the environment once per process.
func LoadConfig() *Config {
	loadOnce.Do(func() {
		_ = godotenv.Load()
		globalConfig = FromEnv()
	})
	return globalConfig
}

// Get returns the process configuration, loading it on first use.
func Get() *Config {
	if globalConfig == nil {
		return LoadConfig()
	}
	return globalConfig
}

// FromEnv builds a Config from the current environment without caching it.
func FromEnv() *Config {
	return &Config{
		Environment: getEnv("APP_ENV", "development"),
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", ""),
			Port:           getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:    getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			RequestTimeout: getEnvDuration("SERVER_REQUEST_TIMEOUT", 60*time.Second),
			AllowedOrigins: getEnvSlice("CORS_ALLOWED_ORIGINS", []string{"https://*", "http://localhost:*"}),

			TrustProxyHeaders: getEnvBool("TRUST_PROXY_HEADERS", false),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 20),
			CAFile:   getEnv("REDIS_TLS_CA_FILE", "/app/certs/ca.crt"),
			CertFile: getEnv("REDIS_TLS_CERT_FILE", "/app/certs/redis.crt"),
			KeyFile:  getEnv("REDIS_TLS_KEY_FILE", "/app/certs/redis.key"),
		},
		Scylla: ScyllaConfig{
			Nodes:       getEnvSlice("SCYLLA_NODES", nil),
			Keyspace:    getEnv("SCYLLA_KEYSPACE", "legal_auth"),
			Username:    getEnv("SCYLLA_USERNAME", ""),
			Password:    getEnv("SCYLLA_PASSWORD", ""),
			TLS:         getEnvBool("SCYLLA_TLS", false),
			CAPath:      getEnv("SCYLLA_CA_PATH", "/app/certs/ca.pem"),
			CertPath:    getEnv("SCYLLA_CERT_PATH", "/app/certs/scylla.pem"),
			KeyPath:     getEnv("SCYLLA_KEY_PATH", "/app/certs/scylla.key"),
			AutoMigrate: getEnvBool("SCYLLA_AUTO_MIGRATE", false),
		},
		Kafka: KafkaConfig{
			Brokers:           getEnvSlice("KAFKA_BROKERS", nil),
			AuditTopic:        getEnv("KAFKA_AUDIT_TOPIC", "auth.audit"),
			NotificationTopic: getEnv("KAFKA_NOTIFICATION_TOPIC", "notifications.email"),
		},
		Elasticsearch: ElasticsearchConfig{
			URL:        getEnv("ELASTICSEARCH_URL", ""),
			Username:   getEnv("ELASTICSEARCH_USERNAME", ""),
			Password:   getEnv("ELASTICSEARCH_PASSWORD", ""),
			AuditIndex: getEnv("ELASTICSEARCH_AUDIT_INDEX", "auth-audit"),
		},
		Clickhouse: ClickhouseConfig{
			URL:        getEnv("CLICKHOUSE_URL", ""),
			Username:   getEnv("CLICKHOUSE_USERNAME", "default"),
			Password:   getEnv("CLICKHOUSE_PASSWORD", ""),
			Database:   getEnv("CLICKHOUSE_DATABASE", "default"),
			AuditTable: getEnv("CLICKHOUSE_AUDIT_TABLE", "auth_audit_events"),
			CAFile:     getEnv("CLICKHOUSE_CA_FILE", ""),
		},
		KMS: KMSConfig{
			Enabled: getEnvBool("KMS_ENABLED", false),
			KeyID:   getEnv("KMS_KEY_ID", ""),
			Region:  getEnv("AWS_REGION", "us-east-1"),
		},
		Bucketing: BucketingConfig{
			AccountBuckets: getEnvInt("ACCOUNT_BUCKETS", 64),
		},
		Auth: AuthConfig{
			StaffTokenTTL:     getEnvDuration("AUTH_STAFF_TOKEN_TTL", 8*time.Hour),
			ClientTokenTTL:    getEnvDuration("AUTH_CLIENT_TOKEN_TTL", 2*time.Hour),
			SigningSecret:     getEnv("SIGNING_SECRET", ""),
			SealingKey:        getEnv("SECRET_SEALING_KEY", ""),
			PasswordDigest:    strings.ToLower(getEnv("AUTH_PASSWORD_DIGEST", "sha256")),
			MinPasswordLength: getEnvInt("AUTH_MIN_PASSWORD_LENGTH", 8),
			Argon2Memory:      getEnvInt("ARGON2_MEMORY_KB", 64*1024),
			Argon2Time:        getEnvInt("ARGON2_TIME_COST", 3),
			Argon2Parallelism: getEnvInt("ARGON2_PARALLELISM", 2),
		},
		OTP: OTPConfig{
			Length:      getEnvInt("OTP_LENGTH", 6),
			TTL:         getEnvDuration("OTP_TTL", 10*time.Minute),
			MaxAttempts: getEnvInt("OTP_MAX_ATTEMPTS", 30),
		},
		RateLimits: map[string]RateLimitRule{
			RateLimitLogin:   rateLimitFromEnv(RateLimitLogin, 5, 15*time.Minute, 15*time.Minute),
			RateLimitAPI:     rateLimitFromEnv(RateLimitAPI, 100, time.Minute, time.Minute),
			RateLimitOTPSend: rateLimitFromEnv(RateLimitOTPSend, 3, 15*time.Minute, 15*time.Minute),
		},
		Bootstrap: BootstrapConfig{
			AdminEmail:    getEnv("BOOTSTRAP_ADMIN_EMAIL", ""),
			AdminPassword: getEnv("BOOTSTRAP_ADMIN_PASSWORD", ""),
			AdminName:     getEnv("BOOTSTRAP_ADMIN_NAME", "Administrator"),
		},
	}
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// rateLimitFromEnv reads RATELIMIT_<CATEGORY>_MAX, _WINDOW and _LOCKOUT.
func rateLimitFromEnv(category string, max int, window, lockout time.Duration) RateLimitRule {
	prefix := "RATELIMIT_" + strings.ToUpper(category) + "_"
	return RateLimitRule{
		Max:     getEnvInt(prefix+"MAX", max),
		Window:  getEnvDuration(prefix+"WINDOW", window),
		Lockout: getEnvDuration(prefix+"LOCKOUT", lockout),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration strings ("15m") or plain seconds ("900").
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

func getEnvSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
