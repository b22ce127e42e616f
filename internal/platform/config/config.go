package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	platformstrings "kycverify/pkg/platform/strings"
)

// Config is the full process configuration, built once in main.
type Config struct {
	Server       Server
	Database     DatabaseConfig
	Redis        RedisConfig
	Kafka        KafkaConfig
	AWS          AWSConfig
	FraudModel   FraudModelConfig
	Geo          GeoConfig
	Pipeline     PipelineConfig
	RateLimit    RateLimitConfig
	Tracing      TracingConfig
	Bootstrap    BootstrapProject
	Environment  string
	LogLevel     string
	LoadedDotenv bool
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxUploadBytes  int64
}

// DatabaseConfig selects the persistent store. An empty URL keeps state in memory.
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig enables the audit outbox relay when Brokers is non-empty.
type KafkaConfig struct {
	Brokers    []string
	AuditTopic       string
	TopicPartitions  int32
	TopicReplication int16
	RelayBatch       int
	RelayEvery       time.Duration
}

// AWSConfig enables the S3/Textract/Rekognition adapters when Enabled.
type AWSConfig struct {
	Enabled  bool
	Region   string
	S3Bucket string
	KMSKeyID string
}

// FraudModelConfig points at the optional external scoring service.
type FraudModelConfig struct {
	Enabled bool
	URL     string
	APIKey  string
	Timeout time.Duration
}

type GeoConfig struct {
	Enabled bool
	URL     string
	Timeout time.Duration
}

// PipelineConfig tunes verification processing.
type PipelineConfig struct {
	Workers              int
	QueueSize            int
	EvidenceTimeout      time.Duration
	DedupWindow          time.Duration
	FaceMatchThreshold   float64
	StaleProcessingAfter time.Duration
	ReaperSchedule       string
	WebhookTimeout       time.Duration
}

// TracingConfig enables OTLP span export when Endpoint is set.
type TracingConfig struct {
	Endpoint    string
	Insecure    bool
	SampleRatio float64
	ServiceName string
	Environment string
}

// RateLimitConfig sets per-project request budgets per minute.
type RateLimitConfig struct {
	Enabled         bool
	SubmitPerMinute int
	ReadPerMinute   int
}

// BootstrapProject seeds one project so a fresh deployment can accept traffic.
type BootstrapProject struct {
	Name          string
	APIKey        string
	WebhookURL    string
	WebhookSecret string
}

// FromEnv builds a Config from environment variables so main stays lean.
// A .env file in the working directory is loaded first when present.
func FromEnv() Config {
	loaded := godotenv.Load() == nil

	env := getEnv("KYC_ENV", "development")
	return Config{
		Environment:  env,
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LoadedDotenv: loaded,
		Server: Server{
			Addr:            getEnv("KYC_ADDR", ":8080"),
			ReadTimeout:     getDuration("HTTP_READ_TIMEOUT", 60*time.Second),
			WriteTimeout:    getDuration("HTTP_WRITE_TIMEOUT", 60*time.Second),
			IdleTimeout:     getDuration("HTTP_IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
			MaxUploadBytes:  int64(getInt("MAX_UPLOAD_BYTES", 25<<20)),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: getInt("DATABASE_MAX_OPEN_CONNS", 20),
			MaxIdleConns: getInt("DATABASE_MAX_IDLE_CONNS", 5),
			MaxLifetime:  getDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:    splitList(os.Getenv("KAFKA_BROKERS")),
			AuditTopic:       getEnv("KAFKA_AUDIT_TOPIC", "kyc.audit"),
			TopicPartitions:  int32(getInt("KAFKA_AUDIT_TOPIC_PARTITIONS", 3)),
			TopicReplication: int16(getInt("KAFKA_AUDIT_TOPIC_REPLICATION", 1)),
			RelayBatch:       getInt("OUTBOX_RELAY_BATCH", 100),
			RelayEvery:       getDuration("OUTBOX_RELAY_INTERVAL", 2*time.Second),
		},
		AWS: AWSConfig{
			Enabled:  getBool("AWS_ENABLED", false),
			Region:   getEnv("AWS_REGION", "us-east-1"),
			S3Bucket: getEnv("AWS_S3_BUCKET", "kyc-documents-bucket"),
			KMSKeyID: os.Getenv("AWS_KMS_KEY_ID"),
		},
		FraudModel: FraudModelConfig{
			Enabled: getBool("FRAUD_MODEL_ENABLED", false),
			URL:     os.Getenv("FRAUD_MODEL_URL"),
			APIKey:  os.Getenv("FRAUD_MODEL_API_KEY"),
			Timeout: getDuration("FRAUD_MODEL_TIMEOUT", 5*time.Second),
		},
		Geo: GeoConfig{
			Enabled: getBool("GEO_LOOKUP_ENABLED", false),
			URL:     getEnv("GEO_LOOKUP_URL", "https://ipapi.co"),
			Timeout: getDuration("GEO_LOOKUP_TIMEOUT", 5*time.Second),
		},
		Pipeline: PipelineConfig{
			Workers:              getInt("WORKER_CONCURRENCY", 8),
			QueueSize:            getInt("WORKER_QUEUE_SIZE", 256),
			EvidenceTimeout:      getDuration("EVIDENCE_TIMEOUT", 30*time.Second),
			DedupWindow:          getDuration("DEDUP_WINDOW", 5*time.Second),
			FaceMatchThreshold:   getFloat("FACE_MATCH_THRESHOLD", 85),
			StaleProcessingAfter: getDuration("STALE_PROCESSING_AFTER", 15*time.Minute),
			ReaperSchedule:       getEnv("REAPER_SCHEDULE", "@every 1m"),
			WebhookTimeout:       getDuration("WEBHOOK_TIMEOUT", 10*time.Second),
		},
		RateLimit: RateLimitConfig{
			Enabled:         getBool("RATE_LIMIT_ENABLED", true),
			SubmitPerMinute: getInt("RATE_LIMIT_SUBMIT_PER_MINUTE", 60),
			ReadPerMinute:   getInt("RATE_LIMIT_READ_PER_MINUTE", 600),
		},
		Tracing: TracingConfig{
			Endpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
			Insecure:    getBool("OTEL_EXPORTER_OTLP_INSECURE", false),
			SampleRatio: getFloat("OTEL_TRACES_SAMPLE_RATIO", 1),
			ServiceName: getEnv("OTEL_SERVICE_NAME", "kycverify"),
			Environment: env,
		},
		Bootstrap: BootstrapProject{
			Name:          getEnv("BOOTSTRAP_PROJECT_NAME", "default"),
			APIKey:        os.Getenv("BOOTSTRAP_API_KEY"),
			WebhookURL:    os.Getenv("BOOTSTRAP_WEBHOOK_URL"),
			WebhookSecret: os.Getenv("BOOTSTRAP_WEBHOOK_SECRET"),
		},
	}
}

// IsProduction reports whether the process runs with production defaults.
func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func splitList(s string) []string {
	out := platformstrings.DedupeAndTrim(strings.Split(s, ","))
	if len(out) == 0 {
		return nil
	}
	return out
}
