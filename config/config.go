package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort int
	Database   DatabaseConfig
	Auth       AuthConfig
	Points     PointsConfig
	MQ         MQConfig
	Storage    StorageConfig
	Redis      RedisConfig
	Credential CredentialConfig
	Announcer  AnnouncerConfig
	Scheduler  SchedulerConfig

	// ConfirmationTTL bounds how long a pending confirmation token stays valid.
	ConfirmationTTL time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	UseSSL   bool
}

type AuthConfig struct {
	JWTSecret        string
	TokenTTL         time.Duration
	BotAPIKeyHash    string
	AdminExternalIDs []string
}

type PointsConfig struct {
	StartingPoints      int
	HintBasePenalty     int
	HintPenaltyIncrease int
}

type MQConfig struct {
	// Backend is one of "rabbitmq", "pubsub" or empty to disable publishing.
	Backend  string
	RabbitMQ RabbitMQConfig
	PubSub   PubSubConfig
}

type RabbitMQConfig struct {
	URL             string
	QueueDurable    bool
	QueueAutoDelete bool
	PrefetchCount   int
}

type PubSubConfig struct {
	ProjectID          string
	CredentialsFile    string
	SubscriptionSuffix string
}

type StorageConfig struct {
	// Backend is one of "minio", "gcs", "s3" or empty when no catalog bucket is used.
	Backend        string
	DefinitionsKey string
	Minio          MinioConfig
	GCS            GCSConfig
	S3             S3Config
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type GCSConfig struct {
	Bucket          string
	ProjectID       string
	CredentialsFile string
}

type S3Config struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	IndexTTL time.Duration
}

type CredentialConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

type AnnouncerConfig struct {
	ChannelRef string
}

type SchedulerConfig struct {
	IndexRefreshInterval  time.Duration
	ConfirmationSweep     time.Duration
	CatalogExportInterval time.Duration
}

func LoadConfig() Config {
	if os.Getenv("ENV") == "dev" {
		godotenv.Load()
	}

	dbConfig := DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnvInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "hintquest"),
		Password: getEnv("DB_PASSWORD", "password"),
		DBName:   getEnv("DB_NAME", "hintquest_db"),
		UseSSL:   getEnvBool("DB_USE_SSL", false),
	}

	return Config{
		ServerPort: getEnvInt("SERVER_PORT", 8080),
		Database:   dbConfig,
		Auth: AuthConfig{
			JWTSecret:        getEnv("JWT_SECRET", ""),
			TokenTTL:         getEnvDuration("JWT_TOKEN_TTL", 24*time.Hour),
			BotAPIKeyHash:    getEnv("BOT_API_KEY_HASH", ""),
			AdminExternalIDs: getEnvList("ADMIN_EXTERNAL_IDS"),
		},
		Points: PointsConfig{
			StartingPoints:      getEnvInt("POINTS_STARTING", 100),
			HintBasePenalty:     getEnvInt("POINTS_HINT_BASE_PENALTY", 10),
			HintPenaltyIncrease: getEnvInt("POINTS_HINT_PENALTY_INCREASE", 5),
		},
		MQ: MQConfig{
			Backend: strings.ToLower(getEnv("MQ_BACKEND", "")),
			RabbitMQ: RabbitMQConfig{
				URL:             getEnv("RABBITMQ_URL", ""),
				QueueDurable:    getEnvBool("RABBITMQ_QUEUE_DURABLE", true),
				QueueAutoDelete: getEnvBool("RABBITMQ_QUEUE_AUTO_DELETE", false),
				PrefetchCount:   getEnvInt("RABBITMQ_PREFETCH", 10),
			},
			PubSub: PubSubConfig{
				ProjectID:          getEnv("PUBSUB_PROJECT_ID", ""),
				CredentialsFile:    getEnv("PUBSUB_CREDENTIALS_FILE", ""),
				SubscriptionSuffix: getEnv("PUBSUB_SUBSCRIPTION_SUFFIX", "-sub"),
			},
		},
		Storage: StorageConfig{
			Backend:        strings.ToLower(getEnv("STORAGE_BACKEND", "")),
			DefinitionsKey: getEnv("CATALOG_OBJECT_KEY", "challenges.yaml"),
			Minio: MinioConfig{
				Endpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
				AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
				SecretKey: getEnv("MINIO_SECRET_KEY", ""),
				Bucket:    getEnv("MINIO_BUCKET", "hintquest"),
				UseSSL:    getEnvBool("MINIO_USE_SSL", false),
			},
			GCS: GCSConfig{
				Bucket:          getEnv("GCS_BUCKET", ""),
				ProjectID:       getEnv("GCS_PROJECT_ID", ""),
				CredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),
			},
			S3: S3Config{
				Region:          getEnv("S3_REGION", "auto"),
				Endpoint:        getEnv("S3_ENDPOINT", ""),
				AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
				SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
				Bucket:          getEnv("S3_BUCKET", ""),
			},
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			IndexTTL: getEnvDuration("INDEX_CACHE_TTL", 10*time.Minute),
		},
		Credential: CredentialConfig{
			BaseURL: getEnv("CREDENTIAL_API_URL", ""),
			Token:   getEnv("CREDENTIAL_API_TOKEN", ""),
			Timeout: getEnvDuration("CREDENTIAL_API_TIMEOUT", 15*time.Second),
		},
		Announcer: AnnouncerConfig{
			ChannelRef: getEnv("ANNOUNCE_CHANNEL_REF", ""),
		},
		Scheduler: SchedulerConfig{
			IndexRefreshInterval:  getEnvDuration("INDEX_REFRESH_INTERVAL", 5*time.Minute),
			ConfirmationSweep:     getEnvDuration("CONFIRMATION_SWEEP_INTERVAL", 30*time.Second),
			CatalogExportInterval: getEnvDuration("CATALOG_EXPORT_INTERVAL", 0),
		},
		ConfirmationTTL: getEnvDuration("CONFIRMATION_TTL", 60*time.Second),
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		var value int
		if _, err := fmt.Sscanf(valueStr, "%d", &value); err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	switch strings.ToLower(strings.TrimSpace(valueStr)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return defaultValue
	}
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	value, err := time.ParseDuration(strings.TrimSpace(valueStr))
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvList splits a comma-separated variable, dropping blanks.
func getEnvList(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if v := strings.TrimSpace(part); v != "" {
			values = append(values, v)
		}
	}
	return values
}
