package config

import (
	"github.com/unifiedinbox/mailsync/internal/logger"
	"github.com/unifiedinbox/mailsync/internal/tracing"
)

type AppConfig struct {
	APIPort     string `env:"PORT" envDefault:"11000"`
	APIKey      string `env:"API_KEY,required"`
	BaseURL     string `env:"BASE_URL" envDefault:"http://localhost:11000"`
	RabbitMQURL string `env:"RABBITMQ_URL"`
}

type DatabaseConfig struct {
	Host            string `env:"POSTGRES_HOST,required"`
	Port            string `env:"POSTGRES_PORT,required"`
	User            string `env:"POSTGRES_USER,required"`
	DBName          string `env:"POSTGRES_DB_NAME,required"`
	Password        string `env:"POSTGRES_PASSWORD,required"`
	MaxConn         int    `env:"POSTGRES_DB_MAX_CONN" envDefault:"20"`
	MaxIdleConn     int    `env:"POSTGRES_DB_MAX_IDLE_CONN" envDefault:"10"`
	ConnMaxLifetime int    `env:"POSTGRES_DB_CONN_MAX_LIFETIME" envDefault:"60"`
	LogLevel        string `env:"POSTGRES_LOG_LEVEL" envDefault:"WARN"`
	SSLMode         string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
}

type GoogleOAuthConfig struct {
	ClientID     string `env:"GOOGLE_CLIENT_ID,required"`
	ClientSecret string `env:"GOOGLE_CLIENT_SECRET,required"`
	RedirectURI  string `env:"GOOGLE_REDIRECT_URI"`
}

type MicrosoftOAuthConfig struct {
	ClientID     string `env:"MS_CLIENT_ID,required"`
	ClientSecret string `env:"MS_CLIENT_SECRET,required"`
	Tenant       string `env:"MS_TENANT" envDefault:"common"`
	RedirectURI  string `env:"MS_REDIRECT_URI"`
}

type SyncConfig struct {
	IntervalMinutes       int `env:"SYNC_INTERVAL_MINUTES" envDefault:"5"`
	MaxMessagesPerAccount int `env:"SYNC_MAX_MESSAGES_PER_ACCOUNT" envDefault:"50"`
	Workers               int `env:"SYNC_WORKERS" envDefault:"4"`
	QueueSize             int `env:"SYNC_QUEUE_SIZE" envDefault:"256"`
	TimeoutSeconds        int `env:"SYNC_TIMEOUT_SECONDS" envDefault:"300"`
	MaxRetries            int `env:"SYNC_MAX_RETRIES" envDefault:"3"`
	RetryBaseSeconds      int `env:"SYNC_RETRY_BASE_SECONDS" envDefault:"60"`
	LeaseTTLSeconds       int `env:"SYNC_LEASE_TTL_SECONDS" envDefault:"600"`
	TokenSafetyMarginSecs int `env:"SYNC_TOKEN_SAFETY_MARGIN_SECONDS" envDefault:"120"`
}

type CryptoConfig struct {
	// Base64 encoded 32 byte AES key used for refresh tokens at rest.
	EncryptionKey string `env:"TOKEN_ENCRYPTION_KEY,required"`
}

type Config struct {
	AppConfig      *AppConfig
	DatabaseConfig *DatabaseConfig
	GoogleOAuth    *GoogleOAuthConfig
	MicrosoftOAuth *MicrosoftOAuthConfig
	Sync           *SyncConfig
	Crypto         *CryptoConfig
	Logger         *logger.Config
	Tracing        *tracing.JaegerConfig
}
