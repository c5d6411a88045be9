package config

import (
	"time"

	"fleetops/internal/logger"
)

// Config is the overall application configuration.
type Config struct {
	Server   Server     `mapstructure:"server"`
	DB       DB         `mapstructure:"db"`
	JWT      JWT        `mapstructure:"jwt"`
	Log      logger.Log `mapstructure:"log"`
	Storage  Storage    `mapstructure:"storage"`
	Mail     Mail       `mapstructure:"mail"`
	OTP      OTP        `mapstructure:"otp"`
	Outbound Outbound   `mapstructure:"outbound"`
}

// Server holds HTTP listener settings.
type Server struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // gin mode: debug, release, test
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	PublicURL       string        `mapstructure:"public_url"` // base URL used in generated links
}

// DB selects the gorm driver and its connection settings.
type DB struct {
	Driver   string `mapstructure:"driver"` // postgres, mysql, sqlite
	DSN      string `mapstructure:"dsn"`    // takes precedence over the discrete fields
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	Debug    bool   `mapstructure:"debug"`
}

// JWT holds token signing settings.
type JWT struct {
	Secret     string        `mapstructure:"secret"`
	AccessTTL  time.Duration `mapstructure:"access_ttl"`
	RefreshTTL time.Duration `mapstructure:"refresh_ttl"`
}

// Storage selects the file backend.
type Storage struct {
	Backend      string        `mapstructure:"backend"` // local or s3
	LocalDir     string        `mapstructure:"local_dir"`
	SignedURLTTL time.Duration `mapstructure:"signed_url_ttl"`
	S3           S3            `mapstructure:"s3"`
}

// S3 configures the object storage backend.
type S3 struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"` // for S3 compatible stores such as MinIO
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
}

// Mail is the SMTP fallback used when no default email configuration is stored.
type Mail struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	FromEmail string `mapstructure:"from_email"`
	FromName  string `mapstructure:"from_name"`
	UseTLS    bool   `mapstructure:"use_tls"`
}

// OTP configures the registration one-time-password store.
type OTP struct {
	Store       string        `mapstructure:"store"` // memory or redis
	RedisURL    string        `mapstructure:"redis_url"`
	TTL         time.Duration `mapstructure:"ttl"`
	Size        int           `mapstructure:"size"` // in-memory capacity
	MaxAttempts int           `mapstructure:"max_attempts"`
}

// Outbound bounds calls to SMTP and object storage.
type Outbound struct {
	Timeout        time.Duration `mapstructure:"timeout"`
	Retries        uint64        `mapstructure:"retries"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
}
