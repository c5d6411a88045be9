// Package config loads settings from configs/.env, an optional config file and the environment.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// DevJWTSecret is used outside release mode when jwt.secret is empty.
const DevJWTSecret = "default_super_secret_key"

// envAliases binds keys to the short variable names used by existing deployments.
var envAliases = map[string][]string{
	"server.port":   {"SERVER_PORT", "PORT"},
	"server.mode":   {"SERVER_MODE", "GIN_MODE"},
	"db.dsn":        {"DB_DSN", "DATABASE_URL"},
	"otp.redis_url": {"OTP_REDIS_URL", "REDIS_URL"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000", "http://localhost:5173"})
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.public_url", "http://localhost:8080")

	v.SetDefault("db.driver", "postgres")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "postgres")
	v.SetDefault("db.name", "postgres")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.debug", false)

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.access_ttl", 24*time.Hour)
	v.SetDefault("jwt.refresh_ttl", 7*24*time.Hour)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.service_name", "fleetops")
	v.SetDefault("log.report_caller", false)
	v.SetDefault("log.console.enabled", true)
	v.SetDefault("log.console.pretty", false)
	v.SetDefault("log.file.enabled", false)
	v.SetDefault("log.file.path", "./logs")
	v.SetDefault("log.file.info", "info.log")
	v.SetDefault("log.file.error", "error.log")
	v.SetDefault("log.file.max_size", 50)
	v.SetDefault("log.file.max_backups", 5)
	v.SetDefault("log.file.max_age", 30)
	v.SetDefault("log.file.compress", false)

	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.local_dir", "./uploads")
	v.SetDefault("storage.signed_url_ttl", 15*time.Minute)
	v.SetDefault("storage.s3.bucket", "")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.s3.access_key_id", "")
	v.SetDefault("storage.s3.secret_access_key", "")
	v.SetDefault("storage.s3.use_path_style", false)

	v.SetDefault("mail.host", "localhost")
	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.username", "")
	v.SetDefault("mail.password", "")
	v.SetDefault("mail.from_email", "no-reply@fleetops.local")
	v.SetDefault("mail.from_name", "Fleet Operations")
	v.SetDefault("mail.use_tls", false)

	v.SetDefault("otp.store", "memory")
	v.SetDefault("otp.redis_url", "")
	v.SetDefault("otp.ttl", 10*time.Minute)
	v.SetDefault("otp.size", 10000)
	v.SetDefault("otp.max_attempts", 5)

	v.SetDefault("outbound.timeout", 15*time.Second)
	v.SetDefault("outbound.retries", 2)
	v.SetDefault("outbound.initial_backoff", 500*time.Millisecond)
}

// Load reads the configuration. envFile is loaded first when present (missing
// files are ignored), then configFile if given, then environment variables
// such as DB_HOST or JWT_SECRET override both.
func Load(envFile, configFile string) (Config, error) {
	if envFile != "" {
		_ = godotenv.Load(envFile)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, envs := range envAliases {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return Config{}, errors.Wrapf(err, "failed to bind env for %s", key)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrap(err, "failed to read config file")
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, errors.Wrap(err, "failed to decode config")
	}

	// origins from the environment arrive comma separated
	c.Server.CORSOrigins = splitList(strings.Join(c.Server.CORSOrigins, ","))

	return c, validate(&c)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func validate(c *Config) error {
	invalid := "invalid config"

	if c.Server.Port == 0 {
		return errors.Wrap(ErrServerPortCanNotBeZero, invalid)
	}

	switch c.DB.Driver {
	case "postgres", "mysql", "sqlite":
	default:
		return errors.Wrap(ErrUnknownDBDriver, invalid)
	}

	if c.JWT.Secret == "" {
		if c.Server.Mode == "release" {
			return errors.Wrap(ErrJWTSecretRequired, invalid)
		}
		c.JWT.Secret = DevJWTSecret
	}

	switch c.Storage.Backend {
	case "local":
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return errors.Wrap(ErrS3BucketRequired, invalid)
		}
	default:
		return errors.Wrap(ErrUnknownStorageBackend, invalid)
	}

	switch c.OTP.Store {
	case "memory":
	case "redis":
		if c.OTP.RedisURL == "" {
			return errors.Wrap(ErrRedisURLRequired, invalid)
		}
	default:
		return errors.Wrap(ErrUnknownOTPStore, invalid)
	}

	return nil
}

// DatabaseDSN builds the driver specific DSN unless one was configured explicitly.
func (d DB) DatabaseDSN() string {
	if d.DSN != "" {
		return d.DSN
	}

	switch d.Driver {
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			d.User, d.Password, d.Host, d.Port, d.Name)
	case "sqlite":
		return d.Name + ".db"
	default:
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(d.User, d.Password),
			Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
			Path:     "/" + d.Name,
			RawQuery: "sslmode=" + d.SSLMode,
		}
		return u.String()
	}
}
