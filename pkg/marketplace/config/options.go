package config

import (
	"fmt"
	"time"

	"github.com/tendant/simple-marketplace/pkg/marketplace/notify"
)

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithDatabase configures the database backend
func WithDatabase(dbType, url string) Option {
	return func(c *ServerConfig) error {
		if dbType != "memory" && dbType != "postgres" {
			return fmt.Errorf("database type must be 'memory' or 'postgres', got: %s", dbType)
		}
		if dbType == "postgres" && url == "" {
			return fmt.Errorf("database URL is required for postgres")
		}
		c.DatabaseType = dbType
		c.DatabaseURL = url
		return nil
	}
}

// WithAutoMigrate toggles applying migrations on startup
func WithAutoMigrate(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.AutoMigrate = enabled
		return nil
	}
}

// WithStorageURL selects the attachment store from a storage URL
func WithStorageURL(storageURL string) Option {
	return func(c *ServerConfig) error {
		backend, err := ParseStorageURL(storageURL)
		if err != nil {
			return err
		}
		c.Storage = backend
		return nil
	}
}

// WithFilesystemStorage stores attachments under baseDir
func WithFilesystemStorage(baseDir, urlPrefix string, maxBytes int64) Option {
	return func(c *ServerConfig) error {
		if baseDir == "" {
			return fmt.Errorf("filesystem base directory cannot be empty")
		}
		c.Storage = StorageBackendConfig{
			Name: "fs",
			Type: "fs",
			Config: map[string]interface{}{
				"base_dir":   baseDir,
				"url_prefix": urlPrefix,
				"max_bytes":  int(maxBytes),
			},
		}
		return nil
	}
}

// WithS3Storage stores attachments in an S3 bucket
func WithS3Storage(bucket, region, endpoint string, pathStyle bool) Option {
	return func(c *ServerConfig) error {
		if bucket == "" {
			return fmt.Errorf("S3 bucket cannot be empty")
		}
		cfg := map[string]interface{}{
			"bucket":         bucket,
			"use_path_style": pathStyle,
		}
		if region != "" {
			cfg["region"] = region
		}
		if endpoint != "" {
			cfg["endpoint"] = endpoint
		}
		c.Storage = StorageBackendConfig{Name: "s3", Type: "s3", Config: cfg}
		return nil
	}
}

// WithImageBudget sets the target size of uploaded images in bytes
func WithImageBudget(bytes int) Option {
	return func(c *ServerConfig) error {
		if bytes <= 0 {
			return fmt.Errorf("image budget must be positive, got: %d", bytes)
		}
		c.ImageBudget = bytes
		return nil
	}
}

// WithStorageTimeout bounds each storage call
func WithStorageTimeout(d time.Duration) Option {
	return func(c *ServerConfig) error {
		c.StorageTimeout = d
		return nil
	}
}

// WithJWTSecret sets the bearer token secret
func WithJWTSecret(secret string) Option {
	return func(c *ServerConfig) error {
		c.JWTSecret = secret
		return nil
	}
}

// WithSMTP sends notifications through an SMTP relay
func WithSMTP(smtp notify.SMTPConfig) Option {
	return func(c *ServerConfig) error {
		c.SMTP = smtp
		return nil
	}
}

// WithRedis keeps one-time codes in Redis
func WithRedis(url string) Option {
	return func(c *ServerConfig) error {
		c.RedisURL = url
		return nil
	}
}

// WithOTP sets the lifetime and attempt limit of one-time codes
func WithOTP(ttl time.Duration, maxAttempts int) Option {
	return func(c *ServerConfig) error {
		c.OTPTTL = ttl
		c.OTPMaxAttempts = maxAttempts
		return nil
	}
}
