package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/jwtauth"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tendant/simple-marketplace/pkg/marketplace"
	"github.com/tendant/simple-marketplace/pkg/marketplace/api"
	"github.com/tendant/simple-marketplace/pkg/marketplace/imaging"
	"github.com/tendant/simple-marketplace/pkg/marketplace/notify"
	"github.com/tendant/simple-marketplace/pkg/marketplace/otp"
	"github.com/tendant/simple-marketplace/pkg/marketplace/repo/memory"
	repopg "github.com/tendant/simple-marketplace/pkg/marketplace/repo/postgres"
	fsstorage "github.com/tendant/simple-marketplace/pkg/marketplace/storage/fs"
	memorystorage "github.com/tendant/simple-marketplace/pkg/marketplace/storage/memory"
	s3storage "github.com/tendant/simple-marketplace/pkg/marketplace/storage/s3"
)

// DefaultFilesPrefix is the URL prefix of the filesystem backend when none
// is configured.
const DefaultFilesPrefix = "/files"

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:         "8080",
		Environment:  "development",
		DatabaseType: "memory",
		AutoMigrate:  true,
		Storage: StorageBackendConfig{
			Name:   "memory",
			Type:   "memory",
			Config: map[string]interface{}{},
		},
		ImageBudget:    imaging.DefaultBudget,
		StorageTimeout: marketplace.DefaultStorageTimeout,
		OTPTTL:         otp.DefaultTTL,
		OTPMaxAttempts: otp.DefaultMaxAttempts,
	}
}

// ServerConfig represents the configuration of a marketplace server
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing

	// Database configuration
	DatabaseURL  string
	DatabaseType string // "memory", "postgres"
	AutoMigrate  bool   // apply embedded migrations on startup

	// Storage configuration
	Storage        StorageBackendConfig
	ImageBudget    int // target size in bytes for uploaded images
	StorageTimeout time.Duration

	// JWTSecret signs and verifies bearer tokens (HS256).
	JWTSecret string

	// SMTP delivers notifications when SMTP.Host is set; otherwise emails are logged.
	SMTP notify.SMTPConfig

	// RedisURL selects the Redis one-time code store; empty keeps codes in memory.
	RedisURL       string
	OTPTTL         time.Duration
	OTPMaxAttempts int
}

// StorageBackendConfig represents configuration for the attachment store
type StorageBackendConfig struct {
	Name   string
	Type   string // "memory", "fs", "s3"
	Config map[string]interface{}
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	if c.DatabaseType != "memory" && c.DatabaseType != "postgres" {
		return errors.New("database_type must be 'memory' or 'postgres'")
	}

	if c.DatabaseType == "postgres" && c.DatabaseURL == "" {
		return errors.New("database_url is required when using postgres")
	}

	switch c.Storage.Type {
	case "memory", "fs", "s3":
	default:
		return fmt.Errorf("unsupported storage backend type: %s", c.Storage.Type)
	}

	if c.ImageBudget <= 0 {
		return errors.New("image budget must be positive")
	}

	if c.OTPTTL <= 0 {
		return errors.New("otp ttl must be positive")
	}

	if c.OTPMaxAttempts <= 0 {
		return errors.New("otp max attempts must be positive")
	}

	if c.Environment == "production" && len(c.JWTSecret) < 32 {
		return errors.New("jwt secret of at least 32 bytes is required in production")
	}

	return nil
}

// Components holds everything a server needs, built from one ServerConfig.
type Components struct {
	Service  marketplace.Service
	Storage  *marketplace.Storage
	Notifier marketplace.Notifier
	OTP      *otp.Service
	// Auth is nil when no JWT secret is configured; every request is then anonymous.
	Auth *jwtauth.JWTAuth
	// Files serves stored attachments under FilesPath. Only the filesystem
	// backend sets it.
	Files     http.Handler
	FilesPath string

	closers []func()
}

// Close releases database pools and client connections.
func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

// Build creates the service and its collaborators. Storage options such as
// upload observers are passed through to the attachment store.
func (c *ServerConfig) Build(ctx context.Context, logger *slog.Logger, storageOpts ...marketplace.StorageOption) (*Components, error) {
	if logger == nil {
		logger = slog.Default()
	}
	comp := &Components{}

	repo, closeRepo, err := c.buildRepository(ctx, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build repository: %w", err)
	}
	comp.closers = append(comp.closers, closeRepo)

	store, err := c.buildBlobStore()
	if err != nil {
		comp.Close()
		return nil, fmt.Errorf("failed to build storage backend %s: %w", c.Storage.Name, err)
	}
	storage := c.wrapStorage(store, logger, storageOpts...)
	comp.Storage = storage
	if fs, ok := store.(*fsstorage.Backend); ok {
		if p := filesPath(fs.BaseURL()); p != "" {
			comp.Files = fs.Handler()
			comp.FilesPath = p
		}
	}

	notifier, err := c.BuildNotifier(logger)
	if err != nil {
		comp.Close()
		return nil, fmt.Errorf("failed to build notifier: %w", err)
	}
	comp.Notifier = notifier

	svc, err := marketplace.New(
		marketplace.WithRepository(repo),
		marketplace.WithStorage(storage),
		marketplace.WithNotifier(notifier),
		marketplace.WithLogger(logger),
	)
	if err != nil {
		comp.Close()
		return nil, err
	}
	comp.Service = svc

	otpStore, closeStore, err := c.buildOTPStore(ctx)
	if err != nil {
		comp.Close()
		return nil, fmt.Errorf("failed to build otp store: %w", err)
	}
	comp.closers = append(comp.closers, closeStore)

	codes, err := otp.New(otpStore, notifier,
		otp.WithTTL(c.OTPTTL),
		otp.WithMaxAttempts(c.OTPMaxAttempts),
		otp.WithLogger(logger),
	)
	if err != nil {
		comp.Close()
		return nil, err
	}
	comp.OTP = codes

	if c.JWTSecret != "" {
		comp.Auth = api.NewAuth(c.JWTSecret)
	} else {
		logger.Warn("no JWT secret configured, all requests are anonymous")
	}

	return comp, nil
}

// BuildService creates a Service instance from the server configuration.
// The returned close function releases the database pool.
func (c *ServerConfig) BuildService(ctx context.Context, logger *slog.Logger) (marketplace.Service, func(), error) {
	comp, err := c.Build(ctx, logger)
	if err != nil {
		return nil, nil, err
	}
	return comp.Service, comp.Close, nil
}

// buildRepository creates a Repository based on the configuration
func (c *ServerConfig) buildRepository(ctx context.Context, logger *slog.Logger) (marketplace.Repository, func(), error) {
	switch c.DatabaseType {
	case "memory":
		return memory.New(), func() {}, nil
	case "postgres":
		if c.DatabaseURL == "" {
			return nil, nil, errors.New("database_url is required for postgres")
		}
		if c.AutoMigrate {
			if err := repopg.Migrate(c.DatabaseURL, logger); err != nil {
				return nil, nil, err
			}
		}
		pool, err := pgxpool.New(ctx, c.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create pgx pool: %w", err)
		}
		return repopg.NewWithPool(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

// PingPostgres verifies connectivity to Postgres.
func PingPostgres(ctx context.Context, databaseURL string) error {
	if databaseURL == "" {
		return errors.New("database_url is required")
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create pgx pool: %w", err)
	}
	defer pool.Close()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// BuildStorage creates the attachment store wrapped with the configured
// image budget and timeout.
func (c *ServerConfig) BuildStorage(logger *slog.Logger, opts ...marketplace.StorageOption) (*marketplace.Storage, error) {
	store, err := c.buildBlobStore()
	if err != nil {
		return nil, err
	}
	return c.wrapStorage(store, logger, opts...), nil
}

func (c *ServerConfig) wrapStorage(store marketplace.BlobStore, logger *slog.Logger, opts ...marketplace.StorageOption) *marketplace.Storage {
	base := []marketplace.StorageOption{
		marketplace.WithImageBudget(c.ImageBudget),
		marketplace.WithStorageTimeout(c.StorageTimeout),
		marketplace.WithStorageLogger(logger),
	}
	return marketplace.NewStorage(c.Storage.Name, store, append(base, opts...)...)
}

// filesPath is the route the filesystem backend is served under, taken
// from the path of its URL prefix.
func filesPath(prefix string) string {
	u, err := url.Parse(prefix)
	if err != nil {
		return ""
	}
	p := strings.TrimRight(u.Path, "/")
	if p == "" || !strings.HasPrefix(p, "/") {
		return ""
	}
	return p
}

// buildBlobStore creates a BlobStore based on the backend configuration
func (c *ServerConfig) buildBlobStore() (marketplace.BlobStore, error) {
	config := c.Storage
	switch config.Type {
	case "memory":
		return memorystorage.New(), nil

	case "fs":
		fsConfig := fsstorage.Config{
			BaseDir:   getString(config.Config, "base_dir", "./data/storage"),
			URLPrefix: getString(config.Config, "url_prefix", DefaultFilesPrefix),
			MaxBytes:  int64(getInt(config.Config, "max_bytes", 0)),
		}
		return fsstorage.New(fsConfig)

	case "s3":
		s3Config := s3storage.Config{
			Region:                 getString(config.Config, "region", "us-east-1"),
			Bucket:                 getString(config.Config, "bucket", ""),
			AccessKeyID:            getString(config.Config, "access_key_id", ""),
			SecretAccessKey:        getString(config.Config, "secret_access_key", ""),
			Endpoint:               getString(config.Config, "endpoint", ""),
			UsePathStyle:           getBool(config.Config, "use_path_style", false),
			PublicBaseURL:          getString(config.Config, "public_base_url", ""),
			ACL:                    getString(config.Config, "acl", ""),
			EnableSSE:              getBool(config.Config, "enable_sse", false),
			SSEAlgorithm:           getString(config.Config, "sse_algorithm", "AES256"),
			SSEKMSKeyID:            getString(config.Config, "sse_kms_key_id", ""),
			CreateBucketIfNotExist: getBool(config.Config, "create_bucket_if_not_exist", false),
		}
		return s3storage.New(s3Config)

	default:
		return nil, fmt.Errorf("unsupported storage backend type: %s", config.Type)
	}
}

// BuildNotifier returns an SMTP notifier when an SMTP host is configured and
// a logging notifier otherwise.
func (c *ServerConfig) BuildNotifier(logger *slog.Logger) (marketplace.Notifier, error) {
	if c.SMTP.Host == "" {
		return notify.NewLogNotifier(logger), nil
	}
	return notify.NewSMTPNotifier(c.SMTP)
}

func (c *ServerConfig) buildOTPStore(ctx context.Context) (otp.Store, func(), error) {
	if c.RedisURL == "" {
		return otp.NewMemoryStore(otp.DefaultMemorySize, c.OTPTTL), func() {}, nil
	}
	store, err := otp.NewRedisStoreFromURL(ctx, c.RedisURL, otp.DefaultKeyPrefix)
	if err != nil {
		return nil, nil, err
	}
	return store, func() { _ = store.Close() }, nil
}

func getString(config map[string]interface{}, key string, defaultValue string) string {
	if value, exists := config[key]; exists {
		if str, ok := value.(string); ok && str != "" {
			return str
		}
	}
	return defaultValue
}

func getBool(config map[string]interface{}, key string, defaultValue bool) bool {
	if value, exists := config[key]; exists {
		if b, ok := value.(bool); ok {
			return b
		}
		if str, ok := value.(string); ok {
			if b, err := strconv.ParseBool(str); err == nil {
				return b
			}
		}
	}
	return defaultValue
}

func getInt(config map[string]interface{}, key string, defaultValue int) int {
	if value, exists := config[key]; exists {
		if i, ok := value.(int); ok {
			return i
		}
		if str, ok := value.(string); ok {
			if i, err := strconv.Atoi(str); err == nil {
				return i
			}
		}
		if f, ok := value.(float64); ok {
			return int(f)
		}
	}
	return defaultValue
}
