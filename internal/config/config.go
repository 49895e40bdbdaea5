package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

type Config struct {
	Port     string `env:"PORT" envDefault:"3333"`
	Env      string `env:"ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"postgres"`
	DatabaseURL   string `env:"DATABASE_URL"`
	SQLitePath    string `env:"SQLITE_PATH" envDefault:"badges.db"`
	CatalogFile   string `env:"CATALOG_FILE"`

	// Complaint backend tables read by the postgres driver.
	ComplaintTable    string `env:"ACTIVITY_COMPLAINT_TABLE" envDefault:"Complaint"`
	ComplainantColumn string `env:"ACTIVITY_COMPLAINANT_COLUMN" envDefault:"complainantId"`
	StatusColumn      string `env:"ACTIVITY_STATUS_COLUMN" envDefault:"status"`
	UpvotesColumn     string `env:"ACTIVITY_UPVOTES_COLUMN" envDefault:"upvoteCount"`
	DepartmentColumn  string `env:"ACTIVITY_DEPARTMENT_COLUMN" envDefault:"assignedDepartment"`
	UserTable         string `env:"ACTIVITY_USER_TABLE" envDefault:"User"`
	UserIDColumn      string `env:"ACTIVITY_USER_ID_COLUMN" envDefault:"id"`
	UserSubjectColumn string `env:"ACTIVITY_USER_SUBJECT_COLUMN" envDefault:"clerkId"`

	ClerkSecretKey        string `env:"CLERK_SECRET_KEY"`
	EventsSigningKey      string `env:"EVENTS_SIGNING_KEY"`
	FCMServiceAccountFile string `env:"FCM_SERVICE_ACCOUNT_FILE"`

	MetricsUser string `env:"METRICS_USER"`
	MetricsPass string `env:"METRICS_PASS"`
	PprofSecret string `env:"PPROF_SECRET"`

	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`

	DispatcherWorkers   int `env:"DISPATCHER_WORKERS" envDefault:"5"`
	DispatcherQueueSize int `env:"DISPATCHER_QUEUE_SIZE" envDefault:"100"`
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to read .env: %w", err)
	}
	return Parse()
}

// Parse reads the configuration from the process environment.
func Parse() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	c.StorageDriver = strings.ToLower(c.StorageDriver)
	switch c.StorageDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres driver")
		}
	case DriverSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return errors.New("SQLITE_PATH is required for the sqlite driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
	if c.DispatcherWorkers <= 0 {
		return errors.New("DISPATCHER_WORKERS must be positive")
	}
	if c.DispatcherQueueSize <= 0 {
		return errors.New("DISPATCHER_QUEUE_SIZE must be positive")
	}
	return nil
}

func (c Config) Driver() string {
	return strings.ToLower(c.StorageDriver)
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// NewLogger builds the process logger: JSON in production, console otherwise.
func (c Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err)
	}

	var zc zap.Config
	if c.IsProduction() {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
