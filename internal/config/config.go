package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	// DatabaseURL points at the database holding the QA report and input
	// metadata tables. Metadata lookup and the processed-export ledger are
	// disabled when it is empty.
	DatabaseURL   string `env:"DATABASE_URL"`
	QAReportTable string `env:"QA_REPORT_TABLE" envDefault:"qa_report"`

	// Source container the exports are staged from. SourceBucket, when set,
	// reads the container from S3 instead of SourceDir.
	SourceDir     string `env:"SOURCE_DIR" envDefault:"./data"`
	SourceBucket  string `env:"SOURCE_BUCKET"`
	ContainerName string `env:"CONTAINER_NAME" envDefault:"extract_files"`
	FileType      string `env:"FILE_TYPE" envDefault:"txt"`

	StageDir       string        `env:"STAGE_DIR" envDefault:"./stage"`
	StageRetention time.Duration `env:"STAGE_RETENTION" envDefault:"168h"`
	OutputDir      string        `env:"OUTPUT_DIR" envDefault:"./s3_bucket"`
	InboxDir       string        `env:"INBOX_DIR"`

	FailFast     bool `env:"FAIL_FAST" envDefault:"false"`
	WatchWorkers int  `env:"WATCH_WORKERS" envDefault:"4"`

	S3 S3Config `envPrefix:"S3_"`

	MQTTBrokerURL string `env:"MQTT_BROKER_URL"`
	MQTTClientID  string `env:"MQTT_CLIENT_ID" envDefault:"transcribe-etl"`
	MQTTTopic     string `env:"MQTT_TOPIC" envDefault:"transcribe-etl/groups"`
	MQTTUsername  string `env:"MQTT_USERNAME"`
	MQTTPassword  string `env:"MQTT_PASSWORD"`

	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	MaxBodyBytes int64         `env:"HTTP_MAX_BODY_BYTES" envDefault:"10485760"`

	AuthToken string `env:"AUTH_TOKEN"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
}

// S3Config configures the S3-compatible artifact bucket. The source
// container reuses the same endpoint and credentials.
type S3Config struct {
	Bucket     string `env:"BUCKET"`
	Endpoint   string `env:"ENDPOINT"`
	Region     string `env:"REGION" envDefault:"us-east-1"`
	AccessKey  string `env:"ACCESS_KEY"`
	SecretKey  string `env:"SECRET_KEY"`
	Prefix     string `env:"PREFIX"`
	LocalCache bool   `env:"LOCAL_CACHE" envDefault:"false"`

	// ReconcileWindow bounds how far back the reconciler looks for
	// artifacts missing from the bucket.
	ReconcileWindow time.Duration `env:"RECONCILE_WINDOW" envDefault:"24h"`
}

// Enabled reports whether artifacts go to S3.
func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile     string
	HTTPAddr    string
	LogLevel    string
	DatabaseURL string
	SourceDir   string
	OutputDir   string
	InboxDir    string
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.DatabaseURL != "" {
		cfg.DatabaseURL = overrides.DatabaseURL
	}
	if overrides.SourceDir != "" {
		cfg.SourceDir = overrides.SourceDir
	}
	if overrides.OutputDir != "" {
		cfg.OutputDir = overrides.OutputDir
	}
	if overrides.InboxDir != "" {
		cfg.InboxDir = overrides.InboxDir
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	c.FileType = strings.TrimPrefix(strings.TrimSpace(c.FileType), ".")
	if c.FileType == "" {
		return errors.New("FILE_TYPE must not be empty")
	}
	if c.ContainerName == "" {
		return errors.New("CONTAINER_NAME must not be empty")
	}
	if c.WatchWorkers < 1 {
		return errors.New("WATCH_WORKERS must be >= 1")
	}
	if c.S3.LocalCache && !c.S3.Enabled() {
		return errors.New("S3_LOCAL_CACHE requires S3_BUCKET")
	}
	return nil
}
