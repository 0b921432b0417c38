package configuration

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
)

// Metadata store drivers.
const (
	DriverRedis  = "redis"
	DriverBadger = "badger"
	DriverMemory = "memory"
)

// Policies applied when the blob was stored but the metadata write failed.
const (
	MetadataFailureFail     = "fail"
	MetadataFailureRollback = "rollback"
	MetadataFailureWarn     = "warn"
)

type (
	Properties struct {
		LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
		LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

		Server    HttpServerProperties `envPrefix:"HTTP_"`
		S3        S3Properties         `envPrefix:"S3_"`
		Metadata  MetadataProperties   `envPrefix:"METADATA_"`
		Upload    UploadProperties     `envPrefix:"UPLOAD_"`
		Reconcile ReconcileProperties  `envPrefix:"RECONCILE_"`
	}

	HttpServerProperties struct {
		Name         string        `env:"NAME" envDefault:"imghost"`
		Port         string        `env:"PORT" envDefault:"8088"`
		ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
		WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"30s"`
		AllowOrigins []string      `env:"ALLOW_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
		Pprof        bool          `env:"PPROF" envDefault:"false"`
	}

	S3Properties struct {
		Host         string `env:"HOST" envDefault:"localhost:9000"`
		AccessKey    string `env:"ACCESS_KEY"`
		SecretKey    string `env:"SECRET_KEY"`
		Bucket       string `env:"BUCKET" envDefault:"images"`
		Region       string `env:"REGION" envDefault:"us-east-1"`
		UseSSL       bool   `env:"USE_SSL" envDefault:"false"`
		CreateBucket bool   `env:"CREATE_BUCKET" envDefault:"false"`
		// PublicURL is the base address blobs are served from. When empty it
		// is derived from Host and Bucket.
		PublicURL string `env:"PUBLIC_URL"`
	}

	MetadataProperties struct {
		Driver        string `env:"DRIVER" envDefault:"redis"`
		RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
		RedisPassword string `env:"REDIS_PASSWORD"`
		RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
		BadgerPath    string `env:"BADGER_PATH" envDefault:"./data/metadata"`
	}

	UploadProperties struct {
		MaxBytes        int64  `env:"MAX_BYTES" envDefault:"10485760"`
		VerifyContent   bool   `env:"VERIFY_CONTENT" envDefault:"false"`
		MetadataFailure string `env:"METADATA_FAILURE" envDefault:"fail"`
	}

	ReconcileProperties struct {
		Grace time.Duration `env:"GRACE" envDefault:"10m"`
	}
)

// ReadProperties parses the environment into Properties and validates it.
func ReadProperties() (*Properties, error) {
	config := &Properties{}

	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("read config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// MustReadProperties is ReadProperties for callers that cannot continue
// without a configuration.
func MustReadProperties() *Properties {
	config, err := ReadProperties()
	if err != nil {
		panic(err)
	}
	return config
}

func (p *Properties) Validate() error {
	switch p.Metadata.Driver {
	case DriverRedis, DriverBadger, DriverMemory:
	default:
		return fmt.Errorf("unknown metadata driver %q", p.Metadata.Driver)
	}
	switch p.Upload.MetadataFailure {
	case MetadataFailureFail, MetadataFailureRollback, MetadataFailureWarn:
	default:
		return fmt.Errorf("unknown metadata failure policy %q", p.Upload.MetadataFailure)
	}
	if p.Upload.MaxBytes <= 0 {
		return fmt.Errorf("upload max bytes must be positive, got %d", p.Upload.MaxBytes)
	}
	if p.S3.Bucket == "" {
		return fmt.Errorf("s3 bucket is required")
	}
	if p.Reconcile.Grace < 0 {
		return fmt.Errorf("reconcile grace must not be negative, got %s", p.Reconcile.Grace)
	}
	return nil
}

// PublicBaseURL returns the address blobs are served from.
func (s S3Properties) PublicBaseURL() string {
	if s.PublicURL != "" {
		return s.PublicURL
	}
	scheme := "http"
	if s.UseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s", scheme, s.Host, s.Bucket)
}

// String hides credentials so the configuration can be logged.
func (p Properties) String() string {
	redacted := p
	if redacted.S3.SecretKey != "" {
		redacted.S3.SecretKey = "****"
	}
	if redacted.Metadata.RedisPassword != "" {
		redacted.Metadata.RedisPassword = "****"
	}
	type plain Properties
	return fmt.Sprintf("%+v", plain(redacted))
}
