// Package config loads image-studio settings.
//
// Settings are layered: built-in defaults, then an optional YAML file, then a
// .env file in the working directory (if present), then IMAGE_STUDIO_*
// environment variables. Later layers win.
package config

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/denismitr/goenv"
	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const envPrefix = "IMAGE_STUDIO_"

// Config is the complete runtime configuration.
type Config struct {
	LogLevel string  `yaml:"log_level"`
	Pools    Pools   `yaml:"pools"`
	Limits   Limits  `yaml:"limits"`
	Fonts    Fonts   `yaml:"fonts"`
	Vision   Vision  `yaml:"vision"`
	OCR      OCR     `yaml:"ocr"`
	HTTP     HTTP    `yaml:"http"`
	Storage  Storage `yaml:"storage"`
	JobLog   JobLog  `yaml:"joblog"`
}

// Pools sizes the two worker pools. Zero means "derive from NumCPU".
type Pools struct {
	Light        int           `yaml:"light"`
	Heavy        int           `yaml:"heavy"`
	HeavyTimeout time.Duration `yaml:"heavy_timeout"`
	DrainTimeout time.Duration `yaml:"drain_timeout"`
}

// Limits bounds the size of images the service decodes or produces.
type Limits struct {
	MaxPixels int64 `yaml:"max_pixels"`
}

// Fonts points at the TrueType file used for text overlays.
type Fonts struct {
	Path string `yaml:"path"`
}

// Vision holds cascade files for face and eye detection.
type Vision struct {
	FaceCascade string `yaml:"face_cascade"`
	EyeCascade  string `yaml:"eye_cascade"`
}

// OCR configures the tesseract engine.
type OCR struct {
	Language       string `yaml:"language"`
	TessdataPrefix string `yaml:"tessdata_prefix"`
}

// HTTP configures the REST API.
type HTTP struct {
	Addr          string        `yaml:"addr"`
	MaxUploadMB   int           `yaml:"max_upload_mb"`
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`
}

// Storage configures the optional S3 sink for batch outputs.
type Storage struct {
	Enabled        bool   `yaml:"enabled"`
	Bucket         string `yaml:"bucket"`
	Region         string `yaml:"region"`
	Endpoint       string `yaml:"endpoint"`
	AccessKey      string `yaml:"access_key"`
	AccessSecret   string `yaml:"access_secret"`
	ForcePathStyle bool   `yaml:"force_path_style"`
	DisableSSL     bool   `yaml:"disable_ssl"`
}

// JobLog selects where batch job records are kept.
type JobLog struct {
	Driver   string `yaml:"driver"` // none, sqlite or mongo
	DSN      string `yaml:"dsn"`
	Database string `yaml:"database"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Pools: Pools{
			DrainTimeout: 30 * time.Second,
		},
		Limits: Limits{
			MaxPixels: 100_000_000,
		},
		OCR: OCR{
			Language: "eng",
		},
		HTTP: HTTP{
			Addr:          ":8080",
			MaxUploadMB:   32,
			ShutdownGrace: 10 * time.Second,
		},
		JobLog: JobLog{
			Driver: "none",
		},
	}
}

// Load builds the configuration from path (may be empty) and the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "read config file")
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse %s", path)
		}
	}

	// A missing .env is normal outside development.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(errors.Cause(err)) {
		return nil, errors.Wrap(err, "load .env")
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(envPrefix + key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := os.LookupEnv(envPrefix + key); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(envPrefix + key); ok {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}
	num64 := func(key string, dst *int64) {
		if v, ok := os.LookupEnv(envPrefix + key); ok {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				*dst = n
			}
		}
	}
	flag := func(key string, dst *bool) {
		if _, ok := os.LookupEnv(envPrefix + key); ok {
			*dst = goenv.IsTruthy(envPrefix + key)
		}
	}

	str("LOG_LEVEL", &c.LogLevel)
	num("LIGHT_WORKERS", &c.Pools.Light)
	num("HEAVY_WORKERS", &c.Pools.Heavy)
	dur("HEAVY_TIMEOUT", &c.Pools.HeavyTimeout)
	dur("DRAIN_TIMEOUT", &c.Pools.DrainTimeout)
	num64("MAX_PIXELS", &c.Limits.MaxPixels)
	str("FONT_PATH", &c.Fonts.Path)
	str("FACE_CASCADE", &c.Vision.FaceCascade)
	str("EYE_CASCADE", &c.Vision.EyeCascade)
	str("OCR_LANGUAGE", &c.OCR.Language)
	str("TESSDATA_PREFIX", &c.OCR.TessdataPrefix)
	str("HTTP_ADDR", &c.HTTP.Addr)
	num("MAX_UPLOAD_MB", &c.HTTP.MaxUploadMB)
	flag("S3_ENABLED", &c.Storage.Enabled)
	str("S3_BUCKET", &c.Storage.Bucket)
	str("S3_REGION", &c.Storage.Region)
	str("S3_ENDPOINT", &c.Storage.Endpoint)
	str("S3_ACCESS_KEY_ID", &c.Storage.AccessKey)
	str("S3_SECRET_ACCESS_KEY", &c.Storage.AccessSecret)
	flag("S3_FORCE_PATH_STYLE", &c.Storage.ForcePathStyle)
	flag("S3_DISABLE_SSL", &c.Storage.DisableSSL)
	str("JOBLOG_DRIVER", &c.JobLog.Driver)
	str("JOBLOG_DSN", &c.JobLog.DSN)
	str("JOBLOG_DATABASE", &c.JobLog.Database)
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var result error
	switch strings.ToLower(c.LogLevel) {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		result = multierror.Append(result, errors.Errorf("log_level: unknown level %q", c.LogLevel))
	}
	if c.Pools.Light < 0 || c.Pools.Heavy < 0 {
		result = multierror.Append(result, errors.New("pools: worker counts must not be negative"))
	}
	if c.Pools.HeavyTimeout < 0 {
		result = multierror.Append(result, errors.New("pools.heavy_timeout must not be negative"))
	}
	if c.Limits.MaxPixels <= 0 {
		result = multierror.Append(result, errors.New("limits.max_pixels must be positive"))
	}
	if c.HTTP.MaxUploadMB <= 0 {
		result = multierror.Append(result, errors.New("http.max_upload_mb must be positive"))
	}
	if c.Storage.Enabled && c.Storage.Bucket == "" {
		result = multierror.Append(result, errors.New("storage.bucket is required when storage is enabled"))
	}
	switch c.JobLog.Driver {
	case "", "none":
	case "sqlite", "mongo":
		if c.JobLog.DSN == "" {
			result = multierror.Append(result, errors.Errorf("joblog.dsn is required for driver %s", c.JobLog.Driver))
		}
	default:
		result = multierror.Append(result, errors.Errorf("joblog.driver: unknown driver %q", c.JobLog.Driver))
	}
	return result
}

// LightWorkers is the effective light pool size.
func (p Pools) LightWorkers() int {
	if p.Light > 0 {
		return p.Light
	}
	return 2 * runtime.NumCPU()
}

// HeavyWorkers is the effective heavy pool size.
func (p Pools) HeavyWorkers() int {
	if p.Heavy > 0 {
		return p.Heavy
	}
	return runtime.NumCPU()
}
