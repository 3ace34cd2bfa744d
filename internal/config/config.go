package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/seismic-template-trim/internal/domain"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when TRIM_CONFIG is unset.
const DefaultPath = "./trim.yaml"

// Config holds the run parameters from the config file plus service
// settings from the environment.
type Config struct {
	Stations      []string  `yaml:"stations"`
	Channels      []string  `yaml:"channels"`
	Networks      []string  `yaml:"networks"`
	Bandpass      Bandpass  `yaml:"bandpass"`
	Window        Window    `yaml:"window"`
	TimePrecision int       `yaml:"time_precision"`
	ContinuousDir string    `yaml:"continuous_dir"`
	TemplateDir   string    `yaml:"template_dir"`
	DayList       string    `yaml:"day_list"`
	Catalog       string    `yaml:"catalog"`
	Range         Range     `yaml:"template_range"`
	Model         Model     `yaml:"model"`
	EarthRadiusKm float64   `yaml:"earth_radius_km"`
	Workers       int       `yaml:"workers"`
	RecordLength  int       `yaml:"record_length"`
	Inventory     Inventory `yaml:"inventory"`
	S3            S3        `yaml:"s3"`
	Kafka         Kafka     `yaml:"kafka"`
	Manifest      string    `yaml:"manifest"`

	HTTPAddr        string        `yaml:"http_addr"`
	LogLevel        string        `yaml:"log_level"`
	LogFormat       string        `yaml:"log_format"`
	ShutdownTimeout time.Duration `yaml:"-"`
}

// Bandpass holds the filter corners in Hz. Low == 0 disables filtering.
type Bandpass struct {
	Low     float64 `yaml:"low"`
	High    float64 `yaml:"high"`
	Corners int     `yaml:"corners"`
}

// Window is the template length around the S arrival, in seconds.
type Window struct {
	Before float64 `yaml:"before"`
	After  float64 `yaml:"after"`
}

// Range selects catalog events by index, [Start, Stop). Stop is clamped
// to the catalog length.
type Range struct {
	Start int `yaml:"start"`
	Stop  int `yaml:"stop"`
}

// Model names the .tvel velocity model, read from {Dir}/{Name}.tvel.
type Model struct {
	Dir  string `yaml:"dir"`
	Name string `yaml:"name"`
}

// Inventory lists station-metadata sources, tried in order: static
// stations, StationXML files, then the FDSN web service.
type Inventory struct {
	Stations  map[string]StaticStation `yaml:"stations"`
	Files     []string                 `yaml:"files"`
	FDSN      FDSN                     `yaml:"fdsn"`
	Timeout   time.Duration            `yaml:"timeout"`
	CacheSize int                      `yaml:"cache_size"`
}

// StaticStation is a station position given inline.
type StaticStation struct {
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
	Elevation float64 `yaml:"elevation"`
}

// FDSN configures the station web-service source. An empty URL disables it.
type FDSN struct {
	URL      string        `yaml:"url"`
	Network  string        `yaml:"network"`
	Timeout  time.Duration `yaml:"timeout"`
	Attempts int           `yaml:"attempts"`
}

// S3 configures the optional S3-compatible template mirror.
type S3 struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// Kafka configures the optional per-template notification topic.
type Kafka struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Default returns a config with every optional field at its default.
func Default() *Config {
	return &Config{
		Bandpass:      Bandpass{Corners: 4},
		TimePrecision: 6,
		ContinuousDir: "./continuous",
		TemplateDir:   "./templates",
		Range:         Range{Start: 0, Stop: math.MaxInt},
		Model:         Model{Dir: "."},
		EarthRadiusKm: domain.EarthRadiusKm,
		Workers:       1,
		RecordLength:  4096,
		Inventory: Inventory{
			Timeout:   30 * time.Second,
			CacheSize: 1000,
			FDSN:      FDSN{Timeout: 10 * time.Second, Attempts: 3},
		},
		Kafka:     Kafka{Topic: "seismic-templates"},
		HTTPAddr:  ":8080",
		LogLevel:  "info",
		LogFormat: "json",
	}
}

// Load reads the file named by TRIM_CONFIG (DefaultPath when unset),
// applies environment overrides and validates the result. Paths ending
// in .par are read as the legacy positional format.
func Load() (*Config, error) {
	cfg, err := LoadFile(sharedcfg.EnvOrDefault("TRIM_CONFIG", DefaultPath))
	if err != nil {
		return nil, err
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile hydrates a default config from path without env overrides or
// validation.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if strings.HasSuffix(path, ".par") {
		if err := hydrateFromPar(cfg, path); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	if err := hydrateFromFile(cfg, path); err != nil {
		return nil, err
	}
	return cfg, nil
}

func hydrateFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: read config file: %v", domain.ErrConfig, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("%w: parse config file: %v", domain.ErrConfig, err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConfig, err)
	}
	cfg.ShutdownTimeout = shutdownTimeout

	cfg.HTTPAddr = sharedcfg.EnvOrDefault("HTTP_ADDR", cfg.HTTPAddr)
	cfg.LogLevel = sharedcfg.EnvOrDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = sharedcfg.EnvOrDefault("LOG_FORMAT", cfg.LogFormat)

	if v := os.Getenv("TRIM_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: invalid TRIM_WORKERS", domain.ErrConfig)
		}
		cfg.Workers = n
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = sharedcfg.ParseBrokers(v)
	}
	cfg.Kafka.Topic = sharedcfg.EnvOrDefault("KAFKA_TOPIC", cfg.Kafka.Topic)
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		cfg.Kafka.Enabled = v == "1" || strings.EqualFold(v, "true")
	}
	cfg.S3.AccessKey = sharedcfg.EnvOrDefault("S3_ACCESS_KEY", cfg.S3.AccessKey)
	cfg.S3.SecretKey = sharedcfg.EnvOrDefault("S3_SECRET_KEY", cfg.S3.SecretKey)
	cfg.Inventory.FDSN.URL = sharedcfg.EnvOrDefault("FDSN_URL", cfg.Inventory.FDSN.URL)
	return nil
}

// Validate reports every invalid field, joined and wrapped in
// domain.ErrConfig.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, errors.New(msg))
		}
	}

	check(len(c.Stations) > 0, "stations is required")
	check(len(c.Channels) > 0, "channels is required")
	check(c.Bandpass.Low >= 0, "bandpass.low must not be negative")
	check(c.Bandpass.Low == 0 || c.Bandpass.High > c.Bandpass.Low, "bandpass.high must exceed bandpass.low")
	check(c.Bandpass.Corners > 0, "bandpass.corners must be positive")
	check(c.Window.Before >= 0 && c.Window.After >= 0, "window lengths must not be negative")
	check(c.TimePrecision >= 0 && c.TimePrecision <= 9, "time_precision must be within 0..9")
	check(c.ContinuousDir != "", "continuous_dir is required")
	check(c.TemplateDir != "", "template_dir is required")
	check(c.DayList != "", "day_list is required")
	check(c.Catalog != "", "catalog is required")
	check(c.Range.Start >= 0, "template_range.start must not be negative")
	check(c.Model.Name != "", "model.name is required")
	check(c.EarthRadiusKm > 0, "earth_radius_km must be positive")
	check(c.Workers >= 1, "workers must be at least 1")
	check(c.RecordLength >= 256 && c.RecordLength <= 1<<16 && c.RecordLength&(c.RecordLength-1) == 0,
		"record_length must be a power of two between 256 and 65536")
	check(c.Inventory.Timeout >= 0, "inventory.timeout must not be negative")
	check(c.Inventory.CacheSize > 0, "inventory.cache_size must be positive")
	check(len(c.Inventory.Stations)+len(c.Inventory.Files) > 0 || c.Inventory.FDSN.URL != "",
		"at least one inventory source is required")
	if c.S3.Enabled {
		check(c.S3.Endpoint != "", "s3.endpoint is required when s3 is enabled")
		check(c.S3.Bucket != "", "s3.bucket is required when s3 is enabled")
	}
	if c.Kafka.Enabled {
		check(len(c.Kafka.Brokers) > 0, "kafka.brokers is required when kafka is enabled")
		check(c.Kafka.Topic != "", "kafka.topic is required when kafka is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", domain.ErrConfig, errors.Join(errs...))
	}
	return nil
}

// WindowBefore returns the pre-arrival length as a duration.
func (c *Config) WindowBefore() time.Duration { return domain.Seconds(c.Window.Before) }

// WindowAfter returns the post-arrival length as a duration.
func (c *Config) WindowAfter() time.Duration { return domain.Seconds(c.Window.After) }
