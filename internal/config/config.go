package config

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // zone database for hosts without /usr/share/zoneinfo
	"unicode"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all run settings, populated from environment variables and
// command-line overrides.
type Config struct {
	Region       string
	SourceURL    string
	TableIndex   int
	FetchTimeout time.Duration

	SourceTimezone  *time.Location
	DisplayTimezone *time.Location
	BucketWidth     time.Duration

	HistoryPath string
	OutputDir   string
	OutputName  string

	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	MetricsTextfile string

	// Watch mode.
	WatchInterval time.Duration
	HTTPAddr      string

	// Kafka publishing of newly seen records.
	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string
}

// Overrides carries values given on the command line. Zero values leave the
// environment-derived settings untouched.
type Overrides struct {
	Region        *string
	OutputName    string
	WatchInterval time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	return LoadWithOverrides(Overrides{})
}

// LoadWithOverrides reads the environment and then applies command-line overrides.
func LoadWithOverrides(o Overrides) (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	fetchTimeout, err := parsePositiveDuration("FETCH_TIMEOUT", "15s")
	if err != nil {
		return nil, err
	}
	bucketWidth, err := parsePositiveDuration("BUCKET_WIDTH", "3h")
	if err != nil {
		return nil, err
	}
	sourceTZ, err := parseLocation("SOURCE_TIMEZONE", "Asia/Tokyo")
	if err != nil {
		return nil, err
	}
	displayTZ, err := parseLocation("DISPLAY_TIMEZONE", "Asia/Tokyo")
	if err != nil {
		return nil, err
	}
	tableIndex, err := parseTableIndex()
	if err != nil {
		return nil, err
	}

	region := sharedcfg.EnvOrDefault("REGION", "Iburi")
	if o.Region != nil {
		region = *o.Region
	}
	region = strings.TrimSpace(region)

	cfg := &Config{
		Region:       region,
		SourceURL:    sharedcfg.EnvOrDefault("SOURCE_URL", "https://www.jma.go.jp/en/quake/quake_singendo_index.html"),
		TableIndex:   tableIndex,
		FetchTimeout: fetchTimeout,

		SourceTimezone:  sourceTZ,
		DisplayTimezone: displayTZ,
		BucketWidth:     bucketWidth,

		HistoryPath: os.Getenv("HISTORY_PATH"),
		OutputDir:   sharedcfg.EnvOrDefault("OUTPUT_DIR", "."),
		OutputName:  os.Getenv("OUTPUT_NAME"),

		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
		MetricsTextfile: os.Getenv("METRICS_TEXTFILE"),

		WatchInterval: o.WatchInterval,
		HTTPAddr:      os.Getenv("HTTP_ADDR"),

		KafkaEnabled: os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers: sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "earthquake-records"),
	}

	if cfg.HistoryPath == "" {
		cfg.HistoryPath = filepath.Join(sharedcfg.EnvOrDefault("DATA_DIR", "data"), Slug(cfg.Region)+".csv")
	}
	if o.OutputName != "" {
		cfg.OutputName = o.OutputName
	}
	if cfg.OutputName == "" {
		cfg.OutputName = Slug(cfg.Region) + "-aftershocks"
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ChartPath is where the rendered SVG chart is written.
func (c *Config) ChartPath() string {
	return filepath.Join(c.OutputDir, c.OutputName+".svg")
}

func (c *Config) validate() error {
	if c.SourceURL == "" {
		return errors.New("SOURCE_URL is required")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid LOG_LEVEL: %s", c.LogLevel)
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("invalid LOG_FORMAT: %s", c.LogFormat)
	}

	if c.WatchInterval < 0 {
		return fmt.Errorf("watch interval must not be negative: %s", c.WatchInterval)
	}
	if c.WatchInterval > 0 && c.WatchInterval < time.Minute {
		return errors.New("watch interval must be at least 1 minute")
	}

	if c.KafkaEnabled {
		if len(c.KafkaBrokers) == 0 {
			return errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is empty")
		}
		if c.KafkaTopic == "" {
			return errors.New("KAFKA_ENABLED is true but KAFKA_TOPIC is empty")
		}
	}
	return nil
}

// Slug turns a region label into a lowercase, dash-separated file name stem.
// A blank label maps to "all". Labels whose letters or digits do not all
// survive the ASCII reduction get a short hash suffix so distinct filters
// never share a stem.
func Slug(region string) string {
	norm := strings.ToLower(strings.TrimSpace(region))
	if norm == "" {
		return "all"
	}

	var b strings.Builder
	dash, lossy := false, false
	for _, r := range norm {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			lossy = true
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	s := strings.TrimSuffix(b.String(), "-")
	if s == "" {
		s, lossy = "region", true
	}
	if lossy {
		sum := sha256.Sum256([]byte(norm))
		s += "-" + hex.EncodeToString(sum[:4])
	}
	return s
}

func parsePositiveDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseLocation(key, fallback string) (*time.Location, error) {
	name := sharedcfg.EnvOrDefault(key, fallback)
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", key, name, err)
	}
	return loc, nil
}

func parseTableIndex() (int, error) {
	s := os.Getenv("JMA_TABLE_INDEX")
	if s == "" {
		return 3, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid JMA_TABLE_INDEX: %q", s)
	}
	return n, nil
}
