package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/sydlexius/kgmerge/internal/logging"
	"github.com/sydlexius/kgmerge/internal/sparql"
)

// Config holds all application configuration.
type Config struct {
	Output    OutputConfig    `yaml:"output"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Endpoints EndpointsConfig `yaml:"endpoints"`
	Database  DatabaseConfig  `yaml:"database"`
	History   HistoryConfig   `yaml:"history"`
	Merge     MergeConfig     `yaml:"merge"`
	Watch     WatchConfig     `yaml:"watch"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   logging.Config  `yaml:"logging"`
}

// OutputConfig sets where fetched and merged files are written.
type OutputConfig struct {
	Dir string `yaml:"dir" validate:"required"`
}

// FetchConfig controls SPARQL requests.
type FetchConfig struct {
	// Delay is the minimum spacing between two requests to one endpoint.
	Delay     time.Duration `yaml:"delay" validate:"gte=0"`
	Timeout   time.Duration `yaml:"timeout" validate:"gt=0"`
	UserAgent string        `yaml:"user_agent" validate:"required"`
	Breaker   BreakerConfig `yaml:"breaker"`
}

// BreakerConfig controls the per-endpoint circuit breaker. MaxFailures 0
// disables it.
type BreakerConfig struct {
	MaxFailures uint32        `yaml:"max_failures"`
	Cooldown    time.Duration `yaml:"cooldown" validate:"gte=0"`
}

// EndpointsConfig overrides the SPARQL endpoint URLs.
type EndpointsConfig struct {
	Wikidata string `yaml:"wikidata" validate:"required,url"`
	DBpedia  string `yaml:"dbpedia" validate:"required,url"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	// Path defaults to <output.dir>/kgmerge.db.
	Path string `yaml:"path"`
}

// HistoryConfig toggles run history recording.
type HistoryConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MergeConfig tunes merges.
type MergeConfig struct {
	Workers int `yaml:"workers" validate:"min=1,max=64"`
}

// WatchConfig tunes the watch command.
type WatchConfig struct {
	Debounce     time.Duration `yaml:"debounce" validate:"gt=0"`
	PollInterval time.Duration `yaml:"poll_interval" validate:"gt=0"`
}

// MetricsConfig sets the Prometheus textfile path. Empty disables export.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Output: OutputConfig{Dir: "data"},
		Fetch: FetchConfig{
			Delay:     3 * time.Second,
			Timeout:   60 * time.Second,
			UserAgent: sparql.DefaultUserAgent,
			Breaker: BreakerConfig{
				MaxFailures: 5,
				Cooldown:    time.Minute,
			},
		},
		Endpoints: EndpointsConfig{
			Wikidata: sparql.DefaultWikidataURL,
			DBpedia:  sparql.DefaultDBpediaURL,
		},
		History: HistoryConfig{Enabled: true},
		Merge:   MergeConfig{Workers: 4},
		Watch: WatchConfig{
			Debounce:     2 * time.Second,
			PollInterval: 30 * time.Second,
		},
		Logging: logging.DefaultConfig(),
	}
}

// Load reads config from a YAML file (if it exists) and overrides with
// environment variables. Environment variables take precedence. When path is
// empty, KG_CONFIG_PATH is consulted.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("KG_CONFIG_PATH")
	}
	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is operator supplied
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) loadFromEnv() error {
	if v := os.Getenv("KG_OUTPUT_DIR"); v != "" {
		c.Output.Dir = v
	}
	if v := os.Getenv("KG_FETCH_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("KG_FETCH_DELAY: %w", err)
		}
		c.Fetch.Delay = d
	}
	if v := os.Getenv("KG_FETCH_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("KG_FETCH_TIMEOUT: %w", err)
		}
		c.Fetch.Timeout = d
	}
	if v := os.Getenv("KG_USER_AGENT"); v != "" {
		c.Fetch.UserAgent = v
	}
	if v := os.Getenv("KG_WIKIDATA_ENDPOINT"); v != "" {
		c.Endpoints.Wikidata = v
	}
	if v := os.Getenv("KG_DBPEDIA_ENDPOINT"); v != "" {
		c.Endpoints.DBpedia = v
	}
	if v := os.Getenv("KG_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("KG_HISTORY_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("KG_HISTORY_ENABLED: %w", err)
		}
		c.History.Enabled = b
	}
	if v := os.Getenv("KG_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("KG_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("KG_LOG_FILE"); v != "" {
		c.Logging.FilePath = v
	}
	if v := os.Getenv("KG_METRICS_TEXTFILE"); v != "" {
		c.Metrics.Textfile = v
	}
	return nil
}

// Validate checks struct constraints and the logging settings. It is called
// by Load and again by the CLI after flag overrides.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s: failed %q constraint (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return err
	}
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("invalid log level: %q", c.Logging.Level)
	}
	if !logging.ValidFormat(c.Logging.Format) {
		return fmt.Errorf("invalid log format: %q", c.Logging.Format)
	}
	return nil
}

// DatabasePath returns the configured database path, or the default inside
// the output directory.
func (c *Config) DatabasePath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(c.Output.Dir, "kgmerge.db")
}

// EndpointRegistry builds the endpoint registry from the configured URLs.
func (c *Config) EndpointRegistry() *sparql.Endpoints {
	e := sparql.NewEndpoints()
	e.Set(sparql.Wikidata, c.Endpoints.Wikidata)
	e.Set(sparql.DBpedia, c.Endpoints.DBpedia)
	return e
}
