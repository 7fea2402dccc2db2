package config

import (
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"sigs.k8s.io/yaml"

	"github.com/vango-dev/propgen/internal/errors"
	"github.com/vango-dev/propgen/pkg/propgen"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "propgen.yaml"

	// DefaultConcurrency is the default number of groups emitted at once.
	DefaultConcurrency = 4

	// DefaultWatchInterval is the default polling interval of watch mode.
	DefaultWatchInterval = 500 * time.Millisecond

	// DefaultLogLevel is the default log level.
	DefaultLogLevel = "info"
)

// ConfigFileNames are the file names Load looks for, in order.
var ConfigFileNames = []string{ConfigFileName, "propgen.yml", "propgen.json"}

// Config represents the complete propgen.yaml configuration.
type Config struct {
	// Patterns are the package patterns to generate for (default: ./...).
	Patterns []string `json:"patterns,omitempty"`

	// Exclude are file globs relative to the project root that are skipped.
	Exclude []string `json:"exclude,omitempty"`

	// BuildFlags are passed to the go command when loading packages.
	BuildFlags []string `json:"buildFlags,omitempty"`

	// Out redirects artifacts to a single directory instead of the
	// directory of each owning package.
	Out string `json:"out,omitempty"`

	// Concurrency bounds the groups emitted at once.
	Concurrency int `json:"concurrency,omitempty"`

	// Store names the keyed storage API generated code calls.
	Store StoreConfig `json:"store,omitempty"`

	// Watch contains watch mode settings.
	Watch WatchConfig `json:"watch,omitempty"`

	// Cache contains remote artifact cache settings.
	Cache CacheConfig `json:"cache,omitempty"`

	// Log contains logging settings.
	Log LogConfig `json:"log,omitempty"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// StoreConfig names the keyed storage API.
type StoreConfig struct {
	// Import is the import path of the store package.
	Import string `json:"import,omitempty"`

	// Alias is the name the store package is imported as.
	Alias string `json:"alias,omitempty"`

	// Register is the name of the generic key constructor.
	Register string `json:"register,omitempty"`

	// GetValue and SetValue are the accessor methods of owning types.
	GetValue string `json:"getValue,omitempty"`
	SetValue string `json:"setValue,omitempty"`
}

// WatchConfig contains watch mode settings.
type WatchConfig struct {
	// Interval is the polling interval (e.g., "500ms").
	Interval string `json:"interval,omitempty"`

	// Ignore contains globs of paths that do not trigger a pass.
	Ignore []string `json:"ignore,omitempty"`

	// Addr is the listen address of the status server. Empty disables it.
	Addr string `json:"addr,omitempty"`
}

// CacheConfig contains remote artifact cache settings.
type CacheConfig struct {
	S3 S3Config `json:"s3,omitempty"`
}

// S3Config configures the S3 artifact cache.
type S3Config struct {
	// Bucket enables the cache when set.
	Bucket string `json:"bucket,omitempty"`

	// Prefix is prepended to object keys.
	Prefix string `json:"prefix,omitempty"`

	// Region overrides the region of the default AWS configuration.
	Region string `json:"region,omitempty"`

	// Endpoint overrides the S3 endpoint, for S3-compatible stores.
	Endpoint string `json:"endpoint,omitempty"`

	// PathStyle forces path-style addressing.
	PathStyle bool `json:"pathStyle,omitempty"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level,omitempty"`

	// Format is text or json.
	Format string `json:"format,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	def := propgen.DefaultEmitConfig()
	return &Config{
		Patterns:    []string{"./..."},
		Concurrency: DefaultConcurrency,
		Store: StoreConfig{
			Import:   def.StoreImport,
			Alias:    def.StoreAlias,
			Register: def.Register,
			GetValue: def.GetValue,
			SetValue: def.SetValue,
		},
		Watch: WatchConfig{
			Interval: DefaultWatchInterval.String(),
		},
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: "text",
		},
	}
}

// Load reads configuration from the specified directory.
// It looks for propgen.yaml, propgen.yml and propgen.json in that order.
func Load(dir string) (*Config, error) {
	for _, name := range ConfigFileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}
	return nil, errors.New("E103").
		WithDetail("No " + ConfigFileName + " found in " + dir).
		WithSuggestion("Create " + ConfigFileName + " or run without a configuration file to use the defaults")
}

// LoadFile reads configuration from the specified file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("E103").
				WithDetail("No configuration file at " + path)
		}
		return nil, errors.New("E100").Wrap(err)
	}

	cfg, err := Parse(data)
	if err != nil {
		if pe, ok := err.(*errors.Error); ok {
			pe.WithPosition(path, 0, 0)
		}
		return nil, err
	}
	cfg.configPath = path
	return cfg, nil
}

// Parse decodes YAML or JSON configuration and validates it.
// Unknown fields are an error.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, errors.New("E100").
			WithDetail("Failed to parse " + ConfigFileName + ": " + err.Error()).
			WithSuggestion("Check that " + ConfigFileName + " is valid YAML and only uses known keys")
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.Newf(errors.CategoryConfig, "no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to the specified path as YAML.
func (c *Config) SaveTo(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.New("E100").Wrap(err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New("E100").Wrap(err)
	}

	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return ""
	}
	return filepath.Dir(c.configPath)
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	def := New()
	if len(c.Patterns) == 0 {
		c.Patterns = def.Patterns
	}
	if c.Concurrency == 0 {
		c.Concurrency = def.Concurrency
	}

	// Store
	if c.Store.Import == "" {
		c.Store.Import = def.Store.Import
	}
	if c.Store.Alias == "" {
		c.Store.Alias = path.Base(c.Store.Import)
	}
	if c.Store.Register == "" {
		c.Store.Register = def.Store.Register
	}
	if c.Store.GetValue == "" {
		c.Store.GetValue = def.Store.GetValue
	}
	if c.Store.SetValue == "" {
		c.Store.SetValue = def.Store.SetValue
	}

	// Watch
	if c.Watch.Interval == "" {
		c.Watch.Interval = def.Watch.Interval
	}

	// Log
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Concurrency < 0 {
		return invalid("concurrency", fmt.Sprint(c.Concurrency), "Concurrency must be positive")
	}
	for _, f := range []struct{ key, value string }{
		{"store.alias", c.Store.Alias},
		{"store.register", c.Store.Register},
		{"store.getValue", c.Store.GetValue},
		{"store.setValue", c.Store.SetValue},
	} {
		if !isIdent(f.value) {
			return invalid(f.key, f.value, "The value must be a Go identifier")
		}
	}
	if d, err := time.ParseDuration(c.Watch.Interval); err != nil || d <= 0 {
		return invalid("watch.interval", c.Watch.Interval, "Use a positive Go duration such as 500ms")
	}
	if _, err := c.LogLevel(); err != nil {
		return invalid("log.level", c.Log.Level, "Use debug, info, warn or error")
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return invalid("log.format", c.Log.Format, "Use text or json")
	}
	return nil
}

func invalid(key, value, suggestion string) error {
	return errors.New("E102").
		WithSubject(key).
		WithDetail(fmt.Sprintf("%s: %q is not valid", key, value)).
		WithSuggestion(suggestion)
}

func isIdent(s string) bool {
	for i, r := range s {
		if r == '_' || 'a' <= r && r <= 'z' || 'A' <= r && r <= 'Z' || i > 0 && '0' <= r && r <= '9' {
			continue
		}
		return false
	}
	return s != ""
}

// EmitConfig returns the emitter configuration.
func (c *Config) EmitConfig() propgen.EmitConfig {
	return propgen.EmitConfig{
		StoreImport: c.Store.Import,
		StoreAlias:  c.Store.Alias,
		Register:    c.Store.Register,
		GetValue:    c.Store.GetValue,
		SetValue:    c.Store.SetValue,
	}
}

// WatchInterval returns the parsed polling interval.
func (c *Config) WatchInterval() time.Duration {
	d, err := time.ParseDuration(c.Watch.Interval)
	if err != nil || d <= 0 {
		return DefaultWatchInterval
	}
	return d
}

// LogLevel returns the parsed log level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(strings.ToUpper(c.Log.Level)))
	return level, err
}

// OutPath returns the absolute output directory, or "" when artifacts are
// written next to their owning types.
func (c *Config) OutPath() string {
	if c.Out == "" {
		return ""
	}
	if filepath.IsAbs(c.Out) {
		return c.Out
	}
	return filepath.Join(c.Dir(), c.Out)
}

// HasRemoteCache reports whether the S3 artifact cache is configured.
func (c *Config) HasRemoteCache() bool {
	return c.Cache.S3.Bucket != ""
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	for _, name := range ConfigFileNames {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}

// FindProjectRoot walks up directories to find the project root.
// Returns the directory containing propgen.yaml, or an error if not found.
func FindProjectRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		if Exists(dir) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("E103").
				WithDetail("No " + ConfigFileName + " found in " + startDir + " or any parent directory")
		}
		dir = parent
	}
}

// LoadFromDir loads the configuration of the project containing dir. When
// no configuration file exists the defaults are returned, rooted at dir.
func LoadFromDir(dir string) (*Config, error) {
	root, err := FindProjectRoot(dir)
	if err != nil {
		abs, absErr := filepath.Abs(dir)
		if absErr != nil {
			return nil, absErr
		}
		cfg := New()
		cfg.configPath = filepath.Join(abs, ConfigFileName)
		return cfg, nil
	}
	return Load(root)
}
