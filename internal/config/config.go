package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MinConcurrency is the smallest worker pool: one worker reserved for
// high-priority requests plus at least one general worker.
const MinConcurrency = 2

type Config struct {
	//===============
	// Workers
	//===============
	// Number of fetch worker goroutines. Raised to MinConcurrency when lower.
	concurrency int
	// Period of the result dispatcher tick
	dispatchInterval time.Duration

	//===============
	// Retry
	//===============
	// Whether transient failures are retried at all
	allowRetries bool
	// Maximum number of retries for one request
	maxRetries int
	// Delay before the first retry; each further retry triples it
	retryBaseDelay time.Duration
	// Cap on the retry delay
	retryMaxDelay time.Duration
	// Randomized variation added on top of the retry delay
	retryJitter time.Duration
	// Controls the random number generator used for jitter
	randomSeed int64

	//===============
	// Fetch
	//===============
	// Maximum time of a single network fetch
	timeout time.Duration
	// User agent sent with network fetches
	userAgent string
	// Minimum waiting time between two fetches to the same host
	hostDelay time.Duration
	// Randomized variation added on top of the host delay
	hostJitter time.Duration
	// Whether the engine starts online
	online bool

	//===============
	// Ambient
	//===============
	// Directory holding persisted update state. Empty keeps state in memory.
	stateDir string
	// DEBUG, INFO, WARN or ERROR
	logLevel string
	// text or json
	logFormat string
	// Listen address for the Prometheus endpoint. Empty disables metrics.
	metricsAddr string
}

type configDTO struct {
	Concurrency      int           `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`
	DispatchInterval time.Duration `json:"dispatchInterval,omitempty" yaml:"dispatchInterval,omitempty"`
	AllowRetries     *bool         `json:"allowRetries,omitempty" yaml:"allowRetries,omitempty"`
	MaxRetries       *int          `json:"maxRetries,omitempty" yaml:"maxRetries,omitempty"`
	RetryBaseDelay   time.Duration `json:"retryBaseDelay,omitempty" yaml:"retryBaseDelay,omitempty"`
	RetryMaxDelay    time.Duration `json:"retryMaxDelay,omitempty" yaml:"retryMaxDelay,omitempty"`
	RetryJitter      time.Duration `json:"retryJitter,omitempty" yaml:"retryJitter,omitempty"`
	RandomSeed       int64         `json:"randomSeed,omitempty" yaml:"randomSeed,omitempty"`
	Timeout          time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	UserAgent        string        `json:"userAgent,omitempty" yaml:"userAgent,omitempty"`
	HostDelay        time.Duration `json:"hostDelay,omitempty" yaml:"hostDelay,omitempty"`
	HostJitter       time.Duration `json:"hostJitter,omitempty" yaml:"hostJitter,omitempty"`
	Online           *bool         `json:"online,omitempty" yaml:"online,omitempty"`
	StateDir         string        `json:"stateDir,omitempty" yaml:"stateDir,omitempty"`
	LogLevel         string        `json:"logLevel,omitempty" yaml:"logLevel,omitempty"`
	LogFormat        string        `json:"logFormat,omitempty" yaml:"logFormat,omitempty"`
	MetricsAddr      string        `json:"metricsAddr,omitempty" yaml:"metricsAddr,omitempty"`
}

func newConfigFromDTO(dto configDTO) (Config, error) {
	cfg := WithDefault()

	// Only override if a non-zero value is provided
	if dto.Concurrency != 0 {
		cfg.concurrency = dto.Concurrency
	}
	if dto.DispatchInterval != 0 {
		cfg.dispatchInterval = dto.DispatchInterval
	}
	if dto.AllowRetries != nil {
		cfg.allowRetries = *dto.AllowRetries
	}
	// Zero retries is meaningful, hence the pointer
	if dto.MaxRetries != nil {
		cfg.maxRetries = *dto.MaxRetries
	}
	if dto.RetryBaseDelay != 0 {
		cfg.retryBaseDelay = dto.RetryBaseDelay
	}
	if dto.RetryMaxDelay != 0 {
		cfg.retryMaxDelay = dto.RetryMaxDelay
	}
	if dto.RetryJitter != 0 {
		cfg.retryJitter = dto.RetryJitter
	}
	if dto.RandomSeed != 0 {
		cfg.randomSeed = dto.RandomSeed
	}
	if dto.Timeout != 0 {
		cfg.timeout = dto.Timeout
	}
	if dto.UserAgent != "" {
		cfg.userAgent = dto.UserAgent
	}
	if dto.HostDelay != 0 {
		cfg.hostDelay = dto.HostDelay
	}
	if dto.HostJitter != 0 {
		cfg.hostJitter = dto.HostJitter
	}
	if dto.Online != nil {
		cfg.online = *dto.Online
	}
	if dto.StateDir != "" {
		cfg.stateDir = dto.StateDir
	}
	if dto.LogLevel != "" {
		cfg.logLevel = dto.LogLevel
	}
	if dto.LogFormat != "" {
		cfg.logFormat = dto.LogFormat
	}
	if dto.MetricsAddr != "" {
		cfg.metricsAddr = dto.MetricsAddr
	}

	return cfg.Build()
}

// WithConfigFile loads a JSON or YAML config file. The format is chosen by
// extension: .yaml and .yml are YAML, anything else is JSON.
func WithConfigFile(path string) (Config, error) {
	_, err := os.Stat(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrFileDoesNotExist, err.Error())
	}
	configContent, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrReadConfigFail, err.Error())
	}
	cfgDTO := configDTO{}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(configContent, &cfgDTO)
	default:
		err = json.Unmarshal(configContent, &cfgDTO)
	}
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrConfigParsingFail, err.Error())
	}

	return newConfigFromDTO(cfgDTO)
}

// WithDefault creates a new Config holding default values for every field.
func WithDefault() *Config {
	defaultConfig := Config{
		concurrency:      4,
		dispatchInterval: 100 * time.Millisecond,
		allowRetries:     true,
		maxRetries:       3,
		retryBaseDelay:   10 * time.Second,
		retryMaxDelay:    5 * time.Minute,
		retryJitter:      0,
		randomSeed:       time.Now().UnixNano(),
		timeout:          30 * time.Second,
		userAgent:        "feedupd/1.0",
		hostDelay:        0,
		hostJitter:       0,
		online:           true,
		stateDir:         "",
		logLevel:         "INFO",
		logFormat:        "text",
		metricsAddr:      "",
	}
	return &defaultConfig
}

func (c *Config) WithConcurrency(concurrency int) *Config {
	c.concurrency = concurrency
	return c
}

func (c *Config) WithDispatchInterval(interval time.Duration) *Config {
	c.dispatchInterval = interval
	return c
}

func (c *Config) WithAllowRetries(allow bool) *Config {
	c.allowRetries = allow
	return c
}

func (c *Config) WithMaxRetries(retries int) *Config {
	c.maxRetries = retries
	return c
}

func (c *Config) WithRetryBaseDelay(delay time.Duration) *Config {
	c.retryBaseDelay = delay
	return c
}

func (c *Config) WithRetryMaxDelay(delay time.Duration) *Config {
	c.retryMaxDelay = delay
	return c
}

func (c *Config) WithRetryJitter(jitter time.Duration) *Config {
	c.retryJitter = jitter
	return c
}

func (c *Config) WithRandomSeed(seed int64) *Config {
	c.randomSeed = seed
	return c
}

func (c *Config) WithTimeout(timeout time.Duration) *Config {
	c.timeout = timeout
	return c
}

func (c *Config) WithUserAgent(agent string) *Config {
	c.userAgent = agent
	return c
}

func (c *Config) WithHostDelay(delay time.Duration) *Config {
	c.hostDelay = delay
	return c
}

func (c *Config) WithHostJitter(jitter time.Duration) *Config {
	c.hostJitter = jitter
	return c
}

func (c *Config) WithOnline(online bool) *Config {
	c.online = online
	return c
}

func (c *Config) WithStateDir(dir string) *Config {
	c.stateDir = dir
	return c
}

func (c *Config) WithLogLevel(level string) *Config {
	c.logLevel = level
	return c
}

func (c *Config) WithLogFormat(format string) *Config {
	c.logFormat = format
	return c
}

func (c *Config) WithMetricsAddr(addr string) *Config {
	c.metricsAddr = addr
	return c
}

// Build validates the config and returns it by value.
func (c *Config) Build() (Config, error) {
	if c.concurrency < MinConcurrency {
		c.concurrency = MinConcurrency
	}
	if c.maxRetries < 0 {
		return Config{}, fmt.Errorf("%w: maxRetries cannot be negative", ErrInvalidConfig)
	}
	if c.retryBaseDelay <= 0 {
		return Config{}, fmt.Errorf("%w: retryBaseDelay must be positive", ErrInvalidConfig)
	}
	if c.retryMaxDelay < c.retryBaseDelay {
		return Config{}, fmt.Errorf("%w: retryMaxDelay cannot be shorter than retryBaseDelay", ErrInvalidConfig)
	}
	if c.retryJitter < 0 || c.hostDelay < 0 || c.hostJitter < 0 || c.timeout < 0 {
		return Config{}, fmt.Errorf("%w: durations cannot be negative", ErrInvalidConfig)
	}
	if c.dispatchInterval <= 0 {
		return Config{}, fmt.Errorf("%w: dispatchInterval must be positive", ErrInvalidConfig)
	}
	switch strings.ToLower(c.logFormat) {
	case "text", "json":
	default:
		return Config{}, fmt.Errorf("%w: logFormat must be text or json, got %q", ErrInvalidConfig, c.logFormat)
	}

	return *c, nil
}

func (c Config) Concurrency() int {
	return c.concurrency
}

func (c Config) DispatchInterval() time.Duration {
	return c.dispatchInterval
}

func (c Config) AllowRetries() bool {
	return c.allowRetries
}

func (c Config) MaxRetries() int {
	return c.maxRetries
}

func (c Config) RetryBaseDelay() time.Duration {
	return c.retryBaseDelay
}

func (c Config) RetryMaxDelay() time.Duration {
	return c.retryMaxDelay
}

func (c Config) RetryJitter() time.Duration {
	return c.retryJitter
}

func (c Config) RandomSeed() int64 {
	return c.randomSeed
}

func (c Config) Timeout() time.Duration {
	return c.timeout
}

func (c Config) UserAgent() string {
	return c.userAgent
}

func (c Config) HostDelay() time.Duration {
	return c.hostDelay
}

func (c Config) HostJitter() time.Duration {
	return c.hostJitter
}

func (c Config) Online() bool {
	return c.online
}

func (c Config) StateDir() string {
	return c.stateDir
}

func (c Config) LogLevel() string {
	return c.logLevel
}

func (c Config) LogFormat() string {
	return c.logFormat
}

func (c Config) MetricsAddr() string {
	return c.metricsAddr
}
