package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/rohmanhakim/feed-updater/internal/config"
	"github.com/spf13/cobra"
)

var (
	cfgFile          string
	concurrency      int
	dispatchInterval time.Duration
	maxRetries       int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	retryJitter      time.Duration
	randomSeed       int64
	userAgent        string
	timeout          time.Duration
	hostDelay        time.Duration
	hostJitter       time.Duration
	offline          bool
	stateDir         string
	logLevel         string
	logFormat        string
	metricsAddr      string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "feedupd",
	Short: "A concurrent feed update engine.",
	Long: `feedupd fetches feed sources (HTTP URLs, local files or "|command"
pipelines), optionally runs them through a conversion filter, and reports
each result exactly once.

Transient network failures are retried with exponential backoff.
Conditional request state (ETag, Last-Modified, cookies) can be persisted
between runs with --state-dir.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "config file path, JSON or YAML (e.g., /home/myuser/feedupd.yaml)")
	rootCmd.PersistentFlags().IntVar(&concurrency, "concurrency", 0, "number of fetch workers (minimum 2)")
	rootCmd.PersistentFlags().DurationVar(&dispatchInterval, "dispatch-interval", 0, "period of the result dispatcher")
	rootCmd.PersistentFlags().IntVar(&maxRetries, "max-retries", -1, "maximum retries of a transient failure (-1 for default)")
	rootCmd.PersistentFlags().DurationVar(&retryBaseDelay, "retry-base-delay", 0, "delay before the first retry")
	rootCmd.PersistentFlags().DurationVar(&retryMaxDelay, "retry-max-delay", 0, "cap on the retry delay")
	rootCmd.PersistentFlags().DurationVar(&retryJitter, "retry-jitter", 0, "random jitter added to the retry delay")
	rootCmd.PersistentFlags().Int64Var(&randomSeed, "random-seed", 0, "seed for random number generation (0 for current time)")
	rootCmd.PersistentFlags().StringVar(&userAgent, "user-agent", "", "user agent string for HTTP requests")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "timeout for HTTP requests")
	rootCmd.PersistentFlags().DurationVar(&hostDelay, "host-delay", 0, "minimum delay between HTTP requests to the same host")
	rootCmd.PersistentFlags().DurationVar(&hostJitter, "host-jitter", 0, "random jitter added to the per-host delay")
	rootCmd.PersistentFlags().BoolVar(&offline, "offline", false, "start offline; nothing is fetched")
	rootCmd.PersistentFlags().StringVar(&stateDir, "state-dir", "", "directory for persisted update state (empty keeps it in memory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "DEBUG, INFO, WARN or ERROR")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "text or json")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g., :9090)")

	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(faviconCmd)
	rootCmd.AddCommand(versionCmd)
}

// InitConfigWithError reads the config file when one is given, otherwise
// builds the config from flag values on top of the defaults.
func InitConfigWithError() (config.Config, error) {
	if cfgFile != "" {
		cfg, err := config.WithConfigFile(cfgFile)
		if err != nil {
			return cfg, fmt.Errorf("error initializing config from file: %w", err)
		}
		return cfg, nil
	}

	configBuilder := config.WithDefault()

	// Override with CLI flag values where provided
	if concurrency > 0 {
		configBuilder = configBuilder.WithConcurrency(concurrency)
	}

	if dispatchInterval > 0 {
		configBuilder = configBuilder.WithDispatchInterval(dispatchInterval)
	}

	if maxRetries >= 0 {
		configBuilder = configBuilder.WithMaxRetries(maxRetries)
	}

	if retryBaseDelay > 0 {
		configBuilder = configBuilder.WithRetryBaseDelay(retryBaseDelay)
	}

	if retryMaxDelay > 0 {
		configBuilder = configBuilder.WithRetryMaxDelay(retryMaxDelay)
	}

	if retryJitter > 0 {
		configBuilder = configBuilder.WithRetryJitter(retryJitter)
	}

	if randomSeed != 0 {
		configBuilder = configBuilder.WithRandomSeed(randomSeed)
	}

	if userAgent != "" {
		configBuilder = configBuilder.WithUserAgent(userAgent)
	}

	if timeout > 0 {
		configBuilder = configBuilder.WithTimeout(timeout)
	}

	if hostDelay > 0 {
		configBuilder = configBuilder.WithHostDelay(hostDelay)
	}

	if hostJitter > 0 {
		configBuilder = configBuilder.WithHostJitter(hostJitter)
	}

	if offline {
		configBuilder = configBuilder.WithOnline(false)
	}

	if stateDir != "" {
		configBuilder = configBuilder.WithStateDir(stateDir)
	}

	if logLevel != "" {
		configBuilder = configBuilder.WithLogLevel(logLevel)
	}

	if logFormat != "" {
		configBuilder = configBuilder.WithLogFormat(logFormat)
	}

	if metricsAddr != "" {
		configBuilder = configBuilder.WithMetricsAddr(metricsAddr)
	}

	return configBuilder.Build()
}

func ResetFlags() {
	cfgFile = ""
	concurrency = 0
	dispatchInterval = 0
	maxRetries = -1
	retryBaseDelay = 0
	retryMaxDelay = 0
	retryJitter = 0
	randomSeed = 0
	userAgent = ""
	timeout = 0
	hostDelay = 0
	hostJitter = 0
	offline = false
	stateDir = ""
	logLevel = ""
	logFormat = ""
	metricsAddr = ""
	resetFetchFlags()
	resetFaviconFlags()
}

// Test helper functions to set flag values from tests
func SetConfigFileForTest(path string) {
	cfgFile = path
}

func SetConcurrencyForTest(conc int) {
	concurrency = conc
}

func SetDispatchIntervalForTest(interval time.Duration) {
	dispatchInterval = interval
}

func SetMaxRetriesForTest(retries int) {
	maxRetries = retries
}

func SetRetryBaseDelayForTest(delay time.Duration) {
	retryBaseDelay = delay
}

func SetUserAgentForTest(agent string) {
	userAgent = agent
}

func SetTimeoutForTest(t time.Duration) {
	timeout = t
}

func SetHostDelayForTest(delay time.Duration) {
	hostDelay = delay
}

func SetHostJitterForTest(jitter time.Duration) {
	hostJitter = jitter
}

func SetOfflineForTest(off bool) {
	offline = off
}

func SetStateDirForTest(dir string) {
	stateDir = dir
}

func SetLogFormatForTest(format string) {
	logFormat = format
}
