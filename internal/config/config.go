// Package config loads checker settings from defaults, an optional config
// file, CHECKER_* environment variables (a .env file is honoured) and
// command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"social-checker/internal/export"
)

// EnvPrefix is prepended to every environment variable
const EnvPrefix = "CHECKER"

// Config holds every setting of the checker
type Config struct {
	Workers       int
	MinDelay      time.Duration
	MaxDelay      time.Duration
	PollInterval  time.Duration
	ProbeTimeout  time.Duration
	StatsInterval time.Duration
	MaxBodyBytes  int64
	UserAgent     string

	Platform      string
	PlatformsFile string
	Input         string
	OutputDir     string
	Format        string

	IncludePlatform bool
	FoldUnknown     bool
	Dedupe          bool
	StreamResults   bool

	LogFile  string
	LogLevel string

	Serve    bool
	Listen   string
	APIToken string

	TelegramToken  string
	TelegramChatID int64
}

type option struct {
	key   string
	flag  string
	short string
	def   any
	usage string
}

var options = []option{
	{"workers", "workers", "w", 5, "number of concurrent workers"},
	{"min_delay", "min-delay", "", time.Second, "minimum delay between probes of one worker"},
	{"max_delay", "max-delay", "", 2 * time.Second, "maximum delay between probes of one worker"},
	{"poll_interval", "poll-interval", "", 100 * time.Millisecond, "how often idle workers re-check the queue"},
	{"probe_timeout", "probe-timeout", "", 30 * time.Second, "timeout of a single profile request"},
	{"stats_interval", "stats-interval", "", 60 * time.Second, "progress log interval, 0 disables"},
	{"max_body_bytes", "max-body-bytes", "", int64(2 << 20), "largest page kept in memory"},
	{"user_agent", "user-agent", "", "", "User-Agent header for profile requests"},
	{"platform", "platform", "p", "instagram", "platform to check"},
	{"platforms_file", "platforms-file", "", "", "YAML file with extra platform definitions"},
	{"input", "input", "i", "accounts.txt", "accounts file, one username or username:password per line"},
	{"output_dir", "output-dir", "o", "results", "directory for result files"},
	{"format", "format", "f", "txt", "export format: txt or csv"},
	{"include_platform", "include-platform", "", false, "add a platform column to CSV exports"},
	{"fold_unknown", "fold-unknown", "", false, "export unknown results with errors"},
	{"dedupe", "dedupe", "", false, "drop repeated usernames"},
	{"stream_results", "stream-results", "", true, "append results to per-status files while running"},
	{"log_file", "log-file", "", "checker.log", "JSON log file, empty disables"},
	{"log_level", "log-level", "", "info", "debug, info, warn or error"},
	{"serve", "serve", "", false, "run the HTTP control API instead of a single batch"},
	{"listen", "listen", "", ":8080", "HTTP listen address"},
	{"api_token", "api-token", "", "", "bearer token required by the HTTP API"},
	{"telegram_token", "telegram-token", "", "", "Telegram bot token for run summaries"},
	{"telegram_chat_id", "telegram-chat-id", "", int64(0), "Telegram chat receiving run summaries"},
}

// Load parses args (without the program name) and the environment
func Load(args []string) (Config, error) {
	fs := pflag.NewFlagSet("social-checker", pflag.ContinueOnError)
	configFile := fs.StringP("config", "c", "", "config file (yaml, json or toml)")
	envFile := fs.String("env-file", ".env", "dotenv file loaded before reading the environment")

	for _, o := range options {
		switch d := o.def.(type) {
		case int:
			fs.IntP(o.flag, o.short, d, o.usage)
		case int64:
			fs.Int64P(o.flag, o.short, d, o.usage)
		case bool:
			fs.BoolP(o.flag, o.short, d, o.usage)
		case time.Duration:
			fs.DurationP(o.flag, o.short, d, o.usage)
		case string:
			fs.StringP(o.flag, o.short, d, o.usage)
		}
	}
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("env file %s: %w", *envFile, err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	for _, o := range options {
		v.SetDefault(o.key, o.def)
		if err := v.BindPFlag(o.key, fs.Lookup(o.flag)); err != nil {
			return Config{}, err
		}
	}

	if *configFile != "" {
		v.SetConfigFile(*configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config file %s: %w", *configFile, err)
		}
	}

	// a positional argument names the accounts file
	if fs.NArg() > 0 {
		v.Set("input", fs.Arg(0))
	}

	cfg := Config{
		Workers:         v.GetInt("workers"),
		MinDelay:        v.GetDuration("min_delay"),
		MaxDelay:        v.GetDuration("max_delay"),
		PollInterval:    v.GetDuration("poll_interval"),
		ProbeTimeout:    v.GetDuration("probe_timeout"),
		StatsInterval:   v.GetDuration("stats_interval"),
		MaxBodyBytes:    v.GetInt64("max_body_bytes"),
		UserAgent:       v.GetString("user_agent"),
		Platform:        v.GetString("platform"),
		PlatformsFile:   v.GetString("platforms_file"),
		Input:           v.GetString("input"),
		OutputDir:       v.GetString("output_dir"),
		Format:          v.GetString("format"),
		IncludePlatform: v.GetBool("include_platform"),
		FoldUnknown:     v.GetBool("fold_unknown"),
		Dedupe:          v.GetBool("dedupe"),
		StreamResults:   v.GetBool("stream_results"),
		LogFile:         v.GetString("log_file"),
		LogLevel:        v.GetString("log_level"),
		Serve:           v.GetBool("serve"),
		Listen:          v.GetString("listen"),
		APIToken:        v.GetString("api_token"),
		TelegramToken:   v.GetString("telegram_token"),
		TelegramChatID:  v.GetInt64("telegram_chat_id"),
	}
	return cfg, cfg.Validate()
}

// Validate checks settings that would make a run misbehave
func (c Config) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.MinDelay < 0 || c.MaxDelay < 0 {
		return errors.New("delays must not be negative")
	}
	if c.MinDelay > c.MaxDelay {
		return fmt.Errorf("min_delay %s exceeds max_delay %s", c.MinDelay, c.MaxDelay)
	}
	if c.PollInterval <= 0 {
		return errors.New("poll_interval must be positive")
	}
	if _, err := export.ParseFormat(c.Format); err != nil {
		return err
	}
	if c.TelegramToken != "" && c.TelegramChatID == 0 {
		return errors.New("telegram_chat_id is required with telegram_token")
	}
	if !c.Serve && c.Input == "" {
		return errors.New("no input file")
	}
	return nil
}
