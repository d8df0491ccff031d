package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	AppName        = "SetScript"
	configFileName = "config.yaml"
	logFileName    = "setscript.log"

	// The first release kept its data under Documents/SetScript.
	legacyParent   = "Documents"
	collectionFile = "bookmarks.json"
)

type Config struct {
	DataDir string // holds bookmarks.json, settings.json, icons/, snapshots/

	// LegacyDataDir is set when no data dir was requested and a first-release
	// collection exists. DataDir equals it when the current default location
	// has no collection yet.
	LegacyDataDir string

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)
	LogFile   string // empty => stderr only

	WindowWidth  int // initial size when settings.json has no geometry
	WindowHeight int

	WatchChanges bool // reload and fan out when bookmarks.json changes on disk

	// Offline snapshots
	Offline           bool
	SnapshotTimeout   time.Duration
	SnapshotUserAgent string

	// Redis mirror (optional, empty addr = disabled)
	RedisAddr           string
	RedisUser           string
	RedisPassword       string
	RedisDB             int
	RedisKeyPrefix      string
	RedisConnectTimeout time.Duration // total time to retry connecting
	RedisRetryInterval  time.Duration // initial wait between retries, grows exponentially
	RedisMaxWait        time.Duration
	RedisPingTimeout    time.Duration
}

// fileConfig mirrors the subset of Config that config.yaml may set.
type fileConfig struct {
	LogLevel  *string `yaml:"log_level"`
	PrettyLog *bool   `yaml:"pretty_log"`
	LogFile   *string `yaml:"log_file"`

	Window struct {
		Width  *int `yaml:"width"`
		Height *int `yaml:"height"`
	} `yaml:"window"`

	WatchChanges *bool `yaml:"watch_changes"`

	Offline  *bool `yaml:"offline"`
	Snapshot struct {
		Timeout   *time.Duration `yaml:"timeout"`
		UserAgent *string        `yaml:"user_agent"`
	} `yaml:"snapshot"`

	Redis struct {
		Addr           *string        `yaml:"addr"`
		Username       *string        `yaml:"username"`
		Password       *string        `yaml:"password"`
		DB             *int           `yaml:"db"`
		KeyPrefix      *string        `yaml:"key_prefix"`
		ConnectTimeout *time.Duration `yaml:"connect_timeout"`
	} `yaml:"redis"`
}

// Default returns the configuration used when neither config.yaml nor the
// environment override anything.
func Default(dataDir string) *Config {
	return &Config{
		DataDir:   dataDir,
		LogLevel:  "info",
		PrettyLog: false,
		LogFile:   filepath.Join(dataDir, logFileName),

		WindowWidth:  1200,
		WindowHeight: 800,

		WatchChanges: true,

		Offline:           false,
		SnapshotTimeout:   20 * time.Second,
		SnapshotUserAgent: "Mozilla/5.0 (compatible; SetScript/1.0; +offline-snapshot)",

		RedisKeyPrefix:      "setscript",
		RedisConnectTimeout: 10 * time.Second,
		RedisRetryInterval:  500 * time.Millisecond,
		RedisMaxWait:        5 * time.Second,
		RedisPingTimeout:    2 * time.Second,
	}
}

// Load resolves the configuration: defaults, then <DataDir>/config.yaml, then
// SETSCRIPT_* environment variables (a .env file in the working directory is
// loaded first when present). dataDir overrides SETSCRIPT_DATA_DIR when set.
func Load(dataDir string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if dataDir == "" {
		dataDir = getenv("SETSCRIPT_DATA_DIR", "")
	}
	var legacy string
	if dataDir == "" {
		var err error
		dataDir, err = defaultDataDir()
		if err != nil {
			return nil, err
		}
		if legacy = legacyDataDir(); legacy != "" && !hasCollection(dataDir) {
			dataDir = legacy
		}
	}

	cfg := Default(dataDir)
	cfg.LegacyDataDir = legacy
	if err := cfg.applyFile(filepath.Join(dataDir, configFileName)); err != nil {
		return nil, err
	}
	cfg.applyEnv()

	if cfg.WindowWidth <= 0 || cfg.WindowHeight <= 0 {
		return nil, fmt.Errorf("invalid window size %dx%d", cfg.WindowWidth, cfg.WindowHeight)
	}
	return cfg, nil
}

func defaultDataDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		home, herr := os.UserHomeDir()
		if herr != nil {
			return "", fmt.Errorf("resolve data dir: %w", err)
		}
		dir = home
	}
	return filepath.Join(dir, AppName), nil
}

// legacyDataDir returns the first release's data directory when it still
// holds a collection.
func legacyDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ""
	}
	dir := filepath.Join(home, legacyParent, AppName)
	if !hasCollection(dir) {
		return ""
	}
	return dir
}

func hasCollection(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, collectionFile))
	return err == nil && info.Mode().IsRegular()
}

func (c *Config) applyFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	setString(&c.LogLevel, fc.LogLevel)
	setBool(&c.PrettyLog, fc.PrettyLog)
	setString(&c.LogFile, fc.LogFile)
	setInt(&c.WindowWidth, fc.Window.Width)
	setInt(&c.WindowHeight, fc.Window.Height)
	setBool(&c.WatchChanges, fc.WatchChanges)
	setBool(&c.Offline, fc.Offline)
	setDuration(&c.SnapshotTimeout, fc.Snapshot.Timeout)
	setString(&c.SnapshotUserAgent, fc.Snapshot.UserAgent)
	setString(&c.RedisAddr, fc.Redis.Addr)
	setString(&c.RedisUser, fc.Redis.Username)
	setString(&c.RedisPassword, fc.Redis.Password)
	setInt(&c.RedisDB, fc.Redis.DB)
	setString(&c.RedisKeyPrefix, fc.Redis.KeyPrefix)
	setDuration(&c.RedisConnectTimeout, fc.Redis.ConnectTimeout)
	return nil
}

func (c *Config) applyEnv() {
	c.LogLevel = getenv("SETSCRIPT_LOG_LEVEL", c.LogLevel)
	c.PrettyLog = mustBool("SETSCRIPT_PRETTY_LOG", c.PrettyLog)
	c.LogFile = getenv("SETSCRIPT_LOG_FILE", c.LogFile)
	if c.LogFile == "-" {
		c.LogFile = ""
	}

	c.WindowWidth = getenvInt("SETSCRIPT_WINDOW_WIDTH", c.WindowWidth)
	c.WindowHeight = getenvInt("SETSCRIPT_WINDOW_HEIGHT", c.WindowHeight)
	c.WatchChanges = mustBool("SETSCRIPT_WATCH_CHANGES", c.WatchChanges)

	c.Offline = mustBool("SETSCRIPT_OFFLINE", c.Offline)
	c.SnapshotTimeout = mustDuration("SETSCRIPT_SNAPSHOT_TIMEOUT", c.SnapshotTimeout)
	c.SnapshotUserAgent = getenv("SETSCRIPT_SNAPSHOT_USER_AGENT", c.SnapshotUserAgent)

	c.RedisAddr = getenv("SETSCRIPT_REDIS_ADDR", c.RedisAddr)
	c.RedisUser = getenv("SETSCRIPT_REDIS_USERNAME", c.RedisUser)
	c.RedisPassword = getenv("SETSCRIPT_REDIS_PASSWORD", c.RedisPassword)
	c.RedisDB = getenvInt("SETSCRIPT_REDIS_DB", c.RedisDB)
	c.RedisKeyPrefix = getenv("SETSCRIPT_REDIS_KEY_PREFIX", c.RedisKeyPrefix)
	c.RedisConnectTimeout = mustDuration("SETSCRIPT_REDIS_CONNECT_TIMEOUT", c.RedisConnectTimeout)
}

// Redacted returns a copy safe to log.
func (c *Config) Redacted() Config {
	cp := *c
	if cp.RedisPassword != "" {
		cp.RedisPassword = "***REDACTED***"
	}
	return cp
}

// helpers
func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return def
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *time.Duration) {
	if v != nil {
		*dst = *v
	}
}
