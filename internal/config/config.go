package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// DefaultOrigin is the bot backend botpanel talks to when none is configured.
const DefaultOrigin = "https://botcback2025.onrender.com"

// Config is the top-level configuration for botpanel.
type Config struct {
	Listen  ListenConfig  `yaml:"listen"`
	Backend BackendConfig `yaml:"backend"`
	Poll    PollConfig    `yaml:"poll"`
	Store   StoreConfig   `yaml:"store"`
	Log     LogConfig     `yaml:"log"`
}

// ListenConfig defines where the dashboard and its API are served.
type ListenConfig struct {
	APIPort int    `yaml:"api_port"`
	APIBind string `yaml:"api_bind"`
	APIKey  string `yaml:"api_key"`
	TLSCert string `yaml:"tls_cert"`
	TLSKey  string `yaml:"tls_key"`
}

// BackendConfig points at the bot backend exposing /api/qr, /api/status,
// /api/users and /api/logout.
type BackendConfig struct {
	Origin         string        `yaml:"origin"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// PollConfig controls the polling loop.
type PollConfig struct {
	Interval         time.Duration `yaml:"interval"`
	FailureThreshold int           `yaml:"failure_threshold"`
}

// StoreConfig selects where the activation-notified flag is persisted.
type StoreConfig struct {
	Driver    string `yaml:"driver"` // memory, file, sqlite or redis
	Path      string `yaml:"path"`
	RedisAddr string `yaml:"redis_addr"`
	RedisPass string `yaml:"redis_password"`
	RedisDB   int    `yaml:"redis_db"`
	Key       string `yaml:"key"`
}

// LogConfig selects slog level and handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TLSEnabled returns true if both TLS cert and key paths are configured.
func (lc ListenConfig) TLSEnabled() bool {
	return lc.TLSCert != "" && lc.TLSKey != ""
}

// Redacted returns a copy of the Config with secrets masked.
func (c Config) Redacted() Config {
	r := c
	if r.Listen.APIKey != "" {
		r.Listen.APIKey = "***REDACTED***"
	}
	if r.Store.RedisPass != "" {
		r.Store.RedisPass = "***REDACTED***"
	}
	return r
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// substituteEnvVars replaces ${VAR_NAME} patterns with environment variable values.
func substituteEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := envVarPattern.FindSubmatch(match)[1]
		if val, ok := os.LookupEnv(string(varName)); ok {
			return []byte(val)
		}
		return match
	})
}

// Default returns a configuration with every default applied, used when no
// config file exists.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads and parses a YAML config file with env var substitution.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	data = substituteEnvVars(data)

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Listen.APIPort == 0 {
		cfg.Listen.APIPort = 8080
	}
	if cfg.Listen.APIBind == "" {
		cfg.Listen.APIBind = "127.0.0.1"
	}
	if cfg.Backend.Origin == "" {
		cfg.Backend.Origin = DefaultOrigin
	}
	cfg.Backend.Origin = strings.TrimRight(cfg.Backend.Origin, "/")
	if cfg.Backend.RequestTimeout == 0 {
		cfg.Backend.RequestTimeout = 10 * time.Second
	}
	if cfg.Poll.Interval == 0 {
		cfg.Poll.Interval = 5 * time.Second
	}
	if cfg.Poll.FailureThreshold == 0 {
		cfg.Poll.FailureThreshold = 3
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "file"
	}
	if cfg.Store.Path == "" {
		switch cfg.Store.Driver {
		case "sqlite":
			cfg.Store.Path = "botpanel.db"
		case "file":
			cfg.Store.Path = "botpanel-state.yaml"
		}
	}
	if cfg.Store.Key == "" {
		cfg.Store.Key = "alertShown"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

func validate(cfg *Config) error {
	u, err := url.Parse(cfg.Backend.Origin)
	if err != nil {
		return fmt.Errorf("backend origin %q: %w", cfg.Backend.Origin, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("backend origin %q: scheme must be http or https", cfg.Backend.Origin)
	}
	if u.Host == "" {
		return fmt.Errorf("backend origin %q: host is required", cfg.Backend.Origin)
	}
	if cfg.Backend.RequestTimeout < 0 {
		return fmt.Errorf("backend request_timeout must be positive")
	}
	if cfg.Poll.Interval < 100*time.Millisecond {
		return fmt.Errorf("poll interval %s is too short (minimum 100ms)", cfg.Poll.Interval)
	}
	if cfg.Poll.FailureThreshold < 0 {
		return fmt.Errorf("poll failure_threshold must be positive")
	}
	if cfg.Listen.APIPort < 0 || cfg.Listen.APIPort > 65535 {
		return fmt.Errorf("listen api_port %d out of range", cfg.Listen.APIPort)
	}
	if envVarPattern.MatchString(cfg.Listen.APIKey) {
		return fmt.Errorf("listen api_key %q references an unset environment variable", cfg.Listen.APIKey)
	}
	if envVarPattern.MatchString(cfg.Store.RedisPass) {
		return fmt.Errorf("store redis_password references an unset environment variable")
	}
	switch cfg.Store.Driver {
	case "memory":
	case "file", "sqlite":
		if cfg.Store.Path == "" {
			return fmt.Errorf("store driver %q: path is required", cfg.Store.Driver)
		}
	case "redis":
		if cfg.Store.RedisAddr == "" {
			return fmt.Errorf("store driver redis: redis_addr is required")
		}
	default:
		return fmt.Errorf("unsupported store driver %q (must be memory, file, sqlite or redis)", cfg.Store.Driver)
	}
	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported log level %q", cfg.Log.Level)
	}
	if cfg.Log.Format != "text" && cfg.Log.Format != "json" {
		return fmt.Errorf("unsupported log format %q (must be text or json)", cfg.Log.Format)
	}
	return nil
}

// Watcher watches a config file for changes and calls the callback with the new config.
type Watcher struct {
	path     string
	callback func(*Config)
	watcher  *fsnotify.Watcher
	mu       sync.Mutex
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewWatcher creates a new config file watcher.
func NewWatcher(path string, callback func(*Config)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	if err := w.Add(path); err != nil {
		w.Close()
		return nil, fmt.Errorf("watching config file: %w", err)
	}

	cw := &Watcher{
		path:     path,
		callback: callback,
		watcher:  w,
		stopCh:   make(chan struct{}),
	}

	go cw.run()
	return cw, nil
}

func (cw *Watcher) run() {
	// Editors tend to emit several events per save.
	var debounce *time.Timer
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(500*time.Millisecond, func() {
					cw.reload()
				})
			}
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[config] watcher error: %v", err)
		case <-cw.stopCh:
			if debounce != nil {
				debounce.Stop()
			}
			return
		}
	}
}

func (cw *Watcher) reload() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cfg, err := Load(cw.path)
	if err != nil {
		log.Printf("[config] hot-reload failed: %v", err)
		return
	}

	log.Printf("[config] configuration reloaded from %s", cw.path)
	cw.callback(cfg)
}

// Stop stops the config watcher. Safe to call multiple times.
func (cw *Watcher) Stop() error {
	var err error
	cw.stopOnce.Do(func() {
		close(cw.stopCh)
		err = cw.watcher.Close()
	})
	return err
}
