package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultAPIBaseURL     = "http://localhost:8084"
	DefaultAPITimeout     = 15 * time.Second
	DefaultReconnectDelay = 5 * time.Second
	DefaultWebAddr        = "127.0.0.1:8080"
	DefaultHistorySize    = 500
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
	DefaultTokenEnv       = "TRADEDASH_TOKEN"

	envPrefix = "TRADEDASH_"
)

type Config struct {
	API       APIConfig       `yaml:"api"`
	Streams   []StreamConfig  `yaml:"streams"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Auth      AuthConfig      `yaml:"auth"`
	Web       WebConfig       `yaml:"web"`
	Log       LogConfig       `yaml:"log"`
}

type APIConfig struct {
	// BaseURL is the root of the remote trading API, e.g. http://localhost:8084.
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// StreamConfig names one server-push endpoint. The token is appended as a
// query parameter at connect time, so URL should not carry one.
type StreamConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// ReconnectConfig tunes the stream client's retry policy. With both stop
// lists empty the client retries forever after Delay.
type ReconnectConfig struct {
	Delay            time.Duration `yaml:"delay"`
	StopOnCloseCodes []int         `yaml:"stop_on_close_codes"`
	StopOnStatuses   []int         `yaml:"stop_on_statuses"`
}

type AuthConfig struct {
	TokenFile string `yaml:"token_file"`
	TokenEnv  string `yaml:"token_env"`
	Username  string `yaml:"username"`
}

type WebConfig struct {
	Addr        string `yaml:"addr"`
	HistorySize int    `yaml:"history_size"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Overrides are command-line values that win over the file and environment.
// Empty fields leave the loaded value alone.
type Overrides struct {
	APIBaseURL string
	LogLevel   string
}

// Load reads the YAML file at path, applies defaults and TRADEDASH_* env
// overrides, and validates the result. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	return LoadWith(path, Overrides{})
}

// LoadWith is Load with flag overrides applied after the environment, so
// stream URLs derived from the API base URL follow an overridden one.
func LoadWith(path string, o Overrides) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse yaml: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if o.APIBaseURL != "" {
		cfg.API.BaseURL = o.APIBaseURL
	}
	if o.LogLevel != "" {
		cfg.Log.Level = o.LogLevel
	}
	if len(cfg.Streams) == 0 {
		cfg.Streams = defaultStreams(cfg.API.BaseURL)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Default returns a Config pre-populated with default values.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: DefaultAPIBaseURL,
			Timeout: DefaultAPITimeout,
		},
		Reconnect: ReconnectConfig{Delay: DefaultReconnectDelay},
		Auth: AuthConfig{
			TokenFile: defaultTokenFile(),
			TokenEnv:  DefaultTokenEnv,
		},
		Web: WebConfig{
			Addr:        DefaultWebAddr,
			HistorySize: DefaultHistorySize,
		},
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// defaultStreams derives the two stream endpoints from the API base URL.
func defaultStreams(baseURL string) []StreamConfig {
	wsBase := baseURL
	switch {
	case strings.HasPrefix(wsBase, "https://"):
		wsBase = "wss://" + strings.TrimPrefix(wsBase, "https://")
	case strings.HasPrefix(wsBase, "http://"):
		wsBase = "ws://" + strings.TrimPrefix(wsBase, "http://")
	}
	wsBase = strings.TrimSuffix(wsBase, "/")
	return []StreamConfig{
		{Name: "market-data", URL: wsBase + "/ws/market-data"},
		{Name: "trade-updates", URL: wsBase + "/ws/trade-updates"},
	}
}

func defaultTokenFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".tradedash-token"
	}
	return dir + string(os.PathSeparator) + "tradedash" + string(os.PathSeparator) + "token"
}

func applyEnv(cfg *Config) error {
	if v, ok := lookup("API_BASE_URL"); ok {
		cfg.API.BaseURL = v
	}
	if v, ok := lookup("API_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sAPI_TIMEOUT: %w", envPrefix, err)
		}
		cfg.API.Timeout = d
	}
	if v, ok := lookup("RECONNECT_DELAY"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sRECONNECT_DELAY: %w", envPrefix, err)
		}
		cfg.Reconnect.Delay = d
	}
	if v, ok := lookup("TOKEN_FILE"); ok {
		cfg.Auth.TokenFile = v
	}
	if v, ok := lookup("WEB_ADDR"); ok {
		cfg.Web.Addr = v
	}
	if v, ok := lookup("HISTORY_SIZE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sHISTORY_SIZE: %w", envPrefix, err)
		}
		cfg.Web.HistorySize = n
	}
	if v, ok := lookup("LOG_LEVEL"); ok {
		cfg.Log.Level = v
	}
	if v, ok := lookup("LOG_FORMAT"); ok {
		cfg.Log.Format = v
	}
	return nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

// Validate checks required fields and structural constraints.
func (c *Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("api.base_url must be an http(s) URL, got %q", c.API.BaseURL))
	}
	if c.API.Timeout <= 0 {
		errs = append(errs, errors.New("api.timeout must be positive"))
	}
	if c.Reconnect.Delay <= 0 {
		errs = append(errs, errors.New("reconnect.delay must be positive"))
	}
	if c.Web.HistorySize <= 0 {
		errs = append(errs, errors.New("web.history_size must be positive"))
	}

	seen := make(map[string]bool)
	for i, s := range c.Streams {
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("streams[%d]: name is required", i))
			continue
		}
		if seen[s.Name] {
			errs = append(errs, fmt.Errorf("streams[%d]: duplicate name %q", i, s.Name))
		}
		seen[s.Name] = true
		su, err := url.Parse(s.URL)
		if err != nil || su.Host == "" {
			errs = append(errs, fmt.Errorf("streams[%d] %q: invalid url %q", i, s.Name, s.URL))
			continue
		}
		switch su.Scheme {
		case "ws", "wss", "http", "https", "tcp":
		default:
			errs = append(errs, fmt.Errorf("streams[%d] %q: unsupported scheme %q", i, s.Name, su.Scheme))
		}
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level: unknown level %q", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// Stream returns the named stream config.
func (c *Config) Stream(name string) (StreamConfig, bool) {
	for _, s := range c.Streams {
		if s.Name == name {
			return s, true
		}
	}
	return StreamConfig{}, false
}
