package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvConfigPath names the environment variable holding the config file path.
const EnvConfigPath = "RELAYCHAT_CONFIG"

const envPrefix = "RELAYCHAT"

// RateLimitConfig defines the per-connection message rate limit.
type RateLimitConfig struct {
	Burst          int           `mapstructure:"burst"`
	RefillInterval time.Duration `mapstructure:"refill_interval"`
}

// LogConfig controls the operator log.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
	// File, when set, receives a copy of the log with size based rotation.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// Config holds the settings shared by both roles.
type Config struct {
	// Host is dialed by the peer.
	Host string `mapstructure:"host"`
	// BindHost is the interface the hub listens on.
	BindHost string `mapstructure:"bind_host"`
	// Path is the WebSocket endpoint path.
	Path string `mapstructure:"path"`
	// Mode is the HTTP router mode: release or debug.
	Mode string `mapstructure:"mode"`

	AllowedOrigins []string `mapstructure:"allowed_origins"`
	MaxMessageSize int64    `mapstructure:"max_message_size"`
	SendBuffer     int      `mapstructure:"send_buffer"`

	WriteWait       time.Duration `mapstructure:"write_wait"`
	PongWait        time.Duration `mapstructure:"pong_wait"`
	PingPeriod      time.Duration `mapstructure:"ping_period"`
	CloseTimeout    time.Duration `mapstructure:"close_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Log       LogConfig       `mapstructure:"log"`
}

// Default returns a Config populated with default values for all settings.
func Default() *Config {
	return &Config{
		Host:            "localhost",
		BindHost:        "0.0.0.0",
		Path:            "/",
		Mode:            "release",
		AllowedOrigins:  []string{"http://localhost"},
		MaxMessageSize:  1024,
		SendBuffer:      256,
		WriteWait:       10 * time.Second,
		PongWait:        60 * time.Second,
		PingPeriod:      54 * time.Second,
		CloseTimeout:    2 * time.Second,
		ShutdownTimeout: 5 * time.Second,
		RateLimit: RateLimitConfig{
			Burst:          5,
			RefillInterval: time.Second,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 28,
			Compress:   true,
		},
	}
}

// Load reads the configuration. An empty path falls back to
// RELAYCHAT_CONFIG and then to an optional ./relaychat.yaml.
func Load(path string) (*Config, error) {
	v, err := newViper(path)
	if err != nil {
		return nil, err
	}
	return decode(v)
}

func newViper(path string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		return v, nil
	}

	v.SetConfigName("relaychat")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("host", d.Host)
	v.SetDefault("bind_host", d.BindHost)
	v.SetDefault("path", d.Path)
	v.SetDefault("mode", d.Mode)
	v.SetDefault("allowed_origins", d.AllowedOrigins)
	v.SetDefault("max_message_size", d.MaxMessageSize)
	v.SetDefault("send_buffer", d.SendBuffer)
	v.SetDefault("write_wait", d.WriteWait)
	v.SetDefault("pong_wait", d.PongWait)
	v.SetDefault("ping_period", d.PingPeriod)
	v.SetDefault("close_timeout", d.CloseTimeout)
	v.SetDefault("shutdown_timeout", d.ShutdownTimeout)
	v.SetDefault("rate_limit.burst", d.RateLimit.Burst)
	v.SetDefault("rate_limit.refill_interval", d.RateLimit.RefillInterval)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
	v.SetDefault("log.compress", d.Log.Compress)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	sanitize(&cfg)
	return &cfg, nil
}

func sanitize(cfg *Config) {
	d := Default()

	if strings.TrimSpace(cfg.Host) == "" {
		cfg.Host = d.Host
	}
	if strings.TrimSpace(cfg.BindHost) == "" {
		cfg.BindHost = d.BindHost
	}
	if !strings.HasPrefix(cfg.Path, "/") {
		cfg.Path = "/" + cfg.Path
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = d.MaxMessageSize
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = d.SendBuffer
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = d.WriteWait
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = d.PongWait
	}
	// Pings must go out before the remote read deadline expires.
	if cfg.PingPeriod <= 0 || cfg.PingPeriod >= cfg.PongWait {
		cfg.PingPeriod = (cfg.PongWait * 9) / 10
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = d.CloseTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = d.ShutdownTimeout
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = d.RateLimit.Burst
	}
	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = d.RateLimit.RefillInterval
	}

	origins := cfg.AllowedOrigins[:0]
	for _, o := range cfg.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	cfg.AllowedOrigins = origins
}

// PeerURL is the hub endpoint a peer dials for port.
func (c *Config) PeerURL(port int) string {
	return "ws://" + net.JoinHostPort(c.Host, strconv.Itoa(port)) + c.Path
}

// ListenAddress is the address the hub binds for port.
func (c *Config) ListenAddress(port int) string {
	return net.JoinHostPort(c.BindHost, strconv.Itoa(port))
}
