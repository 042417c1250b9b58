package ws

import (
	"time"

	"github.com/Tyrowin/relaychat/internal/config"
)

// Options tune both the server and the dialer.
type Options struct {
	Path           string
	Mode           string
	AllowedOrigins []string
	MaxMessageSize int64
	SendBuffer     int
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	CloseTimeout   time.Duration
	RateBurst      int
	RateInterval   time.Duration
}

// OptionsFromConfig maps the loaded configuration onto transport options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Path:           cfg.Path,
		Mode:           cfg.Mode,
		AllowedOrigins: append([]string(nil), cfg.AllowedOrigins...),
		MaxMessageSize: cfg.MaxMessageSize,
		SendBuffer:     cfg.SendBuffer,
		WriteWait:      cfg.WriteWait,
		PongWait:       cfg.PongWait,
		PingPeriod:     cfg.PingPeriod,
		CloseTimeout:   cfg.CloseTimeout,
		RateBurst:      cfg.RateLimit.Burst,
		RateInterval:   cfg.RateLimit.RefillInterval,
	}
}

// DefaultOptions returns the options derived from the default configuration.
func DefaultOptions() Options {
	return OptionsFromConfig(config.Default())
}
