package ingest

import (
	"fmt"

	"github.com/c360/sensewatch/errors"
)

// MaxUDPPayload is the largest payload an IPv4 UDP datagram can carry.
const MaxUDPPayload = 65507

// RateLimitConfig caps the ingress rate of one stream.
type RateLimitConfig struct {
	Enable               bool `yaml:"enable"`
	MaxMessagesPerMinute int  `yaml:"maxMessagesPerMinute"`
	// Burst defaults to MaxMessagesPerMinute.
	Burst int `yaml:"burst"`
}

// Config is one stream's queue configuration.
type Config struct {
	QueueMaxSize   int             `yaml:"maxSize"`
	Workers        int             `yaml:"workers"`
	MaxMessageSize int             `yaml:"maxMessageSize"`
	RateLimit      RateLimitConfig `yaml:"rateLimit"`
	// Backpressure water marks, percent of QueueMaxSize.
	BackpressureHigh float64 `yaml:"backpressureThreshold"`
	BackpressureLow  float64 `yaml:"backpressureRelease"`
	LatencySamples   int     `yaml:"latencySamples"`
}

// DefaultConfig returns the defaults applied to zero fields.
func DefaultConfig() Config {
	return Config{
		QueueMaxSize:     1000,
		Workers:          1,
		MaxMessageSize:   MaxUDPPayload,
		BackpressureHigh: 80,
		BackpressureLow:  60,
		LatencySamples:   1000,
	}
}

// WithDefaults fills zero fields from DefaultConfig. QueueMaxSize is left
// alone so that an explicit 0 is still rejected by Validate. A release mark
// of 0 is a valid setting (release only once the queue drains), so the
// water marks are defaulted only when neither is set.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
	if c.BackpressureHigh == 0 && c.BackpressureLow == 0 {
		c.BackpressureHigh, c.BackpressureLow = d.BackpressureHigh, d.BackpressureLow
	} else if c.BackpressureHigh == 0 {
		c.BackpressureHigh = d.BackpressureHigh
	}
	if c.LatencySamples <= 0 {
		c.LatencySamples = d.LatencySamples
	}
	if c.RateLimit.Enable && c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = c.RateLimit.MaxMessagesPerMinute
	}
	return c
}

// Validate reports configuration that must stop startup.
func (c Config) Validate() error {
	if c.QueueMaxSize <= 0 {
		return errors.WrapFatal(fmt.Errorf("queue max size must be positive, got %d: %w", c.QueueMaxSize, errors.ErrInvalidConfig),
			"QueueManager", "Validate", "check queue size")
	}
	if c.RateLimit.Enable && c.RateLimit.MaxMessagesPerMinute <= 0 {
		return errors.WrapFatal(fmt.Errorf("maxMessagesPerMinute must be positive when rate limiting is enabled: %w", errors.ErrInvalidConfig),
			"QueueManager", "Validate", "check rate limit")
	}
	if c.BackpressureLow < 0 || c.BackpressureHigh > 100 || c.BackpressureLow > c.BackpressureHigh {
		return errors.WrapFatal(fmt.Errorf("backpressure marks must satisfy 0 <= low <= high <= 100, got low=%v high=%v: %w",
			c.BackpressureLow, c.BackpressureHigh, errors.ErrInvalidConfig),
			"QueueManager", "Validate", "check backpressure marks")
	}
	return nil
}
