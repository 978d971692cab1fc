package config

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/sensewatch/errors"
	"github.com/c360/sensewatch/event"
	"github.com/c360/sensewatch/ingest"
	"github.com/c360/sensewatch/input/udp"
	"github.com/c360/sensewatch/output/file"
	"github.com/c360/sensewatch/output/httppost"
	"github.com/c360/sensewatch/output/natspub"
	"github.com/c360/sensewatch/output/s3archive"
	"github.com/c360/sensewatch/pkg/sanitize"
	"github.com/c360/sensewatch/processor/categorize"
	"github.com/c360/sensewatch/processor/qixperf"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SENSEWATCH"

// Config is the complete application configuration. It is built once at
// startup; components receive only their own part of it.
type Config struct {
	UDP        StreamPair[udp.Config]    `yaml:"udp"`
	Queue      StreamPair[ingest.Config] `yaml:"queue"`
	Sources    SourcesConfig             `yaml:"sources"`
	QixPerf    QixPerfConfig             `yaml:"qixPerf"`
	Categorize categorize.RuleSet        `yaml:"categorize"`
	Sanitize   SanitizeConfig            `yaml:"sanitize"`
	// AppNames maps app ids to names for events that carry only the id.
	AppNames map[string]string `yaml:"appNames"`
	Dispatch DispatchConfig    `yaml:"dispatch"`
	Sinks    SinksConfig       `yaml:"sinks"`
	Metrics  MetricsConfig     `yaml:"metrics"`
	Shutdown ShutdownConfig    `yaml:"shutdown"`
}

// StreamPair holds one value per UDP stream.
type StreamPair[T any] struct {
	Log  T `yaml:"log"`
	User T `yaml:"user"`
}

// For returns the value for stream.
func (p StreamPair[T]) For(stream event.Stream) T {
	if stream == event.StreamUser {
		return p.User
	}
	return p.Log
}

// SourcesConfig switches individual event sources on or off.
type SourcesConfig struct {
	Engine          bool `yaml:"engine"`
	Proxy           bool `yaml:"proxy"`
	Repository      bool `yaml:"repository"`
	Scheduler       bool `yaml:"scheduler"`
	QixPerf         bool `yaml:"qixPerf"`
	ProxyConnection bool `yaml:"proxyConnection"`
	ProxySession    bool `yaml:"proxySession"`
}

// Log returns the enable map for log-stream sources.
func (s SourcesConfig) Log() map[event.Source]bool {
	return map[event.Source]bool{
		event.SourceEngine:     s.Engine,
		event.SourceProxy:      s.Proxy,
		event.SourceRepository: s.Repository,
		event.SourceScheduler:  s.Scheduler,
		event.SourceQixPerf:    s.QixPerf,
	}
}

// User returns the enable map for user-stream sources.
func (s SourcesConfig) User() map[event.Source]bool {
	return map[event.Source]bool{
		event.SourceProxyConnection: s.ProxyConnection,
		event.SourceProxySession:    s.ProxySession,
	}
}

// QixPerfConfig configures the QIX performance filter.
type QixPerfConfig struct {
	TrackRejectedEvents bool `yaml:"trackRejectedEvents"`
	qixperf.RuleSet     `yaml:",inline"`
}

// SanitizeConfig overrides per-field length limits.
type SanitizeConfig struct {
	MaxLengths map[string]int `yaml:"maxLengths"`
}

// DispatchConfig configures delivery to sinks.
type DispatchConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// SinkRouting says whether a sink is on and which streams it receives.
type SinkRouting struct {
	Enable  bool           `yaml:"enable"`
	Streams []event.Stream `yaml:"streams"`
}

// Receives reports whether the sink is enabled for stream.
func (r SinkRouting) Receives(stream event.Stream) bool {
	if !r.Enable {
		return false
	}
	for _, s := range r.Streams {
		if s == stream {
			return true
		}
	}
	return false
}

// HTTPPostSink configures the HTTP sink.
type HTTPPostSink struct {
	SinkRouting     `yaml:",inline"`
	httppost.Config `yaml:",inline"`
}

// NATSSink configures the NATS sink.
type NATSSink struct {
	SinkRouting    `yaml:",inline"`
	natspub.Config `yaml:",inline"`
}

// FileSink configures the file sink.
type FileSink struct {
	SinkRouting `yaml:",inline"`
	file.Config `yaml:",inline"`
}

// S3Sink configures the S3 archive sink.
type S3Sink struct {
	SinkRouting      `yaml:",inline"`
	s3archive.Config `yaml:",inline"`
}

// SinksConfig configures every sink.
type SinksConfig struct {
	Prometheus SinkRouting  `yaml:"prometheus"`
	HTTPPost   HTTPPostSink `yaml:"httpPost"`
	NATS       NATSSink     `yaml:"nats"`
	File       FileSink     `yaml:"file"`
	S3Archive  S3Sink       `yaml:"s3Archive"`
}

// MetricsConfig configures the scrape endpoint and the stats exporter.
type MetricsConfig struct {
	Enable         bool          `yaml:"enable"`
	Address        string        `yaml:"address"`
	Path           string        `yaml:"path"`
	ExportInterval time.Duration `yaml:"exportInterval"`
}

// ShutdownConfig bounds graceful shutdown.
type ShutdownConfig struct {
	// Grace is how long queues may keep draining after the listeners stop.
	Grace time.Duration `yaml:"grace"`
}

// Default returns the configuration used before any file is applied.
func Default() *Config {
	both := []event.Stream{event.StreamLog, event.StreamUser}
	return &Config{
		UDP: StreamPair[udp.Config]{
			Log:  udp.Config{Host: "0.0.0.0", Port: 9996},
			User: udp.Config{Host: "0.0.0.0", Port: 9997},
		},
		Queue: StreamPair[ingest.Config]{
			Log:  ingest.DefaultConfig(),
			User: ingest.DefaultConfig(),
		},
		Sources: SourcesConfig{
			Engine: true, Proxy: true, Repository: true, Scheduler: true, QixPerf: true,
			ProxyConnection: true, ProxySession: true,
		},
		AppNames: map[string]string{},
		Dispatch: DispatchConfig{Timeout: 5 * time.Second},
		Sinks: SinksConfig{
			Prometheus: SinkRouting{Enable: true, Streams: both},
			HTTPPost:   HTTPPostSink{SinkRouting: SinkRouting{Streams: both}, Config: httppost.DefaultConfig()},
			NATS:       NATSSink{SinkRouting: SinkRouting{Streams: both}, Config: natspub.DefaultConfig()},
			File:       FileSink{SinkRouting: SinkRouting{Streams: both}, Config: file.DefaultConfig()},
			S3Archive:  S3Sink{SinkRouting: SinkRouting{Streams: both}, Config: s3archive.DefaultConfig()},
		},
		Metrics: MetricsConfig{
			Enable:         true,
			Address:        ":9842",
			Path:           "/metrics",
			ExportInterval: time.Minute,
		},
		Shutdown: ShutdownConfig{Grace: 5 * time.Second},
	}
}

// Validate reports configuration that must stop startup. Rule sets are not
// checked here; see RuleWarnings.
func (c *Config) Validate() error {
	for _, stream := range []event.Stream{event.StreamLog, event.StreamUser} {
		if err := c.UDP.For(stream).Validate(); err != nil {
			return errors.WrapFatal(fmt.Errorf("udp.%s: %w", stream, err), "Config", "Validate", "check listener")
		}
		if err := c.Queue.For(stream).WithDefaults().Validate(); err != nil {
			return fmt.Errorf("queue.%s: %w", stream, err)
		}
	}
	if c.UDP.Log.Port != 0 && c.UDP.Log.Port == c.UDP.User.Port && c.UDP.Log.Host == c.UDP.User.Host {
		return errors.WrapFatal(fmt.Errorf("log and user streams share port %d: %w", c.UDP.Log.Port, errors.ErrInvalidConfig),
			"Config", "Validate", "check udp ports")
	}
	if c.Dispatch.Timeout < 0 {
		return errors.WrapFatal(errors.ErrInvalidConfig, "Config", "Validate", "dispatch.timeout cannot be negative")
	}
	if c.Shutdown.Grace < 0 {
		return errors.WrapFatal(errors.ErrInvalidConfig, "Config", "Validate", "shutdown.grace cannot be negative")
	}

	sinks := []struct {
		name    string
		routing SinkRouting
		check   func() error
	}{
		{"prometheus", c.Sinks.Prometheus, func() error { return nil }},
		{"httpPost", c.Sinks.HTTPPost.SinkRouting, c.Sinks.HTTPPost.Config.Validate},
		{"nats", c.Sinks.NATS.SinkRouting, c.Sinks.NATS.Config.Validate},
		{"file", c.Sinks.File.SinkRouting, c.Sinks.File.Config.Validate},
		{"s3Archive", c.Sinks.S3Archive.SinkRouting, c.Sinks.S3Archive.Config.Validate},
	}
	for _, s := range sinks {
		if !s.routing.Enable {
			continue
		}
		for _, stream := range s.routing.Streams {
			if stream != event.StreamLog && stream != event.StreamUser {
				return errors.WrapFatal(fmt.Errorf("sinks.%s: unknown stream %q: %w", s.name, stream, errors.ErrInvalidConfig),
					"Config", "Validate", "check sink streams")
			}
		}
		if err := s.check(); err != nil {
			return errors.WrapFatal(fmt.Errorf("sinks.%s: %w", s.name, err), "Config", "Validate", "check sink")
		}
	}

	for field, n := range c.Sanitize.MaxLengths {
		if n > sanitize.MaxLength {
			return errors.WrapFatal(fmt.Errorf("sanitize.maxLengths.%s: %d exceeds %d: %w", field, n, sanitize.MaxLength, errors.ErrInvalidConfig),
				"Config", "Validate", "check field limits")
		}
	}

	if c.Metrics.Enable && c.Metrics.Address == "" {
		return errors.WrapFatal(errors.ErrMissingConfig, "Config", "Validate", "metrics.address is required")
	}
	return nil
}

// RuleWarnings lists rule settings that have no effect or cannot be applied.
// They do not stop startup: ignored QIX filter lists stay ignored and a
// malformed categorisation rule set forwards log events uncategorized.
func (c *Config) RuleWarnings() []string {
	var out []string
	if c.Sources.QixPerf {
		for _, w := range c.QixPerf.RuleSet.Warnings() {
			out = append(out, "qixPerf: "+w)
		}
	}
	if c.Categorize.Enable {
		if err := c.Categorize.Validate(); err != nil {
			out = append(out, "categorize: "+err.Error())
		}
	}
	return out
}

// String renders the configuration as YAML with secrets masked.
func (c *Config) String() string {
	redacted := *c
	redacted.Sinks.HTTPPost.Headers = maskMap(c.Sinks.HTTPPost.Headers)
	redacted.Sinks.NATS.Password = mask(c.Sinks.NATS.Password)
	redacted.Sinks.NATS.Token = mask(c.Sinks.NATS.Token)

	data, err := yaml.Marshal(&redacted)
	if err != nil {
		return fmt.Sprintf("<config: %v>", err)
	}
	return string(data)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "****"
}

func maskMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = mask(v)
	}
	return out
}

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
	lookupEnv  func(string) (string, bool)
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		validation: true,
		envPrefix:  EnvPrefix,
		lookupEnv:  os.LookupEnv,
	}
}

// AddLayer adds a configuration file layer. Later layers win.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load applies the defaults, every layer in order and the environment
// overrides, then validates the result.
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	for _, path := range l.layers {
		data, err := safeReadFile(path)
		if err != nil {
			return nil, errors.WrapFatal(err, "Loader", "Load", "read "+path)
		}
		if err := decodeLayer(data, cfg); err != nil {
			return nil, errors.WrapFatal(fmt.Errorf("%s: %w", path, err), "Loader", "Load", "parse config")
		}
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, errors.WrapFatal(err, "Loader", "Load", "apply environment overrides")
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// decodeLayer decodes YAML on top of cfg. Fields absent from the layer keep
// their current value; lists are replaced and maps merged. Unknown keys are
// errors.
func decodeLayer(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !stderrors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err)
	}
	return nil
}

// Parse decodes a single YAML document on top of the defaults without
// validating it.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := decodeLayer(data, cfg); err != nil {
		return nil, errors.WrapFatal(err, "config", "Parse", "parse config")
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	str := func(key string, dst *string) error {
		val, ok := l.lookupEnv(l.envPrefix + "_" + key)
		if !ok || val == "" {
			return nil
		}
		if err := validateEnvVar(key, val); err != nil {
			return err
		}
		*dst = val
		return nil
	}
	num := func(key string, dst *int) error {
		var raw string
		if err := str(key, &raw); err != nil || raw == "" {
			return err
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("%s_%s: %w", l.envPrefix, key, err)
		}
		*dst = n
		return nil
	}

	var host, apiKey string
	steps := []error{
		str("UDP_HOST", &host),
		num("UDP_LOG_PORT", &cfg.UDP.Log.Port),
		num("UDP_USER_PORT", &cfg.UDP.User.Port),
		num("QUEUE_LOG_MAX_SIZE", &cfg.Queue.Log.QueueMaxSize),
		num("QUEUE_USER_MAX_SIZE", &cfg.Queue.User.QueueMaxSize),
		str("METRICS_ADDRESS", &cfg.Metrics.Address),
		str("HTTPPOST_URL", &cfg.Sinks.HTTPPost.URL),
		str("HTTPPOST_API_KEY", &apiKey),
		str("NATS_URL", &cfg.Sinks.NATS.URL),
		str("NATS_TOKEN", &cfg.Sinks.NATS.Token),
		str("NATS_USERNAME", &cfg.Sinks.NATS.Username),
		str("NATS_PASSWORD", &cfg.Sinks.NATS.Password),
		str("S3_BUCKET", &cfg.Sinks.S3Archive.Bucket),
		str("S3_ENDPOINT", &cfg.Sinks.S3Archive.Endpoint),
		str("S3_REGION", &cfg.Sinks.S3Archive.Region),
	}
	if err := stderrors.Join(steps...); err != nil {
		return err
	}

	if host != "" {
		cfg.UDP.Log.Host = host
		cfg.UDP.User.Host = host
	}
	if apiKey != "" {
		if cfg.Sinks.HTTPPost.Headers == nil {
			cfg.Sinks.HTTPPost.Headers = make(map[string]string)
		}
		cfg.Sinks.HTTPPost.Headers["Api-Key"] = apiKey
	}
	return nil
}

// EnvKeys lists the supported environment overrides, for --help output.
func EnvKeys() []string {
	keys := []string{
		"UDP_HOST", "UDP_LOG_PORT", "UDP_USER_PORT",
		"QUEUE_LOG_MAX_SIZE", "QUEUE_USER_MAX_SIZE",
		"METRICS_ADDRESS",
		"HTTPPOST_URL", "HTTPPOST_API_KEY",
		"NATS_URL", "NATS_TOKEN", "NATS_USERNAME", "NATS_PASSWORD",
		"S3_BUCKET", "S3_ENDPOINT", "S3_REGION",
	}
	for i, k := range keys {
		keys[i] = EnvPrefix + "_" + k
	}
	return keys
}
