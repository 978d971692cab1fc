package natspub

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"

	"github.com/c360/sensewatch/errors"
	"github.com/c360/sensewatch/event"
)

// Publisher sends raw bytes on a subject. *natsclient.Client satisfies it.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Closer is implemented by publishers that own a connection.
type Closer interface {
	Close(ctx context.Context) error
}

// Config holds configuration for the broker sink.
type Config struct {
	URL           string        `yaml:"url"`
	SubjectPrefix string        `yaml:"subjectPrefix"`
	ClientName    string        `yaml:"clientName"`
	Token         string        `yaml:"token"`
	Username      string        `yaml:"username"`
	Password      string        `yaml:"password"`
	MaxReconnects int           `yaml:"maxReconnects"`
	ReconnectWait time.Duration `yaml:"reconnectWait"`
	// CircuitBreakerThreshold is the number of consecutive failures that
	// opens the client's circuit.
	CircuitBreakerThreshold int32 `yaml:"circuitBreakerThreshold"`
}

// DefaultConfig returns default configuration for the broker sink.
func DefaultConfig() Config {
	return Config{
		URL:                     "nats://127.0.0.1:4222",
		SubjectPrefix:           "qliksense",
		ClientName:              "sensewatch",
		MaxReconnects:           -1,
		ReconnectWait:           2 * time.Second,
		CircuitBreakerThreshold: 5,
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.URL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "url is required")
	}
	if c.SubjectPrefix == "" || strings.ContainsAny(c.SubjectPrefix, " \t*>") ||
		strings.HasPrefix(c.SubjectPrefix, ".") || strings.HasSuffix(c.SubjectPrefix, ".") {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"subjectPrefix must be a literal subject")
	}
	if c.CircuitBreakerThreshold < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"circuitBreakerThreshold cannot be negative")
	}
	return nil
}

// Output publishes every event as a JSON message.
type Output struct {
	prefix    string
	publisher Publisher
	logger    *slog.Logger

	published atomic.Int64
	errors    atomic.Int64
}

// NewOutput creates the sink on top of an already configured publisher.
func NewOutput(prefix string, publisher Publisher, logger *slog.Logger) (*Output, error) {
	if publisher == nil {
		return nil, errors.WrapInvalid(errors.ErrNoConnection, "Output", "NewOutput", "check publisher")
	}
	if prefix == "" {
		prefix = DefaultConfig().SubjectPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Output{
		prefix:    prefix,
		publisher: publisher,
		logger:    logger.With("component", "natspub-output"),
	}, nil
}

// Name identifies the sink.
func (o *Output) Name() string {
	return "natspub"
}

// LogSubject returns <prefix>.log.<source>.
func (o *Output) LogSubject(ev event.LogEvent) string {
	return o.prefix + ".log." + Token(string(ev.Fields().Source))
}

// UserSubject returns <prefix>.user.<command>.
func (o *Output) UserSubject(ev *event.UserEvent) string {
	return o.prefix + ".user." + Token(ev.Command)
}

// SendLogEvent publishes a log event.
func (o *Output) SendLogEvent(ctx context.Context, ev event.LogEvent) error {
	return o.publish(ctx, o.LogSubject(ev), ev)
}

// SendUserEvent publishes a user event.
func (o *Output) SendUserEvent(ctx context.Context, ev *event.UserEvent) error {
	return o.publish(ctx, o.UserSubject(ev), ev)
}

func (o *Output) publish(ctx context.Context, subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		o.errors.Add(1)
		return errors.WrapInvalid(err, "Output", "publish", "encode event")
	}
	if err := o.publisher.Publish(ctx, subject, data); err != nil {
		o.errors.Add(1)
		return errors.WrapTransient(err, "Output", "publish", "publish to "+subject)
	}
	o.published.Add(1)
	return nil
}

// Close closes the publisher when it owns a connection.
func (o *Output) Close(ctx context.Context) error {
	if c, ok := o.publisher.(Closer); ok {
		return c.Close(ctx)
	}
	return nil
}

// Stats returns published and failed message counts.
func (o *Output) Stats() (published, failed int64) {
	return o.published.Load(), o.errors.Load()
}

// Token turns free text into a single subject token: lower case, with
// whitespace, dots and wildcards replaced by underscores. Empty input
// becomes "unknown".
func Token(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r == '.' || r == '*' || r == '>' || r == ' ' || r == '\t':
			return '_'
		case r < 0x20 || r == 0x7f:
			return -1
		}
		return r
	}, s)
}
