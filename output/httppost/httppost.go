package httppost

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"

	"github.com/c360/sensewatch/errors"
	"github.com/c360/sensewatch/event"
	"github.com/c360/sensewatch/pkg/jsonl"
	"github.com/c360/sensewatch/pkg/retry"
)

// Config holds configuration for the HTTP sink.
type Config struct {
	URL         string            `yaml:"url"`
	Headers     map[string]string `yaml:"headers"`
	Timeout     time.Duration     `yaml:"timeout"`
	RetryCount  int               `yaml:"retryCount"`
	ContentType string            `yaml:"contentType"`
	Gzip        bool              `yaml:"gzip"`
	// EventTypePrefix names records "<prefix>LogEvent" and "<prefix>UserEvent".
	EventTypePrefix string `yaml:"eventTypePrefix"`
	// Attributes are added to every record.
	Attributes map[string]string `yaml:"attributes"`
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.URL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "url is required")
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "invalid URL format")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.WrapInvalid(fmt.Errorf("unsupported scheme %q: %w", u.Scheme, errors.ErrInvalidConfig),
			"Config", "Validate", "invalid URL scheme")
	}
	if c.Timeout < 0 || c.Timeout > 5*time.Minute {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"timeout must be between 0 and 5m")
	}
	if c.RetryCount < 0 || c.RetryCount > 10 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"retryCount must be between 0 and 10")
	}
	return nil
}

// DefaultConfig returns default configuration for the HTTP sink.
func DefaultConfig() Config {
	return Config{
		Headers:         make(map[string]string),
		Timeout:         10 * time.Second,
		RetryCount:      3,
		ContentType:     "application/json",
		EventTypePrefix: "QlikSense",
	}
}

// Stats are the sink's delivery counters.
type Stats struct {
	Sent    int64
	Retried int64
	Errors  int64
}

// Output posts each event as a one-element JSON array.
type Output struct {
	cfg        Config
	httpClient *http.Client
	retry      retry.Config
	logger     *slog.Logger

	sent    atomic.Int64
	retried atomic.Int64
	errors  atomic.Int64
}

// NewOutput validates cfg and builds the sink. Zero fields take defaults.
func NewOutput(cfg Config, logger *slog.Logger) (*Output, error) {
	d := DefaultConfig()
	if cfg.Timeout == 0 {
		cfg.Timeout = d.Timeout
	}
	if cfg.ContentType == "" {
		cfg.ContentType = d.ContentType
	}
	if cfg.EventTypePrefix == "" {
		cfg.EventTypePrefix = d.EventTypePrefix
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Output{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		retry: retry.Config{
			MaxAttempts:  cfg.RetryCount + 1,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			Multiplier:   2,
			AddJitter:    true,
		},
		logger: logger.With("component", "httppost-output"),
	}, nil
}

// Name identifies the sink.
func (h *Output) Name() string {
	return "httppost"
}

// SendLogEvent posts a log event.
func (h *Output) SendLogEvent(ctx context.Context, ev event.LogEvent) error {
	return h.send(ctx, h.cfg.EventTypePrefix+"LogEvent", ev)
}

// SendUserEvent posts a user event.
func (h *Output) SendUserEvent(ctx context.Context, ev *event.UserEvent) error {
	return h.send(ctx, h.cfg.EventTypePrefix+"UserEvent", ev)
}

// Close has nothing to flush.
func (h *Output) Close(context.Context) error {
	h.httpClient.CloseIdleConnections()
	return nil
}

// Stats returns the delivery counters.
func (h *Output) Stats() Stats {
	return Stats{Sent: h.sent.Load(), Retried: h.retried.Load(), Errors: h.errors.Load()}
}

func (h *Output) send(ctx context.Context, eventType string, ev any) error {
	body, err := h.encode(eventType, ev)
	if err != nil {
		h.errors.Add(1)
		return errors.WrapInvalid(err, "Output", "send", "encode event")
	}

	attempt := 0
	err = retry.Do(ctx, h.retry, func() error {
		attempt++
		if attempt > 1 {
			h.retried.Add(1)
		}
		return h.post(ctx, body)
	})
	if err != nil {
		h.errors.Add(1)
		return errors.WrapTransient(err, "Output", "send", "post event")
	}
	h.sent.Add(1)
	return nil
}

// encode flattens ev into a record with eventType and the static
// attributes, then wraps it in an array.
func (h *Output) encode(eventType string, ev any) ([]byte, error) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	record := make(map[string]any, len(h.cfg.Attributes)+16)
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, err
	}
	for k, v := range h.cfg.Attributes {
		if _, exists := record[k]; !exists {
			record[k] = v
		}
	}
	record["eventType"] = eventType

	body, err := json.Marshal([]map[string]any{record})
	if err != nil {
		return nil, err
	}
	if h.cfg.Gzip {
		return jsonl.Gzip(body)
	}
	return body, nil
}

func (h *Output) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return retry.NonRetryable(err)
	}

	req.Header.Set("Content-Type", h.cfg.ContentType)
	if h.cfg.Gzip {
		req.Header.Set("Content-Encoding", "gzip")
	}
	for key, value := range h.cfg.Headers {
		req.Header.Set(key, value)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	default:
		return retry.NonRetryable(fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status))
	}
}
