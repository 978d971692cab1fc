package file

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"

	"github.com/c360/sensewatch/errors"
	"github.com/c360/sensewatch/event"
)

// Config holds configuration for the file sink.
type Config struct {
	Directory     string        `yaml:"directory"`
	FilePrefix    string        `yaml:"filePrefix"`
	Format        string        `yaml:"format"`
	BufferSize    int           `yaml:"bufferSize"`
	FlushInterval time.Duration `yaml:"flushInterval"`
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Directory == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "directory is required")
	}
	if c.Format != "json" && c.Format != "jsonl" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"format must be one of: json, jsonl")
	}
	if c.BufferSize < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"bufferSize cannot be negative")
	}
	return nil
}

// DefaultConfig returns default configuration for the file sink.
func DefaultConfig() Config {
	return Config{
		Directory:     "./data",
		FilePrefix:    "events",
		Format:        "jsonl",
		BufferSize:    100,
		FlushInterval: time.Second,
	}
}

// Output buffers events in memory and appends them to
// <directory>/<prefix>.jsonl in batches.
type Output struct {
	cfg    Config
	path   string
	logger *slog.Logger
	now    func() time.Time

	file   *os.File
	fileMu sync.Mutex

	buffer   [][]byte
	bufferMu sync.Mutex

	shutdown  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once

	messagesWritten atomic.Int64
	bytesWritten    atomic.Int64
	errors          atomic.Int64
}

// NewOutput opens the output file and starts the periodic flush.
func NewOutput(cfg Config, logger *slog.Logger) (*Output, error) {
	d := DefaultConfig()
	if cfg.Format == "" {
		cfg.Format = d.Format
	}
	if cfg.FilePrefix == "" {
		cfg.FilePrefix = d.FilePrefix
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = d.BufferSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = d.FlushInterval
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(cfg.Directory, 0o755); err != nil {
		return nil, errors.WrapFatal(err, "Output", "NewOutput", "create output directory")
	}
	path := filepath.Join(cfg.Directory, fmt.Sprintf("%s.%s", cfg.FilePrefix, cfg.Format))
	fh, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.WrapFatal(err, "Output", "NewOutput", "open output file")
	}

	f := &Output{
		cfg:      cfg,
		path:     path,
		logger:   logger.With("component", "file-output", "path", path),
		now:      time.Now,
		file:     fh,
		buffer:   make([][]byte, 0, cfg.BufferSize),
		shutdown: make(chan struct{}),
	}
	f.wg.Add(1)
	go f.flushLoop()
	return f, nil
}

// Name identifies the sink.
func (f *Output) Name() string {
	return "file"
}

// Path returns the output file path.
func (f *Output) Path() string {
	return f.path
}

// SendLogEvent buffers a log event.
func (f *Output) SendLogEvent(_ context.Context, ev event.LogEvent) error {
	return f.write(event.LogEnvelope(ev, f.now()))
}

// SendUserEvent buffers a user event.
func (f *Output) SendUserEvent(_ context.Context, ev *event.UserEvent) error {
	return f.write(event.UserEnvelope(ev, f.now()))
}

func (f *Output) write(env event.Envelope) error {
	var (
		data []byte
		err  error
	)
	if f.cfg.Format == "json" {
		data, err = json.MarshalIndent(env, "", "  ")
	} else {
		data, err = json.Marshal(env)
	}
	if err != nil {
		f.errors.Add(1)
		return errors.WrapInvalid(err, "Output", "write", "encode event")
	}

	f.bufferMu.Lock()
	f.buffer = append(f.buffer, append(data, '\n'))
	shouldFlush := len(f.buffer) >= f.cfg.BufferSize
	f.bufferMu.Unlock()

	if shouldFlush {
		return f.flush()
	}
	return nil
}

func (f *Output) flushLoop() {
	defer f.wg.Done()

	ticker := time.NewTicker(f.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.shutdown:
			return
		case <-ticker.C:
			if err := f.flush(); err != nil {
				f.logger.Error("Periodic flush failed", "error", err)
			}
		}
	}
}

// flush writes buffered events to the file.
func (f *Output) flush() error {
	f.bufferMu.Lock()
	if len(f.buffer) == 0 {
		f.bufferMu.Unlock()
		return nil
	}
	messages := f.buffer
	f.buffer = make([][]byte, 0, f.cfg.BufferSize)
	f.bufferMu.Unlock()

	f.fileMu.Lock()
	defer f.fileMu.Unlock()

	if f.file == nil {
		f.errors.Add(int64(len(messages)))
		return errors.WrapTransient(errors.ErrAlreadyStopped, "Output", "flush", "write events")
	}

	var failed int
	for _, msg := range messages {
		n, err := f.file.Write(msg)
		if err != nil {
			failed++
			f.errors.Add(1)
			continue
		}
		f.messagesWritten.Add(1)
		f.bytesWritten.Add(int64(n))
	}
	if failed > 0 {
		return errors.WrapTransient(fmt.Errorf("%d of %d events not written", failed, len(messages)),
			"Output", "flush", "write events")
	}
	return nil
}

// Close stops the flush loop, writes what is buffered and closes the file.
func (f *Output) Close(context.Context) error {
	var err error
	f.closeOnce.Do(func() {
		close(f.shutdown)
		f.wg.Wait()

		err = f.flush()

		f.fileMu.Lock()
		if f.file != nil {
			if cerr := f.file.Close(); cerr != nil && err == nil {
				err = errors.Wrap(cerr, "Output", "Close", "close file")
			}
			f.file = nil
		}
		f.fileMu.Unlock()
	})
	return err
}

// Written returns the number of events and bytes written so far.
func (f *Output) Written() (events, bytes int64) {
	return f.messagesWritten.Load(), f.bytesWritten.Load()
}
