package s3archive

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/c360/sensewatch/errors"
	"github.com/c360/sensewatch/event"
	"github.com/c360/sensewatch/metric"
	"github.com/c360/sensewatch/pkg/buffer"
	"github.com/c360/sensewatch/pkg/jsonl"
	"github.com/c360/sensewatch/pkg/retry"
)

// Config holds configuration for the archive sink.
type Config struct {
	Bucket string `yaml:"bucket"`
	Region string `yaml:"region"`
	Prefix string `yaml:"prefix"`
	// Endpoint overrides the S3 endpoint, for S3-compatible stores.
	Endpoint     string `yaml:"endpoint"`
	UsePathStyle bool   `yaml:"usePathStyle"`

	BatchSize     int           `yaml:"batchSize"`
	MaxBuffered   int           `yaml:"maxBuffered"`
	FlushInterval time.Duration `yaml:"flushInterval"`
	UploadTimeout time.Duration `yaml:"uploadTimeout"`
	Retries       int           `yaml:"retries"`
}

// DefaultConfig returns default configuration for the archive sink.
func DefaultConfig() Config {
	return Config{
		Region:        "us-east-1",
		Prefix:        "sensewatch",
		BatchSize:     500,
		MaxBuffered:   10000,
		FlushInterval: 30 * time.Second,
		UploadTimeout: 10 * time.Second,
		Retries:       3,
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "bucket is required")
	}
	if c.BatchSize <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "batchSize must be positive")
	}
	if c.MaxBuffered < c.BatchSize {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"maxBuffered must be at least batchSize")
	}
	if c.FlushInterval <= 0 || c.UploadTimeout <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"flushInterval and uploadTimeout must be positive")
	}
	if c.Retries < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "retries cannot be negative")
	}
	return nil
}

// Uploader is the part of *s3.Client the sink uses.
type Uploader interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewClient builds an S3 client from the default AWS credential chain.
// SDK retries are disabled; uploads are retried by the sink.
func NewClient(ctx context.Context, cfg Config) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, errors.WrapFatal(err, "s3archive", "NewClient", "load AWS config")
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.RetryMaxAttempts = 1
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

// Stats are the sink's delivery counters.
type Stats struct {
	Uploaded       int64
	Batches        int64
	UploadFailures int64
	Lost           int64
	Dropped        int64
}

// Output buffers events and uploads them as gzipped JSONL objects.
type Output struct {
	cfg      Config
	uploader Uploader
	logger   *slog.Logger
	now      func() time.Time
	retry    retry.Config

	buf      buffer.Buffer[event.Envelope]
	flushReq chan struct{}
	flushMu  sync.Mutex

	shutdown  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once

	uploaded       atomic.Int64
	batches        atomic.Int64
	uploadFailures atomic.Int64
	lost           atomic.Int64
	dropped        atomic.Int64
}

// Option configures an Output.
type Option func(*Output)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Output) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock replaces time.Now, used for object keys.
func WithClock(now func() time.Time) Option {
	return func(o *Output) {
		if now != nil {
			o.now = now
		}
	}
}

// WithRetry overrides the upload backoff.
func WithRetry(cfg retry.Config) Option {
	return func(o *Output) {
		o.retry = cfg
	}
}

// NewOutput creates the sink and starts its flush loop. The buffer's
// statistics are exported when registry is non-nil.
func NewOutput(cfg Config, uploader Uploader, registry *metric.MetricsRegistry, opts ...Option) (*Output, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if uploader == nil {
		return nil, errors.WrapInvalid(errors.ErrNoConnection, "Output", "NewOutput", "check uploader")
	}

	o := &Output{
		cfg:      cfg,
		uploader: uploader,
		logger:   slog.Default(),
		now:      time.Now,
		flushReq: make(chan struct{}, 1),
		shutdown: make(chan struct{}),
	}
	o.retry = retry.DefaultConfig()
	for _, opt := range opts {
		opt(o)
	}
	o.retry.MaxAttempts = cfg.Retries + 1
	o.logger = o.logger.With("component", "s3archive-output", "bucket", cfg.Bucket)

	buf, err := buffer.NewCircularBuffer[event.Envelope](cfg.MaxBuffered,
		buffer.WithOverflowPolicy[event.Envelope](buffer.DropOldest),
		buffer.WithMetrics[event.Envelope](registry, "s3archive"),
		buffer.WithDropCallback[event.Envelope](func(event.Envelope) { o.dropped.Add(1) }),
	)
	if err != nil {
		return nil, err
	}
	o.buf = buf

	o.wg.Add(1)
	go o.flushLoop()
	return o, nil
}

// Name identifies the sink.
func (o *Output) Name() string {
	return "s3archive"
}

// SendLogEvent buffers a log event.
func (o *Output) SendLogEvent(_ context.Context, ev event.LogEvent) error {
	return o.add(event.LogEnvelope(ev, o.now()))
}

// SendUserEvent buffers a user event.
func (o *Output) SendUserEvent(_ context.Context, ev *event.UserEvent) error {
	return o.add(event.UserEnvelope(ev, o.now()))
}

func (o *Output) add(env event.Envelope) error {
	if err := o.buf.Write(env); err != nil {
		return errors.WrapTransient(errors.ErrAlreadyStopped, "Output", "add", "buffer event")
	}
	if o.buf.Size() >= o.cfg.BatchSize {
		select {
		case o.flushReq <- struct{}{}:
		default:
		}
	}
	return nil
}

func (o *Output) flushLoop() {
	defer o.wg.Done()

	ticker := time.NewTicker(o.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.shutdown:
			return
		case <-ticker.C:
		case <-o.flushReq:
		}
		ctx, cancel := context.WithTimeout(context.Background(), o.uploadBudget())
		if err := o.Flush(ctx); err != nil {
			o.logger.Error("Archive flush failed", "error", err)
		}
		cancel()
	}
}

func (o *Output) uploadBudget() time.Duration {
	return o.cfg.UploadTimeout * time.Duration(o.cfg.Retries+1)
}

// Flush uploads everything buffered, one object per batch. A batch whose
// upload fails after all retries is counted as lost.
func (o *Output) Flush(ctx context.Context) error {
	o.flushMu.Lock()
	defer o.flushMu.Unlock()

	var errs []error
	for !o.buf.IsEmpty() {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		batch := o.buf.ReadBatch(o.cfg.BatchSize)
		if len(batch) == 0 {
			break
		}
		if err := o.upload(ctx, batch); err != nil {
			o.lost.Add(int64(len(batch)))
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.WrapTransient(errs[0], "Output", "Flush",
			fmt.Sprintf("upload %d batch(es)", len(errs)))
	}
	return nil
}

func (o *Output) upload(ctx context.Context, batch []event.Envelope) error {
	body, err := jsonl.EncodeGzip(batch)
	if err != nil {
		return errors.WrapInvalid(err, "Output", "upload", "encode batch")
	}
	key := o.objectKey()

	err = retry.Do(ctx, o.retry, func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, o.cfg.UploadTimeout)
		defer cancel()
		_, err := o.uploader.PutObject(attemptCtx, &s3.PutObjectInput{
			Bucket:          aws.String(o.cfg.Bucket),
			Key:             aws.String(key),
			Body:            bytes.NewReader(body),
			ContentLength:   aws.Int64(int64(len(body))),
			ContentType:     aws.String("application/x-ndjson"),
			ContentEncoding: aws.String("gzip"),
		})
		if err != nil {
			o.uploadFailures.Add(1)
		}
		return err
	})
	if err != nil {
		return errors.WrapTransient(err, "Output", "upload", "put object "+key)
	}

	o.batches.Add(1)
	o.uploaded.Add(int64(len(batch)))
	o.logger.Debug("Archived batch", "key", key, "events", len(batch), "bytes", len(body))
	return nil
}

// objectKey is <prefix>/YYYY/MM/DD/HH/<unix-nanos>-<uuid>.jsonl.gz in UTC.
func (o *Output) objectKey() string {
	now := o.now().UTC()
	name := fmt.Sprintf("%d-%s.jsonl.gz", now.UnixNano(), uuid.NewString())
	return path.Join(o.cfg.Prefix, now.Format("2006/01/02/15"), name)
}

// Close stops the flush loop, uploads what is left and closes the buffer.
func (o *Output) Close(ctx context.Context) error {
	var err error
	o.closeOnce.Do(func() {
		close(o.shutdown)
		o.wg.Wait()
		err = o.Flush(ctx)
		if cerr := o.buf.Close(); cerr != nil && err == nil {
			err = cerr
		}
	})
	return err
}

// Stats returns the delivery counters.
func (o *Output) Stats() Stats {
	return Stats{
		Uploaded:       o.uploaded.Load(),
		Batches:        o.batches.Load(),
		UploadFailures: o.uploadFailures.Load(),
		Lost:           o.lost.Load(),
		Dropped:        o.dropped.Load(),
	}
}
