package natspub

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/c360/signalfeed/envelope"
	"github.com/c360/signalfeed/errors"
	"github.com/c360/signalfeed/metric"
	"github.com/c360/signalfeed/pkg/buffer"
)

// DefaultSubjectPrefix is prepended to the event type.
const DefaultSubjectPrefix = "signalfeed.events"

// Publisher sends one message.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, subject string, data []byte) error

// Publish calls f.
func (f PublisherFunc) Publish(ctx context.Context, subject string, data []byte) error {
	return f(ctx, subject, data)
}

// Option configures a Sink.
type Option func(*Sink)

// WithSubjectPrefix sets the subject prefix.
func WithSubjectPrefix(prefix string) Option {
	return func(s *Sink) {
		if p := strings.Trim(prefix, "."); p != "" {
			s.prefix = p
		}
	}
}

// WithQueueSize bounds the number of envelopes waiting to be published.
func WithQueueSize(n int) Option {
	return func(s *Sink) {
		if n > 0 {
			s.queueSize = n
		}
	}
}

// WithPublishTimeout bounds a single publish.
func WithPublishTimeout(d time.Duration) Option {
	return func(s *Sink) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithMetrics records published subjects and errors.
func WithMetrics(m *metric.Metrics) Option {
	return func(s *Sink) { s.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sink) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Stats counts sink activity.
type Stats struct {
	Published int64 `json:"published"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
	Queued    int   `json:"queued"`
}

// Sink queues envelopes and publishes them from one worker goroutine.
type Sink struct {
	pub       Publisher
	prefix    string
	queueSize int
	timeout   time.Duration
	metrics   *metric.Metrics
	logger    *slog.Logger
	errLog    *rate.Limiter

	queue  *buffer.Ring[envelope.Envelope]
	notify chan struct{}

	published atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64

	mu      sync.Mutex
	started bool
	stop    chan struct{}
	done    chan struct{}
}

// New creates a sink over pub. Call Start to begin publishing.
func New(pub Publisher, opts ...Option) (*Sink, error) {
	if pub == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Sink", "New", "publisher is required")
	}

	s := &Sink{
		pub:       pub,
		prefix:    DefaultSubjectPrefix,
		queueSize: 1024,
		timeout:   5 * time.Second,
		logger:    slog.Default(),
		errLog:    rate.NewLimiter(rate.Every(5*time.Second), 1),
		notify:    make(chan struct{}, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "natspub")

	queue, err := buffer.NewRing(s.queueSize,
		buffer.WithOverflowPolicy[envelope.Envelope](buffer.DropOldest),
		buffer.WithDropCallback[envelope.Envelope](func(envelope.Envelope) { s.dropped.Add(1) }))
	if err != nil {
		return nil, errors.Wrap(err, "Sink", "New", "create queue")
	}
	s.queue = queue
	return s, nil
}

// Subject returns the subject an event type is published on. Characters
// that are not valid in a subject token become underscores.
func Subject(prefix, eventType string) string {
	token := strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, eventType)
	if token == "" {
		token = "_"
	}
	return prefix + "." + token
}

// Deliver queues e for publishing. It never blocks.
func (s *Sink) Deliver(e envelope.Envelope) {
	if err := s.queue.Write(e); err != nil {
		s.dropped.Add(1)
		return
	}
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Start launches the publish worker.
func (s *Sink) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Sink", "Start", "check started state")
	}
	s.started = true

	go s.run(ctx)
	return nil
}

// Close publishes whatever is queued and stops the worker.
func (s *Sink) Close() error {
	s.mu.Lock()
	started := s.started
	select {
	case <-s.stop:
		s.mu.Unlock()
		return nil
	default:
		close(s.stop)
	}
	s.mu.Unlock()

	if started {
		<-s.done
	}
	_ = s.queue.Close()
	return nil
}

// Stats returns a snapshot of the counters.
func (s *Sink) Stats() Stats {
	return Stats{
		Published: s.published.Load(),
		Failed:    s.failed.Load(),
		Dropped:   s.dropped.Load(),
		Queued:    s.queue.Size(),
	}
}

func (s *Sink) run(ctx context.Context) {
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			s.flush(context.Background())
			return
		case <-s.stop:
			s.flush(ctx)
			return
		case <-s.notify:
			s.flush(ctx)
		}
	}
}

func (s *Sink) flush(ctx context.Context) {
	for _, e := range s.queue.Drain() {
		s.publish(ctx, e)
	}
}

func (s *Sink) publish(ctx context.Context, e envelope.Envelope) {
	subject := Subject(s.prefix, e.Type)

	data, err := json.Marshal(e)
	if err != nil {
		s.fail(subject, errors.WrapInvalid(err, "Sink", "publish", "marshal envelope"))
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.pub.Publish(pubCtx, subject, data); err != nil {
		s.fail(subject, err)
		return
	}

	s.published.Add(1)
	if s.metrics != nil {
		s.metrics.RecordPublished(subject)
	}
}

func (s *Sink) fail(subject string, err error) {
	s.failed.Add(1)
	if s.metrics != nil {
		s.metrics.RecordError("natspub", errors.Classify(err).String())
	}
	if s.errLog.Allow() {
		s.logger.Warn("Publish failed", "subject", subject, "error", err)
	}
}
