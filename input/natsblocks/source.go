// Package natsblocks receives document blocks from a NATS subject and
// feeds them, in order, to the synthesis pipeline. Ingestion is rate
// limited; blocks beyond the limit or beyond buffer capacity are dropped
// and counted rather than applying backpressure to the publisher.
package natsblocks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"golang.org/x/time/rate"

	"github.com/c360/semlattice/errors"
	"github.com/c360/semlattice/message"
	"github.com/c360/semlattice/metric"
)

const (
	// DefaultQueueSize buffers parsed blocks between the subscription
	// callback and the consumer.
	DefaultQueueSize = 64

	// reconnectWait is the delay between NATS reconnect attempts.
	reconnectWait = 2 * time.Second

	// maxReconnects before the connection is considered lost.
	maxReconnects = 60
)

// Config holds the source settings.
type Config struct {
	URL       string
	Subject   string
	RateLimit float64 // blocks per second; 0 disables limiting
	QueueSize int
}

// Validate checks the source configuration.
func (c Config) Validate() error {
	if c.URL == "" {
		return errors.WrapFatal(errors.ErrMissingConfig, "Source", "Validate", "check url")
	}
	if c.Subject == "" {
		return errors.WrapFatal(errors.ErrMissingConfig, "Source", "Validate", "check subject")
	}
	if c.RateLimit < 0 {
		return errors.WrapFatal(
			fmt.Errorf("%w: negative rate limit", errors.ErrInvalidConfig),
			"Source", "Validate", "check rate limit")
	}
	return nil
}

// Source subscribes to a block subject and exposes parsed blocks on a
// channel.
type Source struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metric.Metrics

	conn    *nats.Conn
	sub     *nats.Subscription
	limiter *rate.Limiter
	out     chan *message.Block

	running atomic.Bool
	mu      sync.Mutex

	// sendMu orders in-flight callback sends against the close of out.
	// handle sends under the read lock; Stop closes under the write lock.
	sendMu sync.RWMutex
	closed bool

	received atomic.Int64
	dropped  atomic.Int64
	invalid  atomic.Int64
}

// New creates a Source. The metrics argument may be nil.
func New(cfg Config, logger *slog.Logger, metrics *metric.Metrics) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Source{
		cfg:     cfg,
		logger:  logger.With("component", "natsblocks"),
		metrics: metrics,
		out:     make(chan *message.Block, cfg.QueueSize),
	}
	if cfg.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), int(cfg.RateLimit)+1)
	}
	return s, nil
}

// Start connects and subscribes. It returns once the subscription is
// established; blocks flow on Blocks() until Stop.
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return errors.WrapInvalid(
			fmt.Errorf("source already running"), "Source", "Start", "check state")
	}

	conn, err := nats.Connect(s.cfg.URL,
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			s.logger.Warn("disconnected from NATS", "error", err)
			if s.metrics != nil {
				s.metrics.RecordSourceStatus(false)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			s.logger.Info("reconnected to NATS", "url", nc.ConnectedUrl())
			if s.metrics != nil {
				s.metrics.RecordSourceStatus(true)
				s.metrics.RecordSourceReconnect()
			}
		}),
	)
	if err != nil {
		return errors.WrapTransient(
			fmt.Errorf("%w: %v", errors.ErrNoConnection, err),
			"Source", "Start", "connect to NATS")
	}

	sub, err := conn.Subscribe(s.cfg.Subject, s.handle)
	if err != nil {
		conn.Close()
		return errors.WrapTransient(
			fmt.Errorf("%w: %v", errors.ErrSubscriptionFailed, err),
			"Source", "Start", "subscribe")
	}

	s.conn = conn
	s.sub = sub
	s.running.Store(true)
	if s.metrics != nil {
		s.metrics.RecordSourceStatus(true)
	}
	s.logger.Info("block source started", "subject", s.cfg.Subject, "url", s.cfg.URL)

	go func() {
		<-ctx.Done()
		_ = s.Stop()
	}()
	return nil
}

// handle parses one incoming payload and queues it. Drops are counted,
// never blocking the NATS callback.
func (s *Source) handle(msg *nats.Msg) {
	s.received.Add(1)

	if s.limiter != nil && !s.limiter.Allow() {
		s.dropped.Add(1)
		s.logger.Debug("block dropped by rate limit", "subject", msg.Subject)
		return
	}

	block, err := message.ParseBlock(msg.Data)
	if err != nil {
		s.invalid.Add(1)
		s.logger.Warn("invalid block payload", "error", err)
		return
	}

	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if s.closed {
		s.dropped.Add(1)
		s.logger.Debug("block dropped after stop", "block", block.ID, "seq", block.Seq)
		return
	}

	select {
	case s.out <- block:
	default:
		s.dropped.Add(1)
		s.logger.Warn("block dropped, queue full", "block", block.ID, "seq", block.Seq)
	}
}

// Blocks returns the channel of parsed blocks. It is closed by Stop.
func (s *Source) Blocks() <-chan *message.Block {
	return s.out
}

// Stop drains the subscription and closes the block channel.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.sub != nil {
		if err := s.sub.Drain(); err != nil {
			s.logger.Warn("drain failed", "error", err)
		}
		s.sub = nil
	}
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	// Drain is asynchronous, so callbacks may still be running. The write
	// lock waits for any send in progress before the channel closes.
	s.sendMu.Lock()
	s.closed = true
	close(s.out)
	s.sendMu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordSourceStatus(false)
	}

	s.logger.Info("block source stopped",
		"received", s.received.Load(),
		"dropped", s.dropped.Load(),
		"invalid", s.invalid.Load())
	return nil
}

// Stats reports ingestion counters: received, dropped, invalid.
func (s *Source) Stats() (received, dropped, invalid int64) {
	return s.received.Load(), s.dropped.Load(), s.invalid.Load()
}
