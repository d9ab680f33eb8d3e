package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/mcoot/tebex-license-server/internal/metrics"
	"github.com/mcoot/tebex-license-server/internal/redact"
)

// Outcome labels recorded per message
const (
	OutcomeSent    = "sent"
	OutcomeFailed  = "failed"
	OutcomeDropped = "dropped"
	OutcomeInvalid = "invalid_recipient"
)

// QueueConfig sizes the worker pool
type QueueConfig struct {
	Workers     int
	Size        int
	SendTimeout time.Duration
}

// DefaultQueueConfig returns sensible defaults for the notification queue
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		Workers:     2,
		Size:        100,
		SendTimeout: 15 * time.Second,
	}
}

// Queue is a bounded, non-blocking hand-off to a pool of sender workers
type Queue struct {
	cfg      QueueConfig
	sender   Sender
	messages chan Message
	validate *validator.Validate
	metrics  *metrics.Metrics
	logger   *slog.Logger

	// stopped is set, under the write lock, once Run has begun its final
	// drain; Enqueue holds the read lock so nothing slips in behind it.
	mu      sync.RWMutex
	stopped bool
}

// NewQueue creates a queue. Run must be called for messages to be delivered.
func NewQueue(sender Sender, cfg QueueConfig, m *metrics.Metrics, logger *slog.Logger) *Queue {
	defaults := DefaultQueueConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = defaults.Workers
	}
	if cfg.Size <= 0 {
		cfg.Size = defaults.Size
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaults.SendTimeout
	}

	return &Queue{
		cfg:      cfg,
		sender:   sender,
		messages: make(chan Message, cfg.Size),
		validate: validator.New(),
		metrics:  m,
		logger:   logger,
	}
}

// Enqueue schedules msg for delivery. It never blocks: when the queue is
// full the message is dropped and false is returned.
func (q *Queue) Enqueue(msg Message) bool {
	if err := q.validate.Var(msg.To, "required,email"); err != nil {
		q.logger.Warn("license email skipped",
			slog.String("reason", ErrInvalidRecipient.Error()),
			slog.String("to", redact.Email(msg.To)),
		)
		q.metrics.Notification(OutcomeInvalid)
		return false
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.stopped {
		q.logger.Warn("notification queue stopped, dropping license email",
			slog.String("to", redact.Email(msg.To)),
			slog.String("key", redact.Fingerprint(msg.Credential)),
		)
		q.metrics.Notification(OutcomeDropped)
		return false
	}

	select {
	case q.messages <- msg:
		q.metrics.NotifyQueueLength(len(q.messages))
		return true
	default:
		q.logger.Warn("notification queue full, dropping license email",
			slog.String("to", redact.Email(msg.To)),
			slog.String("key", redact.Fingerprint(msg.Credential)),
		)
		q.metrics.Notification(OutcomeDropped)
		return false
	}
}

// Len returns the number of messages waiting for a worker
func (q *Queue) Len() int {
	return len(q.messages)
}

// Run starts the workers and blocks until ctx is cancelled. Messages still
// queued at that point are delivered before Run returns; later Enqueue
// calls are refused. Run is meant to be called once.
func (q *Queue) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < q.cfg.Workers; i++ {
		g.Go(func() error {
			q.work(gctx)
			return nil
		})
	}
	err := g.Wait()

	q.mu.Lock()
	q.stopped = true
	q.mu.Unlock()
	q.drain()
	return err
}

func (q *Queue) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-q.messages:
			q.metrics.NotifyQueueLength(len(q.messages))
			q.deliver(ctx, msg)
		}
	}
}

// drain flushes what is left after shutdown, each send under its own timeout
func (q *Queue) drain() {
	for {
		select {
		case msg := <-q.messages:
			q.deliver(context.Background(), msg)
		default:
			q.metrics.NotifyQueueLength(0)
			return
		}
	}
}

func (q *Queue) deliver(ctx context.Context, msg Message) {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), q.cfg.SendTimeout)
	defer cancel()

	logger := q.logger.With(
		slog.String("to", redact.Email(msg.To)),
		slog.String("key", redact.Fingerprint(msg.Credential)),
	)

	if err := q.sender.Send(sendCtx, msg); err != nil {
		logger.ErrorContext(sendCtx, "license email failed", slog.String("error", err.Error()))
		q.metrics.Notification(OutcomeFailed)
		return
	}
	logger.InfoContext(sendCtx, "license email sent")
	q.metrics.Notification(OutcomeSent)
}
