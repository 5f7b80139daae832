// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package audit delivers interaction records and budget signals to their sinks.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MadsRC/sixlab"
	"github.com/MadsRC/sixlab/internal/monitoring"
)

const (
	DefaultQueueSize    = 1000
	DefaultWriteTimeout = 5 * time.Second
)

// AsyncLogger persists interaction records from a background worker so that
// AI calls never wait on the repository. When the queue is full records are
// dropped.
type AsyncLogger struct {
	repo     sixlab.InteractionRepository
	logger   *slog.Logger
	metrics  *monitoring.AIMetrics
	timeout  time.Duration
	recordCh chan *sixlab.InteractionRecord
	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

var _ sixlab.InteractionLogger = (*AsyncLogger)(nil)

type AsyncOption func(*AsyncLogger)

func WithLogger(logger *slog.Logger) AsyncOption {
	return func(a *AsyncLogger) {
		a.logger = logger
	}
}

func WithMetrics(m *monitoring.AIMetrics) AsyncOption {
	return func(a *AsyncLogger) {
		a.metrics = m
	}
}

// WithWriteTimeout bounds each repository write
func WithWriteTimeout(d time.Duration) AsyncOption {
	return func(a *AsyncLogger) {
		a.timeout = d
	}
}

// NewAsyncLogger creates an AsyncLogger with room for queueSize pending
// records and starts its worker. A queueSize of 0 or less means DefaultQueueSize.
func NewAsyncLogger(repo sixlab.InteractionRepository, queueSize int, opts ...AsyncOption) *AsyncLogger {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	a := &AsyncLogger{
		repo:     repo,
		logger:   slog.Default(),
		timeout:  DefaultWriteTimeout,
		recordCh: make(chan *sixlab.InteractionRecord, queueSize),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}

	go a.processRecords()

	return a
}

// LogInteraction queues record without blocking.
func (a *AsyncLogger) LogInteraction(ctx context.Context, record sixlab.InteractionRecord) {
	select {
	case <-a.done:
		a.drop(ctx, &record, "Interaction logger stopped, dropping record")
		return
	default:
	}

	select {
	case a.recordCh <- &record:
		if a.metrics != nil {
			a.metrics.UpdateLogQueueSize(ctx, int64(len(a.recordCh)))
		}
	default:
		a.drop(ctx, &record, "Interaction log queue full, dropping record")
	}
}

func (a *AsyncLogger) drop(ctx context.Context, record *sixlab.InteractionRecord, msg string) {
	a.logger.Warn(msg,
		"interactionId", record.ID,
		"provider", record.Provider,
		"interactionType", record.InteractionType)
	if a.metrics != nil {
		a.metrics.RecordInteractionDropped(ctx)
	}
}

// processRecords runs in a background goroutine to persist records
func (a *AsyncLogger) processRecords() {
	defer close(a.stopped)

	for {
		select {
		case record := <-a.recordCh:
			a.persist(record)

		case <-a.done:
			a.logger.Info("Interaction logger shutting down", "pending", len(a.recordCh))

			for {
				select {
				case record := <-a.recordCh:
					a.persist(record)
				default:
					return
				}
			}
		}
	}
}

func (a *AsyncLogger) persist(record *sixlab.InteractionRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	if err := a.repo.CreateInteraction(ctx, record); err != nil {
		a.logger.Error("Failed to persist interaction record",
			"error", err,
			"interactionId", record.ID,
			"provider", record.Provider)
		if a.metrics != nil {
			a.metrics.RecordInteractionLogError(ctx, "repository")
		}
		return
	}

	a.logger.Debug("Interaction record persisted",
		"interactionId", record.ID,
		"provider", record.Provider,
		"status", record.Status)
	if a.metrics != nil {
		a.metrics.UpdateLogQueueSize(ctx, int64(len(a.recordCh)))
	}
}

// Shutdown stops accepting records and waits until the queued ones are
// written or ctx ends.
func (a *AsyncLogger) Shutdown(ctx context.Context) error {
	a.stopOnce.Do(func() { close(a.done) })

	select {
	case <-a.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
