// Package worker drains the change feed into sinks.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/starboard/internal/domain/model"
	"github.com/okian/starboard/pkg/logger"
	"github.com/okian/starboard/pkg/metrics"
)

const poolShutdownTimeout = 30 * time.Second

// Queue defines how workers receive entries.
type Queue interface {
	Dequeue() <-chan model.ChangeLogEntry
	Close() error
}

// Pool runs workers that deliver every entry to every sink.
type Pool struct {
	queue       Queue
	sinks       []Sink
	workerCount int
	logger      logger.Logger

	active    atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64

	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewPool creates a pool; call Start to run it.
func NewPool(q Queue, sinks []Sink, opts ...Option) *Pool {
	p := &Pool{
		queue:       q,
		sinks:       sinks,
		workerCount: runtime.NumCPU(),
		logger:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.Named("feed")
	return p
}

// Start launches the workers. They stop when the queue is closed and
// drained, or when ctx is done.
func (p *Pool) Start(ctx context.Context) {
	metrics.UpdateWorkerCount(p.workerCount)
	metrics.UpdateWorkerIdleCount(p.workerCount)
	metrics.UpdateWorkerActiveCount(0)
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()
	entries := p.queue.Dequeue()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-entries:
			if !ok {
				return
			}
			metrics.RecordQueueDequeue()
			p.deliver(ctx, id, e)
		}
	}
}

func (p *Pool) deliver(ctx context.Context, id int, e model.ChangeLogEntry) { //nolint:gocritic // hugeParam: entries travel by value
	active := p.active.Add(1)
	metrics.UpdateWorkerActiveCount(int(active))
	metrics.UpdateWorkerIdleCount(p.workerCount - int(active))
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
		active := p.active.Add(-1)
		metrics.UpdateWorkerActiveCount(int(active))
		metrics.UpdateWorkerIdleCount(p.workerCount - int(active))
	}()

	for _, s := range p.sinks {
		if err := s.Handle(ctx, e); err != nil {
			p.failed.Add(1)
			metrics.RecordWorkerError()
			metrics.RecordErrorByComponent("feed", s.Name())
			p.logger.Error(ctx, "sink failed",
				logger.Int("worker_id", id),
				logger.String("sink", s.Name()),
				logger.String("entry_id", e.ID),
				logger.Error(err),
			)
		}
	}
	p.processed.Add(1)
}

// Processed returns how many entries were delivered.
func (p *Pool) Processed() int64 { return p.processed.Load() }

// Failed returns how many sink deliveries failed.
func (p *Pool) Failed() int64 { return p.failed.Load() }

// Workers returns the configured worker count.
func (p *Pool) Workers() int { return p.workerCount }

// Shutdown closes the queue and waits for the workers to drain it.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.stopOnce.Do(func() {
		if err := p.queue.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	})

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()
	select {
	case <-done:
		metrics.UpdateWorkerCount(0)
		return nil
	case <-shutdownCtx.Done():
		p.logger.Warn(ctx, "feed shutdown timed out")
		return fmt.Errorf("feed shutdown: %w", shutdownCtx.Err())
	}
}
