// Package worker provides an asynchronous pool for background fact
// extraction.
//
// The pool decouples extraction (the only slow, external-call-bound step)
// from the API hot path: a conversation turn is acknowledged immediately
// and consolidated into fact records in the background. Store mutations
// happen only after the extraction call returns, so a caller that gives
// up on a turn simply discards it - there is never a partial mutation to
// cancel.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/keepsake-sh/keepsake/pkg/engine"
	"github.com/keepsake-sh/keepsake/pkg/extract"
	"github.com/keepsake-sh/keepsake/pkg/memory"
)

var (
	defaultNumWorkers   uint = 2
	defaultJobQueueSize uint = 256
)

// Job is one conversation turn awaiting extraction.
type Job struct {
	ScopeID string
	Policy  memory.Policy
	Turn    extract.ConversationTurn
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Engine ingests extracted candidates under the job's policy.
	Engine *engine.Engine

	// Extractor produces candidate facts from conversation turns.
	Extractor extract.Extractor

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// Logger is the provided slog logger.
	Logger *slog.Logger
}

// Pool processes extraction jobs asynchronously.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Engine == nil {
		return nil, fmt.Errorf("worker pool requires an engine")
	}
	if c.Extractor == nil {
		return nil, fmt.Errorf("worker pool requires an extractor")
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: logger,
	}

	p.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go p.worker(i)
	}

	return p, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full, resulting in the
// job being dropped.
func (p *Pool) Enqueue(job Job) bool {
	select {
	case p.queue <- job:
		p.logger.Debug("extraction job queued",
			"scope_id", job.ScopeID,
			"policy", string(job.Policy),
		)
		return true
	default:
		p.logger.Error("extraction job dropped, queue full",
			"scope_id", job.ScopeID,
			"policy", string(job.Policy),
		)
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during graceful shutdown after the API server has stopped.
func (p *Pool) Close() {
	close(p.queue)
	p.wg.Wait()
}

// worker continuously pulls jobs off the queue.
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("extraction worker started", "worker_id", id)

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("extraction worker stopped", "worker_id", id)
}

// processJob extracts candidates from the turn and ingests each one under
// the job's policy. Extraction failures drop the turn; ingestion failures
// skip the offending candidate and keep going.
func (p *Pool) processJob(job Job) {
	ctx := context.Background()

	candidates, err := p.config.Extractor.Extract(ctx, job.Turn)
	if err != nil {
		p.logger.Error("extraction failed, turn dropped",
			"scope_id", job.ScopeID,
			"error", err,
		)
		return
	}

	if len(candidates) == 0 {
		p.logger.Debug("no facts extracted from turn", "scope_id", job.ScopeID)
		return
	}

	for _, content := range candidates {
		if _, err := p.config.Engine.Ingest(ctx, job.ScopeID, content, job.Policy); err != nil {
			p.logger.Error("failed to ingest extracted fact",
				"scope_id", job.ScopeID,
				"policy", string(job.Policy),
				"error", err,
			)
		}
	}
}
