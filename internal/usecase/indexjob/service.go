// Package indexjob keeps website vectors up to date in the background: a
// bounded queue of single-item tasks fed by create/edit/delete hooks, plus
// an exclusive full re-index batch job.
package indexjob

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/seamark-nav/seamark/internal/domain"
	"github.com/seamark-nav/seamark/internal/metrics"
)

type taskKind int

const (
	taskIndex taskKind = iota
	taskRemove
)

type task struct {
	kind    taskKind
	website domain.Website
	id      int64
}

// Status is a point-in-time snapshot of the batch job.
type Status struct {
	Running        bool    `json:"running"`
	Total          int     `json:"total"`
	Processed      int     `json:"processed"`
	Succeeded      int     `json:"succeeded"`
	Failed         int     `json:"failed"`
	Skipped        int     `json:"skipped"`
	Percent        float64 `json:"percent"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	Message        string  `json:"message,omitempty"`
}

// Options tunes queue capacity, worker count and batch pacing.
type Options struct {
	Workers   int
	QueueSize int
	ItemDelay time.Duration
}

func (o *Options) applyDefaults() {
	if o.Workers <= 0 {
		o.Workers = 2
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
}

// Service owns the task queue, the worker pool and the batch job state.
type Service struct {
	sites   WebsiteLister
	indexer Indexer
	logger  *zap.Logger
	opts    Options

	queue  chan task
	wg     sync.WaitGroup
	cancel context.CancelFunc

	batchRunning atomic.Bool // single-flight gate
	stopRequest  atomic.Bool

	mu        sync.Mutex
	status    Status
	startedAt time.Time

	sleep func(context.Context, time.Duration) error
	now   func() time.Time
}

// New creates the job service. Call Start before enqueuing.
func New(sites WebsiteLister, indexer Indexer, opts Options, logger *zap.Logger) *Service {
	opts.applyDefaults()
	return &Service{
		sites:   sites,
		indexer: indexer,
		logger:  logger,
		opts:    opts,
		queue:   make(chan task, opts.QueueSize),
		sleep:   sleepCtx,
		now:     time.Now,
	}
}

// Start launches the worker pool.
func (s *Service) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	for i := 0; i < s.opts.Workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}
}

// Close stops the workers and waits for in-flight tasks to finish.
func (s *Service) Close() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Enqueue schedules a website for (re-)indexing. Never blocks: when the
// queue is full the task is dropped with a warning, the originating write
// must not suffer for indexing backpressure.
func (s *Service) Enqueue(w domain.Website) {
	select {
	case s.queue <- task{kind: taskIndex, website: w}:
	default:
		s.logger.Warn("Index queue full, dropping task", zap.Int64("website_id", w.ID))
		metrics.IndexedWebsitesTotal.WithLabelValues("dropped").Inc()
	}
}

// EnqueueRemoval schedules a website's vector for deletion. Never blocks.
func (s *Service) EnqueueRemoval(websiteID int64) {
	select {
	case s.queue <- task{kind: taskRemove, id: websiteID}:
	default:
		s.logger.Warn("Index queue full, dropping removal", zap.Int64("website_id", websiteID))
		metrics.IndexedWebsitesTotal.WithLabelValues("dropped").Inc()
	}
}

func (s *Service) worker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-s.queue:
			s.process(ctx, t)
		}
	}
}

func (s *Service) process(ctx context.Context, t task) {
	switch t.kind {
	case taskIndex:
		stored, err := s.indexer.IndexWebsite(ctx, t.website)
		switch {
		case err != nil:
			s.logger.Warn("Background indexing failed",
				zap.Int64("website_id", t.website.ID),
				zap.Error(err),
			)
			metrics.IndexedWebsitesTotal.WithLabelValues("failed").Inc()
		case stored:
			metrics.IndexedWebsitesTotal.WithLabelValues("success").Inc()
		default:
			metrics.IndexedWebsitesTotal.WithLabelValues("skipped").Inc()
		}
	case taskRemove:
		s.indexer.Remove(ctx, t.id)
	}
}

// StartBatch launches a full re-index in the background. Only one batch may
// run at a time; a second request returns domain.ErrJobRunning. The job is
// detached from the caller's request context.
func (s *Service) StartBatch(ctx context.Context, skipExisting bool) error {
	if !s.batchRunning.CompareAndSwap(false, true) {
		return domain.ErrJobRunning
	}
	s.stopRequest.Store(false)

	s.mu.Lock()
	s.status = Status{Running: true}
	s.startedAt = s.now()
	s.mu.Unlock()

	go func() {
		defer s.batchRunning.Store(false)
		s.runBatch(context.WithoutCancel(ctx), skipExisting)
	}()
	return nil
}

// StopBatch asks the running batch to stop after the current item. A no-op
// when nothing runs.
func (s *Service) StopBatch() {
	if s.batchRunning.Load() {
		s.stopRequest.Store(true)
	}
}

// BatchStatus returns the current (or last finished) batch snapshot.
func (s *Service) BatchStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.status
	if !s.startedAt.IsZero() {
		st.ElapsedSeconds = s.now().Sub(s.startedAt).Seconds()
	}
	if st.Total > 0 {
		st.Percent = float64(st.Processed) / float64(st.Total) * 100
	}
	return st
}

func (s *Service) runBatch(ctx context.Context, skipExisting bool) {
	sites, err := s.sites.All(ctx)
	if err != nil {
		s.logger.Error("Batch indexing failed to list websites", zap.Error(err))
		s.finishBatch("failed to list websites")
		return
	}

	var existing map[int64]bool
	if skipExisting {
		ids := make([]int64, len(sites))
		for i, w := range sites {
			ids[i] = w.ID
		}
		existing, err = s.indexer.Existing(ctx, ids)
		if err != nil {
			s.logger.Warn("Existing-vector probe failed, indexing everything", zap.Error(err))
			existing = nil
		}
	}

	s.mu.Lock()
	s.status.Total = len(sites)
	s.mu.Unlock()

	s.logger.Info("Batch indexing started",
		zap.Int("total", len(sites)),
		zap.Bool("skip_existing", skipExisting),
	)

	for i, w := range sites {
		if s.stopRequest.Load() {
			s.logger.Info("Batch indexing stopped on request",
				zap.Int("processed", i),
				zap.Int("total", len(sites)),
			)
			s.finishBatch("stopped")
			return
		}

		if existing[w.ID] {
			s.recordItem(func(st *Status) { st.Skipped++ })
			metrics.IndexedWebsitesTotal.WithLabelValues("skipped").Inc()
			continue
		}

		stored, err := s.indexer.IndexWebsite(ctx, w)
		switch {
		case err != nil:
			s.logger.Warn("Batch indexing item failed",
				zap.Int64("website_id", w.ID),
				zap.Error(err),
			)
			s.recordItem(func(st *Status) { st.Failed++ })
			metrics.IndexedWebsitesTotal.WithLabelValues("failed").Inc()
		case stored:
			s.recordItem(func(st *Status) { st.Succeeded++ })
			metrics.IndexedWebsitesTotal.WithLabelValues("success").Inc()
		default:
			s.recordItem(func(st *Status) { st.Skipped++ })
			metrics.IndexedWebsitesTotal.WithLabelValues("skipped").Inc()
		}

		if (i+1)%10 == 0 {
			s.mu.Lock()
			st := s.status
			s.mu.Unlock()
			s.logger.Info("Batch indexing progress",
				zap.Int("processed", st.Processed),
				zap.Int("total", st.Total),
				zap.Int("succeeded", st.Succeeded),
				zap.Int("failed", st.Failed),
				zap.Int("skipped", st.Skipped),
			)
		}

		// Pace the embedding API between items.
		if s.opts.ItemDelay > 0 && i < len(sites)-1 {
			if err := s.sleep(ctx, s.opts.ItemDelay); err != nil {
				s.finishBatch("interrupted")
				return
			}
		}
	}

	s.logger.Info("Batch indexing finished")
	s.finishBatch("")
}

func (s *Service) recordItem(update func(*Status)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Processed++
	update(&s.status)
}

func (s *Service) finishBatch(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Running = false
	s.status.Message = message
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
