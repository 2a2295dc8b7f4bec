package indexjob

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/seamark-nav/seamark/internal/domain"
)

type mockLister struct {
	sites []domain.Website
	err   error
}

func (m *mockLister) All(_ context.Context) ([]domain.Website, error) {
	return m.sites, m.err
}

type mockIndexer struct {
	mu       sync.Mutex
	indexed  []int64
	removed  []int64
	existing map[int64]bool
	errFor   map[int64]error
	skipFor  map[int64]bool
	block    chan struct{} // when set, IndexWebsite waits for a signal
}

func (m *mockIndexer) IndexWebsite(_ context.Context, w domain.Website) (bool, error) {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errFor[w.ID]; err != nil {
		return false, err
	}
	if m.skipFor[w.ID] {
		return false, nil
	}
	m.indexed = append(m.indexed, w.ID)
	return true, nil
}

func (m *mockIndexer) Existing(_ context.Context, _ []int64) (map[int64]bool, error) {
	return m.existing, nil
}

func (m *mockIndexer) Remove(_ context.Context, id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, id)
}

func (m *mockIndexer) indexedIDs() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.indexed...)
}

func sites(ids ...int64) []domain.Website {
	out := make([]domain.Website, len(ids))
	for i, id := range ids {
		out[i] = domain.Website{ID: id, Title: "t"}
	}
	return out
}

func newTestService(lister *mockLister, indexer *mockIndexer, opts Options) *Service {
	s := New(lister, indexer, opts, zap.NewNop())
	s.sleep = func(context.Context, time.Duration) error { return nil }
	return s
}

func TestRunBatch_IndexesEverything(t *testing.T) {
	indexer := &mockIndexer{}
	s := newTestService(&mockLister{sites: sites(1, 2, 3)}, indexer, Options{})

	s.status = Status{Running: true}
	s.startedAt = time.Now()
	s.runBatch(context.Background(), false)

	if got := indexer.indexedIDs(); len(got) != 3 {
		t.Errorf("expected 3 indexed, got %v", got)
	}
	st := s.BatchStatus()
	if st.Running {
		t.Error("batch must be marked finished")
	}
	if st.Processed != 3 || st.Succeeded != 3 || st.Failed != 0 {
		t.Errorf("unexpected status: %+v", st)
	}
	if st.Percent != 100 {
		t.Errorf("expected 100%%, got %f", st.Percent)
	}
}

func TestRunBatch_SkipExisting(t *testing.T) {
	indexer := &mockIndexer{existing: map[int64]bool{2: true}}
	s := newTestService(&mockLister{sites: sites(1, 2, 3)}, indexer, Options{})

	s.status = Status{Running: true}
	s.runBatch(context.Background(), true)

	if got := indexer.indexedIDs(); len(got) != 2 {
		t.Errorf("expected 2 indexed, got %v", got)
	}
	st := s.BatchStatus()
	if st.Skipped != 1 || st.Succeeded != 2 || st.Processed != 3 {
		t.Errorf("unexpected status: %+v", st)
	}
}

func TestRunBatch_CountsFailuresAndEmptyText(t *testing.T) {
	indexer := &mockIndexer{
		errFor:  map[int64]error{2: errors.New("boom")},
		skipFor: map[int64]bool{3: true}, // no indexable text
	}
	s := newTestService(&mockLister{sites: sites(1, 2, 3)}, indexer, Options{})

	s.status = Status{Running: true}
	s.runBatch(context.Background(), false)

	st := s.BatchStatus()
	if st.Succeeded != 1 || st.Failed != 1 || st.Skipped != 1 {
		t.Errorf("unexpected status: %+v", st)
	}
}

func TestRunBatch_ListFailure(t *testing.T) {
	s := newTestService(&mockLister{err: errors.New("db down")}, &mockIndexer{}, Options{})

	s.status = Status{Running: true}
	s.runBatch(context.Background(), false)

	st := s.BatchStatus()
	if st.Running || st.Message == "" {
		t.Errorf("expected finished status with message, got %+v", st)
	}
}

func TestRunBatch_StopRequest(t *testing.T) {
	indexer := &mockIndexer{}
	s := newTestService(&mockLister{sites: sites(1, 2, 3)}, indexer, Options{})

	// Stop before the second item: request stop after the first index call.
	s.sleep = func(context.Context, time.Duration) error {
		s.stopRequest.Store(true)
		return nil
	}
	s.opts.ItemDelay = time.Millisecond

	s.status = Status{Running: true}
	s.runBatch(context.Background(), false)

	if got := indexer.indexedIDs(); len(got) != 1 {
		t.Errorf("expected stop after first item, indexed %v", got)
	}
	st := s.BatchStatus()
	if st.Message != "stopped" {
		t.Errorf("unexpected status: %+v", st)
	}
}

func TestStartBatch_SingleFlight(t *testing.T) {
	indexer := &mockIndexer{block: make(chan struct{})}
	s := newTestService(&mockLister{sites: sites(1)}, indexer, Options{})

	if err := s.StartBatch(context.Background(), false); err != nil {
		t.Fatalf("first start must succeed: %v", err)
	}
	if err := s.StartBatch(context.Background(), false); !errors.Is(err, domain.ErrJobRunning) {
		t.Errorf("second start must return ErrJobRunning, got %v", err)
	}

	close(indexer.block)
	waitUntil(t, func() bool { return !s.batchRunning.Load() })

	// After completion a new batch may start again.
	indexer.block = nil
	if err := s.StartBatch(context.Background(), false); err != nil {
		t.Errorf("restart after completion must succeed: %v", err)
	}
	waitUntil(t, func() bool { return !s.batchRunning.Load() })
}

func TestEnqueue_ProcessesTask(t *testing.T) {
	indexer := &mockIndexer{}
	s := newTestService(&mockLister{}, indexer, Options{Workers: 1})
	s.Start(context.Background())
	defer s.Close()

	s.Enqueue(domain.Website{ID: 42, Title: "t"})
	waitUntil(t, func() bool { return len(indexer.indexedIDs()) == 1 })

	s.EnqueueRemoval(42)
	waitUntil(t, func() bool {
		indexer.mu.Lock()
		defer indexer.mu.Unlock()
		return len(indexer.removed) == 1
	})
}

func TestEnqueue_FullQueueDropsWithoutBlocking(t *testing.T) {
	indexer := &mockIndexer{}
	s := newTestService(&mockLister{}, indexer, Options{Workers: 1, QueueSize: 1})
	// Workers not started: the queue fills and stays full.

	done := make(chan struct{})
	go func() {
		s.Enqueue(domain.Website{ID: 1})
		s.Enqueue(domain.Website{ID: 2}) // dropped
		s.Enqueue(domain.Website{ID: 3}) // dropped
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Enqueue must never block")
	}
	if len(s.queue) != 1 {
		t.Errorf("expected 1 queued task, got %d", len(s.queue))
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
