package core

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/RecoveryAshes/HackSync/internal/models"
	"github.com/RecoveryAshes/HackSync/internal/sink"
)

// fakeSink 记录调用顺序的内存存储
type fakeSink struct {
	mu sync.Mutex

	existing  int64
	deleteErr error
	insertErr error
	closeErr  error

	calls    []string
	inserted []models.Record
	closed   int
}

func (s *fakeSink) record(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

func (s *fakeSink) DeleteAll(ctx context.Context) (int64, error) {
	s.record("delete")
	if s.deleteErr != nil {
		return 0, s.deleteErr
	}
	n := s.existing
	s.existing = 0
	return n, nil
}

func (s *fakeSink) InsertMany(ctx context.Context, records []models.Record) (int64, error) {
	s.record("insert")
	if s.insertErr != nil {
		return 0, s.insertErr
	}
	s.inserted = append(s.inserted, records...)
	s.existing += int64(len(records))
	return int64(len(records)), nil
}

func (s *fakeSink) Close(ctx context.Context) error {
	s.record("close")
	s.mu.Lock()
	s.closed++
	s.mu.Unlock()
	return s.closeErr
}

func (s *fakeSink) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// openerFor 每次调用返回同一个fakeSink
func openerFor(s *fakeSink) sink.Opener {
	return func(ctx context.Context) (sink.DataSink, error) {
		return s, nil
	}
}

// fakeExtraction 每次Run把records写到快照文件
type fakeExtraction struct {
	mu      sync.Mutex
	path    string
	records []models.Record
	errs    []error // 第i次Run返回errs[i](存在且非nil时)
	runs    int

	started chan struct{}
	release chan struct{}
}

func newFakeExtraction(t *testing.T, records []models.Record) *fakeExtraction {
	t.Helper()
	return &fakeExtraction{
		path:    filepath.Join(t.TempDir(), models.SnapshotFilename),
		records: records,
	}
}

func (e *fakeExtraction) Run(ctx context.Context) (*models.Snapshot, error) {
	e.mu.Lock()
	n := e.runs
	e.runs++
	e.mu.Unlock()

	if e.started != nil {
		e.started <- struct{}{}
	}
	if e.release != nil {
		select {
		case <-e.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if n < len(e.errs) && e.errs[n] != nil {
		return nil, e.errs[n]
	}
	if err := models.SaveRecordsToFile(e.path, e.records); err != nil {
		return nil, err
	}
	return models.NewSnapshot("https://hackscrapped.vercel.app/", e.records), nil
}

func (e *fakeExtraction) SnapshotPath() string { return e.path }

func (e *fakeExtraction) Runs() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runs
}

// recordingSleep 记录等待时长,不真正等待
type recordingSleep struct {
	mu     sync.Mutex
	delays []time.Duration
	err    error
}

func (s *recordingSleep) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return s.err
}

func sampleRecords() []models.Record {
	return []models.Record{
		{Headline: models.Ptr("HackSync 2024"), URL: models.Ptr("https://hacksync.dev"), ParticipantCount: 120},
		{Headline: models.Ptr("Build Week"), Tags: []string{"AI", "Web3"}},
	}
}

var errBoom = errors.New("boom")
