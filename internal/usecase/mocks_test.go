package usecase

import (
	"context"
	"sync"
	"time"

	"scanguard/internal/domain"
	"scanguard/internal/domain/model"
	"scanguard/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
)

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// memQueue is a small in-memory job queue used by unit tests.
type memQueue struct {
	mu         sync.Mutex
	jobs       []*model.Job
	enqueueErr error
}

func newMemQueue() *memQueue { return &memQueue{} }

func (m *memQueue) Enqueue(ctx context.Context, tx repository.Tx, job *model.Job) error {
	if m.enqueueErr != nil {
		return m.enqueueErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.jobs = append(m.jobs, &cp)
	return nil
}

func (m *memQueue) FetchAndMarkProcessing(ctx context.Context, kinds ...model.JobKind) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.Status != model.JobStatusPending || j.AvailableAt.After(time.Now()) {
			continue
		}
		for _, k := range kinds {
			if j.Kind == k {
				j.Status = model.JobStatusProcessing
				cp := *j
				return &cp, nil
			}
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memQueue) Complete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.ID == id {
			j.Status = model.JobStatusCompleted
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *memQueue) Fail(ctx context.Context, job *model.Job, cause error, backoff time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.ID == job.ID {
			j.Attempts++
			j.LastError = cause.Error()
			if j.Attempts < j.MaxAttempts {
				j.Status = model.JobStatusPending
				j.AvailableAt = time.Now().Add(backoff * time.Duration(j.Attempts))
			} else {
				j.Status = model.JobStatusFailed
			}
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *memQueue) Depths(ctx context.Context) (map[model.JobKind]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[model.JobKind]int)
	for _, j := range m.jobs {
		if j.Status == model.JobStatusPending {
			out[j.Kind]++
		}
	}
	return out, nil
}

// byKind returns all stored jobs of one kind, regardless of status.
func (m *memQueue) byKind(kind model.JobKind) []*model.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Job
	for _, j := range m.jobs {
		if j.Kind == kind {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out
}

type memScanHistory struct {
	mu       sync.RWMutex
	store    map[string]*model.ScanHistory
	trendErr error
	trend    []model.TrendPoint
}

func newMemScanHistory() *memScanHistory {
	return &memScanHistory{store: make(map[string]*model.ScanHistory)}
}

func (m *memScanHistory) Save(ctx context.Context, tx repository.Tx, rec *model.ScanHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.store[rec.ID] = &cp
	return nil
}

func (m *memScanHistory) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.ScanHistory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *memScanHistory) ListByOwner(ctx context.Context, tx repository.Tx, ownerID string, limit, offset int) ([]*model.ScanHistory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.ScanHistory
	for _, rec := range m.store {
		if rec.OwnerID == ownerID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memScanHistory) CountByOwnerSince(ctx context.Context, tx repository.Tx, ownerID string, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, rec := range m.store {
		if rec.OwnerID == ownerID && !rec.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *memScanHistory) TrendBuckets(ctx context.Context, since time.Time, bucket time.Duration) ([]model.TrendPoint, error) {
	if m.trendErr != nil {
		return nil, m.trendErr
	}
	return m.trend, nil
}

type memPhishingHistory struct {
	mu    sync.RWMutex
	store map[string]*model.PhishingHistory
}

func newMemPhishingHistory() *memPhishingHistory {
	return &memPhishingHistory{store: make(map[string]*model.PhishingHistory)}
}

func (m *memPhishingHistory) Save(ctx context.Context, tx repository.Tx, rec *model.PhishingHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.store[rec.ID] = &cp
	return nil
}

func (m *memPhishingHistory) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PhishingHistory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

type memFeedbackRepo struct {
	mu        sync.RWMutex
	store     map[string]*model.Feedback
	conflicts int // ConflictingScanCount stub
}

func newMemFeedbackRepo() *memFeedbackRepo {
	return &memFeedbackRepo{store: make(map[string]*model.Feedback)}
}

func (m *memFeedbackRepo) Insert(ctx context.Context, tx repository.Tx, fb *model.Feedback) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ref, _ := fb.ScanRef()
	for _, existing := range m.store {
		er, _ := existing.ScanRef()
		if existing.OwnerID == fb.OwnerID && er == ref {
			return domain.ErrConflict
		}
	}
	cp := *fb
	m.store[fb.ID] = &cp
	return nil
}

func (m *memFeedbackRepo) Update(ctx context.Context, tx repository.Tx, fb *model.Feedback) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[fb.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *fb
	m.store[fb.ID] = &cp
	return nil
}

func (m *memFeedbackRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Feedback, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fb, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *fb
	return &cp, nil
}

func (m *memFeedbackRepo) ExistsForScan(ctx context.Context, tx repository.Tx, ownerID, scanRef string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, fb := range m.store {
		ref, _ := fb.ScanRef()
		if fb.OwnerID == ownerID && ref == scanRef {
			return true, nil
		}
	}
	return false, nil
}

func (m *memFeedbackRepo) ListPending(ctx context.Context, tx repository.Tx, limit, offset int) ([]*model.Feedback, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Feedback
	for _, fb := range m.store {
		if fb.Status == model.FeedbackPending {
			cp := *fb
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memFeedbackRepo) CountByOwnerSince(ctx context.Context, tx repository.Tx, ownerID string, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, fb := range m.store {
		if fb.OwnerID == ownerID && !fb.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *memFeedbackRepo) CountApprovedByOwner(ctx context.Context, tx repository.Tx, ownerID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, fb := range m.store {
		if fb.OwnerID == ownerID && fb.Status == model.FeedbackApproved {
			n++
		}
	}
	return n, nil
}

func (m *memFeedbackRepo) ConflictingScanCount(ctx context.Context, tx repository.Tx, ownerID string, since time.Time) (int, error) {
	return m.conflicts, nil
}

func (m *memFeedbackRepo) CountUntrained(ctx context.Context, tx repository.Tx) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, fb := range m.store {
		if fb.Status == model.FeedbackApproved && !fb.IncludedInTraining {
			n++
		}
	}
	return n, nil
}

func (m *memFeedbackRepo) ListUntrained(ctx context.Context, tx repository.Tx, since *time.Time) ([]*model.Feedback, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Feedback
	for _, fb := range m.store {
		if fb.Status != model.FeedbackApproved || fb.IncludedInTraining {
			continue
		}
		if since != nil && fb.CreatedAt.Before(*since) {
			continue
		}
		cp := *fb
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memFeedbackRepo) MarkTrained(ctx context.Context, tx repository.Tx, ids []string, batch string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		if fb, ok := m.store[id]; ok {
			fb.IncludedInTraining = true
			fb.TrainingBatch = batch
		}
	}
	return nil
}

func (m *memFeedbackRepo) Stats(ctx context.Context, tx repository.Tx) (*model.FeedbackStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := &model.FeedbackStats{
		ByStatus: make(map[model.FeedbackStatus]int),
		ByType:   make(map[model.FeedbackType]int),
	}
	for _, fb := range m.store {
		stats.ByStatus[fb.Status]++
		stats.ByType[fb.Type]++
	}
	return stats, nil
}

type memVersionRepo struct {
	mu    sync.RWMutex
	store map[string]*model.ModelVersion
}

func newMemVersionRepo() *memVersionRepo {
	return &memVersionRepo{store: make(map[string]*model.ModelVersion)}
}

func (m *memVersionRepo) Save(ctx context.Context, tx repository.Tx, v *model.ModelVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *v
	m.store[v.ID] = &cp
	return nil
}

func (m *memVersionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.ModelVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (m *memVersionRepo) List(ctx context.Context, tx repository.Tx, modelType string) ([]*model.ModelVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.ModelVersion
	for _, v := range m.store {
		if modelType == "" || v.ModelType == modelType {
			cp := *v
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memVersionRepo) AnyInTraining(ctx context.Context, tx repository.Tx, modelType string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, v := range m.store {
		if v.ModelType == modelType && v.Status == model.VersionTraining {
			return true, nil
		}
	}
	return false, nil
}

func (m *memVersionRepo) FindDeployed(ctx context.Context, tx repository.Tx, modelType string) (*model.ModelVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, v := range m.store {
		if v.ModelType == modelType && v.Status == model.VersionDeployed {
			cp := *v
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

// memTxManager runs fn directly; the fakes ignore the tx handle anyway.
type memTxManager struct{}

func (memTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, repository.NoTX)
}

type memLimiter struct {
	allow bool
	err   error
	calls int
}

func (m *memLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	m.calls++
	return m.allow, m.err
}
