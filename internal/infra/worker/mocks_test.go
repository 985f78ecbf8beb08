package worker

import (
	"context"
	"sync"
	"time"

	"scanguard/internal/domain"
	"scanguard/internal/domain/model"
	"scanguard/internal/domain/ports/adapter"
	"scanguard/internal/domain/ports/repository"

	"github.com/rs/zerolog"
)

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

type memQueue struct {
	mu   sync.Mutex
	jobs []*model.Job
}

func newMemQueue() *memQueue { return &memQueue{} }

func (m *memQueue) Enqueue(ctx context.Context, tx repository.Tx, job *model.Job) error {
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

func (m *memQueue) status(id string) model.JobStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.ID == id {
			return j.Status
		}
	}
	return ""
}

type memCache struct {
	mu    sync.RWMutex
	store map[string]*model.PredictionResult
}

func newMemCache() *memCache {
	return &memCache{store: make(map[string]*model.PredictionResult)}
}

func (m *memCache) Get(ctx context.Context, fingerprint string) (*model.PredictionResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res, ok := m.store[fingerprint]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *res
	return &cp, nil
}

func (m *memCache) Store(ctx context.Context, fingerprint string, kind model.JobKind, res *model.PredictionResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *res
	m.store[fingerprint] = &cp
	return nil
}

// fakePredictor counts calls so tests can assert on dedup behavior.
type fakePredictor struct {
	mu         sync.Mutex
	prediction adapter.Prediction
	err        error
	calls      int

	retrain    adapter.RetrainResult
	retrainErr error
}

func (f *fakePredictor) predict() (*adapter.Prediction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	cp := f.prediction
	return &cp, nil
}

func (f *fakePredictor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakePredictor) PredictText(ctx context.Context, text string) (*adapter.Prediction, error) {
	return f.predict()
}

func (f *fakePredictor) PredictVoice(ctx context.Context, audio []byte, filename, mimeType string) (*adapter.Prediction, error) {
	return f.predict()
}

func (f *fakePredictor) ScanURL(ctx context.Context, url string) (*adapter.Prediction, error) {
	return f.predict()
}

func (f *fakePredictor) AnalyzeURLDeep(ctx context.Context, url string) (*adapter.Prediction, error) {
	return f.predict()
}

func (f *fakePredictor) PredictPhishing(ctx context.Context, text string) (*adapter.Prediction, error) {
	return f.predict()
}

func (f *fakePredictor) Retrain(ctx context.Context, versionID string, samples []model.TrainingSample, hp adapter.Hyperparameters) (*adapter.RetrainResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.retrainErr != nil {
		return nil, f.retrainErr
	}
	cp := f.retrain
	return &cp, nil
}

type memScanHistory struct {
	mu      sync.RWMutex
	store   map[string]*model.ScanHistory
	findErr error // injected FindByID fault
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
	if m.findErr != nil {
		return nil, m.findErr
	}
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
	return nil, nil
}

// all returns every stored row, for assertions.
func (m *memScanHistory) all() []*model.ScanHistory {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.ScanHistory
	for _, rec := range m.store {
		cp := *rec
		out = append(out, &cp)
	}
	return out
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

func (m *memPhishingHistory) count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.store)
}

type memFeedbackRepo struct {
	mu            sync.RWMutex
	store         map[string]*model.Feedback
	dailyCount    int
	approvedCount int
	conflicts     int
}

func newMemFeedbackRepo() *memFeedbackRepo {
	return &memFeedbackRepo{store: make(map[string]*model.Feedback)}
}

func (m *memFeedbackRepo) Insert(ctx context.Context, tx repository.Tx, fb *model.Feedback) error {
	m.mu.Lock()
	defer m.mu.Unlock()
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
	return false, nil
}

func (m *memFeedbackRepo) ListPending(ctx context.Context, tx repository.Tx, limit, offset int) ([]*model.Feedback, error) {
	return nil, nil
}

func (m *memFeedbackRepo) CountByOwnerSince(ctx context.Context, tx repository.Tx, ownerID string, since time.Time) (int, error) {
	return m.dailyCount, nil
}

func (m *memFeedbackRepo) CountApprovedByOwner(ctx context.Context, tx repository.Tx, ownerID string) (int, error) {
	return m.approvedCount, nil
}

func (m *memFeedbackRepo) ConflictingScanCount(ctx context.Context, tx repository.Tx, ownerID string, since time.Time) (int, error) {
	return m.conflicts, nil
}

func (m *memFeedbackRepo) CountUntrained(ctx context.Context, tx repository.Tx) (int, error) {
	return 0, nil
}

func (m *memFeedbackRepo) ListUntrained(ctx context.Context, tx repository.Tx, since *time.Time) ([]*model.Feedback, error) {
	return nil, nil
}

func (m *memFeedbackRepo) MarkTrained(ctx context.Context, tx repository.Tx, ids []string, batch string) error {
	return nil
}

func (m *memFeedbackRepo) Stats(ctx context.Context, tx repository.Tx) (*model.FeedbackStats, error) {
	return &model.FeedbackStats{}, nil
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
		cp := *v
		out = append(out, &cp)
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

func (m *memVersionRepo) byStatus(status model.VersionStatus) []*model.ModelVersion {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.ModelVersion
	for _, v := range m.store {
		if v.Status == status {
			cp := *v
			out = append(out, &cp)
		}
	}
	return out
}

// recordingSink captures published events for assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []sinkEvent
}

type sinkEvent struct {
	Channel string
	Event   string
	Payload any
}

func (s *recordingSink) Publish(ctx context.Context, channel, event string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, sinkEvent{Channel: channel, Event: event, Payload: payload})
	return nil
}

func (s *recordingSink) byEvent(event string) []sinkEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sinkEvent
	for _, e := range s.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

// fakeLocker simulates the redis lease.
type fakeLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func newFakeLocker() *fakeLocker { return &fakeLocker{held: make(map[string]bool)} }

func (l *fakeLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return "", domain.ErrRetrainInProgress
	}
	l.held[key] = true
	return "token", nil
}

func (l *fakeLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}

// fakeExporter is a canned FeedbackExporter.
type fakeExporter struct {
	mu        sync.Mutex
	untrained int
	batch     *model.TrainingBatch
	exportErr error
	marked    []string
}

func (f *fakeExporter) CountUntrained(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.untrained, nil
}

func (f *fakeExporter) ExportBatch(ctx context.Context, since *time.Time) (*model.TrainingBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.exportErr != nil {
		return nil, f.exportErr
	}
	return f.batch, nil
}

func (f *fakeExporter) MarkTrained(ctx context.Context, ids []string, batch string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, ids...)
	return nil
}

// fakePromoter records promotions.
type fakePromoter struct {
	mu       sync.Mutex
	promoted []string
	err      error
}

func (f *fakePromoter) Promote(ctx context.Context, versionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.promoted = append(f.promoted, versionID)
	return nil
}
