package ocr

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ModelPerformanceRecord is the history of one vision model.
type ModelPerformanceRecord struct {
	SuccessCount    int       `json:"success_count"`
	FailureCount    int       `json:"failure_count"`
	AvgResponseTime float64   `json:"avg_response_time"`
	LastUsed        time.Time `json:"last_used"`
}

// Attempts is the total number of recorded attempts.
func (r ModelPerformanceRecord) Attempts() int {
	return r.SuccessCount + r.FailureCount
}

// Score favors models that are both reliable and fast. Unattempted models score 0.
func (r ModelPerformanceRecord) Score() float64 {
	attempts := r.Attempts()
	if attempts == 0 {
		return 0
	}
	successRate := float64(r.SuccessCount) / float64(attempts)
	avg := r.AvgResponseTime
	if avg == 0 {
		avg = 60
	}
	return successRate * (60 / max(avg, 1))
}

// PerformanceStore persists tracker records between runs.
type PerformanceStore interface {
	Load() (map[string]ModelPerformanceRecord, error)
	Save(records map[string]ModelPerformanceRecord) error
}

// ModelPerformanceTracker keeps per-model statistics and ranks models by them.
// All access goes through a single lock.
type ModelPerformanceTracker struct {
	mu      sync.Mutex
	records map[string]ModelPerformanceRecord
	store   PerformanceStore
	now     func() time.Time
}

// NewModelPerformanceTracker creates a tracker seeded from store. A nil store
// keeps the records in memory only; a store that fails to load starts empty.
func NewModelPerformanceTracker(store PerformanceStore) *ModelPerformanceTracker {
	t := &ModelPerformanceTracker{
		records: make(map[string]ModelPerformanceRecord),
		store:   store,
		now:     time.Now,
	}
	if store == nil {
		return t
	}
	records, err := store.Load()
	if err != nil {
		log.WithError(err).Warn("Could not load model performance history, starting empty")
		return t
	}
	for model, rec := range records {
		t.records[model] = rec
	}
	log.WithField("models", len(t.records)).Debug("Loaded model performance history")
	return t
}

// RecordSuccess counts a successful attempt and folds d into the running average.
func (t *ModelPerformanceTracker) RecordSuccess(model string, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recordSuccessLocked(model, d)
}

// RecordFailure counts a failed attempt. Failures do not affect the average latency.
func (t *ModelPerformanceTracker) RecordFailure(model string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recordFailureLocked(model)
}

// Apply records a batch of attempt outcomes under one lock acquisition.
func (t *ModelPerformanceTracker) Apply(outcomes []AttemptOutcome) {
	if len(outcomes) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, o := range outcomes {
		if o.Success {
			t.recordSuccessLocked(o.Model, o.Duration)
		} else {
			t.recordFailureLocked(o.Model)
		}
	}
}

func (t *ModelPerformanceTracker) recordSuccessLocked(model string, d time.Duration) {
	rec := t.records[model]
	rec.SuccessCount++
	n := float64(rec.Attempts())
	rec.AvgResponseTime = (rec.AvgResponseTime*(n-1) + d.Seconds()) / n
	rec.LastUsed = t.now()
	t.records[model] = rec
}

func (t *ModelPerformanceTracker) recordFailureLocked(model string) {
	rec := t.records[model]
	rec.FailureCount++
	rec.LastUsed = t.now()
	t.records[model] = rec
}

// Rank returns models ordered by descending score. Equal scores keep their input order.
func (t *ModelPerformanceTracker) Rank(models []string) []string {
	t.mu.Lock()
	scores := make(map[string]float64, len(models))
	for _, m := range models {
		scores[m] = t.records[m].Score()
	}
	t.mu.Unlock()

	ranked := append([]string(nil), models...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return scores[ranked[i]] > scores[ranked[j]]
	})
	return ranked
}

// Record returns the record for model.
func (t *ModelPerformanceTracker) Record(model string) (ModelPerformanceRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[model]
	return rec, ok
}

// Snapshot returns a copy of all records.
func (t *ModelPerformanceTracker) Snapshot() map[string]ModelPerformanceRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]ModelPerformanceRecord, len(t.records))
	for m, r := range t.records {
		out[m] = r
	}
	return out
}

// Save writes the current records to the store.
func (t *ModelPerformanceTracker) Save() error {
	if t.store == nil {
		return nil
	}
	snapshot := t.Snapshot()
	if err := t.store.Save(snapshot); err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"models": len(snapshot)}).Debug("Saved model performance history")
	return nil
}
