package ocr

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestTracker(store PerformanceStore) *ModelPerformanceTracker {
	tracker := NewModelPerformanceTracker(store)
	tracker.now = func() time.Time { return fixedNow }
	return tracker
}

func TestTracker_RunningAverage(t *testing.T) {
	tracker := newTestTracker(nil)

	tracker.RecordSuccess("llava", 2*time.Second)
	rec, ok := tracker.Record("llava")
	require.True(t, ok)
	assert.Equal(t, 1, rec.SuccessCount)
	assert.InDelta(t, 2.0, rec.AvgResponseTime, 1e-9)
	assert.Equal(t, fixedNow, rec.LastUsed)

	tracker.RecordFailure("llava")
	rec, _ = tracker.Record("llava")
	assert.Equal(t, 1, rec.FailureCount)
	assert.InDelta(t, 2.0, rec.AvgResponseTime, 1e-9, "failures leave the average untouched")

	// n counts every attempt: (2*2 + 4) / 3
	tracker.RecordSuccess("llava", 4*time.Second)
	rec, _ = tracker.Record("llava")
	assert.Equal(t, 2, rec.SuccessCount)
	assert.Equal(t, 3, rec.Attempts())
	assert.InDelta(t, 8.0/3.0, rec.AvgResponseTime, 1e-9)
}

func TestRecordScore(t *testing.T) {
	tests := []struct {
		name     string
		record   ModelPerformanceRecord
		expected float64
	}{
		{name: "never attempted", record: ModelPerformanceRecord{}, expected: 0},
		{name: "fast and reliable", record: ModelPerformanceRecord{SuccessCount: 2, AvgResponseTime: 0.5}, expected: 60},
		{name: "half success", record: ModelPerformanceRecord{SuccessCount: 1, FailureCount: 1, AvgResponseTime: 1}, expected: 30},
		{name: "slow", record: ModelPerformanceRecord{SuccessCount: 1, AvgResponseTime: 120}, expected: 0.5},
		{name: "only failures", record: ModelPerformanceRecord{FailureCount: 3}, expected: 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.expected, tc.record.Score(), 1e-9)
		})
	}
}

func TestTracker_Rank(t *testing.T) {
	tracker := newTestTracker(nil)
	tracker.Apply([]AttemptOutcome{
		{Model: "a", Success: true, Duration: 2 * time.Second},
		{Model: "b", Success: true, Duration: time.Second},
		{Model: "b", Success: false},
		{Model: "d", Success: true, Duration: 500 * time.Millisecond},
		{Model: "d", Success: true, Duration: 500 * time.Millisecond},
	})

	// a and b both score 30 and keep their relative input order
	assert.Equal(t, []string{"d", "a", "b", "c"}, tracker.Rank([]string{"c", "a", "b", "d"}))
	assert.Equal(t, []string{"d", "b", "a", "c"}, tracker.Rank([]string{"c", "b", "a", "d"}))

	unknown := []string{"x", "y", "z"}
	assert.Equal(t, unknown, tracker.Rank(unknown))
}

func TestTracker_ConcurrentUpdates(t *testing.T) {
	tracker := newTestTracker(nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			tracker.RecordSuccess("llava", time.Second)
		}()
		go func() {
			defer wg.Done()
			tracker.Apply([]AttemptOutcome{{Model: "llava", Success: false}})
		}()
	}
	wg.Wait()

	rec, _ := tracker.Record("llava")
	assert.Equal(t, 50, rec.SuccessCount)
	assert.Equal(t, 50, rec.FailureCount)
}

func TestTracker_PersistsThroughStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model_performance.json")

	tracker := newTestTracker(NewJSONFileStore(path))
	tracker.RecordSuccess("minicpm-v:latest", 3*time.Second)
	tracker.RecordFailure("llava:7b")
	require.NoError(t, tracker.Save())

	reloaded := NewModelPerformanceTracker(NewJSONFileStore(path))
	snapshot := reloaded.Snapshot()
	require.Len(t, snapshot, 2)
	assert.Equal(t, 1, snapshot["minicpm-v:latest"].SuccessCount)
	assert.InDelta(t, 3.0, snapshot["minicpm-v:latest"].AvgResponseTime, 1e-9)
	assert.Equal(t, 1, snapshot["llava:7b"].FailureCount)
	assert.True(t, fixedNow.Equal(snapshot["llava:7b"].LastUsed))
}

type failingStore struct{}

func (failingStore) Load() (map[string]ModelPerformanceRecord, error) {
	return nil, errors.New("corrupt")
}

func (failingStore) Save(map[string]ModelPerformanceRecord) error {
	return errors.New("read-only")
}

func TestTracker_StoreFailures(t *testing.T) {
	tracker := NewModelPerformanceTracker(failingStore{})
	assert.Empty(t, tracker.Snapshot())
	assert.Error(t, tracker.Save())

	assert.NoError(t, NewModelPerformanceTracker(nil).Save())
}
