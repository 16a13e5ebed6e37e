package feedback

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSink(t *testing.T) *SQLiteSink {
	t.Helper()
	sink, err := NewSQLiteSink(filepath.Join(t.TempDir(), "feedback.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sink.Close() })
	return sink
}

func TestSQLiteSink_RecordAndRecent(t *testing.T) {
	sink := newTestSink(t)

	sink.Record("fb-1", Feedback{
		Query:      "what is 2+2",
		Path:       "simple",
		Confidence: 0.9,
		CreatedAt:  time.Now(),
	})

	// Record is fire-and-forget, so wait for the row to land.
	require.Eventually(t, func() bool {
		rows, err := sink.Recent(time.Now().Add(-time.Hour), 10)
		return err == nil && len(rows) == 1
	}, 2*time.Second, 10*time.Millisecond)

	rows, err := sink.Recent(time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "what is 2+2", rows[0].Query)
	assert.Equal(t, "simple", rows[0].Path)
	assert.InDelta(t, 0.9, rows[0].Confidence, 1e-9)
}

func TestSQLiteSink_RecentHonorsCutoffAndLimit(t *testing.T) {
	sink := newTestSink(t)

	old := time.Now().Add(-48 * time.Hour)
	sink.Record("fb-old", Feedback{Query: "old", Path: "simple", Confidence: 0.5, CreatedAt: old})
	sink.Record("fb-new-1", Feedback{Query: "new1", Path: "simple", Confidence: 0.5, CreatedAt: time.Now()})
	sink.Record("fb-new-2", Feedback{Query: "new2", Path: "simple", Confidence: 0.5, CreatedAt: time.Now()})

	require.Eventually(t, func() bool {
		rows, err := sink.Recent(time.Time{}, 10)
		return err == nil && len(rows) == 3
	}, 2*time.Second, 10*time.Millisecond)

	recent, err := sink.Recent(time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Len(t, recent, 2, "cutoff excludes the old row")

	limited, err := sink.Recent(time.Time{}, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSQLiteSink_RecordIsIdempotentPerID(t *testing.T) {
	sink := newTestSink(t)

	sink.Record("fb-1", Feedback{Query: "q", Path: "simple", Confidence: 0.3, CreatedAt: time.Now()})
	sink.Record("fb-1", Feedback{Query: "q", Path: "simple", Confidence: 0.7, CreatedAt: time.Now()})

	require.Eventually(t, func() bool {
		rows, err := sink.Recent(time.Time{}, 10)
		return err == nil && len(rows) == 1
	}, 2*time.Second, 10*time.Millisecond)
}
