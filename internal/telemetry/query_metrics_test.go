package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatencyToBucket(t *testing.T) {
	assert.Equal(t, LatencyUnder10ms, LatencyToBucket(5*time.Millisecond))
	assert.Equal(t, LatencyUnder50ms, LatencyToBucket(10*time.Millisecond))
	assert.Equal(t, LatencyUnder100ms, LatencyToBucket(75*time.Millisecond))
	assert.Equal(t, LatencyUnder500ms, LatencyToBucket(200*time.Millisecond))
	assert.Equal(t, LatencyOver500ms, LatencyToBucket(2*time.Second))
}

func TestExtractTerms(t *testing.T) {
	assert.Equal(t, []string{"whole", "milk"}, ExtractTerms("Whole Milk 1%"))
	assert.Equal(t, []string{"greek", "yogurt"}, ExtractTerms("greek-yogurt"))
	assert.Empty(t, ExtractTerms("a of 2"))
	assert.Empty(t, ExtractTerms(""))
}

func TestCircularBuffer_Overwrites(t *testing.T) {
	buf := NewCircularBuffer[string](3)
	buf.Add("a")
	buf.Add("b")
	buf.Add("c")
	buf.Add("d")

	assert.Equal(t, 3, buf.Len())
	assert.Equal(t, []string{"b", "c", "d"}, buf.Items())
}

func TestQueryMetrics_RecordAndSnapshot(t *testing.T) {
	m := NewQueryMetrics(nil, QueryMetricsConfig{})
	defer m.Close()

	m.Record(QueryEvent{
		Query:       "whole milk",
		QueryType:   QueryTypeMixed,
		ResultCount: 12,
		Latency:     20 * time.Millisecond,
		Timestamp:   time.Now(),
	})
	m.Record(QueryEvent{
		Query:       "milk",
		QueryType:   QueryTypeLexical,
		ResultCount: 0,
		Latency:     3 * time.Millisecond,
		Timestamp:   time.Now(),
	})

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.TotalQueries)
	assert.Equal(t, int64(1), snap.QueryTypeCounts[QueryTypeMixed])
	assert.Equal(t, int64(1), snap.QueryTypeCounts[QueryTypeLexical])
	assert.Equal(t, int64(1), snap.ZeroResultCount)
	assert.Equal(t, []string{"milk"}, snap.ZeroResultQueries)
	assert.Equal(t, int64(1), snap.LatencyDistribution[LatencyUnder50ms])
	assert.Equal(t, int64(1), snap.LatencyDistribution[LatencyUnder10ms])
}

func TestQueryMetrics_TopTermsSortedByCount(t *testing.T) {
	m := NewQueryMetrics(nil, QueryMetricsConfig{})
	defer m.Close()

	for i := 0; i < 3; i++ {
		m.Record(QueryEvent{Query: "oat milk", QueryType: QueryTypeLexical, ResultCount: 1})
	}
	m.Record(QueryEvent{Query: "sourdough bread", QueryType: QueryTypeLexical, ResultCount: 1})

	snap := m.Snapshot()
	require.NotEmpty(t, snap.TopTerms)
	assert.Equal(t, "milk", snap.TopTerms[0].Term)
	assert.Equal(t, int64(3), snap.TopTerms[0].Count)
}

func TestQueryMetrics_RepeatDetectionNormalizesQuery(t *testing.T) {
	m := NewQueryMetrics(nil, QueryMetricsConfig{})
	defer m.Close()

	m.Record(QueryEvent{Query: "Greek Yogurt", QueryType: QueryTypeMixed, ResultCount: 4})
	m.Record(QueryEvent{Query: "  greek yogurt ", QueryType: QueryTypeMixed, ResultCount: 4})
	m.Record(QueryEvent{Query: "bananas", QueryType: QueryTypeMixed, ResultCount: 4})

	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.RepeatQueryCount)
	assert.InDelta(t, 1.0/3.0, snap.RepeatQueryRate, 1e-9)
}

func TestQueryMetrics_RecordAfterCloseIgnored(t *testing.T) {
	m := NewQueryMetrics(nil, QueryMetricsConfig{})
	require.NoError(t, m.Close())

	m.Record(QueryEvent{Query: "apples", QueryType: QueryTypeLexical, ResultCount: 1})

	assert.Equal(t, int64(0), m.Snapshot().TotalQueries)
}

func TestQueryMetrics_CloseIsIdempotent(t *testing.T) {
	m := NewQueryMetrics(nil, QueryMetricsConfig{})
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
}

func TestQueryMetrics_FlushPersistsToStore(t *testing.T) {
	store, err := OpenSQLiteMetricsStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	m := NewQueryMetrics(store, QueryMetricsConfig{})
	m.Record(QueryEvent{
		Query:       "almond butter",
		QueryType:   QueryTypeSemantic,
		ResultCount: 7,
		Latency:     60 * time.Millisecond,
	})
	require.NoError(t, m.Flush())

	today := time.Now().Format("2006-01-02")
	counts, err := store.GetQueryTypeCounts(today, today)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[QueryTypeSemantic])

	terms, err := store.GetTopTerms(10)
	require.NoError(t, err)
	got := make([]string, 0, len(terms))
	for _, tc := range terms {
		got = append(got, tc.Term)
	}
	assert.ElementsMatch(t, []string{"almond", "butter"}, got)

	latencies, err := store.GetLatencyCounts(today, today)
	require.NoError(t, err)
	assert.Equal(t, int64(1), latencies[LatencyUnder100ms])
}
