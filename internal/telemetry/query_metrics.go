// Package telemetry aggregates search usage metrics in memory and
// periodically flushes them to a SQLite-backed store.
package telemetry

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	lru "github.com/hashicorp/golang-lru/v2"
)

// QueryType classifies how a search was answered.
type QueryType string

const (
	// QueryTypeLexical means only the keyword index contributed results.
	QueryTypeLexical QueryType = "lexical"
	// QueryTypeSemantic means results came from embedding similarity alone.
	QueryTypeSemantic QueryType = "semantic"
	// QueryTypeMixed means lexical candidates were reranked semantically.
	QueryTypeMixed QueryType = "mixed"
)

// LatencyBucket is a histogram bucket for end-to-end query latency.
type LatencyBucket string

const (
	LatencyUnder10ms  LatencyBucket = "<10ms"
	LatencyUnder50ms  LatencyBucket = "10-50ms"
	LatencyUnder100ms LatencyBucket = "50-100ms"
	LatencyUnder500ms LatencyBucket = "100-500ms"
	LatencyOver500ms  LatencyBucket = ">500ms"
)

// LatencyToBucket maps a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	switch {
	case d < 10*time.Millisecond:
		return LatencyUnder10ms
	case d < 50*time.Millisecond:
		return LatencyUnder50ms
	case d < 100*time.Millisecond:
		return LatencyUnder100ms
	case d < 500*time.Millisecond:
		return LatencyUnder500ms
	default:
		return LatencyOver500ms
	}
}

// QueryEvent describes one completed search for metric recording.
type QueryEvent struct {
	Query       string
	QueryType   QueryType
	ResultCount int
	Latency     time.Duration
	Timestamp   time.Time
}

// IsZeroResult reports whether the search returned nothing.
func (e QueryEvent) IsZeroResult() bool {
	return e.ResultCount == 0
}

// TermCount pairs a query term with its observed frequency.
type TermCount struct {
	Term  string
	Count int64
}

// minTermLength filters out articles and unit fragments ("a", "of", "oz").
const minTermLength = 3

// ExtractTerms splits a query into lowercase alphanumeric terms,
// dropping anything shorter than minTermLength.
func ExtractTerms(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) >= minTermLength {
			terms = append(terms, f)
		}
	}
	return terms
}

// CircularBuffer is a fixed-capacity FIFO that overwrites its oldest
// entry when full.
type CircularBuffer[T any] struct {
	items []T
	head  int
	size  int
}

// NewCircularBuffer creates a buffer holding at most capacity items.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &CircularBuffer[T]{items: make([]T, capacity)}
}

// Add appends an item, evicting the oldest when at capacity.
func (b *CircularBuffer[T]) Add(item T) {
	b.items[(b.head+b.size)%len(b.items)] = item
	if b.size < len(b.items) {
		b.size++
	} else {
		b.head = (b.head + 1) % len(b.items)
	}
}

// Items returns the buffered items oldest-first.
func (b *CircularBuffer[T]) Items() []T {
	out := make([]T, 0, b.size)
	for i := 0; i < b.size; i++ {
		out = append(out, b.items[(b.head+i)%len(b.items)])
	}
	return out
}

// Len returns the number of buffered items.
func (b *CircularBuffer[T]) Len() int {
	return b.size
}

// QueryMetricsStore persists aggregated metrics.
type QueryMetricsStore interface {
	SaveQueryTypeCounts(date string, counts map[QueryType]int64) error
	GetQueryTypeCounts(from, to string) (map[QueryType]int64, error)
	UpsertTermCounts(terms map[string]int64) error
	GetTopTerms(limit int) ([]TermCount, error)
	AddZeroResultQuery(query string, timestamp time.Time) error
	GetZeroResultQueries(limit int) ([]string, error)
	SaveLatencyCounts(date string, counts map[LatencyBucket]int64) error
	GetLatencyCounts(from, to string) (map[LatencyBucket]int64, error)
	Close() error
}

// QueryMetricsSnapshot is a point-in-time copy of the in-memory metrics.
type QueryMetricsSnapshot struct {
	QueryTypeCounts     map[QueryType]int64
	TopTerms            []TermCount
	ZeroResultQueries   []string
	LatencyDistribution map[LatencyBucket]int64
	TotalQueries        int64
	ZeroResultCount     int64
	RepeatQueryCount    int64
	RepeatQueryRate     float64
	Since               time.Time
}

// QueryMetricsConfig tunes in-memory capacities and flush cadence.
type QueryMetricsConfig struct {
	TopTermsCapacity      int
	ZeroResultsCapacity   int
	RecentQueriesCapacity int
	FlushInterval         time.Duration
}

// QueryMetrics aggregates search telemetry. All methods are safe for
// concurrent use; Record never blocks on storage.
type QueryMetrics struct {
	mu sync.RWMutex

	queryTypes      map[QueryType]int64
	topTerms        *lru.Cache[string, int64]
	zeroResults     *CircularBuffer[string]
	latencies       map[LatencyBucket]int64
	recentQueries   *lru.Cache[string, struct{}]
	totalQueries    int64
	zeroResultCount int64
	repeatCount     int64
	startTime       time.Time
	closed          bool

	store       QueryMetricsStore
	flushTicker *time.Ticker
	stopCh      chan struct{}
}

// NewQueryMetrics creates a metrics aggregator. The store may be nil,
// in which case metrics stay in memory only.
func NewQueryMetrics(store QueryMetricsStore, cfg QueryMetricsConfig) *QueryMetrics {
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = 100
	}
	if cfg.ZeroResultsCapacity <= 0 {
		cfg.ZeroResultsCapacity = 100
	}
	if cfg.RecentQueriesCapacity <= 0 {
		cfg.RecentQueriesCapacity = 500
	}

	topTerms, _ := lru.New[string, int64](cfg.TopTermsCapacity)
	recentQueries, _ := lru.New[string, struct{}](cfg.RecentQueriesCapacity)

	m := &QueryMetrics{
		queryTypes:    make(map[QueryType]int64),
		topTerms:      topTerms,
		zeroResults:   NewCircularBuffer[string](cfg.ZeroResultsCapacity),
		latencies:     make(map[LatencyBucket]int64),
		recentQueries: recentQueries,
		startTime:     time.Now(),
		store:         store,
		stopCh:        make(chan struct{}),
	}

	if cfg.FlushInterval > 0 && store != nil {
		m.flushTicker = time.NewTicker(cfg.FlushInterval)
		go m.flushLoop()
	}

	return m
}

func (m *QueryMetrics) flushLoop() {
	for {
		select {
		case <-m.flushTicker.C:
			_ = m.Flush()
		case <-m.stopCh:
			return
		}
	}
}

// Record captures one completed search.
func (m *QueryMetrics) Record(event QueryEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	m.queryTypes[event.QueryType]++
	m.totalQueries++

	for _, term := range ExtractTerms(event.Query) {
		count, _ := m.topTerms.Get(term)
		m.topTerms.Add(term, count+1)
	}

	if event.IsZeroResult() {
		m.zeroResults.Add(event.Query)
		m.zeroResultCount++
	}

	m.latencies[LatencyToBucket(event.Latency)]++

	// Repeated queries are a direct signal of embedding-cache value.
	key := queryKey(event.Query)
	if _, seen := m.recentQueries.Get(key); seen {
		m.repeatCount++
	}
	m.recentQueries.Add(key, struct{}{})
}

func queryKey(query string) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:16])
}

// Snapshot returns a copy of the current metrics.
func (m *QueryMetrics) Snapshot() *QueryMetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	typeCounts := make(map[QueryType]int64, len(m.queryTypes))
	for k, v := range m.queryTypes {
		typeCounts[k] = v
	}

	var topTerms []TermCount
	for _, key := range m.topTerms.Keys() {
		if count, ok := m.topTerms.Peek(key); ok {
			topTerms = append(topTerms, TermCount{Term: key, Count: count})
		}
	}
	sort.Slice(topTerms, func(i, j int) bool {
		if topTerms[i].Count != topTerms[j].Count {
			return topTerms[i].Count > topTerms[j].Count
		}
		return topTerms[i].Term < topTerms[j].Term
	})

	latencies := make(map[LatencyBucket]int64, len(m.latencies))
	for k, v := range m.latencies {
		latencies[k] = v
	}

	var repeatRate float64
	if m.totalQueries > 0 {
		repeatRate = float64(m.repeatCount) / float64(m.totalQueries)
	}

	return &QueryMetricsSnapshot{
		QueryTypeCounts:     typeCounts,
		TopTerms:            topTerms,
		ZeroResultQueries:   m.zeroResults.Items(),
		LatencyDistribution: latencies,
		TotalQueries:        m.totalQueries,
		ZeroResultCount:     m.zeroResultCount,
		RepeatQueryCount:    m.repeatCount,
		RepeatQueryRate:     repeatRate,
		Since:               m.startTime,
	}
}

// Flush persists the current snapshot. No-op without a store.
func (m *QueryMetrics) Flush() error {
	if m.store == nil {
		return nil
	}

	snapshot := m.Snapshot()
	today := time.Now().Format("2006-01-02")

	if err := m.store.SaveQueryTypeCounts(today, snapshot.QueryTypeCounts); err != nil {
		return err
	}

	termCounts := make(map[string]int64, len(snapshot.TopTerms))
	for _, tc := range snapshot.TopTerms {
		termCounts[tc.Term] = tc.Count
	}
	if err := m.store.UpsertTermCounts(termCounts); err != nil {
		return err
	}

	return m.store.SaveLatencyCounts(today, snapshot.LatencyDistribution)
}

// Close stops the flush loop, performs a final flush, and marks the
// aggregator closed. Subsequent Record calls are ignored.
func (m *QueryMetrics) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	if m.flushTicker != nil {
		m.flushTicker.Stop()
		close(m.stopCh)
	}

	return m.Flush()
}
