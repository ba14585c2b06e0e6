package metrics

import (
	"sync"
	"time"
)

type Metrics struct {
	mu sync.RWMutex

	// News provider
	NewsFetches     int64
	FetchFailures   int64
	BudgetExhausted int64

	// Selection and publishing
	CyclesRun         int64
	CyclesSkipped     int64
	DuplicatesSkipped int64
	ArticlesSkipped   int64
	PostsPublished    int64
	PublishFailures   int64
	PartialPublishes  int64

	// Follow-up pass
	FollowUpsRun     int64
	FollowsSent      int64
	FollowFailures   int64
	EngagementErrors int64

	// Timings
	LastCycleTime    time.Duration
	AverageCycleTime time.Duration
	TotalCycleTime   time.Duration

	// Status
	LastRunTime   time.Time
	LastPostTime  time.Time
	LastErrorTime time.Time
	LastError     string
	IsHealthy     bool
}

var Global = New()

func New() *Metrics {
	return &Metrics{IsHealthy: true}
}

func (m *Metrics) add(field *int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	*field++
}

func (m *Metrics) IncrementNewsFetches()       { m.add(&m.NewsFetches) }
func (m *Metrics) IncrementFetchFailures()     { m.add(&m.FetchFailures) }
func (m *Metrics) IncrementBudgetExhausted()   { m.add(&m.BudgetExhausted) }
func (m *Metrics) IncrementCyclesSkipped()     { m.add(&m.CyclesSkipped) }
func (m *Metrics) IncrementDuplicatesSkipped() { m.add(&m.DuplicatesSkipped) }
func (m *Metrics) IncrementArticlesSkipped()   { m.add(&m.ArticlesSkipped) }
func (m *Metrics) IncrementPublishFailures()   { m.add(&m.PublishFailures) }
func (m *Metrics) IncrementPartialPublishes()  { m.add(&m.PartialPublishes) }
func (m *Metrics) IncrementFollowUpsRun()      { m.add(&m.FollowUpsRun) }
func (m *Metrics) IncrementFollowsSent()       { m.add(&m.FollowsSent) }
func (m *Metrics) IncrementFollowFailures()    { m.add(&m.FollowFailures) }
func (m *Metrics) IncrementEngagementErrors()  { m.add(&m.EngagementErrors) }

func (m *Metrics) RecordPost() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PostsPublished++
	m.LastPostTime = time.Now()
}

// RecordCycle records the duration of one selection cycle and marks the
// bot healthy again.
func (m *Metrics) RecordCycle(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CyclesRun++
	m.LastCycleTime = duration
	m.TotalCycleTime += duration
	m.AverageCycleTime = m.TotalCycleTime / time.Duration(m.CyclesRun)
	m.LastRunTime = time.Now()
	m.IsHealthy = true
}

func (m *Metrics) SetError(err string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastError = err
	m.LastErrorTime = time.Now()
	m.IsHealthy = false
}

func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"news_fetches":          m.NewsFetches,
		"fetch_failures":        m.FetchFailures,
		"budget_exhausted":      m.BudgetExhausted,
		"cycles_run":            m.CyclesRun,
		"cycles_skipped":        m.CyclesSkipped,
		"duplicates_skipped":    m.DuplicatesSkipped,
		"articles_skipped":      m.ArticlesSkipped,
		"posts_published":       m.PostsPublished,
		"publish_failures":      m.PublishFailures,
		"partial_publishes":     m.PartialPublishes,
		"follow_ups_run":        m.FollowUpsRun,
		"follows_sent":          m.FollowsSent,
		"follow_failures":       m.FollowFailures,
		"engagement_errors":     m.EngagementErrors,
		"last_cycle_time_ms":    m.LastCycleTime.Milliseconds(),
		"average_cycle_time_ms": m.AverageCycleTime.Milliseconds(),
		"last_run_time":         m.LastRunTime.Format(time.RFC3339),
		"last_post_time":        m.LastPostTime.Format(time.RFC3339),
		"last_error_time":       m.LastErrorTime.Format(time.RFC3339),
		"last_error":            m.LastError,
		"is_healthy":            m.IsHealthy,
	}
}
