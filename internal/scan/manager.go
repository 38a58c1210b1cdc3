package scan

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Manager retains finished scan reports for retrieval over the API.
// Reports expire after a TTL and the retained set is bounded; above the
// bound the oldest reports are evicted first.
type Manager struct {
	reports    map[string]*Report
	mu         sync.RWMutex
	logger     *slog.Logger
	ttl        time.Duration
	maxReports int

	// Cleanup management
	ctx     context.Context
	cancel  context.CancelFunc
	cleanup chan struct{}
}

// NewManager creates a report manager and starts its cleanup routine
func NewManager(logger *slog.Logger, ttl time.Duration, maxReports int) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	mgr := &Manager{
		reports:    make(map[string]*Report),
		logger:     logger,
		ttl:        ttl,
		maxReports: maxReports,
		ctx:        ctx,
		cancel:     cancel,
		cleanup:    make(chan struct{}),
	}

	go mgr.startCleanupRoutine()

	return mgr
}

// Add stores a finished report, evicting the oldest reports beyond the
// retention bound
func (m *Manager) Add(report *Report) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reports[report.ID] = report

	for m.maxReports > 0 && len(m.reports) > m.maxReports {
		m.evictOldestLocked()
	}

	m.logger.Info("Scan report stored",
		slog.String("report_id", report.ID),
		slog.Int("total_chunks", report.TotalChunks),
		slog.Int("crc_mismatches", report.CRCMismatches),
		slog.Bool("complete", report.Complete),
		slog.Duration("duration", report.Duration),
	)
}

// Get retrieves a report by id
func (m *Manager) Get(id string) (*Report, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	report, exists := m.reports[id]
	return report, exists
}

// List returns all retained reports, newest first
func (m *Manager) List() []*Report {
	m.mu.RLock()
	defer m.mu.RUnlock()

	reports := make([]*Report, 0, len(m.reports))
	for _, report := range m.reports {
		reports = append(reports, report)
	}

	sort.Slice(reports, func(i, j int) bool {
		return reports[i].CreatedAt.After(reports[j].CreatedAt)
	})

	return reports
}

// Count returns the number of retained reports
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.reports)
}

// Stop gracefully stops the manager's cleanup routine
func (m *Manager) Stop() {
	m.logger.Info("Stopping report manager...")

	// Cancel context to stop cleanup routine
	m.cancel()

	// Wait for cleanup routine to finish
	<-m.cleanup

	m.logger.Info("Report manager stopped",
		slog.Int("retained_reports", m.Count()),
	)
}

// evictOldestLocked removes the oldest report; callers hold the write lock
func (m *Manager) evictOldestLocked() {
	var oldestID string
	var oldestAt time.Time

	for id, report := range m.reports {
		if oldestID == "" || report.CreatedAt.Before(oldestAt) {
			oldestID = id
			oldestAt = report.CreatedAt
		}
	}

	if oldestID != "" {
		delete(m.reports, oldestID)
		m.logger.Debug("Evicted oldest scan report",
			slog.String("report_id", oldestID),
		)
	}
}

// startCleanupRoutine runs in a separate goroutine to expire old reports
func (m *Manager) startCleanupRoutine() {
	defer close(m.cleanup)

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	m.logger.Info("Report cleanup routine started",
		slog.Duration("ttl", m.ttl),
		slog.Duration("check_interval", 30*time.Second),
	)

	for {
		select {
		case <-m.ctx.Done():
			m.logger.Info("Report cleanup routine stopping")
			return

		case <-ticker.C:
			m.cleanupExpiredReports()
		}
	}
}

// cleanupExpiredReports removes reports older than the TTL
func (m *Manager) cleanupExpiredReports() {
	now := time.Now()
	expired := make([]string, 0)

	m.mu.RLock()
	for id, report := range m.reports {
		if now.Sub(report.CreatedAt) > m.ttl {
			expired = append(expired, id)
		}
	}
	m.mu.RUnlock()

	if len(expired) == 0 {
		return
	}

	m.mu.Lock()
	for _, id := range expired {
		delete(m.reports, id)
	}
	m.mu.Unlock()

	m.logger.Info("Cleaned up expired scan reports",
		slog.Int("expired_count", len(expired)),
	)
}
