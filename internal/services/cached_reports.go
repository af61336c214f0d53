package services

import (
	"strconv"
	"sync/atomic"
	"time"

	"delivery-tracker/backend/internal/cache"

	"github.com/gofrs/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	overviewCacheKey  = "dashboard:overview"
	effortCachePrefix = "report:effort"
)

// CachedReportService serves the dashboard overview and effort reports from
// the multi-level cache. Register Invalidate with every mutating service so
// committed changes drop the cached reads.
//
// Keys carry a generation. When an invalidation cannot reach redis the
// generation moves on, so entries written before the change are never read
// again and expire on their TTL.
type CachedReportService struct {
	dashboard DashboardService
	reports   ReportService
	cache     cache.Cache
	gen       atomic.Uint64

	Log *zap.Logger

	OverviewTTL time.Duration
	ReportTTL   time.Duration
}

var (
	_ DashboardService = (*CachedReportService)(nil)
	_ ReportService    = (*CachedReportService)(nil)
)

func NewCachedReportService(dashboard DashboardService, reports ReportService, c cache.Cache) *CachedReportService {
	return &CachedReportService{
		dashboard:   dashboard,
		reports:     reports,
		cache:       c,
		Log:         zap.NewNop(),
		OverviewTTL: time.Minute,
		ReportTTL:   10 * time.Minute,
	}
}

// Overview is keyed by date because urgency depends on it.
func (s *CachedReportService) Overview(db *gorm.DB, now time.Time) (*Overview, error) {
	key := s.key(overviewCacheKey, now.Format(DateLayout))

	var cached Overview
	if err := s.cache.Get(key, &cached); err == nil {
		return &cached, nil
	}

	overview, err := s.dashboard.Overview(db, now)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, overview, s.OverviewTTL)
	return overview, nil
}

func (s *CachedReportService) EffortReport(db *gorm.DB, projectID *uuid.UUID) (*EffortReport, error) {
	key := s.key(effortCachePrefix, "all")
	if projectID != nil && *projectID != uuid.Nil {
		key = s.key(effortCachePrefix, projectID.String())
	}

	var cached EffortReport
	if err := s.cache.Get(key, &cached); err == nil {
		return &cached, nil
	}

	report, err := s.reports.EffortReport(db, projectID)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, report, s.ReportTTL)
	return report, nil
}

// Invalidate is a ChangeListener. Every change can move the dashboard, and
// the effort report lists project and member names, so all cached reads go.
func (s *CachedReportService) Invalidate(change Change) {
	for _, prefix := range []string{overviewCacheKey, effortCachePrefix} {
		if err := s.cache.DeletePattern(prefix + ":*"); err != nil {
			gen := s.gen.Add(1)
			s.Log.Warn("cache invalidation failed",
				zap.String("entity", string(change.Entity)),
				zap.String("pattern", prefix+":*"),
				zap.Uint64("generation", gen),
				zap.Error(err))
		}
	}
}

func (s *CachedReportService) key(prefix, suffix string) string {
	return prefix + ":g" + strconv.FormatUint(s.gen.Load(), 10) + ":" + suffix
}

func (s *CachedReportService) CacheStats() map[string]interface{} {
	return s.cache.Stats()
}
