package cache

import (
	"errors"
	"sync/atomic"
	"time"
)

// LevelStats is a point-in-time view of one cache level's counters.
type LevelStats struct {
	Hits    int64     `json:"hits"`
	Misses  int64     `json:"misses"`
	Errors  int64     `json:"errors"`
	Sets    int64     `json:"sets"`
	Deletes int64     `json:"deletes"`
	HitRate float64   `json:"hit_rate"`
	Since   time.Time `json:"since"`
}

// levelCounters counts reads and writes against a single cache level.
type levelCounters struct {
	hits    atomic.Int64
	misses  atomic.Int64
	errors  atomic.Int64
	sets    atomic.Int64
	deletes atomic.Int64
	since   time.Time
}

func newLevelCounters(since time.Time) *levelCounters {
	return &levelCounters{since: since}
}

// read records the outcome of a lookup: nil is a hit, ErrCacheMiss a miss,
// anything else an error.
func (m *levelCounters) read(err error) {
	switch {
	case err == nil:
		m.hits.Add(1)
	case errors.Is(err, ErrCacheMiss):
		m.misses.Add(1)
	default:
		m.errors.Add(1)
	}
}

func (m *levelCounters) snapshot() LevelStats {
	s := LevelStats{
		Hits:    m.hits.Load(),
		Misses:  m.misses.Load(),
		Errors:  m.errors.Load(),
		Sets:    m.sets.Load(),
		Deletes: m.deletes.Load(),
		Since:   m.since,
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total) * 100
	}
	return s
}
