package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/liamwears/reelstream/internal/models"
	"github.com/liamwears/reelstream/internal/store"
	"github.com/rs/zerolog"
)

const (
	defaultStatsWindow = 7
	maxStatsWindow     = 365
)

// Cache stores serialized results for a short time
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// StatsService aggregates a profile's viewing activity over a trailing window of days
type StatsService struct {
	history  store.HistoryStore
	content  store.ContentStore
	cache    Cache
	cacheTTL time.Duration
	logger   zerolog.Logger
	tz       *time.Location
	now      func() time.Time
}

// NewStatsService creates a new StatsService; cache may be nil and a zero ttl disables it
func NewStatsService(history store.HistoryStore, content store.ContentStore, cache Cache, cacheTTL time.Duration, tz *time.Location, logger zerolog.Logger) *StatsService {
	if tz == nil {
		tz = time.UTC
	}
	return &StatsService{
		history:  history,
		content:  content,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   logger,
		tz:       tz,
		now:      time.Now,
	}
}

func normalizeWindow(days int) (int, error) {
	if days == 0 {
		return defaultStatsWindow, nil
	}
	if days < 0 || days > maxStatsWindow {
		return 0, ErrBadRequest(fmt.Sprintf("days must be between 1 and %d", maxStatsWindow))
	}
	return days, nil
}

// windowStart is the start of the day (window-1) days before today, in the service timezone
func (s *StatsService) windowStart(window int) time.Time {
	y, m, d := s.now().In(s.tz).Date()
	return time.Date(y, m, d-(window-1), 0, 0, 0, 0, s.tz)
}

func (s *StatsService) cached(ctx context.Context, key string, out interface{}, compute func() (interface{}, error)) error {
	if s.cache != nil && s.cacheTTL > 0 {
		raw, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("stats cache read failed")
		} else if ok && json.Unmarshal(raw, out) == nil {
			return nil
		}
	}

	value, err := compute()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return wrapError(err, "failed to encode stats")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return wrapError(err, "failed to decode stats")
	}

	if s.cache != nil && s.cacheTTL > 0 {
		if err := s.cache.Set(ctx, key, raw, s.cacheTTL); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("stats cache write failed")
		}
	}
	return nil
}

// GenreCounts counts genres over history rows touched inside the window.
// Each (row, genre) counts once; results are sorted by count descending with ties
// kept in encounter order, which follows lastWatchedAt descending.
func (s *StatsService) GenreCounts(ctx context.Context, userID, profileID uuid.UUID, days int) ([]models.GenreCount, error) {
	window, err := normalizeWindow(days)
	if err != nil {
		return nil, err
	}

	var out []models.GenreCount
	key := fmt.Sprintf("genres:%s:%s:%d:%s", userID, profileID, window, calendarDay(s.now(), s.tz).Format("2006-01-02"))
	err = s.cached(ctx, key, &out, func() (interface{}, error) {
		return s.genreCounts(ctx, userID, profileID, window)
	})
	return out, err
}

func (s *StatsService) genreCounts(ctx context.Context, userID, profileID uuid.UUID, window int) ([]models.GenreCount, error) {
	rows, err := s.history.ListForProfileSince(ctx, userID, profileID, s.windowStart(window))
	if err != nil {
		return nil, wrapError(err, "failed to load history")
	}

	ids := make([]uuid.UUID, 0, len(rows))
	for _, h := range rows {
		ids = append(ids, h.ContentID)
	}
	contents, err := s.content.GetMany(ctx, ids)
	if err != nil {
		return nil, wrapError(err, "failed to load content")
	}

	counts := []models.GenreCount{}
	index := make(map[string]int)
	for _, h := range rows {
		c, ok := contents[h.ContentID]
		if !ok {
			continue
		}
		for _, genre := range c.Genres {
			k := strings.ToLower(genre)
			if i, seen := index[k]; seen {
				counts[i].Count++
				continue
			}
			index[k] = len(counts)
			counts = append(counts, models.GenreCount{Genre: genre, Count: 1})
		}
	}

	sort.SliceStable(counts, func(i, j int) bool {
		return counts[i].Count > counts[j].Count
	})
	return counts, nil
}

// DailyCounts counts daily presence rows per stored day inside the window, ascending by day
func (s *StatsService) DailyCounts(ctx context.Context, userID, profileID uuid.UUID, days int) ([]models.DayCount, error) {
	window, err := normalizeWindow(days)
	if err != nil {
		return nil, err
	}

	var out []models.DayCount
	key := fmt.Sprintf("daily:%s:%s:%d:%s", userID, profileID, window, calendarDay(s.now(), s.tz).Format("2006-01-02"))
	err = s.cached(ctx, key, &out, func() (interface{}, error) {
		return s.dailyCounts(ctx, userID, profileID, window)
	})
	return out, err
}

func (s *StatsService) dailyCounts(ctx context.Context, userID, profileID uuid.UUID, window int) ([]models.DayCount, error) {
	since := calendarDay(s.windowStart(window), s.tz)
	rows, err := s.history.ListDailySince(ctx, userID, profileID, since)
	if err != nil {
		return nil, wrapError(err, "failed to load daily watches")
	}

	counts := []models.DayCount{}
	index := make(map[string]int)
	for _, d := range rows {
		day := d.Day.UTC().Format("2006-01-02")
		if i, ok := index[day]; ok {
			counts[i].Count++
			continue
		}
		index[day] = len(counts)
		counts = append(counts, models.DayCount{Day: day, Count: 1})
	}

	sort.SliceStable(counts, func(i, j int) bool {
		return counts[i].Day < counts[j].Day
	})
	return counts, nil
}
