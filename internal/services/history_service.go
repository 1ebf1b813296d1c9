package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/liamwears/reelstream/internal/metrics"
	"github.com/liamwears/reelstream/internal/models"
	"github.com/liamwears/reelstream/internal/store"
	"github.com/rs/zerolog"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// HistoryService records playback progress, likes and daily presence per profile
type HistoryService struct {
	history store.HistoryStore
	content store.ContentStore
	users   store.UserStore
	logger  zerolog.Logger
	tz      *time.Location
	now     func() time.Time
}

// NewHistoryService creates a new HistoryService; days are computed in tz
func NewHistoryService(history store.HistoryStore, content store.ContentStore, users store.UserStore, tz *time.Location, logger zerolog.Logger) *HistoryService {
	if tz == nil {
		tz = time.UTC
	}
	return &HistoryService{
		history: history,
		content: content,
		users:   users,
		logger:  logger,
		tz:      tz,
		now:     time.Now,
	}
}

// calendarDay returns the date of t in tz as a UTC midnight value
func calendarDay(t time.Time, tz *time.Location) time.Time {
	y, m, d := t.In(tz).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *HistoryService) loadContent(ctx context.Context, id uuid.UUID) (*models.Content, error) {
	content, err := s.content.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound("content not found")
	}
	if err != nil {
		return nil, wrapError(err, "failed to get content")
	}
	return content, nil
}

// UpsertProgress records a playback position for the profile.
// liked is never touched; a daily presence row is written best-effort afterwards.
func (s *HistoryService) UpsertProgress(ctx context.Context, userID, profileID, contentID uuid.UUID, input models.ProgressInput) (*models.WatchHistory, error) {
	if input.PositionSec < 0 {
		input.PositionSec = 0
	}
	if (input.SeasonNumber == nil) != (input.EpisodeNumber == nil) {
		return nil, ErrBadRequest("seasonNumber and episodeNumber must be given together")
	}

	content, err := s.loadContent(ctx, contentID)
	if err != nil {
		return nil, err
	}
	if input.SeasonNumber != nil {
		if content.Type != models.ContentTypeSeries {
			return nil, ErrBadRequest("only series accept seasonNumber and episodeNumber")
		}
		if content.FindEpisode(*input.SeasonNumber, *input.EpisodeNumber) == nil {
			return nil, ErrNotFound("episode not found")
		}
	}

	now := s.now().UTC()
	key := models.HistoryKey{UserID: userID, ProfileID: profileID, ContentID: contentID}
	h, err := s.history.UpsertProgress(ctx, models.ProgressUpdate{
		Key:           key,
		SeasonNumber:  input.SeasonNumber,
		EpisodeNumber: input.EpisodeNumber,
		PositionSec:   input.PositionSec,
		Completed:     input.Completed,
		At:            now,
	})
	if err != nil {
		return nil, wrapError(err, "failed to save progress")
	}
	metrics.PlaybackEvents.WithLabelValues("progress").Inc()

	s.logDailyWatch(ctx, key, now)
	return h, nil
}

// logDailyWatch writes today's presence row; a repeat for the same day is expected and ignored
func (s *HistoryService) logDailyWatch(ctx context.Context, key models.HistoryKey, now time.Time) {
	err := s.history.InsertDailyWatch(ctx, models.DailyWatch{
		UserID:    key.UserID,
		ProfileID: key.ProfileID,
		ContentID: key.ContentID,
		Day:       calendarDay(now, s.tz),
	})
	if err != nil && !errors.Is(err, store.ErrDuplicate) {
		s.logger.Warn().Err(err).Str("content_id", key.ContentID.String()).Msg("failed to record daily watch")
	}
}

// ToggleLike sets the liked flag independently of progress
func (s *HistoryService) ToggleLike(ctx context.Context, userID, profileID, contentID uuid.UUID, liked bool) (*models.WatchHistory, error) {
	if _, err := s.loadContent(ctx, contentID); err != nil {
		return nil, err
	}

	key := models.HistoryKey{UserID: userID, ProfileID: profileID, ContentID: contentID}
	h, err := s.history.UpsertLike(ctx, key, liked, s.now().UTC())
	if err != nil {
		return nil, wrapError(err, "failed to save like")
	}
	metrics.PlaybackEvents.WithLabelValues("like").Inc()
	return h, nil
}

// ResetProgress moves a row back to position 0 and not completed, keeping liked
func (s *HistoryService) ResetProgress(ctx context.Context, userID, profileID, contentID uuid.UUID) (*models.WatchHistory, error) {
	key := models.HistoryKey{UserID: userID, ProfileID: profileID, ContentID: contentID}
	h, err := s.history.ResetProgress(ctx, key, s.now().UTC())
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound("no watch history for this content")
	}
	if err != nil {
		return nil, wrapError(err, "failed to reset progress")
	}
	metrics.PlaybackEvents.WithLabelValues("reset").Inc()
	return h, nil
}

// ListForUser returns a user's history, most recently watched first, optionally joined
// with content and profile summaries. Rows whose content or profile is gone carry null.
func (s *HistoryService) ListForUser(ctx context.Context, userID uuid.UUID, filter models.HistoryFilter) ([]models.HistoryEntry, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultHistoryLimit
	}
	if filter.Limit > maxHistoryLimit {
		filter.Limit = maxHistoryLimit
	}

	rows, err := s.history.ListForUser(ctx, userID, filter)
	if err != nil {
		return nil, wrapError(err, "failed to list history")
	}

	var (
		contents map[uuid.UUID]models.Content
		profiles map[uuid.UUID]models.Profile
	)
	if filter.IncludeContent {
		ids := make([]uuid.UUID, 0, len(rows))
		for _, h := range rows {
			ids = append(ids, h.ContentID)
		}
		if contents, err = s.content.GetMany(ctx, ids); err != nil {
			return nil, wrapError(err, "failed to load content")
		}
	}
	if filter.IncludeProfile {
		ids := make([]uuid.UUID, 0, len(rows))
		for _, h := range rows {
			ids = append(ids, h.ProfileID)
		}
		if profiles, err = s.users.GetProfiles(ctx, ids); err != nil {
			return nil, wrapError(err, "failed to load profiles")
		}
	}

	entries := make([]models.HistoryEntry, 0, len(rows))
	for _, h := range rows {
		entry := models.HistoryEntry{WatchHistory: h}
		if c, ok := contents[h.ContentID]; ok {
			summary := c.Summary()
			entry.Content = &summary
		}
		if p, ok := profiles[h.ProfileID]; ok && p.UserID == userID {
			entry.Profile = &models.ProfileSummary{ID: p.ID, Name: p.Name, AvatarPath: p.AvatarPath}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
