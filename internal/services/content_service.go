package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"mime/multipart"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/liamwears/reelstream/internal/models"
	"github.com/liamwears/reelstream/internal/storage"
	"github.com/liamwears/reelstream/internal/store"
	"github.com/rs/zerolog"
)

const (
	defaultContentLimit = 24
	maxContentLimit     = 100
	minYear             = 1870
)

// MediaFiles are the optional uploads attached to a title or an episode
type MediaFiles struct {
	Poster *multipart.FileHeader
	Video  *multipart.FileHeader
}

// EpisodeConflict names a (season, episode) pair rejected by a batch
type EpisodeConflict struct {
	Season  int `json:"season"`
	Episode int `json:"episode"`
}

// ContentService handles the catalog of movies and series
type ContentService struct {
	store  store.ContentStore
	files  storage.Storage
	queue  RatingQueue
	logger zerolog.Logger
	now    func() time.Time
}

// NewContentService creates a new ContentService
func NewContentService(content store.ContentStore, files storage.Storage, queue RatingQueue, logger zerolog.Logger) *ContentService {
	return &ContentService{
		store:  content,
		files:  files,
		queue:  queue,
		logger: logger,
		now:    time.Now,
	}
}

// uploads tracks files saved during one request so they can be removed if a later step fails
type uploads struct {
	files  storage.Storage
	logger zerolog.Logger
	saved  []string
}

func (u *uploads) save(ctx context.Context, fh *multipart.FileHeader, kind storage.Kind) (*string, error) {
	if fh == nil {
		return nil, nil
	}
	if u.files == nil {
		return nil, ErrBadRequest("file uploads are not enabled")
	}
	path, err := u.files.Save(ctx, fh, kind)
	if err != nil {
		return nil, wrapError(err, "failed to store upload")
	}
	u.saved = append(u.saved, path)
	return &path, nil
}

func (u *uploads) rollback(ctx context.Context) {
	for _, path := range u.saved {
		if err := u.files.Remove(ctx, path); err != nil {
			u.logger.Warn().Err(err).Str("path", path).Msg("failed to remove upload after error")
		}
	}
	u.saved = nil
}

func (s *ContentService) newUploads() *uploads {
	return &uploads{files: s.files, logger: s.logger}
}

func (s *ContentService) removeAssets(ctx context.Context, paths ...*string) {
	if s.files == nil {
		return
	}
	for _, p := range paths {
		if p == nil {
			continue
		}
		if err := s.files.Remove(ctx, *p); err != nil {
			s.logger.Warn().Err(err).Str("path", *p).Msg("failed to remove asset")
		}
	}
}

// contentError maps store sentinels onto service errors
func contentError(err error, action string) error {
	if _, ok := AsServiceError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound("content not found")
	case errors.Is(err, store.ErrDuplicate):
		return ErrConflict("a title with this name already exists")
	}
	return wrapError(err, action)
}

func (s *ContentService) validateYear(year int) error {
	if year == 0 {
		return nil
	}
	if year < minYear || year > s.now().Year()+5 {
		return ErrBadRequest(fmt.Sprintf("year must be between %d and %d", minYear, s.now().Year()+5))
	}
	return nil
}

func validateActors(actors []models.Actor) ([]models.Actor, error) {
	out := make([]models.Actor, 0, len(actors))
	for _, a := range actors {
		a.Name = strings.TrimSpace(a.Name)
		a.Role = strings.TrimSpace(a.Role)
		if a.Name == "" {
			return nil, ErrBadRequest("actor name is required")
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *ContentService) enqueue(job EnrichmentJob) {
	if s.queue == nil {
		return
	}
	s.queue.Enqueue(job)
}

// Create creates a movie or a series from input and the optional poster/video uploads
func (s *ContentService) Create(ctx context.Context, input models.CreateContentInput, files MediaFiles) (*models.Content, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, ErrBadRequest("title is required")
	}
	if !input.Type.IsValid() {
		return nil, ErrBadRequest("type must be movie or series")
	}
	if err := s.validateYear(input.Year); err != nil {
		return nil, err
	}
	actors, err := validateActors(input.Actors)
	if err != nil {
		return nil, err
	}

	content := &models.Content{
		Type:     input.Type,
		Title:    title,
		Year:     input.Year,
		Genres:   models.NormalizeGenres(input.Genres),
		Director: strings.TrimSpace(input.Director),
		Actors:   actors,
		Synopsis: strings.TrimSpace(input.Synopsis),
		Seasons:  []models.Season{},
	}

	up := s.newUploads()
	if content.PosterPath, err = up.save(ctx, files.Poster, storage.KindPoster); err != nil {
		up.rollback(ctx)
		return nil, err
	}
	if content.VideoPath, err = up.save(ctx, files.Video, storage.KindVideo); err != nil {
		up.rollback(ctx)
		return nil, err
	}

	if err := s.store.Create(ctx, content); err != nil {
		up.rollback(ctx)
		return nil, contentError(err, "failed to create content")
	}

	s.logger.Info().Str("content_id", content.ID.String()).Str("type", string(content.Type)).Msg("content created")
	s.enqueue(EnrichmentJob{ContentID: content.ID, Type: content.Type, Title: content.Title, Year: content.Year})
	return content, nil
}

// CreateSeries creates a series with no seasons yet
func (s *ContentService) CreateSeries(ctx context.Context, input models.CreateContentInput, files MediaFiles) (*models.Content, error) {
	input.Type = models.ContentTypeSeries
	return s.Create(ctx, input, files)
}

// Get retrieves a title by ID
func (s *ContentService) Get(ctx context.Context, id uuid.UUID) (*models.Content, error) {
	content, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, contentError(err, "failed to get content")
	}
	return content, nil
}

// List retrieves titles with filtering and pagination
func (s *ContentService) List(ctx context.Context, filter models.ContentFilter) (*models.PaginatedContent, error) {
	// Set defaults
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit == 0 {
		filter.Limit = defaultContentLimit
	}
	if filter.Limit < 1 || filter.Limit > maxContentLimit {
		return nil, ErrBadRequest(fmt.Sprintf("limit must be between 1 and %d", maxContentLimit))
	}
	if filter.Type != "" && !filter.Type.IsValid() {
		return nil, ErrBadRequest("type must be movie or series")
	}
	filter.Title = strings.TrimSpace(filter.Title)
	filter.Genres = models.NormalizeGenres(filter.Genres)

	results, total, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, wrapError(err, "failed to list content")
	}

	return &models.PaginatedContent{
		Results:    results,
		Page:       filter.Page,
		Count:      total,
		TotalPages: int(math.Ceil(float64(total) / float64(filter.Limit))),
	}, nil
}

// Update applies the allowlisted fields of input to a title
func (s *ContentService) Update(ctx context.Context, id uuid.UUID, input models.UpdateContentInput) (*models.Content, error) {
	var title string
	if input.Title != nil {
		title = strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, ErrBadRequest("title cannot be empty")
		}
	}
	if input.Year != nil {
		if err := s.validateYear(*input.Year); err != nil {
			return nil, err
		}
	}
	var actors []models.Actor
	if input.Actors != nil {
		var err error
		if actors, err = validateActors(*input.Actors); err != nil {
			return nil, err
		}
	}

	content, err := s.store.Mutate(ctx, id, func(c *models.Content) error {
		if input.Title != nil {
			c.Title = title
		}
		if input.Year != nil {
			c.Year = *input.Year
		}
		if input.Genres != nil {
			c.Genres = models.NormalizeGenres(*input.Genres)
		}
		if input.Director != nil {
			c.Director = strings.TrimSpace(*input.Director)
		}
		if input.Actors != nil {
			c.Actors = actors
		}
		if input.Synopsis != nil {
			c.Synopsis = strings.TrimSpace(*input.Synopsis)
		}
		return nil
	})
	if err != nil {
		return nil, contentError(err, "failed to update content")
	}
	return content, nil
}

// Remove deletes a title and, best-effort, its stored assets
func (s *ContentService) Remove(ctx context.Context, id uuid.UUID) error {
	content, err := s.store.Get(ctx, id)
	if err != nil {
		return contentError(err, "failed to get content")
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return contentError(err, "failed to delete content")
	}

	assets := []*string{content.PosterPath, content.VideoPath}
	for _, season := range content.Seasons {
		for _, ep := range season.Episodes {
			assets = append(assets, ep.PosterPath, ep.VideoPath)
		}
	}
	s.removeAssets(ctx, assets...)

	s.logger.Info().Str("content_id", id.String()).Msg("content removed")
	return nil
}

func validateEpisodeRef(ref *models.EpisodeRef) error {
	if ref != nil && (ref.Season < 1 || ref.Episode < 1) {
		return ErrBadRequest("nextEpisode season and episode must be at least 1")
	}
	return nil
}

func validateEpisodeInput(input models.AddEpisodeInput) (models.AddEpisodeInput, error) {
	if input.SeasonNumber < 1 || input.EpisodeNumber < 1 {
		return input, ErrBadRequest("seasonNumber and episodeNumber must be at least 1")
	}
	input.Title = strings.TrimSpace(input.Title)
	if input.Title == "" {
		return input, ErrBadRequest("episode title is required")
	}
	if err := validateEpisodeRef(input.NextEpisode); err != nil {
		return input, err
	}
	actors, err := validateActors(input.Actors)
	if err != nil {
		return input, err
	}
	input.Actors = actors
	input.Synopsis = strings.TrimSpace(input.Synopsis)
	input.Director = strings.TrimSpace(input.Director)
	return input, nil
}

func newEpisode(input models.AddEpisodeInput) models.Episode {
	return models.Episode{
		ID:            uuid.New(),
		SeasonNumber:  input.SeasonNumber,
		EpisodeNumber: input.EpisodeNumber,
		Title:         input.Title,
		Synopsis:      input.Synopsis,
		Director:      input.Director,
		Actors:        input.Actors,
		NextEpisode:   input.NextEpisode,
	}
}

// insertEpisode finds or creates the season, appends ep keeping order and bumps numberOfSeasons
func insertEpisode(c *models.Content, ep models.Episode) {
	season := c.FindSeason(ep.SeasonNumber)
	if season == nil {
		c.Seasons = append(c.Seasons, models.Season{SeasonNumber: ep.SeasonNumber, Episodes: []models.Episode{}})
		season = &c.Seasons[len(c.Seasons)-1]
	}
	season.Episodes = append(season.Episodes, ep)
	c.SortSeasons()
	if ep.SeasonNumber > c.NumberOfSeasons {
		c.NumberOfSeasons = ep.SeasonNumber
	}
}

func (s *ContentService) requireSeries(ctx context.Context, id uuid.UUID) error {
	content, err := s.store.Get(ctx, id)
	if err != nil {
		return contentError(err, "failed to get series")
	}
	if content.Type != models.ContentTypeSeries {
		return ErrBadRequest("content is not a series")
	}
	return nil
}

func (s *ContentService) enqueueEpisode(series *models.Content, ep models.Episode) {
	season, episode := ep.SeasonNumber, ep.EpisodeNumber
	s.enqueue(EnrichmentJob{
		ContentID: series.ID,
		Type:      series.Type,
		Title:     series.Title,
		Year:      series.Year,
		Season:    &season,
		Episode:   &episode,
	})
}

// AddEpisode appends one episode to a series; an existing (season, episode) pair is a conflict
func (s *ContentService) AddEpisode(ctx context.Context, seriesID uuid.UUID, input models.AddEpisodeInput, files MediaFiles) (*models.Episode, error) {
	input, err := validateEpisodeInput(input)
	if err != nil {
		return nil, err
	}
	if err := s.requireSeries(ctx, seriesID); err != nil {
		return nil, err
	}

	ep := newEpisode(input)
	up := s.newUploads()
	if ep.PosterPath, err = up.save(ctx, files.Poster, storage.KindPoster); err != nil {
		up.rollback(ctx)
		return nil, err
	}
	if ep.VideoPath, err = up.save(ctx, files.Video, storage.KindVideo); err != nil {
		up.rollback(ctx)
		return nil, err
	}

	series, err := s.store.Mutate(ctx, seriesID, func(c *models.Content) error {
		if c.Type != models.ContentTypeSeries {
			return ErrBadRequest("content is not a series")
		}
		if c.FindEpisode(ep.SeasonNumber, ep.EpisodeNumber) != nil {
			return ErrConflict(fmt.Sprintf("season %d episode %d already exists", ep.SeasonNumber, ep.EpisodeNumber))
		}
		insertEpisode(c, ep)
		return nil
	})
	if err != nil {
		up.rollback(ctx)
		return nil, contentError(err, "failed to add episode")
	}

	s.logger.Info().Str("content_id", seriesID.String()).Int("season", ep.SeasonNumber).Int("episode", ep.EpisodeNumber).Msg("episode added")
	s.enqueueEpisode(series, ep)
	return &ep, nil
}

// AddEpisodesBatch appends several episodes at once.
// Any pair that already exists in the series or repeats within the batch fails the
// whole batch with a conflict listing the pairs, and nothing is applied.
// files is keyed by multipart field name: poster_<i> and video_<i> for the i-th episode.
func (s *ContentService) AddEpisodesBatch(ctx context.Context, seriesID uuid.UUID, inputs []models.AddEpisodeInput, files map[string]*multipart.FileHeader) ([]models.Episode, error) {
	if len(inputs) == 0 {
		return nil, ErrBadRequest("episodes list is empty")
	}

	episodes := make([]models.Episode, len(inputs))
	var conflicts []EpisodeConflict
	seen := make(map[EpisodeConflict]bool, len(inputs))
	for i, raw := range inputs {
		input, err := validateEpisodeInput(raw)
		if err != nil {
			se, _ := AsServiceError(err)
			return nil, ErrBadRequest(fmt.Sprintf("episode %d: %s", i, se.Message))
		}
		pair := EpisodeConflict{Season: input.SeasonNumber, Episode: input.EpisodeNumber}
		if seen[pair] {
			conflicts = append(conflicts, pair)
		}
		seen[pair] = true
		episodes[i] = newEpisode(input)
	}
	if len(conflicts) > 0 {
		return nil, batchConflict(conflicts)
	}
	if err := s.requireSeries(ctx, seriesID); err != nil {
		return nil, err
	}

	up := s.newUploads()
	for i := range episodes {
		var err error
		if episodes[i].PosterPath, err = up.save(ctx, files[fmt.Sprintf("poster_%d", i)], storage.KindPoster); err != nil {
			up.rollback(ctx)
			return nil, err
		}
		if episodes[i].VideoPath, err = up.save(ctx, files[fmt.Sprintf("video_%d", i)], storage.KindVideo); err != nil {
			up.rollback(ctx)
			return nil, err
		}
	}

	series, err := s.store.Mutate(ctx, seriesID, func(c *models.Content) error {
		if c.Type != models.ContentTypeSeries {
			return ErrBadRequest("content is not a series")
		}
		var existing []EpisodeConflict
		for _, ep := range episodes {
			if c.FindEpisode(ep.SeasonNumber, ep.EpisodeNumber) != nil {
				existing = append(existing, EpisodeConflict{Season: ep.SeasonNumber, Episode: ep.EpisodeNumber})
			}
		}
		if len(existing) > 0 {
			return batchConflict(existing)
		}
		for _, ep := range episodes {
			insertEpisode(c, ep)
		}
		return nil
	})
	if err != nil {
		up.rollback(ctx)
		return nil, contentError(err, "failed to add episodes")
	}

	s.logger.Info().Str("content_id", seriesID.String()).Int("count", len(episodes)).Msg("episodes added")
	for _, ep := range episodes {
		s.enqueueEpisode(series, ep)
	}
	return episodes, nil
}

func batchConflict(pairs []EpisodeConflict) error {
	return ServiceError{
		Status:  409,
		Message: fmt.Sprintf("%d episode(s) already exist", len(pairs)),
		Details: pairs,
	}
}

// UpdateEpisode applies the allowlisted fields of input to one episode
func (s *ContentService) UpdateEpisode(ctx context.Context, seriesID uuid.UUID, season, episode int, input models.UpdateEpisodeInput) (*models.Episode, error) {
	var title string
	if input.Title != nil {
		title = strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, ErrBadRequest("episode title cannot be empty")
		}
	}
	if err := validateEpisodeRef(input.NextEpisode); err != nil {
		return nil, err
	}
	var actors []models.Actor
	if input.Actors != nil {
		var err error
		if actors, err = validateActors(*input.Actors); err != nil {
			return nil, err
		}
	}

	var updated models.Episode
	_, err := s.store.Mutate(ctx, seriesID, func(c *models.Content) error {
		ep := c.FindEpisode(season, episode)
		if ep == nil {
			return ErrNotFound("episode not found")
		}
		if input.Title != nil {
			ep.Title = title
		}
		if input.Synopsis != nil {
			ep.Synopsis = strings.TrimSpace(*input.Synopsis)
		}
		if input.Director != nil {
			ep.Director = strings.TrimSpace(*input.Director)
		}
		if input.Actors != nil {
			ep.Actors = actors
		}
		if input.NextEpisode != nil {
			ep.NextEpisode = input.NextEpisode
		}
		updated = *ep
		return nil
	})
	if err != nil {
		return nil, contentError(err, "failed to update episode")
	}
	return &updated, nil
}

// RemoveEpisode deletes one episode, dropping its season when it becomes empty
func (s *ContentService) RemoveEpisode(ctx context.Context, seriesID uuid.UUID, season, episode int) error {
	var removed models.Episode
	_, err := s.store.Mutate(ctx, seriesID, func(c *models.Content) error {
		ep := c.FindEpisode(season, episode)
		if ep == nil {
			return ErrNotFound("episode not found")
		}
		removed = *ep

		seasons := c.Seasons[:0]
		highest := 0
		for _, sn := range c.Seasons {
			if sn.SeasonNumber == season {
				kept := sn.Episodes[:0]
				for _, e := range sn.Episodes {
					if e.EpisodeNumber != episode {
						kept = append(kept, e)
					}
				}
				sn.Episodes = kept
			}
			if len(sn.Episodes) == 0 {
				continue
			}
			if sn.SeasonNumber > highest {
				highest = sn.SeasonNumber
			}
			seasons = append(seasons, sn)
		}
		c.Seasons = seasons
		c.NumberOfSeasons = highest
		return nil
	})
	if err != nil {
		return contentError(err, "failed to remove episode")
	}

	s.removeAssets(ctx, removed.PosterPath, removed.VideoPath)
	return nil
}
