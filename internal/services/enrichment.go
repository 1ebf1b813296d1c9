package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/liamwears/reelstream/internal/metrics"
	"github.com/liamwears/reelstream/internal/models"
	"github.com/liamwears/reelstream/internal/store"
	"github.com/liamwears/reelstream/internal/telemetry"
	"github.com/rs/zerolog"
)

// EnrichmentJob asks for the rating of a title or of one episode
type EnrichmentJob struct {
	ContentID uuid.UUID
	Type      models.ContentType
	Title     string
	Year      int
	Season    *int
	Episode   *int
}

// RatingQueue accepts enrichment jobs without blocking the caller
type RatingQueue interface {
	Enqueue(job EnrichmentJob) bool
}

// Enricher backfills ratings in the background.
// Jobs go through a buffered channel drained by a fixed set of workers.
type Enricher struct {
	content    store.ContentStore
	provider   RatingProvider
	logger     zerolog.Logger
	jobs       chan EnrichmentJob
	workers    int
	jobTimeout time.Duration
	now        func() time.Time
	wg         sync.WaitGroup
}

// NewEnricher creates an Enricher; call Start to launch the workers
func NewEnricher(content store.ContentStore, provider RatingProvider, logger zerolog.Logger, workers, queueSize int) *Enricher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &Enricher{
		content:    content,
		provider:   provider,
		logger:     logger.With().Str("component", "enricher").Logger(),
		jobs:       make(chan EnrichmentJob, queueSize),
		workers:    workers,
		jobTimeout: 15 * time.Second,
		now:        time.Now,
	}
}

// Start launches the workers; they exit when ctx is cancelled
func (e *Enricher) Start(ctx context.Context) {
	e.logger.Info().Int("workers", e.workers).Int("queue", cap(e.jobs)).Msg("starting enrichment workers")
	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go e.workerLoop(ctx, i)
	}
}

// Wait blocks until every worker has returned
func (e *Enricher) Wait() {
	e.wg.Wait()
}

// Enqueue schedules job; it reports false and drops the job when the queue is full
func (e *Enricher) Enqueue(job EnrichmentJob) bool {
	select {
	case e.jobs <- job:
		metrics.EnrichmentQueueDepth.Set(float64(len(e.jobs)))
		return true
	default:
		metrics.EnrichmentJobs.WithLabelValues("dropped").Inc()
		e.logger.Warn().Str("content_id", job.ContentID.String()).Msg("enrichment queue full, dropping job")
		return false
	}
}

func (e *Enricher) workerLoop(ctx context.Context, id int) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-e.jobs:
			metrics.EnrichmentQueueDepth.Set(float64(len(e.jobs)))
			result := e.process(ctx, job)
			metrics.EnrichmentJobs.WithLabelValues(result).Inc()
			e.logger.Debug().Int("worker", id).Str("content_id", job.ContentID.String()).Str("result", result).Msg("enrichment job done")
		}
	}
}

// process runs one job behind its own timeout and recover boundary.
// Nothing it does can reach the caller; the outcome is only reported.
func (e *Enricher) process(ctx context.Context, job EnrichmentJob) (result string) {
	ctx, cancel := context.WithTimeout(ctx, e.jobTimeout)
	defer cancel()

	tags := map[string]string{"operation": "enrichment", "content_id": job.ContentID.String()}
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Error().Interface("panic", rec).Str("content_id", job.ContentID.String()).Msg("enrichment job panicked")
			telemetry.CapturePanic(rec, tags)
			result = "panic"
		}
	}()

	rating, err := e.provider.Rating(ctx, RatingQuery{
		Type:    job.Type,
		Title:   job.Title,
		Year:    job.Year,
		Season:  job.Season,
		Episode: job.Episode,
	})
	if errors.Is(err, ErrRatingNotFound) {
		return "not_found"
	}
	if err != nil {
		e.fail(job, err, tags)
		return "error"
	}

	if err := e.apply(ctx, job, rating); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// the title or episode was removed while the lookup ran
			return "not_found"
		}
		e.fail(job, err, tags)
		return "error"
	}
	return "rated"
}

func (e *Enricher) fail(job EnrichmentJob, err error, tags map[string]string) {
	e.logger.Error().Err(err).Str("content_id", job.ContentID.String()).Msg("enrichment job failed")
	telemetry.CaptureError(err, tags)
}

func (e *Enricher) apply(ctx context.Context, job EnrichmentJob, rating float64) error {
	now := e.now().UTC()
	_, err := e.content.Mutate(ctx, job.ContentID, func(c *models.Content) error {
		if job.Season == nil || job.Episode == nil {
			c.Rating = &rating
			c.RatingUpdatedAt = &now
			return nil
		}
		ep := c.FindEpisode(*job.Season, *job.Episode)
		if ep == nil {
			return store.ErrNotFound
		}
		ep.Rating = &rating
		ep.RatingUpdatedAt = &now
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store rating: %w", err)
	}
	return nil
}
