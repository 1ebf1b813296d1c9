package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/liamwears/reelstream/internal/models"
	"github.com/liamwears/reelstream/internal/store"
)

// ContentStore persists titles in the "Content" table.
// Seasons and actors are stored as JSONB documents on the row.
type ContentStore struct {
	db *pgxpool.Pool
}

const contentColumns = `id, type, title, year, genres, director, actors, synopsis,
	"posterPath", "videoPath", rating, "ratingUpdatedAt", "numberOfSeasons", seasons,
	"createdAt", "updatedAt"`

func scanContent(row pgx.Row) (*models.Content, error) {
	var (
		c           models.Content
		contentType string
		actors      []byte
		seasons     []byte
	)
	err := row.Scan(
		&c.ID,
		&contentType,
		&c.Title,
		&c.Year,
		&c.Genres,
		&c.Director,
		&actors,
		&c.Synopsis,
		&c.PosterPath,
		&c.VideoPath,
		&c.Rating,
		&c.RatingUpdatedAt,
		&c.NumberOfSeasons,
		&seasons,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Type = models.ContentType(contentType)
	if err := json.Unmarshal(actors, &c.Actors); err != nil {
		return nil, fmt.Errorf("failed to decode actors: %w", err)
	}
	if err := json.Unmarshal(seasons, &c.Seasons); err != nil {
		return nil, fmt.Errorf("failed to decode seasons: %w", err)
	}
	if c.Genres == nil {
		c.Genres = []string{}
	}
	return &c, nil
}

func encodeDocs(c *models.Content) (actors, seasons []byte, err error) {
	if c.Actors == nil {
		c.Actors = []models.Actor{}
	}
	if c.Seasons == nil {
		c.Seasons = []models.Season{}
	}
	if actors, err = json.Marshal(c.Actors); err != nil {
		return nil, nil, fmt.Errorf("failed to encode actors: %w", err)
	}
	if seasons, err = json.Marshal(c.Seasons); err != nil {
		return nil, nil, fmt.Errorf("failed to encode seasons: %w", err)
	}
	return actors, seasons, nil
}

// Create inserts a new title
func (s *ContentStore) Create(ctx context.Context, c *models.Content) error {
	actors, seasons, err := encodeDocs(c)
	if err != nil {
		return err
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Genres == nil {
		c.Genres = []string{}
	}

	query := `
		INSERT INTO "Content" (id, type, title, year, genres, director, actors, synopsis,
		                       "posterPath", "videoPath", "numberOfSeasons", seasons)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING "createdAt", "updatedAt"
	`
	err = s.db.QueryRow(ctx, query,
		c.ID,
		string(c.Type),
		c.Title,
		c.Year,
		c.Genres,
		c.Director,
		actors,
		c.Synopsis,
		c.PosterPath,
		c.VideoPath,
		c.NumberOfSeasons,
		seasons,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if err = translate(err); errors.Is(err, store.ErrDuplicate) {
			return err
		}
		return fmt.Errorf("failed to create content: %w", err)
	}
	return nil
}

// Get retrieves a title by ID
func (s *ContentStore) Get(ctx context.Context, id uuid.UUID) (*models.Content, error) {
	query := `SELECT ` + contentColumns + ` FROM "Content" WHERE id = $1`

	c, err := scanContent(s.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, translate(err)
	}
	return c, nil
}

// GetMany loads titles by ID; missing IDs are absent from the result
func (s *ContentStore) GetMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Content, error) {
	out := make(map[uuid.UUID]models.Content, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query := `SELECT ` + contentColumns + ` FROM "Content" WHERE id = ANY($1)`
	rows, err := s.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query content: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanContent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan content: %w", err)
		}
		out[c.ID] = *c
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating content: %w", err)
	}
	return out, nil
}

// List retrieves titles with filtering and pagination
func (s *ContentStore) List(ctx context.Context, filter models.ContentFilter) ([]models.Content, int, error) {
	// Build query
	baseQuery := ` FROM "Content" WHERE TRUE`
	args := []interface{}{}
	argCount := 0

	if filter.Type != "" {
		argCount++
		baseQuery += fmt.Sprintf(" AND type = $%d", argCount)
		args = append(args, string(filter.Type))
	}
	if filter.Title != "" {
		argCount++
		baseQuery += fmt.Sprintf(" AND title ILIKE $%d", argCount)
		args = append(args, "%"+filter.Title+"%")
	}
	if len(filter.Genres) > 0 {
		// every requested genre must be present on the row
		argCount++
		baseQuery += fmt.Sprintf(` AND NOT EXISTS (
			SELECT 1 FROM unnest($%d::text[]) AS wanted(g)
			WHERE NOT EXISTS (SELECT 1 FROM unnest(genres) AS have(g) WHERE lower(have.g) = lower(wanted.g))
		)`, argCount)
		args = append(args, filter.Genres)
	}

	// Count total
	var total int
	if err := s.db.QueryRow(ctx, "SELECT COUNT(*)"+baseQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count content: %w", err)
	}

	offset := (filter.Page - 1) * filter.Limit
	query := `SELECT ` + contentColumns + baseQuery +
		fmt.Sprintf(` ORDER BY lower(title) ASC, id ASC LIMIT $%d OFFSET $%d`, argCount+1, argCount+2)
	args = append(args, filter.Limit, offset)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query content: %w", err)
	}
	defer rows.Close()

	results := []models.Content{}
	for rows.Next() {
		c, err := scanContent(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan content: %w", err)
		}
		results = append(results, *c)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating content: %w", err)
	}
	return results, total, nil
}

// Mutate applies fn to the row under SELECT ... FOR UPDATE and writes it back in the same transaction
func (s *ContentStore) Mutate(ctx context.Context, id uuid.UUID, fn func(c *models.Content) error) (*models.Content, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `SELECT ` + contentColumns + ` FROM "Content" WHERE id = $1 FOR UPDATE`
	c, err := scanContent(tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, translate(err)
	}

	if err := fn(c); err != nil {
		return nil, err
	}

	actors, seasons, err := encodeDocs(c)
	if err != nil {
		return nil, err
	}
	if c.Genres == nil {
		c.Genres = []string{}
	}

	update := `
		UPDATE "Content" SET
			title = $2, year = $3, genres = $4, director = $5, actors = $6, synopsis = $7,
			"posterPath" = $8, "videoPath" = $9, rating = $10, "ratingUpdatedAt" = $11,
			"numberOfSeasons" = $12, seasons = $13, "updatedAt" = NOW()
		WHERE id = $1
		RETURNING "updatedAt"
	`
	err = tx.QueryRow(ctx, update,
		id,
		c.Title,
		c.Year,
		c.Genres,
		c.Director,
		actors,
		c.Synopsis,
		c.PosterPath,
		c.VideoPath,
		c.Rating,
		c.RatingUpdatedAt,
		c.NumberOfSeasons,
		seasons,
	).Scan(&c.UpdatedAt)
	if err != nil {
		if err = translate(err); errors.Is(err, store.ErrDuplicate) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update content: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit content update: %w", err)
	}
	return c, nil
}

// Delete removes a title
func (s *ContentStore) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.Exec(ctx, `DELETE FROM "Content" WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete content: %w", err)
	}
	if result.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
