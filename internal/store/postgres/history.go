package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/liamwears/reelstream/internal/models"
	"github.com/liamwears/reelstream/internal/store"
)

// HistoryStore persists "WatchHistory" and "DailyWatch" rows
type HistoryStore struct {
	db *pgxpool.Pool
}

const historyColumns = `id, "userId", "profileId", "contentId", "seasonNumber", "episodeNumber",
	"positionSec", completed, liked, "lastWatchedAt"`

func scanHistory(row pgx.Row) (*models.WatchHistory, error) {
	var h models.WatchHistory
	err := row.Scan(
		&h.ID,
		&h.UserID,
		&h.ProfileID,
		&h.ContentID,
		&h.SeasonNumber,
		&h.EpisodeNumber,
		&h.PositionSec,
		&h.Completed,
		&h.Liked,
		&h.LastWatchedAt,
	)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func (s *HistoryStore) queryHistory(ctx context.Context, query string, args ...interface{}) ([]models.WatchHistory, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	history := []models.WatchHistory{}
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		history = append(history, *h)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history: %w", err)
	}
	return history, nil
}

// UpsertProgress inserts or overwrites the progress of a row in one statement
func (s *HistoryStore) UpsertProgress(ctx context.Context, u models.ProgressUpdate) (*models.WatchHistory, error) {
	query := `
		INSERT INTO "WatchHistory" ("userId", "profileId", "contentId", "seasonNumber", "episodeNumber",
		                            "positionSec", completed, "lastWatchedAt")
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT ("userId", "profileId", "contentId") DO UPDATE SET
			"seasonNumber" = EXCLUDED."seasonNumber",
			"episodeNumber" = EXCLUDED."episodeNumber",
			"positionSec" = EXCLUDED."positionSec",
			completed = EXCLUDED.completed,
			"lastWatchedAt" = EXCLUDED."lastWatchedAt"
		RETURNING ` + historyColumns

	h, err := scanHistory(s.db.QueryRow(ctx, query,
		u.Key.UserID,
		u.Key.ProfileID,
		u.Key.ContentID,
		u.SeasonNumber,
		u.EpisodeNumber,
		u.PositionSec,
		u.Completed,
		u.At,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert progress: %w", err)
	}
	return h, nil
}

// UpsertLike inserts or overwrites the liked flag of a row
func (s *HistoryStore) UpsertLike(ctx context.Context, key models.HistoryKey, liked bool, at time.Time) (*models.WatchHistory, error) {
	query := `
		INSERT INTO "WatchHistory" ("userId", "profileId", "contentId", liked, "lastWatchedAt")
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT ("userId", "profileId", "contentId") DO UPDATE SET
			liked = EXCLUDED.liked,
			"lastWatchedAt" = EXCLUDED."lastWatchedAt"
		RETURNING ` + historyColumns

	h, err := scanHistory(s.db.QueryRow(ctx, query, key.UserID, key.ProfileID, key.ContentID, liked, at))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert like: %w", err)
	}
	return h, nil
}

// ResetProgress zeroes position and completion of an existing row
func (s *HistoryStore) ResetProgress(ctx context.Context, key models.HistoryKey, at time.Time) (*models.WatchHistory, error) {
	query := `
		UPDATE "WatchHistory"
		SET "positionSec" = 0, completed = FALSE, "lastWatchedAt" = $4
		WHERE "userId" = $1 AND "profileId" = $2 AND "contentId" = $3
		RETURNING ` + historyColumns

	h, err := scanHistory(s.db.QueryRow(ctx, query, key.UserID, key.ProfileID, key.ContentID, at))
	if err != nil {
		if err = translate(err); errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to reset progress: %w", err)
	}
	return h, nil
}

// Get retrieves one row by its key
func (s *HistoryStore) Get(ctx context.Context, key models.HistoryKey) (*models.WatchHistory, error) {
	query := `SELECT ` + historyColumns + ` FROM "WatchHistory"
		WHERE "userId" = $1 AND "profileId" = $2 AND "contentId" = $3`
	h, err := scanHistory(s.db.QueryRow(ctx, query, key.UserID, key.ProfileID, key.ContentID))
	if err != nil {
		return nil, translate(err)
	}
	return h, nil
}

// ListForUser retrieves a user's history, most recent first
func (s *HistoryStore) ListForUser(ctx context.Context, userID uuid.UUID, filter models.HistoryFilter) ([]models.WatchHistory, error) {
	// Build query
	query := `SELECT ` + historyColumns + ` FROM "WatchHistory" WHERE "userId" = $1`
	args := []interface{}{userID}
	argCount := 1

	if filter.ProfileID != nil {
		argCount++
		query += fmt.Sprintf(` AND "profileId" = $%d`, argCount)
		args = append(args, *filter.ProfileID)
	}
	if filter.Completed != nil {
		argCount++
		query += fmt.Sprintf(` AND completed = $%d`, argCount)
		args = append(args, *filter.Completed)
	}
	if filter.Liked != nil {
		argCount++
		query += fmt.Sprintf(` AND liked = $%d`, argCount)
		args = append(args, *filter.Liked)
	}

	query += ` ORDER BY "lastWatchedAt" DESC, id ASC`
	if filter.Limit > 0 {
		argCount++
		query += fmt.Sprintf(` LIMIT $%d`, argCount)
		args = append(args, filter.Limit)
	}

	return s.queryHistory(ctx, query, args...)
}

// ListForProfileSince retrieves a profile's rows touched at or after since
func (s *HistoryStore) ListForProfileSince(ctx context.Context, userID, profileID uuid.UUID, since time.Time) ([]models.WatchHistory, error) {
	query := `SELECT ` + historyColumns + ` FROM "WatchHistory"
		WHERE "userId" = $1 AND "profileId" = $2 AND "lastWatchedAt" >= $3
		ORDER BY "lastWatchedAt" DESC, id ASC`
	return s.queryHistory(ctx, query, userID, profileID, since)
}

// InsertDailyWatch records a presence row; the primary key rejects repeats for the same day
func (s *HistoryStore) InsertDailyWatch(ctx context.Context, d models.DailyWatch) error {
	query := `
		INSERT INTO "DailyWatch" ("userId", "profileId", "contentId", day)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := s.db.Exec(ctx, query, d.UserID, d.ProfileID, d.ContentID, d.Day); err != nil {
		if err = translate(err); errors.Is(err, store.ErrDuplicate) {
			return err
		}
		return fmt.Errorf("failed to insert daily watch: %w", err)
	}
	return nil
}

// ListDailySince retrieves a profile's presence rows with day >= since
func (s *HistoryStore) ListDailySince(ctx context.Context, userID, profileID uuid.UUID, since time.Time) ([]models.DailyWatch, error) {
	query := `
		SELECT "userId", "profileId", "contentId", day
		FROM "DailyWatch"
		WHERE "userId" = $1 AND "profileId" = $2 AND day >= $3
		ORDER BY day ASC
	`
	rows, err := s.db.Query(ctx, query, userID, profileID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily watches: %w", err)
	}
	defer rows.Close()

	daily := []models.DailyWatch{}
	for rows.Next() {
		var d models.DailyWatch
		if err := rows.Scan(&d.UserID, &d.ProfileID, &d.ContentID, &d.Day); err != nil {
			return nil, fmt.Errorf("failed to scan daily watch: %w", err)
		}
		daily = append(daily, d)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily watches: %w", err)
	}
	return daily, nil
}
