// Package store declares the persistence contracts used by the services.
// Implementations live in the postgres and memory subpackages.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/liamwears/reelstream/internal/models"
)

var (
	// ErrNotFound is returned when the requested record does not exist
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicate is returned when a unique constraint would be violated
	ErrDuplicate = errors.New("store: duplicate")
	// ErrLimitReached is returned when a per-owner cap is already met
	ErrLimitReached = errors.New("store: limit reached")
)

// ContentStore persists movies and series
type ContentStore interface {
	Create(ctx context.Context, c *models.Content) error
	Get(ctx context.Context, id uuid.UUID) (*models.Content, error)
	List(ctx context.Context, filter models.ContentFilter) ([]models.Content, int, error)
	// Mutate loads the record, applies fn and writes it back atomically.
	// When fn returns an error nothing is written and the error is returned as is.
	Mutate(ctx context.Context, id uuid.UUID, fn func(c *models.Content) error) (*models.Content, error)
	Delete(ctx context.Context, id uuid.UUID) error
	GetMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Content, error)
}

// UserStore persists accounts and their profiles
type UserStore interface {
	Create(ctx context.Context, u *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByProvider(ctx context.Context, provider models.Provider, providerID string) (*models.User, error)
	Update(ctx context.Context, u *models.User) error
	List(ctx context.Context) ([]models.User, error)
	Delete(ctx context.Context, id uuid.UUID) error

	// AddProfile inserts p unless the user already owns max profiles
	AddProfile(ctx context.Context, p *models.Profile, max int) error
	GetProfile(ctx context.Context, userID, profileID uuid.UUID) (*models.Profile, error)
	ListProfiles(ctx context.Context, userID uuid.UUID) ([]models.Profile, error)
	UpdateProfile(ctx context.Context, p *models.Profile) error
	DeleteProfile(ctx context.Context, userID, profileID uuid.UUID) error
	GetProfiles(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Profile, error)
}

// HistoryStore persists watch history and daily-watch presence rows
type HistoryStore interface {
	// UpsertProgress creates or overwrites the progress fields of a row, leaving liked untouched
	UpsertProgress(ctx context.Context, u models.ProgressUpdate) (*models.WatchHistory, error)
	// UpsertLike creates or overwrites the liked flag of a row, leaving progress untouched
	UpsertLike(ctx context.Context, key models.HistoryKey, liked bool, at time.Time) (*models.WatchHistory, error)
	ResetProgress(ctx context.Context, key models.HistoryKey, at time.Time) (*models.WatchHistory, error)
	Get(ctx context.Context, key models.HistoryKey) (*models.WatchHistory, error)
	// ListForUser returns rows ordered by lastWatchedAt descending
	ListForUser(ctx context.Context, userID uuid.UUID, filter models.HistoryFilter) ([]models.WatchHistory, error)
	// ListForProfileSince returns rows with lastWatchedAt >= since ordered by lastWatchedAt descending
	ListForProfileSince(ctx context.Context, userID, profileID uuid.UUID, since time.Time) ([]models.WatchHistory, error)

	// InsertDailyWatch returns ErrDuplicate when the row for that day already exists
	InsertDailyWatch(ctx context.Context, d models.DailyWatch) error
	ListDailySince(ctx context.Context, userID, profileID uuid.UUID, since time.Time) ([]models.DailyWatch, error)
}

// Store bundles the three stores handed to the services
type Store struct {
	Content ContentStore
	Users   UserStore
	History HistoryStore
}
