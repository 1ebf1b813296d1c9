package models

import (
	"time"

	"github.com/google/uuid"
)

// HistoryKey identifies the single history row of a profile for a title
type HistoryKey struct {
	UserID    uuid.UUID
	ProfileID uuid.UUID
	ContentID uuid.UUID
}

// WatchHistory is the progress and like state of a profile for a title
type WatchHistory struct {
	ID            uuid.UUID `db:"id" json:"id"`
	UserID        uuid.UUID `db:"userId" json:"userId"`
	ProfileID     uuid.UUID `db:"profileId" json:"profileId"`
	ContentID     uuid.UUID `db:"contentId" json:"contentId"`
	SeasonNumber  *int      `db:"seasonNumber" json:"seasonNumber"`
	EpisodeNumber *int      `db:"episodeNumber" json:"episodeNumber"`
	PositionSec   float64   `db:"positionSec" json:"positionSec"`
	Completed     bool      `db:"completed" json:"completed"`
	Liked         bool      `db:"liked" json:"liked"`
	LastWatchedAt time.Time `db:"lastWatchedAt" json:"lastWatchedAt"`
}

// Key returns the uniqueness key of the row
func (h *WatchHistory) Key() HistoryKey {
	return HistoryKey{UserID: h.UserID, ProfileID: h.ProfileID, ContentID: h.ContentID}
}

// ProgressUpdate carries the mutable fields written by a playback event
type ProgressUpdate struct {
	Key           HistoryKey
	SeasonNumber  *int
	EpisodeNumber *int
	PositionSec   float64
	Completed     bool
	At            time.Time
}

// ProgressInput is the request body of a playback progress event
type ProgressInput struct {
	SeasonNumber  *int    `json:"seasonNumber"`
	EpisodeNumber *int    `json:"episodeNumber"`
	PositionSec   float64 `json:"positionSec"`
	Completed     bool    `json:"completed"`
}

// LikeInput is the request body of a like toggle
type LikeInput struct {
	Liked bool `json:"liked"`
}

// DailyWatch marks that a profile watched a title on a calendar day
type DailyWatch struct {
	UserID    uuid.UUID `db:"userId" json:"userId"`
	ProfileID uuid.UUID `db:"profileId" json:"profileId"`
	ContentID uuid.UUID `db:"contentId" json:"contentId"`
	Day       time.Time `db:"day" json:"day"`
}

// HistoryFilter represents the input for listing history
type HistoryFilter struct {
	ProfileID      *uuid.UUID
	Completed      *bool
	Liked          *bool
	IncludeContent bool
	IncludeProfile bool
	Limit          int
}

// ProfileSummary is the owning profile shown next to a history row
type ProfileSummary struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	AvatarPath *string   `json:"avatarPath"`
}

// HistoryEntry is a history row optionally joined with its title and profile
type HistoryEntry struct {
	WatchHistory
	Content *ContentSummary `json:"content,omitempty"`
	Profile *ProfileSummary `json:"profile,omitempty"`
}

// GenreCount is one bucket of the genre popularity statistic
type GenreCount struct {
	Genre string `json:"genre"`
	Count int    `json:"count"`
}

// DayCount is one bucket of the daily activity statistic
type DayCount struct {
	Day   string `json:"day"`
	Count int    `json:"count"`
}
