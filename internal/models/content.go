package models

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ContentType distinguishes movies from series
type ContentType string

const (
	ContentTypeMovie  ContentType = "movie"
	ContentTypeSeries ContentType = "series"
)

// IsValid checks if the content type is known
func (t ContentType) IsValid() bool {
	return t == ContentTypeMovie || t == ContentTypeSeries
}

// Actor is a cast member credited on a title or an episode
type Actor struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

// EpisodeRef points at an episode of the same series
type EpisodeRef struct {
	Season  int `json:"season"`
	Episode int `json:"episode"`
}

// Episode is a single episode inside a season
type Episode struct {
	ID              uuid.UUID   `json:"id"`
	SeasonNumber    int         `json:"seasonNumber"`
	EpisodeNumber   int         `json:"episodeNumber"`
	Title           string      `json:"title"`
	Synopsis        string      `json:"synopsis"`
	Director        string      `json:"director"`
	Actors          []Actor     `json:"actors"`
	PosterPath      *string     `json:"posterPath"`
	VideoPath       *string     `json:"videoPath"`
	NextEpisode     *EpisodeRef `json:"nextEpisode,omitempty"`
	Rating          *float64    `json:"rating"`
	RatingUpdatedAt *time.Time  `json:"ratingUpdatedAt,omitempty"`
}

// Season groups the episodes of a series
type Season struct {
	SeasonNumber int       `json:"seasonNumber"`
	Episodes     []Episode `json:"episodes"`
}

// Content is a movie or a series in the catalog
type Content struct {
	ID              uuid.UUID   `db:"id" json:"id"`
	Type            ContentType `db:"type" json:"type"`
	Title           string      `db:"title" json:"title"`
	Year            int         `db:"year" json:"year"`
	Genres          []string    `db:"genres" json:"genres"`
	Director        string      `db:"director" json:"director"`
	Actors          []Actor     `db:"actors" json:"actors"`
	Synopsis        string      `db:"synopsis" json:"synopsis"`
	PosterPath      *string     `db:"posterPath" json:"posterPath"`
	VideoPath       *string     `db:"videoPath" json:"videoPath"`
	Rating          *float64    `db:"rating" json:"rating"`
	RatingUpdatedAt *time.Time  `db:"ratingUpdatedAt" json:"ratingUpdatedAt,omitempty"`
	NumberOfSeasons int         `db:"numberOfSeasons" json:"numberOfSeasons"`
	Seasons         []Season    `db:"seasons" json:"seasons"`
	CreatedAt       time.Time   `db:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time   `db:"updatedAt" json:"updatedAt"`
}

// FindSeason returns the season with the given number, or nil
func (c *Content) FindSeason(number int) *Season {
	for i := range c.Seasons {
		if c.Seasons[i].SeasonNumber == number {
			return &c.Seasons[i]
		}
	}
	return nil
}

// FindEpisode returns the episode at (season, episode), or nil
func (c *Content) FindEpisode(season, episode int) *Episode {
	s := c.FindSeason(season)
	if s == nil {
		return nil
	}
	for i := range s.Episodes {
		if s.Episodes[i].EpisodeNumber == episode {
			return &s.Episodes[i]
		}
	}
	return nil
}

// SortSeasons orders seasons and their episodes by number
func (c *Content) SortSeasons() {
	sort.SliceStable(c.Seasons, func(i, j int) bool {
		return c.Seasons[i].SeasonNumber < c.Seasons[j].SeasonNumber
	})
	for i := range c.Seasons {
		eps := c.Seasons[i].Episodes
		sort.SliceStable(eps, func(a, b int) bool {
			return eps[a].EpisodeNumber < eps[b].EpisodeNumber
		})
	}
}

// Clone returns a deep copy so callers can mutate without aliasing stored state
func (c Content) Clone() Content {
	out := c
	out.Genres = cloneSlice(c.Genres)
	out.Actors = cloneSlice(c.Actors)
	out.Seasons = make([]Season, len(c.Seasons))
	for i, s := range c.Seasons {
		out.Seasons[i] = Season{SeasonNumber: s.SeasonNumber, Episodes: make([]Episode, len(s.Episodes))}
		for j, ep := range s.Episodes {
			ep.Actors = cloneSlice(ep.Actors)
			out.Seasons[i].Episodes[j] = ep
		}
	}
	return out
}

// cloneSlice copies s into a new slice that is never nil, so empty lists
// encode as [] rather than null
func cloneSlice[T any](s []T) []T {
	out := make([]T, len(s))
	copy(out, s)
	return out
}

// Summary is the short form of a title joined into history rows
func (c *Content) Summary() ContentSummary {
	return ContentSummary{
		ID:         c.ID,
		Type:       c.Type,
		Title:      c.Title,
		PosterPath: c.PosterPath,
		Year:       c.Year,
		Genres:     cloneSlice(c.Genres),
	}
}

// ContentSummary is the subset of a title shown next to history and stats
type ContentSummary struct {
	ID         uuid.UUID   `json:"id"`
	Type       ContentType `json:"type"`
	Title      string      `json:"title"`
	PosterPath *string     `json:"posterPath"`
	Year       int         `json:"year"`
	Genres     []string    `json:"genres"`
}

// NormalizeGenres trims genres and drops case-insensitive duplicates, keeping first casing
func NormalizeGenres(genres []string) []string {
	seen := make(map[string]bool, len(genres))
	out := make([]string, 0, len(genres))
	for _, g := range genres {
		g = strings.TrimSpace(g)
		if g == "" {
			continue
		}
		key := strings.ToLower(g)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, g)
	}
	return out
}

// CreateContentInput represents the input for creating a movie or a series
type CreateContentInput struct {
	Type     ContentType `json:"type"`
	Title    string      `json:"title"`
	Year     int         `json:"year"`
	Genres   []string    `json:"genres"`
	Director string      `json:"director"`
	Actors   []Actor     `json:"actors"`
	Synopsis string      `json:"synopsis"`
}

// UpdateContentInput lists the fields a title update may touch
type UpdateContentInput struct {
	Title    *string   `json:"title,omitempty"`
	Year     *int      `json:"year,omitempty"`
	Genres   *[]string `json:"genres,omitempty"`
	Director *string   `json:"director,omitempty"`
	Actors   *[]Actor  `json:"actors,omitempty"`
	Synopsis *string   `json:"synopsis,omitempty"`
}

// AddEpisodeInput represents one episode to append to a series
type AddEpisodeInput struct {
	SeasonNumber  int         `json:"seasonNumber"`
	EpisodeNumber int         `json:"episodeNumber"`
	Title         string      `json:"title"`
	Synopsis      string      `json:"synopsis"`
	Director      string      `json:"director"`
	Actors        []Actor     `json:"actors"`
	NextEpisode   *EpisodeRef `json:"nextEpisode,omitempty"`
}

// UpdateEpisodeInput lists the fields an episode update may touch
type UpdateEpisodeInput struct {
	Title       *string     `json:"title,omitempty"`
	Synopsis    *string     `json:"synopsis,omitempty"`
	Director    *string     `json:"director,omitempty"`
	Actors      *[]Actor    `json:"actors,omitempty"`
	NextEpisode *EpisodeRef `json:"nextEpisode,omitempty"`
}

// ContentFilter represents the input for listing content.
// Page below 1 means 1 and Limit 0 means 24; any other Limit must be 1..100.
type ContentFilter struct {
	Type   ContentType
	Title  string
	Genres []string
	Page   int
	Limit  int
}

// PaginatedContent represents a paginated list of titles
type PaginatedContent struct {
	Results    []Content `json:"results"`
	Page       int       `json:"page"`
	Count      int       `json:"count"`
	TotalPages int       `json:"totalPages"`
}
