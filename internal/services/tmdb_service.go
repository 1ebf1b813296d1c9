package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/liamwears/reelstream/internal/models"
)

// ErrRatingNotFound is returned by a RatingProvider that has no rating for the query
var ErrRatingNotFound = errors.New("rating not found")

// RatingQuery identifies a title, or one episode of a series, to look up
type RatingQuery struct {
	Type    models.ContentType
	Title   string
	Year    int
	Season  *int
	Episode *int
}

// RatingProvider looks up an external rating
type RatingProvider interface {
	Rating(ctx context.Context, q RatingQuery) (float64, error)
}

// TMDBService looks up ratings on The Movie Database API
type TMDBService struct {
	client  *http.Client
	apiKey  string
	baseURL string
}

// TMDBConfig holds TMDB service configuration
type TMDBConfig struct {
	APIKey  string
	BaseURL string
}

// NewTMDBService creates a new TMDB service; without an API key every lookup is ErrRatingNotFound
func NewTMDBService(cfg TMDBConfig) *TMDBService {
	return &TMDBService{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
	}
}

type tmdbSearchResult struct {
	ID          int     `json:"id"`
	VoteAverage float64 `json:"vote_average"`
}

type tmdbSearchResponse struct {
	Page         int                `json:"page"`
	Results      []tmdbSearchResult `json:"results"`
	TotalResults int                `json:"total_results"`
}

type tmdbEpisode struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	VoteAverage float64 `json:"vote_average"`
}

type tmdbStatusError struct {
	Status int
	Body   string
}

func (e *tmdbStatusError) Error() string {
	return fmt.Sprintf("TMDB API error: status %d, body: %s", e.Status, e.Body)
}

// doRequest performs an HTTP request to TMDB API and decodes the JSON body into out
func (s *TMDBService) doRequest(ctx context.Context, endpoint string, params map[string]string, out interface{}) error {
	url := fmt.Sprintf("%s%s", s.baseURL, endpoint)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	// Add authorization header
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", s.apiKey))
	req.Header.Set("Accept", "application/json")

	// Add query parameters
	q := req.URL.Query()
	q.Add("language", "en-US")
	q.Add("include_adult", "false")
	for key, value := range params {
		q.Add(key, value)
	}
	req.URL.RawQuery = q.Encode()

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return &tmdbStatusError{Status: resp.StatusCode, Body: string(body)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal TMDB response: %w", err)
	}
	return nil
}

func (s *TMDBService) search(ctx context.Context, endpoint, yearParam string, q RatingQuery) (*tmdbSearchResult, error) {
	params := map[string]string{"query": q.Title, "page": "1"}
	if q.Year > 0 {
		params[yearParam] = strconv.Itoa(q.Year)
	}

	var response tmdbSearchResponse
	if err := s.doRequest(ctx, endpoint, params, &response); err != nil {
		return nil, err
	}
	if len(response.Results) == 0 {
		return nil, ErrRatingNotFound
	}
	return &response.Results[0], nil
}

// Rating returns the TMDB vote average of the best match for q
func (s *TMDBService) Rating(ctx context.Context, q RatingQuery) (float64, error) {
	if s.apiKey == "" || q.Title == "" {
		return 0, ErrRatingNotFound
	}

	rating, err := s.lookup(ctx, q)
	var statusErr *tmdbStatusError
	if errors.As(err, &statusErr) && statusErr.Status == http.StatusNotFound {
		return 0, ErrRatingNotFound
	}
	return rating, err
}

func (s *TMDBService) lookup(ctx context.Context, q RatingQuery) (float64, error) {
	if q.Type == models.ContentTypeMovie {
		match, err := s.search(ctx, "/search/movie", "year", q)
		if err != nil {
			return 0, err
		}
		return match.VoteAverage, nil
	}

	show, err := s.search(ctx, "/search/tv", "first_air_date_year", q)
	if err != nil {
		return 0, err
	}
	if q.Season == nil || q.Episode == nil {
		return show.VoteAverage, nil
	}

	var episode tmdbEpisode
	endpoint := fmt.Sprintf("/tv/%d/season/%d/episode/%d", show.ID, *q.Season, *q.Episode)
	if err := s.doRequest(ctx, endpoint, nil, &episode); err != nil {
		return 0, err
	}
	return episode.VoteAverage, nil
}
