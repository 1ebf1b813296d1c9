package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/liamwears/reelstream/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTMDBServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /search/movie", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		switch r.URL.Query().Get("query") {
		case "Heat":
			assert.Equal(t, "1995", r.URL.Query().Get("year"))
			w.Write([]byte(`{"page":1,"results":[{"id":949,"vote_average":7.9},{"id":1,"vote_average":3}],"total_results":2}`))
		case "Broken":
			http.Error(w, `{"status_message":"boom"}`, http.StatusInternalServerError)
		default:
			w.Write([]byte(`{"page":1,"results":[],"total_results":0}`))
		}
	})
	mux.HandleFunc("GET /search/tv", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"page":1,"results":[{"id":70523,"vote_average":8.4}],"total_results":1}`))
	})
	mux.HandleFunc("GET /tv/70523/season/1/episode/2", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":1,"name":"Lies","vote_average":8.1}`))
	})
	mux.HandleFunc("GET /tv/70523/season/9/episode/1", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"status_code":34}`, http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestTMDBService_Rating(t *testing.T) {
	ctx := context.Background()
	srv := newTMDBServer(t)
	svc := NewTMDBService(TMDBConfig{APIKey: "test-key", BaseURL: srv.URL})

	t.Run("movie takes the best match", func(t *testing.T) {
		rating, err := svc.Rating(ctx, RatingQuery{Type: models.ContentTypeMovie, Title: "Heat", Year: 1995})
		require.NoError(t, err)
		assert.Equal(t, 7.9, rating)
	})

	t.Run("series and episode", func(t *testing.T) {
		rating, err := svc.Rating(ctx, RatingQuery{Type: models.ContentTypeSeries, Title: "Dark"})
		require.NoError(t, err)
		assert.Equal(t, 8.4, rating)

		rating, err = svc.Rating(ctx, RatingQuery{Type: models.ContentTypeSeries, Title: "Dark", Season: intPtr(1), Episode: intPtr(2)})
		require.NoError(t, err)
		assert.Equal(t, 8.1, rating)
	})

	t.Run("misses are not found", func(t *testing.T) {
		_, err := svc.Rating(ctx, RatingQuery{Type: models.ContentTypeMovie, Title: "Nothing Like This"})
		assert.ErrorIs(t, err, ErrRatingNotFound)

		_, err = svc.Rating(ctx, RatingQuery{Type: models.ContentTypeSeries, Title: "Dark", Season: intPtr(9), Episode: intPtr(1)})
		assert.ErrorIs(t, err, ErrRatingNotFound)
	})

	t.Run("server errors surface", func(t *testing.T) {
		_, err := svc.Rating(ctx, RatingQuery{Type: models.ContentTypeMovie, Title: "Broken"})
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrRatingNotFound)
		assert.Contains(t, err.Error(), "status 500")
	})

	t.Run("no api key", func(t *testing.T) {
		_, err := NewTMDBService(TMDBConfig{BaseURL: srv.URL}).Rating(ctx, RatingQuery{Type: models.ContentTypeMovie, Title: "Heat"})
		assert.ErrorIs(t, err, ErrRatingNotFound)
	})
}
