package services

import (
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"testing"
	"time"

	"github.com/liamwears/reelstream/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createSeries(t *testing.T, f *fixture, title string) *models.Content {
	t.Helper()
	series, err := f.content.CreateSeries(context.Background(), models.CreateContentInput{
		Title:  title,
		Year:   2019,
		Genres: []string{"Drama"},
	}, MediaFiles{})
	require.NoError(t, err)
	return series
}

func episodeInput(season, episode int) models.AddEpisodeInput {
	return models.AddEpisodeInput{SeasonNumber: season, EpisodeNumber: episode, Title: "Episode"}
}

func TestContentService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("creates a movie and queues enrichment", func(t *testing.T) {
		f := newFixture(t)
		movie, err := f.content.Create(ctx, models.CreateContentInput{
			Type:   models.ContentTypeMovie,
			Title:  "  Heat ",
			Year:   1995,
			Genres: []string{"Crime", "crime", " Thriller "},
		}, MediaFiles{Poster: upload("heat.jpg")})
		require.NoError(t, err)

		assert.Equal(t, "Heat", movie.Title)
		assert.Equal(t, []string{"Crime", "Thriller"}, movie.Genres)
		require.NotNil(t, movie.PosterPath)
		assert.Equal(t, "/uploads/posters/heat.jpg", *movie.PosterPath)
		assert.Nil(t, movie.VideoPath)

		jobs := f.queue.Jobs()
		require.Len(t, jobs, 1)
		assert.Equal(t, movie.ID, jobs[0].ContentID)
		assert.Nil(t, jobs[0].Season)
	})

	t.Run("title is unique case-insensitively", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.content.Create(ctx, models.CreateContentInput{Type: models.ContentTypeMovie, Title: "Heat"}, MediaFiles{})
		require.NoError(t, err)

		_, err = f.content.Create(ctx, models.CreateContentInput{Type: models.ContentTypeMovie, Title: "HEAT"},
			MediaFiles{Poster: upload("p.jpg"), Video: upload("v.mp4")})
		assertStatus(t, err, http.StatusConflict)
		assert.ElementsMatch(t, []string{"/uploads/posters/p.jpg", "/uploads/videos/v.mp4"}, f.files.removed)
	})

	t.Run("failed video upload removes the saved poster", func(t *testing.T) {
		f := newFixture(t)
		f.files.failName = "broken.mp4"
		_, err := f.content.Create(ctx, models.CreateContentInput{Type: models.ContentTypeMovie, Title: "Ronin"},
			MediaFiles{Poster: upload("ronin.jpg"), Video: upload("broken.mp4")})
		require.Error(t, err)
		assert.Equal(t, []string{"/uploads/posters/ronin.jpg"}, f.files.removed)
	})

	t.Run("validation", func(t *testing.T) {
		f := newFixture(t)
		f.content.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

		cases := []struct {
			name  string
			input models.CreateContentInput
		}{
			{"missing title", models.CreateContentInput{Type: models.ContentTypeMovie, Title: "  "}},
			{"unknown type", models.CreateContentInput{Type: "podcast", Title: "X"}},
			{"year too old", models.CreateContentInput{Type: models.ContentTypeMovie, Title: "X", Year: 1800}},
			{"year too far ahead", models.CreateContentInput{Type: models.ContentTypeMovie, Title: "X", Year: 2032}},
			{"actor without name", models.CreateContentInput{Type: models.ContentTypeMovie, Title: "X", Actors: []models.Actor{{Role: "Lead"}}}},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				_, err := f.content.Create(ctx, tc.input, MediaFiles{})
				assertStatus(t, err, http.StatusBadRequest)
			})
		}
	})
}

func TestContentService_List(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for _, in := range []models.CreateContentInput{
		{Type: models.ContentTypeMovie, Title: "Alien", Genres: []string{"Horror", "Sci-Fi"}},
		{Type: models.ContentTypeMovie, Title: "Aliens", Genres: []string{"Action", "Sci-Fi"}},
		{Type: models.ContentTypeSeries, Title: "Dark", Genres: []string{"Sci-Fi", "Mystery"}},
		{Type: models.ContentTypeMovie, Title: "Heat", Genres: []string{"Crime"}},
	} {
		_, err := f.content.Create(ctx, in, MediaFiles{})
		require.NoError(t, err)
	}

	t.Run("defaults", func(t *testing.T) {
		page, err := f.content.List(ctx, models.ContentFilter{})
		require.NoError(t, err)
		assert.Equal(t, 1, page.Page)
		assert.Equal(t, 4, page.Count)
		assert.Equal(t, 1, page.TotalPages)
		assert.Len(t, page.Results, 4)
	})

	t.Run("filters combine", func(t *testing.T) {
		page, err := f.content.List(ctx, models.ContentFilter{Type: models.ContentTypeMovie, Genres: []string{"sci-fi"}})
		require.NoError(t, err)
		require.Len(t, page.Results, 2)
		assert.Equal(t, "Alien", page.Results[0].Title)
		assert.Equal(t, "Aliens", page.Results[1].Title)

		page, err = f.content.List(ctx, models.ContentFilter{Title: "alien", Genres: []string{"Horror"}})
		require.NoError(t, err)
		require.Len(t, page.Results, 1)
		assert.Equal(t, "Alien", page.Results[0].Title)
	})

	t.Run("pagination", func(t *testing.T) {
		page, err := f.content.List(ctx, models.ContentFilter{Page: 2, Limit: 3})
		require.NoError(t, err)
		assert.Equal(t, 2, page.TotalPages)
		require.Len(t, page.Results, 1)
		assert.Equal(t, "Heat", page.Results[0].Title)

		page, err = f.content.List(ctx, models.ContentFilter{Page: 5, Limit: 3})
		require.NoError(t, err)
		assert.Empty(t, page.Results)
	})

	t.Run("invalid limit", func(t *testing.T) {
		_, err := f.content.List(ctx, models.ContentFilter{Limit: 101})
		assertStatus(t, err, http.StatusBadRequest)
		_, err = f.content.List(ctx, models.ContentFilter{Limit: -1})
		assertStatus(t, err, http.StatusBadRequest)
	})
}

func TestContentService_UpdateAndRemove(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	movie, err := f.content.Create(ctx, models.CreateContentInput{Type: models.ContentTypeMovie, Title: "Heat", Year: 1995},
		MediaFiles{Poster: upload("heat.jpg")})
	require.NoError(t, err)
	_, err = f.content.Create(ctx, models.CreateContentInput{Type: models.ContentTypeMovie, Title: "Ronin"}, MediaFiles{})
	require.NoError(t, err)

	genres := []string{"Crime", "Drama"}
	updated, err := f.content.Update(ctx, movie.ID, models.UpdateContentInput{
		Synopsis: strPtr("A heist crew."),
		Genres:   &genres,
	})
	require.NoError(t, err)
	assert.Equal(t, "A heist crew.", updated.Synopsis)
	assert.Equal(t, genres, updated.Genres)
	assert.Equal(t, 1995, updated.Year)

	_, err = f.content.Update(ctx, movie.ID, models.UpdateContentInput{Title: strPtr("ronin")})
	assertStatus(t, err, http.StatusConflict)

	_, err = f.content.Update(ctx, movie.ID, models.UpdateContentInput{Title: strPtr(" ")})
	assertStatus(t, err, http.StatusBadRequest)

	require.NoError(t, f.content.Remove(ctx, movie.ID))
	assert.Contains(t, f.files.removed, "/uploads/posters/heat.jpg")

	_, err = f.content.Get(ctx, movie.ID)
	assertStatus(t, err, http.StatusNotFound)
	assertStatus(t, f.content.Remove(ctx, movie.ID), http.StatusNotFound)
}

func TestContentService_Episodes(t *testing.T) {
	ctx := context.Background()

	t.Run("adding episodes grows seasons", func(t *testing.T) {
		f := newFixture(t)
		series := createSeries(t, f, "Dark")
		assert.Equal(t, 0, series.NumberOfSeasons)
		assert.Empty(t, series.Seasons)

		_, err := f.content.AddEpisode(ctx, series.ID, episodeInput(1, 1), MediaFiles{})
		require.NoError(t, err)

		_, err = f.content.AddEpisode(ctx, series.ID, episodeInput(1, 1), MediaFiles{Video: upload("dup.mp4")})
		svcErr := assertStatus(t, err, http.StatusConflict)
		assert.Equal(t, "season 1 episode 1 already exists", svcErr.Message)
		assert.Equal(t, []string{"/uploads/videos/dup.mp4"}, f.files.removed)

		_, err = f.content.AddEpisode(ctx, series.ID, episodeInput(2, 1), MediaFiles{})
		require.NoError(t, err)
		_, err = f.content.AddEpisode(ctx, series.ID, episodeInput(1, 2), MediaFiles{})
		require.NoError(t, err)

		got, err := f.content.Get(ctx, series.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, got.NumberOfSeasons)
		require.Len(t, got.Seasons, 2)
		assert.Equal(t, 1, got.Seasons[0].SeasonNumber)
		require.Len(t, got.Seasons[0].Episodes, 2)
		assert.Equal(t, 2, got.Seasons[0].Episodes[1].EpisodeNumber)

		// one job for the series and one per episode
		jobs := f.queue.Jobs()
		require.Len(t, jobs, 4)
		require.NotNil(t, jobs[1].Season)
		assert.Equal(t, "Dark", jobs[1].Title)
		assert.Equal(t, 1, *jobs[1].Episode)
	})

	t.Run("rejects movies and unknown ids", func(t *testing.T) {
		f := newFixture(t)
		movie, err := f.content.Create(ctx, models.CreateContentInput{Type: models.ContentTypeMovie, Title: "Heat"}, MediaFiles{})
		require.NoError(t, err)

		_, err = f.content.AddEpisode(ctx, movie.ID, episodeInput(1, 1), MediaFiles{})
		assertStatus(t, err, http.StatusBadRequest)

		series := createSeries(t, f, "Dark")
		_, err = f.content.AddEpisode(ctx, movie.ID, models.AddEpisodeInput{SeasonNumber: 0, EpisodeNumber: 1, Title: "x"}, MediaFiles{})
		assertStatus(t, err, http.StatusBadRequest)
		_, err = f.content.AddEpisode(ctx, series.ID, models.AddEpisodeInput{SeasonNumber: 1, EpisodeNumber: 1}, MediaFiles{})
		assertStatus(t, err, http.StatusBadRequest)
	})

	t.Run("update and remove", func(t *testing.T) {
		f := newFixture(t)
		series := createSeries(t, f, "Dark")
		_, err := f.content.AddEpisode(ctx, series.ID, episodeInput(1, 1), MediaFiles{})
		require.NoError(t, err)
		_, err = f.content.AddEpisode(ctx, series.ID, episodeInput(2, 1), MediaFiles{Poster: upload("s2.jpg")})
		require.NoError(t, err)

		ep, err := f.content.UpdateEpisode(ctx, series.ID, 1, 1, models.UpdateEpisodeInput{
			Title:       strPtr("Secrets"),
			NextEpisode: &models.EpisodeRef{Season: 2, Episode: 1},
		})
		require.NoError(t, err)
		assert.Equal(t, "Secrets", ep.Title)
		assert.Equal(t, &models.EpisodeRef{Season: 2, Episode: 1}, ep.NextEpisode)

		_, err = f.content.UpdateEpisode(ctx, series.ID, 3, 1, models.UpdateEpisodeInput{Title: strPtr("x")})
		assertStatus(t, err, http.StatusNotFound)

		require.NoError(t, f.content.RemoveEpisode(ctx, series.ID, 2, 1))
		assert.Contains(t, f.files.removed, "/uploads/posters/s2.jpg")

		got, err := f.content.Get(ctx, series.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.NumberOfSeasons)
		assert.Len(t, got.Seasons, 1)

		assertStatus(t, f.content.RemoveEpisode(ctx, series.ID, 2, 1), http.StatusNotFound)
	})
}

func TestContentService_DuplicateEpisodeRegardlessOfOrder(t *testing.T) {
	ctx := context.Background()
	orders := map[string][][2]int{
		"ascending":          {{1, 1}, {1, 3}, {2, 1}},
		"out of order":       {{2, 1}, {1, 3}, {1, 1}},
		"later season first": {{3, 2}, {1, 2}, {3, 1}, {2, 5}},
	}

	for name, pairs := range orders {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			series := createSeries(t, f, "Dark")
			for _, p := range pairs {
				_, err := f.content.AddEpisode(ctx, series.ID, episodeInput(p[0], p[1]), MediaFiles{})
				require.NoError(t, err)
			}

			for _, p := range pairs {
				_, err := f.content.AddEpisode(ctx, series.ID, episodeInput(p[0], p[1]), MediaFiles{})
				svcErr := assertStatus(t, err, http.StatusConflict)
				assert.Equal(t, fmt.Sprintf("season %d episode %d already exists", p[0], p[1]), svcErr.Message)
			}

			stored, err := f.content.Get(ctx, series.ID)
			require.NoError(t, err)
			total := 0
			for i, season := range stored.Seasons {
				if i > 0 {
					assert.Less(t, stored.Seasons[i-1].SeasonNumber, season.SeasonNumber)
				}
				for j := 1; j < len(season.Episodes); j++ {
					assert.Less(t, season.Episodes[j-1].EpisodeNumber, season.Episodes[j].EpisodeNumber)
				}
				total += len(season.Episodes)
			}
			assert.Equal(t, len(pairs), total)
		})
	}
}

func TestContentService_AddEpisodesBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("adds every episode with its files", func(t *testing.T) {
		f := newFixture(t)
		series := createSeries(t, f, "Dark")

		episodes, err := f.content.AddEpisodesBatch(ctx, series.ID,
			[]models.AddEpisodeInput{episodeInput(1, 1), episodeInput(1, 2), episodeInput(2, 1)},
			map[string]*multipart.FileHeader{"poster_1": upload("e2.jpg"), "video_2": upload("e3.mp4")})
		require.NoError(t, err)
		require.Len(t, episodes, 3)
		assert.Nil(t, episodes[0].PosterPath)
		require.NotNil(t, episodes[1].PosterPath)
		assert.Equal(t, "/uploads/posters/e2.jpg", *episodes[1].PosterPath)
		require.NotNil(t, episodes[2].VideoPath)

		got, err := f.content.Get(ctx, series.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, got.NumberOfSeasons)
	})

	t.Run("repeated pair in the batch applies nothing", func(t *testing.T) {
		f := newFixture(t)
		series := createSeries(t, f, "Dark")

		_, err := f.content.AddEpisodesBatch(ctx, series.ID,
			[]models.AddEpisodeInput{episodeInput(1, 1), episodeInput(1, 2), episodeInput(1, 1)}, nil)
		svcErr := assertStatus(t, err, http.StatusConflict)
		assert.Equal(t, []EpisodeConflict{{Season: 1, Episode: 1}}, svcErr.Details)

		got, err := f.content.Get(ctx, series.ID)
		require.NoError(t, err)
		assert.Empty(t, got.Seasons)
	})

	t.Run("existing pair applies nothing and rolls back uploads", func(t *testing.T) {
		f := newFixture(t)
		series := createSeries(t, f, "Dark")
		_, err := f.content.AddEpisode(ctx, series.ID, episodeInput(1, 2), MediaFiles{})
		require.NoError(t, err)

		_, err = f.content.AddEpisodesBatch(ctx, series.ID,
			[]models.AddEpisodeInput{episodeInput(1, 1), episodeInput(1, 2)},
			map[string]*multipart.FileHeader{"video_0": upload("e1.mp4")})
		svcErr := assertStatus(t, err, http.StatusConflict)
		assert.Equal(t, "1 episode(s) already exist", svcErr.Message)
		assert.Equal(t, []string{"/uploads/videos/e1.mp4"}, f.files.removed)

		got, err := f.content.Get(ctx, series.ID)
		require.NoError(t, err)
		require.Len(t, got.Seasons, 1)
		assert.Len(t, got.Seasons[0].Episodes, 1)
	})

	t.Run("empty batch", func(t *testing.T) {
		f := newFixture(t)
		series := createSeries(t, f, "Dark")
		_, err := f.content.AddEpisodesBatch(ctx, series.ID, nil, nil)
		svcErr := assertStatus(t, err, http.StatusBadRequest)
		assert.Equal(t, "episodes list is empty", svcErr.Message)
	})
}
