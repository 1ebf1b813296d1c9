package services

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/liamwears/reelstream/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type viewer struct {
	user    *models.User
	profile models.Profile
}

// newViewer registers an account named after the email's local part, so
// sam@example.com gets the default profile "Sam"
func newViewer(t *testing.T, f *fixture, email string) viewer {
	t.Helper()
	local, _, _ := strings.Cut(email, "@")
	name := strings.ToUpper(local[:1]) + local[1:]
	user, err := f.users.Register(context.Background(), models.RegisterInput{Email: email, Password: "password123", Name: name})
	require.NoError(t, err)
	require.Len(t, user.Profiles, 1)
	return viewer{user: user, profile: user.Profiles[0]}
}

func TestHistoryService_UpsertProgress(t *testing.T) {
	ctx := context.Background()

	t.Run("one row per profile and title", func(t *testing.T) {
		f := newFixture(t)
		v := newViewer(t, f, "sam@example.com")
		movie, err := f.content.Create(ctx, models.CreateContentInput{Type: models.ContentTypeMovie, Title: "Heat"}, MediaFiles{})
		require.NoError(t, err)

		first, err := f.history.UpsertProgress(ctx, v.user.ID, v.profile.ID, movie.ID, models.ProgressInput{PositionSec: 120})
		require.NoError(t, err)
		second, err := f.history.UpsertProgress(ctx, v.user.ID, v.profile.ID, movie.ID, models.ProgressInput{PositionSec: 3600, Completed: true})
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)

		entries, err := f.history.ListForUser(ctx, v.user.ID, models.HistoryFilter{})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, float64(3600), entries[0].PositionSec)
		assert.True(t, entries[0].Completed)
	})

	t.Run("negative position is clamped", func(t *testing.T) {
		f := newFixture(t)
		v := newViewer(t, f, "sam@example.com")
		movie, err := f.content.Create(ctx, models.CreateContentInput{Type: models.ContentTypeMovie, Title: "Heat"}, MediaFiles{})
		require.NoError(t, err)

		h, err := f.history.UpsertProgress(ctx, v.user.ID, v.profile.ID, movie.ID, models.ProgressInput{PositionSec: -5})
		require.NoError(t, err)
		assert.Zero(t, h.PositionSec)
	})

	t.Run("episode references are checked", func(t *testing.T) {
		f := newFixture(t)
		v := newViewer(t, f, "sam@example.com")
		movie, err := f.content.Create(ctx, models.CreateContentInput{Type: models.ContentTypeMovie, Title: "Heat"}, MediaFiles{})
		require.NoError(t, err)
		series := createSeries(t, f, "Dark")
		_, err = f.content.AddEpisode(ctx, series.ID, episodeInput(1, 1), MediaFiles{})
		require.NoError(t, err)

		_, err = f.history.UpsertProgress(ctx, v.user.ID, v.profile.ID, series.ID, models.ProgressInput{SeasonNumber: intPtr(1)})
		assertStatus(t, err, http.StatusBadRequest)

		_, err = f.history.UpsertProgress(ctx, v.user.ID, v.profile.ID, movie.ID, models.ProgressInput{SeasonNumber: intPtr(1), EpisodeNumber: intPtr(1)})
		assertStatus(t, err, http.StatusBadRequest)

		_, err = f.history.UpsertProgress(ctx, v.user.ID, v.profile.ID, series.ID, models.ProgressInput{SeasonNumber: intPtr(1), EpisodeNumber: intPtr(9)})
		assertStatus(t, err, http.StatusNotFound)

		_, err = f.history.UpsertProgress(ctx, v.user.ID, v.profile.ID, uuid.New(), models.ProgressInput{})
		assertStatus(t, err, http.StatusNotFound)

		h, err := f.history.UpsertProgress(ctx, v.user.ID, v.profile.ID, series.ID, models.ProgressInput{SeasonNumber: intPtr(1), EpisodeNumber: intPtr(1), PositionSec: 60})
		require.NoError(t, err)
		assert.Equal(t, 1, *h.EpisodeNumber)
	})

	t.Run("daily presence is written once per day", func(t *testing.T) {
		f := newFixture(t)
		v := newViewer(t, f, "sam@example.com")
		movie, err := f.content.Create(ctx, models.CreateContentInput{Type: models.ContentTypeMovie, Title: "Heat"}, MediaFiles{})
		require.NoError(t, err)

		day := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
		f.history.now = func() time.Time { return day }
		for i := 0; i < 3; i++ {
			_, err := f.history.UpsertProgress(ctx, v.user.ID, v.profile.ID, movie.ID, models.ProgressInput{PositionSec: float64(i * 10)})
			require.NoError(t, err)
		}
		f.history.now = func() time.Time { return day.Add(24 * time.Hour) }
		_, err = f.history.UpsertProgress(ctx, v.user.ID, v.profile.ID, movie.ID, models.ProgressInput{PositionSec: 40})
		require.NoError(t, err)

		rows, err := f.store.History.ListDailySince(ctx, v.user.ID, v.profile.ID, day.AddDate(0, 0, -1))
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "2026-03-10", rows[0].Day.Format("2006-01-02"))
		assert.Equal(t, "2026-03-11", rows[1].Day.Format("2006-01-02"))
	})
}

func TestHistoryService_LikeAndReset(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	v := newViewer(t, f, "sam@example.com")
	movie, err := f.content.Create(ctx, models.CreateContentInput{Type: models.ContentTypeMovie, Title: "Heat"}, MediaFiles{})
	require.NoError(t, err)

	_, err = f.history.ResetProgress(ctx, v.user.ID, v.profile.ID, movie.ID)
	assertStatus(t, err, http.StatusNotFound)

	// liking before watching creates the row
	h, err := f.history.ToggleLike(ctx, v.user.ID, v.profile.ID, movie.ID, true)
	require.NoError(t, err)
	assert.True(t, h.Liked)
	assert.Zero(t, h.PositionSec)

	h, err = f.history.UpsertProgress(ctx, v.user.ID, v.profile.ID, movie.ID, models.ProgressInput{PositionSec: 900, Completed: true})
	require.NoError(t, err)
	assert.True(t, h.Liked, "progress must not touch liked")

	h, err = f.history.ResetProgress(ctx, v.user.ID, v.profile.ID, movie.ID)
	require.NoError(t, err)
	assert.Zero(t, h.PositionSec)
	assert.False(t, h.Completed)
	assert.True(t, h.Liked, "reset must not touch liked")

	h, err = f.history.ToggleLike(ctx, v.user.ID, v.profile.ID, movie.ID, false)
	require.NoError(t, err)
	assert.False(t, h.Liked)

	_, err = f.history.ToggleLike(ctx, v.user.ID, v.profile.ID, uuid.New(), true)
	assertStatus(t, err, http.StatusNotFound)
}

func TestHistoryService_ListForUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	v := newViewer(t, f, "sam@example.com")
	kids, err := f.users.AddProfile(ctx, v.user.ID, "Kids", nil)
	require.NoError(t, err)

	heat, err := f.content.Create(ctx, models.CreateContentInput{Type: models.ContentTypeMovie, Title: "Heat", Genres: []string{"Crime"}}, MediaFiles{})
	require.NoError(t, err)
	up, err := f.content.Create(ctx, models.CreateContentInput{Type: models.ContentTypeMovie, Title: "Up", Genres: []string{"Animation"}}, MediaFiles{})
	require.NoError(t, err)

	base := time.Date(2026, 3, 10, 20, 0, 0, 0, time.UTC)
	f.history.now = func() time.Time { return base }
	_, err = f.history.UpsertProgress(ctx, v.user.ID, v.profile.ID, heat.ID, models.ProgressInput{PositionSec: 10})
	require.NoError(t, err)
	f.history.now = func() time.Time { return base.Add(time.Hour) }
	_, err = f.history.UpsertProgress(ctx, v.user.ID, kids.ID, up.ID, models.ProgressInput{PositionSec: 5000, Completed: true})
	require.NoError(t, err)
	_, err = f.history.ToggleLike(ctx, v.user.ID, kids.ID, heat.ID, true)
	require.NoError(t, err)

	// another account's rows never show up
	other := newViewer(t, f, "other@example.com")
	_, err = f.history.UpsertProgress(ctx, other.user.ID, other.profile.ID, heat.ID, models.ProgressInput{})
	require.NoError(t, err)

	t.Run("most recent first with joins", func(t *testing.T) {
		entries, err := f.history.ListForUser(ctx, v.user.ID, models.HistoryFilter{IncludeContent: true, IncludeProfile: true})
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, base, entries[2].LastWatchedAt)
		require.NotNil(t, entries[2].Content)
		assert.Equal(t, "Heat", entries[2].Content.Title)
		require.NotNil(t, entries[2].Profile)
		assert.Equal(t, "Sam", entries[2].Profile.Name)
	})

	t.Run("filters", func(t *testing.T) {
		liked := true
		entries, err := f.history.ListForUser(ctx, v.user.ID, models.HistoryFilter{Liked: &liked})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Nil(t, entries[0].Content)

		completed := true
		entries, err = f.history.ListForUser(ctx, v.user.ID, models.HistoryFilter{ProfileID: &kids.ID, Completed: &completed})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, up.ID, entries[0].ContentID)

		entries, err = f.history.ListForUser(ctx, v.user.ID, models.HistoryFilter{Limit: 1})
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("rows outlive their profile and content", func(t *testing.T) {
		require.NoError(t, f.users.DeleteProfile(ctx, v.user.ID, kids.ID))
		require.NoError(t, f.content.Remove(ctx, up.ID))

		entries, err := f.history.ListForUser(ctx, v.user.ID, models.HistoryFilter{ProfileID: &kids.ID, IncludeContent: true, IncludeProfile: true})
		require.NoError(t, err)
		require.Len(t, entries, 2)
		for _, e := range entries {
			assert.Nil(t, e.Profile)
		}
		var orphaned int
		for _, e := range entries {
			if e.Content == nil {
				orphaned++
			}
		}
		assert.Equal(t, 1, orphaned)
	})
}
