package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/liamwears/reelstream/internal/models"
	"github.com/liamwears/reelstream/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentStore(t *testing.T) {
	ctx := context.Background()
	st := New().Bundle()

	heat := &models.Content{Type: models.ContentTypeMovie, Title: "Heat", Genres: []string{"Crime"}}
	require.NoError(t, st.Content.Create(ctx, heat))
	assert.NotEqual(t, uuid.Nil, heat.ID)
	assert.ErrorIs(t, st.Content.Create(ctx, &models.Content{Title: "heat"}), store.ErrDuplicate)

	ronin := &models.Content{Type: models.ContentTypeMovie, Title: "Ronin"}
	require.NoError(t, st.Content.Create(ctx, ronin))

	t.Run("returned records do not alias stored state", func(t *testing.T) {
		got, err := st.Content.Get(ctx, heat.ID)
		require.NoError(t, err)
		got.Genres[0] = "Changed"

		again, err := st.Content.Get(ctx, heat.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"Crime"}, again.Genres)
	})

	t.Run("mutate passes fn errors through and writes nothing", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := st.Content.Mutate(ctx, heat.ID, func(c *models.Content) error {
			c.Title = "Changed"
			return boom
		})
		assert.ErrorIs(t, err, boom)

		got, err := st.Content.Get(ctx, heat.ID)
		require.NoError(t, err)
		assert.Equal(t, "Heat", got.Title)
	})

	t.Run("mutate keeps titles unique", func(t *testing.T) {
		_, err := st.Content.Mutate(ctx, heat.ID, func(c *models.Content) error {
			c.Title = "RONIN"
			return nil
		})
		assert.ErrorIs(t, err, store.ErrDuplicate)

		updated, err := st.Content.Mutate(ctx, heat.ID, func(c *models.Content) error {
			c.Title = "HEAT"
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, "HEAT", updated.Title)
	})

	t.Run("get many skips missing ids", func(t *testing.T) {
		got, err := st.Content.GetMany(ctx, []uuid.UUID{heat.ID, uuid.New()})
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, st.Content.Delete(ctx, ronin.ID))
		assert.ErrorIs(t, st.Content.Delete(ctx, ronin.ID), store.ErrNotFound)
		_, err := st.Content.Mutate(ctx, ronin.ID, func(c *models.Content) error { return nil })
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestUserStore_Profiles(t *testing.T) {
	ctx := context.Background()
	st := New().Bundle()

	assert.ErrorIs(t, st.Users.AddProfile(ctx, &models.Profile{UserID: uuid.New(), Name: "x"}, 5), store.ErrNotFound)

	user := &models.User{Email: "sam@example.com", Roles: []models.Role{models.RoleUser}}
	require.NoError(t, st.Users.Create(ctx, user))
	assert.ErrorIs(t, st.Users.Create(ctx, &models.User{Email: "SAM@example.com"}), store.ErrDuplicate)

	profiles, err := st.Users.ListProfiles(ctx, user.ID)
	require.NoError(t, err)
	assert.NotNil(t, profiles)
	assert.Empty(t, profiles)

	require.NoError(t, st.Users.AddProfile(ctx, &models.Profile{UserID: user.ID, Name: "One"}, 2))
	assert.ErrorIs(t, st.Users.AddProfile(ctx, &models.Profile{UserID: user.ID, Name: "one"}, 2), store.ErrDuplicate)
	require.NoError(t, st.Users.AddProfile(ctx, &models.Profile{UserID: user.ID, Name: "Two"}, 2))
	assert.ErrorIs(t, st.Users.AddProfile(ctx, &models.Profile{UserID: user.ID, Name: "Three"}, 2), store.ErrLimitReached)

	require.NoError(t, st.Users.Delete(ctx, user.ID))
	profiles, err = st.Users.ListProfiles(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, profiles)
}

func TestHistoryStore(t *testing.T) {
	ctx := context.Background()
	st := New().Bundle()
	key := models.HistoryKey{UserID: uuid.New(), ProfileID: uuid.New(), ContentID: uuid.New()}
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := st.History.ResetProgress(ctx, key, t0)
	assert.ErrorIs(t, err, store.ErrNotFound)

	liked, err := st.History.UpsertLike(ctx, key, true, t0)
	require.NoError(t, err)

	h, err := st.History.UpsertProgress(ctx, models.ProgressUpdate{Key: key, PositionSec: 300, Completed: true, At: t0.Add(time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, liked.ID, h.ID)
	assert.True(t, h.Liked)

	h, err = st.History.ResetProgress(ctx, key, t0.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Zero(t, h.PositionSec)
	assert.False(t, h.Completed)
	assert.True(t, h.Liked)

	rows, err := st.History.ListForProfileSince(ctx, key.UserID, key.ProfileID, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, rows)

	d := models.DailyWatch{UserID: key.UserID, ProfileID: key.ProfileID, ContentID: key.ContentID, Day: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, st.History.InsertDailyWatch(ctx, d))
	assert.ErrorIs(t, st.History.InsertDailyWatch(ctx, d), store.ErrDuplicate)
}
