// Package memory is an in-process implementation of the store interfaces.
// It backs STORE_DRIVER=memory and the service tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/liamwears/reelstream/internal/models"
	"github.com/liamwears/reelstream/internal/store"
)

type dailyKey struct {
	key models.HistoryKey
	day string
}

// Store keeps every record in maps guarded by a single mutex
type Store struct {
	mu       sync.Mutex
	content  map[uuid.UUID]models.Content
	users    map[uuid.UUID]models.User
	profiles map[uuid.UUID]models.Profile
	history  map[models.HistoryKey]models.WatchHistory
	daily    map[dailyKey]models.DailyWatch
}

// New creates an empty Store
func New() *Store {
	return &Store{
		content:  make(map[uuid.UUID]models.Content),
		users:    make(map[uuid.UUID]models.User),
		profiles: make(map[uuid.UUID]models.Profile),
		history:  make(map[models.HistoryKey]models.WatchHistory),
		daily:    make(map[dailyKey]models.DailyWatch),
	}
}

// Bundle exposes s through the store.Store aggregate
func (s *Store) Bundle() store.Store {
	return store.Store{
		Content: (*contentStore)(s),
		Users:   (*userStore)(s),
		History: (*historyStore)(s),
	}
}

type contentStore Store

func (s *contentStore) titleTaken(title string, except uuid.UUID) bool {
	lower := strings.ToLower(title)
	for id, c := range s.content {
		if id != except && strings.ToLower(c.Title) == lower {
			return true
		}
	}
	return false
}

func (s *contentStore) Create(ctx context.Context, c *models.Content) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.titleTaken(c.Title, uuid.Nil) {
		return store.ErrDuplicate
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	s.content[c.ID] = c.Clone()
	return nil
}

func (s *contentStore) Get(ctx context.Context, id uuid.UUID) (*models.Content, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.content[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := c.Clone()
	return &out, nil
}

func (s *contentStore) GetMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Content, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[uuid.UUID]models.Content, len(ids))
	for _, id := range ids {
		if c, ok := s.content[id]; ok {
			out[id] = c.Clone()
		}
	}
	return out, nil
}

func hasAllGenres(have, want []string) bool {
	for _, w := range want {
		found := false
		for _, h := range have {
			if strings.EqualFold(h, w) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (s *contentStore) List(ctx context.Context, filter models.ContentFilter) ([]models.Content, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := strings.ToLower(filter.Title)
	var matched []models.Content
	for _, c := range s.content {
		if filter.Type != "" && c.Type != filter.Type {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(c.Title), query) {
			continue
		}
		if !hasAllGenres(c.Genres, filter.Genres) {
			continue
		}
		matched = append(matched, c.Clone())
	}

	sort.Slice(matched, func(i, j int) bool {
		a, b := strings.ToLower(matched[i].Title), strings.ToLower(matched[j].Title)
		if a == b {
			return matched[i].ID.String() < matched[j].ID.String()
		}
		return a < b
	})

	total := len(matched)
	offset := (filter.Page - 1) * filter.Limit
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return []models.Content{}, total, nil
	}
	end := offset + filter.Limit
	if filter.Limit <= 0 || end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (s *contentStore) Mutate(ctx context.Context, id uuid.UUID, fn func(c *models.Content) error) (*models.Content, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.content[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	working := current.Clone()
	if err := fn(&working); err != nil {
		return nil, err
	}
	if !strings.EqualFold(working.Title, current.Title) && s.titleTaken(working.Title, id) {
		return nil, store.ErrDuplicate
	}
	working.ID = id
	working.UpdatedAt = time.Now().UTC()
	s.content[id] = working.Clone()
	return &working, nil
}

func (s *contentStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.content[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.content, id)
	return nil
}

type userStore Store

func (s *userStore) emailTaken(email string, except uuid.UUID) bool {
	for id, u := range s.users {
		if id != except && strings.EqualFold(u.Email, email) {
			return true
		}
	}
	return false
}

func copyUser(u models.User) *models.User {
	u.Roles = append([]models.Role(nil), u.Roles...)
	u.Profiles = nil
	return &u
}

func (s *userStore) Create(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.emailTaken(u.Email, uuid.Nil) {
		return store.ErrDuplicate
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	s.users[u.ID] = *copyUser(*u)
	return nil
}

func (s *userStore) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyUser(u), nil
}

func (s *userStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return copyUser(u), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *userStore) GetByProvider(ctx context.Context, provider models.Provider, providerID string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Provider != nil && *u.Provider == provider && u.ProviderID != nil && *u.ProviderID == providerID {
			return copyUser(u), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *userStore) Update(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.users[u.ID]
	if !ok {
		return store.ErrNotFound
	}
	if s.emailTaken(u.Email, u.ID) {
		return store.ErrDuplicate
	}
	u.CreatedAt = existing.CreatedAt
	u.UpdatedAt = time.Now().UTC()
	s.users[u.ID] = *copyUser(*u)
	return nil
}

func (s *userStore) List(ctx context.Context) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, *copyUser(u))
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].CreatedAt.After(users[j].CreatedAt)
	})
	return users, nil
}

func (s *userStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.users, id)
	for pid, p := range s.profiles {
		if p.UserID == id {
			delete(s.profiles, pid)
		}
	}
	return nil
}

func (s *userStore) profilesOf(userID uuid.UUID) []models.Profile {
	var out []models.Profile
	for _, p := range s.profiles {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *userStore) profileNameTaken(userID uuid.UUID, name string, except uuid.UUID) bool {
	for _, p := range s.profilesOf(userID) {
		if p.ID != except && strings.EqualFold(p.Name, name) {
			return true
		}
	}
	return false
}

func (s *userStore) AddProfile(ctx context.Context, p *models.Profile, max int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[p.UserID]; !ok {
		return store.ErrNotFound
	}
	if len(s.profilesOf(p.UserID)) >= max {
		return store.ErrLimitReached
	}
	if s.profileNameTaken(p.UserID, p.Name, uuid.Nil) {
		return store.ErrDuplicate
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = time.Now().UTC()
	s.profiles[p.ID] = *p
	return nil
}

func (s *userStore) GetProfile(ctx context.Context, userID, profileID uuid.UUID) (*models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[profileID]
	if !ok || p.UserID != userID {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (s *userStore) ListProfiles(ctx context.Context, userID uuid.UUID) ([]models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	profiles := s.profilesOf(userID)
	if profiles == nil {
		profiles = []models.Profile{}
	}
	return profiles, nil
}

func (s *userStore) GetProfiles(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[uuid.UUID]models.Profile, len(ids))
	for _, id := range ids {
		if p, ok := s.profiles[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (s *userStore) UpdateProfile(ctx context.Context, p *models.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.profiles[p.ID]
	if !ok || existing.UserID != p.UserID {
		return store.ErrNotFound
	}
	if s.profileNameTaken(p.UserID, p.Name, p.ID) {
		return store.ErrDuplicate
	}
	p.CreatedAt = existing.CreatedAt
	s.profiles[p.ID] = *p
	return nil
}

func (s *userStore) DeleteProfile(ctx context.Context, userID, profileID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[profileID]
	if !ok || p.UserID != userID {
		return store.ErrNotFound
	}
	delete(s.profiles, profileID)
	return nil
}

type historyStore Store

func (s *historyStore) row(key models.HistoryKey) models.WatchHistory {
	h, ok := s.history[key]
	if !ok {
		h = models.WatchHistory{
			ID:        uuid.New(),
			UserID:    key.UserID,
			ProfileID: key.ProfileID,
			ContentID: key.ContentID,
		}
	}
	return h
}

func (s *historyStore) UpsertProgress(ctx context.Context, u models.ProgressUpdate) (*models.WatchHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.row(u.Key)
	h.SeasonNumber = u.SeasonNumber
	h.EpisodeNumber = u.EpisodeNumber
	h.PositionSec = u.PositionSec
	h.Completed = u.Completed
	h.LastWatchedAt = u.At
	s.history[u.Key] = h
	return &h, nil
}

func (s *historyStore) UpsertLike(ctx context.Context, key models.HistoryKey, liked bool, at time.Time) (*models.WatchHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.row(key)
	h.Liked = liked
	h.LastWatchedAt = at
	s.history[key] = h
	return &h, nil
}

func (s *historyStore) ResetProgress(ctx context.Context, key models.HistoryKey, at time.Time) (*models.WatchHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.history[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	h.PositionSec = 0
	h.Completed = false
	h.LastWatchedAt = at
	s.history[key] = h
	return &h, nil
}

func (s *historyStore) Get(ctx context.Context, key models.HistoryKey) (*models.WatchHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.history[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &h, nil
}

func sortByLastWatched(rows []models.WatchHistory) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].LastWatchedAt.Equal(rows[j].LastWatchedAt) {
			return rows[i].ID.String() < rows[j].ID.String()
		}
		return rows[i].LastWatchedAt.After(rows[j].LastWatchedAt)
	})
}

func (s *historyStore) ListForUser(ctx context.Context, userID uuid.UUID, filter models.HistoryFilter) ([]models.WatchHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := []models.WatchHistory{}
	for _, h := range s.history {
		if h.UserID != userID {
			continue
		}
		if filter.ProfileID != nil && h.ProfileID != *filter.ProfileID {
			continue
		}
		if filter.Completed != nil && h.Completed != *filter.Completed {
			continue
		}
		if filter.Liked != nil && h.Liked != *filter.Liked {
			continue
		}
		rows = append(rows, h)
	}
	sortByLastWatched(rows)
	if filter.Limit > 0 && len(rows) > filter.Limit {
		rows = rows[:filter.Limit]
	}
	return rows, nil
}

func (s *historyStore) ListForProfileSince(ctx context.Context, userID, profileID uuid.UUID, since time.Time) ([]models.WatchHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := []models.WatchHistory{}
	for _, h := range s.history {
		if h.UserID == userID && h.ProfileID == profileID && !h.LastWatchedAt.Before(since) {
			rows = append(rows, h)
		}
	}
	sortByLastWatched(rows)
	return rows, nil
}

func (s *historyStore) InsertDailyWatch(ctx context.Context, d models.DailyWatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := dailyKey{
		key: models.HistoryKey{UserID: d.UserID, ProfileID: d.ProfileID, ContentID: d.ContentID},
		day: d.Day.Format("2006-01-02"),
	}
	if _, ok := s.daily[k]; ok {
		return store.ErrDuplicate
	}
	s.daily[k] = d
	return nil
}

func (s *historyStore) ListDailySince(ctx context.Context, userID, profileID uuid.UUID, since time.Time) ([]models.DailyWatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := []models.DailyWatch{}
	for _, d := range s.daily {
		if d.UserID == userID && d.ProfileID == profileID && !d.Day.Before(since) {
			rows = append(rows, d)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Day.Before(rows[j].Day)
	})
	return rows, nil
}
