package services

import (
	"context"
	"errors"
	"mime/multipart"
	"sync"
	"testing"

	"github.com/liamwears/reelstream/internal/storage"
	"github.com/liamwears/reelstream/internal/store"
	"github.com/liamwears/reelstream/internal/store/memory"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQueue struct {
	mu   sync.Mutex
	jobs []EnrichmentJob
}

func (q *fakeQueue) Enqueue(job EnrichmentJob) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return true
}

func (q *fakeQueue) Jobs() []EnrichmentJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]EnrichmentJob(nil), q.jobs...)
}

// fakeStorage records saved and removed paths; a file named failName fails to save
type fakeStorage struct {
	mu       sync.Mutex
	saved    []string
	removed  []string
	failName string
}

func (s *fakeStorage) Save(ctx context.Context, fh *multipart.FileHeader, kind storage.Kind) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fh.Filename == s.failName {
		return "", errors.New("disk full")
	}
	path := "/uploads/" + string(kind) + "/" + fh.Filename
	s.saved = append(s.saved, path)
	return path, nil
}

func (s *fakeStorage) Remove(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, path)
	return nil
}

func upload(name string) *multipart.FileHeader {
	return &multipart.FileHeader{Filename: name}
}

type fixture struct {
	store   store.Store
	files   *fakeStorage
	queue   *fakeQueue
	content *ContentService
	history *HistoryService
	users   *UserService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memory.New().Bundle()
	files := &fakeStorage{}
	queue := &fakeQueue{}
	logger := zerolog.Nop()
	tokens := NewTokenService("test-secret", 0)

	return &fixture{
		store:   st,
		files:   files,
		queue:   queue,
		content: NewContentService(st.Content, files, queue, logger),
		history: NewHistoryService(st.History, st.Content, st.Users, nil, logger),
		users:   NewUserService(st.Users, tokens, files, []string{"admin@example.com"}, logger),
	}
}

func assertStatus(t *testing.T, err error, status int) ServiceError {
	t.Helper()
	require.Error(t, err)
	svcErr, ok := AsServiceError(err)
	require.True(t, ok, "expected a ServiceError, got %v", err)
	assert.Equal(t, status, svcErr.Status, svcErr.Message)
	return svcErr
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }
