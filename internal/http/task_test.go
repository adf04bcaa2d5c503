package http

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/taskhive/taskhive/internal/breaker"
	"github.com/taskhive/taskhive/internal/cache"
	"github.com/taskhive/taskhive/internal/cascade"
	"github.com/taskhive/taskhive/internal/http/middleware"
	"github.com/taskhive/taskhive/internal/model"
	"github.com/taskhive/taskhive/internal/repository"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memRedis backs the task cache in tests.
type memRedis struct{ m map[string]string }

func newMemRedis() *memRedis { return &memRedis{m: map[string]string{}} }

func (r *memRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx, "get", key)
	v, ok := r.m[key]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(v)
	return cmd
}

func (r *memRedis) Set(ctx context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx, "set", key)
	r.m[key] = string(value.([]byte))
	cmd.SetVal("OK")
	return cmd
}

func (r *memRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx, "del")
	var n int64
	for _, k := range keys {
		if _, ok := r.m[k]; ok {
			delete(r.m, k)
			n++
		}
	}
	cmd.SetVal(n)
	return cmd
}

// fakeTasks is an in-memory TasksRepository.
type fakeTasks struct {
	nextID int64
	byID   map[int64]model.Task
	lists  int // ListByUser call count, to observe cache hits
}

func newFakeTasks() *fakeTasks { return &fakeTasks{nextID: 1, byID: map[int64]model.Task{}} }

var _ repository.TasksRepository = (*fakeTasks)(nil)

func (f *fakeTasks) Create(_ context.Context, userID int64, title, description string) (*model.Task, error) {
	t := model.Task{
		ID: f.nextID, UserID: userID, Title: title, Description: description,
		Status: model.TaskStatusPending, CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	f.byID[t.ID] = t
	f.nextID++
	return &t, nil
}

func (f *fakeTasks) ListByUser(_ context.Context, userID int64) ([]model.Task, error) {
	f.lists++
	out := []model.Task{}
	for _, t := range f.byID {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeTasks) Update(_ context.Context, taskID, userID int64, title, description *string, status *model.TaskStatus) (*model.Task, error) {
	t, ok := f.byID[taskID]
	if !ok || t.UserID != userID {
		return nil, nil
	}
	if title != nil {
		t.Title = *title
	}
	if description != nil {
		t.Description = *description
	}
	if status != nil {
		t.Status = *status
	}
	f.byID[taskID] = t
	return &t, nil
}

func (f *fakeTasks) Delete(_ context.Context, taskID, userID int64) (bool, error) {
	t, ok := f.byID[taskID]
	if !ok || t.UserID != userID {
		return false, nil
	}
	delete(f.byID, taskID)
	return true, nil
}

func (f *fakeTasks) DeleteByUser(_ context.Context, userID int64) (int64, error) {
	var n int64
	for id, t := range f.byID {
		if t.UserID == userID {
			delete(f.byID, id)
			n++
		}
	}
	return n, nil
}

func newTaskFixture(t *testing.T) (*Server, *fakeTasks, *memRedis, *cache.TaskCache, string) {
	t.Helper()
	tasks := newFakeTasks()
	rds := newMemRedis()
	br := breaker.New("task-test-redis", breaker.Options{CoolDown: time.Minute}, nil)
	tc := cache.NewTaskCache(rds, br, time.Minute, zap.NewNop())
	s := NewTaskServer(testConfig(), tasks, tc, zap.NewNop())

	token, err := middleware.SignToken(testConfig().JWT.Secret, 1, "ada@example.com", time.Hour)
	require.NoError(t, err)
	return s, tasks, rds, tc, token
}

// Full cascade scenario: create two tasks, delete the user, and after event
// processing the task list is empty and the cache key is absent.
func TestUserDeletionCascadeEmptiesTasksAndCache(t *testing.T) {
	s, tasks, rds, tc, token := newTaskFixture(t)

	rec := doJSON(t, s, http.MethodPost, "/tasks", `{"title":"write spec"}`, token)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = doJSON(t, s, http.MethodPost, "/tasks", `{"title":"review spec"}`, token)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/tasks", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []model.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 2)
	require.Contains(t, rds.m, cache.Key(1), "read must have populated the cache")

	// The user.deleted event arrives.
	casc := cascade.NewTaskCascade(tc, tasks, zap.NewNop())
	require.NoError(t, casc.Handle(context.Background(), []byte(`{"userId": 1}`)))

	assert.NotContains(t, rds.m, cache.Key(1), "cache key must be gone")

	rec = doJSON(t, s, http.MethodGet, "/tasks", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	list = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Empty(t, list)
}

func TestListServesFromCache(t *testing.T) {
	s, tasks, _, _, token := newTaskFixture(t)

	rec := doJSON(t, s, http.MethodPost, "/tasks", `{"title":"one"}`, token)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/tasks", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(t, s, http.MethodGet, "/tasks", "", token)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, 1, tasks.lists, "second read must come from the cache")
}

func TestWritesInvalidateCache(t *testing.T) {
	s, _, rds, _, token := newTaskFixture(t)

	rec := doJSON(t, s, http.MethodPost, "/tasks", `{"title":"one"}`, token)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created model.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	// Fill the cache, then update and verify the key is dropped.
	rec = doJSON(t, s, http.MethodGet, "/tasks", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rds.m, cache.Key(1))

	rec = doJSON(t, s, http.MethodPut, "/tasks/1", `{"status":"done"}`, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rds.m, cache.Key(1))

	// Same for delete.
	rec = doJSON(t, s, http.MethodGet, "/tasks", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rds.m, cache.Key(1))

	rec = doJSON(t, s, http.MethodDelete, "/tasks/1", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rds.m, cache.Key(1))
}

func TestTaskEndpointsRequireAuth(t *testing.T) {
	s, _, _, _, _ := newTaskFixture(t)

	rec := doJSON(t, s, http.MethodGet, "/tasks", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/tasks", `{"title":"x"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateTaskRequiresTitle(t *testing.T) {
	s, _, _, _, token := newTaskFixture(t)

	rec := doJSON(t, s, http.MethodPost, "/tasks", `{"description":"no title"}`, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
