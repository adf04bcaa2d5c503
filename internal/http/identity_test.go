package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/taskhive/taskhive/internal/config"
	"github.com/taskhive/taskhive/internal/model"
	"github.com/taskhive/taskhive/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig() config.Config {
	return config.Config{
		JWT: config.JWTConfig{Secret: "test-secret", TTL: time.Hour},
	}
}

// fakeUsers is an in-memory UsersRepository.
type fakeUsers struct {
	nextID int64
	byID   map[int64]*model.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{nextID: 1, byID: map[int64]*model.User{}}
}

var _ repository.UsersRepository = (*fakeUsers)(nil)

func (f *fakeUsers) Create(_ context.Context, email, passwordHash string) (*model.User, error) {
	for _, u := range f.byID {
		if u.Email == email {
			return nil, repository.ErrDuplicateEmail
		}
	}
	u := &model.User{ID: f.nextID, Email: email, Password: passwordHash, CreatedAt: time.Now()}
	f.byID[u.ID] = u
	f.nextID++
	return u, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range f.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (f *fakeUsers) DeleteByID(_ context.Context, id int64) (bool, error) {
	if _, ok := f.byID[id]; !ok {
		return false, nil
	}
	delete(f.byID, id)
	return true, nil
}

// fakePublisher records published events.
type fakePublisher struct {
	keys   []string
	events []model.DeletionEvent
}

func (f *fakePublisher) Publish(_ context.Context, routingKey string, payload any) {
	f.keys = append(f.keys, routingKey)
	if ev, ok := payload.(model.DeletionEvent); ok {
		f.events = append(f.events, ev)
	}
}

func doJSON(t *testing.T, s *Server, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func TestRegisterLoginDeleteFlow(t *testing.T) {
	users := newFakeUsers()
	pub := &fakePublisher{}
	s := NewIdentityServer(testConfig(), users, pub, zap.NewNop())

	creds := `{"email":"ada@example.com","password":"hunter22"}`

	rec := doJSON(t, s, http.MethodPost, "/auth/register", creds, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/auth/register", creds, "")
	assert.Equal(t, http.StatusConflict, rec.Code, "duplicate email")

	rec = doJSON(t, s, http.MethodPost, "/auth/login", creds, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var loginResp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &loginResp))
	require.NotEmpty(t, loginResp.Token)

	rec = doJSON(t, s, http.MethodDelete, "/auth/account", "", loginResp.Token)
	require.Equal(t, http.StatusOK, rec.Code)

	// The local commit succeeded, so exactly one deletion event was emitted.
	require.Len(t, pub.events, 1)
	assert.Equal(t, model.UserDeletedKey, pub.keys[0])
	assert.Equal(t, int64(1), pub.events[0].UserID)
	assert.Empty(t, users.byID)

	// Second delete: the row is already gone, no second event.
	rec = doJSON(t, s, http.MethodDelete, "/auth/account", "", loginResp.Token)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Len(t, pub.events, 1)
}

func TestLoginRejectsBadPassword(t *testing.T) {
	users := newFakeUsers()
	s := NewIdentityServer(testConfig(), users, &fakePublisher{}, zap.NewNop())

	rec := doJSON(t, s, http.MethodPost, "/auth/register",
		`{"email":"ada@example.com","password":"hunter22"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/auth/login",
		`{"email":"ada@example.com","password":"wrong"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/auth/login",
		`{"email":"nobody@example.com","password":"hunter22"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDeleteAccountRequiresToken(t *testing.T) {
	s := NewIdentityServer(testConfig(), newFakeUsers(), &fakePublisher{}, zap.NewNop())

	rec := doJSON(t, s, http.MethodDelete, "/auth/account", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, s, http.MethodDelete, "/auth/account", "", "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
