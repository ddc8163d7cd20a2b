package services

import (
	stdContext "context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medigo-health/medigo_api/model"
	"github.com/medigo-health/medigo_api/shared"
)

type fakeIdentityStore struct {
	users  map[string]*model.User
	admins map[string]*model.User
	err    error

	userCalls  int
	adminCalls int
}

func (f *fakeIdentityStore) GetUserByIDAndEmail(id, email string) (*model.User, error) {
	f.userCalls++
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[id]
	if !ok || u.Email != email {
		return nil, nil
	}
	return u, nil
}

func (f *fakeIdentityStore) GetAdminByIDAndEmail(id, email string) (*model.User, error) {
	f.adminCalls++
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.admins[id]
	if !ok || u.Email != email {
		return nil, nil
	}
	return u, nil
}

type fakeIdentityCache struct {
	entries map[string]*model.Identity
	getErr  error

	getCalls int
	setCalls int
}

func (f *fakeIdentityCache) GetIdentity(_ stdContext.Context, id string) (*model.Identity, error) {
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.entries[id], nil
}

func (f *fakeIdentityCache) SetIdentity(_ stdContext.Context, identity *model.Identity) error {
	f.setCalls++
	f.entries[identity.ID] = identity
	return nil
}

type fakeSessionValidator struct {
	sessions map[string]string
	err      error
}

func (f *fakeSessionValidator) GetActiveSession(sessionID, userID string) (*model.UserSession, error) {
	if f.err != nil {
		return nil, f.err
	}
	owner, ok := f.sessions[sessionID]
	if !ok || owner != userID {
		return nil, nil
	}
	return &model.UserSession{ID: sessionID, UserID: userID, IsActive: true,
		ExpiresAt: time.Now().Add(time.Hour)}, nil
}

type authFixture struct {
	mw    *AuthMiddleware
	jwt   *JWTService
	store *fakeIdentityStore
	cache *fakeIdentityCache
	sess  *fakeSessionValidator
	app   *fiber.App
}

func newAuthFixture() *authFixture {
	f := &authFixture{
		jwt: newTestJWTService(),
		store: &fakeIdentityStore{
			users: map[string]*model.User{
				"user-1": {ID: "user-1", Email: "a@example.com", Name: "Alice", Role: shared.RoleUser, IsActive: true},
			},
			admins: map[string]*model.User{
				"admin-1": {ID: "admin-1", Email: "root@example.com", Name: "Root", Role: shared.RoleAdmin, IsActive: true},
			},
		},
		cache: &fakeIdentityCache{entries: make(map[string]*model.Identity)},
		sess:  &fakeSessionValidator{sessions: map[string]string{"sess-1": "user-1"}},
	}

	f.mw = &AuthMiddleware{
		jwtSvc:   f.jwt,
		store:    f.store,
		cache:    f.cache,
		sessions: f.sess,
	}

	f.app = fiber.New(fiber.Config{ErrorHandler: httpErrorHandler})
	f.app.Get("/me", f.mw.RequiredAuth(), func(c *fiber.Ctx) error {
		return shared.ResponseOK(c, fiber.Map{
			"user_id": c.Locals(shared.UserID),
			"role":    c.Locals(shared.UserRole),
		})
	})
	f.app.Get("/admin", f.mw.RequiredAuth(), f.mw.RequireRole(shared.RoleAdmin), func(c *fiber.Ctx) error {
		return shared.ResponseOK(c, "admin ok")
	})
	return f
}

func (f *authFixture) get(t *testing.T, path, token, sessionID string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if sessionID != "" {
		req.Header.Set(shared.SessionHeader, sessionID)
	}
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func (f *authFixture) userToken(t *testing.T) string {
	t.Helper()
	pair, err := f.jwt.GenerateTokenPair("user-1", "a@example.com", shared.RoleUser)
	require.NoError(t, err)
	return pair.AccessToken
}

func errBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &body))
	return body
}

func TestAdmissionHappyPath(t *testing.T) {
	f := newAuthFixture()

	resp := f.get(t, "/me", f.userToken(t), "sess-1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, f.store.userCalls)
	assert.Equal(t, 1, f.cache.setCalls, "identity should be cached after the store hit")
}

func TestAdmissionCacheHitSkipsStore(t *testing.T) {
	f := newAuthFixture()
	f.cache.entries["user-1"] = &model.Identity{ID: "user-1", Email: "a@example.com", Name: "Alice", Role: shared.RoleUser}

	resp := f.get(t, "/me", f.userToken(t), "sess-1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0, f.store.userCalls)
}

func TestAdmissionCacheOutageFallsThrough(t *testing.T) {
	f := newAuthFixture()
	f.cache.getErr = fmt.Errorf("connection refused")

	resp := f.get(t, "/me", f.userToken(t), "sess-1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, f.store.userCalls)
}

func TestAdmissionStaleCacheEmailRefetches(t *testing.T) {
	f := newAuthFixture()
	f.cache.entries["user-1"] = &model.Identity{ID: "user-1", Email: "old@example.com", Name: "Alice", Role: shared.RoleUser}

	resp := f.get(t, "/me", f.userToken(t), "sess-1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, f.store.userCalls, "email mismatch must re-resolve against the store")
}

func TestAdmissionMissingHeader(t *testing.T) {
	f := newAuthFixture()

	resp := f.get(t, "/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	body := errBody(t, resp)
	assert.Equal(t, "Authorization header missing or malformed", body["error"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestAdmissionExpiredToken(t *testing.T) {
	f := newAuthFixture()
	f.jwt.AccessTokenDuration = -time.Minute
	token := f.userToken(t)
	f.jwt.AccessTokenDuration = 15 * time.Minute

	resp := f.get(t, "/me", token, "sess-1")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	body := errBody(t, resp)
	assert.Equal(t, "Token expired", body["error"])
	assert.NotEmpty(t, body["expired_at"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestAdmissionUnknownUser(t *testing.T) {
	f := newAuthFixture()
	pair, err := f.jwt.GenerateTokenPair("ghost", "ghost@example.com", shared.RoleUser)
	require.NoError(t, err)

	resp := f.get(t, "/me", pair.AccessToken, "sess-1")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	body := errBody(t, resp)
	assert.Equal(t, "User not found", body["error"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestAdmissionStoreOutageFailsClosed(t *testing.T) {
	f := newAuthFixture()
	f.store.err = fmt.Errorf("connection refused")

	resp := f.get(t, "/me", f.userToken(t), "sess-1")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	body := errBody(t, resp)
	assert.Equal(t, "Internal server error", body["error"])
}

func TestAdmissionSessionRequired(t *testing.T) {
	f := newAuthFixture()

	resp := f.get(t, "/me", f.userToken(t), "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	body := errBody(t, resp)
	assert.Equal(t, "Session ID required", body["error"])
}

func TestAdmissionRevokedSession(t *testing.T) {
	f := newAuthFixture()

	resp := f.get(t, "/me", f.userToken(t), "sess-revoked")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	body := errBody(t, resp)
	assert.Equal(t, "Session invalid or expired", body["error"])
}

func TestAdmissionSessionOwnershipEnforced(t *testing.T) {
	f := newAuthFixture()
	f.sess.sessions["sess-other"] = "user-2"

	// A valid session belonging to someone else must not admit this user.
	resp := f.get(t, "/me", f.userToken(t), "sess-other")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAdminBypassesSessionAndCache(t *testing.T) {
	f := newAuthFixture()
	pair, err := f.jwt.GenerateTokenPair("admin-1", "root@example.com", shared.RoleAdmin)
	require.NoError(t, err)

	// No session header at all.
	resp := f.get(t, "/admin", pair.AccessToken, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, f.store.adminCalls)
	assert.Equal(t, 0, f.cache.getCalls, "admin identity is never read through the cache")
}

func TestAdminRoleClaimAloneInsufficient(t *testing.T) {
	f := newAuthFixture()

	// Token claims admin but no such admin row exists.
	pair, err := f.jwt.GenerateTokenPair("user-1", "a@example.com", shared.RoleAdmin)
	require.NoError(t, err)

	resp := f.get(t, "/admin", pair.AccessToken, "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	body := errBody(t, resp)
	assert.Equal(t, "Admin not found or disabled", body["error"])
}

func TestRequireRoleRejectsUser(t *testing.T) {
	f := newAuthFixture()

	resp := f.get(t, "/admin", f.userToken(t), "sess-1")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
