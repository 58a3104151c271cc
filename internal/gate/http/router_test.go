package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/caredesk/gatekit/internal/gate/service"
	"github.com/caredesk/gatekit/internal/gate/store/drivers/memory"
	"github.com/caredesk/gatekit/pkg/jwtx"
	"github.com/caredesk/gatekit/pkg/ratelimit"
)

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	return newTestRouterWithPolicies(t, DefaultPolicies())
}

func newTestRouterWithPolicies(t *testing.T, policies Policies) *Router {
	t.Helper()

	signer, err := jwtx.NewHS256([]byte("test-secret-that-is-long-enough"), "gatekit")
	require.NoError(t, err)

	st := memory.NewStore()
	guard := service.NewAuditGuard(st.AuditLog(), false)
	guarded := service.NewGuardedStore(st, guard)
	tokens := &service.TokenService{
		Signer:     signer,
		Store:      guarded,
		Issuer:     "gatekit",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
	}
	users := &service.UserService{
		Store:  guarded,
		Tokens: tokens,
		Guard:  guard,
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	r := NewRouter(
		ratelimit.New(ratelimit.NewMemoryStore()),
		nil, // flood guard off in tests
		policies,
		"test",
		st,
		logger,
	)
	r.TokenService = tokens
	r.UserService = users
	r.ApplyRoutes()
	return r
}

const testPassword = "Tr1cky&Long!Phrase"

func doJSON(t *testing.T, router *Router, method, path string, body any, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "203.0.113.9:40000"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, fn := range mutate {
		fn(req)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func registerAccount(t *testing.T, router *Router) (accessToken string, refreshCookie *http.Cookie) {
	t.Helper()

	rec := doJSON(t, router, http.MethodPost, "/v1/auth/register", map[string]string{
		"email":    "jo@example.com",
		"name":     "Jo Citizen",
		"password": testPassword,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			AccessToken string `json:"access_token"`
			ExpiresIn   int64  `json:"expires_in_ms"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.NotEmpty(t, resp.Data.AccessToken)
	require.Equal(t, int64(15*60*1000), resp.Data.ExpiresIn)

	for _, c := range rec.Result().Cookies() {
		if c.Name == "refresh_token" {
			refreshCookie = c
		}
	}
	require.NotNil(t, refreshCookie)
	require.True(t, refreshCookie.HttpOnly)
	require.True(t, refreshCookie.Secure)
	require.Equal(t, http.SameSiteStrictMode, refreshCookie.SameSite)

	return resp.Data.AccessToken, refreshCookie
}

func TestRegisterEndpoint(t *testing.T) {
	t.Run("creates account and session", func(t *testing.T) {
		router := newTestRouter(t)
		registerAccount(t, router)
	})

	t.Run("duplicate email conflicts", func(t *testing.T) {
		router := newTestRouter(t)
		registerAccount(t, router)

		rec := doJSON(t, router, http.MethodPost, "/v1/auth/register", map[string]string{
			"email": "jo@example.com", "name": "Jo Citizen", "password": testPassword,
		})
		require.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("validation errors are itemised", func(t *testing.T) {
		router := newTestRouter(t)

		rec := doJSON(t, router, http.MethodPost, "/v1/auth/register", map[string]string{
			"email": "nope", "name": "J", "password": "weak",
		})
		require.Equal(t, http.StatusBadRequest, rec.Code)

		var resp struct {
			Errors map[string][]string `json:"errors"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.NotEmpty(t, resp.Errors["email"])
		require.NotEmpty(t, resp.Errors["name"])
		require.NotEmpty(t, resp.Errors["password"])
	})

	t.Run("garbage body is a 400", func(t *testing.T) {
		router := newTestRouter(t)

		req := httptest.NewRequest(http.MethodPost, "/v1/auth/register", bytes.NewBufferString("{nope"))
		req.RemoteAddr = "203.0.113.9:40000"
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestLoginEndpoint(t *testing.T) {
	t.Run("valid credentials", func(t *testing.T) {
		router := newTestRouter(t)
		registerAccount(t, router)

		rec := doJSON(t, router, http.MethodPost, "/v1/auth/login", map[string]string{
			"email": "jo@example.com", "password": testPassword,
		})
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	})

	t.Run("wrong password is a 401", func(t *testing.T) {
		router := newTestRouter(t)
		registerAccount(t, router)

		rec := doJSON(t, router, http.MethodPost, "/v1/auth/login", map[string]string{
			"email": "jo@example.com", "password": "Wr0ng&Password!!",
		})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("sixth attempt in the window is throttled", func(t *testing.T) {
		router := newTestRouter(t)
		registerAccount(t, router)

		var rec *httptest.ResponseRecorder
		for i := 0; i < 6; i++ {
			rec = doJSON(t, router, http.MethodPost, "/v1/auth/login", map[string]string{
				"email": "jo@example.com", "password": "Wr0ng&Password!!",
			})
		}

		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		require.NotEmpty(t, rec.Header().Get("Retry-After"))
		require.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
		require.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
	})

	t.Run("throttle headers annotate allowed responses too", func(t *testing.T) {
		router := newTestRouter(t)
		registerAccount(t, router)

		rec := doJSON(t, router, http.MethodPost, "/v1/auth/login", map[string]string{
			"email": "jo@example.com", "password": testPassword,
		})
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))
		require.Equal(t, "4", rec.Header().Get("X-RateLimit-Remaining"))
	})
}

func TestRefreshEndpoint(t *testing.T) {
	t.Run("cookie exchanges for a fresh access token", func(t *testing.T) {
		router := newTestRouter(t)
		_, cookie := registerAccount(t, router)

		rec := doJSON(t, router, http.MethodPost, "/v1/auth/refresh", nil, func(r *http.Request) {
			r.AddCookie(cookie)
		})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Data struct {
				AccessToken string `json:"access_token"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.NotEmpty(t, resp.Data.AccessToken)
	})

	t.Run("refresh does not push the cookie horizon out", func(t *testing.T) {
		router := newTestRouter(t)
		_, cookie := registerAccount(t, router)

		rec := doJSON(t, router, http.MethodPost, "/v1/auth/refresh", nil, func(r *http.Request) {
			r.AddCookie(cookie)
		})
		require.Equal(t, http.StatusOK, rec.Code)

		// No Set-Cookie on success: the original refresh token and its
		// expiry stay in force however many times it is exchanged.
		require.Empty(t, rec.Result().Cookies())
	})

	t.Run("missing cookie is a 401", func(t *testing.T) {
		router := newTestRouter(t)

		rec := doJSON(t, router, http.MethodPost, "/v1/auth/refresh", nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("revoked cookie is a 401 and gets cleared", func(t *testing.T) {
		router := newTestRouter(t)
		_, cookie := registerAccount(t, router)

		rec := doJSON(t, router, http.MethodPost, "/v1/auth/logout", nil, func(r *http.Request) {
			r.AddCookie(cookie)
		})
		require.Equal(t, http.StatusOK, rec.Code)

		rec = doJSON(t, router, http.MethodPost, "/v1/auth/refresh", nil, func(r *http.Request) {
			r.AddCookie(cookie)
		})
		require.Equal(t, http.StatusUnauthorized, rec.Code)

		var cleared *http.Cookie
		for _, c := range rec.Result().Cookies() {
			if c.Name == "refresh_token" {
				cleared = c
			}
		}
		require.NotNil(t, cleared)
		require.Empty(t, cleared.Value)
	})
}

func TestLogoutEndpoint(t *testing.T) {
	t.Run("revokes the whole session", func(t *testing.T) {
		router := newTestRouter(t)
		access, cookie := registerAccount(t, router)

		rec := doJSON(t, router, http.MethodPost, "/v1/auth/logout", nil, func(r *http.Request) {
			r.AddCookie(cookie)
			r.Header.Set("Authorization", "Bearer "+access)
		})
		require.Equal(t, http.StatusOK, rec.Code)

		// The paired access token dies with the refresh token.
		rec = doJSON(t, router, http.MethodGet, "/v1/user/profile", nil, func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+access)
		})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("bearer token alone is enough", func(t *testing.T) {
		router := newTestRouter(t)
		access, _ := registerAccount(t, router)

		rec := doJSON(t, router, http.MethodPost, "/v1/auth/logout", nil, func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+access)
		})
		require.Equal(t, http.StatusOK, rec.Code)

		rec = doJSON(t, router, http.MethodGet, "/v1/user/profile", nil, func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+access)
		})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("works without any credentials", func(t *testing.T) {
		router := newTestRouter(t)

		rec := doJSON(t, router, http.MethodPost, "/v1/auth/logout", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestCheckEmailEndpoint(t *testing.T) {
	router := newTestRouter(t)
	registerAccount(t, router)

	rec := doJSON(t, router, http.MethodPost, "/v1/auth/check-email", map[string]string{
		"email": "jo@example.com",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"available":false`)

	rec = doJSON(t, router, http.MethodPost, "/v1/auth/check-email", map[string]string{
		"email": "free@example.com",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"available":true`)
}

func TestProfileEndpoint(t *testing.T) {
	t.Run("requires authentication", func(t *testing.T) {
		router := newTestRouter(t)

		rec := doJSON(t, router, http.MethodGet, "/v1/user/profile", nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("get and update", func(t *testing.T) {
		router := newTestRouter(t)
		access, _ := registerAccount(t, router)

		withAuth := func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+access) }

		rec := doJSON(t, router, http.MethodGet, "/v1/user/profile", nil, withAuth)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Body.String(), "Jo Citizen")

		rec = doJSON(t, router, http.MethodPut, "/v1/user/profile", map[string]string{
			"name": "Jo Renamed",
		}, withAuth)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Body.String(), "Jo Renamed")

		rec = doJSON(t, router, http.MethodGet, "/v1/user/profile", nil, withAuth)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Body.String(), "Jo Renamed")
	})

	t.Run("throttled per account, not per address", func(t *testing.T) {
		policies := DefaultPolicies()
		policies.General = ratelimit.Policy{Max: 2, Window: 15 * time.Minute}
		router := newTestRouterWithPolicies(t, policies)
		access, _ := registerAccount(t, router)

		var rec *httptest.ResponseRecorder
		for i := 0; i < 3; i++ {
			addr := fmt.Sprintf("198.51.100.%d:40000", i+1)
			rec = doJSON(t, router, http.MethodGet, "/v1/user/profile", nil, func(r *http.Request) {
				r.RemoteAddr = addr
				r.Header.Set("Authorization", "Bearer "+access)
			})
		}

		// The account's budget follows it across addresses.
		require.Equal(t, http.StatusTooManyRequests, rec.Code)
	})
}

func TestHealthEndpoints(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/livez", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = doJSON(t, router, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
