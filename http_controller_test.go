package auth_test

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-secure-auth"
	"github.com/goliatone/go-secure-auth/config"
)

type envelope struct {
	Status  string         `json:"status"`
	Message string         `json:"message"`
	Code    string         `json:"code"`
	Data    map[string]any `json:"data"`
	Details map[string]any `json:"details"`
}

func decode(t *testing.T, resp *http.Response) envelope {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out envelope
	require.NoError(t, json.Unmarshal(body, &out), string(body))
	return out
}

func cookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func loginBody(email, password string) string {
	return fmt.Sprintf(`{"email":%q,"password":%q}`, email, password)
}

// loginHTTP logs in and returns the token cookies.
func (h *harness) loginHTTP(email string) (access, refresh *http.Cookie) {
	h.t.Helper()
	resp := h.do(jsonRequest(http.MethodPost, "/api/auth/login", loginBody(email, strongPassword)))
	require.Equal(h.t, http.StatusOK, resp.StatusCode)
	access, refresh = cookie(resp, auth.AccessTokenCookie), cookie(resp, auth.RefreshTokenCookie)
	require.NotNil(h.t, access)
	require.NotNil(h.t, refresh)
	return access, refresh
}

func TestHTTPRegisterAndVerify(t *testing.T) {
	h := newHarness(t)

	resp := h.do(jsonRequest(http.MethodPost, "/api/auth/register",
		fmt.Sprintf(`{"name":"Ayesha","email":"ayesha@example.com","phone":"03001234567","password":%q,"role":"admin"}`, strongPassword)))
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	body := decode(t, resp)
	assert.Equal(t, "success", body.Status)
	assert.Equal(t, "ayesha@example.com", body.Data["email"])
	assert.NotContains(t, body.Data, "verificationCode")

	sent, ok := h.mail.last(auth.EmailRegister)
	require.True(t, ok)
	code := sent.Data["verificationCode"].(string)

	q := url.Values{"email": {"ayesha@example.com"}, "code": {code}}
	resp = h.do(httptest.NewRequest(http.MethodGet, "/api/auth/verify-email?"+q.Encode(), nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body = decode(t, resp)
	// self service registration never grants elevated roles
	assert.Equal(t, "user", body.Data["role"])
}

func TestHTTPRegisterValidationError(t *testing.T) {
	h := newHarness(t)

	resp := h.do(jsonRequest(http.MethodPost, "/api/auth/register",
		`{"name":"Ayesha","email":"not-an-email","password":"short"}`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decode(t, resp)
	assert.Equal(t, "error", body.Status)
}

func TestHTTPLoginSetsCookies(t *testing.T) {
	h := newHarness(t)
	h.createUser("ayesha@example.com", "")

	resp := h.do(jsonRequest(http.MethodPost, "/api/auth/login", loginBody("ayesha@example.com", strongPassword)))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	access := cookie(resp, auth.AccessTokenCookie)
	require.NotNil(t, access)
	assert.True(t, access.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, access.SameSite)
	assert.NotNil(t, cookie(resp, auth.RefreshTokenCookie))

	body := decode(t, resp)
	assert.Equal(t, "success", body.Status)
	assert.Equal(t, "ayesha@example.com", body.Data["email"])
	assert.NotContains(t, body.Data, "accessToken")
}

func TestHTTPLoginInvalidCredentials(t *testing.T) {
	h := newHarness(t)
	h.createUser("ayesha@example.com", "")

	resp := h.do(jsonRequest(http.MethodPost, "/api/auth/login", loginBody("ayesha@example.com", "Wr0ng!Password")))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	body := decode(t, resp)
	assert.Equal(t, auth.TextCodeInvalidCredentials, body.Code)
	assert.EqualValues(t, 4, body.Details["remaining_attempts"])

	resp = h.do(jsonRequest(http.MethodPost, "/api/auth/login", `{"password":"x"}`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHTTPLoginTwoFactorRequired(t *testing.T) {
	h := newHarness(t)
	user := h.createUser("ayesha@example.com", "")
	secret := h.enableTwoFactor(user.ID)

	resp := h.do(jsonRequest(http.MethodPost, "/api/auth/login", loginBody("ayesha@example.com", strongPassword)))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Nil(t, cookie(resp, auth.AccessTokenCookie))
	assert.Nil(t, cookie(resp, auth.RefreshTokenCookie))

	body := decode(t, resp)
	assert.Equal(t, "2fa_required", body.Status)
	assert.Equal(t, "ayesha@example.com", body.Data["email"])

	resp = h.do(jsonRequest(http.MethodPost, "/api/auth/verify-2fa",
		fmt.Sprintf(`{"email":"ayesha@example.com","code":%q}`, totpCode(t, secret, h.clock.Now()))))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotNil(t, cookie(resp, auth.AccessTokenCookie))
	assert.Equal(t, "success", decode(t, resp).Status)
}

func TestHTTPProfileRequiresToken(t *testing.T) {
	h := newHarness(t)
	h.createUser("ayesha@example.com", "03001234567")

	resp := h.do(httptest.NewRequest(http.MethodGet, "/api/auth/profile", nil))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, auth.TextCodeTokenMissing, decode(t, resp).Code)

	access, _ := h.loginHTTP("ayesha@example.com")

	req := httptest.NewRequest(http.MethodGet, "/api/auth/profile", nil)
	req.AddCookie(access)
	resp = h.do(req)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode(t, resp)
	assert.Equal(t, "ayesha@example.com", body.Data["email"])
	assert.Equal(t, "+923001234567", body.Data["phone"])
	assert.Equal(t, false, body.Data["is2FaActivated"])

	req = httptest.NewRequest(http.MethodGet, "/api/auth/profile", nil)
	req.Header.Set("Authorization", "Bearer "+access.Value)
	resp = h.do(req)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHTTPProfileAutoRefresh(t *testing.T) {
	h := newHarness(t)
	h.createUser("ayesha@example.com", "")
	access, refresh := h.loginHTTP("ayesha@example.com")

	h.clock.Advance(20 * time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/profile", nil)
	req.AddCookie(access)
	req.AddCookie(refresh)
	resp := h.do(req)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	renewed := cookie(resp, auth.AccessTokenCookie)
	require.NotNil(t, renewed)
	assert.NotEqual(t, access.Value, renewed.Value)
}

func TestHTTPProfileExpiredWithoutAutoRefresh(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.AutoRefresh = false })
	h.createUser("ayesha@example.com", "")
	access, refresh := h.loginHTTP("ayesha@example.com")

	h.clock.Advance(20 * time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/profile", nil)
	req.AddCookie(access)
	req.AddCookie(refresh)
	resp := h.do(req)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, auth.TextCodeTokenExpired, decode(t, resp).Code)
}

func TestHTTPRefreshFailureClearsCookies(t *testing.T) {
	h := newHarness(t)
	h.createUser("ayesha@example.com", "")
	_, refresh := h.loginHTTP("ayesha@example.com")

	req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh-token", nil)
	req.AddCookie(refresh)
	resp := h.do(req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rotated := cookie(resp, auth.RefreshTokenCookie)
	require.NotNil(t, rotated)
	assert.NotEqual(t, refresh.Value, rotated.Value)

	// replaying the old token fails and clears both cookies
	req = httptest.NewRequest(http.MethodPost, "/api/auth/refresh-token", nil)
	req.AddCookie(refresh)
	resp = h.do(req)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	cleared := cookie(resp, auth.RefreshTokenCookie)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)
	assert.Equal(t, auth.TextCodeSessionExpired, decode(t, resp).Code)

	// the body is accepted when the cookie is absent
	resp = h.do(jsonRequest(http.MethodPost, "/api/auth/refresh-token", fmt.Sprintf(`{"refreshToken":%q}`, rotated.Value)))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHTTPLogout(t *testing.T) {
	h := newHarness(t)
	h.createUser("ayesha@example.com", "")
	access, refresh := h.loginHTTP("ayesha@example.com")

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.AddCookie(access)
	req.AddCookie(refresh)
	resp := h.do(req)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/api/auth/profile", nil)
	req.AddCookie(access)
	resp = h.do(req)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, auth.TextCodeTokenRevoked, decode(t, resp).Code)
}

func TestHTTPPasswordReset(t *testing.T) {
	h := newHarness(t)
	h.createUser("ayesha@example.com", "")

	resp := h.do(jsonRequest(http.MethodPost, "/api/auth/forgot-password", `{"email":"ayesha@example.com"}`))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	unknown := h.do(jsonRequest(http.MethodPost, "/api/auth/forgot-password", `{"email":"nobody@example.com"}`))
	require.Equal(t, http.StatusOK, unknown.StatusCode)
	assert.Equal(t, decode(t, resp).Message, decode(t, unknown).Message)

	sent, ok := h.mail.last(auth.EmailForgotPassword)
	require.True(t, ok)
	link, err := url.Parse(sent.Data["resetUrl"].(string))
	require.NoError(t, err)
	token := link.Query().Get("token")

	req := jsonRequest(http.MethodPost, "/api/auth/reset-password", `{"password":"N3w!Password","confirmPassword":"N3w!Password"}`)
	req.Header.Set("Authorization", "Bearer "+token)
	resp = h.do(req)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	req = jsonRequest(http.MethodPost, "/api/auth/reset-password", `{"password":"N3w!Password","confirmPassword":"N3w!Password"}`)
	resp = h.do(req)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHTTPTwoFactorEndpoints(t *testing.T) {
	h := newHarness(t)
	h.createUser("ayesha@example.com", "")
	access, _ := h.loginHTTP("ayesha@example.com")

	req := httptest.NewRequest(http.MethodPost, "/api/auth/setup-2fa", nil)
	req.AddCookie(access)
	resp := h.do(req)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode(t, resp)
	secret, _ := body.Data["secret"].(string)
	require.NotEmpty(t, secret)
	assert.Contains(t, body.Data["qrCode"], "data:image/png;base64,")

	req = jsonRequest(http.MethodPost, "/api/auth/enable-2fa", fmt.Sprintf(`{"code":%q}`, totpCode(t, secret, h.clock.Now())))
	req.AddCookie(access)
	resp = h.do(req)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	req = httptest.NewRequest(http.MethodPost, "/api/auth/disable-2fa", nil)
	req.AddCookie(access)
	resp = h.do(req)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	req = httptest.NewRequest(http.MethodPost, "/api/auth/disable-2fa", nil)
	req.AddCookie(access)
	resp = h.do(req)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, auth.TextCodeTwoFactorDisabled, decode(t, resp).Code)
}

func TestHTTPAdminRoutes(t *testing.T) {
	h := newHarness(t)
	h.createAdmin("admin@example.com")
	user := h.createUser("ayesha@example.com", "")

	userAccess, _ := h.loginHTTP("ayesha@example.com")
	adminAccess, _ := h.loginHTTP("admin@example.com")

	req := httptest.NewRequest(http.MethodGet, "/api/admin/blocked-users", nil)
	req.AddCookie(userAccess)
	resp := h.do(req)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, auth.TextCodeForbidden, decode(t, resp).Code)

	req = jsonRequest(http.MethodPost, "/api/admin/block-user/"+user.ID.String(), `{"reason":"Spam","duration":2}`)
	req.AddCookie(adminAccess)
	resp = h.do(req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Spam", decode(t, resp).Data["blockReason"])

	// the blocked user's session stops working
	req = httptest.NewRequest(http.MethodGet, "/api/auth/profile", nil)
	req.AddCookie(userAccess)
	resp = h.do(req)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, auth.TextCodeAccountBlocked, decode(t, resp).Code)

	req = httptest.NewRequest(http.MethodGet, "/api/admin/blocked-users?search=ayesha", nil)
	req.AddCookie(adminAccess)
	resp = h.do(req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	users, _ := body.Data["users"].([]any)
	assert.Len(t, users, 1)

	req = httptest.NewRequest(http.MethodPost, "/api/admin/unblock-user/"+user.ID.String(), nil)
	req.AddCookie(adminAccess)
	resp = h.do(req)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	req = httptest.NewRequest(http.MethodPost, "/api/admin/unblock-user/not-a-uuid", nil)
	req.AddCookie(adminAccess)
	resp = h.do(req)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHTTPLoginRateLimit(t *testing.T) {
	h := newHarness(t, func(c *config.Config) {
		c.LoginLimit = config.RateLimit{Max: 2, Window: time.Hour}
	})
	h.createUser("ayesha@example.com", "")

	// successful logins do not count against the budget
	for i := 0; i < 3; i++ {
		resp := h.do(jsonRequest(http.MethodPost, "/api/auth/login", loginBody("ayesha@example.com", strongPassword)))
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	for i := 0; i < 2; i++ {
		resp := h.do(jsonRequest(http.MethodPost, "/api/auth/login", loginBody("ayesha@example.com", "Wr0ng!Password")))
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}

	resp := h.do(jsonRequest(http.MethodPost, "/api/auth/login", loginBody("ayesha@example.com", strongPassword)))
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "RATE_LIMITED", decode(t, resp).Code)
}

func TestHTTPAuthRoutesOnRouterGroup(t *testing.T) {
	h := newHarness(t)
	h.createUser("ayesha@example.com", "")

	srv := newServer()
	auth.RegisterAuthRoutes(srv.Router().Group("/v1"), h.svc.Controller)
	app := serve(srv)

	resp, err := app.Test(jsonRequest(http.MethodPost, "/v1/api/auth/login", loginBody("ayesha@example.com", "Wr0ng!Password")), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, auth.TextCodeInvalidCredentials, decode(t, resp).Code)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/v1/api/auth/profile", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, auth.TextCodeTokenMissing, decode(t, resp).Code)
}
