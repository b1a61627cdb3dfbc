package auth_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	auth "github.com/goliatone/go-secure-auth"
	"github.com/goliatone/go-secure-auth/config"
	"github.com/goliatone/go-secure-auth/repository"
)

const strongPassword = "Str0ng!Passw0rd"

var baseTime = time.Date(2026, time.January, 5, 9, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: baseTime}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// mailbox records every email. When fail is set the email is still
// recorded and Send reports fail.
type mailbox struct {
	mu   sync.Mutex
	sent []auth.Email
	fail error
}

func (m *mailbox) Send(_ context.Context, email auth.Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, email)
	return m.fail
}

func (m *mailbox) failWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

func (m *mailbox) last(kind auth.EmailKind) (auth.Email, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].Kind == kind {
			return m.sent[i], true
		}
	}
	return auth.Email{}, false
}

func (m *mailbox) count(kind auth.EmailKind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.sent {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

type activityRecorder struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (r *activityRecorder) Record(_ context.Context, event auth.ActivityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *activityRecorder) has(eventType auth.ActivityEventType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.EventType == eventType {
			return true
		}
	}
	return false
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

func discardLogger() auth.Logger {
	return nopLogger{}
}

func newServer() router.Server[*fiber.App] {
	return router.NewFiberAdapter(func(*fiber.App) *fiber.App {
		return fiber.New()
	})
}

// serve returns the fiber app once the routes on srv are registered.
func serve(srv router.Server[*fiber.App]) *fiber.App {
	if initer, ok := srv.(interface{ Init() }); ok {
		initer.Init()
	}
	return srv.WrappedRouter()
}

func memoryDSN() string {
	return fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
}

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.AccessTokenSecret = "test-access-secret-0123456789"
	cfg.RefreshTokenSecret = "test-refresh-secret-9876543210"
	cfg.BcryptCost = 4
	cfg.LoginLimit = config.RateLimit{}
	cfg.RegisterLimit = config.RateLimit{}
	cfg.ForgotPasswordLimit = config.RateLimit{}
	return cfg
}

type harness struct {
	t        *testing.T
	ctx      context.Context
	cfg      *config.Config
	clock    *testClock
	db       *bun.DB
	repo     auth.RepositoryManager
	mail     *mailbox
	activity *activityRecorder
	svc      *auth.Service
	app      *fiber.App
}

func newHarness(t *testing.T, mutate ...func(*config.Config)) *harness {
	t.Helper()

	cfg := testConfig()
	for _, m := range mutate {
		m(cfg)
	}

	ctx := context.Background()
	db, repo, err := repository.Bootstrap(ctx, memoryDSN())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	h := &harness{
		t:        t,
		ctx:      ctx,
		cfg:      cfg,
		clock:    newTestClock(),
		db:       db,
		repo:     repo,
		mail:     &mailbox{},
		activity: &activityRecorder{},
	}

	h.svc = auth.NewService(auth.ServiceOptions{
		Config:      cfg,
		RouteConfig: cfg,
		Repo:        repo,
		Mailer:      h.mail,
		Logger:      discardLogger(),
		Activity:    h.activity,
		Clock:       h.clock.Now,
	})

	srv := newServer()
	h.svc.Mount(srv)
	h.app = srv.WrappedRouter()

	return h
}

// register starts a registration and returns the emailed code.
func (h *harness) register(email, phone string) string {
	h.t.Helper()

	err := h.svc.Register.Execute(h.ctx, auth.RegisterUserMessage{
		Name:     "Test User",
		Email:    email,
		Phone:    phone,
		Password: strongPassword,
	})
	require.NoError(h.t, err)

	sent, ok := h.mail.last(auth.EmailRegister)
	require.True(h.t, ok)
	code, _ := sent.Data["verificationCode"].(string)
	require.Len(h.t, code, 6)
	return code
}

// createUser registers and verifies an account.
func (h *harness) createUser(email, phone string) *auth.User {
	h.t.Helper()

	code := h.register(email, phone)

	var user *auth.User
	err := h.svc.VerifyEmail.Execute(h.ctx, auth.VerifyEmailMessage{
		Email:      email,
		Code:       code,
		OnResponse: func(u *auth.User) { user = u },
	})
	require.NoError(h.t, err)
	require.NotNil(h.t, user)
	return user
}

func (h *harness) createAdmin(email string) *auth.User {
	h.t.Helper()

	var admin *auth.User
	err := h.svc.CreateAdmin.Execute(h.ctx, auth.CreateAdminMessage{
		Name:       "Admin",
		Email:      email,
		Password:   strongPassword,
		Role:       auth.RoleAdmin,
		OnResponse: func(u *auth.User) { admin = u },
	})
	require.NoError(h.t, err)
	return admin
}

func (h *harness) login(email, password string) (*auth.LoginResult, error) {
	return h.svc.Auther.Login(h.ctx, auth.ByEmail(email), password)
}

func (h *harness) user(id uuid.UUID) *auth.User {
	h.t.Helper()
	u, err := h.repo.Users().GetByID(h.ctx, id)
	require.NoError(h.t, err)
	return u
}

// enableTwoFactor runs setup and confirmation and returns the secret.
func (h *harness) enableTwoFactor(id uuid.UUID) string {
	h.t.Helper()

	var provisioning *auth.TwoFactorProvisioning
	err := h.svc.SetupTwoFactor.Execute(h.ctx, auth.SetupTwoFactorMessage{
		UserID:     id,
		OnResponse: func(p *auth.TwoFactorProvisioning) { provisioning = p },
	})
	require.NoError(h.t, err)

	err = h.svc.ConfirmTwoFact.Execute(h.ctx, auth.ConfirmTwoFactorMessage{
		UserID: id,
		Code:   totpCode(h.t, provisioning.Secret, h.clock.Now()),
	})
	require.NoError(h.t, err)
	return provisioning.Secret
}

func totpCode(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := totp.GenerateCode(secret, at)
	require.NoError(t, err)
	return code
}

func (h *harness) do(req *http.Request) *http.Response {
	h.t.Helper()
	resp, err := h.app.Test(req, -1)
	require.NoError(h.t, err)
	return resp
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return req
}

func textCode(t *testing.T, err error) string {
	t.Helper()
	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr), "expected a rich error, got %v", err)
	return richErr.TextCode
}
