package auth

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-router"
)

// ServiceOptions are the collaborators a deployment supplies.
type ServiceOptions struct {
	Config      Config
	RouteConfig RouteConfig
	Repo        RepositoryManager
	// Ledger defaults to the database blacklist.
	Ledger   Ledger
	Hasher   PasswordHasher
	Mailer   Mailer
	Logger   Logger
	Activity ActivitySink
	Clock    func() time.Time
	Debug    bool
}

// Service holds every wired component.
type Service struct {
	Tokens     *TokenService
	TOTP       *TOTPProvider
	Ledger     Ledger
	Auther     *Auther
	HTTPAuth   *RouteAuthenticator
	Controller *AuthController
	Sweeper    *Sweeper

	Register       *RegisterUserHandler
	VerifyEmail    *VerifyEmailHandler
	ForgotPassword *InitializePasswordResetHandler
	ResetPassword  *FinalizePasswordResetHandler
	SetupTwoFactor *SetupTwoFactorHandler
	ConfirmTwoFact *ConfirmTwoFactorHandler
	DisableTwoFact *DisableTwoFactorHandler
	Admin          *AdminHandler
	CreateAdmin    *CreateAdminHandler
}

// NewService builds the authenticator, the command handlers and the HTTP
// controller around one repository manager.
func NewService(opts ServiceOptions) *Service {
	if opts.Config == nil {
		panic("Missing Config in auth service...")
	}
	if opts.Repo == nil {
		panic("Missing RepositoryManager in auth service...")
	}

	logger := normalizeLogger(opts.Logger)
	activity := opts.Activity
	if activity == nil {
		activity = LoggerActivitySink(logger)
	}

	now := opts.Clock
	if now == nil {
		now = utcNow
	}

	ledger := opts.Ledger
	if ledger == nil {
		ledger = opts.Repo.Blacklist()
	}

	hasher := opts.Hasher
	if hasher == nil {
		hasher = NewHasher(opts.Config)
	}

	s := &Service{Ledger: ledger}

	s.Tokens = NewTokenService(opts.Config).WithLogger(logger).WithClock(now)
	s.TOTP = NewTOTPProvider(opts.Config).WithClock(now)

	s.Auther = NewAuthenticator(opts.Repo, hasher, s.Tokens, ledger, s.TOTP, opts.Config).
		WithLogger(logger).
		WithActivitySink(activity).
		WithClock(now)

	s.HTTPAuth = NewHTTPAuthenticator(s.Auther, opts.Config, opts.RouteConfig).
		WithLogger(logger).
		WithClock(now)

	s.Register = NewRegisterUserHandler(opts.Repo, hasher, opts.Mailer, opts.Config).
		WithLogger(logger).
		WithActivitySink(activity).
		WithClock(now)

	s.VerifyEmail = NewVerifyEmailHandler(opts.Repo, opts.Mailer).
		WithLogger(logger).
		WithActivitySink(activity).
		WithClock(now)

	s.ForgotPassword = NewInitializePasswordResetHandler(opts.Repo, opts.Mailer, opts.Config).
		WithLogger(logger).
		WithActivitySink(activity).
		WithClock(now)

	s.ResetPassword = NewFinalizePasswordResetHandler(opts.Repo, hasher, ledger, opts.Config).
		WithLogger(logger).
		WithActivitySink(activity).
		WithClock(now)

	s.SetupTwoFactor = NewSetupTwoFactorHandler(opts.Repo, s.TOTP).WithLogger(logger)
	s.ConfirmTwoFact = NewConfirmTwoFactorHandler(opts.Repo, s.TOTP).
		WithLogger(logger).
		WithActivitySink(activity)
	s.DisableTwoFact = NewDisableTwoFactorHandler(opts.Repo).
		WithLogger(logger).
		WithActivitySink(activity)

	s.Admin = NewAdminHandler(opts.Repo, opts.Config).
		WithLogger(logger).
		WithActivitySink(activity).
		WithClock(now)

	s.CreateAdmin = NewCreateAdminHandler(opts.Repo, hasher, opts.Config).
		WithLogger(logger).
		WithActivitySink(activity)

	s.Sweeper = NewSweeper(opts.Repo, ledger).WithLogger(logger).WithClock(now)

	s.Controller = NewAuthController(ControllerDeps{
		Config:         opts.Config,
		RouteConfig:    opts.RouteConfig,
		Auther:         s.Auther,
		HTTPAuth:       s.HTTPAuth,
		Register:       s.Register,
		VerifyEmail:    s.VerifyEmail,
		ForgotPassword: s.ForgotPassword,
		ResetPassword:  s.ResetPassword,
		SetupTwoFactor: s.SetupTwoFactor,
		ConfirmTwoFact: s.ConfirmTwoFact,
		DisableTwoFact: s.DisableTwoFact,
		Admin:          s.Admin,
	}, WithControllerLogger(logger), WithControllerDebug(opts.Debug))

	return s
}

// Mount installs the rate limiters and registers the HTTP routes on srv.
func (s *Service) Mount(srv router.Server[*fiber.App]) {
	RegisterRateLimits(srv.WrappedRouter(), s.Controller)
	RegisterAuthRoutes(srv.Router(), s.Controller)
	if initer, ok := srv.(interface{ Init() }); ok {
		initer.Init()
	}
}

// RegisterSweeps schedules the background cleanup tasks.
func (s *Service) RegisterSweeps(scheduler Scheduler, intervals SweepIntervals) error {
	return RegisterSweeps(scheduler, s.Sweeper, intervals)
}
