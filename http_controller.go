package auth

import (
	"net/http"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

// AuthControllerRoutes are the paths served under the auth prefix.
type AuthControllerRoutes struct {
	Register        string
	Login           string
	VerifyEmail     string
	ForgotPassword  string
	ResetPassword   string
	RefreshToken    string
	Logout          string
	Profile         string
	SetupTwoFactor  string
	VerifySetup     string
	EnableTwoFactor string
	DisableTwoFact  string
	VerifyTwoFactor string
}

// AdminControllerRoutes are the paths served under the admin prefix.
type AdminControllerRoutes struct {
	BlockedUsers string
	BlockUser    string
	UnblockUser  string
}

// AuthController wires the handlers to the router.
type AuthController struct {
	Debug        bool
	Logger       Logger
	Config       Config
	RouteConfig  RouteConfig
	Routes       *AuthControllerRoutes
	AdminRoutes  *AdminControllerRoutes
	Auther       *Auther
	HTTPAuth     *RouteAuthenticator
	ErrorHandler router.ErrorHandler

	Register        *RegisterUserHandler
	VerifyEmail     *VerifyEmailHandler
	ForgotPassword  *InitializePasswordResetHandler
	ResetPassword   *FinalizePasswordResetHandler
	SetupTwoFactor  *SetupTwoFactorHandler
	ConfirmTwoFact  *ConfirmTwoFactorHandler
	DisableTwoFact  *DisableTwoFactorHandler
	Admin           *AdminHandler
}

type AuthControllerOption func(*AuthController) *AuthController

func WithControllerLogger(l Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Logger = normalizeLogger(l)
		return c
	}
}

func WithControllerDebug(debug bool) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Debug = debug
		return c
	}
}

func WithAuthRoutes(routes *AuthControllerRoutes) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if routes != nil {
			c.Routes = routes
		}
		return c
	}
}

// ControllerDeps is everything the controller dispatches to.
type ControllerDeps struct {
	Config         Config
	RouteConfig    RouteConfig
	Auther         *Auther
	HTTPAuth       *RouteAuthenticator
	Register       *RegisterUserHandler
	VerifyEmail    *VerifyEmailHandler
	ForgotPassword *InitializePasswordResetHandler
	ResetPassword  *FinalizePasswordResetHandler
	SetupTwoFactor *SetupTwoFactorHandler
	ConfirmTwoFact *ConfirmTwoFactorHandler
	DisableTwoFact *DisableTwoFactorHandler
	Admin          *AdminHandler
}

func NewAuthController(deps ControllerDeps, opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger:      defLogger{},
		Config:      deps.Config,
		RouteConfig: deps.RouteConfig,
		Routes: &AuthControllerRoutes{
			Register:        "/register",
			Login:           "/login",
			VerifyEmail:     "/verify-email",
			ForgotPassword:  "/forgot-password",
			ResetPassword:   "/reset-password",
			RefreshToken:    "/refresh-token",
			Logout:          "/logout",
			Profile:         "/profile",
			SetupTwoFactor:  "/setup-2fa",
			VerifySetup:     "/verify-2fa-setup",
			EnableTwoFactor: "/enable-2fa",
			DisableTwoFact:  "/disable-2fa",
			VerifyTwoFactor: "/verify-2fa",
		},
		AdminRoutes: &AdminControllerRoutes{
			BlockedUsers: "/blocked-users",
			BlockUser:    "/block-user/:id",
			UnblockUser:  "/unblock-user/:id",
		},
		Auther:         deps.Auther,
		HTTPAuth:       deps.HTTPAuth,
		Register:       deps.Register,
		VerifyEmail:    deps.VerifyEmail,
		ForgotPassword: deps.ForgotPassword,
		ResetPassword:  deps.ResetPassword,
		SetupTwoFactor: deps.SetupTwoFactor,
		ConfirmTwoFact: deps.ConfirmTwoFact,
		DisableTwoFact: deps.DisableTwoFact,
		Admin:          deps.Admin,
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Config == nil {
		panic("Missing Config in auth controller...")
	}

	if c.Auther == nil || c.HTTPAuth == nil {
		panic("Missing authenticator in auth controller...")
	}

	c.ErrorHandler = NewErrorHandler(c.Config, c.Logger)

	return c
}

// RegisterAuthRoutes mounts the auth and admin routes on app.
func RegisterAuthRoutes[T any](app router.Router[T], controller *AuthController) {
	authPrefix, adminPrefix := controller.prefixes()
	r := controller.Routes
	protected := controller.HTTPAuth.ProtectedRoute("")

	api := app.Group(authPrefix)
	api.Post(r.Register, controller.RegisterPost).SetName("auth.register")
	api.Post(r.Login, controller.LoginPost).SetName("auth.login")
	api.Get(r.VerifyEmail, controller.VerifyEmailGet).SetName("auth.verify-email")
	api.Post(r.ForgotPassword, controller.ForgotPasswordPost).SetName("auth.forgot-password")
	api.Post(r.ResetPassword, controller.ResetPasswordPost).SetName("auth.reset-password")
	api.Post(r.RefreshToken, controller.RefreshTokenPost).SetName("auth.refresh-token")
	api.Post(r.Logout, controller.LogoutPost).SetName("auth.logout")
	api.Post(r.VerifyTwoFactor, controller.VerifyTwoFactorPost).SetName("auth.verify-2fa")

	api.Get(r.Profile, controller.ProfileGet, protected).SetName("auth.profile")
	api.Post(r.SetupTwoFactor, controller.SetupTwoFactorPost, protected).SetName("auth.setup-2fa")
	api.Post(r.VerifySetup, controller.ConfirmTwoFactorPost, protected).SetName("auth.verify-2fa-setup")
	api.Post(r.EnableTwoFactor, controller.ConfirmTwoFactorPost, protected).SetName("auth.enable-2fa")
	api.Post(r.DisableTwoFact, controller.DisableTwoFactorPost, protected).SetName("auth.disable-2fa")

	if controller.Admin != nil {
		a := controller.AdminRoutes
		adminOnly := controller.HTTPAuth.ProtectedRoute(RoleAdmin)
		admin := app.Group(adminPrefix)
		admin.Get(a.BlockedUsers, controller.BlockedUsersGet, adminOnly).SetName("admin.blocked-users")
		admin.Post(a.BlockUser, controller.BlockUserPost, adminOnly).SetName("admin.block-user")
		admin.Post(a.UnblockUser, controller.UnblockUserPost, adminOnly).SetName("admin.unblock-user")
	}
}

// RegisterRateLimits installs the per IP limiters on the fiber app. It
// must run before the routes are mounted.
func RegisterRateLimits(app *fiber.App, controller *AuthController) {
	authPrefix, _ := controller.prefixes()
	r := controller.Routes

	controller.limit(app, authPrefix+r.Register, controller.registerLimit, false)
	controller.limit(app, authPrefix+r.Login, controller.loginLimit, true)
	controller.limit(app, authPrefix+r.ForgotPassword, controller.forgotLimit, false)
	controller.limit(app, authPrefix+r.VerifyTwoFactor, controller.loginLimit, true)
}

func (a *AuthController) prefixes() (string, string) {
	authPrefix, adminPrefix := "/api/auth", "/api/admin"
	if a.RouteConfig != nil {
		if p := a.RouteConfig.GetAuthPrefix(); p != "" {
			authPrefix = p
		}
		if p := a.RouteConfig.GetAdminPrefix(); p != "" {
			adminPrefix = p
		}
	}
	return authPrefix, adminPrefix
}

func (a *AuthController) loginLimit() (int, time.Duration) {
	if a.RouteConfig == nil {
		return 5, 24 * time.Hour
	}
	return a.RouteConfig.GetLoginRateLimit()
}

func (a *AuthController) registerLimit() (int, time.Duration) {
	if a.RouteConfig == nil {
		return 3, time.Hour
	}
	return a.RouteConfig.GetRegisterRateLimit()
}

func (a *AuthController) forgotLimit() (int, time.Duration) {
	if a.RouteConfig == nil {
		return 3, time.Hour
	}
	return a.RouteConfig.GetForgotPasswordRateLimit()
}

// limit adds a per IP limiter on path. A non positive max disables it.
func (a *AuthController) limit(app *fiber.App, path string, settings func() (int, time.Duration), failedOnly bool) {
	max, window := settings()
	if max <= 0 || window <= 0 {
		return
	}

	app.Use(path, limiter.New(limiter.Config{
		Max:                    max,
		Expiration:             window,
		SkipSuccessfulRequests: failedOnly,
		Next: func(c *fiber.Ctx) bool {
			return c.Path() != path
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP() + ":" + path
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(http.StatusTooManyRequests).JSON(ErrorResponse{
				Status:  "error",
				Message: "Too many requests, please try again later",
				Code:    TextCodeRateLimited,
			})
		},
	}))
}

func (a *AuthController) fail(c router.Context, err error) error {
	return a.ErrorHandler(c, err)
}

func (a *AuthController) bind(c router.Context, payload any) error {
	if err := c.Bind(payload); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "Invalid request body").
			WithCode(http.StatusBadRequest).
			WithTextCode(TextCodeValidation)
	}
	if a.Debug {
		a.Logger.Debug("request payload", "path", c.Path(), "payload", print.MaybePrettyJSON(redact(payload)))
	}
	return nil
}

// UserView is the public projection of a user.
type UserView struct {
	ID               string     `json:"id,omitempty"`
	Name             string     `json:"name"`
	Email            string     `json:"email"`
	Phone            string     `json:"phone,omitempty"`
	Role             UserRole   `json:"role"`
	TwoFactorEnabled *bool      `json:"is2FaActivated,omitempty"`
	CreatedAt        *time.Time `json:"createdAt,omitempty"`
}

func loginView(u *User) UserView {
	return UserView{Name: u.Name, Email: u.Email, Phone: u.Phone, Role: u.Role}
}

func profileView(u *User) UserView {
	enabled := u.TwoFactorEnabled
	return UserView{
		ID:               u.ID.String(),
		Name:             u.Name,
		Email:            u.Email,
		Phone:            u.Phone,
		Role:             u.Role,
		TwoFactorEnabled: &enabled,
		CreatedAt:        u.CreatedAt,
	}
}

// RegisterRequest payload
type RegisterRequest struct {
	Name     string `json:"name" form:"name"`
	Email    string `json:"email" form:"email"`
	Phone    string `json:"phone" form:"phone"`
	Password string `json:"password" form:"password"`
}

func (a *AuthController) RegisterPost(c router.Context) error {
	payload := new(RegisterRequest)
	if err := a.bind(c, payload); err != nil {
		return a.fail(c, err)
	}

	var resp *RegisterUserResponse
	err := a.Register.Execute(c.Context(), RegisterUserMessage{
		Name:     payload.Name,
		Email:    payload.Email,
		Phone:    payload.Phone,
		Password: payload.Password,
		// self service registration always creates plain users
		Role:       RoleUser,
		OnResponse: func(r *RegisterUserResponse) { resp = r },
	})
	if err != nil {
		return a.fail(c, err)
	}

	return c.JSON(http.StatusCreated, map[string]any{
		"status":  "success",
		"message": "Registration successful. Please check your email for the verification code.",
		"data": map[string]any{
			"email":     resp.Email,
			"expiresAt": resp.ExpiresAt,
		},
	})
}

func (a *AuthController) VerifyEmailGet(c router.Context) error {
	var user *User
	err := a.VerifyEmail.Execute(c.Context(), VerifyEmailMessage{
		Email:      c.Query("email", ""),
		Code:       c.Query("code", ""),
		OnResponse: func(u *User) { user = u },
	})
	if err != nil {
		return a.fail(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"status":  "success",
		"message": "Email verified successfully. You can now log in.",
		"data":    loginView(user),
	})
}

// LoginRequest payload. Exactly one of Email and Phone identifies the
// account.
type LoginRequest struct {
	Email    string `json:"email" form:"email"`
	Phone    string `json:"phone" form:"phone"`
	Password string `json:"password" form:"password"`
}

// Identifier returns the tagged login identifier.
func (r LoginRequest) Identifier() LoginIdentifier {
	if strings.TrimSpace(r.Email) != "" {
		return ByEmail(r.Email)
	}
	return ByPhone(r.Phone)
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	emailRules := []validation.Rule{is.Email}
	var phoneRules []validation.Rule
	if strings.TrimSpace(r.Email) == "" {
		phoneRules = append(phoneRules, validation.Required)
		if strings.TrimSpace(r.Phone) == "" {
			emailRules = append(emailRules, validation.Required)
		}
	}

	if err := goerrors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&r,
			validation.Field(&r.Email, emailRules...),
			validation.Field(&r.Phone, phoneRules...),
			validation.Field(&r.Password, validation.Required),
		)
	}, "Invalid login payload"); err != nil {
		return err
	}
	return nil
}

func (a *AuthController) LoginPost(c router.Context) error {
	payload := new(LoginRequest)
	if err := a.bind(c, payload); err != nil {
		return a.fail(c, err)
	}

	if err := payload.Validate(); err != nil {
		return a.fail(c, err)
	}

	res, err := a.Auther.Login(c.Context(), payload.Identifier(), payload.Password)
	if err != nil {
		return a.fail(c, err)
	}

	return a.loginResponse(c, res)
}

// VerifyTwoFactorRequest payload
type VerifyTwoFactorRequest struct {
	Email string `json:"email" form:"email"`
	Code  string `json:"code" form:"code"`
}

func (a *AuthController) VerifyTwoFactorPost(c router.Context) error {
	payload := new(VerifyTwoFactorRequest)
	if err := a.bind(c, payload); err != nil {
		return a.fail(c, err)
	}

	if err := goerrors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(payload,
			validation.Field(&payload.Email, validation.Required, is.Email),
			validation.Field(&payload.Code, validation.Required, validation.Length(6, 6), is.Digit),
		)
	}, "Invalid verification payload"); err != nil {
		return a.fail(c, err)
	}

	res, err := a.Auther.VerifySecondFactor(c.Context(), payload.Email, payload.Code)
	if err != nil {
		return a.fail(c, err)
	}

	return a.loginResponse(c, res)
}

// loginResponse never echoes tokens in the body.
func (a *AuthController) loginResponse(c router.Context, res *LoginResult) error {
	if IsSecondFactorRequired(res) {
		return c.JSON(http.StatusOK, map[string]any{
			"status":  "2fa_required",
			"message": "Two-factor authentication required. Submit the code from your authenticator app.",
			"data":    map[string]any{"email": res.User.Email},
		})
	}

	a.HTTPAuth.SetTokenCookies(c, res.Tokens)

	return c.JSON(http.StatusOK, map[string]any{
		"status":  "success",
		"message": "Login successful",
		"data":    loginView(res.User),
	})
}

// RefreshRequest payload, used when the cookie is absent.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" form:"refreshToken"`
}

func (a *AuthController) refreshToken(c router.Context) string {
	if token := c.Cookies(RefreshTokenCookie); token != "" {
		return token
	}
	payload := new(RefreshRequest)
	if len(c.Body()) > 0 {
		_ = c.Bind(payload)
	}
	return payload.RefreshToken
}

func (a *AuthController) RefreshTokenPost(c router.Context) error {
	res, err := a.Auther.Refresh(c.Context(), a.refreshToken(c))
	if err != nil {
		a.HTTPAuth.ClearCookies(c)
		if IsAuthenticationError(err) {
			return a.fail(c, ErrSessionExpired)
		}
		return a.fail(c, err)
	}

	a.HTTPAuth.SetTokenCookies(c, res.Tokens)

	return c.JSON(http.StatusOK, map[string]any{
		"status":  "success",
		"message": "Token refreshed successfully",
	})
}

func (a *AuthController) LogoutPost(c router.Context) error {
	access := c.Cookies(AccessTokenCookie)
	if access == "" {
		access = bearerToken(c)
	}

	if err := a.Auther.Logout(c.Context(), access, a.refreshToken(c)); err != nil {
		return a.fail(c, err)
	}

	a.HTTPAuth.ClearCookies(c)

	return c.JSON(http.StatusOK, map[string]any{
		"status":  "success",
		"message": "Logged out successfully",
	})
}

// ForgotPasswordRequest payload
type ForgotPasswordRequest struct {
	Email string `json:"email" form:"email"`
}

func (a *AuthController) ForgotPasswordPost(c router.Context) error {
	payload := new(ForgotPasswordRequest)
	if err := a.bind(c, payload); err != nil {
		return a.fail(c, err)
	}

	if err := a.ForgotPassword.Execute(c.Context(), InitializePasswordResetMessage{Email: payload.Email}); err != nil {
		return a.fail(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"status":  "success",
		"message": "If an account exists for this email, a password reset link has been sent.",
	})
}

// ResetPasswordRequest payload. The reset token travels as a bearer token.
type ResetPasswordRequest struct {
	Password        string `json:"password" form:"password"`
	ConfirmPassword string `json:"confirmPassword" form:"confirmPassword"`
}

func (a *AuthController) ResetPasswordPost(c router.Context) error {
	token := bearerToken(c)
	if token == "" {
		return a.fail(c, ErrTokenMissing)
	}

	payload := new(ResetPasswordRequest)
	if err := a.bind(c, payload); err != nil {
		return a.fail(c, err)
	}

	err := a.ResetPassword.Execute(c.Context(), FinalizePasswordResetMessage{
		Token:           token,
		Password:        payload.Password,
		ConfirmPassword: payload.ConfirmPassword,
	})
	if err != nil {
		return a.fail(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"status":  "success",
		"message": "Password has been reset successfully. Please log in with your new password.",
	})
}

func (a *AuthController) session(c router.Context) (*SessionObject, error) {
	session, ok := GetRouterSession(c, DefaultContextKey)
	if !ok {
		return nil, ErrTokenMissing
	}
	return session, nil
}

func (a *AuthController) ProfileGet(c router.Context) error {
	session, err := a.session(c)
	if err != nil {
		return a.fail(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"status": "success",
		"data":   profileView(session.User),
	})
}

func (a *AuthController) SetupTwoFactorPost(c router.Context) error {
	session, err := a.session(c)
	if err != nil {
		return a.fail(c, err)
	}

	var provisioning *TwoFactorProvisioning
	err = a.SetupTwoFactor.Execute(c.Context(), SetupTwoFactorMessage{
		UserID:     session.User.ID,
		OnResponse: func(p *TwoFactorProvisioning) { provisioning = p },
	})
	if err != nil {
		return a.fail(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"status":  "success",
		"message": "Scan the QR code with your authenticator app, then confirm with a code.",
		"data": map[string]any{
			"secret":     provisioning.Secret,
			"qrCode":     provisioning.QRCode,
			"otpauthUrl": provisioning.OTPAuthURL,
		},
	})
}

// TwoFactorCodeRequest payload
type TwoFactorCodeRequest struct {
	Code string `json:"code" form:"code"`
}

func (a *AuthController) ConfirmTwoFactorPost(c router.Context) error {
	session, err := a.session(c)
	if err != nil {
		return a.fail(c, err)
	}

	payload := new(TwoFactorCodeRequest)
	if err := a.bind(c, payload); err != nil {
		return a.fail(c, err)
	}

	err = a.ConfirmTwoFact.Execute(c.Context(), ConfirmTwoFactorMessage{
		UserID: session.User.ID,
		Code:   payload.Code,
	})
	if err != nil {
		return a.fail(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"status":  "success",
		"message": "Two-factor authentication enabled",
	})
}

func (a *AuthController) DisableTwoFactorPost(c router.Context) error {
	session, err := a.session(c)
	if err != nil {
		return a.fail(c, err)
	}

	if err := a.DisableTwoFact.Execute(c.Context(), DisableTwoFactorMessage{UserID: session.User.ID}); err != nil {
		return a.fail(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"status":  "success",
		"message": "Two-factor authentication disabled",
	})
}

func (a *AuthController) BlockedUsersGet(c router.Context) error {
	query := BlockedUsersQuery{
		Role:   c.Query("role", ""),
		Search: c.Query("search", ""),
		Page:   c.QueryInt("page", 1),
		Limit:  c.QueryInt("limit", defaultBlockedPageLimit),
	}

	res, err := a.Admin.ListBlocked(c.Context(), query)
	if err != nil {
		return a.fail(c, err)
	}

	views := make([]map[string]any, 0, len(res.Users))
	for _, u := range res.Users {
		views = append(views, map[string]any{
			"id":             u.ID.String(),
			"name":           u.Name,
			"email":          u.Email,
			"phone":          u.Phone,
			"role":           u.Role,
			"blockReason":    u.BlockReason,
			"blockCause":     u.BlockCause,
			"blockExpiresAt": u.BlockExpiresAt,
			"blockedAt":      u.BlockedAt,
			"blockedBy":      u.BlockedBy,
		})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"status": "success",
		"data": map[string]any{
			"users":      views,
			"pagination": res.Pagination,
		},
	})
}

// BlockUserRequest payload. Duration is in hours.
type BlockUserRequest struct {
	Reason   string `json:"reason" form:"reason"`
	Duration int    `json:"duration" form:"duration"`
}

func (a *AuthController) targetID(c router.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, ErrAdminTargetNotFound
	}
	return id, nil
}

func (a *AuthController) BlockUserPost(c router.Context) error {
	session, err := a.session(c)
	if err != nil {
		return a.fail(c, err)
	}

	target, err := a.targetID(c)
	if err != nil {
		return a.fail(c, err)
	}

	payload := new(BlockUserRequest)
	if len(c.Body()) > 0 {
		if err := a.bind(c, payload); err != nil {
			return a.fail(c, err)
		}
	}

	var user *User
	err = a.Admin.Block(c.Context(), BlockUserMessage{
		ActorID:       session.User.ID,
		UserID:        target,
		Reason:        payload.Reason,
		DurationHours: payload.Duration,
		OnResponse:    func(u *User) { user = u },
	})
	if err != nil {
		return a.fail(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"status":  "success",
		"message": "User blocked successfully",
		"data": map[string]any{
			"id":             user.ID.String(),
			"blockReason":    user.BlockReason,
			"blockExpiresAt": user.BlockExpiresAt,
		},
	})
}

func (a *AuthController) UnblockUserPost(c router.Context) error {
	session, err := a.session(c)
	if err != nil {
		return a.fail(c, err)
	}

	target, err := a.targetID(c)
	if err != nil {
		return a.fail(c, err)
	}

	err = a.Admin.Unblock(c.Context(), UnblockUserMessage{
		ActorID: session.User.ID,
		UserID:  target,
	})
	if err != nil {
		return a.fail(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"status":  "success",
		"message": "User unblocked successfully",
	})
}

func bearerToken(c router.Context) string {
	h := c.Header(router.HeaderAuthorization)
	const scheme = "Bearer "
	if len(h) > len(scheme) && strings.EqualFold(h[:len(scheme)], scheme) {
		return strings.TrimSpace(h[len(scheme):])
	}
	return ""
}

// redact hides secrets from debug output.
func redact(payload any) any {
	switch p := payload.(type) {
	case *RegisterRequest:
		cp := *p
		cp.Password = "***"
		return cp
	case *LoginRequest:
		cp := *p
		cp.Password = "***"
		return cp
	case *ResetPasswordRequest:
		return map[string]any{"password": "***"}
	case *VerifyTwoFactorRequest:
		return map[string]any{"email": p.Email}
	case *TwoFactorCodeRequest:
		return map[string]any{}
	default:
		return payload
	}
}
