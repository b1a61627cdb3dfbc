package auth

import (
	"context"
	"errors"
	"net/http"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"

	"github.com/goliatone/go-secure-auth/middleware/jwtware"
)

const (
	AccessTokenCookie  = "token"
	RefreshTokenCookie = "refreshToken"

	defaultTokenLookup = "header:" + router.HeaderAuthorization + ",cookie:" + AccessTokenCookie
)

// RouteAuthenticator owns the cookie contract and builds the protected
// route middleware.
type RouteAuthenticator struct {
	auth      *Auther
	cfg       Config
	routes    RouteConfig
	now       func() time.Time
	listeners []ValidationListener
	Logger    Logger

	// ErrorHandler renders errors raised by the middleware.
	ErrorHandler router.ErrorHandler
}

func NewHTTPAuthenticator(auther *Auther, cfg Config, routes RouteConfig) *RouteAuthenticator {
	a := &RouteAuthenticator{
		auth:   auther,
		cfg:    cfg,
		routes: routes,
		now:    utcNow,
		Logger: defLogger{},
	}
	a.ErrorHandler = NewErrorHandler(cfg, a.Logger)
	return a
}

func (a *RouteAuthenticator) WithLogger(l Logger) *RouteAuthenticator {
	a.Logger = normalizeLogger(l)
	a.ErrorHandler = NewErrorHandler(a.cfg, a.Logger)
	return a
}

func (a *RouteAuthenticator) WithClock(now func() time.Time) *RouteAuthenticator {
	if now != nil {
		a.now = now
	}
	return a
}

// WithValidationListeners adds hooks run for every validated session.
func (a *RouteAuthenticator) WithValidationListeners(listeners ...ValidationListener) *RouteAuthenticator {
	a.listeners = append(a.listeners, listeners...)
	return a
}

// ProtectedRoute requires a valid access token and, when minRole is set,
// a role at or above it.
func (a *RouteAuthenticator) ProtectedRoute(minRole UserRole) router.MiddlewareFunc {
	cfg := jwtware.Config{
		ContextKey:      DefaultContextKey,
		TokenLookup:     defaultTokenLookup,
		TokenValidator:  jwtware.TokenValidatorFunc(a.validate),
		Recover:         a.recover,
		MinimumRole:     string(minRole),
		ContextEnricher: ContextEnricherAdapter,
		ErrorHandler:    a.authErrorHandler,
	}
	RegisterValidationListeners(&cfg, a.listeners...)
	return jwtware.New(cfg)
}

func (a *RouteAuthenticator) validate(ctx context.Context, token string) (jwtware.AuthClaims, error) {
	user, claims, err := a.auth.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	return &SessionObject{User: user, Claims: claims}, nil
}

// recover rotates an expired session when a refresh cookie is present.
func (a *RouteAuthenticator) recover(c router.Context, err error) (jwtware.AuthClaims, error) {
	if a.routes == nil || !a.routes.GetAutoRefresh() || !IsTokenExpiredError(err) {
		return nil, err
	}

	refresh := c.Cookies(RefreshTokenCookie)
	if refresh == "" {
		return nil, err
	}

	res, rerr := a.auth.Refresh(c.Context(), refresh)
	if rerr != nil {
		a.Logger.Info("automatic session refresh failed", "error", rerr)
		a.ClearCookies(c)
		if IsAuthenticationError(rerr) {
			return nil, ErrSessionExpired
		}
		return nil, rerr
	}

	a.SetTokenCookies(c, res.Tokens)

	claims, verr := a.auth.TokenService().ValidateAccess(res.Tokens.AccessToken)
	if verr != nil {
		return nil, verr
	}

	return &SessionObject{User: res.User, Claims: claims, Refreshed: res.Tokens}, nil
}

func (a *RouteAuthenticator) authErrorHandler(c router.Context, err error) error {
	switch {
	case errors.Is(err, jwtware.ErrJWTMissingOrMalformed):
		err = ErrTokenMissing
	case errors.Is(err, jwtware.ErrForbidden):
		err = ErrInsufficientRole
	}
	return a.ErrorHandler(c, err)
}

// SetTokenCookies writes both tokens as http only cookies.
func (a *RouteAuthenticator) SetTokenCookies(c router.Context, pair *TokenPair) {
	if pair == nil {
		return
	}
	a.setCookie(c, AccessTokenCookie, pair.AccessToken, pair.AccessExpiresAt)
	a.setCookie(c, RefreshTokenCookie, pair.RefreshToken, pair.RefreshExpiresAt)
}

// ClearCookies expires both token cookies.
func (a *RouteAuthenticator) ClearCookies(c router.Context) {
	past := a.now().Add(-time.Hour * (24 * 365))
	a.setCookie(c, AccessTokenCookie, "", past)
	a.setCookie(c, RefreshTokenCookie, "", past)
}

func (a *RouteAuthenticator) setCookie(c router.Context, name, value string, expires time.Time) {
	c.Cookie(&router.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HTTPOnly: true,
		Secure:   a.cfg.GetSecureCookies(),
		SameSite: "Strict",
	})
}

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Status  string         `json:"status"`
	Message string         `json:"message"`
	Code    string         `json:"code,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// NewErrorHandler renders errors as ErrorResponse. Internal messages are
// hidden in production.
func NewErrorHandler(cfg Config, logger Logger) router.ErrorHandler {
	logger = normalizeLogger(logger)

	return func(c router.Context, err error) error {
		var richErr *goerrors.Error
		if !goerrors.As(err, &richErr) {
			richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected server error occurred").
				WithCode(http.StatusInternalServerError).
				WithTextCode(TextCodeInternal)
		}

		status := StatusCode(richErr)
		resp := ErrorResponse{
			Status:  "error",
			Message: richErr.Message,
			Code:    richErr.TextCode,
		}

		if status >= http.StatusInternalServerError {
			logger.Error("request failed",
				"path", c.Path(),
				"method", c.Method(),
				"error", err,
				"details", print.MaybePrettyJSON(richErr.Metadata),
			)
			if cfg.IsProduction() {
				resp.Message = "Internal server error"
			} else {
				resp.Details = map[string]any{"cause": err.Error()}
			}
			return c.JSON(status, resp)
		}

		logger.Debug("request rejected",
			"path", c.Path(),
			"status", status,
			"code", richErr.TextCode,
		)

		if len(richErr.Metadata) > 0 {
			resp.Details = richErr.Metadata
		}

		return c.JSON(status, resp)
	}
}
