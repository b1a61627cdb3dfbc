package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

// TokenPair is the result of a login or a refresh rotation.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

type tokenSigner struct {
	key []byte
	ttl time.Duration
}

// TokenService issues and validates access and refresh tokens. Each kind has
// its own secret so one can never be accepted as the other.
type TokenService struct {
	signers map[TokenKind]tokenSigner
	issuer  string
	now     func() time.Time
	logger  Logger
}

// NewTokenService creates a new TokenService instance
func NewTokenService(cfg Config) *TokenService {
	return &TokenService{
		signers: map[TokenKind]tokenSigner{
			AccessToken:  {key: []byte(cfg.GetAccessTokenSecret()), ttl: cfg.GetAccessTokenTTL()},
			RefreshToken: {key: []byte(cfg.GetRefreshTokenSecret()), ttl: cfg.GetRefreshTokenTTL()},
		},
		issuer: cfg.GetIssuer(),
		now:    utcNow,
		logger: defLogger{},
	}
}

func (ts *TokenService) WithLogger(l Logger) *TokenService {
	ts.logger = normalizeLogger(l)
	return ts
}

// WithClock overrides the time source used to mint and verify tokens.
func (ts *TokenService) WithClock(now func() time.Time) *TokenService {
	if now != nil {
		ts.now = now
	}
	return ts
}

// TTL returns the lifetime of kind.
func (ts *TokenService) TTL(kind TokenKind) time.Duration {
	return ts.signers[kind].ttl
}

// GeneratePair mints a fresh access and refresh token for userID.
func (ts *TokenService) GeneratePair(userID string) (*TokenPair, error) {
	access, accessExp, err := ts.Generate(AccessToken, userID)
	if err != nil {
		return nil, err
	}

	refresh, refreshExp, err := ts.Generate(RefreshToken, userID)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// Generate signs a token of the given kind.
func (ts *TokenService) Generate(kind TokenKind, userID string) (string, time.Time, error) {
	signer, ok := ts.signers[kind]
	if !ok {
		return "", time.Time{}, goerrors.New(fmt.Sprintf("unknown token kind %q", kind), goerrors.CategoryInternal)
	}

	now := ts.now()
	exp := now.Add(signer.ttl)
	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		UID: userID,
	}
	ensureTokenID(&claims.RegisteredClaims)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(signer.key)
	if err != nil {
		return "", time.Time{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign JWT")
	}

	// NumericDate truncates to seconds
	return signed, claims.ExpiresAt.Time, nil
}

// ValidateAccess verifies an access token.
func (ts *TokenService) ValidateAccess(tokenString string) (*JWTClaims, error) {
	return ts.Validate(AccessToken, tokenString)
}

// ValidateRefresh verifies a refresh token.
func (ts *TokenService) ValidateRefresh(tokenString string) (*JWTClaims, error) {
	return ts.Validate(RefreshToken, tokenString)
}

// Validate parses and validates a token string. Expired tokens fail with
// ErrTokenExpired, bad signatures with ErrTokenSignatureInvalid and
// anything else unreadable with ErrTokenMalformed.
func (ts *TokenService) Validate(kind TokenKind, tokenString string) (*JWTClaims, error) {
	signer, ok := ts.signers[kind]
	if !ok {
		return nil, ErrTokenMalformed
	}

	parserOptions := []jwt.ParserOption{
		jwt.WithTimeFunc(ts.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("token service encountered unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return signer.key, nil
	}, parserOptions...)

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrTokenSignatureInvalid
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		default:
			return nil, ErrTokenMalformed
		}
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid || claims.UID == "" {
		return nil, ErrTokenMalformed
	}

	return claims, nil
}
