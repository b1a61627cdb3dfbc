package auth

import (
	"bytes"
	"encoding/base32"
	"encoding/base64"
	"image/png"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// TwoFactorState is the handshake state of an account.
type TwoFactorState string

const (
	TwoFactorDisabled     TwoFactorState = "disabled"
	TwoFactorSetupPending TwoFactorState = "setup_pending"
	TwoFactorActive       TwoFactorState = "active"
)

const (
	totpPeriod     = 30
	totpSecretSize = 20
	totpQRSize     = 200
)

// TwoFactorProvisioning is what an authenticator app needs to enroll.
type TwoFactorProvisioning struct {
	Secret     string `json:"secret"`
	OTPAuthURL string `json:"otpauth_url"`
	QRCode     string `json:"qr_code"`
}

// TOTPProvider generates and validates time based one time passwords.
type TOTPProvider struct {
	issuer string
	skew   uint
	now    func() time.Time
}

// NewTOTPProvider creates a provider using cfg's issuer and skew.
func NewTOTPProvider(cfg Config) *TOTPProvider {
	issuer := cfg.GetTOTPIssuer()
	if issuer == "" {
		issuer = "SecureAuth"
	}
	return &TOTPProvider{
		issuer: issuer,
		skew:   cfg.GetTOTPSkew(),
		now:    utcNow,
	}
}

// WithClock overrides the time source used for validation.
func (p *TOTPProvider) WithClock(now func() time.Time) *TOTPProvider {
	if now != nil {
		p.now = now
	}
	return p
}

// GenerateSecret creates a new base32 secret for account.
func (p *TOTPProvider) GenerateSecret(account string) (string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      p.issuer,
		AccountName: account,
		Period:      totpPeriod,
		SecretSize:  totpSecretSize,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate two-factor secret")
	}
	return key.Secret(), nil
}

// Provision builds the otpauth URL and QR code for an existing secret.
func (p *TOTPProvider) Provision(secret, account string) (*TwoFactorProvisioning, error) {
	raw, err := decodeSecret(secret)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "stored two-factor secret is not valid base32")
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      p.issuer,
		AccountName: account,
		Period:      totpPeriod,
		Secret:      raw,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to build two-factor key")
	}

	img, err := key.Image(totpQRSize, totpQRSize)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to render two-factor QR code")
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode two-factor QR code")
	}

	return &TwoFactorProvisioning{
		Secret:     key.Secret(),
		OTPAuthURL: key.URL(),
		QRCode:     "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
	}, nil
}

// Validate checks code against secret allowing skew steps either side.
func (p *TOTPProvider) Validate(code, secret string) bool {
	code = strings.TrimSpace(code)
	if len(code) != 6 || secret == "" {
		return false
	}

	ok, err := totp.ValidateCustom(code, secret, p.now(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      p.skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

func decodeSecret(secret string) ([]byte, error) {
	secret = strings.ToUpper(strings.TrimSpace(secret))
	return base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.TrimRight(secret, "="))
}
