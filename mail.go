package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"net/url"
	"strings"
	"time"
)

const emailSendTimeout = 10 * time.Second

// dispatchEmail is best effort. A failed send is logged and never aborts
// the operation that triggered it.
func dispatchEmail(ctx context.Context, mailer Mailer, logger Logger, email Email) {
	if mailer == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), emailSendTimeout)
	defer cancel()

	if err := mailer.Send(ctx, email); err != nil {
		logger.Error("failed to send email", "kind", string(email.Kind), "to", email.To, "error", err)
	}
}

// VerificationURL is the link sent in the registration email.
func VerificationURL(backendURL, email, code string) string {
	q := url.Values{}
	q.Set("email", email)
	q.Set("code", code)
	return strings.TrimRight(backendURL, "/") + "/verify-email?" + q.Encode()
}

// PasswordResetURL is the link sent in the forgot password email.
func PasswordResetURL(clientURL, token string) string {
	return strings.TrimRight(clientURL, "/") + "/reset-password?token=" + url.QueryEscape(token)
}

// GenerateVerificationCode returns a random six digit code.
func GenerateVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// GenerateResetToken returns 32 random bytes hex encoded.
func GenerateResetToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// HashResetToken is the form a reset token is stored in.
func HashResetToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
