// Package auth implements account registration, login and session
// management behind a go-router HTTP service.
//
// Registration stores a PendingUser and emails a six digit code; the
// account is created only when the code is verified. Login runs through
// Auther: suspension checks, failed attempt tracking with automatic
// lockout, an optional TOTP second factor and JWT issuance. Access and
// refresh tokens are signed with separate secrets and the refresh token
// is rotated on every use. Revoked tokens are kept in a Ledger until they
// expire.
//
// Command handlers follow one shape: a message with Validate, a handler
// built with NewXHandler and configured with WithLogger, WithActivitySink
// and WithClock, and Execute(ctx, msg). Errors are *goerrors.Error values
// carrying the HTTP status and a stable text code.
//
// Background cleanup runs on a Scheduler; RegisterSweeps installs the
// blacklist, pending user, suspension and reset token sweeps.
package auth
