package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// IncrementLoginAttemptsSQL counts a failed login. An elapsed lock starts a
// fresh window at 1; an account still locked is left untouched and returns
// no row.
var IncrementLoginAttemptsSQL = `UPDATE users
SET
	login_attempts = CASE WHEN lock_until IS NOT NULL AND lock_until <= ? THEN 1 ELSE login_attempts + 1 END,
	lock_until = CASE WHEN lock_until IS NOT NULL AND lock_until <= ? THEN NULL ELSE lock_until END,
	updated_at = ?
WHERE
	id = ?
AND (lock_until IS NULL OR lock_until <= ?)
RETURNING login_attempts;`

// LockAccountSQL applies the automatic suspension once the threshold is
// reached. An active admin suspension takes precedence and is kept.
var LockAccountSQL = `UPDATE users
SET
	lock_until = ?,
	is_blocked = ?,
	block_reason = ?,
	block_cause = ?,
	block_expires_at = ?,
	blocked_at = ?,
	blocked_by = NULL,
	updated_at = ?
WHERE
	id = ?
AND login_attempts >= ?
AND NOT (is_blocked = ? AND COALESCE(block_cause, '') = ? AND (block_expires_at IS NULL OR block_expires_at > ?));`

// ResetLoginStateSQL is the transition run on a successful login and on
// admin unblock.
var ResetLoginStateSQL = `UPDATE users
SET
	login_attempts = 0,
	last_login = ?,
	lock_until = NULL,
	is_blocked = ?,
	block_reason = NULL,
	block_cause = NULL,
	block_expires_at = NULL,
	blocked_at = NULL,
	blocked_by = NULL,
	updated_at = ?
WHERE
	id = ?;`

// expiredSuspensionCondition matches rows with a recorded suspension that
// has lapsed at the bound time (bound three times).
const expiredSuspensionCondition = `(lock_until IS NOT NULL OR is_blocked = ?)
AND (lock_until IS NULL OR lock_until <= ?)
AND (is_blocked = ? OR (block_expires_at IS NOT NULL AND block_expires_at <= ?))`

// ClearExpiredSuspensionSQL heals one account whose suspension lapsed.
var ClearExpiredSuspensionSQL = `UPDATE users
SET
	login_attempts = 0,
	lock_until = NULL,
	is_blocked = ?,
	block_reason = NULL,
	block_cause = NULL,
	block_expires_at = NULL,
	blocked_at = NULL,
	blocked_by = NULL,
	updated_at = ?
WHERE
	id = ?
AND ` + expiredSuspensionCondition + `;`

// UnlockExpiredSQL is the bulk form of ClearExpiredSuspensionSQL.
var UnlockExpiredSQL = `UPDATE users
SET
	login_attempts = 0,
	lock_until = NULL,
	is_blocked = ?,
	block_reason = NULL,
	block_cause = NULL,
	block_expires_at = NULL,
	blocked_at = NULL,
	blocked_by = NULL,
	updated_at = ?
WHERE ` + expiredSuspensionCondition + `;`

// FailedLogin is the outcome of recording a failed password check.
type FailedLogin struct {
	Attempts int
	Locked   bool
}

// BlockedUsersFilter narrows and pages the blocked users listing.
type BlockedUsersFilter struct {
	Role   UserRole
	Search string
	Page   int
	Limit  int
}

// Users is the credential store
type Users interface {
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)
	GetByLogin(ctx context.Context, identifier LoginIdentifier) (*User, error)
	ExistsByEmailOrPhoneTx(ctx context.Context, tx bun.IDB, email, phone string) (bool, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *User) (*User, error)

	TrackFailedLogin(ctx context.Context, id uuid.UUID, policy LockoutPolicy, now time.Time) (*FailedLogin, error)
	ResetLoginState(ctx context.Context, id uuid.UUID, now time.Time) error
	ClearExpiredSuspension(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	Suspend(ctx context.Context, id uuid.UUID, suspension Suspension) error
	UnlockExpired(ctx context.Context, now time.Time) (int64, error)
	ListBlocked(ctx context.Context, filter BlockedUsersFilter) ([]*User, int, error)

	StoreRefreshToken(ctx context.Context, id uuid.UUID, token string, now time.Time) error
	RotateRefreshToken(ctx context.Context, id uuid.UUID, presented, next string, now time.Time) (bool, error)
	ClearRefreshToken(ctx context.Context, id uuid.UUID, presented string, now time.Time) error

	SetPasswordResetToken(ctx context.Context, id uuid.UUID, tokenHash string, expiresAt time.Time) error
	GetByPasswordResetTokenTx(ctx context.Context, tx bun.IDB, tokenHash string, now time.Time) (*User, error)
	UpdatePasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, resetTokenHash, passwordHash string, history PasswordHistory, now time.Time) (bool, error)
	ClearExpiredResetTokens(ctx context.Context, now time.Time) (int64, error)

	SaveTwoFactorSecret(ctx context.Context, id uuid.UUID, secret string) (bool, error)
	ActivateTwoFactor(ctx context.Context, id uuid.UUID, secret string) (bool, error)
	DisableTwoFactor(ctx context.Context, id uuid.UUID) (bool, error)
	OpenSecondFactorWindow(ctx context.Context, id uuid.UUID, deadline time.Time) error
	ConsumeSecondFactorWindow(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
}

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var _ Users = (*users)(nil)

func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

func (a *users) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	record, err := a.Repository.GetByID(ctx, id.String())
	if err != nil {
		return nil, notFoundOr(err, "failed to retrieve user")
	}
	return record, nil
}

func (a *users) GetByEmail(ctx context.Context, email string) (*User, error) {
	return a.GetByEmailTx(ctx, a.db, email)
}

func (a *users) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	return a.getBy(ctx, tx, "email", NormalizeEmail(email))
}

func (a *users) GetByLogin(ctx context.Context, identifier LoginIdentifier) (*User, error) {
	switch identifier.Kind {
	case LoginByEmail:
		return a.getBy(ctx, a.db, "email", NormalizeEmail(identifier.Value))
	case LoginByPhone:
		return a.getBy(ctx, a.db, "phone", strings.TrimSpace(identifier.Value))
	default:
		return nil, repository.NewRecordNotFound()
	}
}

func (a *users) getBy(ctx context.Context, tx bun.IDB, column, value string) (*User, error) {
	if value == "" {
		return nil, repository.NewRecordNotFound()
	}

	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where(fmt.Sprintf("?TableAlias.%s = ?", column), value).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFoundOr(err, "failed to retrieve user")
	}
	return record, nil
}

func (a *users) ExistsByEmailOrPhoneTx(ctx context.Context, tx bun.IDB, email, phone string) (bool, error) {
	q := tx.NewSelect().
		Model((*User)(nil)).
		Where("?TableAlias.email = ?", NormalizeEmail(email))

	if phone != "" {
		q = q.WhereOr("?TableAlias.phone = ?", phone)
	}

	exists, err := q.Exists(ctx)
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check existing users")
	}
	return exists, nil
}

func (a *users) CreateTx(ctx context.Context, tx bun.IDB, record *User) (*User, error) {
	prepareUserDefaults(record)
	return a.Repository.CreateTx(ctx, tx, record)
}

func (a *users) TrackFailedLogin(ctx context.Context, id uuid.UUID, policy LockoutPolicy, now time.Time) (*FailedLogin, error) {
	out := &FailedLogin{}

	err := a.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := tx.NewRaw(IncrementLoginAttemptsSQL, now, now, now, id, now).Scan(ctx, &out.Attempts); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				// already locked, nothing counted
				out.Locked = true
				return nil
			}
			return err
		}

		if !policy.Tripped(out.Attempts) {
			return nil
		}

		s := policy.Suspension(now)
		_, err := tx.NewRaw(LockAccountSQL,
			s.ExpiresAt, true, s.Reason, string(s.TriggeredBy), s.ExpiresAt, now, now,
			id, policy.Threshold,
			true, string(SuspensionAdmin), now,
		).Exec(ctx)
		if err != nil {
			return err
		}

		out.Locked = true
		return nil
	})
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to track failed login")
	}

	return out, nil
}

func (a *users) ResetLoginState(ctx context.Context, id uuid.UUID, now time.Time) error {
	res, err := a.db.NewRaw(ResetLoginStateSQL, now, false, now, id).Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to reset login state")
	}
	return requireAffected(res, id)
}

func (a *users) ClearExpiredSuspension(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	res, err := a.db.NewRaw(ClearExpiredSuspensionSQL, false, now, id, true, now, false, now).Exec(ctx)
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to clear expired suspension")
	}
	return affected(res) > 0, nil
}

func (a *users) UnlockExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := a.db.NewRaw(UnlockExpiredSQL, false, now, true, now, false, now).Exec(ctx)
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to unlock expired accounts")
	}
	return affected(res), nil
}

func (a *users) Suspend(ctx context.Context, id uuid.UUID, s Suspension) error {
	q := a.db.NewUpdate().
		Model((*User)(nil)).
		Set("is_blocked = ?", true).
		Set("block_reason = ?", s.Reason).
		Set("block_cause = ?", string(s.TriggeredBy)).
		Set("block_expires_at = ?", s.ExpiresAt).
		Set("lock_until = ?", s.ExpiresAt).
		Set("blocked_at = ?", s.SuspendedAt).
		Set("updated_at = ?", s.SuspendedAt).
		Where("id = ?", id)

	if s.SuspendedBy != nil {
		q = q.Set("blocked_by = ?", *s.SuspendedBy)
	} else {
		q = q.Set("blocked_by = NULL")
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to suspend user")
	}
	return requireAffected(res, id)
}

func (a *users) ListBlocked(ctx context.Context, filter BlockedUsersFilter) ([]*User, int, error) {
	records := []*User{}

	q := a.db.NewSelect().
		Model(&records).
		Where("?TableAlias.is_blocked = ?", true)

	if filter.Role != "" {
		q = q.Where("?TableAlias.role = ?", string(filter.Role))
	}

	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + escapeLike(strings.ToLower(search)) + "%"
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where(`LOWER(?TableAlias.name) LIKE ? ESCAPE '\'`, pattern).
				WhereOr(`LOWER(?TableAlias.email) LIKE ? ESCAPE '\'`, pattern)
		})
	}

	total, err := q.
		OrderExpr("?TableAlias.blocked_at DESC").
		Limit(filter.Limit).
		Offset((filter.Page - 1) * filter.Limit).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list blocked users")
	}

	return records, total, nil
}

func (a *users) StoreRefreshToken(ctx context.Context, id uuid.UUID, token string, now time.Time) error {
	res, err := a.db.NewUpdate().
		Model((*User)(nil)).
		Set("refresh_token = ?", token).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store refresh token")
	}
	return requireAffected(res, id)
}

func (a *users) RotateRefreshToken(ctx context.Context, id uuid.UUID, presented, next string, now time.Time) (bool, error) {
	res, err := a.db.NewUpdate().
		Model((*User)(nil)).
		Set("refresh_token = ?", next).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("refresh_token = ?", presented).
		Exec(ctx)
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to rotate refresh token")
	}
	return affected(res) == 1, nil
}

func (a *users) ClearRefreshToken(ctx context.Context, id uuid.UUID, presented string, now time.Time) error {
	_, err := a.db.NewUpdate().
		Model((*User)(nil)).
		Set("refresh_token = NULL").
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("refresh_token = ?", presented).
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to clear refresh token")
	}
	return nil
}

func (a *users) SetPasswordResetToken(ctx context.Context, id uuid.UUID, tokenHash string, expiresAt time.Time) error {
	res, err := a.db.NewUpdate().
		Model((*User)(nil)).
		Set("reset_token_hash = ?", tokenHash).
		Set("reset_token_expires_at = ?", expiresAt).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store password reset token")
	}
	return requireAffected(res, id)
}

func (a *users) GetByPasswordResetTokenTx(ctx context.Context, tx bun.IDB, tokenHash string, now time.Time) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.reset_token_hash = ?", tokenHash).
		Where("?TableAlias.reset_token_expires_at > ?", now).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFoundOr(err, "failed to retrieve user by reset token")
	}
	return record, nil
}

func (a *users) UpdatePasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, resetTokenHash, passwordHash string, history PasswordHistory, now time.Time) (bool, error) {
	res, err := tx.NewUpdate().
		Model((*User)(nil)).
		Set("password_hash = ?", passwordHash).
		Set("password_history = ?", history).
		Set("password_updated_at = ?", now).
		Set("reset_token_hash = NULL").
		Set("reset_token_expires_at = NULL").
		Set("refresh_token = NULL").
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("reset_token_hash = ?", resetTokenHash).
		Exec(ctx)
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update password")
	}
	return affected(res) == 1, nil
}

func (a *users) ClearExpiredResetTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := a.db.NewUpdate().
		Model((*User)(nil)).
		Set("reset_token_hash = NULL").
		Set("reset_token_expires_at = NULL").
		Where("reset_token_expires_at IS NOT NULL").
		Where("reset_token_expires_at <= ?", now).
		Exec(ctx)
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to clear expired reset tokens")
	}
	return affected(res), nil
}

func (a *users) SaveTwoFactorSecret(ctx context.Context, id uuid.UUID, secret string) (bool, error) {
	res, err := a.db.NewUpdate().
		Model((*User)(nil)).
		Set("two_factor_secret = ?", secret).
		Where("id = ?", id).
		Where("two_factor_secret IS NULL").
		Where("is_2fa_activated = ?", false).
		Exec(ctx)
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store two-factor secret")
	}
	return affected(res) == 1, nil
}

func (a *users) ActivateTwoFactor(ctx context.Context, id uuid.UUID, secret string) (bool, error) {
	res, err := a.db.NewUpdate().
		Model((*User)(nil)).
		Set("is_2fa_activated = ?", true).
		Where("id = ?", id).
		Where("two_factor_secret = ?", secret).
		Where("is_2fa_activated = ?", false).
		Exec(ctx)
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to activate two-factor authentication")
	}
	return affected(res) == 1, nil
}

func (a *users) DisableTwoFactor(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := a.db.NewUpdate().
		Model((*User)(nil)).
		Set("is_2fa_activated = ?", false).
		Set("two_factor_secret = NULL").
		Set("second_factor_deadline = NULL").
		Where("id = ?", id).
		WhereGroup(" AND ", func(q *bun.UpdateQuery) *bun.UpdateQuery {
			return q.Where("is_2fa_activated = ?", true).WhereOr("two_factor_secret IS NOT NULL")
		}).
		Exec(ctx)
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to disable two-factor authentication")
	}
	return affected(res) == 1, nil
}

func (a *users) OpenSecondFactorWindow(ctx context.Context, id uuid.UUID, deadline time.Time) error {
	res, err := a.db.NewUpdate().
		Model((*User)(nil)).
		Set("second_factor_deadline = ?", deadline).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open second factor window")
	}
	return requireAffected(res, id)
}

func (a *users) ConsumeSecondFactorWindow(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	res, err := a.db.NewUpdate().
		Model((*User)(nil)).
		Set("second_factor_deadline = NULL").
		Where("id = ?", id).
		Where("second_factor_deadline > ?", now).
		Exec(ctx)
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to close second factor window")
	}
	return affected(res) == 1, nil
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	if record.Role == "" {
		record.Role = RoleUser
	}

	record.Email = NormalizeEmail(record.Email)

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	if record.PasswordHistory == nil {
		record.PasswordHistory = PasswordHistory{}
	}
}

// NormalizeEmail lower cases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func affected(res sql.Result) int64 {
	if res == nil {
		return 0
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}

func requireAffected(res sql.Result, id uuid.UUID) error {
	if affected(res) == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}
	return nil
}

// notFoundOr keeps not found errors recognisable by IsRecordNotFound and
// wraps everything else as internal.
func notFoundOr(err error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return repository.NewRecordNotFound()
	}
	if repository.IsRecordNotFound(err) {
		return err
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, msg)
}
