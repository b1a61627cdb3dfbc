package auth

import (
	"context"
	"errors"
	"runtime"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// ErrMismatchedHashAndPassword password does not match the stored hash
var ErrMismatchedHashAndPassword = errors.New("mismatched hash and password")

// ErrNoEmptyString empty passwords are never hashed
var ErrNoEmptyString = errors.New("password can not be empty")

// Hasher runs bcrypt on a bounded pool so a burst of logins can not starve
// the rest of the process.
type Hasher struct {
	cost int
	sem  *semaphore.Weighted
}

var _ PasswordHasher = (*Hasher)(nil)

// NewHasher returns a hasher using cfg's cost and concurrency.
func NewHasher(cfg Config) *Hasher {
	cost := cfg.GetBcryptCost()
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = 12
	}

	workers := cfg.GetHashConcurrency()
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	return &Hasher{
		cost: cost,
		sem:  semaphore.NewWeighted(int64(workers)),
	}
}

// Hash will generate a password hash
func (h *Hasher) Hash(ctx context.Context, password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryOperation, "password hashing cancelled")
	}
	defer h.sem.Release(1)

	out, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}
	return string(out), nil
}

// Compare will validate the given cleartext password matches the hashed
// password
func (h *Hasher) Compare(ctx context.Context, password, hash string) error {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "password comparison cancelled")
	}
	defer h.sem.Release(1)

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatchedHashAndPassword
		}
		return err
	}
	return nil
}

// MatchesHistory reports whether password matches one of the history
// entries. Hashes are salted so each entry is compared individually.
func MatchesHistory(ctx context.Context, h PasswordHasher, password string, history PasswordHistory) (bool, error) {
	for i := len(history) - 1; i >= 0; i-- {
		err := h.Compare(ctx, password, history[i].Hash)
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, ErrMismatchedHashAndPassword) {
			return false, err
		}
	}
	return false, nil
}
