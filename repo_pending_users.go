package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// PendingUsers stores registrations until they are verified or expire.
type PendingUsers interface {
	CreateTx(ctx context.Context, tx bun.IDB, record *PendingUser) (*PendingUser, error)
	GetByEmailAndCodeTx(ctx context.Context, tx bun.IDB, email, code string, now time.Time) (*PendingUser, error)
	DeleteTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (bool, error)
	DeleteByEmailOrPhoneTx(ctx context.Context, tx bun.IDB, email, phone string) (int64, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

type pendingUsers struct {
	repository.Repository[*PendingUser]
	db *bun.DB
}

var _ PendingUsers = (*pendingUsers)(nil)

func NewPendingUsersRepository(db *bun.DB) PendingUsers {
	repo := repository.NewRepository[*PendingUser](db, repository.ModelHandlers[*PendingUser]{
		NewRecord: func() *PendingUser { return &PendingUser{} },
		GetID: func(p *PendingUser) uuid.UUID {
			if p == nil {
				return uuid.Nil
			}
			return p.ID
		},
		SetID: func(p *PendingUser, id uuid.UUID) {
			if p != nil {
				p.ID = id
			}
		},
	})

	return &pendingUsers{
		Repository: repo,
		db:         db,
	}
}

func (p *pendingUsers) CreateTx(ctx context.Context, tx bun.IDB, record *PendingUser) (*PendingUser, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	record.Email = NormalizeEmail(record.Email)
	return p.Repository.CreateTx(ctx, tx, record)
}

func (p *pendingUsers) GetByEmailAndCodeTx(ctx context.Context, tx bun.IDB, email, code string, now time.Time) (*PendingUser, error) {
	record := &PendingUser{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.email = ?", NormalizeEmail(email)).
		Where("?TableAlias.verification_code = ?", code).
		Where("?TableAlias.expires_at > ?", now).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFoundOr(err, "failed to retrieve pending registration")
	}
	return record, nil
}

func (p *pendingUsers) DeleteTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (bool, error) {
	res, err := tx.NewDelete().
		Model((*PendingUser)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete pending registration")
	}
	return affected(res) == 1, nil
}

func (p *pendingUsers) DeleteByEmailOrPhoneTx(ctx context.Context, tx bun.IDB, email, phone string) (int64, error) {
	q := tx.NewDelete().
		Model((*PendingUser)(nil)).
		Where("email = ?", NormalizeEmail(email))
	if phone != "" {
		q = q.WhereOr("phone = ?", phone)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to replace pending registration")
	}
	return affected(res), nil
}

func (p *pendingUsers) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := p.db.NewDelete().
		Model((*PendingUser)(nil)).
		Where("expires_at <= ?", now).
		Exec(ctx)
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to purge pending registrations")
	}
	return affected(res), nil
}
