package repository

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"

	auth "github.com/goliatone/go-secure-auth"
)

// Migrations discovers the embedded SQL files for dialect.
func Migrations(dialect string) (*migrate.Migrations, error) {
	fsys, err := auth.GetMigrationsFS(dialect)
	if err != nil {
		return nil, migrationError(err, "failed to locate migrations", dialect)
	}

	migrations := migrate.NewMigrations()
	if err := migrations.Discover(fsys); err != nil {
		return nil, migrationError(err, "failed to discover migrations", dialect)
	}

	return migrations, nil
}

// Migrate applies every pending migration and returns the applied group.
func Migrate(ctx context.Context, db *bun.DB) (*migrate.MigrationGroup, error) {
	dialect := Dialect(db)

	migrations, err := Migrations(dialect)
	if err != nil {
		return nil, err
	}

	migrator := migrate.NewMigrator(db, migrations)
	if err := migrator.Init(ctx); err != nil {
		return nil, migrationError(err, "failed to initialize migrations", dialect)
	}

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return nil, migrationError(err, "failed to apply migrations", dialect)
	}

	return group, nil
}

// Rollback reverts the last applied group.
func Rollback(ctx context.Context, db *bun.DB) (*migrate.MigrationGroup, error) {
	dialect := Dialect(db)

	migrations, err := Migrations(dialect)
	if err != nil {
		return nil, err
	}

	group, err := migrate.NewMigrator(db, migrations).Rollback(ctx)
	if err != nil {
		return nil, migrationError(err, "failed to roll back migrations", dialect)
	}

	return group, nil
}

func migrationError(err error, msg, dialect string) error {
	return goerrors.Wrap(err, goerrors.CategoryInternal, msg).
		WithTextCode("MIGRATION_FAILED").
		WithMetadata(map[string]any{"dialect": dialect})
}
