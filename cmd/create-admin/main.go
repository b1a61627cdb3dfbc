package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	gconfig "github.com/goliatone/go-config/config"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"

	auth "github.com/goliatone/go-secure-auth"
	"github.com/goliatone/go-secure-auth/config"
	"github.com/goliatone/go-secure-auth/repository"
)

func main() {
	var (
		name      = flag.String("name", "", "administrator display name")
		email     = flag.String("email", "", "administrator email")
		phone     = flag.String("phone", "", "administrator phone number (optional)")
		role      = flag.String("role", string(auth.RoleAdmin), "admin or superAdmin")
		useHashid = flag.Bool("hashid", false, "derive the user id from the email")
	)
	flag.Parse()

	password := os.Getenv("ADMIN_PASSWORD")
	if password == "" {
		fmt.Fprintln(os.Stderr, "ADMIN_PASSWORD must be set")
		os.Exit(2)
	}

	lgr := glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(glog.Info),
		glog.WithName("create-admin"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(goerrors.ToSlogAttributes),
	)
	logger := lgr.GetLogger("admin")

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cfg, err := config.Load(ctx, func(c *gconfig.Container[*config.Config]) *gconfig.Container[*config.Config] {
		return c.WithLogger(lgr.GetLogger("config"))
	})
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	db, repo, err := repository.Bootstrap(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	handler := auth.NewCreateAdminHandler(repo, auth.NewHasher(cfg), cfg).
		WithLogger(logger).
		WithActivitySink(auth.LoggerActivitySink(logger))

	err = handler.Execute(ctx, auth.CreateAdminMessage{
		Name:      *name,
		Email:     *email,
		Phone:     *phone,
		Password:  password,
		Role:      auth.UserRole(*role),
		UseHashid: *useHashid,
		OnResponse: func(u *auth.User) {
			fmt.Printf("created %s %s (%s)\n", u.Role, u.Email, u.ID)
		},
	})
	if err != nil {
		logger.Error("create admin", "error", err)
		os.Exit(1)
	}
}
