// Command seed-admin creates the first superadmin account. It is safe to run
// repeatedly: an existing admin with the same email is left untouched.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/DeepanshuParakh29/ElitereplicasIn-sub000/internal/auth"
	"github.com/DeepanshuParakh29/ElitereplicasIn-sub000/internal/config"
	"github.com/DeepanshuParakh29/ElitereplicasIn-sub000/internal/repository/postgres"
	"github.com/DeepanshuParakh29/ElitereplicasIn-sub000/internal/service"
	"github.com/DeepanshuParakh29/ElitereplicasIn-sub000/migrations"
	pkgconfig "github.com/DeepanshuParakh29/ElitereplicasIn-sub000/pkg/config"
	"github.com/DeepanshuParakh29/ElitereplicasIn-sub000/pkg/database"
	"github.com/DeepanshuParakh29/ElitereplicasIn-sub000/pkg/logger"
)

type seedConfig struct {
	Email    string `env:"SEED_ADMIN_EMAIL,required"`
	Password string `env:"SEED_ADMIN_PASSWORD,required,unset"`
	Name     string `env:"SEED_ADMIN_NAME" envDefault:"Super Admin"`
}

func main() {
	if err := run(); err != nil {
		slog.Error("seed admin failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var seed seedConfig
	if err := pkgconfig.Load(&seed); err != nil {
		return err
	}

	log := logger.New("seed-admin", cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres(), log)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	if err := database.RunMigrations(ctx, pool, migrations.FS, log); err != nil {
		return err
	}

	svc := service.NewAuthService(
		postgres.NewUserRepository(pool),
		postgres.NewAdminRepository(pool),
		postgres.NewRefreshTokenRepository(pool),
		nil,
		auth.NewJWTManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAccessExpiry, cfg.JWTRefreshExpiry),
		nil,
		cfg.BcryptCost,
		log,
	)

	admin, created, err := svc.EnsureSuperAdmin(ctx, service.CreateAdminInput{
		Email:    seed.Email,
		Password: seed.Password,
		Name:     seed.Name,
	})
	if err != nil {
		return err
	}

	if created {
		log.Info("superadmin created", slog.String("admin_id", admin.ID), slog.String("email", admin.Email))
	} else {
		log.Info("admin already exists, nothing to do",
			slog.String("admin_id", admin.ID),
			slog.String("role", admin.Role),
		)
	}
	return nil
}
