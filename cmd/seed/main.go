package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/orderdesk/api/internal/config"
	"github.com/orderdesk/api/internal/database"
	"github.com/orderdesk/api/internal/logger"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	// CLI flags
	username := flag.String("username", "", "Admin username")
	password := flag.String("password", "", "Admin password")
	reset := flag.Bool("reset", false, "Overwrite the password if the user already exists")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "seed", Format: "console"})
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	// Fall back to environment variables
	if *username == "" {
		*username = os.Getenv("SEED_USERNAME")
	}
	if *password == "" {
		*password = os.Getenv("SEED_PASSWORD")
	}

	// Fall back to defaults
	if *username == "" {
		*username = "admin"
	}
	if *password == "" {
		*password = "admin123"
		logg.Warn(ctx, "using default password 'admin123'; change it immediately in production")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(ctx, "failed to load config", err)
		os.Exit(1)
	}

	if err := database.Migrate(cfg.DatabaseURL); err != nil {
		logg.Error(ctx, "failed to run migrations", err)
		os.Exit(1)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logg.Error(ctx, "unable to connect to database", err)
		os.Exit(1)
	}
	defer pool.Close()

	user, created, err := seedAdmin(ctx, database.New(pool), *username, *password, *reset)
	if err != nil {
		logg.Error(ctx, "failed to seed admin", err)
		os.Exit(1)
	}

	logg.InfoFields(ctx, "seed completed", map[string]any{
		"user_id":  user.ID.String(),
		"username": user.Username,
		"created":  created,
	})
}

type userSeeder interface {
	GetUserByUsername(ctx context.Context, username string) (database.User, error)
	UpsertUser(ctx context.Context, arg database.UpsertUserParams) (database.User, error)
}

// seedAdmin creates the admin user if it doesn't exist. An existing user is
// left alone unless reset is set.
func seedAdmin(ctx context.Context, store userSeeder, username, password string, reset bool) (database.User, bool, error) {
	existing, err := store.GetUserByUsername(ctx, username)
	switch {
	case err == nil && !reset:
		return existing, false, nil
	case err != nil && !errors.Is(err, pgx.ErrNoRows):
		return database.User{}, false, fmt.Errorf("check user: %w", err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return database.User{}, false, fmt.Errorf("hash password: %w", err)
	}

	user, err := store.UpsertUser(ctx, database.UpsertUserParams{
		Username:     username,
		PasswordHash: string(hashed),
	})
	if err != nil {
		return database.User{}, false, fmt.Errorf("upsert user: %w", err)
	}
	return user, existing.Username == "", nil
}
