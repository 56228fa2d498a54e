// Package main seeds a development database with demo users and prints a bearer
// token for each of them.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	"github.com/imadgeboyega/kiekky-connect/internal/common/database"
	"github.com/imadgeboyega/kiekky-connect/internal/common/utils"
	"github.com/imadgeboyega/kiekky-connect/internal/config"
)

const demoPassword = "password"

// DemoUser is one seeded account.
type DemoUser struct {
	ID       int64
	Email    string
	Username string
	Gender   string
}

func main() {
	var users int
	var university int64
	var tokenTTL time.Duration

	flag.IntVar(&users, "users", 10, "number of demo users")
	flag.Int64Var(&university, "university", 1, "university id shared by every demo user")
	flag.DurationVar(&tokenTTL, "token-ttl", 30*24*time.Hour, "validity of the printed tokens")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()

	ctx := context.Background()
	db, err := database.NewPostgresDBFromURL(ctx, cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	seeded, err := Seed(ctx, db, users, university)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	for _, u := range seeded {
		token, err := utils.GenerateJWT(u.ID, cfg.JWTSecret, tokenTTL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%d\t%s\t%s\t%s\n", u.ID, u.Username, u.Gender, token)
	}
}

// Seed upserts n demo users with alternating genders, each interested in the other one,
// and gives every user an empty discovery pool. Running it twice keeps the same users.
func Seed(ctx context.Context, db *sqlx.DB, n int, university int64) ([]DemoUser, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(demoPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	out := make([]DemoUser, 0, n)
	err = database.WithTx(ctx, db, func(tx *sqlx.Tx) error {
		for i := 0; i < n; i++ {
			u := DemoUser{
				Email:    fmt.Sprintf("demo%d@kiekky.dev", i+1),
				Username: fmt.Sprintf("demo%d", i+1),
				Gender:   "Male",
			}
			interested := "Female"
			if i%2 == 1 {
				u.Gender, interested = "Female", "Male"
			}

			if err := tx.QueryRowxContext(ctx, tx.Rebind(`
				INSERT INTO users (email, hashed_password, username, gender, university_id)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT (email) DO UPDATE SET username = excluded.username
				RETURNING id`),
				u.Email, string(hash), u.Username, u.Gender, university).Scan(&u.ID); err != nil {
				return fmt.Errorf("insert %s: %w", u.Email, err)
			}

			if _, err := tx.ExecContext(ctx, tx.Rebind(`
				INSERT INTO user_preferences (user_id, key, value) VALUES (?, 'interested_gender', ?)
				ON CONFLICT (user_id, key) DO UPDATE SET value = excluded.value`),
				u.ID, interested); err != nil {
				return fmt.Errorf("insert preference for %s: %w", u.Email, err)
			}

			if _, err := tx.ExecContext(ctx, tx.Rebind(`
				INSERT INTO user_discovery_pool (user_id) VALUES (?)
				ON CONFLICT (user_id) DO NOTHING`), u.ID); err != nil {
				return fmt.Errorf("insert pool for %s: %w", u.Email, err)
			}

			out = append(out, u)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
