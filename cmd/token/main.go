// Command token mints a bearer token for an existing account.
// It is used to obtain the first admin token after bootstrap, and to
// exchange a provisioned account's temporary password for a token.
//
// Usage:
//
//	token --email=admin@example.com
//	token --email=viewer@example.com --password=<temporary password>
//
// Configuration is read the same way as the server (CONFIG_PATH, env).
// Accounts that carry a password hash require --password.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/mmynk/groupledger/internal/auth"
	"github.com/mmynk/groupledger/internal/config"
	"github.com/mmynk/groupledger/internal/models"
	"github.com/mmynk/groupledger/internal/storage/backend"
	"github.com/mmynk/groupledger/pkg/logging"
)

func main() {
	email := flag.String("email", "", "email of the account")
	password := flag.String("password", "", "temporary password of a provisioned account")
	flag.Parse()

	if *email == "" {
		fmt.Fprintln(os.Stderr, "Usage: token --email=user@example.com [--password=...]")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logging.Setup("warn", cfg.Log.Format)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Database.Timeout)
	defer cancel()

	db, err := backend.Open(ctx, cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open storage: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	user, err := db.Store.GetUserByEmail(ctx, models.NormalizeEmail(*email))
	if err != nil {
		fmt.Fprintf(os.Stderr, "look up %q: %v\n", *email, err)
		os.Exit(1)
	}
	if user.PasswordHash != "" {
		if err := auth.CheckPassword(user, *password); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	token, err := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.TokenTTL).Generate(user)
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
