package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/washpay/internal/models"
	"github.com/nkiryanov/washpay/internal/service/auth"
)

// Issue an access token for an operator or a test washer
//
//	gentoken --secret-key $SECRET_KEY --user 1f0c... --role admin --ttl 1h
func main() {
	if err := run(os.Args[1:], os.Getenv, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "gentoken: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, getenv func(string) string, out io.Writer) error {
	fs := pflag.NewFlagSet("gentoken", pflag.ContinueOnError)
	secret := fs.StringP("secret-key", "s", getenv("SECRET_KEY"), "Access token signing key")
	user := fs.StringP("user", "u", "", "User id the token is issued for")
	role := fs.StringP("role", "r", models.RoleWasher, "Role (washer, admin)")
	ttl := fs.Duration("ttl", time.Hour, "Token lifetime")

	if err := fs.Parse(args); err != nil {
		return err
	}

	userID, err := uuid.Parse(*user)
	if err != nil {
		return fmt.Errorf("invalid user id: %w", err)
	}

	manager, err := auth.New(auth.Config{SecretKey: *secret})
	if err != nil {
		return err
	}

	token, err := manager.IssueWithTTL(models.Identity{UserID: userID, Role: *role}, *ttl)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(out, token.Value)
	return err
}
