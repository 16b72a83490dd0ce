package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"

	"github.com/spf13/cobra"

	"github.com/erazemk/webventory/internal/auth"
	"github.com/erazemk/webventory/internal/model"
	"github.com/erazemk/webventory/internal/seed"
	"github.com/erazemk/webventory/internal/store"
)

func initCmd(a *app) *cobra.Command {
	var username, email string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the database and, optionally, a first account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfg.DB
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("database %s already exists", path)
			}

			database, err := openDatabase(path)
			if err != nil {
				os.Remove(path)
				return err
			}
			defer database.Close()

			fmt.Printf("Database created: %s\n", path)
			fmt.Println("Schema initialized.")

			if username == "" {
				return nil
			}

			password, err := createAccount(cmd.Context(), database, username, email)
			if err != nil {
				database.Close()
				os.Remove(path)
				return err
			}
			printAccount(username, password)
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "user", "u", "", "create an account with this username")
	cmd.Flags().StringVar(&email, "email", "", "email of the created account")
	cmd.MarkFlagsRequiredTogether("user", "email")
	return cmd
}

// createAccount creates a user with a generated password and returns it.
func createAccount(ctx context.Context, database *sql.DB, username, email string) (string, error) {
	if err := errors.Join(model.ValidateUsername(username), model.ValidateEmail(email)); err != nil {
		return "", err
	}

	password, err := generatePassword(16)
	if err != nil {
		return "", fmt.Errorf("generating password: %w", err)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return "", err
	}

	if _, err := store.CreateUser(ctx, database, username, email, hash); err != nil {
		return "", fmt.Errorf("creating user: %w", err)
	}
	return password, nil
}

// printAccount prints the created account to stdout.
func printAccount(username, password string) {
	fmt.Println()
	fmt.Println("Account created:")
	fmt.Printf("  Username: %s\n", username)
	fmt.Printf("  Password: %s\n", password)
	fmt.Println()
	fmt.Println("Save this password, it cannot be recovered.")
	fmt.Println("It can be changed under Settings after logging in.")
}

// generatePassword creates a random password of the given length.
func generatePassword(length int) (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%&*"
	result := make([]byte, length)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		result[i] = charset[n.Int64()]
	}
	return string(result), nil
}

func seedCmd(a *app) *cobra.Command {
	var (
		file string
		opts = seed.DefaultOptions("")
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Fill the database with mock data",
		Long: `Seed fills the database with mock data.

With --file, users, items and their history are loaded from a YAML fixture
file. Otherwise --items random items owned by --user are created, followed
by --changes rounds of random price and quantity changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" && opts.Owner == "" {
				return errors.New("either --file or --user is required")
			}

			database, err := openDatabase(a.cfg.DB)
			if err != nil {
				return err
			}
			defer database.Close()

			var res seed.Result
			if file != "" {
				res, err = seedFile(cmd.Context(), database, file)
			} else {
				res, err = seed.Random(cmd.Context(), database, opts)
			}
			if err != nil {
				return err
			}

			slog.Info("database seeded", "users", res.Users, "items", res.Items, "changes", res.Changes)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML fixture file")
	cmd.Flags().StringVarP(&opts.Owner, "user", "u", "", "owner of the random items")
	cmd.Flags().IntVar(&opts.Items, "items", opts.Items, "number of random items")
	cmd.Flags().IntVar(&opts.Changes, "changes", opts.Changes, "rounds of random changes")
	cmd.MarkFlagsMutuallyExclusive("file", "user")
	return cmd
}

// seedFile loads a YAML fixture file into database.
func seedFile(ctx context.Context, database *sql.DB, path string) (seed.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return seed.Result{}, fmt.Errorf("opening fixtures: %w", err)
	}
	defer f.Close()

	fixtures, err := seed.ParseFixtures(f)
	if err != nil {
		return seed.Result{}, err
	}
	return seed.Load(ctx, database, fixtures)
}
