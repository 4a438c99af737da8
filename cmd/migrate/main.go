package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"surveysync.org/internal/auth"
	"surveysync.org/internal/migrate"
)

var (
	dsn      string
	seedsDir string
	timeout  time.Duration
	db       *sql.DB
)

var rootCmd = &cobra.Command{
	Use:           "migrate",
	Short:         "Manage the survey sync database schema",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "hash-password" {
			return nil
		}
		if dsn == "" {
			return errors.New("missing DSN: provide via --dsn or SURVEYSYNC_PG_DSN")
		}
		var err error
		db, err = sql.Open("pgx", dsn)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if db != nil {
			_ = db.Close()
		}
	},
}

func manager() *migrate.Manager {
	var opts []migrate.Option
	if seedsDir != "" {
		opts = append(opts, migrate.WithSeeds(os.DirFS(seedsDir)))
	}
	return migrate.NewManager(db, opts...)
}

func withTimeout(fn func(ctx context.Context) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		return fn(ctx)
	}
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE:  withTimeout(func(ctx context.Context) error { return manager().Up(ctx) }),
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recent migration",
	RunE:  withTimeout(func(ctx context.Context) error { return manager().Down(ctx) }),
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the schema version and applied seeds",
	RunE: withTimeout(func(ctx context.Context) error {
		m := manager()
		v, err := m.Version(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("schema version: %d\n", v)
		seeds, err := m.AppliedSeeds(ctx)
		if err != nil {
			return err
		}
		for _, name := range seeds {
			fmt.Println("seed:", name)
		}
		return nil
	}),
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Apply reference seed files once",
	RunE:  withTimeout(func(ctx context.Context) error { return manager().Seed(ctx) }),
}

var (
	userEmail     string
	userName      string
	userRole      string
	userPartnerID string
	userPassword  string
)

var createUserCmd = &cobra.Command{
	Use:   "create-user",
	Short: "Create a console or field account",
	RunE: withTimeout(func(ctx context.Context) error {
		role, ok := auth.ParseRole(userRole)
		if !ok {
			return fmt.Errorf("unknown role %q", userRole)
		}
		if !auth.ValidateEmail(userEmail) {
			return fmt.Errorf("invalid email %q", userEmail)
		}
		if !auth.IsAdministrative(role) && userPartnerID == "" {
			return errors.New("--partner is required for partner-scoped roles")
		}
		hash, err := auth.HashPassword(userPassword)
		if err != nil {
			return err
		}
		u := &auth.User{
			Email:        userEmail,
			Name:         userName,
			Role:         role,
			PartnerID:    userPartnerID,
			PasswordHash: hash,
			IsActive:     true,
		}
		if err := auth.NewPGStore(db).Users(ctx).Create(ctx, u); err != nil {
			return err
		}
		fmt.Println(u.ID)
		return nil
	}),
}

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password <password>",
	Short: "Print a bcrypt hash for seeding accounts by hand",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := auth.HashPassword(args[0])
		if err != nil {
			return err
		}
		fmt.Println(hash)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dsn, "dsn", os.Getenv("SURVEYSYNC_PG_DSN"), "PostgreSQL DSN")
	rootCmd.PersistentFlags().StringVar(&seedsDir, "seeds", "", "Directory of seed files (defaults to the embedded reference data)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Deadline for the whole command")

	createUserCmd.Flags().StringVar(&userEmail, "email", "", "Login email")
	createUserCmd.Flags().StringVar(&userName, "name", "", "Display name")
	createUserCmd.Flags().StringVar(&userRole, "role", string(auth.RoleTeamMember), "national_admin, data_manager, partner_manager or team_member")
	createUserCmd.Flags().StringVar(&userPartnerID, "partner", "", "Partner id for partner-scoped roles")
	createUserCmd.Flags().StringVar(&userPassword, "password", "", "Initial password")
	_ = createUserCmd.MarkFlagRequired("email")
	_ = createUserCmd.MarkFlagRequired("password")

	rootCmd.AddCommand(upCmd, downCmd, statusCmd, seedCmd, createUserCmd, hashPasswordCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}
