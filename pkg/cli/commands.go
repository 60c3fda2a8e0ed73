package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/meridianhq/meridian/pkg/audit"
	"github.com/meridianhq/meridian/pkg/auth"
	"github.com/meridianhq/meridian/pkg/config"
	"github.com/meridianhq/meridian/pkg/rbac"
	"github.com/meridianhq/meridian/pkg/storage"
)

func openDatabase(ctx context.Context) (*sql.DB, *config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	db, err := storage.Open(ctx, storage.PoolConfig{
		URL:          cfg.DB.URL,
		MaxOpenConns: cfg.DB.MaxOpenConns,
		MaxIdleConns: cfg.DB.MaxIdleConns,
		PingTimeout:  cfg.DB.QueryTimeout,
	})
	if err != nil {
		return nil, nil, err
	}
	return db, cfg, nil
}

func newMigrateCommand() *Command {
	return &Command{
		Name:        "migrate",
		Description: "Apply pending database migrations",
		Run: func(args []string) error {
			ctx := context.Background()
			db, _, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := storage.RunMigrations(ctx, db); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Println("migrations applied")
			return nil
		},
	}
}

func newTokenCommand() *Command {
	return &Command{
		Name:        "token",
		Description: "Mint a session token for local development",
		Run: func(args []string) error {
			fs := flag.NewFlagSet("token", flag.ExitOnError)
			externalID := fs.String("external-id", "", "Subject of the token")
			email := fs.String("email", "", "Email claim")
			name := fs.String("name", "", "Name claim")
			ttl := fs.Duration("ttl", 24*time.Hour, "Token lifetime")
			if err := fs.Parse(args); err != nil {
				return err
			}
			if *externalID == "" || *email == "" {
				return fmt.Errorf("both -external-id and -email are required")
			}

			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("session tokens require MERIDIAN_JWT_SECRET")
			}

			token, err := auth.IssueSessionToken(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, &auth.Identity{
				ExternalID: *externalID,
				Email:      *email,
				Name:       *name,
			}, *ttl)
			if err != nil {
				return fmt.Errorf("failed to issue token: %w", err)
			}
			fmt.Println(token)
			return nil
		},
	}
}

func newSeedRolesCommand() *Command {
	return &Command{
		Name:        "seed-roles",
		Description: "Seed role templates into a company",
		Run: func(args []string) error {
			fs := flag.NewFlagSet("seed-roles", flag.ExitOnError)
			companyID := fs.Int64("company", 0, "Company id to seed")
			file := fs.String("file", "", "Template file (defaults to MERIDIAN_ROLE_TEMPLATES_FILE)")
			if err := fs.Parse(args); err != nil {
				return err
			}
			if *companyID <= 0 {
				return fmt.Errorf("-company is required")
			}

			ctx := context.Background()
			db, cfg, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			path := *file
			if path == "" {
				path = cfg.Roles.TemplatesFile
			}
			if path == "" {
				return fmt.Errorf("no template file: pass -file or set MERIDIAN_ROLE_TEMPLATES_FILE")
			}

			templates, err := rbac.LoadTemplates(path)
			if err != nil {
				return err
			}
			store := rbac.NewPostgresRoleStore(db)
			if err := templates.Seed(ctx, store, *companyID); err != nil {
				return fmt.Errorf("seeding failed: %w", err)
			}
			fmt.Printf("seeded %d templates into company %d\n", len(templates.Templates), *companyID)
			return nil
		},
	}
}

func newAuditCommand() *Command {
	return &Command{
		Name:        "audit",
		Description: "Print recent audit log entries for a company",
		Run: func(args []string) error {
			fs := flag.NewFlagSet("audit", flag.ExitOnError)
			companyID := fs.Int64("company", 0, "Company id")
			limit := fs.Int("limit", 50, "Max entries")
			if err := fs.Parse(args); err != nil {
				return err
			}
			if *companyID <= 0 {
				return fmt.Errorf("-company is required")
			}

			ctx := context.Background()
			db, _, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			entries, err := audit.NewPostgresSink(db).List(ctx, *companyID, *limit)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			for _, entry := range entries {
				if err := enc.Encode(entry); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
