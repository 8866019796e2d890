package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"gatehouse.dev/internal/auth"
	"gatehouse.dev/internal/migrate"
	"gatehouse.dev/internal/store/pg"
)

func main() {
	log.SetFlags(0)
	var (
		dsn        = flag.String("dsn", os.Getenv("GATEHOUSE_PG_DSN"), "PostgreSQL DSN")
		table      = flag.String("table", "", "goose version table (default goose_db_version)")
		adminEmail = flag.String("admin-email", os.Getenv("GATEHOUSE_ADMIN_EMAIL"), "administrator email created by seed")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or GATEHOUSE_PG_DSN")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|seed|status]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	opts := []migrate.Option{
		migrate.WithSeeder(func(ctx context.Context, db *sql.DB) error {
			// the password is read from the environment only
			return auth.Bootstrap(ctx, pg.New(db), auth.BootstrapOptions{
				AdminEmail:    *adminEmail,
				AdminPassword: os.Getenv("GATEHOUSE_ADMIN_PASSWORD"),
			})
		}),
	}
	if *table != "" {
		opts = append(opts, migrate.WithMigrationsTable(*table))
	}
	mgr := migrate.NewManager(db, opts...)

	switch flag.Arg(0) {
	case "up":
		err = mgr.Up(ctx)
	case "down":
		err = mgr.Down(ctx)
	case "seed":
		err = mgr.Seed(ctx)
	case "status":
		var history []migrate.MigrationStatus
		history, err = mgr.Status(ctx)
		if err == nil {
			for _, item := range history {
				fmt.Println(item)
			}
		}
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", flag.Arg(0), err)
	}
}
