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

	"github.com/joho/godotenv"

	"lingua.app/internal/migrate"
)

func main() {
	_ = godotenv.Load()

	var (
		migrationsDir = flag.String("migrations", envOr("LINGUA_MIGRATIONS_DIR", "migrations/sql"), "directory with *.up.sql / *.down.sql files")
		seedsDir      = flag.String("seeds", envOr("LINGUA_SEEDS_DIR", "migrations/seeds"), "directory with seed *.sql files")
	)
	flag.Parse()

	cmd := flag.Arg(0)
	if cmd == "" {
		cmd = "up"
	}

	dsn := os.Getenv("LINGUA_PG_DSN")
	if dsn == "" {
		log.Fatal("LINGUA_PG_DSN is required")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	m := migrate.NewManager(db, *migrationsDir, *seedsDir)

	switch cmd {
	case "up":
		err = m.Up(ctx)
	case "down":
		err = m.Down(ctx)
	case "seed":
		err = m.Seed(ctx)
	case "status":
		var applied []string
		applied, err = m.Status(ctx)
		if err == nil {
			if len(applied) == 0 {
				fmt.Println("no migrations applied")
			}
			for _, name := range applied {
				fmt.Println(name)
			}
		}
	default:
		log.Fatalf("unknown command %q (want up, down, seed or status)", cmd)
	}
	if err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
