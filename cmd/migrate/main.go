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

	"crewbase.org/internal/migrate"
)

func main() {
	log.SetFlags(0)
	var (
		dsn            = flag.String("dsn", os.Getenv("CREWBASE_PG_DSN"), "PostgreSQL DSN")
		migrationsPath = flag.String("migrations", "ops/migrations/sql", "Path to SQL migrations")
		seedsPath      = flag.String("seeds", "ops/migrations/seeds", "Path to SQL seeds")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or CREWBASE_PG_DSN")
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

	runner := migrate.New(db, *migrationsPath, *seedsPath)

	switch flag.Arg(0) {
	case "up":
		var n int
		n, err = runner.Apply(ctx)
		if err == nil {
			log.Printf("applied %d migration(s)", n)
		}
	case "down":
		var name string
		name, err = runner.Rollback(ctx)
		if err == nil {
			log.Printf("rolled back %s", name)
		}
	case "seed":
		var n int
		n, err = runner.Seed(ctx)
		if err == nil {
			log.Printf("applied %d seed(s)", n)
		}
	case "status":
		var records []migrate.Record
		records, err = runner.Applied(ctx)
		if err == nil {
			for _, rec := range records {
				fmt.Printf("%s\t%s\n", rec.AppliedAt.Format(time.RFC3339), rec.Name)
			}
		}
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", flag.Arg(0), err)
	}
}
