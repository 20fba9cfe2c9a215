package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/rfs/internal/storage/postgres"
)

const commandTimeout = 30 * time.Second

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: migrate [flags] <command>

Commands:
  up       apply pending migrations (all, or -steps newest first)
  down     roll back applied migrations (-steps, default 1)
  status   print current schema version

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	var (
		steps = flag.Int("steps", 0, "limit the number of migrations to apply/roll back")
		dsn   = flag.String("dsn", "", "PostgreSQL DSN (fallback: RFS_DATABASE_URL)")
	)
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 1 {
		usage()
		os.Exit(2)
	}
	command := flag.Arg(0)

	target := strings.TrimSpace(*dsn)
	if target == "" {
		target = strings.TrimSpace(os.Getenv("RFS_DATABASE_URL"))
	}
	if target == "" {
		fail("RFS_DATABASE_URL (or -dsn) is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	store, err := postgres.Open(ctx, target)
	if err != nil {
		fail("open postgres store: %v", err)
	}
	defer store.Close()

	switch command {
	case "up":
		if err := store.MigrateUp(ctx, *steps); err != nil {
			fail("migrate up failed: %v", err)
		}
		report(ctx, store, "migrate up ok")
	case "down":
		if err := store.MigrateDown(ctx, *steps); err != nil {
			fail("migrate down failed: %v", err)
		}
		report(ctx, store, "migrate down ok")
	case "status":
		report(ctx, store, "schema")
	default:
		fail("unknown command %q (use up|down|status)", command)
	}
}

func report(ctx context.Context, store *postgres.Store, prefix string) {
	state, err := store.Status(ctx)
	if err != nil {
		fail("schema status failed: %v", err)
	}
	fmt.Printf("%s: version=%d applied=%d\n", prefix, state.Version, state.Applied)
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
