package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"text/tabwriter"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"learnhub.org/internal/migrate"
)

const usage = `usage: migrate [flags] <command>

commands:
  up      apply pending schema migrations
  down    revert the latest schema migration
  seed    apply seed scripts not yet recorded
  status  list schema migrations and their state

flags:
`

func main() {
	log.SetFlags(0)
	log.SetPrefix("migrate: ")

	dsn := flag.String("dsn", os.Getenv("LEARNHUB_PG_DSN"), "PostgreSQL DSN (env LEARNHUB_PG_DSN)")
	dir := flag.String("migrations", "", "read schema scripts from this directory instead of the embedded set")
	seedDir := flag.String("seeds", "", "read seed scripts from this directory instead of the embedded set")
	deadline := flag.Duration("timeout", time.Minute, "give up after this long")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	if *dsn == "" {
		log.Fatal("no DSN: pass -dsn or set LEARNHUB_PG_DSN")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *deadline)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("open: %v", err)
	}
	defer db.Close()

	mgr := migrate.NewManager(db, source(*dir, migrate.Migrations()), source(*seedDir, migrate.Seeds()))

	cmd := flag.Arg(0)
	switch cmd {
	case "up":
		err = mgr.Up(ctx)
	case "down":
		err = mgr.Down(ctx)
		if errors.Is(err, migrate.ErrNothingToRollback) {
			log.Print("nothing to revert")
			err = nil
		}
	case "seed":
		err = mgr.Seed(ctx)
	case "status":
		err = printStatus(ctx, mgr)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}

func source(dir string, embedded fs.FS) fs.FS {
	if dir == "" {
		return embedded
	}
	return os.DirFS(dir)
}

func printStatus(ctx context.Context, mgr *migrate.Manager) error {
	entries, err := mgr.Status(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STATE\tAPPLIED AT\tNAME")
	for _, e := range entries {
		state, at := "pending", "-"
		if e.Applied() {
			state, at = "applied", e.AppliedAt.Format(time.RFC3339)
		}
		if e.Orphan {
			state = "orphan"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", state, at, e.Name)
	}
	return w.Flush()
}
