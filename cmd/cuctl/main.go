// Package main provides an operator CLI for a consumption unit collection.
//
// Usage:
//
//	cuctl query    [store flags] '<query json>'
//	cuctl tokens   [store flags] [-owner addr]
//	cuctl migrate  [store flags]
//	cuctl schema   -postgres-dsn dsn | -clickhouse-dsn dsn
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"consumption-unit/internal/address"
	"consumption-unit/internal/consumption"
	"consumption-unit/internal/contract"
	"consumption-unit/internal/state"
	"consumption-unit/internal/storage"
	"consumption-unit/internal/storage/badger"
	"consumption-unit/internal/storage/migrations"
	pgstore "consumption-unit/internal/storage/postgres"
)

const usage = `usage: cuctl <command> [flags]

commands:
  query    run a JSON query against the collection
  tokens   list every token id, optionally for one owner
  migrate  bump the stored contract version
  schema   apply SQL migrations to PostgreSQL and/or ClickHouse
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	if err := run(ctx, os.Args[1], os.Args[2:], os.Stdout, logger); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd string, args []string, out io.Writer, logger *slog.Logger) error {
	switch cmd {
	case "query":
		return runQuery(ctx, args, out, logger)
	case "tokens":
		return runTokens(ctx, args, out, logger)
	case "migrate":
		return runMigrate(ctx, args, out, logger)
	case "schema":
		return runSchema(ctx, args, out)
	default:
		return fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}
}

// storeFlags selects the state backend.
type storeFlags struct {
	backend     string
	badgerDir   string
	postgresDSN string
}

func (f *storeFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.backend, "backend", "badger", "State backend (badger, postgres)")
	fs.StringVar(&f.badgerDir, "badger-dir", "data/badger", "Badger data directory")
	fs.StringVar(&f.postgresDSN, "postgres-dsn", os.Getenv("STORAGE_POSTGRES_DSN"), "PostgreSQL connection string")
}

func (f *storeFlags) open(ctx context.Context, logger *slog.Logger) (storage.Store, func(), error) {
	switch f.backend {
	case "badger":
		db, err := badger.Open(ctx, f.badgerDir, logger)
		if err != nil {
			return nil, nil, err
		}
		return db, func() { _ = db.Close() }, nil
	case "postgres":
		if f.postgresDSN == "" {
			return nil, nil, errors.New("-postgres-dsn is required for the postgres backend")
		}
		pool, err := pgstore.NewPool(ctx, f.postgresDSN, 2)
		if err != nil {
			return nil, nil, err
		}
		return pgstore.NewKVStore(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", f.backend)
	}
}

func openRouter(ctx context.Context, f *storeFlags, logger *slog.Logger) (*contract.Router, *consumption.Contract, func(), error) {
	store, cleanup, err := f.open(ctx, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	// Identities were validated on write; reads need no format rules.
	c := consumption.New(store, address.Loose{})
	return contract.NewRouter(c, nil, nil, nil, logger), c, cleanup, nil
}

func runQuery(ctx context.Context, args []string, out io.Writer, logger *slog.Logger) error {
	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	var sf storeFlags
	sf.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("query takes exactly one JSON argument")
	}

	router, _, cleanup, err := openRouter(ctx, &sf, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := router.Query(ctx, []byte(fs.Arg(0)))
	if err != nil {
		return err
	}
	return printJSON(out, res)
}

func runTokens(ctx context.Context, args []string, out io.Writer, logger *slog.Logger) error {
	fs := flag.NewFlagSet("tokens", flag.ContinueOnError)
	var sf storeFlags
	sf.register(fs)
	owner := fs.String("owner", "", "Only list tokens of this owner")
	if err := fs.Parse(args); err != nil {
		return err
	}

	_, c, cleanup, err := openRouter(ctx, &sf, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	after := ""
	for {
		var page []string
		if *owner != "" {
			page, err = c.Tokens(ctx, *owner, after, state.MaxLimit)
		} else {
			page, err = c.AllTokens(ctx, after, state.MaxLimit)
		}
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}
		for _, id := range page {
			fmt.Fprintln(out, id)
		}
		after = page[len(page)-1]
	}
}

func runMigrate(ctx context.Context, args []string, out io.Writer, logger *slog.Logger) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	var sf storeFlags
	sf.register(fs)
	sender := fs.String("sender", "cuctl", "Identity recorded as the caller")
	if err := fs.Parse(args); err != nil {
		return err
	}

	router, _, cleanup, err := openRouter(ctx, &sf, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	resp, err := router.Migrate(ctx, contract.Info{Sender: *sender}, []byte(`{"migrate":{}}`))
	if err != nil {
		return err
	}
	return printJSON(out, resp)
}

func runSchema(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("schema", flag.ContinueOnError)
	postgresDSN := fs.String("postgres-dsn", "", "PostgreSQL connection string")
	clickhouseDSN := fs.String("clickhouse-dsn", "", "ClickHouse connection string")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *postgresDSN == "" && *clickhouseDSN == "" {
		return errors.New("at least one of -postgres-dsn and -clickhouse-dsn is required")
	}

	if *postgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, *postgresDSN, 2)
		if err != nil {
			return err
		}
		defer pool.Close()
		applied, err := migrations.RunPostgresMigrations(ctx, pool)
		if err != nil {
			return fmt.Errorf("postgres migrations: %w", err)
		}
		fmt.Fprintf(out, "postgres: applied %d migration(s) %v\n", len(applied), applied)
	}
	if *clickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, *clickhouseDSN)
		if err != nil {
			return fmt.Errorf("clickhouse migrations: %w", err)
		}
		conn.Close()
		fmt.Fprintln(out, "clickhouse: schema up to date")
	}
	return nil
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
