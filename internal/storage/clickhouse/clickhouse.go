// Package clickhouse keeps the audit log in ClickHouse.
package clickhouse

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const defaultNativePort = "9000"

// Conn is a native protocol connection to the audit database.
type Conn struct {
	driver.Conn
}

// NewConn connects to the database named in dsn.
func NewConn(ctx context.Context, dsn string) (*Conn, error) {
	return connect(ctx, dsn, nil)
}

// NewConnWithDatabase connects with database in place of the one in dsn.
// An empty database selects the server default.
func NewConnWithDatabase(ctx context.Context, dsn, database string) (*Conn, error) {
	return connect(ctx, dsn, &database)
}

func connect(ctx context.Context, dsn string, database *string) (*Conn, error) {
	opts, err := parseDSN(dsn)
	if err != nil {
		return nil, err
	}
	if database != nil {
		opts.Auth.Database = *database
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping clickhouse %s: %w", opts.Addr[0], err)
	}
	return &Conn{Conn: conn}, nil
}

// parseDSN accepts clickhouse://[user[:password]@]host[:port][/database].
// Event batches are small and repetitive, so the connection compresses with LZ4.
func parseDSN(dsn string) (*clickhouse.Options, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	if u.Scheme != "clickhouse" {
		return nil, fmt.Errorf("parse clickhouse dsn: unsupported scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, errors.New("parse clickhouse dsn: missing host")
	}
	port := u.Port()
	if port == "" {
		port = defaultNativePort
	}

	opts := &clickhouse.Options{
		Protocol:    clickhouse.Native,
		Addr:        []string{net.JoinHostPort(u.Hostname(), port)},
		Auth:        clickhouse.Auth{Database: strings.TrimPrefix(u.Path, "/")},
		Compression: &clickhouse.Compression{Method: clickhouse.CompressionLZ4},
	}
	if u.User != nil {
		opts.Auth.Username = u.User.Username()
		opts.Auth.Password, _ = u.User.Password()
	}
	return opts, nil
}
