package storage

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/oicur0t/sematext2psql/internal/fault"
	"go.uber.org/zap"
)

// Execer runs a single statement on the store connection.
// *pgx.Conn satisfies it.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
}

// Postgres holds the single long-lived connection used for setup and every flush
type Postgres struct {
	conn   Execer
	close  func(ctx context.Context) error
	table  string
	logger *zap.Logger
}

// ConnString builds a connection URL. TLS is never negotiated.
func ConnString(host, port, user, password, database string) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(user, password),
		Host:     net.JoinHostPort(host, port),
		Path:     "/" + database,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// ConnectPostgres opens one connection to PostgreSQL. It is not pooled and never reconnected.
func ConnectPostgres(ctx context.Context, connString, table string, logger *zap.Logger) (*Postgres, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, fault.New(fault.StoreConnection, "failed to connect to PostgreSQL").WithOriginal(err)
	}

	logger.Info("Connected to PostgreSQL",
		zap.String("host", conn.Config().Host),
		zap.Uint16("port", conn.Config().Port),
		zap.String("database", conn.Config().Database))

	p := NewPostgres(conn, table, logger)
	p.close = conn.Close
	return p, nil
}

// NewPostgres wraps an existing connection
func NewPostgres(conn Execer, table string, logger *zap.Logger) *Postgres {
	return &Postgres{
		conn:   conn,
		table:  table,
		logger: logger,
	}
}

// Conn returns the connection batches are written through
func (p *Postgres) Conn() Execer {
	return p.conn
}

// Table returns the destination table name
func (p *Postgres) Table() string {
	return p.table
}

// EnsureSchema creates the log table and its indexes if they are missing
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	for _, stmt := range SchemaStatements(p.table) {
		if _, err := p.conn.Exec(ctx, stmt); err != nil {
			return fault.Newf(fault.StoreWrite, "failed to set up table %s", p.table).WithOriginal(err)
		}
	}

	p.logger.Info("Table ready", zap.String("table", p.table))
	return nil
}

// SchemaStatements returns the idempotent DDL for table. route is reserved and never written by the importer.
func SchemaStatements(table string) []string {
	name := TableIdentifier(table)
	ident := name.Sanitize()
	// indexes live in the table's schema, so their names are never qualified
	index := func(column string) string {
		return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
			pgx.Identifier{name[len(name)-1] + "_" + column}.Sanitize(), ident, column)
	}

	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	pod_name text NOT NULL,
	message text,
	route text,
	created_at timestamp NOT NULL
)`, ident),
		index("pod_name"),
		index("created_at"),
		index("route"),
	}
}

// TableIdentifier splits an optionally schema-qualified name ("analytics.logs") into its parts
func TableIdentifier(table string) pgx.Identifier {
	return pgx.Identifier(strings.Split(table, "."))
}

// Close closes the connection
func (p *Postgres) Close(ctx context.Context) error {
	if p.close == nil {
		return nil
	}
	return p.close(ctx)
}
