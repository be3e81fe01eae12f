package provisioning

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"license-controlplane/pkg/config"
)

// Conn is the slice of database/sql the provisioner actually needs. Tests
// substitute a recording fake.
type Conn interface {
	Exec(ctx context.Context, query string, args ...interface{}) error
	Exists(ctx context.Context, query string, args ...interface{}) (bool, error)
	QueryInt(ctx context.Context, query string, args ...interface{}) (int, error)
	QueryStrings(ctx context.Context, query string, args ...interface{}) ([]string, error)
	QueryRow(ctx context.Context, query string, dest []interface{}, args ...interface{}) (bool, error)
	Close() error
}

// Connector dials the provisioning cluster. Admin connects to the master
// database; Tenant connects to a provisioned tenant database as its role.
type Connector interface {
	Admin(ctx context.Context) (Conn, error)
	Tenant(ctx context.Context, database, user, password string) (Conn, error)
}

type sqlConn struct {
	db *sql.DB
}

func (c *sqlConn) Exec(ctx context.Context, query string, args ...interface{}) error {
	_, err := c.db.ExecContext(ctx, query, args...)
	return err
}

func (c *sqlConn) Exists(ctx context.Context, query string, args ...interface{}) (bool, error) {
	var one int
	err := c.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *sqlConn) QueryInt(ctx context.Context, query string, args ...interface{}) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (c *sqlConn) QueryStrings(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (c *sqlConn) QueryRow(ctx context.Context, query string, dest []interface{}, args ...interface{}) (bool, error) {
	err := c.db.QueryRowContext(ctx, query, args...).Scan(dest...)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *sqlConn) Close() error {
	return c.db.Close()
}

type pqConnector struct {
	cfg config.TenantDatabase
}

// NewConnector returns a lib/pq backed Connector for the tenant cluster.
func NewConnector(cfg config.TenantDatabase) Connector {
	return &pqConnector{cfg: cfg}
}

func (p *pqConnector) open(database, user, password string) (Conn, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.cfg.Host, p.cfg.Port, user, password, database, p.cfg.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return &sqlConn{db: db}, nil
}

func (p *pqConnector) Admin(ctx context.Context) (Conn, error) {
	return p.open(p.cfg.Database, p.cfg.User, p.cfg.Password)
}

func (p *pqConnector) Tenant(ctx context.Context, database, user, password string) (Conn, error) {
	return p.open(database, user, password)
}

// quoteLiteral safely embeds a string value where the engine refuses bind
// parameters (CREATE ROLE ... PASSWORD).
func quoteLiteral(s string) string {
	return pq.QuoteLiteral(s)
}

// quoteIdent double-quotes an already allow-listed identifier.
func quoteIdent(s string) string {
	return pq.QuoteIdentifier(s)
}
