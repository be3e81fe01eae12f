package provisioning

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"license-controlplane/pkg/config"
	"license-controlplane/pkg/security"
)

// identPattern is the only shape of role and database names we will ever
// interpolate into DDL.
var identPattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// Provisioner creates and configures per-tenant databases. Every step checks
// for prior state first, so a whole run can be safely re-invoked after a
// partial failure.
type Provisioner struct {
	conn           Connector
	readinessDelay time.Duration
}

type ProvisionerParams struct {
	fx.In

	Config *config.Config
}

func NewProvisioner(p ProvisionerParams) *Provisioner {
	return &Provisioner{
		conn:           NewConnector(p.Config.TenantDatabase),
		readinessDelay: time.Second,
	}
}

// NewProvisionerWithConnector wires a custom connector, used by tests.
func NewProvisionerWithConnector(conn Connector, readinessDelay time.Duration) *Provisioner {
	return &Provisioner{conn: conn, readinessDelay: readinessDelay}
}

type ProvisionParams struct {
	TenantCode    string
	DatabaseName  string
	DatabaseUser  string
	DatabasePass  string
	AdminEmail    string
	AdminPassword string
	AdminName     string
}

func (p ProvisionParams) validate() error {
	if !identPattern.MatchString(p.DatabaseName) {
		return fmt.Errorf("database name %q is not a valid identifier", p.DatabaseName)
	}
	if !identPattern.MatchString(p.DatabaseUser) {
		return fmt.Errorf("database user %q is not a valid identifier", p.DatabaseUser)
	}
	return nil
}

// Provision runs the full provisioning flow:
//  1. create the tenant role if absent
//  2. create the tenant database if absent (outside any transaction)
//  3. grant privileges
//  4. apply the idempotent schema as the tenant role
//  5. insert the bootstrap admin user if absent
func (p *Provisioner) Provision(ctx context.Context, params ProvisionParams) (bool, string) {
	zapLog := zap.L().With(
		zap.String("tenant_code", params.TenantCode),
		zap.String("database", params.DatabaseName),
	)

	zapLog.Info("starting tenant provisioning")

	if err := params.validate(); err != nil {
		zapLog.Error("provisioning rejected", zap.Error(err))
		return false, err.Error()
	}

	if err := p.ensureRole(ctx, params.DatabaseUser, params.DatabasePass); err != nil {
		zapLog.Error("provisioning failed", zap.Error(err))
		return false, err.Error()
	}

	if err := p.ensureDatabase(ctx, params.DatabaseName, params.DatabaseUser); err != nil {
		zapLog.Error("provisioning failed", zap.Error(err))
		return false, err.Error()
	}

	if err := p.grantPrivileges(ctx, params.DatabaseName, params.DatabaseUser); err != nil {
		zapLog.Error("provisioning failed", zap.Error(err))
		return false, err.Error()
	}

	// give the engine a moment before connecting to the fresh database
	time.Sleep(p.readinessDelay)

	if err := p.applySchema(ctx, params.DatabaseName, params.DatabaseUser, params.DatabasePass); err != nil {
		zapLog.Error("provisioning failed", zap.Error(err))
		return false, err.Error()
	}

	if err := p.createAdminUser(ctx, params); err != nil {
		zapLog.Error("provisioning failed", zap.Error(err))
		return false, err.Error()
	}

	zapLog.Info("tenant provisioning completed")
	return true, "provisioning completed successfully"
}

func (p *Provisioner) ensureRole(ctx context.Context, user, password string) error {
	conn, err := p.conn.Admin(ctx)
	if err != nil {
		return stepErr("create_role", err)
	}
	defer conn.Close()

	exists, err := conn.Exists(ctx, "SELECT 1 FROM pg_roles WHERE rolname = $1", user)
	if err != nil {
		return stepErr("create_role", err)
	}
	if exists {
		zap.L().Info("tenant role already exists", zap.String("role", user))
		return nil
	}

	// CREATE ROLE does not accept bind parameters; the identifier is
	// allow-listed and the password goes through literal quoting.
	stmt := fmt.Sprintf("CREATE ROLE %s WITH PASSWORD %s LOGIN NOSUPERUSER NOCREATEDB NOCREATEROLE",
		quoteIdent(user), quoteLiteral(password))
	if err := conn.Exec(ctx, stmt); err != nil {
		return stepErr("create_role", err)
	}

	return nil
}

func (p *Provisioner) ensureDatabase(ctx context.Context, database, owner string) error {
	conn, err := p.conn.Admin(ctx)
	if err != nil {
		return stepErr("create_database", err)
	}
	defer conn.Close()

	exists, err := conn.Exists(ctx, "SELECT 1 FROM pg_database WHERE datname = $1", database)
	if err != nil {
		return stepErr("create_database", err)
	}
	if exists {
		zap.L().Info("tenant database already exists", zap.String("database", database))
		return nil
	}

	// CREATE DATABASE cannot run inside a transaction; the admin connection
	// executes it in autocommit mode.
	stmt := fmt.Sprintf("CREATE DATABASE %s WITH OWNER = %s ENCODING = 'UTF8' TEMPLATE = template0",
		quoteIdent(database), quoteIdent(owner))
	if err := conn.Exec(ctx, stmt); err != nil {
		return stepErr("create_database", err)
	}

	return nil
}

func (p *Provisioner) grantPrivileges(ctx context.Context, database, user string) error {
	conn, err := p.conn.Admin(ctx)
	if err != nil {
		return stepErr("grant_privileges", err)
	}
	defer conn.Close()

	stmt := fmt.Sprintf("GRANT ALL PRIVILEGES ON DATABASE %s TO %s", quoteIdent(database), quoteIdent(user))
	if err := conn.Exec(ctx, stmt); err != nil {
		return stepErr("grant_privileges", err)
	}

	return nil
}

func (p *Provisioner) applySchema(ctx context.Context, database, user, password string) error {
	conn, err := p.conn.Tenant(ctx, database, user, password)
	if err != nil {
		return stepErr("apply_schema", err)
	}
	defer conn.Close()

	if err := conn.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`); err != nil {
		return stepErr("apply_schema", err)
	}

	if err := conn.Exec(ctx, tenantSchemaSQL); err != nil {
		return stepErr("apply_schema", err)
	}

	grants := fmt.Sprintf(`GRANT ALL PRIVILEGES ON ALL TABLES IN SCHEMA public TO %s;
GRANT ALL PRIVILEGES ON ALL SEQUENCES IN SCHEMA public TO %s;`, quoteIdent(user), quoteIdent(user))
	if err := conn.Exec(ctx, grants); err != nil {
		return stepErr("apply_schema", err)
	}

	return nil
}

func (p *Provisioner) createAdminUser(ctx context.Context, params ProvisionParams) error {
	conn, err := p.conn.Tenant(ctx, params.DatabaseName, params.DatabaseUser, params.DatabasePass)
	if err != nil {
		return stepErr("create_admin_user", err)
	}
	defer conn.Close()

	exists, err := conn.Exists(ctx, "SELECT 1 FROM users WHERE email = $1", params.AdminEmail)
	if err != nil {
		return stepErr("create_admin_user", err)
	}
	if exists {
		zap.L().Info("tenant admin user already exists", zap.String("email", params.AdminEmail))
		return nil
	}

	// the tenant application still reads the legacy SHA-256 scheme, and
	// must_change_password forces a rotation on first login
	passwordHash := security.HashSHA256Hex(params.AdminPassword)

	err = conn.Exec(ctx,
		`INSERT INTO users (email, password_hash, name, is_active, is_admin, must_change_password)
		 VALUES ($1, $2, $3, TRUE, TRUE, TRUE)`,
		params.AdminEmail, passwordHash, params.AdminName)
	if err != nil {
		return stepErr("create_admin_user", err)
	}

	return nil
}

// Health describes a tenant database's liveness as seen from a fresh
// connection.
type Health struct {
	Tables int    `json:"tables"`
	Users  int    `json:"users"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// CheckTenantDatabase connects as the tenant role and reports table and
// user counts.
func (p *Provisioner) CheckTenantDatabase(ctx context.Context, database, user, password string) *Health {
	conn, err := p.conn.Tenant(ctx, database, user, password)
	if err != nil {
		return &Health{Status: "error", Error: err.Error()}
	}
	defer conn.Close()

	tables, err := conn.QueryStrings(ctx,
		"SELECT table_name FROM information_schema.tables WHERE table_schema = 'public'")
	if err != nil {
		return &Health{Status: "error", Error: err.Error()}
	}

	users, err := conn.QueryInt(ctx, "SELECT COUNT(*) FROM users")
	if err != nil {
		return &Health{Status: "error", Error: err.Error()}
	}

	return &Health{Tables: len(tables), Users: users, Status: "healthy"}
}

// DeleteTenantDatabase drops a tenant's database and role. Irreversible.
func (p *Provisioner) DeleteTenantDatabase(ctx context.Context, database, user string) error {
	if !identPattern.MatchString(database) || !identPattern.MatchString(user) {
		return fmt.Errorf("invalid identifier")
	}

	conn, err := p.conn.Admin(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.Exec(ctx,
		"SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE datname = $1", database); err != nil {
		return err
	}

	if err := conn.Exec(ctx, fmt.Sprintf("DROP DATABASE IF EXISTS %s", quoteIdent(database))); err != nil {
		return err
	}

	if err := conn.Exec(ctx, fmt.Sprintf("DROP ROLE IF EXISTS %s", quoteIdent(user))); err != nil {
		return err
	}

	zap.L().Info("tenant database removed", zap.String("database", database), zap.String("role", user))
	return nil
}
