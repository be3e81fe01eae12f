package provisioning

import "context"

// TenantUser is a row from a tenant database's users table. This package is
// the only code allowed to touch tenant databases directly.
type TenantUser struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	IsActive     bool
	IsAdmin      bool
	MustChange   bool
}

// TenantUserByEmail looks a user up in a tenant database.
func (p *Provisioner) TenantUserByEmail(ctx context.Context, database, user, password, email string) (*TenantUser, error) {
	conn, err := p.conn.Tenant(ctx, database, user, password)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var out TenantUser

	found, err := conn.QueryRow(ctx,
		`SELECT id, email, password_hash, name, is_active, is_admin, must_change_password
		 FROM users WHERE email = $1`,
		[]interface{}{&out.ID, &out.Email, &out.PasswordHash, &out.Name, &out.IsActive, &out.IsAdmin, &out.MustChange},
		email)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &out, nil
}

// SetTenantUserPassword writes a new hash and clears the first-login flag.
func (p *Provisioner) SetTenantUserPassword(ctx context.Context, database, user, password, email, newHash string) error {
	conn, err := p.conn.Tenant(ctx, database, user, password)
	if err != nil {
		return err
	}
	defer conn.Close()

	return conn.Exec(ctx,
		`UPDATE users SET password_hash = $1, must_change_password = FALSE, updated_at = CURRENT_TIMESTAMP
		 WHERE email = $2`,
		newHash, email)
}

// TouchTenantUserLogin records a successful login.
func (p *Provisioner) TouchTenantUserLogin(ctx context.Context, database, user, password, email string) error {
	conn, err := p.conn.Tenant(ctx, database, user, password)
	if err != nil {
		return err
	}
	defer conn.Close()

	return conn.Exec(ctx,
		`UPDATE users SET last_login = CURRENT_TIMESTAMP WHERE email = $1`, email)
}
