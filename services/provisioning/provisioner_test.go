package provisioning

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeCluster stands in for the provisioning PostgreSQL cluster. It tracks
// the objects that exist and records every statement executed.
type fakeCluster struct {
	roles     map[string]bool
	databases map[string]bool
	users     map[string]bool
	execLog   []string
	failOn    string
}

func newFakeCluster() *fakeCluster {
	return &fakeCluster{
		roles:     map[string]bool{},
		databases: map[string]bool{},
		users:     map[string]bool{},
	}
}

func (f *fakeCluster) Admin(ctx context.Context) (Conn, error) {
	return &fakeConn{cluster: f}, nil
}

func (f *fakeCluster) Tenant(ctx context.Context, database, user, password string) (Conn, error) {
	if !f.databases[database] {
		return nil, errors.New("database " + database + " does not exist")
	}
	return &fakeConn{cluster: f}, nil
}

func (f *fakeCluster) countExec(substr string) int {
	n := 0
	for _, q := range f.execLog {
		if strings.Contains(q, substr) {
			n++
		}
	}
	return n
}

type fakeConn struct {
	cluster *fakeCluster
}

func (c *fakeConn) Exec(ctx context.Context, query string, args ...interface{}) error {
	f := c.cluster
	if f.failOn != "" && strings.Contains(query, f.failOn) {
		return errors.New("forced failure")
	}
	f.execLog = append(f.execLog, query)

	switch {
	case strings.HasPrefix(query, "CREATE ROLE "):
		name := strings.Fields(query)[2]
		f.roles[strings.Trim(name, `"`)] = true
	case strings.HasPrefix(query, "CREATE DATABASE "):
		name := strings.Fields(query)[2]
		f.databases[strings.Trim(name, `"`)] = true
	case strings.HasPrefix(query, "INSERT INTO users"):
		f.users[args[0].(string)] = true
	}
	return nil
}

func (c *fakeConn) Exists(ctx context.Context, query string, args ...interface{}) (bool, error) {
	f := c.cluster
	key, _ := args[0].(string)
	switch {
	case strings.Contains(query, "pg_roles"):
		return f.roles[key], nil
	case strings.Contains(query, "pg_database"):
		return f.databases[key], nil
	case strings.Contains(query, "FROM users"):
		return f.users[key], nil
	}
	return false, nil
}

func (c *fakeConn) QueryInt(ctx context.Context, query string, args ...interface{}) (int, error) {
	return 0, nil
}

func (c *fakeConn) QueryStrings(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	return nil, nil
}

func (c *fakeConn) QueryRow(ctx context.Context, query string, dest []interface{}, args ...interface{}) (bool, error) {
	return false, nil
}

func (c *fakeConn) Close() error { return nil }

func testParams() ProvisionParams {
	return ProvisionParams{
		TenantCode:    "12345678000190",
		DatabaseName:  "cliente_12345678000190",
		DatabaseUser:  "user_12345678000190",
		DatabasePass:  "s3cret",
		AdminEmail:    "owner@example.com",
		AdminPassword: "12345678000190",
		AdminName:     "Owner",
	}
}

func TestProvisionCreatesEverything(t *testing.T) {
	cluster := newFakeCluster()
	p := NewProvisionerWithConnector(cluster, 0)

	ok, detail := p.Provision(context.Background(), testParams())
	require.True(t, ok, detail)

	require.True(t, cluster.roles["user_12345678000190"])
	require.True(t, cluster.databases["cliente_12345678000190"])
	require.True(t, cluster.users["owner@example.com"])

	require.Equal(t, 1, cluster.countExec("CREATE ROLE"))
	require.Equal(t, 1, cluster.countExec("CREATE DATABASE"))
	require.Equal(t, 1, cluster.countExec("GRANT ALL PRIVILEGES ON DATABASE"))
	require.Equal(t, 1, cluster.countExec("uuid-ossp"))
	require.Equal(t, 1, cluster.countExec("INSERT INTO users"))
}

func TestProvisionIsIdempotent(t *testing.T) {
	cluster := newFakeCluster()
	p := NewProvisionerWithConnector(cluster, 0)

	ok, _ := p.Provision(context.Background(), testParams())
	require.True(t, ok)

	ok, detail := p.Provision(context.Background(), testParams())
	require.True(t, ok, detail)

	// existence checks skip creation on the second run
	require.Equal(t, 1, cluster.countExec("CREATE ROLE"))
	require.Equal(t, 1, cluster.countExec("CREATE DATABASE"))
	require.Equal(t, 1, cluster.countExec("INSERT INTO users"))

	// the schema and grants re-apply every run and must stay safe to re-run
	require.Equal(t, 2, cluster.countExec("CREATE TABLE IF NOT EXISTS"))
}

func TestProvisionResumesAfterPartialFailure(t *testing.T) {
	cluster := newFakeCluster()
	cluster.failOn = "GRANT ALL PRIVILEGES ON DATABASE"
	p := NewProvisionerWithConnector(cluster, 0)

	ok, detail := p.Provision(context.Background(), testParams())
	require.False(t, ok)
	require.Contains(t, detail, "grant_privileges")

	cluster.failOn = ""
	ok, detail = p.Provision(context.Background(), testParams())
	require.True(t, ok, detail)

	// role and database from the first attempt are reused, not recreated
	require.Equal(t, 1, cluster.countExec("CREATE ROLE"))
	require.Equal(t, 1, cluster.countExec("CREATE DATABASE"))
	require.True(t, cluster.users["owner@example.com"])
}

func TestProvisionRejectsBadIdentifiers(t *testing.T) {
	cluster := newFakeCluster()
	p := NewProvisionerWithConnector(cluster, 0)

	params := testParams()
	params.DatabaseName = `cliente_x"; DROP DATABASE postgres; --`

	ok, detail := p.Provision(context.Background(), params)
	require.False(t, ok)
	require.Contains(t, detail, "not a valid identifier")
	require.Empty(t, cluster.execLog)
}

func TestStepErrorWrapsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := stepErr("create_role", cause)

	var perr *Error
	require.True(t, errors.As(err, &perr))
	require.Equal(t, "create_role", perr.Step)
	require.ErrorIs(t, err, cause)
}
