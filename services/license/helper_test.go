package license

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"license-controlplane/pkg/config"
	"license-controlplane/pkg/gen"
	"license-controlplane/pkg/keys"
	"license-controlplane/services/client"
	"license-controlplane/services/testutil"
)

var (
	testKeysOnce sync.Once
	testKeys     *keys.Manager
	testKeysErr  error
)

// testManager shares one generated RSA pair across the package; generating
// a fresh 4096-bit key per test is too slow.
func testManager(t *testing.T) *keys.Manager {
	t.Helper()

	testKeysOnce.Do(func() {
		dir, err := os.MkdirTemp("", "license-keys")
		if err != nil {
			testKeysErr = err
			return
		}
		cfg := &config.Config{}
		cfg.License.PrivateKeyPath = filepath.Join(dir, "private.pem")
		cfg.License.PublicKeyPath = filepath.Join(dir, "public.pem")
		testKeys, testKeysErr = keys.New(keys.Params{Config: cfg})
	})
	if testKeysErr != nil {
		t.Fatalf("failed to prepare signing keys: %v", testKeysErr)
	}
	return testKeys
}

type testEnv struct {
	svc     *Service
	clients *client.Service
	client  *client.Client
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.NewTestDB(t, &License{}, &Validation{}, &client.Client{})

	node, err := gen.NewSnowflakeNode()
	if err != nil {
		t.Fatalf("failed to create snowflake node: %v", err)
	}

	clients := client.NewService(client.ServiceParams{DB: db, Node: node})
	engine := NewSignatureEngine(testManager(t))
	svc := NewService(ServiceParams{DB: db, Clients: clients, Signer: engine, Node: node})

	c, err := clients.Create(context.Background(), client.CreateRequest{
		Name:     "Padaria do Centro",
		Email:    "padaria@example.com",
		Document: "12.345.678/0001-90",
	})
	if err != nil {
		t.Fatalf("failed to create test client: %v", err)
	}

	return &testEnv{svc: svc, clients: clients, client: c}
}

func (e *testEnv) createLicense(t *testing.T, plan Plan, expires time.Time) *License {
	t.Helper()

	l, err := e.svc.Create(context.Background(), CreateRequest{
		ClientID:  e.client.ID,
		Plan:      plan,
		ExpiresAt: &expires,
	})
	if err != nil {
		t.Fatalf("failed to create test license: %v", err)
	}
	return l
}
