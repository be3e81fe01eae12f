package keys

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"license-controlplane/pkg/config"
)

var Module = fx.Module("keys",
	fx.Provide(New),
)

const keyBits = 4096

// Manager owns the signing key pair. The private key stays on the issuer
// host; validators only ever need the public PEM.
type Manager struct {
	privateKeyPath string
	publicKeyPath  string

	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
}

type Params struct {
	fx.In

	Config *config.Config
}

func New(p Params) (*Manager, error) {
	m := &Manager{
		privateKeyPath: p.Config.License.PrivateKeyPath,
		publicKeyPath:  p.Config.License.PublicKeyPath,
	}

	if err := m.ensure(); err != nil {
		return nil, err
	}

	return m, nil
}

// ensure loads the key pair from disk, generating a fresh pair only when
// neither file exists. A half-present or unreadable pair is fatal: silently
// regenerating would invalidate every signature issued so far.
func (m *Manager) ensure() error {
	privExists := fileExists(m.privateKeyPath)
	pubExists := fileExists(m.publicKeyPath)

	switch {
	case privExists && pubExists:
		return m.load()
	case !privExists && !pubExists:
		return m.generate()
	default:
		return fmt.Errorf("key pair is incomplete: private=%v public=%v, refusing to regenerate", privExists, pubExists)
	}
}

func (m *Manager) load() error {
	privPEM, err := os.ReadFile(m.privateKeyPath)
	if err != nil {
		return fmt.Errorf("read private key: %w", err)
	}

	block, _ := pem.Decode(privPEM)
	if block == nil {
		return fmt.Errorf("private key %s is not valid PEM", m.privateKeyPath)
	}

	priv, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return fmt.Errorf("parse private key: %w", err)
	}

	rsaPriv, ok := priv.(*rsa.PrivateKey)
	if !ok {
		return fmt.Errorf("private key %s is not RSA", m.privateKeyPath)
	}

	pubPEM, err := os.ReadFile(m.publicKeyPath)
	if err != nil {
		return fmt.Errorf("read public key: %w", err)
	}

	block, _ = pem.Decode(pubPEM)
	if block == nil {
		return fmt.Errorf("public key %s is not valid PEM", m.publicKeyPath)
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return fmt.Errorf("parse public key: %w", err)
	}

	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("public key %s is not RSA", m.publicKeyPath)
	}

	m.privateKey = rsaPriv
	m.publicKey = rsaPub

	zap.L().Info("signing keys loaded",
		zap.String("private_key", m.privateKeyPath),
		zap.String("public_key", m.publicKeyPath),
	)
	return nil
}

func (m *Manager) generate() error {
	priv, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		return fmt.Errorf("generate key pair: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(m.privateKeyPath), 0o755); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(m.publicKeyPath), 0o755); err != nil {
		return err
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return err
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})
	if err := os.WriteFile(m.privateKeyPath, privPEM, 0o600); err != nil {
		return fmt.Errorf("write private key: %w", err)
	}

	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return err
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	if err := os.WriteFile(m.publicKeyPath, pubPEM, 0o644); err != nil {
		return fmt.Errorf("write public key: %w", err)
	}

	m.privateKey = priv
	m.publicKey = &priv.PublicKey

	zap.L().Info("signing keys generated",
		zap.String("private_key", m.privateKeyPath),
		zap.String("public_key", m.publicKeyPath),
		zap.Int("bits", keyBits),
	)
	return nil
}

// Sign produces an RSA-PSS SHA-256 signature over payload.
func (m *Manager) Sign(payload []byte) ([]byte, error) {
	digest := sha256.Sum256(payload)
	return rsa.SignPSS(rand.Reader, m.privateKey, crypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthAuto,
	})
}

// Verify checks an RSA-PSS SHA-256 signature over payload.
func (m *Manager) Verify(payload, signature []byte) error {
	digest := sha256.Sum256(payload)
	return rsa.VerifyPSS(m.publicKey, crypto.SHA256, digest[:], signature, &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthAuto,
	})
}

// PublicKeyPEM returns the public key in PEM form for client distribution.
func (m *Manager) PublicKeyPEM() (string, error) {
	der, err := x509.MarshalPKIXPublicKey(m.publicKey)
	if err != nil {
		return "", err
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
