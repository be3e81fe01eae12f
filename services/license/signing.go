package license

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"license-controlplane/pkg/errutil"
	"license-controlplane/pkg/keys"
)

// payloadVersion pins the canonical payload layout. Bump only with a
// migration plan for already-issued signatures.
const payloadVersion = "1.0"

// SignaturePayload mirrors exactly the fields covered by the signature.
// Anything not listed here can change without re-signing.
type SignaturePayload struct {
	LicenseKey string   `json:"license_key"`
	ClientID   string   `json:"client_id"`
	ClientName string   `json:"client_name"`
	HardwareID string   `json:"hardware_id"`
	Plan       string   `json:"plan"`
	Features   []string `json:"features"`
	MaxUsers   int      `json:"max_users"`
	IssuedAt   string   `json:"issued_at"`
	ExpiresAt  *string  `json:"expires_at"`
	Version    string   `json:"version"`
}

// SignatureEngine binds licenses to hardware with RSA-PSS signatures over a
// canonical JSON form.
type SignatureEngine struct {
	keys *keys.Manager
}

func NewSignatureEngine(km *keys.Manager) *SignatureEngine {
	return &SignatureEngine{keys: km}
}

// CanonicalPayload serializes the signed fields as sorted-key JSON with no
// extra whitespace. The byte output is independent of struct field order.
func CanonicalPayload(p SignaturePayload) ([]byte, error) {
	features := p.Features
	if features == nil {
		features = []string{}
	}

	// a map marshals with sorted keys, which is the canonical property we need
	doc := map[string]interface{}{
		"license_key": p.LicenseKey,
		"client_id":   p.ClientID,
		"client_name": p.ClientName,
		"hardware_id": p.HardwareID,
		"plan":        p.Plan,
		"features":    features,
		"max_users":   p.MaxUsers,
		"issued_at":   p.IssuedAt,
		"expires_at":  p.ExpiresAt,
		"version":     p.Version,
	}

	return json.Marshal(doc)
}

func payloadFor(l *License, clientName string) (SignaturePayload, error) {
	var features []string
	if len(l.Features) > 0 {
		if err := json.Unmarshal(l.Features, &features); err != nil {
			return SignaturePayload{}, errutil.Internal("license features are not valid JSON", err)
		}
	}

	var expires *string
	if l.ExpiresAt != nil {
		s := l.ExpiresAt.UTC().Format(time.RFC3339)
		expires = &s
	}

	return SignaturePayload{
		LicenseKey: l.LicenseKey,
		ClientID:   l.ClientID,
		ClientName: clientName,
		HardwareID: l.HardwareID,
		Plan:       string(l.Plan),
		Features:   features,
		MaxUsers:   l.MaxUsers,
		IssuedAt:   l.IssuedAt.UTC().Format(time.RFC3339),
		ExpiresAt:  expires,
		Version:    payloadVersion,
	}, nil
}

// Sign computes the base64 RSA-PSS signature for a license. PSS is salted,
// so re-signing the same payload yields different bytes; only Verify
// matters.
func (e *SignatureEngine) Sign(l *License, clientName string) (string, error) {
	payload, err := payloadFor(l, clientName)
	if err != nil {
		return "", err
	}

	canonical, err := CanonicalPayload(payload)
	if err != nil {
		return "", err
	}

	sig, err := e.keys.Sign(canonical)
	if err != nil {
		return "", errutil.Internal("failed to sign license payload", err)
	}

	return base64.StdEncoding.EncodeToString(sig), nil
}

// Verify checks a base64 signature against a license's canonical payload.
func (e *SignatureEngine) Verify(l *License, clientName, sigB64 string) error {
	payload, err := payloadFor(l, clientName)
	if err != nil {
		return err
	}

	canonical, err := CanonicalPayload(payload)
	if err != nil {
		return err
	}

	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return errutil.BadRequest("signature is not valid base64", err)
	}

	if err := e.keys.Verify(canonical, sig); err != nil {
		return errutil.BadRequest("signature verification failed", err)
	}
	return nil
}

// LicenseFile is the downloadable document handed to a client machine.
type LicenseFile struct {
	Payload   SignaturePayload `json:"payload"`
	Signature string           `json:"signature"`
	Algorithm string           `json:"algorithm"`
	Hash      string           `json:"hash"`
	PublicKey string           `json:"public_key"`
}

// BuildLicenseFile renders a signed license into its distributable form.
func (e *SignatureEngine) BuildLicenseFile(l *License, clientName string) (*LicenseFile, error) {
	if l.Signature == "" {
		return nil, errutil.UnprocessableEntity("license has not been activated yet, no signature to export", nil)
	}

	payload, err := payloadFor(l, clientName)
	if err != nil {
		return nil, err
	}

	pubPEM, err := e.keys.PublicKeyPEM()
	if err != nil {
		return nil, err
	}

	return &LicenseFile{
		Payload:   payload,
		Signature: l.Signature,
		Algorithm: "RSA-PSS",
		Hash:      "SHA256",
		PublicKey: pubPEM,
	}, nil
}

// VerifyFile validates a complete license-file document.
func (e *SignatureEngine) VerifyFile(f *LicenseFile) error {
	canonical, err := CanonicalPayload(f.Payload)
	if err != nil {
		return err
	}

	sig, err := base64.StdEncoding.DecodeString(f.Signature)
	if err != nil {
		return errutil.BadRequest("signature is not valid base64", err)
	}

	if err := e.keys.Verify(canonical, sig); err != nil {
		return errutil.BadRequest("signature verification failed", err)
	}
	return nil
}
