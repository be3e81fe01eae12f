package license

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testPayload() SignaturePayload {
	expires := "2027-01-01T00:00:00Z"
	return SignaturePayload{
		LicenseKey: "ABCD-EFGH-JKLM-NPQR",
		ClientID:   "42",
		ClientName: "Padaria do Centro",
		HardwareID: "HW-001",
		Plan:       "professional",
		Features:   []string{"basic_reports", "inventory"},
		MaxUsers:   10,
		IssuedAt:   "2026-01-01T00:00:00Z",
		ExpiresAt:  &expires,
		Version:    "1.0",
	}
}

func TestCanonicalPayloadIsSortedAndCompact(t *testing.T) {
	out, err := CanonicalPayload(testPayload())
	require.NoError(t, err)

	want := `{"client_id":"42","client_name":"Padaria do Centro","expires_at":"2027-01-01T00:00:00Z","features":["basic_reports","inventory"],"hardware_id":"HW-001","issued_at":"2026-01-01T00:00:00Z","license_key":"ABCD-EFGH-JKLM-NPQR","max_users":10,"plan":"professional","version":"1.0"}`
	require.Equal(t, want, string(out))
}

func TestCanonicalPayloadNilFields(t *testing.T) {
	p := testPayload()
	p.ExpiresAt = nil
	p.Features = nil

	out, err := CanonicalPayload(p)
	require.NoError(t, err)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out, &doc))
	require.Equal(t, "null", string(doc["expires_at"]))
	require.Equal(t, "[]", string(doc["features"]))
}

func TestSignVerifyRoundTrip(t *testing.T) {
	engine := NewSignatureEngine(testManager(t))

	expires := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	features, _ := json.Marshal([]string{"basic_reports"})
	l := &License{
		LicenseKey: "ABCD-EFGH-JKLM-NPQR",
		ClientID:   "42",
		HardwareID: "HW-001",
		Plan:       PlanStarter,
		Features:   features,
		MaxUsers:   3,
		IssuedAt:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		ExpiresAt:  &expires,
	}

	sig, err := engine.Sign(l, "Padaria do Centro")
	require.NoError(t, err)
	require.NotEmpty(t, sig)

	require.NoError(t, engine.Verify(l, "Padaria do Centro", sig))
}

func TestVerifyFailsOnAnySignedFieldChange(t *testing.T) {
	engine := NewSignatureEngine(testManager(t))

	expires := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	l := &License{
		LicenseKey: "ABCD-EFGH-JKLM-NPQR",
		ClientID:   "42",
		HardwareID: "HW-001",
		Plan:       PlanStarter,
		MaxUsers:   3,
		IssuedAt:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		ExpiresAt:  &expires,
	}

	sig, err := engine.Sign(l, "Padaria do Centro")
	require.NoError(t, err)

	mutations := map[string]func(*License){
		"hardware_id": func(m *License) { m.HardwareID = "HW-002" },
		"plan":        func(m *License) { m.Plan = PlanUnlimited },
		"max_users":   func(m *License) { m.MaxUsers = 999 },
		"expires_at":  func(m *License) { e := expires.AddDate(1, 0, 0); m.ExpiresAt = &e },
		"license_key": func(m *License) { m.LicenseKey = "ZZZZ-ZZZZ-ZZZZ-ZZZZ" },
	}
	for name, mutate := range mutations {
		copied := *l
		mutate(&copied)
		require.Error(t, engine.Verify(&copied, "Padaria do Centro", sig), "mutation %s must break the signature", name)
	}

	// changing the client name is also a signed-field change
	require.Error(t, engine.Verify(l, "Another Name", sig))
}

func TestLicenseFileRoundTrip(t *testing.T) {
	engine := NewSignatureEngine(testManager(t))

	l := &License{
		LicenseKey: "ABCD-EFGH-JKLM-NPQR",
		ClientID:   "42",
		HardwareID: "HW-001",
		Plan:       PlanStarter,
		MaxUsers:   3,
		IssuedAt:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	sig, err := engine.Sign(l, "Padaria do Centro")
	require.NoError(t, err)
	l.Signature = sig

	f, err := engine.BuildLicenseFile(l, "Padaria do Centro")
	require.NoError(t, err)
	require.Equal(t, "RSA-PSS", f.Algorithm)
	require.Equal(t, "SHA256", f.Hash)
	require.Contains(t, f.PublicKey, "BEGIN PUBLIC KEY")

	require.NoError(t, engine.VerifyFile(f))

	f.Payload.MaxUsers = 999
	require.Error(t, engine.VerifyFile(f))
}

func TestBuildLicenseFileRequiresSignature(t *testing.T) {
	engine := NewSignatureEngine(testManager(t))

	_, err := engine.BuildLicenseFile(&License{LicenseKey: "ABCD"}, "x")
	require.Error(t, err)
}
