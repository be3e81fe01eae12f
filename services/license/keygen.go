package license

import (
	"crypto/rand"
	"math/big"
	"strings"
)

// keyAlphabet deliberately drops 0, O, 1 and I so keys survive being read
// aloud or retyped from an invoice.
const keyAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	keyGroups    = 4
	keyGroupSize = 4
)

// GenerateKey returns a key in XXXX-XXXX-XXXX-XXXX form. Uniqueness is the
// caller's problem: the creation path checks the table and regenerates on
// collision.
func GenerateKey() (string, error) {
	groups := make([]string, 0, keyGroups)
	for g := 0; g < keyGroups; g++ {
		b := make([]byte, keyGroupSize)
		for i := range b {
			n, err := rand.Int(rand.Reader, big.NewInt(int64(len(keyAlphabet))))
			if err != nil {
				return "", err
			}
			b[i] = keyAlphabet[n.Int64()]
		}
		groups = append(groups, string(b))
	}
	return strings.Join(groups, "-"), nil
}
