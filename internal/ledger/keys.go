package ledger

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// SecretPrefix marks clawwork bearer secrets.
const SecretPrefix = "cwrk_"

// HashSecret returns a stable SHA-256 hex digest for a bearer secret. The
// digest doubles as the lookup key, so authentication never scans agents.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(secret)))
	return hex.EncodeToString(sum[:])
}

// NewSecret mints a bearer secret: cwrk_ followed by 48 hex characters.
func NewSecret() (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return SecretPrefix + hex.EncodeToString(raw), nil
}

// NewVerificationCode mints the code an owner must tweet to claim an agent,
// e.g. CLAW-ALICE-3F9A.
func NewVerificationCode(name string) (string, error) {
	slug := strings.ToUpper(name)
	if len(slug) > 8 {
		slug = slug[:8]
	}
	suffix, err := randomHexUpper(2)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("CLAW-%s-%s", slug, suffix), nil
}

func randomHexUpper(n int) (string, error) {
	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(raw)), nil
}
