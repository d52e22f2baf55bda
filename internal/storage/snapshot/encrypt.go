package snapshot

import (
	"fmt"

	"github.com/yndnr/memkv/pkg/crypto/adaptive"
)

// EncryptionConfig configures snapshot encryption.
type EncryptionConfig struct {
	// Key is the hex encoded 32 byte key. Empty disables encryption.
	Key string

	// Algorithm is "aes-gcm", "chacha20-poly1305", or empty for
	// hardware based selection.
	Algorithm string
}

// Enabled reports whether a key is configured.
func (c EncryptionConfig) Enabled() bool {
	return c.Key != ""
}

// NewCipher builds the cipher described by cfg. It returns nil, nil, nil
// when encryption is disabled. The raw key is returned for backends that
// encrypt natively; callers zero it with adaptive.ZeroKey when done.
func NewCipher(cfg EncryptionConfig) (adaptive.Cipher, []byte, error) {
	if !cfg.Enabled() {
		return nil, nil, nil
	}
	typ, err := adaptive.ParseType(cfg.Algorithm)
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot: %w", err)
	}
	key, err := adaptive.ParseKey(cfg.Key)
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot: %w", err)
	}
	c, err := adaptive.NewWithType(key, typ)
	if err != nil {
		adaptive.ZeroKey(key)
		return nil, nil, fmt.Errorf("snapshot: %w", err)
	}
	return c, key, nil
}
