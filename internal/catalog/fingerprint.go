package catalog

import (
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/cespare/xxhash/v2"
)

func fingerprintDocument(doc Document) (string, error) {
	canonical, err := sonic.ConfigStd.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("fingerprint catalog: %w", err)
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(canonical)), nil
}

// Fingerprint digests the canonical encoding of the catalog. Two processes
// with equal fingerprints resolve recipe indices to the same dishes.
func (c *Catalog) Fingerprint() string {
	return c.fingerprint
}

// CheckFingerprint reports whether a peer loaded the same catalog.
func (c *Catalog) CheckFingerprint(peer string) error {
	if !strings.EqualFold(strings.TrimSpace(peer), c.fingerprint) {
		return fmt.Errorf("%w: have %s, peer sent %q", ErrFingerprintMismatch, c.fingerprint, peer)
	}
	return nil
}
