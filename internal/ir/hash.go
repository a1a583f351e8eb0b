package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// payloadDomain prefixes every payload digest. Bump the version when the
// canonical form changes so old and new digests never compare equal.
const payloadDomain = "flowledger/payload/v1"

func digest(domain string, data []byte) string {
	sum := sha256.Sum256(append(append([]byte(domain), 0), data...))
	return hex.EncodeToString(sum[:])
}

// PayloadDigest identifies the content of an upstream action. It is computed
// over CanonicalPayload, so a re-fetch that only reorders keys or changes
// whitespace yields the same digest. A changed digest for a committed action
// means the action was edited upstream.
func PayloadDigest(raw []byte) (string, error) {
	canonical, err := CanonicalPayload(raw)
	if err != nil {
		return "", fmt.Errorf("payload digest: %w", err)
	}
	return digest(payloadDomain, canonical), nil
}

// MustPayloadDigest panics if raw is not valid JSON.
func MustPayloadDigest(raw []byte) string {
	d, err := PayloadDigest(raw)
	if err != nil {
		panic(err)
	}
	return d
}
