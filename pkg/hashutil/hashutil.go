package hashutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"lukechampine.com/blake3"
)

type HashAlgo string

const (
	HashAlgoSHA256 HashAlgo = "sha256"
	HashAlgoBLAKE3 HashAlgo = "blake3"
)

// HashBytes returns the hash of bytes as a hex string using the specified algorithm.
func HashBytes(data []byte, algo HashAlgo) (string, error) {
	switch algo {
	case HashAlgoSHA256:
		sum := sha256.Sum256(data)
		return hex.EncodeToString(sum[:]), nil
	case HashAlgoBLAKE3:
		sum := blake3.Sum256(data)
		return hex.EncodeToString(sum[:]), nil
	default:
		return "", fmt.Errorf("unsupported hash algorithm: %s", algo)
	}
}

// Fingerprint is the BLAKE3 digest of a fetched payload, prefixed with the
// algorithm name so stored values stay comparable if the algorithm changes.
// Empty input yields an empty fingerprint.
func Fingerprint(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	sum := blake3.Sum256(data)
	return string(HashAlgoBLAKE3) + ":" + hex.EncodeToString(sum[:])
}
