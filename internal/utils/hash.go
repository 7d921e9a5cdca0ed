package utils

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// DigestSize is the length of a hex encoded content digest
const DigestSize = 64

// ContentDigest returns the hex encoded blake3-256 digest of data.
// It is used to address stored packages and launch content.
func ContentDigest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ValidateDigest checks if a string looks like a ContentDigest result.
func ValidateDigest(digest string) bool {
	if len(digest) != DigestSize {
		return false
	}
	_, err := hex.DecodeString(digest)
	return err == nil
}
