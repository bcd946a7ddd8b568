package hashutil

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

type HashAlgo string

const (
	HashAlgoSHA256 HashAlgo = "sha256"
	HashAlgoMD5    HashAlgo = "md5"
)

// HashBytes returns the hash of data as a hex string using the specified algorithm.
// Supported algorithms: "sha256" and "md5".
func HashBytes(data []byte, algo HashAlgo) (string, error) {
	switch algo {
	case HashAlgoSHA256:
		return hashBytesSha256(data), nil
	case HashAlgoMD5:
		return hashBytesMd5(data), nil
	default:
		return "", fmt.Errorf("unsupported hash algorithm: %s", algo)
	}
}

// URLHash returns the canonical SHA-256 hash of a normalized URL string, as
// used to key URL records, documents, and fingerprint entries.
func URLHash(normalizedURL string) string {
	return hashBytesSha256([]byte(normalizedURL))
}

func hashBytesSha256(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

func hashBytesMd5(data []byte) string {
	hash := md5.Sum(data)
	return hex.EncodeToString(hash[:])
}
