package util

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// StorageKey returns the provider key for one resource: "asset:<ns>:<kind>:<id>".
func StorageKey(ns, kind string, id uint32) string {
	return "asset:" + ns + ":" + kind + ":" + strconv.FormatUint(uint64(id), 10)
}

// Redact returns a short stable digest of k for logs (first 16 hex chars of SHA-256).
func Redact(k string) string {
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}
