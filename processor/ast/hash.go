// Package ast provides language-neutral source plumbing for the scanning
// engine: content hashing, file discovery partitioned by kind, and a debounced
// file watcher. Language specific syntax trees live in subpackages.
package ast

import (
	"crypto/sha256"
	"encoding/hex"
)

// ComputeHash computes a SHA256 hash of the given content
func ComputeHash(content []byte) string {
	h := sha256.Sum256(content)
	return hex.EncodeToString(h[:8]) // First 8 bytes for brevity
}
