package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ValidateFileSize rejects empty buffers and buffers above maxSizeMB.
// A buffer of exactly the limit passes.
func ValidateFileSize(data []byte, maxSizeMB int) error {
	if len(data) == 0 {
		return NewError(CodeEmptyFile, "file is empty")
	}
	maxBytes := int64(maxSizeMB) << 20
	if int64(len(data)) > maxBytes {
		return NewError(CodeFileTooLarge,
			fmt.Sprintf("file size %d bytes exceeds the %d MB limit", len(data), maxSizeMB)).
			WithDetails(map[string]any{
				"observedBytes": len(data),
				"maxBytes":      maxBytes,
			})
	}
	return nil
}

// HashContent returns the hex-encoded SHA-256 digest of the raw bytes.
// Identical bytes always map to the same hash; the digest is used for
// per-user duplicate detection.
func HashContent(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
