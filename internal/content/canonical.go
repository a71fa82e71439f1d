// Package content implements the content-addressed publisher: canonical JSON
// serialization, SHA-256 integrity hashing, and publish/retrieve/verify over
// a pluggable immutable store backend.
package content

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// CanonicalJSON serializes v with object keys sorted, so the same logical
// document always produces the same bytes and therefore the same hash.
// encoding/json sorts map keys; structs are normalized by a round trip
// through map form.
func CanonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("content: marshal: %w", err)
	}

	var normalized any
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return nil, fmt.Errorf("content: normalize: %w", err)
	}

	canonical, err := json.Marshal(normalized)
	if err != nil {
		return nil, fmt.Errorf("content: canonical marshal: %w", err)
	}
	return canonical, nil
}

// HashBytes returns the lowercase hex SHA-256 of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashDocument canonicalizes v and hashes the result.
func HashDocument(v any) (string, error) {
	data, err := CanonicalJSON(v)
	if err != nil {
		return "", err
	}
	return HashBytes(data), nil
}
