package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeEventID computes a deterministic event_id using SHA256.
// Formula: SHA256(request_id|event_type|token_id|event_index|timestamp)
// Returns hex-encoded hash (64 characters).
func ComputeEventID(
	requestID string,
	eventType string,
	tokenID string,
	eventIndex int,
	timestamp int64,
) string {
	data := fmt.Sprintf("%s|%s|%s|%d|%d",
		requestID,
		eventType,
		tokenID,
		eventIndex,
		timestamp,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
