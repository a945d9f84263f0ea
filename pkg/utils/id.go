package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenerateConnectionHandle names one live connection for direct delivery on
// the group bus. Handles are never reused: uuid plus random suffix.
func GenerateConnectionHandle() string {
	b := make([]byte, 4)
	rand.Read(b)
	return fmt.Sprintf("conn_%s_%s", uuid.NewString(), hex.EncodeToString(b))
}

// GenerateRoomID generates a room id in the directory's format.
func GenerateRoomID() string {
	return uuid.NewString()
}

// GenerateRequestID generates a unique request id for control-plane logging.
func GenerateRequestID() string {
	timestamp := time.Now().UnixNano()
	b := make([]byte, 4)
	rand.Read(b)
	return fmt.Sprintf("req_%d_%s", timestamp, hex.EncodeToString(b))
}
