package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateRoomID checks the handshake route parameter before the directory is
// consulted. Room ids are UUIDs.
func ValidateRoomID(roomID string) error {
	if roomID == "" {
		return fmt.Errorf("room id is required")
	}
	if _, err := uuid.Parse(roomID); err != nil {
		return fmt.Errorf("room id must be a valid UUID")
	}
	return nil
}

// ValidateUsername validates a display name carried in token claims.
func ValidateUsername(username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("username is required")
	}
	if len(username) < 3 {
		return fmt.Errorf("username must be at least 3 characters")
	}
	if len(username) > 50 {
		return fmt.Errorf("username is too long (max 50 characters)")
	}
	if !usernameRegex.MatchString(username) {
		return fmt.Errorf("username contains invalid characters (only letters, numbers, _, - allowed)")
	}
	return nil
}

// ValidateChatMessage trims and bounds a chat message. Returns the trimmed
// message; empty after trimming is an error so callers can drop it.
func ValidateChatMessage(message string, maxBytes int) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", fmt.Errorf("message is empty")
	}
	if maxBytes > 0 && len(message) > maxBytes {
		return "", fmt.Errorf("message is too long (max %d bytes)", maxBytes)
	}
	if !utf8.ValidString(message) {
		return "", fmt.Errorf("message is not valid UTF-8")
	}
	return message, nil
}
