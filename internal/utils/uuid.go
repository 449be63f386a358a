package utils

import (
	"github.com/google/uuid"
)

// GenerateUUID generates a new random (v4) UUID string.
func GenerateUUID() string {
	return uuid.New().String()
}

// GenerateShortUUID returns the first 8 characters of a new UUID.
// Only suitable for short-lived names such as staging directories.
func GenerateShortUUID() string {
	return uuid.New().String()[:8]
}
