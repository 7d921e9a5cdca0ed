// Package utils provides small helpers shared by all modules.
package utils

import (
	"github.com/google/uuid"
)

// GenerateUUID generates a new UUID v4 string.
func GenerateUUID() string {
	return uuid.New().String()
}

// IsValidUUID checks if a string is a valid UUID.
func IsValidUUID(uuidStr string) bool {
	_, err := uuid.Parse(uuidStr)
	return err == nil
}
