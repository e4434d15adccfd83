package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// NewState returns an 8 hex character OAuth state value.
func NewState() (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("auth: generating state: %w", err)
	}
	return hex.EncodeToString(b), nil
}
