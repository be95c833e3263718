package admin

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// VerifyAdminKey checks if the provided key matches the configured bcrypt hash
func VerifyAdminKey(hashedKey, plainKey string) bool {
	if hashedKey == "" || plainKey == "" {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(hashedKey), []byte(plainKey))
	return err == nil
}

// HashAdminKey produces the bcrypt hash stored in ADMIN_KEY_HASH (used for seeding)
func HashAdminKey(plainKey string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plainKey), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash admin key: %w", err)
	}
	return string(hashed), nil
}
