package main

import (
	"log"
	"os"

	"github.com/playgrid/backend/internal/admin"
)

// Prints the bcrypt hash to store in ADMIN_KEY_HASH.
func main() {
	key := os.Getenv("ADMIN_KEY")
	if len(os.Args) > 1 {
		key = os.Args[1]
	}
	if key == "" {
		log.Fatal("Usage: hash-admin-key <key> (or set ADMIN_KEY)")
	}

	hash, err := admin.HashAdminKey(key)
	if err != nil {
		log.Fatalf("Failed to hash admin key: %v", err)
	}

	log.Println("✓ Admin key hashed")
	log.Printf("  ADMIN_KEY_HASH=%s", hash)
}
