package config

import (
	"github.com/joho/godotenv"
)

// LoadEnv loads environment variables from a .env file if one exists.
// Callers should treat a missing file as non-fatal.
func LoadEnv() error {
	return godotenv.Load()
}
