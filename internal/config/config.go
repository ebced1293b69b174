// ABOUTME: Environment-based configuration helpers
// ABOUTME: Loads .env files and reads SENDSPIN_* variables with fallbacks
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variable names honored by the CLI drivers.
const (
	EnvEndpoint = "SENDSPIN_ENDPOINT"
	EnvLog      = "SENDSPIN_LOG"
)

// Load reads the .env file from the current working directory into the
// process environment. A missing .env is not an error worth stopping for;
// callers ignore the return and fall back to system env or defaults. Pass
// paths to load specific files.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// GetEnv returns the value of the environment variable named by key, or
// fallback if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable named by
// key, or fallback if unset, empty, or not a valid integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

// DebugEnabled reports whether SENDSPIN_LOG requests debug logging.
func DebugEnabled() bool {
	return GetEnv(EnvLog, "info") == "debug"
}
