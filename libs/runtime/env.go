package runtime

import "os"

// Getenv returns the value of key, or fallback when the variable is unset.
// An explicitly empty variable is returned as is.
func Getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}
