package env

import "os"

// Prefix namespaces every variable the services read.
const Prefix = "ONEMAN_"

// Lookup reads ONEMAN_<key>, then the bare key, so shared platform variables
// such as LOG_FORMAT still apply when no service-specific value is set.
func Lookup(key string) (string, bool) {
	for _, name := range []string{Prefix + key, key} {
		if val := os.Getenv(name); val != "" {
			return val, true
		}
	}
	return "", false
}

// Get returns Lookup's value or fallback.
func Get(key, fallback string) string {
	if val, ok := Lookup(key); ok {
		return val
	}
	return fallback
}
