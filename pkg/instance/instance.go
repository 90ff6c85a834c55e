// Package instance names the running process in logs and lock ownership.
package instance

import "os"

var idEnvVars = []string{"ONEMAN_INSTANCE_ID", "DYNO", "HOSTNAME"}

// GetID returns the first configured instance identifier, or fallback.
func GetID(fallback string) string {
	for _, key := range idEnvVars {
		if id := os.Getenv(key); id != "" {
			return id
		}
	}
	if fallback == "" {
		return "local"
	}
	return fallback
}
