package instance

import (
	"os"

	"github.com/angelmondragon/marketledger-backend/pkg/env"
)

// GetID identifies the running replica in logs and lock owners.
// MARKETLEDGER_INSTANCE_ID wins, then the platform dyno name, then the hostname.
func GetID(fallback string) string {
	if id := env.Get("MARKETLEDGER_INSTANCE_ID", ""); id != "" {
		return id
	}
	if id := env.Get("DYNO", ""); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return fallback
}
