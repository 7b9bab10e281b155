package instance

import (
	"os"

	"github.com/oportunidade/payhook/pkg/env"
)

// GetID returns the process instance identifier used for lock ownership and log fields.
// PAYHOOK_INSTANCE_ID wins, then the hostname, then a static default.
func GetID() string {
	if id := env.Get("PAYHOOK_INSTANCE_ID", ""); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "payhook-0"
}
