package instance

import (
	"os"
	"strings"
)

// GetID identifies this process in logs and lock ownership. It prefers an explicit
// STKPUSH_INSTANCE_ID, then the platform dyno name and the host name.
func GetID() string {
	for _, key := range []string{"STKPUSH_INSTANCE_ID", "DYNO", "HOSTNAME"} {
		if id := strings.TrimSpace(os.Getenv(key)); id != "" {
			return id
		}
	}
	return "local"
}
