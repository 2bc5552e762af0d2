package env

import (
	"os"
	"strings"
)

// Prefix namespaces every setting this service reads.
const Prefix = "STKPUSH_"

// Get returns the prefixed variable, then the bare one, then fallback. The bare
// name keeps platform-provided variables such as PORT working.
func Get(key, fallback string) string {
	key = strings.TrimPrefix(key, Prefix)
	if val := strings.TrimSpace(os.Getenv(Prefix + key)); val != "" {
		return val
	}
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}
