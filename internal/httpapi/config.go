package httpapi

import "time"

const (
	defaultMaxBodyBytes = 1 << 20
	defaultEventsPing   = 30 * time.Second
)

// Download requests carry a short key list; anything larger is refused.
var maxBodyBytes int64 = defaultMaxBodyBytes

// SetMaxBodyBytes caps JSON request bodies. n <= 0 restores 1 MiB.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		n = defaultMaxBodyBytes
	}
	maxBodyBytes = n
}

var eventsPingInterval = defaultEventsPing

// SetEventsPingInterval sets how often idle /events connections are pinged.
// d <= 0 restores 30s.
func SetEventsPingInterval(d time.Duration) {
	if d <= 0 {
		d = defaultEventsPing
	}
	eventsPingInterval = d
}

// CORS is off unless SetCORSOptions enables it.
var (
	corsEnabled        bool
	corsAllowedOrigins []string
	corsAllowedMethods []string
	corsAllowedHeaders []string
)

var (
	defaultCORSMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	defaultCORSHeaders = []string{"Accept", "Content-Type", "X-Log-Level", "X-Request-Id"}
)

// SetCORSOptions configures the CORS middleware and the /events origin
// check. Empty methods or headers fall back to what the API uses.
func SetCORSOptions(enabled bool, origins, methods, headers []string) {
	if len(methods) == 0 {
		methods = defaultCORSMethods
	}
	if len(headers) == 0 {
		headers = defaultCORSHeaders
	}
	corsEnabled = enabled
	corsAllowedOrigins = append([]string(nil), origins...)
	corsAllowedMethods = append([]string(nil), methods...)
	corsAllowedHeaders = append([]string(nil), headers...)
}
