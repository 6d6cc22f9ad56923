package capture

import "strings"

// failure reasons extracted from ffmpeg stderr
const (
	reasonTimeout      = "connection_timeout"
	reasonNotFound     = "stream_not_found"
	reasonRefused      = "connection_refused"
	reasonUnauthorized = "auth_failed"
	reasonForbidden    = "auth_forbidden"
	reasonNoRoute      = "no_route"
	reasonInvalidData  = "invalid_data"
	reasonEOF          = "eof"
	reasonProtocol     = "protocol_error"
	reasonUnknown      = "unknown"
)

// stderrPatterns are checked in order, more specific first
var stderrPatterns = []struct {
	needle string
	reason string
}{
	{"Connection timed out", reasonTimeout},
	{"404 Not Found", reasonNotFound},
	{"Connection refused", reasonRefused},
	{"401 Unauthorized", reasonUnauthorized},
	{"403 Forbidden", reasonForbidden},
	{"No route to host", reasonNoRoute},
	{"Invalid data found", reasonInvalidData},
	{"End of file", reasonEOF},
	{"Protocol not found", reasonProtocol},
}

// diagnose maps ffmpeg stderr output to a short failure reason.
func diagnose(stderr string) string {
	for _, p := range stderrPatterns {
		if strings.Contains(stderr, p.needle) {
			return p.reason
		}
	}
	return reasonUnknown
}
