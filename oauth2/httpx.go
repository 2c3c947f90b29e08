package oauth2

import (
	"net/http"
	"strings"
	"time"
)

// shared HTTP client with sane timeout; sits on the login critical path so
// unbounded waits are not an option
var httpx = &http.Client{Timeout: 10 * time.Second}

// maxResponseBytes caps how much of an IdP response we are willing to read.
const maxResponseBytes = 1 << 20

// snippet returns a trimmed preview of a payload for logging/errors.
func snippet(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		return s[:n]
	}
	return s
}

// Logging hooks wired in by the host application; nil means silent.
var (
	Debugf func(format string, v ...any)
	Warnf  func(format string, v ...any)
)

func debugf(format string, v ...any) {
	if Debugf != nil {
		Debugf(format, v...)
	}
}

func warnf(format string, v ...any) {
	if Warnf != nil {
		Warnf(format, v...)
	}
}
