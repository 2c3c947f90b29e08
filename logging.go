package main

import (
	"log"
	"net"
	"net/http"
	"os"
	"strings"
	"time"
)

type logLevel int

const (
	levelDEBUG logLevel = iota
	levelINFO
	levelWARN
	levelERROR
)

var (
	curLevel             = parseLogLevel(os.Getenv("LOG_LEVEL"))
	trustedProxyNetworks = parseTrustedProxies(os.Getenv("TRUSTED_PROXY_CIDRS"))
)

func parseLogLevel(s string) logLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return levelDEBUG
	case "WARN":
		return levelWARN
	case "ERROR":
		return levelERROR
	default:
		return levelINFO
	}
}

func lvlOK(want logLevel) bool { return curLevel <= want }

func Debugf(format string, v ...any) {
	if lvlOK(levelDEBUG) {
		log.Printf("DEBUG "+format, v...)
	}
}
func Infof(format string, v ...any) {
	if lvlOK(levelINFO) {
		log.Printf("INFO  "+format, v...)
	}
}
func Warnf(format string, v ...any) {
	if lvlOK(levelWARN) {
		log.Printf("WARN  "+format, v...)
	}
}
func Errorf(format string, v ...any) {
	if lvlOK(levelERROR) {
		log.Printf("ERROR "+format, v...)
	}
}

// Wrap the router to emit per-request logs in DEBUG.
func withRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !lvlOK(levelDEBUG) {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: 200}
		next.ServeHTTP(rec, r)
		dur := time.Since(start).Round(time.Millisecond)
		Debugf(`http %s %s -> %d %dB in %s ip=%s`,
			r.Method, r.URL.RequestURI(), rec.status, rec.written, dur, clientIP(r))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status  int
	written int
}

func (s *statusRecorder) WriteHeader(code int) { s.status = code; s.ResponseWriter.WriteHeader(code) }
func (s *statusRecorder) Write(b []byte) (int, error) {
	n, err := s.ResponseWriter.Write(b)
	s.written += n
	return n, err
}

// clientIP resolves the caller's address, honouring X-Forwarded-For and
// X-Real-IP only when the direct peer is a configured trusted proxy.
func clientIP(r *http.Request) string {
	remoteIP := parseIPCandidate(r.RemoteAddr)
	if remoteIP == nil {
		return strings.TrimSpace(r.RemoteAddr)
	}

	if !isTrustedProxy(remoteIP) {
		return remoteIP.String()
	}

	// Walk the forwarded chain right to left and take the first hop that
	// is not itself a trusted proxy.
	for _, part := range reverse(parseForwardedFor(r.Header.Get("X-Forwarded-For"))) {
		if ip := parseIPCandidate(part); ip != nil && !isTrustedProxy(ip) {
			return ip.String()
		}
	}

	if ip := parseIPCandidate(r.Header.Get("X-Real-IP")); ip != nil {
		return ip.String()
	}

	return remoteIP.String()
}

func reverse(parts []string) []string {
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return parts
}

func parseForwardedFor(header string) []string {
	if header == "" {
		return nil
	}
	parts := strings.Split(header, ",")
	res := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			res = append(res, trimmed)
		}
	}
	return res
}

func parseIPCandidate(raw string) net.IP {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if ip := net.ParseIP(raw); ip != nil {
		return ip
	}
	host, _, err := net.SplitHostPort(raw)
	if err == nil {
		return net.ParseIP(host)
	}
	return nil
}

func isTrustedProxy(ip net.IP) bool {
	if ip == nil {
		return false
	}
	for _, network := range trustedProxyNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

func parseTrustedProxies(raw string) []*net.IPNet {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	networks := make([]*net.IPNet, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.Contains(part, "/") {
			_, network, parseErr := net.ParseCIDR(part)
			if parseErr == nil {
				networks = append(networks, network)
				continue
			}
			log.Printf("Invalid TRUSTED_PROXY_CIDRS entry %q: %v", part, parseErr)
			continue
		}
		ip := parseIPCandidate(part)
		if ip == nil {
			log.Printf("Invalid TRUSTED_PROXY_CIDRS entry %q: not an IP or CIDR", part)
			continue
		}
		if v4 := ip.To4(); v4 != nil {
			networks = append(networks, &net.IPNet{IP: append(net.IP(nil), v4...), Mask: net.CIDRMask(32, 32)})
			continue
		}
		networks = append(networks, &net.IPNet{IP: append(net.IP(nil), ip.To16()...), Mask: net.CIDRMask(128, 128)})
	}
	return networks
}
