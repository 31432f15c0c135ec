// Package security flags probing requests and sets defensive response
// headers.
package security

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
)

const maxURLLength = 2048

var (
	suspiciousPatterns = []string{
		"../", "..\\", ".env", "wp-admin", "phpmyadmin",
		"admin.php", "config.php", ".git", ".ssh",
		"eval(", "javascript:", "<script", "union select",
		"etc/passwd", "cmd.exe",
	}

	// API clients legitimately use curl and friends, so only scanners are
	// listed here.
	suspiciousAgents = []string{
		"sqlmap", "nmap", "nikto", "gobuster", "dirb", "masscan", "zgrab",
	}

	unusualMethods = []string{"TRACE", "TRACK", "DEBUG", "CONNECT"}
)

// DetectionMetrics tracks security detection events
type DetectionMetrics struct {
	SuspiciousRequests int64
	InvalidIPAttempts  int64
}

type Detector struct {
	metrics        *DetectionMetrics
	trustedProxies []*net.IPNet
}

func NewDetector() *Detector {
	return &Detector{
		metrics: &DetectionMetrics{},
		trustedProxies: []*net.IPNet{
			parseCIDR("127.0.0.0/8"),
			parseCIDR("10.0.0.0/8"),
			parseCIDR("172.16.0.0/12"),
			parseCIDR("192.168.0.0/16"),
		},
	}
}

func parseCIDR(cidr string) *net.IPNet {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		panic(fmt.Sprintf("failed to parse trusted proxy CIDR %s: %v", cidr, err))
	}
	return network
}

// DetectSuspiciousRequest reports whether r looks like a probe or an attack.
func (d *Detector) DetectSuspiciousRequest(r *http.Request) bool {
	query, err := url.QueryUnescape(r.URL.RawQuery)
	if err != nil {
		query = r.URL.RawQuery
	}
	suspicious := containsAny(strings.ToLower(r.URL.Path), suspiciousPatterns) ||
		containsAny(strings.ToLower(query), suspiciousPatterns) ||
		containsAny(strings.ToLower(r.Header.Get("User-Agent")), suspiciousAgents) ||
		len(r.URL.String()) > maxURLLength

	for _, method := range unusualMethods {
		if r.Method == method {
			suspicious = true
			break
		}
	}

	// more than 5 proxy hops
	if xff := r.Header.Get("X-Forwarded-For"); strings.Count(xff, ",") > 5 {
		suspicious = true
	}

	if suspicious {
		atomic.AddInt64(&d.metrics.SuspiciousRequests, 1)
	}
	return suspicious
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// ExtractClientIP returns the client address, honoring X-Forwarded-For and
// X-Real-IP only when the direct peer is a trusted proxy.
func (d *Detector) ExtractClientIP(r *http.Request) string {
	directIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		directIP = r.RemoteAddr
	}

	parsedDirectIP := net.ParseIP(directIP)
	if parsedDirectIP == nil {
		return directIP
	}
	if !d.isTrustedProxy(parsedDirectIP) {
		return directIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		clientIP := strings.TrimSpace(strings.Split(xff, ",")[0])
		if net.ParseIP(clientIP) != nil {
			return clientIP
		}
		atomic.AddInt64(&d.metrics.InvalidIPAttempts, 1)
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		if net.ParseIP(xri) != nil {
			return xri
		}
		atomic.AddInt64(&d.metrics.InvalidIPAttempts, 1)
	}
	return directIP
}

func (d *Detector) isTrustedProxy(ip net.IP) bool {
	for _, network := range d.trustedProxies {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// GetMetrics returns current security metrics
func (d *Detector) GetMetrics() DetectionMetrics {
	return DetectionMetrics{
		SuspiciousRequests: atomic.LoadInt64(&d.metrics.SuspiciousRequests),
		InvalidIPAttempts:  atomic.LoadInt64(&d.metrics.InvalidIPAttempts),
	}
}

// AddTrustedProxy adds a trusted proxy network. It is not safe to call while
// requests are being served.
func (d *Detector) AddTrustedProxy(cidr string) error {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return fmt.Errorf("invalid CIDR %s: %w", cidr, err)
	}
	d.trustedProxies = append(d.trustedProxies, network)
	return nil
}
