package page

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// checkNavigable enforces the capture-target policy: HTTPS anywhere,
// plain HTTP only to loopback, file and about URLs allowed. Anything else
// requires allowUnsafeContext.
func checkNavigable(rawURL string, allowUnsafe bool) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid capture url: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "https", "file", "about", "data":
		return nil
	case "http":
		if allowUnsafe || isLoopback(u.Hostname()) {
			return nil
		}
		return fmt.Errorf("refusing plain-http capture target %s (enable allow_unsafe_context to override)", rawURL)
	default:
		if allowUnsafe {
			return nil
		}
		return fmt.Errorf("unsupported capture url scheme %q", u.Scheme)
	}
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
