// Package validation checks operator input before it reaches the backend.
//
// Base URLs are validated against private ranges and cloud metadata
// endpoints. Private and loopback hosts can be allowed for local
// development (CONSOLE_ALLOW_PRIVATE); metadata endpoints stay blocked.
package validation

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// privateNetworks holds the reserved ranges refused unless private hosts
// are allowed.
var privateNetworks []*net.IPNet

func init() {
	privateCIDRs := []string{
		"10.0.0.0/8",     // RFC1918
		"172.16.0.0/12",  // RFC1918
		"192.168.0.0/16", // RFC1918
		"100.64.0.0/10",  // RFC6598
		"169.254.0.0/16", // RFC3927
		"192.0.0.0/24",   // RFC6890
		"198.18.0.0/15",  // RFC2544
		"240.0.0.0/4",    // RFC1112
		"fc00::/7",       // RFC4193
		"fe80::/10",      // RFC4291
		"::1/128",        // loopback
		"2001:db8::/32",  // RFC3849
	}
	for _, cidr := range privateCIDRs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		privateNetworks = append(privateNetworks, network)
	}
}

// ValidateBaseURL checks the backend base URL. It must be an absolute
// http(s) URL with a host, no embedded user info, no query or fragment.
// Literal private or loopback addresses and localhost names are refused
// unless allowPrivate is set.
func ValidateBaseURL(rawURL string, allowPrivate bool) error {
	if strings.TrimSpace(rawURL) == "" {
		return fmt.Errorf("base URL cannot be empty")
	}
	if len(rawURL) > MaxURLLength {
		return fmt.Errorf("base URL exceeds maximum length of %d characters", MaxURLLength)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: only http and https are allowed, got %q", u.Scheme)
	}
	hostname := u.Hostname()
	if hostname == "" {
		return fmt.Errorf("URL must contain a hostname")
	}
	if u.User != nil {
		return fmt.Errorf("base URL must not embed credentials")
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("base URL must not contain a query or fragment")
	}

	if isCloudMetadata(hostname) {
		return fmt.Errorf("cloud metadata endpoints are not allowed")
	}
	if allowPrivate {
		return nil
	}
	if isLocalhost(hostname) {
		return fmt.Errorf("localhost URLs are not allowed (set CONSOLE_ALLOW_PRIVATE=1 for local backends)")
	}
	if ip := net.ParseIP(hostname); ip != nil {
		return validateIPAddress(ip)
	}
	return nil
}

// NormalizeBaseURL trims whitespace and trailing slashes.
func NormalizeBaseURL(rawURL string) string {
	return strings.TrimRight(strings.TrimSpace(rawURL), "/")
}

func isLocalhost(hostname string) bool {
	h := strings.ToLower(hostname)
	switch h {
	case "localhost", "127.0.0.1", "::1", "0.0.0.0", "::":
		return true
	}
	return strings.HasSuffix(h, ".localhost")
}

func isCloudMetadata(hostname string) bool {
	h := strings.ToLower(hostname)
	switch h {
	case "169.254.169.254", "metadata.google.internal", "metadata", "instance-data", "fd00:ec2::254":
		return true
	}
	return strings.HasSuffix(h, ".metadata.google.internal")
}

func validateIPAddress(ip net.IP) error {
	if ip.IsUnspecified() {
		return fmt.Errorf("unspecified IP addresses are not allowed")
	}
	if ip.IsLoopback() {
		return fmt.Errorf("loopback IP addresses are not allowed")
	}
	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return fmt.Errorf("link-local IP addresses are not allowed")
	}
	for _, network := range privateNetworks {
		if network.Contains(ip) {
			return fmt.Errorf("private IP addresses are not allowed")
		}
	}
	return nil
}
