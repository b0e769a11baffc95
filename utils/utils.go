package utils

import (
	"regexp"
	"strings"
	"time"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// Domains that must never receive campaign mail.
var invalidDomains = map[string]bool{
	"localhost":   true,
	"127.0.0.1":   true,
	"example.com": true,
	"test.test":   true,
	"invalid":     true,
}

// ValidateEmailFormat validates an email address and rejects known
// placeholder domains. Addresses failing this check are marked Failed
// up front instead of being handed to the transport.
func ValidateEmailFormat(email string) bool {
	email = strings.TrimSpace(email)
	if email == "" || len(email) > 320 {
		return false
	}

	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return false
	}

	localPart, domain := parts[0], parts[1]
	if localPart == "" || len(localPart) > 64 {
		return false
	}
	if domain == "" || len(domain) > 255 || !strings.Contains(domain, ".") {
		return false
	}

	if strings.Contains(email, "..") || strings.HasPrefix(email, ".") || strings.HasSuffix(email, ".") {
		return false
	}

	if !emailPattern.MatchString(email) {
		return false
	}

	return !invalidDomains[strings.ToLower(domain)]
}

// SplitFullName splits a display name into first and last name parts.
func SplitFullName(fullName string) (string, string) {
	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		return "", ""
	}
	parts := strings.SplitN(fullName, " ", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}

// Clock abstracts time.Now so schedulers and limiters can be tested
// with a deterministic clock.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock backed by time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
