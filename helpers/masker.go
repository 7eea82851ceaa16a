package helpers

import "strings"

// MaskAuthorization redacts the credential portion of an Authorization
// header value so it can be logged safely. The scheme is kept, the parameter
// is replaced.
func MaskAuthorization(value string) string {
	if value == "" {
		return value
	}

	scheme, rest, found := strings.Cut(value, " ")
	if !found || rest == "" {
		return scheme
	}
	return scheme + " [REDACTED]"
}
