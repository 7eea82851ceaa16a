package server

import (
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hrmny/jig/consts"
)

const basicScheme = "Basic "

// Credentials is a username/password pair decoded from an Authorization
// header. It is handed to the backend connector once and never stored.
type Credentials struct {
	Username string
	Password string
}

// DecodeBasicAuth decodes an HTTP Basic authentication header value into
// Credentials. The value must carry the "Basic " scheme, valid base64,
// valid UTF-8 and a ':' separator; the first ':' splits username from
// password, so passwords may contain further colons.
func DecodeBasicAuth(headerValue string) (Credentials, error) {
	if !strings.HasPrefix(headerValue, basicScheme) {
		return Credentials{}, fmt.Errorf("%w: authorization scheme must be Basic", consts.ErrMalformedCredentials)
	}

	raw, err := base64.StdEncoding.DecodeString(headerValue[len(basicScheme):])
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: parameter must be valid base64", consts.ErrMalformedCredentials)
	}

	if !utf8.Valid(raw) {
		return Credentials{}, fmt.Errorf("%w: decoded parameter must be valid UTF-8", consts.ErrMalformedCredentials)
	}

	username, password, found := strings.Cut(string(raw), ":")
	if !found {
		return Credentials{}, fmt.Errorf("%w: missing ':' separator", consts.ErrMalformedCredentials)
	}

	return Credentials{Username: username, Password: password}, nil
}

// EncodeBasicAuth builds a Basic authentication header value for the given
// credentials.
func EncodeBasicAuth(username, password string) string {
	return basicScheme + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}
