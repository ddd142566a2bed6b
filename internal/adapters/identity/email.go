package identity

import (
	"net/mail"
	"strings"

	domainauth "github.com/parlorchat/parlor/internal/domain/auth"
	"golang.org/x/net/idna"
)

// NormalizeEmail validates a bare e-mail address and returns its canonical form:
// lower-cased with the domain converted to its ASCII (punycode) representation.
func NormalizeEmail(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", domainauth.NewBackendError(domainauth.CodeInvalidEmail, "e-mail address is required")
	}

	addr, err := mail.ParseAddress(trimmed)
	if err != nil || addr.Address != trimmed || addr.Name != "" {
		return "", domainauth.WrapBackendError(domainauth.CodeInvalidEmail, "e-mail address is badly formatted", err)
	}

	at := strings.LastIndex(addr.Address, "@")
	local, domain := addr.Address[:at], addr.Address[at+1:]
	if local == "" || domain == "" {
		return "", domainauth.NewBackendError(domainauth.CodeInvalidEmail, "e-mail address is badly formatted")
	}

	asciiDomain, err := idna.Lookup.ToASCII(domain)
	if err != nil {
		return "", domainauth.WrapBackendError(domainauth.CodeInvalidEmail, "e-mail domain is invalid", err)
	}

	return strings.ToLower(local) + "@" + strings.ToLower(asciiDomain), nil
}
