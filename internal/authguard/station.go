// Package authguard implements component G: the station WebSocket Basic
// Auth check and the operator JWT-cookie login, each grounded on a
// separate piece of original_source (ws_basic_auth.rs for the station
// side) and the teacher's internal/service/auth/jwt_service.go for the
// operator side.
package authguard

import (
	"encoding/base64"
	"strings"
)

// AuthError carries the HTTP status a caller should respond with when
// Authenticate fails, matching spec §4.G's distinct 400-vs-401 outcomes.
type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string { return e.Message }

// StationGuard checks a station connect's HTTP Basic credentials against
// a single configured password, scoped to a serial_id taken from the
// connect URL. An empty configured password disables the check entirely.
type StationGuard struct {
	password string
}

// NewStationGuard constructs a StationGuard. password == "" disables auth.
func NewStationGuard(password string) *StationGuard {
	return &StationGuard{password: password}
}

// Authenticate validates authorizationHeader (the raw HTTP Authorization
// header value, or "" if absent) against serialID. Returns nil when auth
// is disabled or the credentials match; otherwise an *AuthError whose
// Status is 400 (malformed/missing header) or 401 (mismatch).
func (g *StationGuard) Authenticate(serialID, authorizationHeader string) error {
	if g.password == "" {
		return nil
	}
	if authorizationHeader == "" {
		return &AuthError{Status: 400, Message: "missing Authorization header"}
	}

	const prefix = "Basic "
	if !strings.HasPrefix(authorizationHeader, prefix) {
		return &AuthError{Status: 400, Message: "Authorization header does not carry a Basic credential"}
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(authorizationHeader[len(prefix):]))
	if err != nil {
		return &AuthError{Status: 400, Message: "Authorization header is not valid base64"}
	}

	userID, password, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return &AuthError{Status: 400, Message: "decoded Authorization header does not contain a ':' separator"}
	}

	if userID != serialID || password != g.password {
		return &AuthError{Status: 401, Message: "serial id and/or password do not match"}
	}
	return nil
}
