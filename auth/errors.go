package auth

import "errors"

// Fehler-Taxonomie des Auth-Layers. ExchangeCode liefert die ersten drei,
// Verify die letzten beiden.
var (
	// ErrInvalidCode: der Identity-Provider hat den OAuth-Code abgelehnt.
	ErrInvalidCode = errors.New("auth: authorization code rejected")
	// ErrUnauthorized: Identität verifiziert, aber weder auf der
	// Allow-List noch Mitglied des konfigurierten Teams.
	ErrUnauthorized = errors.New("auth: identity is not an admin")
	// ErrUpstreamFailure: Identity-Provider nicht erreichbar oder
	// Antwort in unerwarteter Form.
	ErrUpstreamFailure = errors.New("auth: identity provider failure")
	// ErrInvalidToken: Signatur kaputt oder Token missgebildet.
	ErrInvalidToken = errors.New("auth: invalid credential")
	// ErrTokenExpired: Credential abgelaufen.
	ErrTokenExpired = errors.New("auth: credential expired")
)
