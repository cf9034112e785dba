// Package auth tauscht GitHub-OAuth-Codes gegen signierte Session-Credentials
// und prüft diese auf Folge-Requests. Die teure Autorisierungsprüfung
// (Allow-List oder Team-Mitgliedschaft) passiert genau einmal beim Login;
// Verify ist danach billig und rein lokal.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"qpaper-archive/config"
)

// httpClient wird für alle Anfragen an den Identity-Provider verwendet.
var httpClient = &http.Client{Timeout: 30 * time.Second}

// Verifier kapselt die OAuth-Konfiguration samt dem privilegierten
// Admin-Token für die Mitgliedschaftsabfrage. Das Admin-Token verlässt den
// Verifier nie.
type Verifier struct {
	clientID     string
	clientSecret string
	adminToken   string
	org          string
	team         string
	allowList    map[string]struct{}

	// In Tests auf einen httptest-Server umgebogen.
	OAuthBaseURL string
	APIBaseURL   string

	jwtSecret []byte
	jwtExpiry time.Duration

	logger *zap.Logger
}

// New baut den Verifier aus der Konfiguration. Die Allow-List wird einmalig
// normalisiert (GitHub-Logins sind case-insensitiv).
func New(cfg *config.Config, logger *zap.Logger) *Verifier {
	allow := make(map[string]struct{})
	for _, login := range cfg.AdminAllowListEntries() {
		allow[strings.ToLower(login)] = struct{}{}
	}
	return &Verifier{
		clientID:     cfg.GithubClientID,
		clientSecret: cfg.GithubClientSecret,
		adminToken:   cfg.GithubAdminToken,
		org:          cfg.GithubOrg,
		team:         cfg.GithubTeam,
		allowList:    allow,
		OAuthBaseURL: "https://github.com/login/oauth",
		APIBaseURL:   "https://api.github.com",
		jwtSecret:    []byte(cfg.JWTSecret),
		jwtExpiry:    time.Duration(cfg.JWTExpiryHours) * time.Hour,
		logger:       logger,
	}
}

// ExchangeCode tauscht den OAuth-Code gegen ein Access-Token, holt die
// Identität dahinter und prüft die Autorisierung. Nur wenn alles gelingt,
// wird ein Session-Credential ausgestellt.
func (v *Verifier) ExchangeCode(ctx context.Context, code string) (string, error) {
	accessToken, err := v.fetchAccessToken(ctx, code)
	if err != nil {
		return "", err
	}
	login, err := v.fetchLogin(ctx, accessToken)
	if err != nil {
		return "", err
	}

	if _, ok := v.allowList[strings.ToLower(login)]; !ok {
		member, err := v.isTeamMember(ctx, login)
		if err != nil {
			return "", err
		}
		if !member {
			v.logger.Warn("Login abgelehnt: kein Admin", zap.String("login", login))
			return "", ErrUnauthorized
		}
	}

	token, err := issueToken(login, v.jwtSecret, v.jwtExpiry)
	if err != nil {
		return "", fmt.Errorf("signing credential: %w", err)
	}
	v.logger.Info("Admin-Login erfolgreich", zap.String("login", login))
	return token, nil
}

// Verify prüft ein Session-Credential lokal und liefert den Login.
func (v *Verifier) Verify(token string) (string, error) {
	return verifyToken(token, v.jwtSecret)
}

func (v *Verifier) fetchAccessToken(ctx context.Context, code string) (string, error) {
	form := url.Values{
		"client_id":     {v.clientID},
		"client_secret": {v.clientSecret},
		"code":          {code},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		v.OAuthBaseURL+"/access_token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstreamFailure, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstreamFailure, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: token endpoint returned %d", ErrUpstreamFailure, resp.StatusCode)
	}

	var body struct {
		AccessToken string `json:"access_token"`
		Error       string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstreamFailure, err)
	}
	if body.AccessToken == "" {
		return "", ErrInvalidCode
	}
	return body.AccessToken, nil
}

func (v *Verifier) fetchLogin(ctx context.Context, accessToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.APIBaseURL+"/user", nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstreamFailure, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstreamFailure, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: user endpoint returned %d", ErrUpstreamFailure, resp.StatusCode)
	}

	var body struct {
		Login string `json:"login"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstreamFailure, err)
	}
	if body.Login == "" {
		return "", fmt.Errorf("%w: user response without login", ErrUpstreamFailure)
	}
	return body.Login, nil
}

// isTeamMember fragt die Team-Mitgliedschaft mit dem privilegierten
// Admin-Token ab. Das Token des Users reicht dafür nicht, weil die
// Sichtbarkeit der Mitgliederliste erhöhte Scopes verlangt.
func (v *Verifier) isTeamMember(ctx context.Context, login string) (bool, error) {
	u := fmt.Sprintf("%s/orgs/%s/teams/%s/memberships/%s",
		v.APIBaseURL, v.org, v.team, url.PathEscape(login))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUpstreamFailure, err)
	}
	req.Header.Set("Authorization", "Bearer "+v.adminToken)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUpstreamFailure, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotFound:
		return false, nil
	case http.StatusOK:
	default:
		return false, fmt.Errorf("%w: membership endpoint returned %d", ErrUpstreamFailure, resp.StatusCode)
	}

	var body struct {
		State string `json:"state"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("%w: %v", ErrUpstreamFailure, err)
	}
	return body.State == "active", nil
}
