package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

// githubStub baut den für ExchangeCode relevanten Ausschnitt der GitHub-API
// nach: Code-Tausch, User-Lookup, Team-Mitgliedschaft.
type githubStub struct {
	validCode       string
	login           string
	teamMembers     map[string]bool
	userStatus      int
	membershipCalls atomic.Int64
}

func (g *githubStub) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /access_token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		w.Header().Set("Content-Type", "application/json")
		if r.FormValue("code") != g.validCode {
			json.NewEncoder(w).Encode(map[string]string{"error": "bad_verification_code"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"access_token": "gho_test"})
	})
	mux.HandleFunc("GET /user", func(w http.ResponseWriter, r *http.Request) {
		if g.userStatus != 0 {
			w.WriteHeader(g.userStatus)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"login": g.login})
	})
	mux.HandleFunc("GET /orgs/testorg/teams/admins/memberships/", func(w http.ResponseWriter, r *http.Request) {
		g.membershipCalls.Add(1)
		login := r.URL.Path[len("/orgs/testorg/teams/admins/memberships/"):]
		if !g.teamMembers[login] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"state": "active"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testVerifier(srv *httptest.Server, allow ...string) *Verifier {
	allowList := make(map[string]struct{})
	for _, l := range allow {
		allowList[l] = struct{}{}
	}
	return &Verifier{
		clientID:     "cid",
		clientSecret: "csecret",
		adminToken:   "admin-token",
		org:          "testorg",
		team:         "admins",
		allowList:    allowList,
		OAuthBaseURL: srv.URL,
		APIBaseURL:   srv.URL,
		jwtSecret:    []byte("test-secret"),
		jwtExpiry:    time.Hour,
		logger:       zap.NewNop(),
	}
}

func TestExchangeCodeAllowListedUser(t *testing.T) {
	t.Parallel()

	stub := &githubStub{validCode: "good", login: "alice"}
	v := testVerifier(stub.server(t), "alice")

	tok, err := v.ExchangeCode(context.Background(), "good")
	if err != nil {
		t.Fatalf("ExchangeCode error: %v", err)
	}
	login, err := v.Verify(tok)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if login != "alice" {
		t.Fatalf("login = %q, want alice", login)
	}
	// Allow-List-Treffer brauchen keine Mitgliedschaftsabfrage.
	if stub.membershipCalls.Load() != 0 {
		t.Error("membership endpoint should not be consulted for allow-listed users")
	}
}

func TestExchangeCodeTeamMember(t *testing.T) {
	t.Parallel()

	stub := &githubStub{validCode: "good", login: "bob", teamMembers: map[string]bool{"bob": true}}
	v := testVerifier(stub.server(t))

	tok, err := v.ExchangeCode(context.Background(), "good")
	if err != nil {
		t.Fatalf("ExchangeCode error: %v", err)
	}
	if login, _ := v.Verify(tok); login != "bob" {
		t.Fatalf("login = %q, want bob", login)
	}
	if stub.membershipCalls.Load() != 1 {
		t.Errorf("expected exactly one membership lookup, got %d", stub.membershipCalls.Load())
	}
}

func TestExchangeCodeUnauthorized(t *testing.T) {
	t.Parallel()

	stub := &githubStub{validCode: "good", login: "mallory"}
	v := testVerifier(stub.server(t))

	tok, err := v.ExchangeCode(context.Background(), "good")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if tok != "" {
		t.Error("no credential may be issued for unauthorized identities")
	}
}

func TestExchangeCodeInvalidCode(t *testing.T) {
	t.Parallel()

	stub := &githubStub{validCode: "good", login: "alice"}
	v := testVerifier(stub.server(t), "alice")

	if _, err := v.ExchangeCode(context.Background(), "stale"); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}
}

func TestExchangeCodeUpstreamFailure(t *testing.T) {
	t.Parallel()

	stub := &githubStub{validCode: "good", login: "alice", userStatus: http.StatusInternalServerError}
	v := testVerifier(stub.server(t), "alice")

	if _, err := v.ExchangeCode(context.Background(), "good"); !errors.Is(err, ErrUpstreamFailure) {
		t.Fatalf("expected ErrUpstreamFailure, got %v", err)
	}
}
