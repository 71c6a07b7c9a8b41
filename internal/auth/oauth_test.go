package auth

import (
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

func newTestFlow(t *testing.T) *OAuthFlow {
	t.Helper()
	cfg := &oauth2.Config{
		ClientID: "client-id",
		Scopes:   []string{"scope-a"},
		Endpoint: google.Endpoint,
	}
	flow, err := NewOAuthFlow(cfg, nil, "http://127.0.0.1:9999/callback")
	if err != nil {
		t.Fatalf("NewOAuthFlow failed: %v", err)
	}
	return flow
}

func TestNewOAuthFlowRequiresConfig(t *testing.T) {
	if _, err := NewOAuthFlow(nil, nil, "http://127.0.0.1:9999/callback"); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := NewOAuthFlow(&oauth2.Config{}, nil, ""); err == nil {
		t.Error("expected error for empty redirect URL")
	}
}

func TestGetAuthURLCarriesPKCE(t *testing.T) {
	flow := newTestFlow(t)

	parsed, err := url.Parse(flow.GetAuthURL())
	if err != nil {
		t.Fatalf("failed to parse auth URL: %v", err)
	}
	q := parsed.Query()
	if q.Get("code_challenge") == "" {
		t.Error("auth URL missing code_challenge")
	}
	if q.Get("code_challenge_method") != "S256" {
		t.Errorf("code_challenge_method = %q, want S256", q.Get("code_challenge_method"))
	}
	if q.Get("state") != flow.state {
		t.Error("auth URL state does not match flow state")
	}
	if q.Get("access_type") != "offline" {
		t.Error("auth URL should request offline access for a refresh token")
	}
}

func TestStateIsUniquePerFlow(t *testing.T) {
	a := newTestFlow(t)
	b := newTestFlow(t)
	if a.state == b.state {
		t.Error("two flows generated the same state")
	}
	if a.codeVerifier == b.codeVerifier {
		t.Error("two flows generated the same code verifier")
	}
}

func TestHandleCallbackDeliversCode(t *testing.T) {
	flow := newTestFlow(t)

	req := httptest.NewRequest("GET", "/callback?state="+url.QueryEscape(flow.state)+"&code=auth-code", nil)
	rec := httptest.NewRecorder()
	flow.handleCallback(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	select {
	case code := <-flow.codeChan:
		if code != "auth-code" {
			t.Errorf("code = %q, want %q", code, "auth-code")
		}
	case <-time.After(time.Second):
		t.Fatal("no code delivered")
	}
}

func TestHandleCallbackRejectsBadState(t *testing.T) {
	flow := newTestFlow(t)

	req := httptest.NewRequest("GET", "/callback?state=forged&code=auth-code", nil)
	rec := httptest.NewRecorder()
	flow.handleCallback(rec, req)

	if rec.Code != 400 {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	select {
	case err := <-flow.errChan:
		if !strings.Contains(err.Error(), "state") {
			t.Errorf("error %q should mention the state check", err)
		}
	case <-time.After(time.Second):
		t.Fatal("no error delivered")
	}
}

func TestWaitForCodeTimeout(t *testing.T) {
	flow := newTestFlow(t)
	if _, err := flow.WaitForCode(10 * time.Millisecond); err == nil {
		t.Error("expected timeout error")
	}
}

func TestCodeChallengeS256(t *testing.T) {
	// RFC 7636 appendix B test vector.
	got := codeChallengeS256("dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk")
	want := "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
	if got != want {
		t.Errorf("codeChallengeS256 = %s, want %s", got, want)
	}
}
