//go:build integration

package integration

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"testing"
)

func doWithHeaders(t *testing.T, method, path string, headers map[string]string) *http.Response {
	t.Helper()

	req, err := http.NewRequestWithContext(context.Background(), method, baseURL+path, nil)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func rateLimitRemaining(t *testing.T, terminalID string) (limit, remaining int) {
	t.Helper()

	resp := doWithHeaders(t, http.MethodGet, "/api/sessions/does-not-exist", map[string]string{"X-Terminal-ID": terminalID})
	defer resp.Body.Close()

	limit, err := strconv.Atoi(resp.Header.Get("X-RateLimit-Limit"))
	if err != nil {
		t.Fatalf("X-RateLimit-Limit: %v", err)
	}
	remaining, err = strconv.Atoi(resp.Header.Get("X-RateLimit-Remaining"))
	if err != nil {
		t.Fatalf("X-RateLimit-Remaining: %v", err)
	}
	if resp.Header.Get("X-RateLimit-Reset") == "" {
		t.Error("X-RateLimit-Reset header not present")
	}
	return limit, remaining
}

func TestRateLimit_KeyedByTerminal(t *testing.T) {
	limit, first := rateLimitRemaining(t, "till-rl-a")
	if first != limit-1 {
		t.Fatalf("till-rl-a first request: remaining %d, want %d", first, limit-1)
	}

	_, second := rateLimitRemaining(t, "till-rl-a")
	if second != limit-2 {
		t.Errorf("till-rl-a second request: remaining %d, want %d", second, limit-2)
	}

	_, other := rateLimitRemaining(t, "till-rl-b")
	if other != limit-1 {
		t.Errorf("till-rl-b shares a budget with till-rl-a: remaining %d, want %d", other, limit-1)
	}
}

func TestCORS_PreflightAllowsTerminalHeader(t *testing.T) {
	resp := doWithHeaders(t, http.MethodOptions, "/api/sessions", map[string]string{
		"Origin":                         "http://pos.example.com",
		"Access-Control-Request-Method":  http.MethodPost,
		"Access-Control-Request-Headers": "Content-Type, X-Terminal-ID",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got == "" {
		t.Error("Access-Control-Allow-Origin header not present")
	}
	if got := resp.Header.Get("Access-Control-Allow-Headers"); !strings.Contains(got, "X-Terminal-ID") {
		t.Errorf("Access-Control-Allow-Headers %q does not allow X-Terminal-ID", got)
	}
}

func TestRequestID_OnErrorResponses(t *testing.T) {
	resp := doWithHeaders(t, http.MethodGet, "/api/sessions/does-not-exist", map[string]string{
		"Origin":       "http://pos.example.com",
		"X-Request-ID": "till-7-req-0001",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Request-ID"); got != "till-7-req-0001" {
		t.Errorf("X-Request-ID: got %q, want %q", got, "till-7-req-0001")
	}
	if got := resp.Header.Get("Access-Control-Expose-Headers"); !strings.Contains(got, "X-Request-ID") {
		t.Errorf("Access-Control-Expose-Headers %q does not expose X-Request-ID", got)
	}

	resp = doWithHeaders(t, http.MethodPost, "/api/sessions/does-not-exist/submit", map[string]string{
		"X-Request-ID": strings.Repeat("r", 200),
	})
	defer resp.Body.Close()

	if got := resp.Header.Get("X-Request-ID"); !uuidPattern.MatchString(got) {
		t.Errorf("oversized X-Request-ID should be replaced by a uuid, got %q", got)
	}
}
