package release

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ZebulonRouseFrantzich/nodepack/internal/fetch"
)

func releaseServer(t *testing.T, rel Release, check func(r *http.Request)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(rel); err != nil {
			t.Errorf("failed to encode release: %v", err)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestResolve_Match(t *testing.T) {
	rel := Release{
		TagName: "v3.3.3",
		Assets: []Asset{
			{Name: "linux-x64-14.0.0", BrowserDownloadURL: "https://example.test/linux"},
			{Name: "windows-x64-14.0.0", BrowserDownloadURL: "U"},
		},
	}
	server := releaseServer(t, rel, func(r *http.Request) {
		if got := r.Header.Get("Accept"); got != "application/vnd.github+json" {
			t.Errorf("Accept = %q", got)
		}
	})

	asset, err := NewResolver(fetch.NewFetcher(), server.URL).Resolve(context.Background(), fetch.Options{}, "", "windows-x64-14.0.0")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if asset.BrowserDownloadURL != "U" {
		t.Errorf("BrowserDownloadURL = %q, want U", asset.BrowserDownloadURL)
	}
}

func TestResolve_ExactNameOnly(t *testing.T) {
	rel := Release{Assets: []Asset{
		{Name: "windows-x64-14.0.0.exe", BrowserDownloadURL: "a"},
		{Name: "WINDOWS-X64-14.0.0", BrowserDownloadURL: "b"},
	}}
	server := releaseServer(t, rel, nil)

	_, err := NewResolver(fetch.NewFetcher(), server.URL).Resolve(context.Background(), fetch.Options{}, "", "windows-x64-14.0.0")

	var notFound *AssetNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("error = %v, want *AssetNotFoundError", err)
	}
}

func TestResolve_NotFoundMessage(t *testing.T) {
	server := releaseServer(t, Release{TagName: "v3.3.3"}, nil)

	_, err := NewResolver(fetch.NewFetcher(), server.URL).Resolve(context.Background(), fetch.Options{}, "", "alpine-arm64-99.0.0")
	if err == nil {
		t.Fatal("expected error but got none")
	}
	if !strings.Contains(err.Error(), "alpine-arm64-99.0.0") {
		t.Errorf("error %q does not name the asset", err)
	}
	if !strings.Contains(err.Error(), "--build") {
		t.Errorf("error %q does not suggest --build", err)
	}
}

func TestResolve_TokenDoesNotLeakIntoCallerOptions(t *testing.T) {
	var gotAuth []string
	server := releaseServer(t, Release{Assets: []Asset{{Name: "x", BrowserDownloadURL: "u"}}}, func(r *http.Request) {
		gotAuth = append(gotAuth, r.Header.Get("Authorization"))
	})

	resolver := NewResolver(fetch.NewFetcher(), server.URL)
	opts := fetch.Options{UserAgent: "test"}.WithHeader("X-Trace", "1")
	before := opts.Headers()

	if _, err := resolver.Resolve(context.Background(), opts, "s3cret", "x"); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if _, err := resolver.Resolve(context.Background(), opts, "", "x"); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if len(gotAuth) != 2 || gotAuth[0] != "token s3cret" || gotAuth[1] != "" {
		t.Errorf("Authorization headers = %q, want [\"token s3cret\" \"\"]", gotAuth)
	}

	after := opts.Headers()
	if len(after) != len(before) || after.Get("X-Trace") != "1" || after.Get("Authorization") != "" {
		t.Errorf("caller options changed: before %v, after %v", before, after)
	}
}

func TestResolve_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Reset", "1700000000")
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	_, err := NewResolver(fetch.NewFetcher(), server.URL).Resolve(context.Background(), fetch.Options{}, "", "x")

	var rlErr *RateLimitError
	if !errors.As(err, &rlErr) {
		t.Fatalf("error = %v, want *RateLimitError", err)
	}
	if rlErr.ResetAt.Unix() != 1700000000 {
		t.Errorf("ResetAt = %v", rlErr.ResetAt)
	}
	if !strings.Contains(err.Error(), "token") {
		t.Errorf("error %q should suggest a token", err)
	}
}

func TestResolve_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := NewResolver(fetch.NewFetcher(), server.URL).Resolve(context.Background(), fetch.Options{}, "", "x")

	var tErr *fetch.TransportError
	if !errors.As(err, &tErr) {
		t.Fatalf("error = %v, want *fetch.TransportError", err)
	}
	if tErr.StatusCode != http.StatusBadGateway {
		t.Errorf("StatusCode = %d", tErr.StatusCode)
	}
}

func TestResolve_BadJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>"))
	}))
	defer server.Close()

	if _, err := NewResolver(fetch.NewFetcher(), server.URL).Resolve(context.Background(), fetch.Options{}, "", "x"); err == nil {
		t.Fatal("expected error but got none")
	}
}

func TestNewResolver_DefaultEndpoint(t *testing.T) {
	if got := NewResolver(fetch.NewFetcher(), "").Endpoint(); got != DefaultEndpoint {
		t.Errorf("Endpoint() = %q, want %q", got, DefaultEndpoint)
	}
}
