package assethttp

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/webassets/internal/artifact"
	"github.com/keithlinneman/webassets/internal/webassets"
)

func newTestServer(t *testing.T, cache artifact.Cache) (*webassets.Registry, http.Handler) {
	t.Helper()

	dir := t.TempDir()
	files := map[string]string{
		"reset.css": "* { margin: 0 }",
		"site.css":  "body { color: black }",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	reg, err := webassets.New(webassets.Options{Mode: webassets.ModeDynamic})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := reg.AddConcatCategory("css", dir, "text/css", "\n"); err != nil {
		t.Fatal(err)
	}

	h, err := New(Options{Registry: reg, Cache: cache})
	if err != nil {
		t.Fatal(err)
	}
	r := chi.NewRouter()
	h.Routes(r)
	return reg, r
}

func get(t *testing.T, h http.Handler, target string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, http.NoBody)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServeAssetUnversioned(t *testing.T) {
	_, h := newTestServer(t, nil)

	rec := get(t, h, "/css/site.css", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Body.String(); got != "body { color: black }" {
		t.Errorf("body = %q", got)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/css" {
		t.Errorf("content type = %q", got)
	}
	if got := rec.Header().Get("Cache-Control"); got != "no-cache" {
		t.Errorf("cache control = %q", got)
	}
	if rec.Header().Get("ETag") != "" {
		t.Error("ETag set on unversioned response")
	}
}

func TestServeAssetVersioned(t *testing.T) {
	reg, h := newTestServer(t, nil)

	tok, err := reg.Version(context.Background(), "css", "site.css")
	if err != nil {
		t.Fatal(err)
	}

	rec := get(t, h, "/css/site.css?version="+tok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Cache-Control"); got != "public, max-age=31536000, immutable" {
		t.Errorf("cache control = %q", got)
	}
	if got := rec.Header().Get("ETag"); got != `"`+tok+`"` {
		t.Errorf("etag = %q", got)
	}
}

func TestConditionalRequestShortCircuits(t *testing.T) {
	_, h := newTestServer(t, nil)

	rec := get(t, h, "/css/site.css?version=00aabbccddeeff11", map[string]string{
		"If-None-Match": `"00aabbccddeeff11"`,
	})
	if rec.Code != http.StatusNotModified {
		t.Fatalf("status = %d, want 304", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Error("304 carried a body")
	}

	rec = get(t, h, "/css/site.css?version=00aabbccddeeff11", map[string]string{
		"If-Modified-Since": "Mon, 02 Jan 2006 15:04:05 GMT",
	})
	if rec.Code != http.StatusNotModified {
		t.Fatalf("status = %d, want 304 for If-Modified-Since", rec.Code)
	}
}

func TestConditionalWithoutVersionStillRenders(t *testing.T) {
	_, h := newTestServer(t, nil)

	rec := get(t, h, "/css/site.css", map[string]string{
		"If-None-Match": `"anything"`,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 without version param", rec.Code)
	}
}

func TestVersionedServedFromArtifactCache(t *testing.T) {
	cache, err := artifact.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	reg, h := newTestServer(t, cache)

	tok, err := reg.Version(context.Background(), "css", "site.css")
	if err != nil {
		t.Fatal(err)
	}

	// First request renders live and writes through.
	rec := get(t, h, "/css/site.css?version="+tok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("first status = %d", rec.Code)
	}

	// Poison the cache entry under a different token to prove which copy a
	// cached request serves.
	contentType, body, _, err := cache.Get(context.Background(), "css", "site.css", tok)
	if err != nil {
		t.Fatalf("expected write-through entry: %v", err)
	}
	if contentType != "text/css" || string(body) != "body { color: black }" {
		t.Fatalf("cached entry = %q %q", contentType, body)
	}

	// Second request must hit the cache even if the entry differs from disk.
	if err := cache.Put(context.Background(), "css", "site.css", "ffffffffffffffff", "text/css", []byte("cached copy")); err != nil {
		t.Fatal(err)
	}
	rec = get(t, h, "/css/site.css?version=ffffffffffffffff", nil)
	if rec.Body.String() != "cached copy" {
		t.Errorf("body = %q, want artifact cache copy", rec.Body.String())
	}
}

func TestFabricatedTokenRejected(t *testing.T) {
	dir := t.TempDir()
	cache, err := artifact.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	reg, h := newTestServer(t, cache)

	for i := 0; i < 5; i++ {
		target := fmt.Sprintf("/css/site.css?version=000000000000abc%d", i)
		rec := get(t, h, target, nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want 404", target, rec.Code)
		}
	}

	// no artifact may be minted under a token the registry never issued
	entries, err := os.ReadDir(filepath.Join(dir, "css", "site.css"))
	if err == nil && len(entries) != 0 {
		t.Errorf("fabricated tokens created %d artifact entries", len(entries))
	}

	// the issued token still serves and writes through
	tok, err := reg.Version(context.Background(), "css", "site.css")
	if err != nil {
		t.Fatal(err)
	}
	rec := get(t, h, "/css/site.css?version="+tok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d for issued token", rec.Code)
	}
	if _, _, _, err := cache.Get(context.Background(), "css", "site.css", tok); err != nil {
		t.Errorf("write-through missing for issued token: %v", err)
	}
}

func TestFabricatedBundleTokenRejected(t *testing.T) {
	reg, h := newTestServer(t, nil)

	links, err := reg.LinkTargets(context.Background(), "css", "reset.css", "site.css")
	if err != nil {
		t.Fatal(err)
	}
	u, err := url.Parse(links[0])
	if err != nil {
		t.Fatal(err)
	}

	rec := get(t, h, u.Path+"?version=000000000000abcd", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for wrong bundle token", rec.Code)
	}

	rec = get(t, h, links[0], nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d for issued bundle token", rec.Code)
	}
}

func TestMalformedTokenIsNotFound(t *testing.T) {
	_, h := newTestServer(t, nil)

	rec := get(t, h, "/css/site.css?version=not-hex", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 for malformed token", rec.Code)
	}

	// malformed tokens never reach the conditional short-circuit either
	rec = get(t, h, "/css/site.css?version=not-hex", map[string]string{
		"If-None-Match": `"not-hex"`,
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 for conditional malformed token", rec.Code)
	}
}

func TestServeBundle(t *testing.T) {
	reg, h := newTestServer(t, nil)

	links, err := reg.LinkTargets(context.Background(), "css", "reset.css", "site.css")
	if err != nil {
		t.Fatal(err)
	}
	if len(links) != 1 {
		t.Fatalf("links = %v, want single bundle URL", links)
	}

	rec := get(t, h, links[0], nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d for %s", rec.Code, links[0])
	}
	want := "* { margin: 0 }\nbody { color: black }"
	if got := rec.Body.String(); got != want {
		t.Errorf("body = %q, want %q", got, want)
	}
}

func TestUnknownBundle404(t *testing.T) {
	_, h := newTestServer(t, nil)

	rec := get(t, h, "/css/__bundle_deadbeef__", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 for unregistered bundle", rec.Code)
	}
}

func TestNotFoundMapping(t *testing.T) {
	_, h := newTestServer(t, nil)

	for _, target := range []string{
		"/css/missing.css",
		"/img/site.css",
		"/css/" + url.PathEscape("../escape.css"),
	} {
		rec := get(t, h, target, nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want 404", target, rec.Code)
		}
	}
}

func TestHeadOmitsBody(t *testing.T) {
	_, h := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodHead, "/css/site.css", http.NoBody)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Error("HEAD response carried a body")
	}
	if cl := rec.Header().Get("Content-Length"); cl == "" || cl == "0" {
		t.Errorf("Content-Length = %q", cl)
	}
}

func TestPostRejected(t *testing.T) {
	_, h := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/css/site.css", strings.NewReader("x"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}
