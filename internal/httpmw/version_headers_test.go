package httpmw

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeVersionInfo struct {
	mode  string
	token string
}

func (f fakeVersionInfo) VersionMode() string { return f.mode }
func (f fakeVersionInfo) PinnedToken() string { return f.token }

func TestVersionHeaders(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	rec := httptest.NewRecorder()
	mw := VersionHeaders(fakeVersionInfo{mode: "fixed", token: "00112233aabbccdd"})
	mw(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	if got := rec.Header().Get("X-Asset-Version-Mode"); got != "fixed" {
		t.Errorf("X-Asset-Version-Mode = %q", got)
	}
	if got := rec.Header().Get("X-Asset-Pinned-Token"); got != "00112233aabbccdd" {
		t.Errorf("X-Asset-Pinned-Token = %q", got)
	}
}

func TestVersionHeadersEmptyToken(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	rec := httptest.NewRecorder()
	mw := VersionHeaders(fakeVersionInfo{mode: "dynamic"})
	mw(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	if got := rec.Header().Get("X-Asset-Version-Mode"); got != "dynamic" {
		t.Errorf("X-Asset-Version-Mode = %q", got)
	}
	if _, ok := rec.Header()["X-Asset-Pinned-Token"]; ok {
		t.Error("X-Asset-Pinned-Token set with empty token")
	}
}
