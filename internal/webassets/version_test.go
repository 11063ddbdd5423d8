package webassets

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"testing/fstest"
)

func TestParseMode(t *testing.T) {
	cases := []struct {
		in   string
		want Mode
	}{
		{"dynamic", ModeDynamic},
		{"frozen", ModeFrozen},
		{"fixed", ModeFixed},
		{" Fixed ", ModeFixed},
	}
	for _, tc := range cases {
		got, err := ParseMode(tc.in)
		if err != nil || got != tc.want {
			t.Errorf("ParseMode(%q) = %v, %v", tc.in, got, err)
		}
	}
	if _, err := ParseMode("eventual"); err == nil {
		t.Error("ParseMode accepted an unknown mode")
	}
}

func TestNewVersionerValidation(t *testing.T) {
	if _, err := NewVersioner(ModeDynamic, "abc"); err == nil {
		t.Error("dynamic mode accepted a fixed token")
	}
	if _, err := NewVersioner(ModeFrozen, "abc"); err == nil {
		t.Error("frozen mode accepted a fixed token")
	}
	if _, err := NewVersioner(ModeFixed, ""); err == nil {
		t.Error("fixed mode accepted an empty token")
	}
	if _, err := NewVersioner(Mode(42), ""); err == nil {
		t.Error("unknown mode accepted")
	}
}

func TestDynamicTokenTracksContent(t *testing.T) {
	fsys := fstest.MapFS{
		"a.css": {Data: []byte("v1")},
	}
	p := &ConcatProxy{Store: NewStoreFS("css", fsys, 0), Type: "text/css"}
	v, err := NewVersioner(ModeDynamic, "")
	if err != nil {
		t.Fatal(err)
	}

	tok1, err := v.Token("css", p, []string{"a.css"})
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if len(tok1) != 16 {
		t.Errorf("token %q is not 16 hex chars", tok1)
	}

	again, err := v.Token("css", p, []string{"a.css"})
	if err != nil {
		t.Fatal(err)
	}
	if again != tok1 {
		t.Error("token changed without a content change")
	}

	fsys["a.css"].Data = []byte("v2")
	tok2, err := v.Token("css", p, []string{"a.css"})
	if err != nil {
		t.Fatal(err)
	}
	if tok2 == tok1 {
		t.Error("token unchanged after content change")
	}
}

func TestFrozenTokenReused(t *testing.T) {
	fsys := fstest.MapFS{
		"a.css": {Data: []byte("v1")},
	}
	p := &ConcatProxy{Store: NewStoreFS("css", fsys, 0), Type: "text/css"}
	v, err := NewVersioner(ModeFrozen, "")
	if err != nil {
		t.Fatal(err)
	}
	var hits, misses int
	v.OnFrozenLookup = func(hit bool) {
		if hit {
			hits++
		} else {
			misses++
		}
	}

	tok1, err := v.Token("css", p, []string{"a.css"})
	if err != nil {
		t.Fatal(err)
	}

	// content changes are invisible until restart
	fsys["a.css"].Data = []byte("v2")
	tok2, err := v.Token("css", p, []string{"a.css"})
	if err != nil {
		t.Fatal(err)
	}
	if tok2 != tok1 {
		t.Error("frozen token changed within process lifetime")
	}
	if hits != 1 || misses != 1 {
		t.Errorf("lookup counts = %d hits, %d misses", hits, misses)
	}
}

func TestFrozenConcurrentFirstAccess(t *testing.T) {
	v, err := NewVersioner(ModeFrozen, "")
	if err != nil {
		t.Fatal(err)
	}
	// every render returns different content, so racing first calls would
	// compute different tokens unless exactly one write takes effect
	p := &countingProxy{}

	const n = 32
	tokens := make([]string, n)
	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			<-start
			tok, err := v.Token("css", p, []string{"a.css"})
			if err != nil {
				t.Errorf("Token: %v", err)
				return
			}
			tokens[i] = tok
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 1; i < n; i++ {
		if tokens[i] != tokens[0] {
			t.Fatalf("tokens diverged: %q vs %q", tokens[i], tokens[0])
		}
	}

	later, err := v.Token("css", p, []string{"a.css"})
	if err != nil {
		t.Fatal(err)
	}
	if later != tokens[0] {
		t.Error("later call did not observe the stored token")
	}
}

type countingProxy struct{ n atomic.Int64 }

func (p *countingProxy) Render(string) ([]byte, error) {
	return []byte(fmt.Sprintf("render %d", p.n.Add(1))), nil
}
func (p *countingProxy) CreateBundle([]string) ([]byte, error) { return nil, nil }
func (p *countingProxy) ContentType() string                   { return "text/plain" }

func TestFixedTokenNeverRenders(t *testing.T) {
	v, err := NewVersioner(ModeFixed, "deadbeefdeadbeef")
	if err != nil {
		t.Fatal(err)
	}
	tok, err := v.Token("css", failingProxy{}, []string{"a.css"})
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if tok != "deadbeefdeadbeef" {
		t.Errorf("token = %q", tok)
	}
	if v.PinnedToken() != "deadbeefdeadbeef" || v.VersionMode() != "fixed" {
		t.Errorf("PinnedToken/VersionMode = %q/%q", v.PinnedToken(), v.VersionMode())
	}
}

func TestTokenOrderSensitive(t *testing.T) {
	p := &ConcatProxy{Store: NewStoreFS("css", testFS(), 0), Type: "text/css"}
	v, err := NewVersioner(ModeDynamic, "")
	if err != nil {
		t.Fatal(err)
	}
	ab, err := v.Token("css", p, []string{"reset.css", "site.css"})
	if err != nil {
		t.Fatal(err)
	}
	ba, err := v.Token("css", p, []string{"site.css", "reset.css"})
	if err != nil {
		t.Fatal(err)
	}
	if ab == ba {
		t.Error("reordered paths produced the same token")
	}
}

func TestTokenEmptyPaths(t *testing.T) {
	v, err := NewVersioner(ModeDynamic, "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := v.Token("css", failingProxy{}, nil); err == nil {
		t.Error("empty path list accepted")
	}
}

func TestTokenRenderFailurePropagates(t *testing.T) {
	v, err := NewVersioner(ModeDynamic, "")
	if err != nil {
		t.Fatal(err)
	}
	_, err = v.Token("css", failingProxy{}, []string{"a.css"})
	if !errors.Is(err, errRenderFailed) {
		t.Errorf("Token error = %v", err)
	}
}

var errRenderFailed = errors.New("render failed")

type failingProxy struct{}

func (failingProxy) Render(string) ([]byte, error)         { return nil, errRenderFailed }
func (failingProxy) CreateBundle([]string) ([]byte, error) { return nil, errRenderFailed }
func (failingProxy) ContentType() string                   { return "text/plain" }
