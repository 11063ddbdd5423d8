package webassets

import (
	"context"
	"strings"
	"testing"
)

func TestBundleName(t *testing.T) {
	a := BundleName([]string{"reset.css", "site.css"})
	b := BundleName([]string{"site.css", "reset.css"})
	if a == b {
		t.Error("reordered path lists share a bundle name")
	}
	if len(a) != 64 {
		t.Errorf("bundle name %q is not a sha256 hex string", a)
	}
}

func TestParseBundleName(t *testing.T) {
	paths := []string{"reset.css", "site.css"}
	seg := BundleSegment(paths)
	if !strings.HasPrefix(seg, "__bundle_") || !strings.HasSuffix(seg, "__") {
		t.Fatalf("segment = %q", seg)
	}
	name, ok := ParseBundleName(seg)
	if !ok || name != BundleName(paths) {
		t.Errorf("ParseBundleName(%q) = %q, %v", seg, name, ok)
	}

	for _, s := range []string{"reset.css", "__bundle___", "__bundle_abc", "bundle_abc__", ""} {
		if _, ok := ParseBundleName(s); ok {
			t.Errorf("ParseBundleName(%q) accepted", s)
		}
	}
}

func TestAssetURL(t *testing.T) {
	if got := AssetURL("css", "reset.css", "deadbeefdeadbeef"); got != "/css/reset.css?version=deadbeefdeadbeef" {
		t.Errorf("AssetURL = %q", got)
	}
	if got := AssetURL("css", "reset.css", ""); got != "/css/reset.css" {
		t.Errorf("AssetURL without token = %q", got)
	}
}

func TestLinkTargetsSingle(t *testing.T) {
	r := newTestRegistry(t)
	urls, err := r.LinkTargets(context.Background(), "css", "reset.css")
	if err != nil {
		t.Fatalf("LinkTargets: %v", err)
	}
	if len(urls) != 1 {
		t.Fatalf("urls = %v", urls)
	}
	if !strings.HasPrefix(urls[0], "/css/reset.css?version=") {
		t.Errorf("url = %q", urls[0])
	}
}

func TestLinkTargetsBundle(t *testing.T) {
	r := newTestRegistry(t)
	paths := []string{"reset.css", "site.css"}
	urls, err := r.LinkTargets(context.Background(), "css", paths...)
	if err != nil {
		t.Fatalf("LinkTargets: %v", err)
	}
	if len(urls) != 1 {
		t.Fatalf("urls = %v", urls)
	}
	wantPrefix := "/css/" + BundleSegment(paths) + "?version="
	if !strings.HasPrefix(urls[0], wantPrefix) {
		t.Errorf("url = %q, want prefix %q", urls[0], wantPrefix)
	}

	// emitting the bundle URL registers the path list for later serving
	got, ok := r.LookupBundle("css", BundleName(paths))
	if !ok || !equalStrings(got, paths) {
		t.Errorf("LookupBundle after LinkTargets = %v, %v", got, ok)
	}
}

func TestLinkTargetsUnbundleable(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"a.png": "pnga",
		"b.png": "pngb",
	})
	r, err := New(Options{})
	if err != nil {
		t.Fatal(err)
	}
	_, err = r.AddCategory("img", dir, func(s *Store) Proxy {
		return noBundleProxy{&ConcatProxy{Store: s, Type: "image/png"}}
	})
	if err != nil {
		t.Fatal(err)
	}

	urls, err := r.LinkTargets(context.Background(), "img", "a.png", "b.png")
	if err != nil {
		t.Fatalf("LinkTargets: %v", err)
	}
	if len(urls) != 2 {
		t.Fatalf("urls = %v", urls)
	}
	if !strings.HasPrefix(urls[0], "/img/a.png?version=") || !strings.HasPrefix(urls[1], "/img/b.png?version=") {
		t.Errorf("urls = %v", urls)
	}
}

func TestLinkTargetsEmptyCategory(t *testing.T) {
	r, err := New(Options{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.AddConcatCategory("css", t.TempDir(), "text/css", "\n"); err != nil {
		t.Fatal(err)
	}
	urls, err := r.LinkTargets(context.Background(), "css")
	if err != nil {
		t.Fatalf("LinkTargets: %v", err)
	}
	if urls != nil {
		t.Errorf("urls = %v, want nil", urls)
	}
}
