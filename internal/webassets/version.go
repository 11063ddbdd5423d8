package webassets

import (
	"fmt"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Mode selects the versioning strategy. It is fixed at construction for the
// whole process; independent Versioner instances (as in tests) never
// interfere with each other.
type Mode int

const (
	// ModeDynamic recomputes the token from current content on every call.
	// Always correct, always pays for a full render.
	ModeDynamic Mode = iota

	// ModeFrozen computes each token once per process lifetime and reuses
	// it. Stale after the underlying content changes; that staleness is a
	// documented trade, not a bug.
	ModeFrozen

	// ModeFixed returns an externally supplied token for every key and
	// never renders. Meant for deployments that precompute artifacts.
	ModeFixed
)

func (m Mode) String() string {
	switch m {
	case ModeDynamic:
		return "dynamic"
	case ModeFrozen:
		return "frozen"
	case ModeFixed:
		return "fixed"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode maps a configuration string onto a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dynamic":
		return ModeDynamic, nil
	case "frozen":
		return ModeFrozen, nil
	case "fixed":
		return ModeFixed, nil
	}
	return 0, fmt.Errorf("unknown versioning mode %q (valid modes are dynamic|frozen|fixed)", s)
}

// Versioner computes version tokens for assets and bundles. Tokens are
// opaque printable strings; equal tokens imply equal content for practical
// purposes, nothing is promised about ordering across content changes.
//
// The token is an xxh64 over the rendered content of each path in request
// order, NUL-separated. The ordered key matters: reordering a bundle
// changes both its content and its token.
type Versioner struct {
	mode  Mode
	fixed string

	// frozen maps key -> token. Populated lazily, never evicted; growth
	// is bounded by the finite set of registered assets.
	frozen sync.Map

	// OnFrozenLookup reports frozen-cache hits and misses for metrics
	// wiring. May be nil.
	OnFrozenLookup func(hit bool)
}

// NewVersioner builds a Versioner for the given mode. fixedToken is required
// for ModeFixed and rejected otherwise.
func NewVersioner(mode Mode, fixedToken string) (*Versioner, error) {
	switch mode {
	case ModeDynamic, ModeFrozen:
		if fixedToken != "" {
			return nil, fmt.Errorf("fixed token set but versioning mode is %s", mode)
		}
	case ModeFixed:
		if fixedToken == "" {
			return nil, fmt.Errorf("versioning mode fixed requires a token")
		}
	default:
		return nil, fmt.Errorf("unknown versioning mode %d", int(mode))
	}
	return &Versioner{mode: mode, fixed: fixedToken}, nil
}

// Mode returns the configured strategy.
func (v *Versioner) Mode() Mode { return v.mode }

// VersionMode names the strategy for response headers.
func (v *Versioner) VersionMode() string { return v.mode.String() }

// PinnedToken returns the fixed-mode token, or "" in other modes.
func (v *Versioner) PinnedToken() string { return v.fixed }

// Token returns the version token for the ordered paths of one category,
// rendering through proxy as the strategy requires. A render failure
// propagates; no partial or silently stale token is ever returned outside
// frozen mode's by-design reuse.
func (v *Versioner) Token(category string, proxy Proxy, paths []string) (string, error) {
	if len(paths) == 0 {
		return "", fmt.Errorf("version token for category %s: no paths", category)
	}
	if v.mode == ModeFixed {
		return v.fixed, nil
	}

	key := versionKey(category, paths)
	if v.mode == ModeFrozen {
		if tok, ok := v.frozen.Load(key); ok {
			v.lookup(true)
			return tok.(string), nil
		}
		v.lookup(false)
	}

	tok, err := contentToken(proxy, paths)
	if err != nil {
		return "", err
	}

	if v.mode == ModeFrozen {
		// concurrent first calls may both render; LoadOrStore keeps
		// exactly one result and every racer observes that one
		stored, _ := v.frozen.LoadOrStore(key, tok)
		tok = stored.(string)
	}
	return tok, nil
}

func (v *Versioner) lookup(hit bool) {
	if v.OnFrozenLookup != nil {
		v.OnFrozenLookup(hit)
	}
}

func contentToken(proxy Proxy, paths []string) (string, error) {
	h := xxhash.New()
	for _, path := range paths {
		b, err := proxy.Render(path)
		if err != nil {
			return "", err
		}
		_, _ = h.Write(b)
		_, _ = h.Write([]byte{0})
	}
	return fmt.Sprintf("%016x", h.Sum64()), nil
}

func versionKey(category string, paths []string) string {
	return category + "\x00" + strings.Join(paths, "\x00")
}
