package webassets

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/keithlinneman/webassets/internal/cryptoutil"
)

// Bundle URLs embed a name derived from the path list rather than the paths
// themselves, keeping URLs bounded. The name hashes the *ordered* list, so
// reordered bundles get distinct identities to match their distinct content.
const (
	bundlePrefix = "__bundle_"
	bundleSuffix = "__"
)

// BundleName derives the stable URL name for an ordered path list.
func BundleName(paths []string) string {
	return cryptoutil.SHA256Hex([]byte(strings.Join(paths, "\x00")))
}

// BundleSegment builds the URL path segment for an ordered path list,
// the inverse of ParseBundleName.
func BundleSegment(paths []string) string {
	return bundlePrefix + BundleName(paths) + bundleSuffix
}

// ParseBundleName extracts the bundle name from a URL path segment shaped
// like __bundle_<name>__, reporting whether it is one.
func ParseBundleName(seg string) (string, bool) {
	if !strings.HasPrefix(seg, bundlePrefix) || !strings.HasSuffix(seg, bundleSuffix) {
		return "", false
	}
	name := seg[len(bundlePrefix) : len(seg)-len(bundleSuffix)]
	return name, name != ""
}

// AssetURL builds the canonical URL for one asset: /{category}/{path} with
// the version token attached for long-lived caching.
func AssetURL(category, path, token string) string {
	u := "/" + category + "/" + path
	if token != "" {
		u += "?version=" + url.QueryEscape(token)
	}
	return u
}

// BundleURL builds the canonical URL for a bundle of ordered paths.
func BundleURL(category string, paths []string, token string) string {
	u := "/" + category + "/" + bundlePrefix + BundleName(paths) + bundleSuffix
	if token != "" {
		u += "?version=" + url.QueryEscape(token)
	}
	return u
}

// LinkTargets computes the URL(s) the template layer should reference for
// the given paths, in order. No paths means the category's default listing.
// Multiple paths collapse into one bundle URL when the category's proxy can
// merge; otherwise each asset keeps its own URL.
func (r *Registry) LinkTargets(ctx context.Context, name string, paths ...string) ([]string, error) {
	c, paths, err := r.resolveRequest(name, paths)
	if err != nil {
		// an empty category produces no links rather than an error,
		// "include everything" on nothing is a no-op
		var notFound *AssetNotFoundError
		if errors.As(err, &notFound) && notFound.Path == "" {
			return nil, nil
		}
		return nil, err
	}

	if len(paths) == 1 {
		tok, err := r.versioner.Token(name, c.proxy, paths)
		if err != nil {
			return nil, err
		}
		return []string{AssetURL(name, paths[0], tok)}, nil
	}

	if canBundle(c.proxy) {
		tok, err := r.versioner.Token(name, c.proxy, paths)
		if err != nil {
			return nil, err
		}
		r.RegisterBundle(name, paths)
		return []string{BundleURL(name, paths, tok)}, nil
	}

	urls := make([]string, 0, len(paths))
	for _, p := range paths {
		tok, err := r.versioner.Token(name, c.proxy, []string{p})
		if err != nil {
			return nil, err
		}
		urls = append(urls, AssetURL(name, p, tok))
	}
	return urls, nil
}
