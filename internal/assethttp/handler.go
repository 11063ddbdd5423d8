// Package assethttp serves rendered assets and bundles over HTTP.
//
// Every asset lives under /{category}/{path}. A version query parameter marks
// the URL token-addressed: the content behind it can never change, so
// conditional requests short-circuit to 304 and responses carry an immutable
// cache policy. Bundles appear as /{category}/__bundle_{name}__ where the
// name identifies an ordered path list registered at link time or baked
// ahead of deploy.
package assethttp

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/webassets/internal/artifact"
	"github.com/keithlinneman/webassets/internal/cryptoutil"
	"github.com/keithlinneman/webassets/internal/log"
	"github.com/keithlinneman/webassets/internal/metrics"
	"github.com/keithlinneman/webassets/internal/webassets"
)

type Options struct {
	Registry *webassets.Registry

	// Cache is the artifact store for versioned responses. Optional; without
	// it every request renders live.
	Cache artifact.Cache

	// Metrics is optional.
	Metrics *metrics.ServerMetrics

	Logger log.Logger
}

type Handler struct {
	reg     *webassets.Registry
	cache   artifact.Cache
	metrics *metrics.ServerMetrics
	logger  log.Logger
}

func New(opts Options) (*Handler, error) {
	if opts.Registry == nil {
		return nil, errors.New("assethttp: nil registry")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	return &Handler{
		reg:     opts.Registry,
		cache:   opts.Cache,
		metrics: opts.Metrics,
		logger:  opts.Logger,
	}, nil
}

// Routes mounts the asset endpoints. GET and HEAD only; the server is
// read-only.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/{category}/*", h.serve)
	r.Head("/{category}/*", h.serve)
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "category")
	rest := chi.URLParam(r, "*")
	token := r.URL.Query().Get("version")

	// Tokens are hex by construction; anything else can never address an
	// artifact and is not an internal error.
	if token != "" && !cryptoutil.IsHex(token) {
		http.NotFound(w, r)
		return
	}

	// A token-addressed URL can never serve different bytes, so any
	// conditional revalidation is answered without touching the stores.
	if token != "" && (r.Header.Get("If-None-Match") != "" || r.Header.Get("If-Modified-Since") != "") {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	if bundle, ok := webassets.ParseBundleName(rest); ok {
		h.serveBundle(w, r, category, rest, bundle, token)
		return
	}
	h.serveAsset(w, r, category, rest, token)
}

func (h *Handler) serveAsset(w http.ResponseWriter, r *http.Request, category, path, token string) {
	ctx := r.Context()

	if token != "" && h.cache != nil {
		if contentType, body, _, err := h.cache.Get(ctx, category, path, token); err == nil {
			h.countArtifact("hit")
			h.write(w, r, contentType, body, token)
			return
		} else if !errors.Is(err, artifact.ErrNotFound) {
			h.writeError(w, r, category, path, err)
			return
		}
		h.countArtifact("miss")
	}

	// Only tokens the registry itself would issue may reach the cache or an
	// immutable response; an invented token is an unknown resource.
	if token != "" {
		want, err := h.reg.Version(ctx, category, path)
		if err != nil {
			h.writeError(w, r, category, path, err)
			return
		}
		if !cryptoutil.HashEqual(token, want) {
			http.NotFound(w, r)
			return
		}
	}

	body, contentType, err := h.render(ctx, category, false, path)
	if err != nil {
		h.writeError(w, r, category, path, err)
		return
	}

	if token != "" && h.cache != nil {
		if err := h.cache.Put(ctx, category, path, token, contentType, body); err != nil {
			log.FromContext(ctx).Warn(ctx, "artifact write-through failed",
				"category", category,
				"path", path,
				"error", err.Error(),
			)
		}
	}
	h.write(w, r, contentType, body, token)
}

func (h *Handler) serveBundle(w http.ResponseWriter, r *http.Request, category, seg, bundle, token string) {
	ctx := r.Context()

	if token != "" && h.cache != nil {
		if contentType, body, _, err := h.cache.Get(ctx, category, seg, token); err == nil {
			h.countArtifact("hit")
			h.write(w, r, contentType, body, token)
			return
		} else if !errors.Is(err, artifact.ErrNotFound) {
			h.writeError(w, r, category, seg, err)
			return
		}
		h.countArtifact("miss")
	}

	// The name alone does not recover the path list; only bundles announced
	// through LinkTargets or baked into the cache can be rebuilt.
	paths, ok := h.reg.LookupBundle(category, bundle)
	if !ok {
		http.NotFound(w, r)
		return
	}

	if token != "" {
		want, err := h.reg.Version(ctx, category, paths...)
		if err != nil {
			h.writeError(w, r, category, seg, err)
			return
		}
		if !cryptoutil.HashEqual(token, want) {
			http.NotFound(w, r)
			return
		}
	}

	body, contentType, err := h.render(ctx, category, true, paths...)
	if err != nil {
		h.writeError(w, r, category, seg, err)
		return
	}

	if token != "" && h.cache != nil {
		if err := h.cache.Put(ctx, category, seg, token, contentType, body); err != nil {
			log.FromContext(ctx).Warn(ctx, "artifact write-through failed",
				"category", category,
				"path", seg,
				"error", err.Error(),
			)
		}
	}
	h.write(w, r, contentType, body, token)
}

func (h *Handler) render(ctx context.Context, category string, bundle bool, paths ...string) ([]byte, string, error) {
	start := time.Now()
	body, contentType, err := h.reg.Content(ctx, category, paths...)
	if h.metrics != nil {
		h.metrics.ObserveRenderDuration(category, time.Since(start))
		if err != nil {
			h.metrics.IncRenderError(category)
		} else if bundle {
			h.metrics.IncBundleBuild(category)
		} else {
			h.metrics.IncRender(category)
		}
	}
	return body, contentType, err
}

func (h *Handler) write(w http.ResponseWriter, r *http.Request, contentType string, body []byte, token string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	if token != "" {
		w.Header().Set("ETag", `"`+token+`"`)
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	} else {
		w.Header().Set("Cache-Control", "no-cache")
	}
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(body)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, category, path string, err error) {
	var (
		notFound   *webassets.AssetNotFoundError
		badPath    *webassets.InvalidPathError
		noCategory *webassets.UnknownCategoryError
	)
	switch {
	case errors.As(err, &notFound), errors.As(err, &badPath), errors.As(err, &noCategory):
		// invalid paths 404 rather than 400: they are not addressable assets
		// and the distinction would only help probing
		http.NotFound(w, r)
	default:
		h.logger.Error(r.Context(), err, "asset request failed",
			"category", category,
			"path", path,
		)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) countArtifact(result string) {
	if h.metrics != nil {
		h.metrics.IncArtifact(result)
	}
}
