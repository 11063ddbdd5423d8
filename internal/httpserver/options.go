package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/webassets/internal/health"
	"github.com/keithlinneman/webassets/internal/httpmw"
	"github.com/keithlinneman/webassets/internal/log"
)

type Options struct {
	Logger       log.Logger
	Port         int
	UseRecoverMW bool
	OnPanic      func()
	MetricsMW    func(http.Handler) http.Handler
	RateLimitMW  func(http.Handler) http.Handler
	ClientIPOpts httpmw.ClientIPOptions
	Health       health.Probe
	Readiness    health.Probe
	VersionInfo  httpmw.VersionInfo // For X-Asset-Version-Mode and X-Asset-Pinned-Token headers

	// AssetRoutes mounts the asset endpoints on the router
	AssetRoutes func(chi.Router)
}
