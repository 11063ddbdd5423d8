package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keithlinneman/webassets/internal/version"
)

type ServerMetrics struct {
	reg                    *prometheus.Registry
	handler                http.Handler
	inflight               prometheus.Gauge
	reqTotal               *prometheus.CounterVec
	reqDur                 *prometheus.HistogramVec
	respBytes              *prometheus.HistogramVec
	httpPanicTotal         prometheus.Counter
	buildInfo              *prometheus.GaugeVec
	ratelimitDeniedTotal   prometheus.Counter
	ratelimitCapacityTotal prometheus.Counter

	errorsTotal *prometheus.CounterVec

	profilingActive prometheus.Gauge

	// asset pipeline metrics
	rendersTotal      *prometheus.CounterVec
	renderErrorsTotal *prometheus.CounterVec
	bundleBuildsTotal *prometheus.CounterVec
	renderDuration    *prometheus.HistogramVec
	frozenCacheTotal  *prometheus.CounterVec
	artifactTotal     *prometheus.CounterVec
	versionModeInfo   *prometheus.GaugeVec
	pinnedTokenInfo   *prometheus.GaugeVec
}

// New returns a fresh registry + standard collectors + HTTP metrics
// safe labels only (method, route, code) to avoid path/cardinality explosions
func New() *ServerMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &ServerMetrics{
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),
		reqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		}, []string{"method", "route", "status"}),
		reqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request latency by method and route",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		respBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Response size by method and route",
			Buckets: []float64{256, 1024, 4096, 16384, 65536, 262144, 1048576, 4194304, 16777216, 52428800},
		}, []string{"method", "route"}),
		httpPanicTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_panic_total",
			Help: "Total number of recovered httpserver panics",
		}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build metadata (value is always 1)",
		}, []string{"app", "component", "version", "commit", "commit_date", "build_id", "build_date", "vcs_dirty", "go_version"}),
		ratelimitDeniedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_total",
			Help: "Total requests rejected by rate limiter",
		}),
		ratelimitCapacityTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_capacity_total",
			Help: "Total number of times rate limiter capacity reached",
		}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total 5xx HTTP server errors by method and route (SLI)",
		}, []string{"method", "route"}),
		profilingActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profiling_active",
			Help: "Whether continuous profiling is active (1) or disabled/failed (0)",
		}),
		rendersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "asset_renders_total",
			Help: "Total single-asset renders by category",
		}, []string{"category"}),
		renderErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "asset_render_errors_total",
			Help: "Total failed renders by category",
		}, []string{"category"}),
		bundleBuildsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "asset_bundle_builds_total",
			Help: "Total bundle concatenations by category",
		}, []string{"category"}),
		renderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "asset_render_duration_seconds",
			Help:    "Time to render an asset or build a bundle",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"category"}),
		frozenCacheTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "asset_frozen_cache_total",
			Help: "Frozen-mode version token lookups by result",
		}, []string{"result"}),
		artifactTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "asset_artifact_cache_total",
			Help: "Artifact cache lookups by result",
		}, []string{"result"}),
		versionModeInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "asset_version_mode_info",
			Help: "Active versioning mode (label carries value, gauge is always 1)",
		}, []string{"mode"}),
		pinnedTokenInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "asset_pinned_token_info",
			Help: "Pinned version token in fixed mode (label carries identity, value is always 1)",
		}, []string{"token"}),
	}
	reg.MustRegister(
		m.inflight,
		m.reqTotal,
		m.reqDur,
		m.respBytes,
		m.httpPanicTotal,
		m.buildInfo,
		m.ratelimitDeniedTotal,
		m.ratelimitCapacityTotal,
		m.errorsTotal,
		m.profilingActive,
		m.rendersTotal,
		m.renderErrorsTotal,
		m.bundleBuildsTotal,
		m.renderDuration,
		m.frozenCacheTotal,
		m.artifactTotal,
		m.versionModeInfo,
		m.pinnedTokenInfo,
	)

	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	m.reg = reg
	return m
}

func (m *ServerMetrics) IncHttpPanic() {
	m.httpPanicTotal.Inc()
}

func (m *ServerMetrics) Handler() http.Handler {
	return m.handler
}

// set once at startup.
func (m *ServerMetrics) SetBuildInfoFromVersion(app, component string, vi *version.Info) {
	dirty := "unknown"
	if vi.VCSDirty != nil {
		dirty = strconv.FormatBool(*vi.VCSDirty)
	}
	m.buildInfo.With(prometheus.Labels{
		"app":         app,
		"component":   component,
		"version":     vi.Version,
		"commit":      vi.Commit,
		"commit_date": vi.CommitDate,
		"build_id":    vi.BuildId,
		"build_date":  vi.BuildDate,
		"go_version":  vi.GoVersion,
		"vcs_dirty":   dirty,
	}).Set(1)
}

func (m *ServerMetrics) IncRateLimitDenied() {
	m.ratelimitDeniedTotal.Inc()
}

func (m *ServerMetrics) IncRateLimitCapacity() {
	m.ratelimitCapacityTotal.Inc()
}

func (m *ServerMetrics) SetProfilingActive(active bool) {
	if active {
		m.profilingActive.Set(1)
	} else {
		m.profilingActive.Set(0)
	}
}

func (m *ServerMetrics) IncRender(category string) {
	m.rendersTotal.WithLabelValues(category).Inc()
}

func (m *ServerMetrics) IncRenderError(category string) {
	m.renderErrorsTotal.WithLabelValues(category).Inc()
}

func (m *ServerMetrics) IncBundleBuild(category string) {
	m.bundleBuildsTotal.WithLabelValues(category).Inc()
}

func (m *ServerMetrics) ObserveRenderDuration(category string, d time.Duration) {
	m.renderDuration.WithLabelValues(category).Observe(d.Seconds())
}

func (m *ServerMetrics) IncFrozenCache(hit bool) {
	if hit {
		m.frozenCacheTotal.WithLabelValues("hit").Inc()
	} else {
		m.frozenCacheTotal.WithLabelValues("miss").Inc()
	}
}

func (m *ServerMetrics) IncArtifact(result string) {
	m.artifactTotal.WithLabelValues(result).Inc()
}

func (m *ServerMetrics) SetVersionMode(mode string) {
	m.versionModeInfo.Reset() // clear previous label value
	m.versionModeInfo.WithLabelValues(mode).Set(1)
}

func (m *ServerMetrics) SetPinnedToken(token string) {
	m.pinnedTokenInfo.Reset()
	m.pinnedTokenInfo.WithLabelValues(token).Set(1)
}
