package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/keithlinneman/webassets/internal/artifact"
	"github.com/keithlinneman/webassets/internal/assethttp"
	"github.com/keithlinneman/webassets/internal/cfg"
	"github.com/keithlinneman/webassets/internal/deploy"
	"github.com/keithlinneman/webassets/internal/health"
	"github.com/keithlinneman/webassets/internal/httpserver"
	"github.com/keithlinneman/webassets/internal/log"
	"github.com/keithlinneman/webassets/internal/metrics"
	"github.com/keithlinneman/webassets/internal/opshttp"
	"github.com/keithlinneman/webassets/internal/otelx"
	"github.com/keithlinneman/webassets/internal/prof"
	"github.com/keithlinneman/webassets/internal/ratelimit"
	v "github.com/keithlinneman/webassets/internal/version"
	"github.com/keithlinneman/webassets/internal/webassets"
)

const appName = "webassets"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Get build/version info
	vi := v.Get()

	var conf cfg.App
	var showVersion bool

	// Parse config from flags and env
	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf(
			"%s %s (commit=%s, commit_date=%s, build_id=%s, build_date=%s, go=%s, dirty=%v)\n",
			appName, vi.Version, vi.Commit, vi.CommitDate, vi.BuildId, vi.BuildDate, vi.GoVersion,
			vi.VCSDirty != nil && *vi.VCSDirty,
		)
		os.Exit(0)
	}

	// Fill in config from environment variables with prefix WEBASSETS_ and validate
	cfg.FillFromEnv(flag.CommandLine, "WEBASSETS_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	// validate config
	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	// Setup logging
	lvl, err := log.ParseLevel(conf.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %s: %v\n", conf.LogLevel, err)
		os.Exit(1)
	}
	stackLvl, err := log.ParseLevel(conf.StacktraceLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid stacktrace level %s: %v\n", conf.StacktraceLevel, err)
		os.Exit(1)
	}
	lg, err := log.New(log.Options{
		App:             appName,
		Level:           lvl,
		StacktraceLevel: stackLvl,
		JsonFormat:      conf.LogJSON,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	// no-op for slog/stderr, but here if we swap backends in the future to ensure any buffered logs are flushed on shutdown
	defer lg.Sync()
	L := lg.With("component", "server")
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"commit_date", vi.CommitDate,
		"build_id", vi.BuildId,
		"build_date", vi.BuildDate,
		"go_version", vi.GoVersion,
		"vcs_dirty", vi.VCSDirty,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"otlp_endpoint", conf.OTLPEndpoint,
		"pyro_server", conf.PyroServer,
		"pyro_tenant", conf.PyroTenantID,
		"trace_sample", conf.TraceSample,
		"version_mode", conf.VersionMode,
		"hidden_marker", conf.HiddenMarker,
		"categories", conf.Categories.String(),
		"artifact_dir", conf.ArtifactDir,
		"enable_s3_mirror", conf.EnableS3Mirror,
		"mirror_s3_bucket", conf.MirrorS3Bucket,
		"mirror_s3_prefix", conf.MirrorS3Prefix,
		"token_ssm_param", conf.TokenSSMParam,
	)

	// Setup pyroscope profiling
	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       appName,
		AuthToken:     "",
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"app":       appName,
			"component": "server",
			"version":   vi.Version,
			"commit":    vi.Commit,
			"build_id":  vi.BuildId,
			"source":    "go-agent",
		},
	})
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	defer func() { stopProf() }()

	// Setup otel for tracing
	// Insecure is true because we are only writing to a collector on localhost
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  true,
		Sample:    conf.TraceSample,
		Service:   appName,
		Component: "server",
		Version:   vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	// Setup metrics / admin listener
	m := metrics.New()
	m.SetBuildInfoFromVersion(appName, "server", &vi)
	m.SetProfilingActive(conf.EnablePyroscope)
	m.SetVersionMode(conf.VersionMode)

	// AWS is only touched when the mirror or the SSM token source is on
	var awsCfg aws.Config
	needAWS := conf.EnableS3Mirror || conf.TokenSSMParam != ""
	if needAWS {
		awsCfg, err = config.LoadDefaultConfig(ctx)
		if err != nil {
			L.Error(ctx, err, "failed to load AWS config")
			os.Exit(1)
		}
	}

	// Resolve the pinned token for fixed mode, preferring the explicit flag
	mode, err := webassets.ParseMode(conf.VersionMode)
	if err != nil {
		L.Error(ctx, err, "invalid version mode")
		os.Exit(1)
	}
	fixedToken := conf.FixedToken
	if mode == webassets.ModeFixed && fixedToken == "" {
		src, err := deploy.NewTokenSource(ctx, deploy.TokenSourceOptions{
			Logger:    L,
			SSMParam:  conf.TokenSSMParam,
			AWSConfig: &awsCfg,
		})
		if err != nil {
			L.Error(ctx, err, "failed to create token source")
			os.Exit(1)
		}
		fixedToken, err = src.FetchPinnedToken(ctx)
		if err != nil {
			// fixed mode cannot serve without a token, fail early so the
			// supervisor restarts us
			L.Error(ctx, err, "failed to fetch pinned token")
			os.Exit(1)
		}
	}
	if fixedToken != "" {
		m.SetPinnedToken(fixedToken)
	}

	// setup the asset registry and its categories
	reg, err := webassets.New(webassets.Options{
		Mode:         mode,
		FixedToken:   fixedToken,
		HiddenMarker: conf.HiddenMarker[0],
		Logger:       L,
	})
	if err != nil {
		L.Error(ctx, err, "failed to create asset registry")
		os.Exit(1)
	}
	reg.Versioner().OnFrozenLookup = m.IncFrozenCache

	for _, cat := range conf.Categories {
		contentType := contentTypeForCategory(cat.Name)
		if _, err := reg.AddConcatCategory(cat.Name, cat.Root, contentType, "\n"); err != nil {
			L.Error(ctx, err, "failed to add category", "category", cat.Name, "root", cat.Root)
			os.Exit(1)
		}
		L.Info(ctx, "registered asset category",
			"category", cat.Name,
			"root", cat.Root,
			"content_type", contentType,
		)
	}

	// setup the artifact cache, optionally mirrored to S3
	var cache artifact.Cache
	if conf.ArtifactDir != "" {
		local, err := artifact.Open(conf.ArtifactDir)
		if err != nil {
			L.Error(ctx, err, "failed to open artifact cache", "dir", conf.ArtifactDir)
			os.Exit(1)
		}
		cache = local
		if conf.EnableS3Mirror {
			mirror, err := artifact.NewMirror(local, s3.NewFromConfig(awsCfg), conf.MirrorS3Bucket, conf.MirrorS3Prefix, L)
			if err != nil {
				L.Error(ctx, err, "failed to create artifact mirror")
				os.Exit(1)
			}
			cache = mirror
		}
	}

	// setup the asset handler
	assets, err := assethttp.New(assethttp.Options{
		Registry: reg,
		Cache:    cache,
		Metrics:  m,
		Logger:   L,
	})
	if err != nil {
		L.Error(ctx, err, "failed to create asset handler")
		os.Exit(1)
	}

	// setup toggle for server shutdown
	var gate health.ShutdownGate

	// readiness is just the shutdown gate: categories are validated at
	// startup and there is no content to wait for
	readiness := health.All(gate.Probe())

	// Setup rate limiter middleware
	limiter := ratelimit.New(ctx,
		ratelimit.WithRate(conf.RatePerSecond, conf.RateBurst),
		ratelimit.WithMaxVisitors(100_000),
		// increment prometheus counter on each denied request
		ratelimit.WithOnDenied(func(ip string) {
			m.IncRateLimitDenied()
		}),
		// only log the first time an ip is denied each time it is cleaned from the bucket
		ratelimit.WithOnFirstDenied(func(ip string) {
			L.Warn(ctx, "rate limit triggered", "ip", ip)
		}),
		ratelimit.WithOnCapacity(func() {
			m.IncRateLimitCapacity()
		}),
	)

	// start asset http server
	assetHTTPStop, err := httpserver.Start(
		ctx,
		&httpserver.Options{
			Port:         conf.HTTPPort,
			Health:       health.Fixed(true, ""),
			Readiness:    readiness,
			AssetRoutes:  assets.Routes,
			UseRecoverMW: true,
			OnPanic:      m.IncHttpPanic,
			MetricsMW:    m.Middleware,
			RateLimitMW:  limiter.Middleware,
			Logger:       L,
			VersionInfo:  reg.Versioner(),
		},
	)

	if err != nil {
		L.Error(ctx, err, "failed to start asset http listener")
		os.Exit(1)
	}
	defer func() { _ = assetHTTPStop(context.Background()) }()

	// start admin/ops listener to serve metrics, health checks, pprof and any future admin APIs
	// sg restricts inbound to internal monitoring infrastructure
	opsHTTPStop, err := opshttp.Start(ctx, L, opshttp.Options{
		Port:        conf.AdminPort,
		Metrics:     m.Handler(),
		EnablePprof: conf.EnablePprof,
		Health:      health.Fixed(true, ""),
		Readiness:   readiness,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		os.Exit(1)
	}
	defer func() { _ = opsHTTPStop(context.Background()) }()

	// notify systemd that we started successfully if started under systemd
	if err := notifySystemd(); err != nil {
		// log and dont exit, worst case systemd will kill the process after timeout
		L.Warn(ctx, "failed to notify systemd of readiness", "error", err)
	}

	// block until signal so we dont exit
	sigCtx, stopSig := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSig()
	// wait for ctrl+c / sigterm
	<-sigCtx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	L.Info(context.Background(), "shutdown signal received")

	// fail health checks to drain connections
	gate.Set("draining")
	L.Info(context.Background(), "shutdown gate closed")

	L.Info(context.Background(), "sleeping 30s for in-flight and load balancer health checks to drain")
	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(30 * time.Second):
		L.Info(context.Background(), "drain period complete")
	case <-forceCh:
		L.Warn(context.Background(), "second signal received, skipping drain")
	}
	signal.Stop(forceCh)

	if err := assetHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "asset http server shutdown")
	}

	if err := opsHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "ops http server shutdown")
	}

	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "otel shutdown")
	}

	stopProf()

	L.Info(context.Background(), "shutdown complete")
	os.Exit(0)
}

// contentTypeForCategory picks the served Content-Type by convention.
// Categories with other types can choose any name here and get
// octet-stream, browsers only care for css and js.
func contentTypeForCategory(name string) string {
	switch name {
	case "css":
		return "text/css"
	case "js", "javascript":
		return "text/javascript"
	case "svg":
		return "image/svg+xml"
	default:
		return "application/octet-stream"
	}
}

func notifySystemd() error {
	// systemd will set NOTIFY_SOCKET to a unix socket path if we were started under systemd with type=notify
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set, skipping systemd notify")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify failed: dial failed: %w", err)
	}
	conn.Write([]byte("READY=1"))
	if err := conn.Close(); err != nil {
		return fmt.Errorf("systemd notify failed: close failed: %w", err)
	}
	return nil
}
