package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"

	"github.com/keithlinneman/webassets/internal/log"
	"github.com/keithlinneman/webassets/internal/webassets"
)

// Category is one name=root mapping from the repeatable -category flag.
type Category struct {
	Name string
	Root string
}

// CategoryFlags collects repeated -category flags.
type CategoryFlags []Category

func (c *CategoryFlags) String() string {
	parts := make([]string, len(*c))
	for i, cat := range *c {
		parts[i] = cat.Name + "=" + cat.Root
	}
	return strings.Join(parts, ",")
}

func (c *CategoryFlags) Set(v string) error {
	name, root, ok := strings.Cut(v, "=")
	if !ok || name == "" || root == "" {
		return fmt.Errorf("want name=dir, got %q", v)
	}
	*c = append(*c, Category{Name: name, Root: root})
	return nil
}

type App struct {
	LogJSON         bool
	LogLevel        string
	StacktraceLevel string
	HTTPPort        int
	AdminPort       int
	EnablePprof     bool
	EnablePyroscope bool
	EnableTracing   bool
	PyroServer      string
	PyroTenantID    string
	OTLPEndpoint    string
	TraceSample     float64

	Categories   CategoryFlags
	VersionMode  string
	FixedToken   string
	HiddenMarker string

	ArtifactDir    string
	EnableS3Mirror bool
	MirrorS3Bucket string
	MirrorS3Prefix string
	TokenSSMParam  string

	RatePerSecond float64
	RateBurst     int
}

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *flag.FlagSet, c *App) {
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")
	fs.IntVar(&c.HTTPPort, "http-port", 8080, "listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "admin listen TCP port (1..65535)")
	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on admin port only)")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")

	fs.Var(&c.Categories, "category", "asset category as name=dir (repeatable)")
	fs.StringVar(&c.VersionMode, "version-mode", "dynamic", "dynamic|frozen|fixed")
	fs.StringVar(&c.FixedToken, "fixed-token", "", "version token to serve in fixed mode (hex)")
	fs.StringVar(&c.HiddenMarker, "hidden-marker", "_", "prefix marking path segments as hidden")

	fs.StringVar(&c.ArtifactDir, "artifact-dir", "", "local artifact cache directory (empty disables caching)")
	fs.BoolVar(&c.EnableS3Mirror, "enable-s3-mirror", false, "mirror artifacts to/from S3")
	fs.StringVar(&c.MirrorS3Bucket, "mirror-s3-bucket", "", "s3 bucket name for the artifact mirror")
	fs.StringVar(&c.MirrorS3Prefix, "mirror-s3-prefix", "webassets", "s3 key prefix for the artifact mirror")
	fs.StringVar(&c.TokenSSMParam, "token-ssm-param", "", "ssm parameter holding the pinned token for fixed mode")

	fs.Float64Var(&c.RatePerSecond, "rate-per-second", 50, "per-ip request refill rate")
	fs.IntVar(&c.RateBurst, "rate-burst", 200, "per-ip request burst ceiling")
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := prefix + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag -%s: cli value %q overrides env %s=%q", f.Name, f.Value.String(), key, envVal)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s=%q: %v", f.Name, key, envVal, err)
			}
		}
	})
}

// Validate checks that config values are within expected ranges and formats.
// Returns an error describing all invalid fields, or nil if all valid.
func Validate(c App) error {
	var errs []error

	// Ports
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}
	if c.AdminPort < 1 || c.AdminPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort))
	}
	if c.AdminPort == c.HTTPPort {
		errs = append(errs, fmt.Errorf("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort))
	}

	// Log levels
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			errs = append(errs, fmt.Errorf("invalid STACKTRACE_LEVEL %q: %w", c.StacktraceLevel, err))
		}
	}

	// Tracing sample
	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}

	// Pyroscope (URL and scheme)
	if c.EnablePyroscope {
		if c.PyroServer == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER required when ENABLE_PYROSCOPE=true"))
		} else if u, err := url.Parse(c.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL (got %q)", c.PyroServer))
		}
		if c.PyroTenantID == "" {
			errs = append(errs, fmt.Errorf("PYRO_TENANT required when ENABLE_PYROSCOPE=true"))
		}
	}

	// OTLP tracing (grpc exporter wants host:port, no scheme)
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
	}

	// Categories
	if len(c.Categories) == 0 {
		errs = append(errs, fmt.Errorf("at least one CATEGORY is required"))
	}
	seen := make(map[string]bool)
	for _, cat := range c.Categories {
		if seen[cat.Name] {
			errs = append(errs, fmt.Errorf("duplicate CATEGORY %q", cat.Name))
		}
		seen[cat.Name] = true
	}

	// Versioning
	mode, err := webassets.ParseMode(c.VersionMode)
	if err != nil {
		errs = append(errs, fmt.Errorf("invalid VERSION_MODE %q: %w", c.VersionMode, err))
	} else if mode == webassets.ModeFixed {
		if c.FixedToken == "" && c.TokenSSMParam == "" {
			errs = append(errs, fmt.Errorf("fixed mode needs FIXED_TOKEN or TOKEN_SSM_PARAM"))
		}
	} else if c.FixedToken != "" {
		errs = append(errs, fmt.Errorf("FIXED_TOKEN only applies to fixed mode (mode is %q)", c.VersionMode))
	}

	if len(c.HiddenMarker) != 1 {
		errs = append(errs, fmt.Errorf("HIDDEN_MARKER must be a single character (got %q)", c.HiddenMarker))
	}

	// Mirror
	if c.EnableS3Mirror {
		if c.ArtifactDir == "" {
			errs = append(errs, fmt.Errorf("ARTIFACT_DIR required when ENABLE_S3_MIRROR=true"))
		}
		if c.MirrorS3Bucket == "" {
			errs = append(errs, fmt.Errorf("MIRROR_S3_BUCKET required when ENABLE_S3_MIRROR=true"))
		}
	}

	// Rate limiting
	if c.RatePerSecond <= 0 {
		errs = append(errs, fmt.Errorf("RATE_PER_SECOND must be > 0 (got %v)", c.RatePerSecond))
	}
	if c.RateBurst < 1 {
		errs = append(errs, fmt.Errorf("RATE_BURST must be >= 1 (got %d)", c.RateBurst))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
