package cfg

import (
	"flag"
	"strings"
	"testing"
)

func baseApp() App {
	return App{
		LogLevel:        "info",
		StacktraceLevel: "error",
		HTTPPort:        8080,
		AdminPort:       9000,
		Categories:      CategoryFlags{{Name: "css", Root: "/srv/assets/css"}},
		VersionMode:     "dynamic",
		HiddenMarker:    "_",
		RatePerSecond:   50,
		RateBurst:       200,
	}
}

func TestValidateDefaults(t *testing.T) {
	if err := Validate(baseApp()); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*App)
		want   string
	}{
		{"bad port", func(c *App) { c.HTTPPort = 0 }, "HTTP_PORT"},
		{"same ports", func(c *App) { c.AdminPort = c.HTTPPort }, "must differ"},
		{"bad log level", func(c *App) { c.LogLevel = "verbose" }, "LOG_LEVEL"},
		{"bad sample", func(c *App) { c.TraceSample = 2 }, "TRACE_SAMPLE"},
		{"no categories", func(c *App) { c.Categories = nil }, "CATEGORY"},
		{"dup categories", func(c *App) {
			c.Categories = append(c.Categories, Category{Name: "css", Root: "/other"})
		}, "duplicate"},
		{"bad mode", func(c *App) { c.VersionMode = "static" }, "VERSION_MODE"},
		{"fixed without token", func(c *App) { c.VersionMode = "fixed" }, "FIXED_TOKEN"},
		{"token outside fixed", func(c *App) { c.FixedToken = "aaaaaaaaaaaaaaaa" }, "FIXED_TOKEN"},
		{"long marker", func(c *App) { c.HiddenMarker = "__" }, "HIDDEN_MARKER"},
		{"mirror without bucket", func(c *App) { c.EnableS3Mirror = true; c.ArtifactDir = "/tmp/a" }, "MIRROR_S3_BUCKET"},
		{"tracing without endpoint", func(c *App) { c.EnableTracing = true }, "OTLP_ENDPOINT"},
		{"zero rate", func(c *App) { c.RatePerSecond = 0 }, "RATE_PER_SECOND"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := baseApp()
			tc.mutate(&c)
			err := Validate(c)
			if err == nil {
				t.Fatal("Validate passed, want error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestFixedModeWithSSMParam(t *testing.T) {
	c := baseApp()
	c.VersionMode = "fixed"
	c.TokenSSMParam = "/app/webassets/pinned-token"
	if err := Validate(c); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestCategoryFlagParsing(t *testing.T) {
	var c App
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	Register(fs, &c)

	err := fs.Parse([]string{
		"-category", "css=/srv/assets/css",
		"-category", "js=/srv/assets/js",
	})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(c.Categories) != 2 {
		t.Fatalf("categories = %v", c.Categories)
	}
	if c.Categories[0].Name != "css" || c.Categories[0].Root != "/srv/assets/css" {
		t.Errorf("first category = %+v", c.Categories[0])
	}
	if c.Categories[1].Name != "js" {
		t.Errorf("second category = %+v", c.Categories[1])
	}
}

func TestCategoryFlagRejectsMalformed(t *testing.T) {
	var flags CategoryFlags
	for _, v := range []string{"css", "=dir", "css=", ""} {
		if err := flags.Set(v); err == nil {
			t.Errorf("Set(%q) succeeded, want error", v)
		}
	}
}

func TestFillFromEnv(t *testing.T) {
	var c App
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	Register(fs, &c)
	if err := fs.Parse([]string{"-log-level", "debug"}); err != nil {
		t.Fatal(err)
	}

	t.Setenv("WA_LOG_LEVEL", "warn")
	t.Setenv("WA_HTTP_PORT", "9999")
	FillFromEnv(fs, "WA_", nil)

	// cli beats env
	if c.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want cli value", c.LogLevel)
	}
	// env beats default
	if c.HTTPPort != 9999 {
		t.Errorf("HTTPPort = %d, want env value", c.HTTPPort)
	}
}
