// Command assetbake precomputes rendered artifacts for a deployment.
//
// It renders every asset and bundle in the configured categories, derives the
// pinned version token from the combined content, and writes everything into
// the artifact cache keyed by that token. A server running in fixed mode with
// the same artifact store (or S3 mirror) then serves entirely from cache
// without rendering anything.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cespare/xxhash/v2"

	"github.com/keithlinneman/webassets/internal/artifact"
	"github.com/keithlinneman/webassets/internal/cfg"
	"github.com/keithlinneman/webassets/internal/deploy"
	"github.com/keithlinneman/webassets/internal/log"
	"github.com/keithlinneman/webassets/internal/webassets"
)

type bundleFlags []bundleSpec

type bundleSpec struct {
	Category string
	Paths    []string
}

func (b *bundleFlags) String() string {
	parts := make([]string, len(*b))
	for i, spec := range *b {
		parts[i] = spec.Category + "=" + strings.Join(spec.Paths, ",")
	}
	return strings.Join(parts, " ")
}

func (b *bundleFlags) Set(v string) error {
	category, rest, ok := strings.Cut(v, "=")
	if !ok || category == "" || rest == "" {
		return fmt.Errorf("want category=path,path..., got %q", v)
	}
	paths := strings.Split(rest, ",")
	for _, p := range paths {
		if p == "" {
			return fmt.Errorf("empty path in bundle %q", v)
		}
	}
	*b = append(*b, bundleSpec{Category: category, Paths: paths})
	return nil
}

func main() {
	ctx := context.Background()

	var (
		categories   cfg.CategoryFlags
		bundles      bundleFlags
		artifactDir  string
		hiddenMarker string
		s3Bucket     string
		s3Prefix     string
		ssmParam     string
		publish      bool
		logJSON      bool
	)
	flag.Var(&categories, "category", "asset category as name=dir (repeatable)")
	flag.Var(&bundles, "bundle", "extra bundle to bake as category=path,path... (repeatable)")
	flag.StringVar(&artifactDir, "artifact-dir", "", "local artifact cache directory (required)")
	flag.StringVar(&hiddenMarker, "hidden-marker", "_", "prefix marking path segments as hidden")
	flag.StringVar(&s3Bucket, "mirror-s3-bucket", "", "mirror baked artifacts to this S3 bucket")
	flag.StringVar(&s3Prefix, "mirror-s3-prefix", "webassets", "s3 key prefix for the artifact mirror")
	flag.StringVar(&ssmParam, "token-ssm-param", "", "ssm parameter to publish the pinned token to")
	flag.BoolVar(&publish, "publish", false, "publish the pinned token to -token-ssm-param")
	flag.BoolVar(&logJSON, "log-json", false, "JSON logs (true) or logfmt (false)")
	flag.Parse()

	if len(categories) == 0 {
		fmt.Fprintln(os.Stderr, "at least one -category is required")
		os.Exit(2)
	}
	if artifactDir == "" {
		fmt.Fprintln(os.Stderr, "-artifact-dir is required")
		os.Exit(2)
	}
	if len(hiddenMarker) != 1 {
		fmt.Fprintln(os.Stderr, "-hidden-marker must be a single character")
		os.Exit(2)
	}
	if publish && ssmParam == "" {
		fmt.Fprintln(os.Stderr, "-publish requires -token-ssm-param")
		os.Exit(2)
	}

	lg, err := log.New(log.Options{App: "assetbake", JsonFormat: logJSON})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	defer lg.Sync()
	L := lg.With("component", "bake")
	ctx = log.WithContext(ctx, L)

	reg, err := webassets.New(webassets.Options{
		Mode:         webassets.ModeDynamic,
		HiddenMarker: hiddenMarker[0],
		Logger:       L,
	})
	if err != nil {
		L.Error(ctx, err, "failed to create asset registry")
		os.Exit(1)
	}
	for _, cat := range categories {
		if _, err := reg.AddConcatCategory(cat.Name, cat.Root, contentTypeForCategory(cat.Name), "\n"); err != nil {
			L.Error(ctx, err, "failed to add category", "category", cat.Name)
			os.Exit(1)
		}
	}

	// Render everything first: the pinned token has to cover every byte the
	// deployment will serve, so a single render failure aborts the bake.
	type baked struct {
		category    string
		path        string
		contentType string
		body        []byte
	}
	var out []baked

	names := make([]string, len(categories))
	for i, cat := range categories {
		names[i] = cat.Name
	}
	sort.Strings(names)

	digest := xxhash.New()
	for _, name := range names {
		assets, err := reg.List(name, false)
		if err != nil {
			L.Error(ctx, err, "failed to list category", "category", name)
			os.Exit(1)
		}
		paths := make([]string, len(assets))
		for i, a := range assets {
			paths[i] = a.Path
		}

		for _, p := range paths {
			body, contentType, err := reg.Content(ctx, name, p)
			if err != nil {
				L.Error(ctx, err, "render failed", "category", name, "path", p)
				os.Exit(1)
			}
			out = append(out, baked{name, p, contentType, body})
			digest.Write(body)
			digest.Write([]byte{0})
		}

		// category-wide default bundle
		if len(paths) > 1 {
			body, contentType, err := reg.Content(ctx, name, paths...)
			if err != nil {
				L.Error(ctx, err, "bundle render failed", "category", name)
				os.Exit(1)
			}
			out = append(out, baked{name, webassets.BundleSegment(paths), contentType, body})
		}
	}

	for _, spec := range bundles {
		body, contentType, err := reg.Content(ctx, spec.Category, spec.Paths...)
		if err != nil {
			L.Error(ctx, err, "bundle render failed", "category", spec.Category, "paths", spec.Paths)
			os.Exit(1)
		}
		out = append(out, baked{spec.Category, webassets.BundleSegment(spec.Paths), contentType, body})
	}

	pinned := fmt.Sprintf("%016x", digest.Sum64())

	// set up the destination store
	local, err := artifact.Open(artifactDir)
	if err != nil {
		L.Error(ctx, err, "failed to open artifact cache", "dir", artifactDir)
		os.Exit(1)
	}
	var cache artifact.Cache = local
	if s3Bucket != "" {
		awsCfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			L.Error(ctx, err, "failed to load AWS config")
			os.Exit(1)
		}
		mirror, err := artifact.NewMirror(local, s3.NewFromConfig(awsCfg), s3Bucket, s3Prefix, L)
		if err != nil {
			L.Error(ctx, err, "failed to create artifact mirror")
			os.Exit(1)
		}
		cache = mirror
	}

	for _, b := range out {
		if err := cache.Put(ctx, b.category, b.path, pinned, b.contentType, b.body); err != nil {
			L.Error(ctx, err, "artifact store failed", "category", b.category, "path", b.path)
			os.Exit(1)
		}
	}
	L.Info(ctx, "bake complete",
		"artifacts", len(out),
		"pinned_token", pinned,
	)

	if publish {
		src, err := deploy.NewTokenSource(ctx, deploy.TokenSourceOptions{
			Logger:   L,
			SSMParam: ssmParam,
		})
		if err != nil {
			L.Error(ctx, err, "failed to create token source")
			os.Exit(1)
		}
		if err := src.PublishPinnedToken(ctx, pinned); err != nil {
			L.Error(ctx, err, "failed to publish pinned token")
			os.Exit(1)
		}
	}

	fmt.Println(pinned)
}

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
