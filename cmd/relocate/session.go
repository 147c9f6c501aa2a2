package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/panbanda/relocate/internal/cache"
	"github.com/panbanda/relocate/internal/output"
	"github.com/panbanda/relocate/internal/progress"
	"github.com/panbanda/relocate/pkg/classfile"
	"github.com/panbanda/relocate/pkg/classpath"
	"github.com/panbanda/relocate/pkg/config"
	"github.com/panbanda/relocate/pkg/diagnostic"
	"github.com/panbanda/relocate/pkg/mark"
	"github.com/panbanda/relocate/pkg/reference"
)

// analysisFlags are shared by every command that runs the engine.
func analysisFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{Name: "roots", Usage: "Roots tier containers (jars or class directories)"},
		&cli.StringSliceFlag{Name: "embeds", Usage: "Embeds tier containers"},
		&cli.StringSliceFlag{Name: "refers", Usage: "Refers tier containers"},
		&cli.IntFlag{Name: "workers", Aliases: []string{"j"}, Usage: "Worker goroutines (0 = 2x CPUs)"},
		&cli.BoolFlag{Name: "fail-fast", Usage: "Stop at the first unresolvable reference"},
		&cli.BoolFlag{Name: "no-reflection", Usage: "Disable the reflection heuristic"},
		&cli.BoolFlag{Name: "no-link-overrides", Usage: "Do not keep overrides of kept parent methods"},
		&cli.BoolFlag{Name: "keep-invisible-annotations", Usage: "Treat class-retention annotations as references"},
	}
}

// loadConfig reads --config or the standard locations, then applies flag
// overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := c.String("config"); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadOrDefault()
	}
	if err != nil {
		return nil, err
	}

	if c.IsSet("roots") {
		cfg.Classpath.Roots = c.StringSlice("roots")
	}
	if c.IsSet("embeds") {
		cfg.Classpath.Embeds = c.StringSlice("embeds")
	}
	if c.IsSet("refers") {
		cfg.Classpath.Refers = c.StringSlice("refers")
	}
	if c.IsSet("workers") {
		cfg.Analysis.Workers = c.Int("workers")
	}
	if c.Bool("fail-fast") {
		cfg.Analysis.FailFast = true
	}
	if c.Bool("no-reflection") {
		cfg.Analysis.Reflection = false
	}
	if c.Bool("no-link-overrides") {
		cfg.Analysis.LinkOverrides = false
	}
	if c.Bool("keep-invisible-annotations") {
		cfg.Analysis.KeepInvisibleAnnotations = true
	}
	if c.IsSet("format") {
		cfg.Output.Format = c.String("format")
	}
	if c.Bool("no-color") {
		cfg.Output.Color = false
	}
	if c.Bool("no-cache") {
		cfg.Cache.Enabled = false
	}
	if c.Bool("verbose") {
		cfg.Output.Verbose = true
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg *config.Config) *slog.Logger {
	if !cfg.Output.Verbose {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func newFormatter(c *cli.Context, cfg *config.Config) (*output.Formatter, error) {
	return output.NewFormatter(output.ParseFormat(cfg.Output.Format), c.String("output"), cfg.Output.Color)
}

func trackerOpts(c *cli.Context) []progress.Option {
	if c.Bool("quiet") {
		return []progress.Option{progress.Silent()}
	}
	return nil
}

// session is one engine run over the configured tiers.
type session struct {
	cfg    *config.Config
	logger *slog.Logger
	tiers  []*classpath.ClassPath

	engine    *mark.Engine
	collector diagnostic.Collector
}

func (s *session) Close() error {
	var errs []error
	for _, cp := range s.tiers {
		errs = append(errs, cp.Close())
	}
	return errors.Join(errs...)
}

// open loads the three tiers. The refers tier is loaded lazily.
func open(c *cli.Context, cfg *config.Config) (*session, error) {
	if len(cfg.Classpath.Roots) == 0 {
		return nil, fmt.Errorf("no roots configured: pass --roots or set classpath.roots")
	}
	decoder, err := classfile.NewYAMLDecoder()
	if err != nil {
		return nil, err
	}

	s := &session{cfg: cfg, logger: newLogger(cfg)}
	tiers := []struct {
		kind  classpath.Kind
		paths []string
	}{
		{classpath.Roots, cfg.Classpath.Roots},
		{classpath.Embeddable, cfg.Classpath.Embeds},
		{classpath.ReferencesOnly, cfg.Classpath.Refers},
	}
	for _, t := range tiers {
		tracker := progress.NewSpinner("Loading "+t.kind.String()+"...", trackerOpts(c)...)
		cp, err := classpath.OpenPaths(t.kind, decoder, t.paths,
			classpath.WithWorkers(cfg.Analysis.Workers),
			classpath.WithLogger(s.logger),
			classpath.WithProgress(tracker.Tick),
		)
		if err == nil {
			err = cp.Init(c.Context)
		}
		if err != nil {
			tracker.FinishError(err)
			if cp != nil {
				_ = cp.Close()
			}
			_ = s.Close()
			return nil, err
		}
		if len(t.paths) == 0 {
			tracker.FinishSkipped("no containers")
		} else {
			tracker.FinishSuccess()
		}
		for _, c := range cp.Containers() {
			if jar, ok := c.(*classpath.Jar); ok && len(jar.Releases()) > 0 {
				s.logger.Debug("multi-release jar", "path", jar.Path(), "releases", jar.Releases())
			}
		}
		s.logger.Debug("tier loaded", "tier", t.kind.String(), "containers", len(t.paths), "classes", tracker.Count())
		s.tiers = append(s.tiers, cp)
	}
	return s, nil
}

// run marks everything reachable from the roots.
func (s *session) run(ctx context.Context, opts []progress.Option, trace bool) (*mark.Result, error) {
	suppressions, err := s.cfg.Suppressions()
	if err != nil {
		return nil, err
	}
	var handler diagnostic.Handler = &s.collector
	if s.cfg.Analysis.FailFast {
		handler = diagnostic.Tee(&s.collector, diagnostic.FailFast)
	}

	tracker := progress.NewSpinner("Marking...", opts...)
	s.engine = mark.New(s.tiers[0], s.tiers[1], s.tiers[2],
		mark.WithWorkers(s.cfg.Analysis.Workers),
		mark.WithLogger(s.logger),
		mark.WithHandler(handler),
		mark.WithSuppressions(suppressions),
		mark.WithEnv(s.cfg.Env()),
		mark.WithOverrideLinking(s.cfg.Analysis.LinkOverrides),
		mark.WithTrace(trace),
		mark.WithProgress(tracker.Tick),
	)
	res, err := s.engine.Run(ctx)
	if err != nil {
		tracker.FinishError(err)
		return nil, err
	}
	tracker.FinishSuccess()
	return res, nil
}

// fingerprint identifies a mark run for the result cache.
func fingerprint(cfg *config.Config) (string, error) {
	fp := cache.NewFingerprint()
	fp.Add("version", version)
	for _, tier := range []struct {
		name  string
		paths []string
	}{
		{"roots", cfg.Classpath.Roots},
		{"embeds", cfg.Classpath.Embeds},
		{"refers", cfg.Classpath.Refers},
	} {
		fp.Add("tier", tier.name, strconv.Itoa(len(tier.paths)))
		for _, p := range tier.paths {
			if err := fp.AddPath(p); err != nil {
				return "", err
			}
		}
	}
	a := cfg.Analysis
	fp.Add("analysis",
		strconv.FormatBool(a.KeepInvisibleAnnotations),
		strconv.FormatBool(a.Reflection),
		strconv.FormatBool(a.LinkOverrides),
		strconv.FormatBool(a.FailFast),
	)
	for _, r := range cfg.Suppress {
		fp.Add("suppress", append([]string{r.Location, r.ID}, r.Params...)...)
	}
	return "mark:" + fp.Sum(), nil
}

// writeDiagnostics writes one JSON object per line.
func writeDiagnostics(path string, diags []diagnostic.Diagnostic) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create diagnostics file: %w", err)
	}
	enc := json.NewEncoder(f)
	for _, d := range diags {
		if err := enc.Encode(d); err != nil {
			f.Close()
			return err
		}
	}
	return f.Close()
}

// parseSymbol reads owner.name:descriptor as a method or field (by the
// descriptor shape) and anything without a colon as a class.
func parseSymbol(s string) (reference.Reference, error) {
	head, desc, member := strings.Cut(s, ":")
	if !member {
		if s == "" {
			return nil, fmt.Errorf("empty symbol")
		}
		return reference.Class(s), nil
	}
	dot := strings.LastIndexByte(head, '.')
	if dot <= 0 || dot == len(head)-1 || desc == "" {
		return nil, fmt.Errorf("symbol %q: want owner.name:descriptor", s)
	}
	owner, name := head[:dot], head[dot+1:]
	if desc[0] == '(' {
		return reference.Method(owner, name, desc), nil
	}
	return reference.Field(owner, name, desc), nil
}
