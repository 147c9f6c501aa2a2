package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/panbanda/relocate/internal/cache"
	"github.com/panbanda/relocate/internal/output"
	"github.com/panbanda/relocate/pkg/config"
	"github.com/panbanda/relocate/pkg/mark"
	"github.com/panbanda/relocate/pkg/report"
)

func markCmd() *cli.Command {
	return &cli.Command{
		Name:  "mark",
		Usage: "Mark everything reachable from the roots and report unresolvable references",
		Flags: append(analysisFlags(),
			&cli.StringFlag{
				Name:  "diagnostics",
				Usage: "Also write diagnostics as JSON lines to this file",
			},
			&cli.BoolFlag{
				Name:  "refresh",
				Usage: "Drop the cached report for these inputs and mark again",
			},
		),
		Action: runMarkCmd,
	}
}

func runMarkCmd(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	// Cached reports skip loading entirely. A run that also writes the
	// diagnostics stream needs the live diagnostics.
	rc, err := cache.New(cfg.Cache.Dir, cfg.CacheTTL(), cfg.Cache.Enabled && c.String("diagnostics") == "")
	if err != nil {
		return err
	}
	var key string
	if rc.Enabled() {
		if key, err = fingerprint(cfg); err != nil {
			return err
		}
		if c.Bool("refresh") {
			if err := rc.Invalidate(key); err != nil {
				return err
			}
		} else if data, ok := rc.Get(key); ok {
			var cached report.Mark
			if err := json.Unmarshal(data, &cached); err == nil {
				return emitMark(c, cfg, &cached)
			}
		}
	}

	s, err := open(c, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	res, err := s.run(c.Context, trackerOpts(c), false)
	if err != nil {
		return err
	}
	diags := s.collector.Diagnostics()

	if path := c.String("diagnostics"); path != "" {
		if err := writeDiagnostics(path, diags); err != nil {
			return err
		}
	}

	rep := report.NewMark(res, diags)
	if rc.Enabled() {
		data, err := json.Marshal(rep)
		if err == nil {
			err = rc.Set(key, data)
		}
		if err != nil {
			s.logger.Warn("cache write failed", "err", err)
		}
	}
	return emitMark(c, cfg, rep)
}

func emitMark(c *cli.Context, cfg *config.Config, rep *report.Mark) error {
	formatter, err := newFormatter(c, cfg)
	if err != nil {
		return err
	}
	defer formatter.Close()

	if err := formatter.Output(rep); err != nil {
		return err
	}
	if !rep.Result.OK() {
		return fmt.Errorf("%d unresolvable references: %w", rep.Result.Errors, mark.ErrErrorsFound)
	}
	return nil
}

func whyCmd() *cli.Command {
	return &cli.Command{
		Name:      "why",
		Usage:     "Explain why a class, method or field is kept",
		ArgsUsage: "<class | owner.name:descriptor>",
		Description: `Prints a shortest chain of references from a root to the symbol.

Examples:
  relocate why com/google/common/base/Preconditions
  relocate why 'com/google/common/base/Strings.isNullOrEmpty:(Ljava/lang/String;)Z'
  relocate why 'com/google/gson/Gson.DEFAULT_ESCAPE_HTML:Z'`,
		Flags:  analysisFlags(),
		Action: runWhyCmd,
	}
}

func runWhyCmd(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return fmt.Errorf("expected exactly one symbol")
	}
	target, err := parseSymbol(c.Args().First())
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	s, err := open(c, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	if _, err := s.run(c.Context, trackerOpts(c), true); err != nil {
		return err
	}

	chain, err := report.Build(s.engine.Trace()).WhyKept(target)
	if errors.Is(err, report.ErrNotReached) {
		color.Yellow("%s is not kept", target)
		return nil
	}
	if err != nil {
		return err
	}

	formatter, err := newFormatter(c, cfg)
	if err != nil {
		return err
	}
	defer formatter.Close()
	return formatter.Output(report.NewWhy(target, chain))
}

func cyclesCmd() *cli.Command {
	return &cli.Command{
		Name:  "cycles",
		Usage: "List kept classes that reference each other, and the most central ones",
		Flags: append(analysisFlags(),
			&cli.IntFlag{
				Name:  "top",
				Value: 10,
				Usage: "Number of hub classes to list (0 = all)",
			},
		),
		Action: runCyclesCmd,
	}
}

func runCyclesCmd(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	s, err := open(c, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	if _, err := s.run(c.Context, trackerOpts(c), true); err != nil {
		return err
	}

	g := report.Build(s.engine.Trace())
	s.logger.Debug("reference graph", "nodes", g.Nodes(), "edges", g.Edges())
	cycles := &report.Cycles{Cycles: g.ClassCycles()}
	hubs := &report.Hubs{Hubs: g.Hubs(c.Int("top"))}

	formatter, err := newFormatter(c, cfg)
	if err != nil {
		return err
	}
	defer formatter.Close()
	return formatter.Output(&output.Report{
		Title:    "Class graph",
		Sections: []output.Renderable{cycles, hubs},
		Data: map[string]any{
			"cycles": cycles.Cycles,
			"hubs":   hubs.Hubs,
		},
	})
}
