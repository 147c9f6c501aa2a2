package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/panbanda/relocate/internal/cache"
	"github.com/panbanda/relocate/internal/output"
	"github.com/panbanda/relocate/pkg/config"
)

func cacheCmd() *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Result cache management commands",
		Subcommands: []*cli.Command{
			{
				Name:   "stats",
				Usage:  "Show the number, size and age of cached reports",
				Action: runCacheStats,
			},
			{
				Name:   "clear",
				Usage:  "Remove every cached report",
				Action: runCacheClear,
			},
		},
	}
}

func openCache(c *cli.Context) (*config.Config, *cache.Cache, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, err
	}
	rc, err := cache.New(cfg.Cache.Dir, cfg.CacheTTL(), cfg.Cache.Enabled)
	if err != nil {
		return nil, nil, err
	}
	return cfg, rc, nil
}

func runCacheStats(c *cli.Context) error {
	cfg, rc, err := openCache(c)
	if err != nil {
		return err
	}
	if !rc.Enabled() {
		color.Yellow("Cache is disabled.")
		return nil
	}

	stats, err := rc.GetStats()
	if err != nil {
		return fmt.Errorf("read cache stats: %w", err)
	}

	formatter, err := newFormatter(c, cfg)
	if err != nil {
		return err
	}
	defer formatter.Close()
	return formatter.Output(output.NewTable(
		"Cache "+cfg.Cache.Dir,
		[]string{"Entries", "Size", "Oldest", "Newest"},
		[][]string{{
			strconv.Itoa(stats.Entries),
			formatSize(stats.TotalSize),
			stats.OldestAge.Round(time.Second).String(),
			stats.NewestAge.Round(time.Second).String(),
		}},
		nil,
		stats,
	))
}

func runCacheClear(c *cli.Context) error {
	cfg, rc, err := openCache(c)
	if err != nil {
		return err
	}
	if !rc.Enabled() {
		color.Yellow("Cache is disabled.")
		return nil
	}
	if err := rc.Clear(); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	color.Green("Cleared %s", cfg.Cache.Dir)
	return nil
}

func formatSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
