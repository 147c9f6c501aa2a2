package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/pelletier/go-toml"
	"github.com/urfave/cli/v2"

	"github.com/panbanda/relocate/pkg/config"
)

func initCmd() *cli.Command {
	return &cli.Command{
		Name:      "init",
		Usage:     "Write a relocate.toml with the default settings",
		ArgsUsage: "[path]",
		Description: `Examples:
  relocate init                          # Creates relocate.toml
  relocate init .relocate/relocate.toml  # Creates config in .relocate
  relocate init --force                  # Overwrite existing config file`,
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "force", Usage: "Overwrite existing config file"},
		},
		Action: runInitCmd,
	}
}

func runInitCmd(c *cli.Context) error {
	path := "relocate.toml"
	if c.Args().Present() {
		path = c.Args().First()
	}

	if _, err := os.Stat(path); err == nil && !c.Bool("force") {
		return fmt.Errorf("config file %q already exists (use --force to overwrite)", path)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %q: %w", dir, err)
		}
	}

	content, err := defaultConfigTOML()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	color.Green("Created %s", path)
	fmt.Fprintln(c.App.Writer, "List the containers of each tier under [classpath].")
	return nil
}

func defaultConfigTOML() (string, error) {
	content, err := toml.Marshal(config.DefaultConfig())
	if err != nil {
		return "", fmt.Errorf("failed to marshal config to TOML: %w", err)
	}

	var b strings.Builder
	b.WriteString("# relocate configuration\n")
	b.WriteString("#\n")
	b.WriteString("# Suppress rules look like:\n")
	b.WriteString("#   [[suppress]]\n")
	b.WriteString("#   location = \"package:com/example/generated\"\n")
	b.WriteString("#   id = \"UNRESOLVABLE_CLASS\"\n")
	b.WriteString("#   params = [\"re:.*Dto\"]\n\n")
	b.Write(content)
	return b.String(), nil
}

func configCmd() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Configuration management commands",
		Subcommands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Show the effective configuration",
				Action: runConfigShow,
			},
			{
				Name:   "validate",
				Usage:  "Validate a configuration file",
				Action: runConfigValidate,
			},
		},
	}
}

// configSource returns the file a command would load, or "" for defaults.
func configSource(c *cli.Context) string {
	if path := c.String("config"); path != "" {
		return path
	}
	path, _ := config.Find(".")
	return path
}

func runConfigShow(c *cli.Context) error {
	source := configSource(c)
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	if source != "" {
		fmt.Fprintf(c.App.Writer, "# Configuration from: %s\n\n", source)
	} else {
		fmt.Fprintln(c.App.Writer, "# Default configuration (no config file found)")
	}
	content, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	fmt.Fprint(c.App.Writer, string(content))
	return nil
}

func runConfigValidate(c *cli.Context) error {
	source := configSource(c)
	if _, err := loadConfig(c); err != nil {
		color.Red("Configuration validation failed:")
		fmt.Fprintf(c.App.Writer, "  - %s\n", err)
		return err
	}
	if source != "" {
		color.Green("Configuration valid: %s", source)
	} else {
		color.Yellow("No config file found. Default configuration is valid.")
	}
	return nil
}
