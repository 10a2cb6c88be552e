package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/councilchamber/internal/config"
)

// ConfigCommand returns the config command
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Manage configuration",
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Write a starter council.toml and print the next setup steps",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path",
						Value:   "council.toml",
					},
				},
				Action: runConfigInit,
			},
			{
				Name:   "validate",
				Usage:  "Validate council.toml, the store settings and the API key",
				Action: runConfigValidate,
			},
		},
	}
}

func runConfigInit(c *cli.Context) error {
	outputPath := c.String("output")

	if err := config.InitConfig(outputPath); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	w := c.App.Writer
	fmt.Fprintf(w, "Created configuration file at %s\n", outputPath)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Next steps:")
	fmt.Fprintf(w, "  1. Save an OpenRouter key:   council key set sk-or-...  (or export %s)\n", CredentialEnvVars[0])
	fmt.Fprintf(w, "  2. Check the setup:          council --config %s config validate\n", outputPath)
	fmt.Fprintf(w, "  3. Put a question to them:   council --config %s ask \"Should I take the job?\"\n", outputPath)
	fmt.Fprintln(w, "  Pick another free model with council models, or start the chamber with council tui.")
	return nil
}

func runConfigValidate(c *cli.Context) error {
	configPath := c.String("config")

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	PrintEnvironmentCheck(c.App.Writer, CheckEnvironment(cfg))
	fmt.Fprintln(c.App.Writer, "Configuration is valid")
	return nil
}
