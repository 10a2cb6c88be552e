package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

// NewApp builds the council command line
func NewApp(version string) *cli.App {
	return &cli.App{
		Name:    "council",
		Usage:   "Put one question to a council of AI personas at once",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE` (default ./council.toml, then ~/.councilchamber/council.toml)",
				EnvVars: []string{"COUNCIL_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Override logging.level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Load environment variables from `FILE` before anything else",
			},
		},
		Before: func(c *cli.Context) error {
			if path := c.String("env-file"); path != "" {
				if err := LoadEnvFile(path); err != nil {
					return fmt.Errorf("failed to load env file: %w", err)
				}
			}
			return nil
		},
		Commands: []*cli.Command{
			AskCommand(),
			TUICommand(),
			ServeCommand(),
			HistoryCommand(),
			ModelsCommand(),
			KeyCommand(),
			ModelCommand(),
			PersonasCommand(),
			ConfigCommand(),
		},
	}
}
