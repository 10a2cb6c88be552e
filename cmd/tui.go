package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/councilchamber/internal/llm"
	"github.com/councilchamber/internal/tui"
)

// TUICommand returns the command that opens the interactive chamber
func TUICommand() *cli.Command {
	return &cli.Command{
		Name:  "tui",
		Usage: "Open the interactive council chamber",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "api-key",
				Usage: "OpenRouter API key for this session",
			},
			&cli.IntFlag{
				Name:    "size",
				Aliases: []string{"n"},
				Usage:   "Number of council members",
			},
		},
		Action: runTUI,
	}
}

func runTUI(c *cli.Context) error {
	// The chamber owns the terminal, so logs go to the data directory
	app, err := newApp(c, appOptions{logToFile: true, size: c.Int("size")})
	if err != nil {
		return err
	}
	defer app.Close()

	credential, err := app.Credential(c.Context, c.String("api-key"))
	if err != nil {
		return err
	}
	model, err := app.Model(c.Context, "")
	if err != nil {
		return err
	}

	return tui.Run(tui.Config{
		Starter:      app.Dispatcher,
		Settings:     app.Preferences,
		History:      app.History,
		Models:       app.Catalog,
		Personas:     app.Personas,
		Model:        model,
		Options:      llm.StaticModels(),
		Credential:   credential,
		HistoryLimit: app.Config.History.Limit,
	})
}
