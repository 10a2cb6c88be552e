package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/councilchamber/internal/api"
)

// ServeCommand returns the CLI command for starting the API server
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the Council Chamber API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port for the API server (defaults to server.port)",
			},
			&cli.StringFlag{
				Name:  "api-key",
				Usage: "OpenRouter API key used instead of the saved one",
			},
		},
		Action: func(c *cli.Context) error {
			app, err := newApp(c, appOptions{})
			if err != nil {
				return err
			}
			defer app.Close()

			port := app.Config.Server.Port
			if c.IsSet("port") {
				port = c.Int("port")
			}
			fmt.Fprintf(c.App.Writer, "Starting Council Chamber API server on port %d...\n", port)

			server := api.NewServer(port, api.Dependencies{
				Dispatcher:   app.Dispatcher,
				Personas:     app.Personas,
				History:      app.History,
				Preferences:  app.Preferences,
				Models:       app.Catalog,
				DefaultModel: app.Config.Upstream.Model,
				Credential:   envCredential(c.String("api-key")),
			})
			return server.Start()
		},
	}
}
