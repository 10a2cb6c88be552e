package cmd

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"
)

// KeyCommand returns the command that manages the saved API key
func KeyCommand() *cli.Command {
	return &cli.Command{
		Name:  "key",
		Usage: "Manage the saved OpenRouter API key",
		Subcommands: []*cli.Command{
			{
				Name:      "set",
				Usage:     "Save an API key",
				ArgsUsage: "KEY",
				Action:    runKeySet,
			},
			{
				Name:   "show",
				Usage:  "Show the API key in use (masked) and where it comes from",
				Action: runKeyShow,
			},
		},
	}
}

func runKeySet(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("missing required argument: KEY")
	}

	app, err := newApp(c, appOptions{})
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.Preferences.SetCredential(c.Context, c.Args().First()); err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, "API key saved")
	return nil
}

func runKeyShow(c *cli.Context) error {
	app, err := newApp(c, appOptions{})
	if err != nil {
		return err
	}
	defer app.Close()

	if credential := envCredential(""); credential != "" {
		fmt.Fprintf(c.App.Writer, "%s (from environment)\n", maskSecret(credential))
		return nil
	}

	credential, err := app.Preferences.Credential(c.Context)
	if err != nil {
		return err
	}
	if credential == "" {
		fmt.Fprintln(c.App.Writer, "No API key set")
		return nil
	}
	fmt.Fprintf(c.App.Writer, "%s (saved)\n", maskSecret(credential))
	return nil
}

// ModelCommand returns the command that manages the saved model
func ModelCommand() *cli.Command {
	return &cli.Command{
		Name:  "model",
		Usage: "Manage the model the council uses",
		Subcommands: []*cli.Command{
			{
				Name:      "set",
				Usage:     "Save the model to use",
				ArgsUsage: "MODEL_ID",
				Action:    runModelSet,
			},
			{
				Name:   "show",
				Usage:  "Show the model in use",
				Action: runModelShow,
			},
		},
	}
}

func runModelSet(c *cli.Context) error {
	model := strings.TrimSpace(c.Args().First())
	if model == "" {
		return fmt.Errorf("missing required argument: MODEL_ID")
	}

	app, err := newApp(c, appOptions{})
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.Preferences.SetModel(c.Context, model); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Model set to %s\n", model)
	return nil
}

func runModelShow(c *cli.Context) error {
	app, err := newApp(c, appOptions{})
	if err != nil {
		return err
	}
	defer app.Close()

	model, err := app.Model(c.Context, "")
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, model)
	return nil
}
