package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/urfave/cli/v2"
)

// ModelsCommand returns the command that lists selectable models
func ModelsCommand() *cli.Command {
	return &cli.Command{
		Name:  "models",
		Usage: "List the free models the council can use",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "all",
				Aliases: []string{"a"},
				Usage:   "List every upstream model with its pricing",
			},
		},
		Action: runModels,
	}
}

func runModels(c *cli.Context) error {
	app, err := newApp(c, appOptions{})
	if err != nil {
		return err
	}
	defer app.Close()

	current, err := app.Model(c.Context, "")
	if err != nil {
		return err
	}

	if !c.Bool("all") {
		for _, id := range app.Catalog.FreeModels(c.Context) {
			marker := " "
			if id == current {
				marker = "*"
			}
			fmt.Fprintf(c.App.Writer, "%s %s\n", marker, id)
		}
		return nil
	}

	infos, err := app.Catalog.Fetch(c.Context)
	if err != nil {
		return fmt.Errorf("failed to list models: %w", err)
	}

	w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tFREE\tPROMPT\tCOMPLETION")
	for _, info := range infos {
		free := ""
		if info.IsFree() {
			free = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", info.ID, free, info.Pricing.Prompt, info.Pricing.Completion)
	}
	return w.Flush()
}
