package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v2"
)

// PersonasCommand returns the command that lists the seated council
func PersonasCommand() *cli.Command {
	return &cli.Command{
		Name:  "personas",
		Usage: "List the council members and their visuals",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "size",
				Aliases: []string{"n"},
				Usage:   "Number of council members",
			},
			&cli.BoolFlag{
				Name:    "prompts",
				Aliases: []string{"p"},
				Usage:   "Include each member's system prompt",
			},
		},
		Action: runPersonas,
	}
}

func runPersonas(c *cli.Context) error {
	app, err := newApp(c, appOptions{size: c.Int("size")})
	if err != nil {
		return err
	}
	defer app.Close()

	w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SLOT\tID\tNAME\tCOLOR\tSHAPE\tFONT")
	for _, p := range app.Personas {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", p.Slot, p.ID, p.DisplayName, p.Visual.Color, p.Visual.Shape, p.Visual.Font)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if c.Bool("prompts") {
		for _, p := range app.Personas {
			fmt.Fprintf(c.App.Writer, "\n%s:\n%s\n", p.DisplayName, indent(strings.TrimSpace(p.SystemPrompt)))
		}
	}
	return nil
}
