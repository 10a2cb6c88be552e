package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/urfave/cli/v2"

	"github.com/councilchamber/internal/history"
	"github.com/councilchamber/pkg/models"
)

// HistoryCommand returns the command that lists past rounds
func HistoryCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show past questions and the council's answers",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"l"},
				Usage:   "Show at most `N` rounds (0 for all)",
				Value:   10,
			},
			&cli.BoolFlag{
				Name:  "oldest",
				Usage: "Oldest first",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print JSON",
			},
		},
		Action: runHistory,
	}
}

func runHistory(c *cli.Context) error {
	app, err := newApp(c, appOptions{})
	if err != nil {
		return err
	}
	defer app.Close()

	entries, err := app.History.List(c.Context)
	if err != nil {
		return err
	}

	limit := c.Int("limit")
	if c.Bool("oldest") {
		if limit > 0 && limit < len(entries) {
			entries = entries[:limit]
		}
	} else {
		entries = history.Reverse(entries, limit)
	}

	if c.Bool("json") {
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		if entries == nil {
			entries = []models.HistoryEntry{}
		}
		return enc.Encode(entries)
	}

	printHistory(c.App.Writer, entries, app.Personas)
	return nil
}

func printHistory(out io.Writer, entries []models.HistoryEntry, personas []models.Persona) {
	if len(entries) == 0 {
		fmt.Fprintln(out, "The council has not yet convened.")
		return
	}

	for i, entry := range entries {
		if i > 0 {
			fmt.Fprintln(out)
		}
		fmt.Fprintf(out, "[%s] %s\n", entry.Timestamp.Local().Format("2006-01-02 15:04"), entry.Query)
		for slot, answer := range entry.Answers {
			name := fmt.Sprintf("Member %d", slot+1)
			if slot < len(personas) {
				name = personas[slot].DisplayName
			}
			text := models.FailedAnswerText
			if answer != nil {
				text = *answer
			}
			fmt.Fprintf(out, "  %s:\n%s\n", name, indent(indent(text)))
		}
	}
}
