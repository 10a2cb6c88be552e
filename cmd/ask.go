package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/councilchamber/internal/council"
	"github.com/councilchamber/pkg/models"
)

// AskCommand returns the command that puts one question to the council
func AskCommand() *cli.Command {
	return &cli.Command{
		Name:  "ask",
		Usage: "Ask the council a question and print every answer",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "model",
				Aliases: []string{"m"},
				Usage:   "Model to ask (defaults to the saved model)",
			},
			&cli.StringFlag{
				Name:  "api-key",
				Usage: "OpenRouter API key (defaults to $COUNCIL_API_KEY, $OPENROUTER_API_KEY, then the saved key)",
			},
			&cli.IntFlag{
				Name:    "size",
				Aliases: []string{"n"},
				Usage:   "Number of council members",
			},
		},
		ArgsUsage: "QUESTION",
		Action:    runAsk,
	}
}

func runAsk(c *cli.Context) error {
	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return fmt.Errorf("missing required argument: QUESTION")
	}

	app, err := newApp(c, appOptions{size: c.Int("size")})
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	defer stop()

	credential, err := app.Credential(ctx, c.String("api-key"))
	if err != nil {
		return err
	}
	model, err := app.Model(ctx, c.String("model"))
	if err != nil {
		return err
	}

	return askCouncil(ctx, app.Dispatcher, c.App.Writer, query, app.Personas, model, credential)
}

// askCouncil runs one round, printing each answer as it lands and a summary
// once the council is done
func askCouncil(ctx context.Context, dispatcher *council.Dispatcher, out io.Writer, query string, personas []models.Persona, model, credential string) error {
	round, err := dispatcher.StartRound(ctx, query, personas, model, credential)
	if err != nil {
		var validationErr *council.ValidationError
		if errors.As(err, &validationErr) && validationErr.Field == "credential" {
			return fmt.Errorf("%w (set one with `council key set` or $COUNCIL_API_KEY)", err)
		}
		return err
	}

	events, unsubscribe := round.Subscribe()
	defer unsubscribe()

	fmt.Fprintf(out, "The council of %d considers: %s\n\n", len(personas), round.Query())

	names := make(map[string]string, len(personas))
	for _, p := range personas {
		names[p.ID] = p.DisplayName
	}

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return finishAsk(out, round)
			}
			if event.Type == council.EventPersonaTransition {
				printAnswer(out, names[event.PersonaID], event.State)
			}
		case <-ctx.Done():
			dispatcher.Close()
			return fmt.Errorf("interrupted: %w", ctx.Err())
		}
	}
}

func printAnswer(out io.Writer, name string, state models.AnswerState) {
	switch state.Status {
	case models.StatusAnswered:
		fmt.Fprintf(out, "✓ %s\n%s\n\n", name, indent(state.Text))
	case models.StatusFailed:
		fmt.Fprintf(out, "✗ %s\n%s (%s)\n\n", name, indent(models.FailedAnswerText), state.Reason)
	}
}

func finishAsk(out io.Writer, round *council.Round) error {
	snapshot := round.Snapshot()
	if snapshot.Superseded {
		return council.ErrSuperseded
	}

	answered, failed, _ := snapshot.Counts()
	fmt.Fprintf(out, "The council has spoken: %d answered, %d failed\n", answered, failed)
	if answered == 0 && failed > 0 {
		for _, answer := range snapshot.Answers {
			if answer.State.Reason == models.ErrorKindAuth {
				return fmt.Errorf("every council member failed: the API key was rejected")
			}
		}
		return fmt.Errorf("every council member failed")
	}
	return nil
}

func indent(text string) string {
	return "  " + strings.ReplaceAll(strings.TrimRight(text, "\n"), "\n", "\n  ")
}
