package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/councilchamber/internal/council"
	"github.com/councilchamber/pkg/models"
)

// frameInterval drives the animation at roughly 30 frames per second
const frameInterval = time.Second / 30

// Message types
type tickMsg time.Time

type roundEventMsg struct {
	roundID string
	event   council.Event
	closed  bool
}

type credentialSavedMsg struct {
	credential string
	err        error
}

type modelSavedMsg struct {
	model string
	err   error
}

type modelsLoadedMsg struct {
	models []string
}

type historyLoadedMsg struct {
	entries []models.HistoryEntry
	err     error
}

func tick() tea.Cmd {
	return tea.Tick(frameInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// waitRoundEvent blocks off the render loop until the round emits
func waitRoundEvent(roundID string, events <-chan council.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-events
		return roundEventMsg{roundID: roundID, event: event, closed: !ok}
	}
}

func saveCredentialCmd(settings Settings, credential string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := settings.SetCredential(ctx, credential)
		return credentialSavedMsg{credential: credential, err: err}
	}
}

func saveModelCmd(settings Settings, model string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return modelSavedMsg{model: model, err: settings.SetModel(ctx, model)}
	}
}

func loadModelsCmd(lister ModelLister) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		return modelsLoadedMsg{models: lister.FreeModels(ctx)}
	}
}

func loadHistoryCmd(reader HistoryReader, limit int) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		entries, err := reader.Newest(ctx, limit)
		return historyLoadedMsg{entries: entries, err: err}
	}
}
