package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/councilchamber/internal/council"
	"github.com/councilchamber/pkg/models"
)

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.history.Width = max(20, msg.Width-4)
		m.history.Height = max(5, msg.Height-8)
		return m, nil

	case tickMsg:
		m.stepScene()
		return m, tick()

	case roundEventMsg:
		return m.handleRoundEvent(msg)

	case credentialSavedMsg:
		if msg.err != nil {
			m.setStatus("Could not save API key: "+msg.err.Error(), true)
			return m, nil
		}
		m.credential = msg.credential
		m.enterAskMode()
		m.setStatus("API key saved", false)
		return m, nil

	case modelSavedMsg:
		if msg.err != nil {
			m.setStatus("Could not save model: "+msg.err.Error(), true)
		}
		return m, nil

	case modelsLoadedMsg:
		if len(msg.models) > 0 {
			m.options = msg.models
			if m.model != "" && indexOf(m.options, m.model) < 0 {
				m.options = append([]string{m.model}, m.options...)
			}
		}
		return m, nil

	case historyLoadedMsg:
		if msg.err != nil {
			m.setStatus("Could not load history: "+msg.err.Error(), true)
			return m, nil
		}
		m.history.SetContent(renderHistory(msg.entries, m.personas, m.theme))
		m.history.GotoTop()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		return m, tea.Quit
	}

	switch m.mode {
	case modeHistory:
		if key.Matches(msg, m.keys.Back) || key.Matches(msg, m.keys.History) {
			m.enterAskMode()
			return m, nil
		}
		var cmd tea.Cmd
		m.history, cmd = m.history.Update(msg)
		return m, cmd

	case modeKey:
		switch {
		case key.Matches(msg, m.keys.Back):
			m.enterAskMode()
			if m.credential == "" {
				m.setStatus("No API key set; press ctrl+k to add one", true)
			}
			return m, nil
		case key.Matches(msg, m.keys.Ask):
			credential := strings.TrimSpace(m.keyInput.Value())
			if credential == "" {
				m.setStatus("API key must not be blank", true)
				return m, nil
			}
			m.setStatus("Saving API key...", false)
			return m, saveCredentialCmd(m.cfg.Settings, credential)
		}
		var cmd tea.Cmd
		m.keyInput, cmd = m.keyInput.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.Back):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Ask):
		return m.ask()
	case key.Matches(msg, m.keys.Model):
		return m.cycleModel()
	case key.Matches(msg, m.keys.EditKey):
		m.enterKeyMode("Enter a new OpenRouter API key")
		return m, nil
	case key.Matches(msg, m.keys.History):
		m.mode = modeHistory
		m.query.Blur()
		m.setStatus("Past councils, newest first", false)
		return m, loadHistoryCmd(m.cfg.History, m.cfg.HistoryLimit)
	}

	var cmd tea.Cmd
	m.query, cmd = m.query.Update(msg)
	return m, cmd
}

// ask starts a round. StartRound only launches the calls, so the render loop
// never waits on the network.
func (m Model) ask() (tea.Model, tea.Cmd) {
	query := strings.TrimSpace(m.query.Value())
	round, err := m.cfg.Starter.StartRound(context.Background(), query, m.personas, m.model, m.credential)
	if err != nil {
		var validationErr *council.ValidationError
		if errors.As(err, &validationErr) && validationErr.Field == "credential" {
			m.enterKeyMode("Enter your OpenRouter API key to convene the council")
			return m, nil
		}
		m.setStatus(err.Error(), true)
		return m, nil
	}

	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	events, unsubscribe := round.Subscribe()
	m.round = round
	m.events = events
	m.unsubscribe = unsubscribe
	snapshot := round.Snapshot()
	m.snapshot = &snapshot

	m.query.SetValue("")
	m.setStatus(fmt.Sprintf("The council deliberates on %q", query), false)
	return m, waitRoundEvent(round.ID(), events)
}

func (m Model) handleRoundEvent(msg roundEventMsg) (tea.Model, tea.Cmd) {
	// Events from a replaced round arrive after its channel was dropped
	if m.round == nil || msg.roundID != m.round.ID() {
		return m, nil
	}

	snapshot := m.round.Snapshot()
	m.snapshot = &snapshot
	if msg.closed {
		return m, nil
	}

	switch msg.event.Type {
	case council.EventPersonaTransition:
		if msg.event.State.Reason == models.ErrorKindAuth {
			m.setStatus("The API key was rejected; press ctrl+k to change it", true)
			break
		}
		answered, failed, pending := snapshot.Counts()
		m.setStatus(fmt.Sprintf("%d answered · %d failed · %d thinking", answered, failed, pending), false)
	case council.EventRoundComplete:
		if !m.statusError {
			answered, failed, _ := snapshot.Counts()
			m.setStatus(fmt.Sprintf("The council has spoken (%d answered, %d failed)", answered, failed), false)
		}
	}

	return m, waitRoundEvent(msg.roundID, m.events)
}

func (m Model) cycleModel() (tea.Model, tea.Cmd) {
	if len(m.options) == 0 {
		return m, nil
	}
	next := m.options[(indexOf(m.options, m.model)+1)%len(m.options)]
	m.model = next
	m.setStatus("Model: "+next, false)
	return m, saveModelCmd(m.cfg.Settings, next)
}

// stepScene advances every avatar one frame. A persona is active while it
// is thinking.
func (m *Model) stepScene() {
	if m.round != nil {
		snapshot := m.round.Snapshot()
		m.snapshot = &snapshot
	}

	t := m.clock.Elapsed()
	for i := range m.avatars {
		m.avatars[i].Step(m.isActive(i), t)
	}
}

func (m *Model) isActive(slot int) bool {
	if m.snapshot == nil || m.snapshot.Superseded || slot >= len(m.snapshot.Answers) {
		return false
	}
	return m.snapshot.Answers[slot].State.Status == models.StatusPending
}
