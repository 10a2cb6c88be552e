package tui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/councilchamber/internal/council"
	"github.com/councilchamber/internal/scene"
	"github.com/councilchamber/pkg/models"
)

// RoundStarter starts council rounds; *council.Dispatcher implements it
type RoundStarter interface {
	StartRound(ctx context.Context, query string, personas []models.Persona, model, credential string) (*council.Round, error)
}

// Settings persists the API key and chosen model
type Settings interface {
	SetCredential(ctx context.Context, credential string) error
	SetModel(ctx context.Context, model string) error
}

// HistoryReader lists past rounds, newest first
type HistoryReader interface {
	Newest(ctx context.Context, n int) ([]models.HistoryEntry, error)
}

// ModelLister discovers selectable models
type ModelLister interface {
	FreeModels(ctx context.Context) []string
}

// Config wires the chamber to the rest of the application
type Config struct {
	Starter    RoundStarter
	Settings   Settings
	History    HistoryReader
	Models     ModelLister // optional; Options are used alone when nil
	Personas   []models.Persona
	Model      string
	Options    []string // models offered before discovery finishes
	Credential string
	// HistoryLimit bounds the history view; zero shows everything
	HistoryLimit int
}

type mode int

const (
	modeAsk mode = iota
	modeKey
	modeHistory
)

// Model is the bubbletea model of the chamber
type Model struct {
	cfg  Config
	keys KeyMap
	help help.Model

	mode     mode
	query    textinput.Model
	keyInput textinput.Model
	history  viewport.Model

	personas  []models.Persona
	positions []scene.Vec3
	farArc    []int
	nearArc   []int
	avatars   []scene.Avatar
	clock     *scene.Clock

	round       *council.Round
	events      <-chan council.Event
	unsubscribe func()
	snapshot    *council.Snapshot

	model      string
	options    []string
	credential string

	status      string
	statusError bool

	width  int
	height int
	theme  theme
}

// New builds the chamber model
func New(cfg Config) Model {
	query := textinput.New()
	query.Placeholder = "Ask the council..."
	query.Prompt = "› "
	query.CharLimit = 2000
	query.Focus()

	keyInput := textinput.New()
	keyInput.Placeholder = "sk-or-..."
	keyInput.Prompt = "API key › "
	keyInput.EchoMode = textinput.EchoPassword
	keyInput.EchoCharacter = '•'

	positions := scene.RingPositions(len(cfg.Personas), scene.RingRadius)
	far, near := scene.Arcs(positions)

	avatars := make([]scene.Avatar, len(cfg.Personas))
	for i := range avatars {
		avatars[i] = scene.NewAvatar()
	}

	options := append([]string(nil), cfg.Options...)
	if cfg.Model != "" && indexOf(options, cfg.Model) < 0 {
		options = append([]string{cfg.Model}, options...)
	}

	m := Model{
		cfg:        cfg,
		keys:       NewKeyMap(),
		help:       help.New(),
		query:      query,
		keyInput:   keyInput,
		history:    viewport.New(80, 20),
		personas:   cfg.Personas,
		positions:  positions,
		farArc:     far,
		nearArc:    near,
		avatars:    avatars,
		clock:      scene.NewClock(nil),
		model:      cfg.Model,
		options:    options,
		credential: cfg.Credential,
		theme:      newTheme(),
		width:      100,
		height:     30,
	}

	if m.credential == "" {
		m.enterKeyMode("Enter your OpenRouter API key to convene the council")
	} else {
		m.setStatus(fmt.Sprintf("The council of %d awaits your question", len(cfg.Personas)), false)
	}
	return m
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{tick(), textinput.Blink}
	if m.cfg.Models != nil {
		cmds = append(cmds, loadModelsCmd(m.cfg.Models))
	}
	return tea.Batch(cmds...)
}

// Run starts the chamber in the alternate screen and blocks until it quits
func Run(cfg Config) error {
	program := tea.NewProgram(New(cfg), tea.WithAltScreen())
	final, err := program.Run()
	if m, ok := final.(Model); ok && m.unsubscribe != nil {
		m.unsubscribe()
	}
	return err
}

func (m *Model) setStatus(status string, isError bool) {
	m.status = status
	m.statusError = isError
}

func (m *Model) enterKeyMode(status string) {
	m.mode = modeKey
	m.query.Blur()
	m.keyInput.SetValue("")
	m.keyInput.Focus()
	m.setStatus(status, false)
}

func (m *Model) enterAskMode() {
	m.mode = modeAsk
	m.keyInput.Blur()
	m.query.Focus()
}

func indexOf(values []string, target string) int {
	for i, v := range values {
		if v == target {
			return i
		}
	}
	return -1
}
