package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/councilchamber/pkg/models"
)

const (
	minCardWidth   = 18
	maxCardWidth   = 44
	maxAnswerLines = 10
	// glowThreshold is the emissive level above which a glyph is drawn bold
	glowThreshold = 0.3
)

var glyphs = map[models.Geometry]string{
	models.GeometryBox:          "■",
	models.GeometrySphere:       "●",
	models.GeometryTetrahedron:  "▲",
	models.GeometryOctahedron:   "◆",
	models.GeometryDodecahedron: "⬟",
	models.GeometryIcosahedron:  "⬢",
}

func (m Model) View() string {
	var body string
	if m.mode == modeHistory {
		body = m.theme.panel.Width(max(20, m.width-4)).Render(m.history.View())
	} else {
		body = m.renderChamber()
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		body,
		m.renderFooter(),
	)
}

func (m Model) renderHeader() string {
	title := m.theme.title.Render("COUNCIL CHAMBER")
	info := fmt.Sprintf("%d members · model %s", len(m.personas), m.model)
	if m.snapshot != nil {
		switch {
		case m.snapshot.Superseded:
			info += " · superseded"
		case m.snapshot.Complete:
			info += " · adjourned"
		default:
			info += " · in session"
		}
	}
	return m.theme.header.Render(title + "  " + m.theme.muted.Render(info))
}

func (m Model) renderChamber() string {
	width := m.cardWidth()

	rows := []string{}
	if len(m.farArc) > 0 {
		rows = append(rows, m.renderArc(m.farArc, width))
	}
	rows = append(rows, m.renderInput())
	if len(m.nearArc) > 0 {
		rows = append(rows, m.renderArc(m.nearArc, width))
	}
	return lipgloss.JoinVertical(lipgloss.Center, rows...)
}

func (m Model) renderArc(slots []int, width int) string {
	cards := make([]string, len(slots))
	for i, slot := range slots {
		cards[i] = m.renderCard(slot, width)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cards...)
}

func (m Model) cardWidth() int {
	columns := max(len(m.farArc), len(m.nearArc), 1)
	width := m.width/columns - 4
	return min(max(width, minCardWidth), maxCardWidth)
}

func (m Model) renderCard(slot, width int) string {
	persona := m.personas[slot]
	avatar := m.avatars[slot]
	color := lipgloss.Color(persona.Visual.Color)

	glyph := glyphs[persona.Visual.Shape]
	if glyph == "" {
		glyph = "○"
	}
	glyphStyle := lipgloss.NewStyle().Foreground(color)
	if avatar.Emissive > glowThreshold {
		glyphStyle = glyphStyle.Bold(true)
	}
	name := lipgloss.NewStyle().Foreground(color).Bold(true).Render(persona.DisplayName)

	state := models.AnswerState{}
	if m.snapshot != nil && slot < len(m.snapshot.Answers) {
		state = m.snapshot.Answers[slot].State
	}

	labelStyle := m.theme.answer
	switch state.Status {
	case models.StatusPending:
		labelStyle = m.theme.thinking
	case models.StatusFailed:
		labelStyle = m.theme.failed
	}
	label := labelStyle.
		Width(width - 2).
		MaxHeight(maxAnswerLines).
		Render(state.DisplayText())

	return m.theme.card.
		BorderForeground(color).
		Width(width).
		Render(glyphStyle.Render(glyph) + " " + name + "\n" + label)
}

func (m Model) renderInput() string {
	input := m.query.View()
	if m.mode == modeKey {
		input = m.keyInput.View()
	}
	return m.theme.inputPanel.Width(max(minCardWidth, m.width/2)).Render(input)
}

func (m Model) renderFooter() string {
	style := m.theme.status
	if m.statusError {
		style = m.theme.errorStatus
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		style.Render(m.status),
		m.help.View(m.keys),
	)
}

// renderHistory lays out past rounds, one block per round. Answers are
// matched to personas by slot.
func renderHistory(entries []models.HistoryEntry, personas []models.Persona, t theme) string {
	if len(entries) == 0 {
		return t.muted.Render("The council has not yet convened.")
	}

	var b strings.Builder
	for i, entry := range entries {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(t.historyWhen.Render(entry.Timestamp.Local().Format("2006-01-02 15:04")))
		b.WriteString("  ")
		b.WriteString(t.historyAsk.Render(entry.Query))
		b.WriteString("\n")
		for slot, answer := range entry.Answers {
			name := fmt.Sprintf("Member %d", slot+1)
			if slot < len(personas) {
				name = personas[slot].DisplayName
			}
			text := models.FailedAnswerText
			if answer != nil {
				text = *answer
			}
			fmt.Fprintf(&b, "  %s: %s\n", name, text)
		}
	}
	return b.String()
}
