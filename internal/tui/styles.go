package tui

import "github.com/charmbracelet/lipgloss"

type theme struct {
	header      lipgloss.Style
	title       lipgloss.Style
	muted       lipgloss.Style
	card        lipgloss.Style
	answer      lipgloss.Style
	thinking    lipgloss.Style
	failed      lipgloss.Style
	inputPanel  lipgloss.Style
	panel       lipgloss.Style
	status      lipgloss.Style
	errorStatus lipgloss.Style
	historyWhen lipgloss.Style
	historyAsk  lipgloss.Style
}

func newTheme() theme {
	gold := lipgloss.Color("#e8c26a")
	stone := lipgloss.Color("#6b6f80")
	text := lipgloss.Color("#ecebf4")
	muted := lipgloss.Color("#9a9cb0")
	red := lipgloss.Color("#ff6b6b")

	return theme{
		header: lipgloss.NewStyle().
			Foreground(text).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(gold).
			Padding(0, 1),
		title: lipgloss.NewStyle().Foreground(gold).Bold(true),
		muted: lipgloss.NewStyle().Foreground(muted),
		card: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			Padding(0, 1),
		answer:   lipgloss.NewStyle().Foreground(text),
		thinking: lipgloss.NewStyle().Foreground(muted).Italic(true),
		failed:   lipgloss.NewStyle().Foreground(red),
		inputPanel: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(gold).
			Padding(0, 1),
		panel: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(stone).
			Padding(0, 1),
		status:      lipgloss.NewStyle().Foreground(gold),
		errorStatus: lipgloss.NewStyle().Foreground(red).Bold(true),
		historyWhen: lipgloss.NewStyle().Foreground(muted),
		historyAsk:  lipgloss.NewStyle().Foreground(gold).Bold(true),
	}
}
