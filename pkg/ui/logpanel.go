package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/spinpanel/spinpanel/internal/style"
	"github.com/spinpanel/spinpanel/pkg/panel"
)

// logPanel scrolls the event log ring. Follow mode pins the view to the
// newest line until the operator scrolls away.
type logPanel struct {
	vp     viewport.Model
	follow bool
	count  int
}

func initLogPanel() logPanel {
	return logPanel{
		vp:     viewport.New(60, 10),
		follow: true,
	}
}

func (p *logPanel) refresh(log *panel.Log) {
	entries := log.Entries()

	var b strings.Builder
	for _, e := range entries {
		line := fmt.Sprintf("%s [%-5s] %s", e.Time.Format("15:04:05.000"), e.Level.String(), e.Message)
		b.WriteString(style.LogLevelStyle(e.Level).Render(line) + "\n")
	}
	p.count = len(entries)
	p.vp.SetContent(b.String())
	if p.follow {
		p.vp.GotoBottom()
	}
}

func (m *model) updateLog(msg tea.Msg) tea.Cmd {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return nil
	}

	switch key.String() {
	case "f":
		m.log.follow = true
		m.log.vp.GotoBottom()
		return nil
	case "c":
		m.ctrl.Events().Clear()
		m.refresh()
		return nil
	case "up", "k", "pgup":
		m.log.follow = false
	}

	var cmd tea.Cmd
	m.log.vp, cmd = m.log.vp.Update(msg)
	return cmd
}

func (m *model) logPanelView() string {
	var s strings.Builder

	title := fmt.Sprintf("Log (%d)", m.log.count)
	follow := ""
	if m.log.follow {
		follow = "  " + style.HelpStyle.Render("following")
	}
	s.WriteString(style.TitleStyle.Render(title) + follow + "\n")
	s.WriteString(m.log.vp.View() + "\n")
	s.WriteString(style.HelpStyle.Render("up/down scroll, f follow, c clear"))
	return s.String()
}
