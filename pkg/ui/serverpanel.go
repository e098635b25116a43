package ui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/spinpanel/spinpanel/internal/style"
)

type serverField int

const (
	fieldServerID serverField = iota
	fieldServerName
	fieldServerPort
	fieldDiscovery
	fieldStartStop
	serverFieldCount
)

// serverPanel is the identity form plus the start/stop control. The inputs
// feed the server factory, so edits made while running take effect on the
// next start.
type serverPanel struct {
	inputs    [3]textinput.Model
	discovery bool
	field     serverField
	spinner   spinner.Model
}

func initServerPanel(opts Options) serverPanel {
	id := textinput.New()
	id.Placeholder = "server id"
	id.Prompt = ""
	id.CharLimit = 64
	id.Width = 30
	id.SetValue(opts.ServerID)

	name := textinput.New()
	name.Placeholder = "server name"
	name.Prompt = ""
	name.CharLimit = 64
	name.Width = 30
	name.SetValue(opts.ServerName)

	port := textinput.New()
	port.Placeholder = "auto"
	port.Prompt = ""
	port.CharLimit = 5
	port.Width = 8
	if opts.Port > 0 {
		port.SetValue(strconv.Itoa(opts.Port))
	}

	return serverPanel{
		inputs:    [3]textinput.Model{id, name, port},
		discovery: opts.EnableDiscovery,
		field:     fieldStartStop,
		spinner:   style.NewSpinner(),
	}
}

// portValue parses the port field. Empty means 0, let the listener pick.
func (p serverPanel) portValue() (int, error) {
	raw := strings.TrimSpace(p.inputs[fieldServerPort].Value())
	if raw == "" {
		return 0, nil
	}
	port, err := strconv.Atoi(raw)
	if err != nil || port < 0 || port > 65535 {
		return 0, fmt.Errorf("invalid port %q", raw)
	}
	return port, nil
}

func (m *model) syncServerInputs() {
	for i := range m.server.inputs {
		if m.focus == focusServer && serverField(i) == m.server.field {
			m.server.inputs[i].Focus()
		} else {
			m.server.inputs[i].Blur()
		}
	}
}

func (m *model) updateServer(msg tea.Msg) tea.Cmd {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		var cmd tea.Cmd
		m.server.spinner, cmd = m.server.spinner.Update(msg)
		return cmd
	}

	switch key.String() {
	case "up", "k":
		if m.server.field > 0 && !m.serverFieldEditing(key) {
			m.server.field--
			m.syncServerInputs()
			return textinput.Blink
		}
	case "down", "j":
		if m.server.field < serverFieldCount-1 && !m.serverFieldEditing(key) {
			m.server.field++
			m.syncServerInputs()
			return textinput.Blink
		}
	case "enter":
		switch m.server.field {
		case fieldDiscovery:
			m.server.discovery = !m.server.discovery
		case fieldStartStop:
			m.toggleServer()
		default:
			m.server.field++
			m.syncServerInputs()
			return textinput.Blink
		}
		return nil
	case " ", "space":
		if m.server.field == fieldDiscovery {
			m.server.discovery = !m.server.discovery
			return nil
		}
	}

	if m.server.field <= fieldServerPort {
		var cmd tea.Cmd
		m.server.inputs[m.server.field], cmd = m.server.inputs[m.server.field].Update(msg)
		return cmd
	}
	return nil
}

// serverFieldEditing reports whether the key should go to the focused text
// input instead of moving the field cursor. "k" and "j" are text when an
// input is active; the arrow keys always navigate.
func (m *model) serverFieldEditing(key tea.KeyMsg) bool {
	if m.server.field > fieldServerPort {
		return false
	}
	return key.Type == tea.KeyRunes
}

// toggleServer starts or stops the server from the form values.
func (m *model) toggleServer() {
	if m.ctrl.Running() {
		m.err = nil
		m.ctrl.StopServer()
		m.refresh()
		return
	}

	id := strings.TrimSpace(m.server.inputs[fieldServerID].Value())
	name := strings.TrimSpace(m.server.inputs[fieldServerName].Value())
	if id == "" {
		m.err = errors.New("server id must not be empty")
		return
	}
	if name == "" {
		m.err = errors.New("server name must not be empty")
		return
	}
	port, err := m.server.portValue()
	if err != nil {
		m.err = err
		return
	}

	m.err = nil
	m.ctrl.StartServer(id, name, port, m.server.discovery)
	m.refresh()
}

func (m *model) serverPanelView() string {
	status := style.StoppedStyle.Render("STOPPED")
	if m.ctrl.Running() {
		status = style.RunningStyle.Render("RUNNING")
	}
	busy := ""
	if m.ctrl.Busy() {
		busy = " " + m.server.spinner.View()
	}

	var s strings.Builder
	s.WriteString(style.TitleStyle.Render("Server") + "  " + status + busy + "\n")

	labels := [3]string{"ID", "Name", "Port"}
	for i := range m.server.inputs {
		s.WriteString(m.serverCursor(serverField(i)))
		s.WriteString(fmt.Sprintf("%-6s", labels[i]+":"))
		s.WriteString(m.server.inputs[i].View() + "\n")
	}

	box := style.DeselectedStyle.String()
	if m.server.discovery {
		box = style.SelectedStyle.String()
	}
	s.WriteString(m.serverCursor(fieldDiscovery))
	s.WriteString(fmt.Sprintf("%-6s%s\n", "mDNS:", box))

	button := "[ Start ]"
	if m.ctrl.Running() {
		button = "[ Stop ]"
	}
	s.WriteString(m.serverCursor(fieldStartStop))
	if m.focus == focusServer && m.server.field == fieldStartStop {
		button = style.HighlightFontStyle.Render(button)
	}
	s.WriteString(button + "\n")

	s.WriteString(style.HelpStyle.Render("up/down to move, enter to apply, space toggles mDNS"))
	return s.String()
}

func (m *model) serverCursor(field serverField) string {
	if m.focus == focusServer && m.server.field == field {
		return style.CursorStyle.String()
	}
	return style.NoCursorStyle.String()
}
