package ui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/spinpanel/spinpanel/internal/style"
	"github.com/spinpanel/spinpanel/internal/util"
	"github.com/spinpanel/spinpanel/pkg/audiofile"
	"github.com/spinpanel/spinpanel/pkg/audiopicker"
)

type streamSource int

const (
	sourceFile streamSource = iota
	sourceTone
)

type streamField int

const (
	streamFieldFreq streamField = iota
	streamFieldDuration
	streamFieldGroup
	streamFieldSend
	streamFieldCount
)

// streamPanel chooses what to play and where. In file mode the picker owns
// the keys and picking a file streams it immediately; in tone mode a small
// form collects frequency and duration. The group field accepts a group name
// or id, with "all" fanning out to every group.
type streamPanel struct {
	source streamSource
	picker audiopicker.Model
	picked *audiofile.Info

	freq     textinput.Model
	duration textinput.Model
	group    textinput.Model
	field    streamField

	groupEditing bool
}

func initStreamPanel() streamPanel {
	freq := textinput.New()
	freq.Prompt = ""
	freq.CharLimit = 6
	freq.Width = 8
	freq.SetValue("440")

	duration := textinput.New()
	duration.Prompt = ""
	duration.CharLimit = 5
	duration.Width = 8
	duration.SetValue("5")

	group := textinput.New()
	group.Prompt = ""
	group.CharLimit = 64
	group.Width = 18
	group.SetValue("all")

	return streamPanel{
		source:   sourceFile,
		picker:   audiopicker.InitialModel(),
		freq:     freq,
		duration: duration,
		group:    group,
		field:    streamFieldSend,
	}
}

func (m *model) syncStreamInputs() {
	m.stream.freq.Blur()
	m.stream.duration.Blur()
	m.stream.group.Blur()
	if m.focus != focusStream {
		return
	}
	switch m.stream.source {
	case sourceFile:
		if m.stream.groupEditing {
			m.stream.group.Focus()
		}
	case sourceTone:
		switch m.stream.field {
		case streamFieldFreq:
			m.stream.freq.Focus()
		case streamFieldDuration:
			m.stream.duration.Focus()
		case streamFieldGroup:
			m.stream.group.Focus()
		}
	}
}

// streamTargets resolves the group field into group ids. "all" fans out to
// every current group; otherwise the field matches a group by name or id.
func (m *model) streamTargets() ([]string, error) {
	raw := strings.TrimSpace(m.stream.group.Value())
	if raw == "" {
		raw = "all"
	}
	groups := m.ctrl.Groups()
	if strings.EqualFold(raw, "all") {
		if len(groups) == 0 {
			return nil, errors.New("no groups to stream to")
		}
		ids := make([]string, len(groups))
		for i, g := range groups {
			ids[i] = g.ID
		}
		return ids, nil
	}
	for _, g := range groups {
		if g.ID == raw || g.Name == raw {
			return []string{g.ID}, nil
		}
	}
	return nil, fmt.Errorf("no group named %q", raw)
}

func (m *model) updateStream(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case audiopicker.PickedMsg:
		m.streamPickedFile(msg.File)
		return nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+t" {
			if m.stream.source == sourceFile {
				m.stream.source = sourceTone
			} else {
				m.stream.source = sourceFile
			}
			m.stream.groupEditing = false
			m.syncStreamInputs()
			return nil
		}
		if m.stream.source == sourceFile {
			return m.updateStreamFile(msg)
		}
		return m.updateStreamTone(msg)
	}

	// Resizes and other bookkeeping go to the picker.
	var cmd tea.Cmd
	m.stream.picker, cmd = m.stream.picker.Update(msg)
	return cmd
}

// streamPickedFile streams a picked file to the resolved targets.
func (m *model) streamPickedFile(info audiofile.Info) {
	m.stream.picked = &info
	targets, err := m.streamTargets()
	if err != nil {
		m.err = err
		return
	}
	m.err = nil
	for _, id := range targets {
		m.ctrl.StreamFile(id, info.Path)
	}
	m.refresh()
}

func (m *model) updateStreamFile(key tea.KeyMsg) tea.Cmd {
	if m.stream.groupEditing {
		switch key.String() {
		case "enter", "esc":
			m.stream.groupEditing = false
			m.syncStreamInputs()
			return nil
		}
		var cmd tea.Cmd
		m.stream.group, cmd = m.stream.group.Update(key)
		return cmd
	}

	if key.String() == "ctrl+g" {
		m.stream.groupEditing = true
		m.syncStreamInputs()
		return textinput.Blink
	}

	var cmd tea.Cmd
	m.stream.picker, cmd = m.stream.picker.Update(key)
	return cmd
}

func (m *model) updateStreamTone(key tea.KeyMsg) tea.Cmd {
	switch key.String() {
	case "up", "k":
		if m.stream.field > 0 && !m.streamFieldEditing(key) {
			m.stream.field--
			m.syncStreamInputs()
			return textinput.Blink
		}
	case "down", "j":
		if m.stream.field < streamFieldCount-1 && !m.streamFieldEditing(key) {
			m.stream.field++
			m.syncStreamInputs()
			return textinput.Blink
		}
	case "enter":
		if m.stream.field == streamFieldSend {
			m.sendTone()
			return nil
		}
		m.stream.field++
		m.syncStreamInputs()
		return textinput.Blink
	}

	var cmd tea.Cmd
	switch m.stream.field {
	case streamFieldFreq:
		m.stream.freq, cmd = m.stream.freq.Update(key)
	case streamFieldDuration:
		m.stream.duration, cmd = m.stream.duration.Update(key)
	case streamFieldGroup:
		m.stream.group, cmd = m.stream.group.Update(key)
	}
	return cmd
}

func (m *model) streamFieldEditing(key tea.KeyMsg) bool {
	if m.stream.field == streamFieldSend {
		return false
	}
	return key.Type == tea.KeyRunes
}

// sendTone validates the tone form and streams the tone to the targets.
func (m *model) sendTone() {
	freq, err := strconv.Atoi(strings.TrimSpace(m.stream.freq.Value()))
	if err != nil || freq <= 0 || freq > 20000 {
		m.err = fmt.Errorf("invalid frequency %q", m.stream.freq.Value())
		return
	}
	secs, err := strconv.Atoi(strings.TrimSpace(m.stream.duration.Value()))
	if err != nil || secs <= 0 {
		m.err = fmt.Errorf("invalid duration %q", m.stream.duration.Value())
		return
	}
	targets, err := m.streamTargets()
	if err != nil {
		m.err = err
		return
	}

	m.err = nil
	for _, id := range targets {
		m.ctrl.StreamTestTone(id, freq, time.Duration(secs)*time.Second)
	}
	m.refresh()
}

func (m *model) streamPanelView() string {
	var s strings.Builder

	label := "file"
	if m.stream.source == sourceTone {
		label = "tone"
	}
	s.WriteString(style.TitleStyle.Render("Stream") + "  " + style.HighlightFontStyle.Render("["+label+"]") + "  ")
	s.WriteString(style.HelpStyle.Render("ctrl+t to switch source") + "\n")

	if m.stream.source == sourceTone {
		return s.String() + m.streamToneView()
	}

	target := m.stream.group.Value()
	if m.stream.groupEditing {
		s.WriteString("To: " + m.stream.group.View() + "\n")
	} else {
		s.WriteString("To: " + style.HighlightFontStyle.Render(target) + "  " + style.HelpStyle.Render("(ctrl+g to edit)") + "\n")
	}
	s.WriteString(m.stream.picker.View())
	if m.stream.picked != nil {
		s.WriteString(fmt.Sprintf("Last sent: %s (%s)\n", m.stream.picked.Name, util.FormatSize(m.stream.picked.Size)))
	}
	return s.String()
}

func (m *model) streamToneView() string {
	var s strings.Builder

	s.WriteString(m.streamCursor(streamFieldFreq))
	s.WriteString(fmt.Sprintf("%-10s", "Freq Hz:"))
	s.WriteString(m.stream.freq.View() + "\n")

	s.WriteString(m.streamCursor(streamFieldDuration))
	s.WriteString(fmt.Sprintf("%-10s", "Seconds:"))
	s.WriteString(m.stream.duration.View() + "\n")

	s.WriteString(m.streamCursor(streamFieldGroup))
	s.WriteString(fmt.Sprintf("%-10s", "To:"))
	s.WriteString(m.stream.group.View() + "\n")

	button := "[ Send tone ]"
	if m.focus == focusStream && m.stream.field == streamFieldSend {
		button = style.HighlightFontStyle.Render(button)
	}
	s.WriteString(m.streamCursor(streamFieldSend) + button + "\n")

	s.WriteString(style.HelpStyle.Render("up/down to move, enter to send"))
	return s.String()
}

func (m *model) streamCursor(field streamField) string {
	if m.focus == focusStream && m.stream.field == field {
		return style.CursorStyle.String()
	}
	return style.NoCursorStyle.String()
}
