// Package audiopicker is a file browser for choosing one audio file.
// Directories and files with audio extensions are listed; picking a file
// sniffs its content before it is accepted.
package audiopicker

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/spinpanel/spinpanel/internal/style"
	"github.com/spinpanel/spinpanel/internal/util"
	"github.com/spinpanel/spinpanel/pkg/audiofile"
)

// PickedMsg is emitted when the user confirms a file that passed the audio
// content check.
type PickedMsg struct {
	File audiofile.Info
}

type mode int

const (
	modeBrowse mode = iota
	modeInput
)

// entry is one row of the listing. A nil info marks the ".." parent row.
type entry struct {
	name  string
	isDir bool
	size  int64
}

// --- Key Map ---
type KeyMap struct {
	Up          key.Binding
	Down        key.Binding
	PageUp      key.Binding
	PageDown    key.Binding
	Pick        key.Binding
	ToggleInput key.Binding
	Back        key.Binding
}

var DefaultKeyMap = KeyMap{
	Up:          key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "move up")),
	Down:        key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "move down")),
	PageUp:      key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "page up")),
	PageDown:    key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "page down")),
	Pick:        key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open/pick")),
	ToggleInput: key.NewBinding(key.WithKeys("ctrl+p"), key.WithHelp("ctrl+p", "input path")),
	Back:        key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
}

// --- Model ---
type Model struct {
	path    string
	entries []entry
	cursor  int
	offset  int
	height  int
	keys    KeyMap
	mode    mode
	input   textinput.Model
	pathErr error
}

func InitialModel() Model {
	ti := textinput.New()
	ti.Placeholder = "path to browse"
	ti.CharLimit = 256
	ti.Width = 48

	m := Model{
		keys:  DefaultKeyMap,
		input: ti,
		mode:  modeBrowse,
	}
	wd, err := os.Getwd()
	if err != nil {
		wd = string(os.PathSeparator)
	}
	if err := m.load(wd); err != nil {
		m.pathErr = err
		m.mode = modeInput
		m.input.Focus()
	}
	return m
}

// Path returns the directory currently listed.
func (m Model) Path() string { return m.path }

// SetPath points the listing at dir.
func (m *Model) SetPath(dir string) error {
	return m.load(dir)
}

// load reads dir and rebuilds the listing: parent row first, then
// directories, then audio files, both name-sorted.
func (m *Model) load(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	exists, isDir, err := util.CheckDirectory(abs)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("path does not exist: %s", abs)
	}
	if !isDir {
		return fmt.Errorf("path is not a directory: %s", abs)
	}
	dirents, err := os.ReadDir(abs)
	if err != nil {
		return fmt.Errorf("could not read directory: %w", err)
	}

	var dirs, files []entry
	for _, d := range dirents {
		if strings.HasPrefix(d.Name(), ".") {
			continue
		}
		if d.IsDir() {
			dirs = append(dirs, entry{name: d.Name(), isDir: true})
			continue
		}
		if !audiofile.HasAudioExt(d.Name()) {
			continue
		}
		var size int64
		if info, err := d.Info(); err == nil {
			size = info.Size()
		}
		files = append(files, entry{name: d.Name(), size: size})
	}
	sort.Slice(dirs, func(i, j int) bool { return dirs[i].name < dirs[j].name })
	sort.Slice(files, func(i, j int) bool { return files[i].name < files[j].name })

	entries := make([]entry, 0, len(dirs)+len(files)+1)
	if filepath.Dir(abs) != abs {
		entries = append(entries, entry{name: "..", isDir: true})
	}
	entries = append(entries, dirs...)
	entries = append(entries, files...)

	m.path = abs
	m.entries = entries
	m.cursor = 0
	m.offset = 0
	m.pathErr = nil
	return nil
}

// --- Bubble Tea Methods ---
func (m Model) Init() tea.Cmd {
	if m.mode == modeInput {
		return textinput.Blink
	}
	return nil
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.height = msg.Height
		return m, nil
	case tea.KeyMsg:
		switch m.mode {
		case modeInput:
			return m.updateInput(msg)
		default:
			return m.updateBrowse(msg)
		}
	}
	return m, nil
}

func (m Model) updateBrowse(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.ToggleInput):
		m.mode = modeInput
		m.input.Focus()
		return m, textinput.Blink

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
			if m.cursor < m.offset {
				m.offset--
			}
		}

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.entries)-1 {
			m.cursor++
			if m.cursor >= m.offset+m.visibleRows() {
				m.offset++
			}
		}

	case key.Matches(msg, m.keys.PageDown):
		page := m.visibleRows()
		m.cursor = min(m.cursor+page, len(m.entries)-1)
		m.offset = min(m.offset+page, max(len(m.entries)-page, 0))
		if m.cursor < 0 {
			m.cursor = 0
		}

	case key.Matches(msg, m.keys.PageUp):
		page := m.visibleRows()
		m.cursor = max(m.cursor-page, 0)
		m.offset = max(m.offset-page, 0)

	case key.Matches(msg, m.keys.Pick):
		return m.pick()
	}
	return m, nil
}

// pick descends into directories and emits PickedMsg for files that sniff
// as audio.
func (m Model) pick() (Model, tea.Cmd) {
	if m.cursor < 0 || m.cursor >= len(m.entries) {
		return m, nil
	}
	item := m.entries[m.cursor]

	if item.isDir {
		target := filepath.Join(m.path, item.name)
		if item.name == ".." {
			target = filepath.Dir(m.path)
		}
		if err := m.load(target); err != nil {
			m.pathErr = err
		}
		return m, nil
	}

	info, err := audiofile.InspectAudio(filepath.Join(m.path, item.name))
	if err != nil {
		m.pathErr = err
		return m, nil
	}
	m.pathErr = nil
	return m, func() tea.Msg { return PickedMsg{File: info} }
}

func (m Model) updateInput(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back):
		m.mode = modeBrowse
		m.input.Blur()
		m.input.Reset()
		m.pathErr = nil
		return m, nil

	case key.Matches(msg, m.keys.Pick):
		path := m.input.Value()
		if path == "" {
			return m, nil
		}
		if !filepath.IsAbs(path) {
			path = filepath.Join(m.path, path)
		}
		if err := m.load(path); err != nil {
			m.pathErr = err
			return m, nil
		}
		m.mode = modeBrowse
		m.input.Blur()
		m.input.Reset()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	var s strings.Builder

	s.WriteString(style.TitleStyle.Render("Audio file") + "  " + style.HelpStyle.Render(m.helpView()) + "\n")
	if m.mode == modeInput {
		s.WriteString(m.input.View() + "\n")
	} else {
		s.WriteString("Browsing: " + style.HighlightFontStyle.Render(m.path) + "\n")
	}
	if m.pathErr != nil {
		s.WriteString(style.ErrorStyle.Render(m.pathErr.Error()) + "\n")
	}
	s.WriteString("\n")

	if len(m.entries) == 0 {
		s.WriteString(style.HelpStyle.Render("no audio files here") + "\n")
		return s.String()
	}

	nameWidth := 36
	sizeWidth := 10

	start := m.offset
	end := min(start+m.visibleRows(), len(m.entries))
	if start > end {
		start = end
	}
	for i := start; i < end; i++ {
		item := m.entries[i]
		if i == m.cursor {
			s.WriteString(style.CursorStyle.String())
		} else {
			s.WriteString(style.NoCursorStyle.String())
		}

		name := item.name
		size := ""
		if item.isDir {
			name += "/"
			size = "<DIR>"
		} else {
			size = util.FormatSize(item.size)
		}
		nameCell := util.PadRight(name, nameWidth)
		if item.isDir {
			nameCell = style.DirStyle.Render(nameCell)
		} else {
			nameCell = style.FileStyle.Render(nameCell)
		}
		s.WriteString(nameCell + " " + util.PadRight(size, sizeWidth) + "\n")
	}

	if len(m.entries) > m.visibleRows() {
		s.WriteString(style.HelpStyle.Render(fmt.Sprintf("... %d/%d ...", m.cursor+1, len(m.entries))) + "\n")
	}
	return s.String()
}

func (m Model) helpView() string {
	return fmt.Sprintf("%s pick, %s path, %s/%s page",
		m.keys.Pick.Help().Key, m.keys.ToggleInput.Help().Key,
		m.keys.PageUp.Help().Key, m.keys.PageDown.Help().Key)
}

func (m Model) visibleRows() int {
	rows := m.height - 5
	if rows < 1 {
		rows = 8
	}
	return rows
}
