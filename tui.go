package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"murmur/clipboard"
	"murmur/engine"
	"murmur/session"
	"murmur/timer"
	"murmur/transcriber"
)

const (
	listWidth   = 34
	flashFor    = 2 * time.Second
	previewRune = 28
)

// Controller is the part of the engine the TUI drives.
type Controller interface {
	Toggle(ctx context.Context) error
	CreateGroup() string
	Select(id string) bool
	Snapshot() engine.Snapshot
	Changes() <-chan struct{}
}

type tuiInfo struct {
	device     string
	model      string
	language   string
	credential bool
}

// TUI message types
type changedMsg struct{}
type toggledMsg struct{ err error }
type clearFlashMsg struct{ seq int }

type tuiModel struct {
	ctx  context.Context
	eng  Controller
	info tuiInfo

	snap          engine.Snapshot
	width, height int
	flash         string
	flashErr      bool
	flashSeq      int
	busy          bool
}

var (
	recStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	standbyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	boldHelp     = lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	textStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	selStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("231")).Background(lipgloss.Color("238"))
	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("246"))
)

func NewTUIProgram(ctx context.Context, eng Controller, info tuiInfo) *tea.Program {
	m := newTUIModel(ctx, eng, info)
	return tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
}

func newTUIModel(ctx context.Context, eng Controller, info tuiInfo) tuiModel {
	return tuiModel{ctx: ctx, eng: eng, info: info, snap: eng.Snapshot()}
}

func waitChange(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-ch
		return changedMsg{}
	}
}

func (m tuiModel) Init() tea.Cmd {
	return waitChange(m.eng.Changes())
}

// Arm can block on the microphone permission prompt, so it runs as a Cmd.
func (m tuiModel) toggle() tea.Cmd {
	eng, ctx := m.eng, m.ctx
	return func() tea.Msg {
		return toggledMsg{err: eng.Toggle(ctx)}
	}
}

func (m tuiModel) setFlash(text string, isErr bool) (tuiModel, tea.Cmd) {
	m.flashSeq++
	m.flash, m.flashErr = text, isErr
	seq := m.flashSeq
	return m, tea.Tick(flashFor, func(time.Time) tea.Msg { return clearFlashMsg{seq: seq} })
}

func (m tuiModel) selectedIndex() int {
	if m.snap.Selected == nil {
		return -1
	}
	for i, g := range m.snap.Groups {
		if g.ID == m.snap.Selected.ID {
			return i
		}
	}
	return -1
}

func (m tuiModel) move(delta int) tuiModel {
	n := len(m.snap.Groups)
	if n == 0 {
		return m
	}
	i := m.selectedIndex() + delta
	i = max(0, min(n-1, i))
	if m.eng.Select(m.snap.Groups[i].ID) {
		m.snap = m.eng.Snapshot()
	}
	return m
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case changedMsg:
		m.snap = m.eng.Snapshot()
		return m, waitChange(m.eng.Changes())

	case toggledMsg:
		m.busy = false
		m.snap = m.eng.Snapshot()
		if msg.err != nil {
			return m.setFlash("Error recording: "+msg.err.Error(), true)
		}

	case clearFlashMsg:
		if msg.seq == m.flashSeq {
			m.flash = ""
		}

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case " ", "r":
			if m.busy {
				return m, nil
			}
			m.busy = true
			return m, m.toggle()
		case "n":
			if m.snap.Armed {
				return m.setFlash("stop recording before starting a new session", true)
			}
			m.eng.CreateGroup()
			m.snap = m.eng.Snapshot()
		case "j", "down":
			return m.move(1), nil
		case "k", "up":
			return m.move(-1), nil
		case "c":
			if m.snap.Selected == nil {
				return m, nil
			}
			text, err := clipboard.CopyGroup(*m.snap.Selected)
			switch {
			case err != nil:
				return m.setFlash("copy failed: "+err.Error(), true)
			case text == "":
				return m.setFlash("nothing to copy", false)
			}
			return m.setFlash("✓ copied", false)
		}
	}
	return m, nil
}

func connectionBadge(s transcriber.State, credential bool) string {
	if !credential {
		return warnStyle.Render("● no API key")
	}
	switch s {
	case transcriber.StateOpen:
		return okStyle.Render("● connected")
	case transcriber.StateConnecting:
		return warnStyle.Render("◌ connecting")
	case transcriber.StateErrored:
		return recStyle.Render("● error")
	case transcriber.StateClosing, transcriber.StateClosed:
		return dimStyle.Render("○ disconnected")
	}
	return dimStyle.Render("○ " + s.String())
}

func levelBar(level float64, width int) string {
	n := int(level * 10 * float64(width))
	n = max(0, min(width, n))
	return okStyle.Render(strings.Repeat("▮", n)) + dimStyle.Render(strings.Repeat("▯", width-n))
}

// groupTitle previews the first words of a group, or a placeholder.
func groupTitle(g session.Group) string {
	for _, u := range g.Utterances {
		if t := strings.TrimSpace(u.Text); t != "" {
			r := []rune(t)
			if len(r) > previewRune {
				return string(r[:previewRune-1]) + "…"
			}
			return t
		}
	}
	return "New session"
}

func (m tuiModel) renderList(height int) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Sessions") + "\n\n")
	sel := m.selectedIndex()
	for i, g := range m.snap.Groups {
		if i >= height-2 {
			b.WriteString(dimStyle.Render(fmt.Sprintf("  … %d more", len(m.snap.Groups)-i)) + "\n")
			break
		}
		line := fmt.Sprintf("%-*s %2d", previewRune, groupTitle(g), len(g.Utterances))
		if i == sel {
			b.WriteString(selStyle.Render("› "+line) + "\n")
		} else {
			b.WriteString("  " + line + "\n")
		}
	}
	return b.String()
}

func (m tuiModel) renderStatus() []string {
	var lines []string
	if m.snap.Armed {
		lines = append(lines, recStyle.Render("● REC "+timer.Format(m.snap.Elapsed))+"  "+levelBar(m.snap.Level, 10))
		if m.snap.NoVoice {
			lines = append(lines, warnStyle.Render("⚠ no voice detected"))
		}
	} else {
		lines = append(lines, standbyStyle.Render("○ STANDBY "+timer.Format(m.snap.Elapsed)))
	}
	lines = append(lines, connectionBadge(m.snap.Connection, m.info.credential))
	mode := m.info.model
	if m.info.language != "" {
		mode += " (" + m.info.language + ")"
	}
	lines = append(lines, dimStyle.Render("[linear16 | deepgram "+mode+"]"))
	if m.info.device != "" {
		lines = append(lines, dimStyle.Render(m.info.device))
	}
	return lines
}

func (m tuiModel) renderTranscript(width int) string {
	var b strings.Builder
	g := m.snap.Selected
	if g == nil {
		return dimStyle.Render("No session selected")
	}
	b.WriteString(titleStyle.Render(fmt.Sprintf("Transcript (%d recordings)", len(g.Utterances))) + "\n\n")
	if len(g.Utterances) == 0 {
		b.WriteString(dimStyle.Render("Press space to start recording"))
		return b.String()
	}
	wrapWidth := max(10, width-2)
	for i, u := range g.Utterances {
		text := u.Text
		last := i == len(g.Utterances)-1
		if text == "" {
			if last && m.snap.Armed {
				b.WriteString(dimStyle.Render("listening…") + "\n\n")
			}
			continue
		}
		for _, line := range wrapText(text, wrapWidth) {
			b.WriteString(textStyle.Render(line) + "\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	left := m.renderStatus()
	left = append(left, "")
	left = append(left, strings.Split(m.renderList(m.height-len(left)-4), "\n")...)
	if m.flash != "" {
		style := okStyle
		if m.flashErr {
			style = warnStyle
		}
		left = append(left, style.Render(m.flash))
	}
	left = append(left, "")
	left = append(left, boldHelp.Render("space")+helpStyle.Render(" rec  ")+
		boldHelp.Render("n")+helpStyle.Render(" new  ")+
		boldHelp.Render("j/k")+helpStyle.Render(" select  ")+
		boldHelp.Render("c")+helpStyle.Render(" copy  ")+
		boldHelp.Render("q")+helpStyle.Render(" quit"))
	left = append(left, helpStyle.Render("murmur "+version))

	listPanel := lipgloss.NewStyle().
		Width(listWidth + 6).
		Height(m.height).
		Render(strings.Join(left, "\n"))

	textWidth := max(20, m.width-listWidth-7)
	textPanel := lipgloss.NewStyle().
		Width(textWidth).
		Height(m.height).
		PaddingLeft(1).
		Render(m.renderTranscript(textWidth))

	return lipgloss.JoinHorizontal(lipgloss.Top, listPanel, textPanel)
}

func wrapText(text string, width int) []string {
	if len(text) == 0 {
		return []string{""}
	}
	if width <= 0 {
		width = 1
	}

	var lines []string
	for len(text) > width {
		// Find last space within width
		splitAt := width
		for i := width; i > 0; i-- {
			if text[i] == ' ' {
				splitAt = i
				break
			}
		}
		lines = append(lines, text[:splitAt])
		text = strings.TrimLeft(text[splitAt:], " ")
	}
	if len(text) > 0 {
		lines = append(lines, text)
	}
	return lines
}
