package tui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/hako/durafmt"

	"go-smfplay/debug"
	"go-smfplay/midi"
	"go-smfplay/sequencer"
	"go-smfplay/smf"
	"go-smfplay/theme"
	"go-smfplay/timing"
	"go-smfplay/widgets"
)

const refreshRate = 50 * time.Millisecond

var shortUnits, _ = durafmt.DefaultUnitsCoder.Decode("y:y,wk:wk,d:d,h:h,m:m,s:s,ms:ms,us:us")

// Player is everything the screen drives
type Player struct {
	Timeline *smf.Timeline
	Tempo    *timing.TempoMap
	FileSize int64

	Engine *sequencer.Engine
	Sink   sequencer.Sink
	Notes  *sequencer.NoteTracker
	Filter *sequencer.ChannelFilter

	// Silence is called after every stop to release hanging notes
	Silence func()
	// Output names where sound goes, shown in the header
	Output string
}

type Model struct {
	player  *Player
	Theme   *theme.Theme
	ports   *midi.PortManager
	session int
	playing bool
	started time.Time
	stopped time.Duration // position when stopped
	status  string
	width   int
}

type tickMsg time.Time

// finishedMsg reports that a session's stream ran out
type finishedMsg struct{ session int }

type PortEventMsg midi.PortEvent

func NewModel(p *Player, ports *midi.PortManager, th *theme.Theme) Model {
	return Model{player: p, Theme: th, ports: ports, width: 80}
}

func tick() tea.Cmd {
	return tea.Tick(refreshRate, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitFinished(session int, done <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-done
		return finishedMsg{session: session}
	}
}

func ListenForPorts(ports *midi.PortManager) tea.Cmd {
	if ports == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-ports.Events()
		if !ok {
			return nil
		}
		return PortEventMsg(ev)
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(tick(), ListenForPorts(m.ports))
}

// start plays from the beginning
func (m *Model) start() tea.Cmd {
	p := m.player
	p.Engine.Stop()
	if p.Silence != nil {
		p.Silence()
	}
	p.Notes.Reset()

	m.session++
	done := p.Engine.Start(p.Tempo, p.Sink, sequencer.Merge(p.Timeline.Tracks))
	m.playing = true
	m.started = time.Now()
	m.stopped = 0
	debug.Log("tui", "play session %d", m.session)
	return waitFinished(m.session, done)
}

func (m *Model) stop() {
	p := m.player
	p.Engine.Stop()
	if p.Silence != nil {
		p.Silence()
	}
	if m.playing {
		m.stopped = m.elapsed()
	}
	m.playing = false
}

func (m Model) elapsed() time.Duration {
	if !m.playing {
		return m.stopped
	}
	return time.Since(m.started)
}

func (m Model) total() time.Duration {
	return m.player.Tempo.Duration(m.player.Timeline.EndTick())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.stop()
			return m, tea.Quit

		case " ":
			if m.playing {
				m.stop()
				return m, nil
			}
			return m, m.start()

		case "r":
			return m, m.start()

		case "1", "2", "3", "4", "5", "6", "7", "8", "9", "0":
			ch := uint8(msg.String()[0] - '1')
			if msg.String() == "0" {
				ch = 9
			}
			if m.player.Filter.Toggle(ch) {
				if m.player.Silence != nil {
					m.player.Silence()
				}
				m.status = fmt.Sprintf("channel %d muted", ch+1)
			} else {
				m.status = fmt.Sprintf("channel %d unmuted", ch+1)
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case tickMsg:
		return m, tick()

	case finishedMsg:
		if msg.session == m.session && m.playing {
			// keep the clock running until the last note's time has passed
			if rest := m.total() - m.elapsed(); rest > 0 {
				return m, tea.Tick(rest, func(time.Time) tea.Msg { return msg })
			}
			m.stop()
			m.stopped = m.total()
			m.status = "finished"
		}

	case PortEventMsg:
		m.status = fmt.Sprintf("port %s: %s", midi.PortEvent(msg).Type, msg.Name)
		return m, ListenForPorts(m.ports)
	}

	return m, nil
}

func (m Model) channels() [16]widgets.Channel {
	var out [16]widgets.Channel
	for _, ch := range m.player.Timeline.Channels {
		out[ch].Used = true
	}
	for i := range out {
		out[i].Muted = m.player.Filter.Muted(uint8(i))
		out[i].Level = float64(m.player.Notes.Velocity(uint8(i))) / 127
	}
	return out
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "0s"
	}
	return durafmt.Parse(d.Truncate(time.Second)).LimitFirstN(2).Format(shortUnits)
}

func (m Model) View() string {
	p := m.player
	tl := p.Timeline

	headerStyle := lipgloss.NewStyle().Foreground(m.Theme.Accent()).Bold(true)
	dimStyle := lipgloss.NewStyle().Foreground(m.Theme.Muted())
	textStyle := lipgloss.NewStyle().Foreground(m.Theme.FG())

	elapsed := min(m.elapsed(), m.total())
	tick := p.Tempo.TickAt(elapsed)

	state := m.Theme.Symbols.Stopped
	if m.playing {
		state = m.Theme.Symbols.Playing
	}
	header := headerStyle.Render(fmt.Sprintf("%c %s", state, filepath.Base(tl.Source)))
	info := dimStyle.Render(fmt.Sprintf("%s  %d tracks  %s  %s  %.1f bpm  → %s",
		tl.Format, len(tl.Tracks), tl.Encoding, humanize.Bytes(uint64(p.FileSize)), p.Tempo.BPMAt(tick), p.Output))

	frac := 0.0
	if total := m.total(); total > 0 {
		frac = float64(elapsed) / float64(total)
	}
	barWidth := max(m.width-24, 10)
	progress := fmt.Sprintf("%s %s / %s",
		widgets.RenderProgress(m.Theme, barWidth, frac),
		formatDuration(elapsed), formatDuration(m.total()))

	help := widgets.RenderKeyHelp([]widgets.KeySection{{
		Keys: []widgets.KeyBinding{
			{Key: "space", Desc: "play / stop"},
			{Key: "r", Desc: "restart"},
			{Key: "1-9, 0", Desc: "mute channel 1-10"},
			{Key: "q", Desc: "quit"},
		},
	}})

	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(header)
	out.WriteString("\n")
	out.WriteString(info)
	out.WriteString("\n\n")
	out.WriteString(progress)
	out.WriteString("\n\n")
	out.WriteString(widgets.RenderChannels(m.Theme, m.channels()))
	out.WriteString("\n\n")
	if text := p.Notes.Text(); text != "" {
		out.WriteString(textStyle.Render(text))
		out.WriteString("\n\n")
	}
	out.WriteString(dimStyle.Render(help))
	if m.status != "" {
		out.WriteString("\n\n")
		out.WriteString(dimStyle.Render(m.status))
	}
	out.WriteString("\n")
	return out.String()
}
