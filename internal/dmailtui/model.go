// Package dmailtui is the terminal UI over a dmail.Store.
package dmailtui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tOgg1/dmail/internal/dmail"
)

const (
	errorBuffer  = 8
	liveInterval = time.Second
)

// Config configures a Model.
type Config struct {
	// SelfID labels outgoing messages in the timeline.
	SelfID string
	// Theme is a palette name; empty means default.
	Theme string
	// ShowTimestamps prefixes timeline lines with the message time.
	ShowTimestamps bool
	// InitialPeer, when set, is selected after the first directory load.
	InitialPeer string
	// OnSelect is called after a peer is selected from the list.
	OnSelect func(dmail.Peer)
	// Connected reports the live feed state. Nil hides the indicator.
	Connected func() bool
}

// Model is the bubbletea model. Build it with NewModel, pass Reporter() to
// dmail.New, then call Attach with the resulting Store.
type Model struct {
	ctx    context.Context
	store  *dmail.Store
	cfg    Config
	styles styles

	errs chan error

	width  int
	height int
	cursor int

	composing bool
	draft     string
	status    string
	statusErr bool

	pendingInitial string
}

type changeMsg struct{}

type liveTickMsg struct{}

type reportedErrMsg struct {
	err error
}

type opDoneMsg struct {
	op  string
	err error
}

// NewModel validates cfg.
func NewModel(ctx context.Context, cfg Config) (*Model, error) {
	palette, err := paletteFor(strings.TrimSpace(cfg.Theme))
	if err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return &Model{
		ctx:            ctx,
		cfg:            cfg,
		styles:         newStyles(palette),
		errs:           make(chan error, errorBuffer),
		pendingInitial: strings.TrimSpace(cfg.InitialPeer),
	}, nil
}

// Reporter routes store errors into the status line.
func (m *Model) Reporter() dmail.Reporter {
	return dmail.ReporterFunc(func(err error) {
		select {
		case m.errs <- err:
		default:
		}
	})
}

// Attach binds the store the model renders.
func (m *Model) Attach(store *dmail.Store) {
	m.store = store
}

// Run starts the program in the alternate screen and blocks until it exits.
func Run(ctx context.Context, m *Model) error {
	program := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := program.Run()
	return err
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.loadPeersCmd(), m.waitForChange(), m.waitForError(), m.liveTick())
}

// liveTick re-renders periodically so the live indicator follows reconnects.
func (m *Model) liveTick() tea.Cmd {
	if m.cfg.Connected == nil {
		return nil
	}
	return tea.Tick(liveInterval, func(time.Time) tea.Msg {
		return liveTickMsg{}
	})
}

func (m *Model) waitForChange() tea.Cmd {
	if m.store == nil {
		return nil
	}
	changes := m.store.Changes()
	return func() tea.Msg {
		<-changes
		return changeMsg{}
	}
}

func (m *Model) waitForError() tea.Cmd {
	errs := m.errs
	return func() tea.Msg {
		return reportedErrMsg{err: <-errs}
	}
}

func (m *Model) loadPeersCmd() tea.Cmd {
	store, ctx := m.store, m.ctx
	if store == nil {
		return nil
	}
	return func() tea.Msg {
		return opDoneMsg{op: "peers", err: store.LoadPeers(ctx)}
	}
}

func (m *Model) loadTimelineCmd(peerID string) tea.Cmd {
	store, ctx := m.store, m.ctx
	return func() tea.Msg {
		return opDoneMsg{op: "timeline", err: store.LoadTimeline(ctx, peerID)}
	}
}

func (m *Model) sendCmd(text string) tea.Cmd {
	store, ctx := m.store, m.ctx
	return func() tea.Msg {
		_, err := store.Send(ctx, dmail.SendRequest{Text: text})
		return opDoneMsg{op: "send", err: err}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.height = typed.Height
		return m, nil
	case changeMsg:
		m.clampCursor()
		return m, m.waitForChange()
	case liveTickMsg:
		return m, m.liveTick()
	case reportedErrMsg:
		if typed.err != nil {
			m.setError(typed.err)
		}
		return m, m.waitForError()
	case opDoneMsg:
		return m, m.handleOpDone(typed)
	case tea.KeyMsg:
		if typed.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.composing {
			return m, m.handleComposeKey(typed)
		}
		return m, m.handleListKey(typed)
	}
	return m, nil
}

func (m *Model) handleOpDone(msg opDoneMsg) tea.Cmd {
	if msg.err != nil {
		// Transport errors already arrive through the reporter.
		var te *dmail.TransportError
		if !errors.As(msg.err, &te) {
			m.setError(msg.err)
		}
		return nil
	}
	switch msg.op {
	case "peers":
		m.setStatus("peers loaded")
		if m.pendingInitial != "" {
			id := m.pendingInitial
			m.pendingInitial = ""
			if peer, ok := m.store.Peer(id); ok {
				m.cursor = m.indexOf(id)
				return m.selectPeer(peer)
			}
		}
	case "send":
		m.setStatus("sent")
	}
	return nil
}

func (m *Model) handleListKey(msg tea.KeyMsg) tea.Cmd {
	if m.store == nil {
		if msg.String() == "q" {
			return tea.Quit
		}
		return nil
	}
	peers := m.store.Peers()
	switch msg.String() {
	case "q":
		return tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(peers)-1 {
			m.cursor++
		}
	case "enter":
		if m.cursor >= 0 && m.cursor < len(peers) {
			return m.selectPeer(peers[m.cursor])
		}
	case "i":
		if _, ok := m.store.Selected(); ok {
			m.composing = true
		} else {
			m.setError(dmail.ErrNoSelection)
		}
	case "esc":
		m.store.SelectPeer(nil)
		m.setStatus("")
	case "r":
		m.setStatus("reloading peers")
		return m.loadPeersCmd()
	case "x":
		m.setStatus(fmt.Sprintf("pruned %d unread entries", m.store.PruneUnread()))
	}
	return nil
}

func (m *Model) selectPeer(peer dmail.Peer) tea.Cmd {
	m.store.SelectPeer(&peer)
	if m.cfg.OnSelect != nil {
		m.cfg.OnSelect(peer)
	}
	m.setStatus("")
	return m.loadTimelineCmd(peer.ID)
}

func (m *Model) handleComposeKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "esc":
		m.composing = false
		return nil
	case "enter":
		text := strings.TrimSpace(m.draft)
		if text == "" {
			return nil
		}
		m.draft = ""
		m.setStatus("sending")
		return m.sendCmd(text)
	case "backspace", "ctrl+h":
		m.deleteRune()
		return nil
	}
	if msg.Type == tea.KeyRunes && len(msg.Runes) > 0 {
		m.draft += string(msg.Runes)
	} else if msg.Type == tea.KeySpace {
		m.draft += " "
	}
	return nil
}

func (m *Model) deleteRune() {
	runes := []rune(m.draft)
	if len(runes) == 0 {
		return
	}
	m.draft = string(runes[:len(runes)-1])
}

func (m *Model) clampCursor() {
	if m.store == nil {
		return
	}
	n := len(m.store.Peers())
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m *Model) indexOf(peerID string) int {
	for i, p := range m.store.Peers() {
		if p.ID == peerID {
			return i
		}
	}
	return m.cursor
}

func (m *Model) setStatus(s string) {
	m.status = s
	m.statusErr = false
}

func (m *Model) setError(err error) {
	m.status = err.Error()
	m.statusErr = true
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "--:--"
	}
	return t.Local().Format("15:04")
}
