package dmailtui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/tOgg1/dmail/internal/dmail"
)

const (
	defaultWidth  = 80
	defaultHeight = 24
	peerPaneWidth = 28
)

func (m *Model) View() string {
	if m.store == nil {
		return "no store attached"
	}
	width, height := m.width, m.height
	if width <= 0 {
		width = defaultWidth
	}
	if height <= 0 {
		height = defaultHeight
	}

	footer := m.renderFooter(width)
	bodyHeight := height - lipgloss.Height(footer) - 2
	if bodyHeight < 3 {
		bodyHeight = 3
	}

	left := m.styles.pane.Width(peerPaneWidth).Height(bodyHeight).Render(m.renderPeers(bodyHeight))
	rightWidth := width - lipgloss.Width(left) - 2
	if rightWidth < 10 {
		rightWidth = 10
	}
	right := m.styles.pane.Width(rightWidth).Height(bodyHeight).Render(m.renderTimeline(rightWidth, bodyHeight))

	return lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.JoinHorizontal(lipgloss.Top, left, right),
		footer,
	)
}

func (m *Model) renderPeers(height int) string {
	var b strings.Builder
	title := "Peers"
	if total := m.store.UnreadTotal(); total > 0 {
		title += fmt.Sprintf(" (%d unread)", total)
	}
	if m.store.PeersLoading() {
		title += " …"
	}
	b.WriteString(m.styles.title.Render(title))
	b.WriteString("\n")

	peers := m.store.Peers()
	if len(peers) == 0 {
		b.WriteString(m.styles.muted.Render("no conversations"))
		return b.String()
	}

	selected, hasSelected := m.store.Selected()
	start := 0
	if visible := height - 1; visible > 0 && m.cursor >= visible {
		start = m.cursor - visible + 1
	}
	for i := start; i < len(peers); i++ {
		p := peers[i]
		marker := "  "
		if i == m.cursor {
			marker = "> "
		}
		name := truncate(p.FullName, peerPaneWidth-8)
		if hasSelected && p.ID == selected.ID {
			name = m.styles.selected.Render(name)
		}
		line := marker + name
		if n := m.store.UnreadCount(p.ID); n > 0 {
			line += " " + m.styles.badge.Render(fmt.Sprintf("(%d)", n))
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *Model) renderTimeline(width, height int) string {
	peer, ok := m.store.Selected()
	if !ok {
		return m.styles.muted.Render("select a conversation with enter")
	}

	title := peer.FullName
	if m.store.TimelineLoading() {
		title += " (loading)"
	}
	lines := []string{m.styles.title.Render(title)}

	messages := m.store.Timeline()
	if len(messages) == 0 && !m.store.TimelineLoading() {
		lines = append(lines, m.styles.muted.Render("no messages yet"))
	}
	for _, msg := range messages {
		lines = append(lines, m.renderMessage(peer, msg, width))
	}

	// Keep the newest messages in view.
	if len(lines) > height {
		lines = append(lines[:1], lines[len(lines)-height+1:]...)
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderMessage(peer dmail.Peer, msg dmail.Message, width int) string {
	var author string
	if msg.SenderID == m.cfg.SelfID || (m.cfg.SelfID == "" && msg.SenderID != peer.ID) {
		author = m.styles.own.Render("You")
	} else {
		author = m.styles.other.Render(peer.FullName)
	}

	body := msg.Text
	if msg.Image != "" {
		if body != "" {
			body += " "
		}
		body += "[image]"
	}

	line := author + ": " + truncate(body, width)
	if m.cfg.ShowTimestamps {
		line = m.styles.muted.Render(formatTime(msg.CreatedAt)) + " " + line
	}
	return line
}

func (m *Model) renderFooter(width int) string {
	var compose string
	switch {
	case m.composing:
		prompt := "> "
		if m.store.Sending() {
			prompt = "… "
		}
		compose = prompt + m.draft + "█"
	default:
		compose = m.styles.muted.Render("↑/↓ move · enter open · i write · esc close · r reload · x prune · q quit")
	}

	status := m.status
	if m.statusErr {
		status = m.styles.errText.Render(status)
	} else if status != "" {
		status = m.styles.muted.Render(status)
	}
	if indicator := m.liveIndicator(); indicator != "" {
		status = strings.TrimSpace(indicator + " " + status)
	}
	return lipgloss.NewStyle().Width(width).Render(compose) + "\n" + status
}

func (m *Model) liveIndicator() string {
	if m.cfg.Connected == nil {
		return ""
	}
	if m.cfg.Connected() {
		return m.styles.badge.Render("● live")
	}
	return m.styles.muted.Render("○ offline")
}

// truncate clips s to max terminal cells.
func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	return runewidth.Truncate(s, max, "…")
}
