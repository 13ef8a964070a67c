// Package notify implements the terminal notification surface.
package notify

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tOgg1/dmail/internal/dmail"
	"github.com/tOgg1/dmail/internal/logging"
)

const bell = "\a"

// Terminal writes notifications as single lines to a writer. It satisfies
// dmail.Notifier.
type Terminal struct {
	mu         sync.Mutex
	out        io.Writer
	permission dmail.Permission
	bell       bool
	logger     zerolog.Logger
	sent       int
}

var _ dmail.Notifier = (*Terminal)(nil)

// Option configures a Terminal.
type Option func(*Terminal)

// WithBell rings the terminal bell before each notification.
func WithBell(enabled bool) Option {
	return func(t *Terminal) {
		t.bell = enabled
	}
}

// NewTerminal returns a notifier writing to out. A nil out discards output
// but still logs.
func NewTerminal(out io.Writer, permission dmail.Permission, opts ...Option) *Terminal {
	if out == nil {
		out = io.Discard
	}
	t := &Terminal{
		out:        out,
		permission: permission,
		logger:     logging.Component("notify"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Permission returns the current grant state.
func (t *Terminal) Permission() dmail.Permission {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.permission
}

// SetPermission changes the grant state.
func (t *Terminal) SetPermission(p dmail.Permission) {
	t.mu.Lock()
	t.permission = p
	t.mu.Unlock()
	t.logger.Debug().Str("permission", string(p)).Msg("notification permission changed")
}

// Request resolves an undetermined permission to granted. Explicit grants
// and denials are kept.
func (t *Terminal) Request() dmail.Permission {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.permission == dmail.PermissionUndetermined {
		t.permission = dmail.PermissionGranted
	}
	return t.permission
}

// Notify renders n. It does nothing unless permission is granted.
func (t *Terminal) Notify(n dmail.Notification) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.permission != dmail.PermissionGranted {
		t.logger.Debug().Str("permission", string(t.permission)).Msg("notification suppressed")
		return
	}

	var b strings.Builder
	if t.bell {
		b.WriteString(bell)
	}
	fmt.Fprintf(&b, "[%s] %s\n", n.Title, singleLine(n.Body))
	if _, err := io.WriteString(t.out, b.String()); err != nil {
		t.logger.Warn().Err(err).Msg("write notification")
		return
	}
	t.sent++
	t.logger.Info().Str("title", n.Title).Str("icon", n.Icon).Msg("notification shown")
}

// Sent returns how many notifications were written.
func (t *Terminal) Sent() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sent
}

func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
