package cli

import (
	"context"
	"io"
	"strings"

	"github.com/tOgg1/dmail/internal/api"
	"github.com/tOgg1/dmail/internal/config"
	"github.com/tOgg1/dmail/internal/dmail"
	"github.com/tOgg1/dmail/internal/logging"
	"github.com/tOgg1/dmail/internal/notify"
	"github.com/tOgg1/dmail/internal/push"
)

// session bundles the collaborators of one dmail.Store.
type session struct {
	cfg      *config.Config
	client   *api.Client
	socket   *push.Socket
	notifier *notify.Terminal
	store    *dmail.Store
}

type sessionOptions struct {
	// live dials the push socket.
	live bool
	// notifyOut receives notifications; nil discards them.
	notifyOut io.Writer
	reporter  dmail.Reporter
}

func newSession(cfg *config.Config, opts sessionOptions) (*session, error) {
	userID := strings.TrimSpace(cfg.Session.UserID)
	client, err := api.New(api.Config{
		BaseURL: cfg.Server.BaseURL,
		Token:   cfg.Server.Token,
		UserID:  userID,
		Timeout: cfg.Server.Timeout,
	})
	if err != nil {
		return nil, Exitf(ExitCodeUsage, "%v", err)
	}

	s := &session{cfg: cfg, client: client}
	s.notifier = notify.NewTerminal(opts.notifyOut, dmail.ParsePermission(cfg.Notifications.Permission),
		notify.WithBell(cfg.Notifications.Bell))

	storeOpts := []dmail.Option{
		dmail.WithNotifier(s.notifier),
		dmail.WithLogger(logging.Component("store")),
	}
	if opts.reporter != nil {
		storeOpts = append(storeOpts, dmail.WithReporter(opts.reporter))
	}
	if cfg.TUI.StaleGuard {
		storeOpts = append(storeOpts, dmail.WithStaleTimelineGuard())
	}

	var channel dmail.PushChannel
	if opts.live {
		if userID == "" {
			return nil, Exitf(ExitCodeUsage, "session.user_id is required for live updates (set --user or DMAIL_SESSION_USER_ID)")
		}
		socket, err := push.NewSocket(push.SocketConfig{
			URL:    cfg.SocketEndpoint(),
			UserID: userID,
			Token:  cfg.Server.Token,
		})
		if err != nil {
			return nil, Exitf(ExitCodeUsage, "%v", err)
		}
		s.socket = socket
		channel = socket
	}

	s.store = dmail.New(client, channel, storeOpts...)
	return s, nil
}

// start subscribes the store and dials the socket.
func (s *session) start(ctx context.Context) {
	if s.socket == nil {
		return
	}
	s.store.Subscribe()
	s.socket.Start(ctx)
}

// connected reports whether the push socket currently has a live connection.
func (s *session) connected() bool {
	return s != nil && s.socket != nil && s.socket.Connected()
}

func (s *session) Close() error {
	s.store.Unsubscribe()
	if s.socket != nil {
		return s.socket.Close()
	}
	return nil
}
