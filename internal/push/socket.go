package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/tOgg1/dmail/internal/dmail"
	"github.com/tOgg1/dmail/internal/logging"
)

const (
	defaultReconnectInterval = 2 * time.Second
	readLimit                = 8 << 20
)

// Frame is the websocket wire envelope.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// EncodeFrame wraps m in a Frame for event.
func EncodeFrame(event string, m dmail.Message) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Data: data})
}

// SocketConfig configures a Socket.
type SocketConfig struct {
	// URL is the websocket endpoint, e.g. ws://localhost:5001/socket.
	URL string
	// UserID identifies the local user; it is sent as ?userId=.
	UserID string
	// Token is sent as a bearer token when set.
	Token string
	// ReconnectInterval is the pause between dial attempts. Zero means 2s.
	ReconnectInterval time.Duration
}

// Socket is a dmail.PushChannel fed by a websocket connection. Handlers run on
// the read goroutine, one frame at a time.
type Socket struct {
	endpoint  string
	selfID    string
	token     string
	reconnect time.Duration
	logger    zerolog.Logger

	mu        sync.RWMutex
	handlers  map[string]func(dmail.Message)
	connected bool

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

var _ dmail.PushChannel = (*Socket)(nil)

// NewSocket validates cfg. It does not dial; call Start or Run.
func NewSocket(cfg SocketConfig) (*Socket, error) {
	u, err := url.Parse(strings.TrimSpace(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("push: parse socket url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return nil, fmt.Errorf("push: unsupported scheme %q", u.Scheme)
	}
	if cfg.UserID != "" {
		q := u.Query()
		q.Set("userId", cfg.UserID)
		u.RawQuery = q.Encode()
	}
	reconnect := cfg.ReconnectInterval
	if reconnect <= 0 {
		reconnect = defaultReconnectInterval
	}
	return &Socket{
		endpoint:  u.String(),
		selfID:    cfg.UserID,
		token:     strings.TrimSpace(cfg.Token),
		reconnect: reconnect,
		logger:    logging.Component("push"),
		handlers:  make(map[string]func(dmail.Message)),
	}, nil
}

// On replaces any handler registered for event.
func (s *Socket) On(event string, handler func(dmail.Message)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[event] = handler
}

// Off removes the handler for event. Unknown events are ignored.
func (s *Socket) Off(event string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handlers, event)
}

// SelfID returns the local user's identifier.
func (s *Socket) SelfID() string {
	return s.selfID
}

// Connected reports whether a websocket connection is currently open.
func (s *Socket) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// Start runs the socket in the background until Close or ctx is done.
func (s *Socket) Start(ctx context.Context) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel, s.done = cancel, done
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()
}

// Close stops a socket started with Start and waits for it to exit.
func (s *Socket) Close() error {
	s.runMu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.runMu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

// Run dials, reads frames and redials after failures until ctx is done.
func (s *Socket) Run(ctx context.Context) error {
	for {
		err := s.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn().Err(err).Dur("retry_in", s.reconnect).Msg("push connection lost")

		timer := time.NewTimer(s.reconnect)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (s *Socket) session(ctx context.Context) error {
	var header http.Header
	if s.token != "" {
		header = http.Header{"Authorization": []string{"Bearer " + s.token}}
	}
	conn, _, err := websocket.Dial(ctx, s.endpoint, &websocket.DialOptions{ //nolint:bodyclose // websocket.Dial closes the response body internally
		HTTPHeader: header,
	})
	if err != nil {
		return fmt.Errorf("dialing websocket: %w", err)
	}
	conn.SetReadLimit(readLimit)
	defer conn.Close(websocket.StatusNormalClosure, "")

	s.setConnected(true)
	defer s.setConnected(false)
	s.logger.Info().Str("url", logging.RedactURL(s.endpoint)).Msg("push connected")

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return errors.New("server closed connection")
			}
			return err
		}
		if typ != websocket.MessageText {
			continue
		}
		s.dispatch(data)
	}
}

func (s *Socket) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}

func (s *Socket) dispatch(data []byte) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		s.logger.Warn().Err(err).Msg("dropping malformed frame")
		return
	}

	s.mu.RLock()
	handler := s.handlers[frame.Event]
	s.mu.RUnlock()
	if handler == nil {
		s.logger.Debug().Str("event", frame.Event).Msg("no handler for event")
		return
	}

	var m dmail.Message
	if err := json.Unmarshal(frame.Data, &m); err != nil {
		s.logger.Warn().Err(err).Str("event", frame.Event).Msg("dropping undecodable payload")
		return
	}
	handler(m)
}
