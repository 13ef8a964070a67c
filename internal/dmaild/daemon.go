// Package dmaild is the dmail reference server: REST directory, history and
// send endpoints over SQLite plus websocket push of new messages.
package dmaild

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tOgg1/dmail/internal/config"
	"github.com/tOgg1/dmail/internal/db"
	"github.com/tOgg1/dmail/internal/push"
)

// DefaultAddr is used when neither options nor config name a listen address.
const DefaultAddr = "127.0.0.1:5001"

const shutdownTimeout = 5 * time.Second

// Options overrides config for tests and embedding.
type Options struct {
	// Addr overrides serve.addr.
	Addr string
	// DatabasePath overrides serve.database. ":memory:" keeps everything in process.
	DatabasePath string
}

// Daemon serves the dmail API.
type Daemon struct {
	cfg      *config.Config
	logger   zerolog.Logger
	addr     string
	db       *db.DB
	peers    *db.PeerRepository
	messages *db.MessageRepository
	hub      *push.Hub

	mu       sync.Mutex
	listener net.Listener
}

// New opens the database and wires repositories and the push hub.
func New(cfg *config.Config, logger zerolog.Logger, opts Options) (*Daemon, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	addr := strings.TrimSpace(opts.Addr)
	if addr == "" {
		addr = strings.TrimSpace(cfg.Serve.Addr)
	}
	if addr == "" {
		addr = DefaultAddr
	}

	dbPath := strings.TrimSpace(opts.DatabasePath)
	if dbPath == "" {
		dbPath = cfg.DatabasePath()
	}
	database, err := db.Open(context.Background(), db.Config{Path: dbPath})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		addr:     addr,
		db:       database,
		peers:    db.NewPeerRepository(database),
		messages: db.NewMessageRepository(database),
	}
	d.hub = push.NewHub(push.WithObserver(func(e push.Event) {
		d.logger.Debug().
			Str("event", e.Name).
			Str("sender", e.Message.SenderID).
			Str("receiver", e.Message.ReceiverID).
			Msg("publishing")
	}))
	return d, nil
}

func (d *Daemon) bindAddr() string {
	return d.addr
}

// Hub exposes the push hub so in-process clients can subscribe.
func (d *Daemon) Hub() *push.Hub {
	return d.hub
}

// Peers exposes the peer repository.
func (d *Daemon) Peers() *db.PeerRepository {
	return d.peers
}

// Addr returns the bound address once Run or Serve has started, else the
// configured one.
func (d *Daemon) Addr() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.listener != nil {
		return d.listener.Addr().String()
	}
	return d.addr
}

// Run listens on the configured address and serves until ctx is canceled.
func (d *Daemon) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", d.bindAddr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", d.bindAddr(), err)
	}
	return d.Serve(ctx, ln)
}

// Serve serves on ln until ctx is canceled.
func (d *Daemon) Serve(ctx context.Context, ln net.Listener) error {
	d.mu.Lock()
	d.listener = ln
	d.mu.Unlock()

	srv := &http.Server{
		Handler:           d.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	d.logger.Info().Str("addr", ln.Addr().String()).Msg("dmaild listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	d.hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		d.logger.Warn().Err(err).Msg("shutdown")
		_ = srv.Close()
	}
	d.logger.Info().Msg("dmaild stopped")
	return nil
}

// Close releases the database.
func (d *Daemon) Close() error {
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}
