package dmaild

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/tOgg1/dmail/internal/db"
	"github.com/tOgg1/dmail/internal/dmail"
	"github.com/tOgg1/dmail/internal/push"
)

const (
	clientSendBuffer = 64
	writeTimeout     = 5 * time.Second
)

var socketSeq atomic.Uint64

// socketClient is one websocket connection. Frames queue on send and are
// written by writePump; a full queue drops frames for that client.
type socketClient struct {
	id     string
	userID string
	conn   *websocket.Conn
	send   chan []byte
	logger zerolog.Logger
}

func (d *Daemon) handleSocket(w http.ResponseWriter, r *http.Request) {
	userID := actingUser(r)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "Unauthorized - No Token Provided")
		return
	}
	if _, err := d.peers.Get(r.Context(), userID); err != nil {
		if errors.Is(err, db.ErrPeerNotFound) {
			writeError(w, http.StatusUnauthorized, "Unauthorized - User not found")
			return
		}
		d.internalError(w, r, err)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		d.logger.Warn().Err(err).Msg("websocket accept failed")
		return
	}

	c := &socketClient{
		id:     fmt.Sprintf("socket-%d", socketSeq.Add(1)),
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, clientSendBuffer),
	}
	c.logger = d.logger.With().Str("socket", c.id).Str("user_id", userID).Logger()

	filter := push.Filter{Names: []string{dmail.EventNewMessage}, Recipient: userID}
	if err := d.hub.Subscribe(c.id, filter, c.deliver); err != nil {
		_ = conn.Close(websocket.StatusInternalError, "subscribe failed")
		return
	}
	defer func() { _ = d.hub.Unsubscribe(c.id) }()

	c.logger.Info().Msg("socket connected")
	c.run(r.Context())
	c.logger.Info().Msg("socket disconnected")
}

func (c *socketClient) deliver(e push.Event) {
	frame, err := push.EncodeFrame(e.Name, e.Message)
	if err != nil {
		c.logger.Warn().Err(err).Msg("encode frame")
		return
	}
	select {
	case c.send <- frame:
	default:
		c.logger.Warn().Str("message_id", e.Message.ID).Msg("dropping frame for slow client")
	}
}

func (c *socketClient) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go c.writePump(ctx)
	c.readPump(ctx)
}

// readPump discards inbound frames; it exists to notice the peer closing.
func (c *socketClient) readPump(ctx context.Context) {
	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			return
		}
	}
}

func (c *socketClient) writePump(ctx context.Context) {
	defer func() { _ = c.conn.Close(websocket.StatusNormalClosure, "") }()
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Write(wctx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
