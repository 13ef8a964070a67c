package dmaild

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/tOgg1/dmail/internal/db"
	"github.com/tOgg1/dmail/internal/dmail"
	"github.com/tOgg1/dmail/internal/logging"
	"github.com/tOgg1/dmail/internal/push"
)

const maxBodyBytes = 8 << 20

// Handler returns the HTTP routes.
func (d *Daemon) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/messages/users", d.handlePeers)
	mux.HandleFunc("GET /api/messages/{id}", d.handleConversation)
	mux.HandleFunc("POST /api/messages/send/{id}", d.handleSend)
	mux.HandleFunc("POST /api/users", d.handleCreatePeer)
	mux.HandleFunc("GET /socket", d.handleSocket)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return d.withRequestLogger(mux)
}

// withRequestLogger attaches a logger carrying the method and path to each
// request context.
func (d *Daemon) withRequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := d.logger.With().Str("method", r.Method).Str("path", r.URL.Path).Logger()
		next.ServeHTTP(w, r.WithContext(logging.WithContext(r.Context(), logger)))
	})
}

type errorBody struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Message: message})
}

// actingUser resolves the caller from X-User-ID, a bearer token or the
// userId query parameter, in that order.
func actingUser(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("X-User-ID")); id != "" {
		return id
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		if id := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer ")); id != "" {
			return id
		}
	}
	return strings.TrimSpace(r.URL.Query().Get("userId"))
}

func (d *Daemon) authenticate(w http.ResponseWriter, r *http.Request) (*dmail.Peer, bool) {
	id := actingUser(r)
	if id == "" {
		writeError(w, http.StatusUnauthorized, "Unauthorized - No Token Provided")
		return nil, false
	}
	peer, err := d.peers.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrPeerNotFound) {
			writeError(w, http.StatusUnauthorized, "Unauthorized - User not found")
			return nil, false
		}
		d.internalError(w, r, err)
		return nil, false
	}
	return peer, true
}

func (d *Daemon) internalError(w http.ResponseWriter, r *http.Request, err error) {
	logger := logging.FromContext(r.Context())
	logger.Error().Err(err).Msg("request failed")
	writeError(w, http.StatusInternalServerError, "Internal server error")
}

func (d *Daemon) handlePeers(w http.ResponseWriter, r *http.Request) {
	me, ok := d.authenticate(w, r)
	if !ok {
		return
	}
	peers, err := d.peers.List(r.Context(), me.ID)
	if err != nil {
		d.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, peers)
}

func (d *Daemon) handleConversation(w http.ResponseWriter, r *http.Request) {
	me, ok := d.authenticate(w, r)
	if !ok {
		return
	}
	messages, err := d.messages.Conversation(r.Context(), me.ID, r.PathValue("id"))
	if err != nil {
		d.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (d *Daemon) handleSend(w http.ResponseWriter, r *http.Request) {
	me, ok := d.authenticate(w, r)
	if !ok {
		return
	}

	var req dmail.SendRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	msg := &dmail.Message{
		SenderID:   me.ID,
		ReceiverID: r.PathValue("id"),
		Text:       req.Text,
		Image:      req.Image,
	}
	if err := d.messages.Create(r.Context(), msg); err != nil {
		switch {
		case errors.Is(err, db.ErrEmptyMessage), errors.Is(err, db.ErrMissingParties):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, db.ErrUnknownPeer):
			writeError(w, http.StatusNotFound, "Receiver not found")
		default:
			d.internalError(w, r, err)
		}
		return
	}

	delivered := d.hub.Publish(r.Context(), push.Event{Name: dmail.EventNewMessage, Message: *msg})
	logger := logging.FromContext(r.Context())
	logger.Debug().
		Str("peer_id", msg.ReceiverID).
		Str("message_id", msg.ID).
		Int("sockets", delivered).
		Msg("message stored")

	writeJSON(w, http.StatusCreated, msg)
}

type createPeerRequest struct {
	ID         string `json:"_id"`
	FullName   string `json:"fullName"`
	ProfilePic string `json:"profilePic"`
}

func (d *Daemon) handleCreatePeer(w http.ResponseWriter, r *http.Request) {
	var req createPeerRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	peer := &dmail.Peer{ID: req.ID, FullName: req.FullName, ProfilePic: req.ProfilePic}
	if err := d.peers.Create(r.Context(), peer); err != nil {
		switch {
		case errors.Is(err, db.ErrInvalidPeer):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, db.ErrPeerAlreadyExists):
			writeError(w, http.StatusConflict, err.Error())
		default:
			d.internalError(w, r, err)
		}
		return
	}
	writeJSON(w, http.StatusCreated, peer)
}
