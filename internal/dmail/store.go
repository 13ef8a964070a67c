// Package dmail keeps a client-side view of a set of direct-message
// conversations. A Store reconciles REST snapshots, send acknowledgments and
// live push events into one state: the peer directory, the current selection,
// the open conversation's timeline and the per-peer unread ledger.
//
// All mutations happen under the Store's mutex. Service calls run with the
// mutex released, so live events and selection changes may interleave with an
// in-flight request. Routing of a live event depends only on the selection at
// the moment it is handled.
package dmail

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tOgg1/dmail/internal/logging"
)

// Service is the directory/history/send backend.
type Service interface {
	// Peers lists conversation partners.
	Peers(ctx context.Context) ([]Peer, error)
	// Messages returns the history with peerID.
	Messages(ctx context.Context, peerID string) ([]Message, error)
	// Send submits a message to peerID and returns the stored message.
	Send(ctx context.Context, peerID string, req SendRequest) (Message, error)
}

// PushChannel is the realtime transport. One handler per event name.
type PushChannel interface {
	On(event string, handler func(Message))
	Off(event string)
	// SelfID is the locally authenticated user's identifier.
	SelfID() string
}

// Notifier is the notification surface.
type Notifier interface {
	Permission() Permission
	Notify(n Notification)
}

// Reporter is the user-visible error path.
type Reporter interface {
	Report(err error)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(err error)

func (f ReporterFunc) Report(err error) { f(err) }

// Option configures a Store.
type Option func(*Store)

// WithNotifier sets the notification surface. Without one no notifications are emitted.
func WithNotifier(n Notifier) Option {
	return func(s *Store) {
		s.notifier = n
	}
}

// WithReporter sets the error reporting path. Without one errors are only logged.
func WithReporter(r Reporter) Option {
	return func(s *Store) {
		if r != nil {
			s.reporter = r
		}
	}
}

// WithLogger overrides the component logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithStaleTimelineGuard makes LoadTimeline drop responses for a peer that is
// no longer selected when the response arrives.
func WithStaleTimelineGuard() Option {
	return func(s *Store) {
		s.staleGuard = true
	}
}

// Store is the session-scoped state container. Construct one per session with
// New and drop it when the session ends.
type Store struct {
	service  Service
	channel  PushChannel
	notifier Notifier
	reporter Reporter
	logger   zerolog.Logger

	staleGuard bool

	// subMu serializes Subscribe and Unsubscribe across the channel call.
	subMu sync.Mutex

	mu              sync.Mutex
	dir             *directory
	timeline        timeline
	ledger          *Ledger
	peersLoading    bool
	timelineLoading bool
	sending         bool
	sub             subscriptionState

	changes chan struct{}
}

// New builds a Store around its collaborators. channel may be nil when the
// session runs without a live feed.
func New(service Service, channel PushChannel, opts ...Option) *Store {
	s := &Store{
		service: service,
		channel: channel,
		logger:  logging.Component("store"),
		dir:     newDirectory(),
		ledger:  NewLedger(),
		changes: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.reporter == nil {
		// fail() already logs every transport error.
		s.reporter = ReporterFunc(func(error) {})
	}
	return s
}

// Changes delivers a signal after every state mutation. Signals coalesce.
func (s *Store) Changes() <-chan struct{} {
	return s.changes
}

func (s *Store) notifyChange() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

// Peers returns the cached directory.
func (s *Store) Peers() []Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clonePeers(s.dir.peers)
}

// Peer looks up a directory entry.
func (s *Store) Peer(id string) (Peer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dir.lookup(id)
}

// Timeline returns the open conversation's messages.
func (s *Store) Timeline() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeline.snapshot()
}

// Selected returns the selected peer, or false when no conversation is open.
func (s *Store) Selected() (Peer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dir.selected == nil {
		return Peer{}, false
	}
	return *s.dir.selected, true
}

func (s *Store) PeersLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peersLoading
}

func (s *Store) TimelineLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timelineLoading
}

func (s *Store) Sending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sending
}

// UnreadCount returns the unread count for peerID (0 when absent).
func (s *Store) UnreadCount(peerID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Count(peerID)
}

// UnreadTotal sums every peer's unread count.
func (s *Store) UnreadTotal() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Total()
}

// Unread copies the whole ledger.
func (s *Store) Unread() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Snapshot()
}

// SelectPeer opens the conversation with peer, zeroing its unread count in
// the same critical section. A nil peer closes the conversation and leaves the
// ledger alone. The timeline is neither cleared nor fetched.
func (s *Store) SelectPeer(peer *Peer) {
	s.mu.Lock()
	if peer == nil {
		s.dir.selected = nil
	} else {
		selected := *peer
		selected.ID = normalizeID(selected.ID)
		s.dir.selected = &selected
		s.ledger.Zero(selected.ID)
	}
	s.mu.Unlock()
	s.notifyChange()
}

// ClearUnread zeroes peerID's count without changing the selection.
func (s *Store) ClearUnread(peerID string) {
	s.mu.Lock()
	s.ledger.Zero(peerID)
	s.mu.Unlock()
	s.notifyChange()
}

// PruneUnread drops ledger entries for peers missing from the directory.
// The selected peer is kept.
func (s *Store) PruneUnread() int {
	s.mu.Lock()
	keep := s.dir.ids()
	if id := s.dir.selectedID(); id != "" {
		keep[id] = struct{}{}
	}
	removed := s.ledger.Prune(keep)
	s.mu.Unlock()
	if removed > 0 {
		s.notifyChange()
	}
	return removed
}

// LoadPeers replaces the directory from the service. New peers get a zero
// ledger entry; existing counts, including counts for peers that vanished
// from the response, are preserved.
func (s *Store) LoadPeers(ctx context.Context) error {
	s.setBusy(&s.peersLoading, true)
	defer s.setBusy(&s.peersLoading, false)

	peers, err := s.service.Peers(ctx)
	if err != nil {
		return s.fail("load peers", err)
	}

	s.mu.Lock()
	s.dir.replace(peers)
	for _, p := range peers {
		s.ledger.Ensure(p.ID)
	}
	s.mu.Unlock()

	s.logger.Debug().Int("peers", len(peers)).Msg("directory refreshed")
	s.notifyChange()
	return nil
}

// LoadTimeline replaces the timeline with the history for peerID and zeroes
// its unread count. The selection is not changed.
func (s *Store) LoadTimeline(ctx context.Context, peerID string) error {
	peerID = normalizeID(peerID)
	s.setBusy(&s.timelineLoading, true)
	defer s.setBusy(&s.timelineLoading, false)

	messages, err := s.service.Messages(ctx, peerID)
	if err != nil {
		return s.fail("load messages", err)
	}

	s.mu.Lock()
	if s.staleGuard && s.dir.selectedID() != peerID {
		current := s.dir.selectedID()
		s.mu.Unlock()
		s.logger.Debug().
			Str("requested", peerID).
			Str("selected", current).
			Msg("discarding stale timeline response")
		return nil
	}
	s.timeline.replace(messages)
	s.ledger.Zero(peerID)
	s.mu.Unlock()

	s.logger.Debug().Str("peer_id", peerID).Int("messages", len(messages)).Msg("timeline loaded")
	s.notifyChange()
	return nil
}

// Send posts req to the selected peer and appends the server echo. It returns
// ErrNoSelection without contacting the service when no peer is selected.
func (s *Store) Send(ctx context.Context, req SendRequest) (Message, error) {
	s.mu.Lock()
	peerID := s.dir.selectedID()
	s.mu.Unlock()
	if peerID == "" {
		return Message{}, ErrNoSelection
	}

	s.setBusy(&s.sending, true)
	defer s.setBusy(&s.sending, false)

	echo, err := s.service.Send(ctx, peerID, req)
	if err != nil {
		return Message{}, s.fail("send message", err)
	}

	s.mu.Lock()
	s.timeline.append(echo)
	s.mu.Unlock()

	s.notifyChange()
	return echo, nil
}

func (s *Store) setBusy(flag *bool, value bool) {
	s.mu.Lock()
	*flag = value
	s.mu.Unlock()
	s.notifyChange()
}

func (s *Store) fail(op string, err error) error {
	te := AsTransportError(op, err)
	s.logger.Warn().Err(err).Str("op", op).Msg("transport error")
	s.reporter.Report(te)
	return te
}
