package dmail

import (
	"context"
	"sync"
)

type fakeService struct {
	mu       sync.Mutex
	peers    []Peer
	messages map[string][]Message
	echo     func(peerID string, req SendRequest) Message

	peersErr    error
	messagesErr error
	sendErr     error

	sendCalls int
	// block, when set, is waited on inside Messages before returning.
	block chan struct{}
	// entered is signaled when Messages starts.
	entered chan string
}

func (f *fakeService) Peers(ctx context.Context) ([]Peer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.peersErr != nil {
		return nil, f.peersErr
	}
	return clonePeers(f.peers), nil
}

func (f *fakeService) Messages(ctx context.Context, peerID string) ([]Message, error) {
	if f.entered != nil {
		f.entered <- peerID
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.messagesErr != nil {
		return nil, f.messagesErr
	}
	return cloneMessages(f.messages[peerID]), nil
}

func (f *fakeService) Send(ctx context.Context, peerID string, req SendRequest) (Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendCalls++
	if f.sendErr != nil {
		return Message{}, f.sendErr
	}
	if f.echo != nil {
		return f.echo(peerID, req), nil
	}
	return Message{ID: "echo", SenderID: "me", ReceiverID: peerID, Text: req.Text}, nil
}

type fakeChannel struct {
	mu       sync.Mutex
	self     string
	handlers map[string]func(Message)
	ons      int
	offs     int
}

func newFakeChannel(self string) *fakeChannel {
	return &fakeChannel{self: self, handlers: make(map[string]func(Message))}
}

func (c *fakeChannel) On(event string, handler func(Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ons++
	c.handlers[event] = handler
}

func (c *fakeChannel) Off(event string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offs++
	delete(c.handlers, event)
}

func (c *fakeChannel) SelfID() string { return c.self }

func (c *fakeChannel) registered(event string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.handlers[event]
	return ok
}

func (c *fakeChannel) emit(event string, m Message) bool {
	c.mu.Lock()
	h := c.handlers[event]
	c.mu.Unlock()
	if h == nil {
		return false
	}
	h(m)
	return true
}

type fakeNotifier struct {
	mu         sync.Mutex
	permission Permission
	sent       []Notification
}

func (n *fakeNotifier) Permission() Permission {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.permission
}

func (n *fakeNotifier) Notify(note Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, note)
}

type recordingReporter struct {
	mu   sync.Mutex
	errs []error
}

func (r *recordingReporter) Report(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recordingReporter) reported() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}
