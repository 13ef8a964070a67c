package dmaild

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tOgg1/dmail/internal/api"
	"github.com/tOgg1/dmail/internal/config"
	"github.com/tOgg1/dmail/internal/dmail"
	"github.com/tOgg1/dmail/internal/notify"
	"github.com/tOgg1/dmail/internal/push"
	"github.com/tOgg1/dmail/internal/testutil"
)

func newTestDaemon(t *testing.T) (*Daemon, *httptest.Server) {
	t.Helper()
	testutil.SkipIfNoNetwork(t)
	d, err := New(config.DefaultConfig(), zerolog.Nop(), Options{DatabasePath: ":memory:"})
	require.NoError(t, err)
	srv := httptest.NewServer(d.Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = d.Close()
	})
	return d, srv
}

func seedPeer(t *testing.T, srv *httptest.Server, body string) {
	t.Helper()
	resp, err := http.Post(srv.URL+"/api/users", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func clientFor(t *testing.T, srv *httptest.Server, userID string) *api.Client {
	t.Helper()
	c, err := api.New(api.Config{BaseURL: srv.URL + "/api", UserID: userID})
	require.NoError(t, err)
	return c
}

// syncBuffer guards a bytes.Buffer written from the socket goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestNewDefaultsAddr(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Serve.Addr = ""
	d, err := New(cfg, zerolog.Nop(), Options{DatabasePath: ":memory:"})
	require.NoError(t, err)
	defer d.Close()
	require.Equal(t, DefaultAddr, d.bindAddr())

	d2, err := New(cfg, zerolog.Nop(), Options{Addr: "127.0.0.1:0", DatabasePath: ":memory:"})
	require.NoError(t, err)
	defer d2.Close()
	require.Equal(t, "127.0.0.1:0", d2.bindAddr())
}

func TestServeReturnsOnCanceledContext(t *testing.T) {
	testutil.SkipIfNoNetwork(t)
	d, err := New(config.DefaultConfig(), zerolog.Nop(), Options{DatabasePath: ":memory:"})
	require.NoError(t, err)
	defer d.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + d.Addr() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return after context cancellation")
	}
}

func TestHandlerErrors(t *testing.T) {
	_, srv := newTestDaemon(t)
	seedPeer(t, srv, `{"_id":"me","fullName":"Me"}`)
	ctx := context.Background()

	_, err := clientFor(t, srv, "").Peers(ctx)
	requireTransportError(t, err, http.StatusUnauthorized, "Unauthorized - No Token Provided")

	_, err = clientFor(t, srv, "ghost").Peers(ctx)
	requireTransportError(t, err, http.StatusUnauthorized, "Unauthorized - User not found")

	me := clientFor(t, srv, "me")
	_, err = me.Send(ctx, "nobody", dmail.SendRequest{Text: "hi"})
	requireTransportError(t, err, http.StatusNotFound, "Receiver not found")

	seedPeer(t, srv, `{"_id":"u1","fullName":"Alice"}`)
	_, err = me.Send(ctx, "u1", dmail.SendRequest{})
	requireTransportError(t, err, http.StatusBadRequest, "message needs text or an image")

	resp, err := http.Post(srv.URL+"/api/users", "application/json", strings.NewReader(`{"_id":"u1","fullName":"Again"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/users", "application/json", strings.NewReader(`{`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSendLogsWithRequestScope(t *testing.T) {
	testutil.SkipIfNoNetwork(t)
	var logs syncBuffer
	d, err := New(config.DefaultConfig(), zerolog.New(&logs).Level(zerolog.DebugLevel), Options{DatabasePath: ":memory:"})
	require.NoError(t, err)
	srv := httptest.NewServer(d.Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = d.Close()
	})
	seedPeer(t, srv, `{"_id":"me","fullName":"Me"}`)
	seedPeer(t, srv, `{"_id":"u1","fullName":"Alice"}`)

	msg, err := clientFor(t, srv, "me").Send(context.Background(), "u1", dmail.SendRequest{Text: "hi"})
	require.NoError(t, err)

	out := logs.String()
	require.Contains(t, out, `"message":"message stored"`)
	require.Contains(t, out, `"method":"POST"`)
	require.Contains(t, out, `"path":"/api/messages/send/u1"`)
	require.Contains(t, out, `"message_id":"`+msg.ID+`"`)
}

func requireTransportError(t *testing.T, err error, status int, message string) {
	t.Helper()
	te, ok := err.(*dmail.TransportError)
	require.True(t, ok, "want *dmail.TransportError, got %T: %v", err, err)
	assert.Equal(t, status, te.Status)
	assert.Equal(t, message, te.Message)
}

func TestSocketRejectsUnknownUser(t *testing.T) {
	_, srv := newTestDaemon(t)
	resp, err := http.Get(srv.URL + "/socket?userId=ghost")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestEndToEndConversation(t *testing.T) {
	d, srv := newTestDaemon(t)
	seedPeer(t, srv, `{"_id":"me","fullName":"Me"}`)
	seedPeer(t, srv, `{"_id":"u1","fullName":"Alice","profilePic":"/a.png"}`)
	seedPeer(t, srv, `{"_id":"u2","fullName":"Bob"}`)
	ctx := context.Background()

	sock, err := push.NewSocket(push.SocketConfig{
		URL:               "ws" + strings.TrimPrefix(srv.URL, "http") + "/socket",
		UserID:            "me",
		ReconnectInterval: 50 * time.Millisecond,
	})
	require.NoError(t, err)

	var notes syncBuffer
	store := dmail.New(clientFor(t, srv, "me"), sock,
		dmail.WithNotifier(notify.NewTerminal(&notes, dmail.PermissionGranted)))
	require.True(t, store.Subscribe())
	sock.Start(ctx)
	defer sock.Close()
	require.Eventually(t, func() bool { return d.Hub().SubscriberCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, store.LoadPeers(ctx))
	peers := store.Peers()
	require.Len(t, peers, 2)
	assert.Equal(t, "Alice", peers[0].FullName)

	alice := clientFor(t, srv, "u1")
	_, err = alice.Send(ctx, "me", dmail.SendRequest{Text: "hello"})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return store.UnreadCount("u1") == 1 }, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return strings.Contains(notes.String(), "[New Message] Alice: hello")
	}, 5*time.Second, 10*time.Millisecond)

	store.SelectPeer(&peers[0])
	require.Zero(t, store.UnreadCount("u1"))
	require.NoError(t, store.LoadTimeline(ctx, "u1"))
	require.Len(t, store.Timeline(), 1)

	echo, err := store.Send(ctx, dmail.SendRequest{Text: "hey back"})
	require.NoError(t, err)
	assert.Equal(t, "me", echo.SenderID)
	require.Len(t, store.Timeline(), 2)

	_, err = alice.Send(ctx, "me", dmail.SendRequest{Text: "again"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(store.Timeline()) == 3 }, 5*time.Second, 10*time.Millisecond)
	require.Zero(t, store.UnreadCount("u1"))

	store.Unsubscribe()
	_, err = clientFor(t, srv, "u2").Send(ctx, "me", dmail.SendRequest{Text: "ignored"})
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	require.Zero(t, store.UnreadCount("u2"))
}
