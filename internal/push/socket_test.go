package push

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tOgg1/dmail/internal/dmail"
	"github.com/tOgg1/dmail/internal/testutil"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/socket"
}

func TestNewSocketAddsUserID(t *testing.T) {
	s, err := NewSocket(SocketConfig{URL: "ws://host/socket", UserID: "me"})
	require.NoError(t, err)
	require.Equal(t, "ws://host/socket?userId=me", s.endpoint)
	require.Equal(t, "me", s.SelfID())

	_, err = NewSocket(SocketConfig{URL: "ftp://host/socket"})
	require.Error(t, err)
}

func TestSocketDeliversFrames(t *testing.T) {
	testutil.SkipIfNoNetwork(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "me", r.URL.Query().Get("userId"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()

		ctx := r.Context()
		good, err := EncodeFrame(dmail.EventNewMessage, dmail.Message{ID: "m1", SenderID: "u1", ReceiverID: "me", Text: "hi"})
		assert.NoError(t, err)
		_ = conn.Write(ctx, websocket.MessageText, []byte(`not json`))
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"event":"typing","data":{}}`))
		_ = conn.Write(ctx, websocket.MessageText, good)
		_, _, _ = conn.Read(ctx)
	}))
	defer srv.Close()

	s, err := NewSocket(SocketConfig{URL: wsURL(srv), UserID: "me", Token: "tok"})
	require.NoError(t, err)

	got := make(chan dmail.Message, 4)
	s.On(dmail.EventNewMessage, func(m dmail.Message) { got <- m })

	s.Start(context.Background())
	defer s.Close()

	select {
	case m := <-got:
		assert.Equal(t, "m1", m.ID)
		assert.Equal(t, "hi", m.Text)
	case <-time.After(5 * time.Second):
		t.Fatal("no message delivered")
	}
	require.Eventually(t, s.Connected, time.Second, 10*time.Millisecond)
}

func TestSocketOffStopsDelivery(t *testing.T) {
	s, err := NewSocket(SocketConfig{URL: "ws://unused/socket"})
	require.NoError(t, err)

	calls := 0
	s.On(dmail.EventNewMessage, func(dmail.Message) { calls++ })
	frame, err := EncodeFrame(dmail.EventNewMessage, dmail.Message{Text: "x"})
	require.NoError(t, err)

	s.dispatch(frame)
	s.Off(dmail.EventNewMessage)
	s.Off(dmail.EventNewMessage)
	s.dispatch(frame)
	require.Equal(t, 1, calls)
}

func TestSocketReconnects(t *testing.T) {
	testutil.SkipIfNoNetwork(t)
	accepted := make(chan struct{}, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		accepted <- struct{}{}
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
	}))
	defer srv.Close()

	s, err := NewSocket(SocketConfig{URL: wsURL(srv), ReconnectInterval: 20 * time.Millisecond})
	require.NoError(t, err)
	s.Start(context.Background())

	for i := 0; i < 2; i++ {
		select {
		case <-accepted:
		case <-time.After(5 * time.Second):
			t.Fatalf("dial %d never happened", i+1)
		}
	}
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	require.False(t, s.Connected())
}
