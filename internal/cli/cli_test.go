package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
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
	"github.com/tOgg1/dmail/internal/dmaild"
	"github.com/tOgg1/dmail/internal/testutil"
)

type testEnv struct {
	daemon *dmaild.Daemon
	srv    *httptest.Server
	dir    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	testutil.SkipIfNoNetwork(t)
	d, err := dmaild.New(config.DefaultConfig(), zerolog.Nop(), dmaild.Options{DatabasePath: ":memory:"})
	require.NoError(t, err)
	srv := httptest.NewServer(d.Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = d.Close()
	})

	env := &testEnv{daemon: d, srv: srv, dir: t.TempDir()}
	t.Setenv("XDG_CONFIG_HOME", env.dir)
	for _, p := range []dmail.Peer{
		{ID: "me", FullName: "Me"},
		{ID: "u-alice", FullName: "Alice Smith"},
		{ID: "u-albert", FullName: "Albert Jones"},
		{ID: "u-bob", FullName: "Bob"},
	} {
		peer := p
		require.NoError(t, d.Peers().Create(context.Background(), &peer))
	}
	return env
}

func (e *testEnv) writeConfig(t *testing.T, userID string) string {
	t.Helper()
	path := filepath.Join(e.dir, "config.yaml")
	content := fmt.Sprintf(`config_dir: %s
server:
  base_url: %s/api
session:
  user_id: %s
notifications:
  permission: granted
  bell: false
logging:
  level: error
`, e.dir, e.srv.URL, userID)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (e *testEnv) client(t *testing.T, userID string) *api.Client {
	t.Helper()
	c, err := api.New(api.Config{BaseURL: e.srv.URL + "/api", UserID: userID})
	require.NoError(t, err)
	return c
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func runCmd(ctx context.Context, cfgPath string, out *lockedBuffer, args ...string) error {
	cmd := newRootCmd("test")
	cmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	cmd.SetOut(out)
	cmd.SetErr(&lockedBuffer{})
	cmd.SetIn(strings.NewReader(""))
	return exitFor(cmd.ExecuteContext(ctx))
}

func execute(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	out := &lockedBuffer{}
	err := runCmd(context.Background(), cfgPath, out, args...)
	return out.String(), err
}

func requireExitCode(t *testing.T, err error, code int) {
	t.Helper()
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr), "expected ExitError, got %v", err)
	require.Equal(t, code, exitErr.Code)
}

func TestPeersCommand(t *testing.T) {
	env := newTestEnv(t)
	cfgPath := env.writeConfig(t, "me")

	out, err := execute(t, cfgPath, "peers")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "Alice Smith")
	assert.Contains(t, out, "Bob")

	out, err = execute(t, cfgPath, "peers", "--json")
	require.NoError(t, err)
	var peers []struct {
		ID     string `json:"_id"`
		Name   string `json:"fullName"`
		Unread int    `json:"unread"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &peers))
	require.Len(t, peers, 3)
	for _, p := range peers {
		assert.NotEqual(t, "me", p.ID)
		assert.Zero(t, p.Unread)
	}
}

func TestSendThenLog(t *testing.T) {
	env := newTestEnv(t)
	cfgPath := env.writeConfig(t, "me")

	out, err := execute(t, cfgPath, "send", "bob", "hello bob")
	require.NoError(t, err)
	require.NotEmpty(t, strings.TrimSpace(out))

	_, err = env.client(t, "u-bob").Send(context.Background(), "me", dmail.SendRequest{Text: "hi back"})
	require.NoError(t, err)

	// send remembered bob, so log needs no argument.
	out, err = execute(t, cfgPath, "log")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "you: hello bob")
	assert.Contains(t, lines[1], "Bob: hi back")

	out, err = execute(t, cfgPath, "log", "u-bob", "--json")
	require.NoError(t, err)
	var messages []dmail.Message
	require.NoError(t, json.Unmarshal([]byte(out), &messages))
	require.Len(t, messages, 2)
	assert.Equal(t, "me", messages[0].SenderID)
}

func TestSendRequiresText(t *testing.T) {
	env := newTestEnv(t)
	cfgPath := env.writeConfig(t, "me")

	_, err := execute(t, cfgPath, "send", "bob")
	requireExitCode(t, err, ExitCodeUsage)
}

func TestSendAmbiguousPeer(t *testing.T) {
	env := newTestEnv(t)
	cfgPath := env.writeConfig(t, "me")

	_, err := execute(t, cfgPath, "send", "al", "hey")
	requireExitCode(t, err, ExitCodeUsage)
	assert.Contains(t, err.Error(), "ambiguous")
	assert.Contains(t, err.Error(), "Albert Jones")
}

func TestTransportErrorExitCode(t *testing.T) {
	env := newTestEnv(t)
	cfgPath := env.writeConfig(t, "ghost")

	_, err := execute(t, cfgPath, "peers")
	requireExitCode(t, err, ExitCodeTransport)
	assert.Contains(t, err.Error(), "User not found")
}

func TestUseCommand(t *testing.T) {
	env := newTestEnv(t)
	cfgPath := env.writeConfig(t, "me")

	out, err := execute(t, cfgPath, "use")
	require.NoError(t, err)
	assert.Equal(t, "(no conversation)\n", out)

	out, err = execute(t, cfgPath, "use", "alice")
	require.NoError(t, err)
	assert.Equal(t, "Now using peer:Alice Smith\n", out)

	out, err = execute(t, cfgPath, "use")
	require.NoError(t, err)
	assert.Equal(t, "peer:Alice Smith\n", out)

	_, err = execute(t, cfgPath, "use", "--clear")
	require.NoError(t, err)

	_, err = execute(t, cfgPath, "log")
	requireExitCode(t, err, ExitCodeUsage)
}

func TestWatchCountsUnread(t *testing.T) {
	env := newTestEnv(t)
	cfgPath := env.writeConfig(t, "me")
	base := env.daemon.Hub().SubscriberCount()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := &lockedBuffer{}
	done := make(chan error, 1)
	go func() {
		done <- runCmd(ctx, cfgPath, out, "watch", "--timeout", "10s")
	}()

	require.Eventually(t, func() bool {
		return env.daemon.Hub().SubscriberCount() > base
	}, 5*time.Second, 10*time.Millisecond)

	_, err := env.client(t, "u-alice").Send(context.Background(), "me", dmail.SendRequest{Text: "ping"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		s := out.String()
		return strings.Contains(s, "[New Message] Alice Smith: ping") &&
			strings.Contains(s, "Alice Smith (1 unread)")
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestWatchTimeoutBoundsInitialLoad(t *testing.T) {
	env := newTestEnv(t)
	stalled := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	t.Cleanup(stalled.Close)

	path := filepath.Join(env.dir, "stalled.yaml")
	content := fmt.Sprintf("config_dir: %s\nserver:\n  base_url: %s/api\nsession:\n  user_id: me\nlogging:\n  level: error\n",
		env.dir, stalled.URL)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	done := make(chan error, 1)
	go func() {
		done <- runCmd(context.Background(), path, &lockedBuffer{}, "watch", "u-alice", "--timeout", "200ms")
	}()

	select {
	case err := <-done:
		requireExitCode(t, err, ExitCodeTransport)
	case <-time.After(5 * time.Second):
		t.Fatal("watch ignored --timeout while loading the conversation")
	}
}

func TestWatcherPrintsEventsAfterSnapshot(t *testing.T) {
	store := dmail.New(nil, nil)
	store.HandleEvent(dmail.Message{SenderID: "u-bob", Text: "before"})

	out := &lockedBuffer{}
	w := newWatcher(store, out)
	store.HandleEvent(dmail.Message{SenderID: "u-alice", Text: "after"})
	w.flush()

	require.Contains(t, out.String(), "u-alice (1 unread)")
	require.NotContains(t, out.String(), "u-bob")
}

func TestSessionConnectedFollowsSocket(t *testing.T) {
	var nilSession *session
	require.False(t, nilSession.connected())

	env := newTestEnv(t)
	cfg := config.DefaultConfig()
	cfg.Server.BaseURL = env.srv.URL + "/api"
	cfg.Session.UserID = "me"

	offline, err := newSession(cfg, sessionOptions{})
	require.NoError(t, err)
	defer offline.Close()
	require.False(t, offline.connected())

	live, err := newSession(cfg, sessionOptions{live: true})
	require.NoError(t, err)
	defer live.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	live.start(ctx)
	require.Eventually(t, live.connected, 5*time.Second, 10*time.Millisecond)
}

func TestWatchRequiresUser(t *testing.T) {
	env := newTestEnv(t)
	cfgPath := env.writeConfig(t, "")

	_, err := execute(t, cfgPath, "watch", "--timeout", "1s")
	requireExitCode(t, err, ExitCodeUsage)
}

func TestFindPeer(t *testing.T) {
	peers := []dmail.Peer{
		{ID: "a1", FullName: "Alice"},
		{ID: "a2", FullName: "Alan"},
		{ID: "b1", FullName: "Bob"},
	}

	tests := []struct {
		name    string
		query   string
		want    string
		wantErr string
	}{
		{name: "exact id", query: "b1", want: "b1"},
		{name: "name case-insensitive", query: "alice", want: "a1"},
		{name: "unique prefix", query: "bo", want: "b1"},
		{name: "ambiguous prefix", query: "al", wantErr: "ambiguous"},
		{name: "unknown", query: "zed", wantErr: "not found"},
		{name: "empty", query: "  ", wantErr: "required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := findPeer(peers, tt.query)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.ID)
		})
	}
}

func TestExitFor(t *testing.T) {
	assert.NoError(t, exitFor(nil))

	var exitErr *ExitError
	require.True(t, errors.As(exitFor(dmail.ErrNoSelection), &exitErr))
	assert.Equal(t, ExitCodeState, exitErr.Code)

	require.True(t, errors.As(exitFor(&dmail.TransportError{Op: "send", Status: http.StatusNotFound}), &exitErr))
	assert.Equal(t, ExitCodeTransport, exitErr.Code)

	require.True(t, errors.As(exitFor(errors.New("boom")), &exitErr))
	assert.Equal(t, ExitCodeFailure, exitErr.Code)

	usage := Exitf(ExitCodeUsage, "bad")
	assert.Same(t, usage, exitFor(usage))
}
