package notify

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/dmail/internal/dmail"
)

func TestNotifyRequiresGrant(t *testing.T) {
	for _, p := range []dmail.Permission{dmail.PermissionDenied, dmail.PermissionUndetermined} {
		var buf bytes.Buffer
		n := NewTerminal(&buf, p)
		n.Notify(dmail.Notification{Title: "New Message", Body: "Alice: hi"})
		require.Empty(t, buf.String(), string(p))
		require.Zero(t, n.Sent())
	}
}

func TestNotifyWritesLine(t *testing.T) {
	var buf bytes.Buffer
	n := NewTerminal(&buf, dmail.PermissionGranted)
	n.Notify(dmail.Notification{Title: "New Message", Body: "Alice: hi\nthere", Icon: "/a.png"})
	require.Equal(t, "[New Message] Alice: hi there\n", buf.String())
	require.Equal(t, 1, n.Sent())
}

func TestNotifyBell(t *testing.T) {
	var buf bytes.Buffer
	n := NewTerminal(&buf, dmail.PermissionGranted, WithBell(true))
	n.Notify(dmail.Notification{Title: "New Message", Body: "Bob: yo"})
	require.Equal(t, "\a[New Message] Bob: yo\n", buf.String())
}

func TestRequest(t *testing.T) {
	n := NewTerminal(nil, dmail.PermissionUndetermined)
	require.Equal(t, dmail.PermissionGranted, n.Request())

	n.SetPermission(dmail.PermissionDenied)
	require.Equal(t, dmail.PermissionDenied, n.Request())
	require.Equal(t, dmail.PermissionDenied, n.Permission())
}
