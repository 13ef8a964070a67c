package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tOgg1/dmail/internal/dmail"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [peer]",
		Short: "Follow live messages",
		Long: "Subscribe to live messages. With a peer, that conversation is opened and its new messages are printed; " +
			"messages from everyone else bump unread counts and raise notifications.",
		Args: cobra.MaximumNArgs(1),
		RunE: runWatch,
	}
	cmd.Flags().Duration("timeout", 0, "stop after this long (0 = until interrupted)")
	return cmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := configFrom(cmd)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	s, err := newSession(cfg, sessionOptions{live: true, notifyOut: out})
	if err != nil {
		return err
	}
	defer s.Close()
	// Running watch is the opt-in; only an explicit denial silences it.
	s.notifier.Request()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if timeout, _ := cmd.Flags().GetDuration("timeout"); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if len(args) > 0 {
		peer, err := openConversation(ctx, s, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Watching conversation with %s\n", peer.FullName)
	} else if err := s.store.LoadPeers(ctx); err != nil {
		return err
	}

	// Snapshot before subscribing so early live events count as new.
	w := newWatcher(s.store, out)
	s.start(ctx)
	w.run(ctx)
	return nil
}

// watcher prints what each store change added: new timeline messages and
// unread count increases.
type watcher struct {
	store  *dmail.Store
	out    io.Writer
	seen   int
	unread map[string]int
}

func newWatcher(store *dmail.Store, out io.Writer) *watcher {
	return &watcher{
		store:  store,
		out:    out,
		seen:   len(store.Timeline()),
		unread: store.Unread(),
	}
}

func (w *watcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.store.Changes():
			w.flush()
		}
	}
}

func (w *watcher) flush() {
	peer, selected := w.store.Selected()
	timeline := w.store.Timeline()
	if len(timeline) < w.seen {
		w.seen = 0
	}
	if selected {
		for _, m := range timeline[w.seen:] {
			printMessage(w.out, peer, m)
		}
	}
	w.seen = len(timeline)

	current := w.store.Unread()
	for id, n := range current {
		if n <= w.unread[id] {
			continue
		}
		name := id
		if p, ok := w.store.Peer(id); ok {
			name = p.FullName
		}
		fmt.Fprintf(w.out, "● %s (%d unread)\n", name, n)
	}
	w.unread = current
}
