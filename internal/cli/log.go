package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tOgg1/dmail/internal/dmail"
)

func newLogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log [peer]",
		Short: "Show the conversation with a peer",
		Long:  "Show the conversation with a peer. Without an argument the peer chosen with `dmail use` is shown.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLog,
	}
	cmd.Flags().Bool("json", false, "output JSON")
	return cmd
}

func runLog(cmd *cobra.Command, args []string) error {
	cfg, err := configFrom(cmd)
	if err != nil {
		return err
	}
	query, err := peerArg(cfg, args)
	if err != nil {
		return err
	}

	s, err := newSession(cfg, sessionOptions{})
	if err != nil {
		return err
	}
	defer s.Close()

	peer, err := openConversation(cmd.Context(), s, query)
	if err != nil {
		return err
	}

	messages := s.store.Timeline()
	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		payload, err := json.MarshalIndent(messages, "", "  ")
		if err != nil {
			return Exitf(ExitCodeFailure, "encode messages: %v", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(payload))
		return nil
	}

	if len(messages) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No messages with %s\n", peer.FullName)
		return nil
	}
	for _, m := range messages {
		printMessage(cmd.OutOrStdout(), peer, m)
	}
	return nil
}

// openConversation loads the directory, resolves query and loads its history.
func openConversation(ctx context.Context, s *session, query string) (dmail.Peer, error) {
	if err := s.store.LoadPeers(ctx); err != nil {
		return dmail.Peer{}, err
	}
	peer, err := findPeer(s.store.Peers(), query)
	if err != nil {
		return dmail.Peer{}, Exitf(ExitCodeUsage, "%v", err)
	}
	s.store.SelectPeer(&peer)
	if err := s.store.LoadTimeline(ctx, peer.ID); err != nil {
		return dmail.Peer{}, err
	}
	return peer, nil
}

func printMessage(out io.Writer, peer dmail.Peer, m dmail.Message) {
	author := peer.FullName
	if m.SenderID != peer.ID {
		author = "you"
	}
	body := m.Text
	if m.Image != "" {
		body = strings.TrimSpace(body + " [image]")
	}
	stamp := "----------------"
	if !m.CreatedAt.IsZero() {
		stamp = m.CreatedAt.Local().Format("2006-01-02 15:04")
	}
	fmt.Fprintf(out, "%s  %s: %s\n", stamp, author, body)
}
