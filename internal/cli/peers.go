package cli

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tOgg1/dmail/internal/dmail"
)

func newPeersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "peers",
		Short: "List conversation partners",
		Args:  cobra.NoArgs,
		RunE:  runPeers,
	}
	cmd.Flags().Bool("json", false, "output JSON")
	return cmd
}

type peerRow struct {
	dmail.Peer
	Unread int `json:"unread"`
}

func runPeers(cmd *cobra.Command, args []string) error {
	cfg, err := configFrom(cmd)
	if err != nil {
		return err
	}
	s, err := newSession(cfg, sessionOptions{})
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.store.LoadPeers(cmd.Context()); err != nil {
		return err
	}

	peers := s.store.Peers()
	rows := make([]peerRow, 0, len(peers))
	for _, p := range peers {
		rows = append(rows, peerRow{Peer: p, Unread: s.store.UnreadCount(p.ID)})
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		payload, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			return Exitf(ExitCodeFailure, "encode peers: %v", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(payload))
		return nil
	}

	if len(rows) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No conversations")
		return nil
	}
	t := newTable("ID", "NAME", "UNREAD").alignRight(2)
	for _, r := range rows {
		t.addRow(r.ID, r.FullName, strconv.Itoa(r.Unread))
	}
	return t.render(cmd.OutOrStdout())
}
