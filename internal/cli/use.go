package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tOgg1/dmail/internal/config"
	"github.com/tOgg1/dmail/internal/dmail"
	"github.com/tOgg1/dmail/internal/logging"
)

func newUseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "use [peer]",
		Short: "Show or set the current conversation",
		Long:  "Show or set the conversation that `dmail log` and `dmail tui` open by default.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runUse,
	}
	cmd.Flags().Bool("clear", false, "forget the current conversation")
	return cmd
}

func runUse(cmd *cobra.Command, args []string) error {
	cfg, err := configFrom(cmd)
	if err != nil {
		return err
	}
	store := cfg.ContextStore()

	if forget, _ := cmd.Flags().GetBool("clear"); forget {
		if err := store.Clear(); err != nil {
			return Exitf(ExitCodeFailure, "%v", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Context cleared")
		return nil
	}

	if len(args) == 0 {
		ctx, err := store.Load()
		if err != nil {
			return Exitf(ExitCodeFailure, "%v", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), ctx.String())
		return nil
	}

	s, err := newSession(cfg, sessionOptions{})
	if err != nil {
		return err
	}
	defer s.Close()
	if err := s.store.LoadPeers(cmd.Context()); err != nil {
		return err
	}
	peer, err := findPeer(s.store.Peers(), args[0])
	if err != nil {
		return Exitf(ExitCodeUsage, "%v", err)
	}
	ctx := &config.Context{}
	ctx.SetPeer(peer.ID, peer.FullName)
	if err := store.Save(ctx); err != nil {
		return Exitf(ExitCodeFailure, "%v", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Now using %s\n", ctx.String())
	return nil
}

// peerArg returns the explicit peer argument or the remembered one.
func peerArg(cfg *config.Config, args []string) (string, error) {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return args[0], nil
	}
	ctx, err := cfg.ContextStore().Load()
	if err != nil {
		return "", Exitf(ExitCodeFailure, "%v", err)
	}
	if ctx.IsEmpty() {
		return "", Exitf(ExitCodeUsage, "no peer given and no current conversation (see `dmail use`)")
	}
	return ctx.PeerID, nil
}

// rememberPeer records peer as the current conversation. Failures are logged only.
func rememberPeer(cfg *config.Config, peer dmail.Peer) {
	ctx := &config.Context{}
	ctx.SetPeer(peer.ID, peer.FullName)
	if err := cfg.ContextStore().Save(ctx); err != nil {
		logging.Logger.Warn().Err(err).Msg("save context")
	}
}
