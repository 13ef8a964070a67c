package cli

import (
	"github.com/spf13/cobra"

	"github.com/tOgg1/dmail/internal/dmail"
	"github.com/tOgg1/dmail/internal/dmailtui"
)

func newTUICmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Launch the terminal UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd)
		},
	}
}

func runTUI(cmd *cobra.Command) error {
	if !hasTTY() {
		return Exitf(ExitCodeUsage, "the TUI requires an interactive terminal; use `dmail peers`, `dmail log` or `dmail send`")
	}
	cfg, err := configFrom(cmd)
	if err != nil {
		return err
	}

	initial := ""
	if ctx, err := cfg.ContextStore().Load(); err == nil {
		initial = ctx.PeerID
	}

	live := cfg.Session.UserID != ""
	var s *session
	tuiCfg := dmailtui.Config{
		SelfID:         cfg.Session.UserID,
		Theme:          cfg.TUI.Theme,
		ShowTimestamps: cfg.TUI.ShowTimestamps,
		InitialPeer:    initial,
		OnSelect:       func(p dmail.Peer) { rememberPeer(cfg, p) },
	}
	if live {
		tuiCfg.Connected = func() bool { return s.connected() }
	}
	model, err := dmailtui.NewModel(cmd.Context(), tuiCfg)
	if err != nil {
		return Exitf(ExitCodeUsage, "%v", err)
	}

	// Notification text would corrupt the alternate screen, so it is only logged.
	s, err = newSession(cfg, sessionOptions{
		live:     live,
		reporter: model.Reporter(),
	})
	if err != nil {
		return err
	}
	defer s.Close()

	model.Attach(s.store)
	s.start(cmd.Context())
	return dmailtui.Run(cmd.Context(), model)
}
