package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tOgg1/dmail/internal/dmaild"
	"github.com/tOgg1/dmail/internal/logging"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the reference dmail server",
		Long:  "Run a dmail server backed by SQLite. Seed users with POST /api/users.",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().String("addr", "", "listen address (overrides serve.addr)")
	cmd.Flags().String("database", "", "SQLite path (overrides serve.database)")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := configFrom(cmd)
	if err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return Exitf(ExitCodeFailure, "%v", err)
	}

	addr, _ := cmd.Flags().GetString("addr")
	database, _ := cmd.Flags().GetString("database")
	daemon, err := dmaild.New(cfg, logging.Component("dmaild"), dmaild.Options{Addr: addr, DatabasePath: database})
	if err != nil {
		return Exitf(ExitCodeFailure, "%v", err)
	}
	defer daemon.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return daemon.Run(ctx)
}
