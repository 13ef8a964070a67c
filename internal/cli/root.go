// Package cli implements the dmail command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tOgg1/dmail/internal/config"
	"github.com/tOgg1/dmail/internal/logging"
)

// runtime is the per-invocation state shared by subcommands.
type runtime struct {
	cfg       *config.Config
	logCloser io.Closer
}

type runtimeKey struct{}

// Execute runs the root command.
func Execute(version string) error {
	return exitFor(newRootCmd(version).Execute())
}

func newRootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "dmail",
		Short:         "Direct messages from the terminal",
		Long:          "dmail keeps your direct-message conversations, unread counts and live notifications in sync with a dmail server.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupRuntime(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if rt := runtimeFrom(cmd); rt != nil && rt.logCloser != nil {
				return rt.logCloser.Close()
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if !hasTTY() {
				return cmd.Help()
			}
			return runTUI(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.String("config", "", "config file (default $XDG_CONFIG_HOME/dmail/config.yaml)")
	flags.String("log-level", "", "log level: trace, debug, info, warn, error")
	flags.String("log-format", "", "log format: console, json")
	flags.String("server", "", "API base URL (overrides server.base_url)")
	flags.String("user", "", "local user id (overrides session.user_id)")

	cmd.AddCommand(
		newTUICmd(),
		newPeersCmd(),
		newLogCmd(),
		newSendCmd(),
		newWatchCmd(),
		newServeCmd(),
		newUseCmd(),
	)
	return cmd
}

var flagKeys = map[string]string{
	"log-level":  "logging.level",
	"log-format": "logging.format",
	"server":     "server.base_url",
	"user":       "session.user_id",
}

func setupRuntime(cmd *cobra.Command) error {
	loader := config.NewLoader()
	if path, _ := cmd.Flags().GetString("config"); strings.TrimSpace(path) != "" {
		loader.SetConfigFile(path)
	}
	for flag, key := range flagKeys {
		if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
			loader.Set(key, f.Value.String())
		}
	}

	cfg, err := loader.Load()
	if err != nil {
		return Exitf(ExitCodeUsage, "%v", err)
	}

	logCfg := logging.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		Output:       cmd.ErrOrStderr(),
		File:         cfg.LogFilePath(ownsTerminal(cmd)),
		EnableCaller: cfg.Logging.EnableCaller,
	}
	closer, err := logging.Init(logCfg)
	if err != nil {
		return Exitf(ExitCodeFailure, "init logging: %v", err)
	}
	if used := loader.ConfigFileUsed(); used != "" {
		logging.Logger.Debug().Str("file", used).Msg("config loaded")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(context.WithValue(ctx, runtimeKey{}, &runtime{cfg: cfg, logCloser: closer}))
	return nil
}

// ownsTerminal reports whether the command draws a full-screen UI, in which
// case logs go to a file.
func ownsTerminal(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "tui":
		return true
	case "dmail":
		return hasTTY()
	}
	return false
}

func runtimeFrom(cmd *cobra.Command) *runtime {
	if cmd.Context() == nil {
		return nil
	}
	rt, _ := cmd.Context().Value(runtimeKey{}).(*runtime)
	return rt
}

func configFrom(cmd *cobra.Command) (*config.Config, error) {
	rt := runtimeFrom(cmd)
	if rt == nil || rt.cfg == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	return rt.cfg, nil
}

func hasTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}
