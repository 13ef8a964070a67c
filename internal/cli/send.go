package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tOgg1/dmail/internal/dmail"
	"github.com/tOgg1/dmail/internal/logging"
)

func newSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <peer> [text]",
		Short: "Send a direct message",
		Long:  "Send a direct message. The text is read from stdin when not given as an argument.",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runSend,
	}
	cmd.Flags().String("image", "", "attachment payload (URL or data URI)")
	cmd.Flags().Bool("json", false, "output the stored message as JSON")
	return cmd
}

func runSend(cmd *cobra.Command, args []string) error {
	cfg, err := configFrom(cmd)
	if err != nil {
		return err
	}

	text := ""
	if len(args) > 1 {
		text = args[1]
	} else {
		piped, err := readStdinIfPiped(cmd)
		if err != nil {
			return Exitf(ExitCodeFailure, "read stdin: %v", err)
		}
		text = piped
	}
	image, _ := cmd.Flags().GetString("image")
	text = strings.TrimSpace(text)
	if text == "" && strings.TrimSpace(image) == "" {
		return Exitf(ExitCodeUsage, "message text is required")
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
	s.store.SelectPeer(&peer)

	echo, err := s.store.Send(cmd.Context(), dmail.SendRequest{Text: text, Image: strings.TrimSpace(image)})
	if err != nil {
		return err
	}
	rememberPeer(cfg, peer)
	logger := logging.WithPeer(peer.ID)
	logger.Debug().Str("message_id", echo.ID).Msg("sent")

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		payload, err := json.MarshalIndent(echo, "", "  ")
		if err != nil {
			return Exitf(ExitCodeFailure, "encode message: %v", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(payload))
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), echo.ID)
	return nil
}

func readStdinIfPiped(cmd *cobra.Command) (string, error) {
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok {
		info, err := f.Stat()
		if err != nil {
			return "", err
		}
		if info.Mode()&os.ModeCharDevice != 0 {
			return "", nil
		}
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
