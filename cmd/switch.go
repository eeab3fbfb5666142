package cmd

import (
	"fmt"

	"github.com/bnema/softkeys/internal/logger"
	"github.com/spf13/cobra"
)

var switchCmd = &cobra.Command{
	Use:   "switch [keyboard]",
	Short: "Switch the running keyboard",
	Long: `Switch the running keyboard to the named keyboard, or to the next one in
switching order when no name is given.

Example usage in window manager configs:
  Hyprland: bind = $mainMod, K, exec, softkeys switch
  i3/Sway:  bindsym $mod+k exec softkeys switch fr
`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newIPCClient()
		if err != nil {
			return fmt.Errorf("failed to create IPC client: %w", err)
		}

		keyboard := ""
		if len(args) == 1 {
			keyboard = args[0]
		}
		logger.Debugf("Sending switch command: %q", keyboard)

		status, err := client.SendSwitch(keyboard)
		if err != nil {
			return fmt.Errorf("failed to switch keyboard: %w", err)
		}

		position := 0
		for i, name := range status.Keyboards {
			if name == status.Keyboard {
				position = i + 1
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Switched to %s (%d/%d)\n", status.Keyboard, position, len(status.Keyboards))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(switchCmd)
}
