package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bnema/softkeys/internal/ipc"
	"github.com/bnema/softkeys/internal/ui"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of the running keyboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newIPCClient()
		if err != nil {
			return fmt.Errorf("failed to create IPC client: %w", err)
		}

		status, err := client.SendStatus()
		if errors.Is(err, ipc.ErrNotRunning) {
			fmt.Fprintln(cmd.OutOrStdout(), "No keyboard is running")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get keyboard status: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), formatStatus(status))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func formatStatus(s *ipc.Status) string {
	var b strings.Builder

	b.WriteString(ui.TitleStyle.Render("softkeys"))
	b.WriteString("\n")
	b.WriteString(ui.FormatControl("keyboard", s.Keyboard))
	b.WriteString("\n")

	mode := s.Mode
	switch {
	case s.UpperCaseLocked:
		mode += ", caps lock"
	case s.UpperCase:
		mode += ", shift"
	}
	b.WriteString(ui.FormatControl("mode", mode))
	b.WriteString("\n")

	if s.InputType != "" {
		b.WriteString(ui.FormatControl("input", s.InputType))
		b.WriteString("\n")
	}
	if s.Engine != "" {
		b.WriteString(ui.FormatControl("engine", s.Engine+" ("+s.EngineState+")"))
		b.WriteString("\n")
	}

	names := make([]string, len(s.Keyboards))
	for i, name := range s.Keyboards {
		if name == s.Keyboard {
			name = "[" + name + "]"
		}
		names[i] = name
	}
	b.WriteString(ui.FormatControl("order", strings.Join(names, " → ")))
	return b.String()
}
