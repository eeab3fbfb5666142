package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/bnema/softkeys/internal/config"
	"github.com/bnema/softkeys/internal/logger"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage softkeys configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()
		out := cmd.OutOrStdout()

		fmt.Fprintf(out, "Config file: %s\n\n", config.GetConfigPath())

		fmt.Fprintln(out, "[timing]")
		fmt.Fprintf(out, "  Menu show: %d ms\n", cfg.Timing.MenuShowMs)
		fmt.Fprintf(out, "  Menu hide: %d ms\n", cfg.Timing.MenuHideMs)
		fmt.Fprintf(out, "  Delete repeat: %d ms, then every %d ms\n", cfg.Timing.DeleteRepeatDelayMs, cfg.Timing.DeleteRepeatRateMs)
		fmt.Fprintf(out, "  Caps double tap: %d ms\n", cfg.Timing.CapsDoubleTapMs)
		fmt.Fprintf(out, "  Space double tap: %d ms\n", cfg.Timing.SpaceDoubleTapMs)

		fmt.Fprintln(out, "\n[keyboards]")
		catalog := cfg.Keyboards.CatalogPath
		if catalog == "" {
			catalog = "built-in"
		}
		fmt.Fprintf(out, "  Catalog: %s\n", catalog)
		fmt.Fprintf(out, "  Enabled: %s\n", orAll(cfg.Keyboards.Enabled))
		fmt.Fprintf(out, "  Default: %s\n", orFirst(cfg.Keyboards.Default))
		fmt.Fprintf(out, "  Input type: %s\n", cfg.Keyboards.InputType)
		fmt.Fprintf(out, "  Watch: %v\n", cfg.Keyboards.Watch)

		fmt.Fprintln(out, "\n[engines]")
		fmt.Fprintf(out, "  Script dir: %s\n", cfg.Engines.ScriptDir)
		fmt.Fprintf(out, "  Max load attempts: %d\n", cfg.Engines.MaxLoadAttempts)
		fmt.Fprintf(out, "  Max pending keys: %d\n", cfg.Engines.MaxPendingKeys)
		fmt.Fprintf(out, "  Load timeout: %d ms\n", cfg.Engines.LoadTimeoutMs)

		fmt.Fprintln(out, "\n[sink]")
		fmt.Fprintf(out, "  Backend: %s\n", cfg.Sink.Backend)
		if cfg.Sink.Backend == config.SinkUInput {
			fmt.Fprintf(out, "  Device: %s (%s)\n", cfg.Sink.DevicePath, cfg.Sink.DeviceName)
		}

		fmt.Fprintln(out, "\n[bridge]")
		fmt.Fprintf(out, "  Listen: %s%s\n", cfg.Bridge.ListenAddress, cfg.Bridge.Path)

		fmt.Fprintln(out, "\n[ssh]")
		fmt.Fprintf(out, "  Enabled: %v\n", cfg.SSH.Enabled)
		fmt.Fprintf(out, "  Address: %s:%d\n", cfg.SSH.BindAddress, cfg.SSH.Port)
		fmt.Fprintf(out, "  Host key: %s\n", cfg.SSH.HostKeyPath)
		fmt.Fprintf(out, "  Authorized keys: %s\n", cfg.SSH.AuthorizedKeysPath)
		fmt.Fprintf(out, "  Whitelist only: %v\n", cfg.SSH.WhitelistOnly)
		for _, fp := range cfg.SSH.Whitelist {
			fmt.Fprintf(out, "    - %s\n", fp)
		}

		fmt.Fprintln(out, "\n[logging]")
		fmt.Fprintf(out, "  Level: %s\n", orDefault(cfg.Logging.LogLevel, "from LOG_LEVEL"))
		fmt.Fprintf(out, "  File: %s\n", orDefault(cfg.Logging.LogFile, "discarded while the keyboard is shown"))
		return nil
	},
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func orAll(names []string) string {
	if len(names) == 0 {
		return "all"
	}
	return strings.Join(names, ", ")
}

func orFirst(name string) string {
	return orDefault(name, "first enabled")
}

var configSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Save current configuration to file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Save(); err != nil {
			return err
		}
		logger.Infof("Configuration saved to: %s", config.GetConfigPath())
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration file with defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := config.GetConfigPath()
		if _, err := os.Stat(configPath); err == nil {
			force, _ := cmd.Flags().GetBool("force")
			if !force {
				logger.Infof("Configuration file already exists at: %s", configPath)
				logger.Info("Use --force to overwrite")
				return nil
			}
		}

		if err := config.Update(config.DefaultConfig); err != nil {
			return err
		}

		logger.Infof("Configuration initialized at: %s", configPath)
		return nil
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit the main settings interactively",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := *config.Get()
		if err := runConfigForm(&c); err != nil {
			return err
		}
		if err := config.Update(c); err != nil {
			return err
		}
		logger.Infof("Configuration saved to: %s", config.GetConfigPath())
		return nil
	},
}

// runConfigForm asks for the settings users change most
func runConfigForm(c *config.Config) error {
	enabled := strings.Join(c.Keyboards.Enabled, ",")
	menuShow := strconv.Itoa(c.Timing.MenuShowMs)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Keyboard catalog").
				Description("Path to a catalog file, empty for the built-in keyboards").
				Value(&c.Keyboards.CatalogPath),
			huh.NewInput().
				Title("Enabled keyboards").
				Description("Comma separated switching order, empty for all").
				Value(&enabled),
			huh.NewInput().
				Title("Default keyboard").
				Value(&c.Keyboards.Default),
			huh.NewInput().
				Title("Long press delay (ms)").
				Validate(validatePositive).
				Value(&menuShow),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Send typed keys to").
				Options(
					huh.NewOption("Log only", config.SinkLog),
					huh.NewOption("Virtual keyboard (uinput)", config.SinkUInput),
				).
				Value(&c.Sink.Backend),
			huh.NewConfirm().
				Title("Serve the keyboard over SSH?").
				Value(&c.SSH.Enabled),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	c.Keyboards.Enabled = splitList(enabled)
	c.Timing.MenuShowMs, _ = strconv.Atoi(menuShow)
	return nil
}

func validatePositive(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return fmt.Errorf("enter a positive number")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if out == nil {
		out = []string{}
	}
	return out
}

var configSSHCmd = &cobra.Command{
	Use:   "ssh",
	Short: "Manage the SSH key whitelist",
}

var configSSHListCmd = &cobra.Command{
	Use:   "list",
	Short: "List whitelisted SSH keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()
		out := cmd.OutOrStdout()

		if len(cfg.SSH.Whitelist) == 0 {
			fmt.Fprintln(out, "No SSH keys in whitelist")
		}
		for i, fp := range cfg.SSH.Whitelist {
			fmt.Fprintf(out, "%d. %s\n", i+1, fp)
		}

		if cfg.SSH.WhitelistOnly {
			fmt.Fprintln(out, "\nWhitelist-only mode is ENABLED")
		} else {
			fmt.Fprintln(out, "\nWhitelist-only mode is DISABLED, all SSH keys are accepted")
		}
		return nil
	},
}

var configSSHAddCmd = &cobra.Command{
	Use:   "add <fingerprint>",
	Short: "Add an SSH key fingerprint to the whitelist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fingerprint := args[0]
		if !strings.HasPrefix(fingerprint, "SHA256:") {
			return fmt.Errorf("expected a SHA256 fingerprint, got %q", fingerprint)
		}
		if err := config.AddSSHKeyToWhitelist(fingerprint); err != nil {
			return err
		}
		logger.Infof("Added SSH key to whitelist: %s", fingerprint)
		return nil
	},
}

var configSSHRemoveCmd = &cobra.Command{
	Use:   "remove <fingerprint>",
	Short: "Remove SSH key from whitelist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.RemoveSSHKeyFromWhitelist(args[0]); err != nil {
			return err
		}
		logger.Infof("Removed SSH key from whitelist: %s", args[0])
		return nil
	},
}

var configSSHClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear all SSH keys from whitelist",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := *config.Get()
		count := len(c.SSH.Whitelist)
		if count == 0 {
			logger.Info("Whitelist is already empty")
			return nil
		}

		c.SSH.Whitelist = []string{}
		if err := config.Update(c); err != nil {
			return err
		}
		logger.Infof("Cleared %d SSH key(s) from whitelist", count)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSaveCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configEditCmd)
	configCmd.AddCommand(configSSHCmd)

	configSSHCmd.AddCommand(configSSHListCmd)
	configSSHCmd.AddCommand(configSSHAddCmd)
	configSSHCmd.AddCommand(configSSHRemoveCmd)
	configSSHCmd.AddCommand(configSSHClearCmd)

	configInitCmd.Flags().Bool("force", false, "Force overwrite existing configuration")

	rootCmd.AddCommand(configCmd)
}
