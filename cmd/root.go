package cmd

import (
	"github.com/bnema/softkeys/internal/config"
	"github.com/bnema/softkeys/internal/logger"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	socketPath string

	rootCmd = &cobra.Command{
		Use:   "softkeys",
		Short: "Softkeys - a soft keyboard for pointer-only input",
		Long: `Softkeys is an on-screen keyboard driven entirely by pointer events.
Long-press a key for alternate characters, double-tap shift for caps lock,
double-tap space for a period and route keys through scripted input method
engines. The keyboard runs in the terminal, in a browser over a WebSocket
bridge or for remote users over SSH.`,
		SilenceUsage:      true,
		PersistentPreRunE: initConfig,
	}
)

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s\n" .Version}}`)

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: ~/.config/softkeys/softkeys.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "", "IPC socket of the running keyboard (default: per-user socket)")
}

func initConfig(cmd *cobra.Command, args []string) error {
	config.SetConfigPath(configPath)
	if err := config.Init(); err != nil {
		return err
	}

	level := config.Get().Logging.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	if level != "" {
		logger.SetLevel(level)
	}
	return nil
}
