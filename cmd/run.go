package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bnema/softkeys/internal/config"
	"github.com/bnema/softkeys/internal/host"
	"github.com/bnema/softkeys/internal/logger"
	"github.com/bnema/softkeys/internal/ui"
	"github.com/spf13/cobra"
)

var runKeyboardName string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Show the keyboard in the terminal",
	Long: `Show the keyboard in the terminal and drive it with the mouse.

Typed keys go to the configured sink: the log, or a uinput virtual keyboard
so they reach the focused application. While the keyboard runs, 'softkeys
status' and 'softkeys switch' talk to it over a per-user socket.`,
	RunE: runKeyboard,
}

func init() {
	runCmd.Flags().StringVarP(&runKeyboardName, "keyboard", "k", "", "Keyboard to start with")
	rootCmd.AddCommand(runCmd)
}

func runKeyboard(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	ctrlCfg := cfg.ControllerConfig()
	if runKeyboardName != "" {
		ctrlCfg.Keyboard = runKeyboardName
	}

	catalog, err := loadCatalog(cfg)
	if err != nil {
		return err
	}

	sink, closeSink, err := openSink(cfg)
	if err != nil {
		return fmt.Errorf("failed to open key sink: %w", err)
	}
	defer closeSink()

	// The keyboard owns the terminal from here on
	restore, err := ui.RedirectLogs(cfg.Logging.LogFile)
	if err != nil {
		return err
	}
	defer restore()

	model, err := ui.NewModel(ui.Options{
		Config:  ctrlCfg,
		Catalog: catalog,
		Loader:  newLoader(cfg),
		Sink:    sink,
		Resizer: host.LogResizer{},
	})
	if err != nil {
		return fmt.Errorf("failed to create keyboard: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if client, err := newIPCClient(); err == nil && client.IsRunning() {
		logger.Warn("Another keyboard already answers on the IPC socket, remote control disabled")
	} else if server, err := newIPCServer(newKeyboardHandler(model.Do)); err != nil {
		logger.Warnf("IPC disabled: %v", err)
	} else if err := server.Start(); err != nil {
		logger.Warnf("IPC disabled: %v", err)
	} else {
		defer server.Stop()
	}

	go watchCatalog(ctx, cfg, model.SetCatalog)

	return ui.Run(ctx, model, ui.ProgramConfig{})
}
