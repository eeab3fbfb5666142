package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/bnema/softkeys/internal/bridge"
	"github.com/bnema/softkeys/internal/config"
	"github.com/bnema/softkeys/internal/host"
	"github.com/bnema/softkeys/internal/layout"
	"github.com/bnema/softkeys/internal/logger"
	"github.com/bnema/softkeys/internal/network"
	"github.com/bnema/softkeys/internal/ui"
	"github.com/charmbracelet/ssh"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveListen string
	serveSSH    bool
	servePort   int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve keyboards over WebSocket and SSH",
	Long: `Serve the keyboard to remote hosts.

Browser pages connect to the WebSocket bridge and render the keyboard from
the messages it sends; every connection gets its own keyboard state. With
--ssh (or ssh.enabled in the config) the terminal keyboard is also served
to SSH clients. Keys typed anywhere also reach the configured sink.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveListen, "listen", "l", "", "Bridge listen address")
	serveCmd.Flags().BoolVar(&serveSSH, "ssh", false, "Also serve the keyboard over SSH")
	serveCmd.Flags().IntVarP(&servePort, "ssh-port", "p", 0, "SSH port")

	viper.BindPFlag("bridge.listen_address", serveCmd.Flags().Lookup("listen"))
	viper.BindPFlag("ssh.port", serveCmd.Flags().Lookup("ssh-port"))

	rootCmd.AddCommand(serveCmd)
}

// sharedCatalog is the catalog new SSH keyboards start with
type sharedCatalog struct {
	mu      sync.Mutex
	catalog layout.Catalog
}

func (s *sharedCatalog) get() layout.Catalog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.catalog
}

func (s *sharedCatalog) set(c layout.Catalog) {
	s.mu.Lock()
	s.catalog = c
	s.mu.Unlock()
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	if serveListen != "" {
		cfg.Bridge.ListenAddress = serveListen
	}
	if servePort != 0 {
		cfg.SSH.Port = servePort
	}

	catalog, err := loadCatalog(cfg)
	if err != nil {
		return err
	}
	current := &sharedCatalog{catalog: catalog}

	sink, closeSink, err := openSink(cfg)
	if err != nil {
		return fmt.Errorf("failed to open key sink: %w", err)
	}
	defer closeSink()

	br, err := bridge.NewServer(bridge.Options{
		Config:  cfg.ControllerConfig(),
		Catalog: catalog,
		Loader:  newLoader(cfg),
		Sink:    sink,
	})
	if err != nil {
		return fmt.Errorf("failed to create bridge: %w", err)
	}
	defer br.Close()

	mux := http.NewServeMux()
	mux.Handle(cfg.Bridge.Path, br)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "ok %d sessions\n", len(br.Sessions()))
	})
	httpServer := &http.Server{
		Addr:              cfg.Bridge.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sshServer *network.SSHServer
	if serveSSH || cfg.SSH.Enabled {
		sshServer = network.NewSSHServer(cfg.SSH, func(ssh.Session) (*ui.Model, error) {
			return ui.NewModel(ui.Options{
				Config:  cfg.ControllerConfig(),
				Catalog: current.get(),
				Loader:  newLoader(cfg),
				Sink:    sink,
				Resizer: host.LogResizer{},
			})
		})
		sshServer.OnAuthRequest = func(addr, publicKey, fingerprint string) bool {
			logger.Warn("Unknown SSH key refused, approve it with 'softkeys config ssh add'",
				"addr", addr, "fingerprint", fingerprint)
			return false
		}
		if err := sshServer.Start(ctx); err != nil {
			return err
		}
		defer sshServer.Stop()
	}

	go watchCatalog(ctx, cfg, func(c layout.Catalog) {
		current.set(c)
		br.SetCatalog(c)
		if sshServer != nil {
			sshServer.Each(func(m *ui.Model) { m.SetCatalog(c) })
		}
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Keyboard bridge listening on ws://%s%s", cfg.Bridge.ListenAddress, cfg.Bridge.Path)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("bridge server failed: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	br.Close()
	return httpServer.Shutdown(shutdownCtx)
}
