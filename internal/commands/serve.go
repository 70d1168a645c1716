package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/spf13/cobra"

	"github.com/BioHazard786/huddle/internal/config"
	"github.com/BioHazard786/huddle/internal/logging"
	"github.com/BioHazard786/huddle/internal/relay"
	"github.com/BioHazard786/huddle/internal/server"
	"github.com/BioHazard786/huddle/internal/ui"
)

var (
	flagAddr     string
	flagOrigins  string
	flagLogLevel string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat and signaling relay",
	Long: `Run the WebSocket relay that brokers room chat and WebRTC signaling.

Examples:
  huddle serve
  huddle serve --addr :8080 --log-level debug
  huddle serve --origins https://chat.example.com`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadServer(config.ServerOptions{
			Addr:           flagAddr,
			AllowedOrigins: flagOrigins,
			LogLevel:       flagLogLevel,
			EnvFile:        flagEnvFile,
		})
		if err != nil {
			return err
		}
		return serve(cfg)
	},
}

func serve(cfg *config.Server) error {
	logger := logging.Init(cfg.LogLevel)

	hub := relay.NewHub(relay.HubConfig{
		LedgerCapacity: cfg.LedgerCapacity,
		EventRate:      cfg.EventRate,
		EventBurst:     cfg.EventBurst,
		Logger:         logger,
	})
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Addr, err)
	}

	srv := &http.Server{
		Handler:           server.NewRouter(hub, cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	logger.Info("relay listening", "addr", ln.Addr().String(), "origins", cfg.AllowedOrigins)
	ui.PrintSuccessf("Relay listening on %s", ln.Addr())
	if len(cfg.AllowedOrigins) == 0 {
		ui.PrintWarning("No allowed origins set, accepting websocket upgrades from any origin")
	}

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"http": func(ctx context.Context) error {
				return srv.Shutdown(ctx)
			},
			"hub": func(ctx context.Context) error {
				stopHub()
				select {
				case <-hub.Done():
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			},
		},
	)

	select {
	case exitCode := <-wait:
		logger.Info("relay stopped", "exitCode", exitCode)
		if exitCode != 0 {
			return fmt.Errorf("shutdown finished with code %d", exitCode)
		}
		return nil
	case err := <-serveErr:
		return fmt.Errorf("serve: %w", err)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&flagAddr, "addr", "a", "", "Listen address (default \":3210\")")
	serveCmd.Flags().StringVar(&flagOrigins, "origins", "", "Comma separated list of allowed websocket origins")
	serveCmd.Flags().StringVarP(&flagLogLevel, "log-level", "l", "", "Log level: debug, info, warn, error")
}
