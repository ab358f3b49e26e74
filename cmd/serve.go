package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the Face Attendance web server.
The server exposes the identity, identify and ledger API, a websocket for live
camera frames, Prometheus metrics and the embedded camera UI.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
	serveCmd.Flags().Bool("watch", false, "Reload reference faces when the directory changes (overrides STORE_WATCH)")
	serveCmd.Flags().AddFlagSet(storeFlags())
	serveCmd.Flags().AddFlagSet(matchFlags())
	serveCmd.Flags().AddFlagSet(ledgerFlags())
}

// scheduleReload reloads the reference faces every interval.
func scheduleReload(ctx context.Context, a *app, interval time.Duration) (*gocron.Scheduler, error) {
	scheduler := gocron.NewScheduler(time.Local)
	scheduler.SingletonModeAll()
	_, err := scheduler.Every(interval).WaitForSchedule().Do(func() {
		if err := a.store.Reload(ctx); err != nil {
			a.log.WithError(err).Warn("Scheduled reload failed")
			return
		}
		a.log.WithField("identities", a.store.Len()).Debug("Reference faces reloaded")
	})
	if err != nil {
		return nil, fmt.Errorf("scheduling reload: %w", err)
	}
	scheduler.StartAsync()
	return scheduler, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.cfg
	if cmd.Flags().Changed("port") {
		cfg.Web.Port = mustGetInt(cmd, "port")
	}
	if cmd.Flags().Changed("host") {
		cfg.Web.Host = mustGetString(cmd, "host")
	}
	if cmd.Flags().Changed("watch") {
		cfg.Store.Watch = mustGetBool(cmd, "watch")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.client != nil {
		if err := a.client.Health(ctx); err != nil {
			a.log.WithError(err).Warn("Face service is not reachable, identification will fail until it is up")
		}
	}

	if cfg.Store.Watch {
		go func() {
			if err := a.store.Watch(ctx); err != nil {
				a.log.WithError(err).Error("Reference directory watcher stopped")
			}
		}()
	}
	if cfg.Store.ReloadInterval > 0 {
		scheduler, err := scheduleReload(ctx, a, cfg.Store.ReloadInterval)
		if err != nil {
			return err
		}
		defer scheduler.Stop()
	}

	server := web.NewServer(cfg, web.Deps{
		Store:    a.store,
		Engine:   a.engine,
		Sessions: attendance.NewSessions(),
		Metrics:  a.metrics,
		Log:      a.log,
	})

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Face Attendance on http://%s:%d\n", cfg.Web.Host, cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	<-shutdownDone
	return nil
}
