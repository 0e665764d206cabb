package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"assessment-service/internal/app"
	transport "assessment-service/internal/transport/http"
	"github.com/golang/glog"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	var seed bool
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the assessment server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port, seed)
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", false, "insert the demo catalog before serving (always on without postgres)")
	return cmd
}

func runServer(ctx context.Context, configPath, portFlag string, seed bool) error {
	cfg, svc, err := loadServices(ctx, configPath, false)
	if err != nil {
		return err
	}
	defer svc.Close()

	if seed || !svc.durable {
		if _, err := app.Seed(ctx, svc.store, time.Now()); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	router := transport.NewRouter(
		transport.NewExamHandler(svc.exams),
		transport.NewPracticeHandler(svc.quizzes, svc.puzzles, svc.feed),
		transport.NewWSHandler(svc.puzzles),
	)
	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      transport.WithMiddleware(router, cfg.Server.AllowedOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		glog.Infof("starting assessment service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			glog.Errorf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		glog.Info("shutting down server...")
	case <-ctx.Done():
		glog.Info("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
