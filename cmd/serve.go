package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/kiesman99/layouttiler/internal/config"
	"github.com/kiesman99/layouttiler/internal/run"
	"github.com/kiesman99/layouttiler/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for the run control API",
	Long: `Start an HTTP server that starts, observes and cancels pyramid uploads.

One run is active at a time. Starting a second run while one is in progress
is rejected with 409.

Examples:
  # Start server on default port 8080
  layouttiler serve

  # Start server on custom port
  layouttiler serve --port 3000

  # Start server with custom bind address
  layouttiler serve --bind 0.0.0.0 --port 8080`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	// Server configuration
	serveCmd.Flags().String("bind", "localhost", "bind address")
	serveCmd.Flags().IntP("port", "p", 8080, "port to listen on")
	serveCmd.Flags().Duration("request-timeout", 30*time.Second, "HTTP request timeout")
	serveCmd.Flags().StringSlice("allowed-origins", []string{"*"}, "CORS allowed origins")

	// Bind flags to viper
	viper.BindPFlag("http.bind", serveCmd.Flags().Lookup("bind"))
	viper.BindPFlag("http.port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("http.timeout", serveCmd.Flags().Lookup("request-timeout"))
	viper.BindPFlag("http.allowed-origins", serveCmd.Flags().Lookup("allowed-origins"))
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}

	bind := viper.GetString("http.bind")
	port := viper.GetInt("http.port")
	timeout := viper.GetDuration("http.timeout")

	addr := fmt.Sprintf("%s:%d", bind, port)

	manager := run.NewManager(run.Options{Logger: &logger})

	// Create server implementation
	apiServer := server.NewServer(server.Options{
		Version:   Version,
		Manager:   manager,
		Logger:    &logger,
		Timeout:   viper.GetDuration(config.KeyTimeout),
		UserAgent: viper.GetString(config.KeyUserAgent),
	})

	r := server.NewRouter(apiServer, server.RouterOptions{
		Timeout:        timeout,
		AllowedOrigins: viper.GetStringSlice("http.allowed-origins"),
		Logger:         &logger,
	})

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", addr).Msg("starting layouttiler server")
		fmt.Fprintf(cmd.ErrOrStderr(), "Health check: http://%s/api/v1/health\n", addr)
		fmt.Fprintf(cmd.ErrOrStderr(), "Runs endpoint: http://%s/api/v1/runs\n", addr)

		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()

		fmt.Fprintf(cmd.ErrOrStderr(), "\nShutting down server...\n")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("server shutdown error")
		}

		// Stop an active run at its next checkpoint and wait for it.
		if manager.Status().State == run.Running {
			manager.Cancel()
		}
		manager.Wait()
		return nil
	})

	return g.Wait()
}
