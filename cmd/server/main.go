package main

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
	"go.uber.org/zap"

	"sitebot/internal/bootstrap"
	httptransport "sitebot/internal/transport/http"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sitebot",
		Short:         "Website chatbot server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
	root.AddCommand(serveCmd, workerCmd, trainCmd, migrateCmd)
	return root
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and, with RabbitMQ enabled, the queue workers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServe(cmd.Context())
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume the training and usage queues without serving HTTP",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		app, err := bootstrap.New(ctx)
		if err != nil {
			return fmt.Errorf("bootstrap failed: %w", err)
		}
		defer closeApp(app)

		if app.MQConn == nil {
			return errors.New("worker mode requires rabbitmq.enabled = true")
		}
		app.RecoverStale(ctx)
		if err := app.StartWorkers(ctx); err != nil {
			return err
		}
		app.Logger.Info("workers started")
		<-ctx.Done()
		return nil
	},
}

var trainCmd = &cobra.Command{
	Use:   "train <site-id>",
	Short: "Start a training job for a site",
	Long: `Start a training job for a site.

Without RabbitMQ the job runs in this process and the command waits for it.
With RabbitMQ the job is queued for a worker and the command returns.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		app, err := bootstrap.New(ctx)
		if err != nil {
			return fmt.Errorf("bootstrap failed: %w", err)
		}
		defer closeApp(app)

		job, err := app.Orchestrator.Start(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "job %s %s\n", job.ID, job.Status)

		app.WaitTraining()
		finished, err := app.Repos.Jobs.GetByID(context.WithoutCancel(ctx), job.ID)
		if err != nil || finished == nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "job %s %s (%d/%d pages)\n", finished.ID, finished.Status, finished.ProcessedPages, finished.TotalPages)
		if finished.ErrorMessage != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "error: %s\n", finished.ErrorMessage)
		}
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := bootstrap.New(cmd.Context())
		if err != nil {
			return fmt.Errorf("bootstrap failed: %w", err)
		}
		defer closeApp(app)
		app.Logger.Info("schema migrated", zap.String("vector_backend", app.Config.Vector.Backend))
		return nil
	},
}

func runServe(parent context.Context) error {
	ctx, stop := signalContext(parent)
	defer stop()

	app, err := bootstrap.New(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap failed: %w", err)
	}
	defer closeApp(app)

	app.RecoverStale(ctx)
	if err := app.StartWorkers(ctx); err != nil {
		return err
	}

	router := httptransport.NewRouter(app)
	server := &http.Server{
		Addr:              app.Config.HTTPAddr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		app.Logger.Info("server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		app.Logger.Warn("server shutdown failed", zap.Error(err))
	}
	return nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func closeApp(app *bootstrap.App) {
	if err := app.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "close resources failed: %v\n", err)
	}
}
