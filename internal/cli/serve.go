package cli

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ruleloop/internal/api"
	"ruleloop/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the background analysis and monitoring loops",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// analysisJob adapts the analyzer to the scheduler; run results are already
// persisted and logged, the scheduler only needs pass/fail.
type analysisJob struct {
	app *app
}

func (j analysisJob) Run(ctx context.Context) error {
	_, err := j.app.analyzer.Run(ctx)
	return err
}

type monitorJob struct {
	app *app
}

func (j monitorJob) Monitor(ctx context.Context) error {
	_, err := j.app.engine.Monitor(ctx)
	return err
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	sched, err := scheduler.New(scheduler.Config{
		AnalysisSchedule:   a.cfg.AnalysisSchedule,
		MonitoringSchedule: a.cfg.MonitoringSchedule,
		RunBudget:          a.cfg.RunBudget(),
		Location:           a.cfg.Location,
	}, analysisJob{a}, monitorJob{a})
	if err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	server := api.NewServer(a.store, a.store, a.engine, a.store)
	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(a.cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-stop:
		log.Printf("received %s, shutting down", sig)
	case err := <-errCh:
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}
