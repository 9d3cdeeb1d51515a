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
	"golang.org/x/sync/errgroup"

	"codequest/internal/api"
	"codequest/internal/app/service"
	"codequest/internal/app/worker"
	"codequest/internal/platform/config"
)

const shutdownTimeout = 15 * time.Second

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	grader := a.gradingService()
	g, gctx := errgroup.WithContext(ctx)

	var scheduler service.Scheduler
	switch a.cfg.GradingMode {
	case config.GradingModeInline:
		inline := service.NewInlineScheduler(grader, a.log.Named("scheduler"))
		// in-flight grading finishes before the process exits
		defer inline.Wait()
		scheduler = inline
	case config.GradingModeQueue:
		scheduler = service.NewQueueScheduler(a.rdb, a.cfg.GradingQueueName)
		if !serveNoWorker {
			w := a.newWorker(grader)
			g.Go(func() error {
				w.Start(gctx)
				return nil
			})
		}
	default:
		return fmt.Errorf("unknown grading mode %q", a.cfg.GradingMode)
	}

	submissions := service.NewSubmissionService(a.submissions, a.problems, a.users, a.achievements, scheduler, a.log.Named("submissions"))
	server := &http.Server{
		Addr:         ":" + a.cfg.APIPort,
		Handler:      api.NewRouter(submissions, a.cfg.AppEnv),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g.Go(func() error {
		a.log.Info("server starting", zap.String("port", a.cfg.APIPort), zap.String("grading_mode", a.cfg.GradingMode))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("could not listen on %s: %w", a.cfg.APIPort, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	a.log.Info("server stopped gracefully")
	return nil
}

func runWorker(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	a.newWorker(a.gradingService()).Start(ctx)
	return nil
}

func (a *app) newWorker(grader service.Grader) *worker.GradingWorker {
	return worker.NewGradingWorker(a.rdb, grader, worker.Options{
		Queue:       a.cfg.GradingQueueName,
		LockPrefix:  a.cfg.GradingLockPrefix,
		LockTTL:     time.Duration(a.cfg.GradingLockTTLSeconds) * time.Second,
		Concurrency: workerConcurrency,
	}, a.log.Named("worker"))
}
