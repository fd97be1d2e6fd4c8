//go:build !ffi

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"social-checker/internal/config"
	"social-checker/internal/manager"
	"social-checker/internal/notify"
	"social-checker/internal/parser"
	"social-checker/internal/server"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(2)
	}

	a, err := newApp(cfg, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}

	if cfg.Serve {
		err = a.serve()
	} else {
		err = a.runBatch()
	}
	if closeErr := a.close(); closeErr != nil {
		fmt.Fprintf(os.Stderr, "⚠️ shutdown: %v\n", closeErr)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

// runBatch checks the configured input file once and exports the buckets
func (a *app) runBatch() error {
	sigs := []os.Signal{os.Interrupt, syscall.SIGTERM}
	pause, resume := controlSignals()
	if pause != nil {
		sigs = append(sigs, pause, resume)
	}
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, sigs...)
	defer signal.Stop(sigCh)

	return a.batch(sigCh, pause, resume)
}

// batch runs the input file to completion or until a stop arrives on sigCh
func (a *app) batch(sigCh <-chan os.Signal, pause, resume os.Signal) error {
	f, err := os.Open(a.cfg.Input)
	if err != nil {
		return fmt.Errorf("accounts file: %w", err)
	}
	entries, err := parser.Parse(f, parser.Options{Dedupe: a.cfg.Dedupe})
	f.Close()
	if err != nil {
		return err
	}

	fmt.Println("🔎 Account Checker")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("🌐 Platform: %s\n", a.cfg.Platform)
	fmt.Printf("📁 Accounts file: %s\n", a.cfg.Input)
	fmt.Printf("📈 Total accounts to check: %s\n", humanize.Comma(int64(len(entries))))
	fmt.Printf("🔧 Workers: %d\n", a.cfg.Workers)
	fmt.Printf("⏱ Delay: %s - %s\n", a.cfg.MinDelay, a.cfg.MaxDelay)
	fmt.Printf("💾 Output directory: %s\n", a.cfg.OutputDir)
	fmt.Println(strings.Repeat("=", 60))

	run, err := a.manager.Start(context.Background(), entries, a.cfg.Platform)
	if err != nil {
		return err
	}

	if pause != nil {
		fmt.Printf("⏸  kill -USR1 %d pauses, kill -USR2 %d resumes\n", os.Getpid(), os.Getpid())
	}
	a.watchSignals(run, sigCh, pause, resume)

	files, exportErr := a.exportRun(run)
	printSummary(run.Status(), files)
	return multierr.Append(run.State.Err(), exportErr)
}

func (a *app) watchSignals(run *manager.Run, sigCh <-chan os.Signal, pause, resume os.Signal) {
	interrupts := 0
	for {
		select {
		case <-run.Finished():
			return
		case sig := <-sigCh:
			var err error
			switch sig {
			case pause:
				err = a.manager.Pause()
			case resume:
				err = a.manager.Resume()
			default:
				interrupts++
				if interrupts > 1 {
					fmt.Fprintln(os.Stderr, "❌ interrupted twice, exiting without export")
					os.Exit(130)
				}
				fmt.Println("🛑 Stopping, waiting for in-flight checks (interrupt again to force)")
				err = a.manager.Stop()
			}
			if err != nil {
				a.logger.Warn("signal ignored", zap.Stringer("signal", sig), zap.Error(err))
			}
		}
	}
}

func printSummary(s manager.Status, files []string) {
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println(notify.Summary(s))
	for _, f := range files {
		fmt.Printf("💾 %s\n", filepath.Clean(f))
	}
	fmt.Println(strings.Repeat("=", 60))
}

// serve runs the HTTP control API until SIGINT or SIGTERM
func (a *app) serve() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	gin.SetMode(gin.ReleaseMode)
	api := server.New(a.manager, a.registry, server.Options{
		APIToken: a.cfg.APIToken,
		Dedupe:   a.cfg.Dedupe,
		Export:   a.exportOptions(),
	}, a.logger)

	srv := &http.Server{
		Addr:              a.cfg.Listen,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("listening", zap.String("addr", a.cfg.Listen))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down")
		api.Hub().Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
