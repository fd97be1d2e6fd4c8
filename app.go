package main

import (
	"context"
	"errors"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"social-checker/internal/config"
	"social-checker/internal/export"
	"social-checker/internal/filewriter"
	"social-checker/internal/logger"
	"social-checker/internal/manager"
	"social-checker/internal/notify"
	"social-checker/internal/platform"
	"social-checker/internal/probe"
)

// app wires a manager and its reporters from one configuration
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	closeLog func() error
	registry *platform.Registry
	manager  *manager.Manager
	streamer *filewriter.Streamer
}

func newApp(cfg config.Config, console bool) (*app, error) {
	log, closeLog, err := logger.New(logger.Options{
		LogFile: cfg.LogFile,
		Level:   cfg.LogLevel,
		Console: console,
	})
	if err != nil {
		return nil, err
	}

	registry := platform.Default()
	if cfg.PlatformsFile != "" {
		if err := registry.LoadFile(cfg.PlatformsFile); err != nil {
			return nil, multierr.Append(err, closeLog())
		}
	}

	resolver := probe.RegistryResolver{
		Registry: registry,
		Options: probe.HTTPOptions{
			Timeout:      cfg.ProbeTimeout,
			UserAgent:    cfg.UserAgent,
			MaxBodyBytes: cfg.MaxBodyBytes,
			Logger:       log,
		},
	}
	m := manager.New(resolver, manager.Options{
		Workers:       cfg.Workers,
		MinDelay:      cfg.MinDelay,
		MaxDelay:      cfg.MaxDelay,
		PollInterval:  cfg.PollInterval,
		ProbeTimeout:  cfg.ProbeTimeout,
		StatsInterval: cfg.StatsInterval,
	}, log)

	a := &app{cfg: cfg, logger: log, closeLog: closeLog, registry: registry, manager: m}

	if cfg.StreamResults {
		a.streamer = filewriter.NewStreamer(cfg.OutputDir, a.exportOptions(), log)
		m.AddReporter(a.streamer)
	}
	if cfg.TelegramToken != "" {
		tg, err := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID, log)
		if err != nil {
			// a broken bot must not block checking
			log.Warn("telegram disabled", zap.Error(err))
		} else {
			m.AddReporter(tg)
		}
	}
	return a, nil
}

func (a *app) exportOptions() export.Options {
	return export.Options{
		IncludePlatform: a.cfg.IncludePlatform,
		FoldUnknown:     a.cfg.FoldUnknown,
	}
}

// exportRun writes the bucket files of a finished run into the output directory
func (a *app) exportRun(run *manager.Run) ([]string, error) {
	format, err := export.ParseFormat(a.cfg.Format)
	if err != nil {
		return nil, err
	}
	return export.WriteFiles(a.cfg.OutputDir, run.Platform, run.Snapshot(), format, a.exportOptions())
}

func (a *app) close() error {
	var err error
	if a.manager != nil {
		if stopErr := a.manager.Stop(); stopErr != nil && !errors.Is(stopErr, manager.ErrNoRun) {
			err = multierr.Append(err, stopErr)
		}
		if run := a.manager.Current(); run != nil {
			// in-flight probes are bounded by the probe timeout
			ctx, cancel := context.WithTimeout(context.Background(), a.manager.Options().ProbeTimeout+5*time.Second)
			if waitErr := run.Wait(ctx); errors.Is(waitErr, context.DeadlineExceeded) {
				err = multierr.Append(err, waitErr)
			}
			cancel()
		}
	}
	if a.streamer != nil {
		err = multierr.Append(err, a.streamer.Close())
	}
	return multierr.Append(err, a.closeLog())
}
