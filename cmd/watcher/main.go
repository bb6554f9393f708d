package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/etesami/roi-watcher/internal/alert"
	"github.com/etesami/roi-watcher/internal/capture"
	"github.com/etesami/roi-watcher/internal/config"
	"github.com/etesami/roi-watcher/internal/control"
	"github.com/etesami/roi-watcher/internal/feed"
	"github.com/etesami/roi-watcher/internal/session"
	"github.com/etesami/roi-watcher/internal/tracker"
	"github.com/etesami/roi-watcher/internal/ui"
	"github.com/etesami/roi-watcher/pkg/logger"
	metric "github.com/etesami/roi-watcher/pkg/metric"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		return 2
	}
	if err := logger.Init(cfg.LogMode); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		return 2
	}
	defer logger.Sync()
	log := logger.Log()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Println(strings.Repeat("#", 64))
	fmt.Println("ROI Watcher")
	fmt.Printf("Snapshots will be saved to: %s\n", cfg.SnapshotDir)
	if cfg.Headless {
		fmt.Println("Headless: reselect and quit through the control API.")
	} else {
		fmt.Println("Press 'r' to re-select the region, 'q' to quit.")
	}
	fmt.Println(strings.Repeat("#", 64))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	m := metric.RegisterMetrics(reg, cfg.ProcTimeBuckets, cfg.DriftBuckets)

	factory, mode, err := tracker.Select(cfg.TrackerMode, cfg.NativeTracker)
	if err != nil {
		log.Error("no tracker available", zap.Error(err))
		return 1
	}
	log.Info("tracker selected", zap.String("mode", string(mode)), zap.String("preference", string(cfg.TrackerMode)))

	source, err := capture.Open(capture.Config{
		VideoSource: cfg.VideoSource,
		WebcamIndex: cfg.WebcamIndex,
	}, log)
	if err != nil {
		log.Error("cannot open video source", zap.Error(err))
		return 1
	}
	defer source.Close()

	hub := feed.NewHub(feed.DefaultBuffer, log)
	sinks := alert.Multi{
		alert.NewActionSink(cfg.SnapshotDir, os.Stdout, log, m),
		feed.NewSink(hub),
	}
	if cfg.WebhookURL != "" {
		webhook := alert.NewWebhookSink(cfg.WebhookURL, cfg.WebhookTimeoutDuration(), log, m)
		defer webhook.Close()
		sinks = append(sinks, webhook)
	}

	var (
		selector session.ROISelector
		renderer session.Renderer
	)
	if cfg.Headless {
		selector = ui.NewHeadlessSelector(cfg.InitialROI, log)
	} else {
		window := ui.NewWindow(ui.WindowTitle)
		defer window.Close()
		renderer = window
		selector = ui.NewWindowSelector(log)
	}

	ctrl := session.New(factory, source, selector, renderer, sinks, session.Options{
		Label:                   cfg.ObjectLabel,
		Threshold:               float64(cfg.MoveThresholdPx),
		Cooldown:                cfg.Cooldown(),
		ResetCooldownOnReselect: cfg.ResetOnReselect,
		Log:                     log,
		Metric:                  m,
	})

	// edge services stop with the session
	edgeCtx, stopEdges := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer wg.Wait()
	defer stopEdges()

	wg.Add(1)
	go func() {
		defer wg.Done()
		m.StartProcessMonitor(edgeCtx, time.Second, log)
	}()

	if cfg.ControlAddr != "" {
		srv := control.NewServer(ctrl, hub, reg, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.ListenAndServe(edgeCtx, cfg.ControlAddr); err != nil {
				log.Error("control server failed", zap.Error(err))
			}
		}()
	}
	if cfg.FeedAddr != "" {
		fs := &feed.Server{
			Hub:      hub,
			StatusFn: func() map[string]any { return ctrl.Status().Map() },
			Log:      log,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fs.ListenAndServe(edgeCtx, cfg.FeedAddr); err != nil {
				log.Error("alert feed server failed", zap.Error(err))
			}
		}()
	}

	err = ctrl.Run(ctx)
	if errors.Is(err, session.ErrFrameSource) {
		log.Error("lost video feed", zap.Error(err))
		return 1
	}
	if err != nil {
		log.Error("session ended with error", zap.Error(err))
		return 1
	}
	log.Info("quitting")
	return 0
}
