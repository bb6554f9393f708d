package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "github.com/etesami/roi-watcher/api"
	"github.com/etesami/roi-watcher/internal/alert"
	"github.com/etesami/roi-watcher/internal/feed"
	"github.com/etesami/roi-watcher/pkg/logger"
	utils "github.com/etesami/roi-watcher/pkg/utils"

	"go.uber.org/zap"
	"google.golang.org/grpc"
)

func main() {
	host := flag.String("host", envOr("REMOTE_FEED_HOST", "localhost"), "watcher feed host")
	port := flag.String("port", envOr("REMOTE_FEED_PORT", "50051"), "watcher feed port")
	retry := flag.Duration("retry", 5*time.Second, "reconnect delay")
	flag.Parse()

	if err := logger.Init(envOr("LOG_MODE", "development")); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(2)
	}
	defer logger.Sync()
	log := logger.Log()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	target := api.Service{Address: *host, Port: *port}
	utils.MonitorConnection(ctx, target, *retry, log, func(ctx context.Context, conn *grpc.ClientConn) error {
		client := feed.NewClient(conn)

		statusCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		st, err := client.Status(statusCtx)
		cancel()
		if err != nil {
			return err
		}
		log.Info("watcher status",
			zap.Any("label", st["label"]),
			zap.Any("mode", st["mode"]),
			zap.Any("classification", st["classification"]),
			zap.Any("governor", st["governor"]),
		)

		return client.Subscribe(ctx, func(ev alert.Event) error {
			fmt.Println(ev.LogLine())
			log.Debug("alert received",
				zap.String("baseline_id", ev.BaselineID),
				zap.Stringer("box", ev.Box),
				zap.Float64("confidence", ev.Confidence),
				zap.Duration("delay", time.Since(ev.Timestamp)),
			)
			return nil
		})
	})
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
