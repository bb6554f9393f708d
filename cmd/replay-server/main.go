package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/etesami/roi-watcher/internal/replay"
	"github.com/etesami/roi-watcher/pkg/logger"
	"github.com/etesami/roi-watcher/pkg/utils"

	"go.uber.org/zap"
)

func main() {
	if err := logger.Init(os.Getenv("LOG_MODE")); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(2)
	}
	defer logger.Sync()
	log := logger.Log()

	host := os.Getenv("RTSP_SERVER_HOST")
	port := os.Getenv("RTSP_SERVER_PORT")
	if port == "" {
		port = "8554"
	}
	file := os.Getenv("FILEPATH")
	if file == "" {
		log.Fatal("FILEPATH environment variable is not set")
	}
	udpPort := 8000
	if v := os.Getenv("RTSP_UDP_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			log.Fatal("invalid RTSP_UDP_PORT", zap.String("value", v), zap.Error(err))
		}
		udpPort = p
	}
	loop := true
	if v := os.Getenv("LOOP"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			log.Fatal("invalid LOOP", zap.String("value", v), zap.Error(err))
		}
		loop = b
	}

	advertised := host
	if advertised == "" || advertised == "0.0.0.0" {
		ip, err := utils.GetOutboundIP()
		if err != nil {
			log.Warn("could not determine outbound address", zap.Error(err))
			ip = "localhost"
		}
		advertised = ip
	}
	log.Info("set VIDEO_SOURCE on the watcher to",
		zap.String("url", fmt.Sprintf("rtsp://%s:%s/stream", advertised, port)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := replay.NewServer(replay.Config{
		Host:    host,
		Port:    port,
		UDPPort: udpPort,
		File:    file,
		Loop:    loop,
	}, log)
	if err := srv.Run(ctx); err != nil {
		log.Error("replay server stopped", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
	log.Info("replay server shut down")
}
