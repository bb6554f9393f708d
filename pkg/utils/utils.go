package utils

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	api "github.com/etesami/roi-watcher/api"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// UnixMilliToTime converts a Unix timestamp in milliseconds to a time.Time object
func UnixMilliToTime(unixMilli int64) time.Time {
	return time.Unix(unixMilli/1000, (unixMilli%1000)*int64(time.Millisecond))
}

// ParseBuckets parses a comma-separated string of bucket values into a slice of float64.
// An empty string yields nil so callers fall back to prometheus.DefBuckets.
func ParseBuckets(env string) ([]float64, error) {
	if env == "" {
		return nil, nil
	}
	parts := strings.Split(env, ",")
	var buckets []float64
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("error parsing bucket value '%s': %v", p, err)
		}
		if len(buckets) > 0 && f <= buckets[len(buckets)-1] {
			return nil, fmt.Errorf("bucket values must be strictly increasing, got %v after %v", f, buckets[len(buckets)-1])
		}
		buckets = append(buckets, f)
	}
	return buckets, nil
}

func GetOutboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", fmt.Errorf("failed to get outbound IP: %v", err)
	}
	defer conn.Close()
	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String(), nil
}

// MonitorConnection keeps a gRPC client connection to targetSvc alive and hands
// it to onConn. When onConn returns (stream ended, server gone) the connection
// is dropped and re-established after retry. Returns when ctx is cancelled.
func MonitorConnection(ctx context.Context, targetSvc api.Service, retry time.Duration,
	log *zap.Logger, onConn func(context.Context, *grpc.ClientConn) error) {

	for {
		if ctx.Err() != nil {
			return
		}
		if err := targetSvc.ServiceReachable(); err != nil {
			log.Warn("target service is not reachable",
				zap.String("target", targetSvc.Target()), zap.Error(err))
			if !sleepCtx(ctx, retry) {
				return
			}
			continue
		}

		conn, err := grpc.NewClient(targetSvc.Target(),
			grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			log.Warn("failed to connect", zap.String("target", targetSvc.Target()), zap.Error(err))
			if !sleepCtx(ctx, retry) {
				return
			}
			continue
		}
		log.Info("gRPC client connected", zap.String("target", targetSvc.Target()))

		if err := onConn(ctx, conn); err != nil && ctx.Err() == nil {
			log.Warn("connection handler ended", zap.Error(err))
		}
		conn.Close()
		if !sleepCtx(ctx, retry) {
			return
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
