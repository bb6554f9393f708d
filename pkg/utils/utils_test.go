package utils

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	api "github.com/etesami/roi-watcher/api"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

func TestParseBuckets(t *testing.T) {
	b, err := ParseBuckets("")
	require.NoError(t, err)
	assert.Nil(t, b)

	b, err = ParseBuckets("1, 2.5,10")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2.5, 10}, b)

	_, err = ParseBuckets("1,x")
	assert.Error(t, err)

	_, err = ParseBuckets("5,1")
	assert.Error(t, err)
}

func TestUnixMilliToTime(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 250*int(time.Millisecond), time.UTC)
	assert.True(t, ts.Equal(UnixMilliToTime(ts.UnixMilli())))
}

func TestMonitorConnectionHandsOverConnection(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer lis.Close()
	_, port, _ := net.SplitHostPort(lis.Addr().String())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	done := make(chan struct{})
	go func() {
		MonitorConnection(ctx, api.Service{Address: "127.0.0.1", Port: port}, 10*time.Millisecond, zap.NewNop(),
			func(ctx context.Context, conn *grpc.ClientConn) error {
				assert.NotNil(t, conn)
				if calls.Add(1) == 2 {
					cancel()
				}
				return nil
			})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("MonitorConnection did not return after cancel")
	}
	assert.GreaterOrEqual(t, calls.Load(), int32(2))
}

func TestMonitorConnectionUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	MonitorConnection(ctx, api.Service{}, 10*time.Millisecond, zap.NewNop(),
		func(context.Context, *grpc.ClientConn) error {
			t.Fatal("handler must not run for an unset service")
			return nil
		})
}
