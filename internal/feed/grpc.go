package feed

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/etesami/roi-watcher/internal/alert"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	serviceName      = "watcher.AlertFeed"
	statusMethod     = "/" + serviceName + "/Status"
	subscribeMethod  = "/" + serviceName + "/Subscribe"
	subscribeStream  = "Subscribe"
	statusMethodName = "Status"
)

// AlertFeedServer is the server side of watcher.AlertFeed. Messages are
// protobuf well-known types so no generated code is needed.
type AlertFeedServer interface {
	Status(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Subscribe(*emptypb.Empty, grpc.ServerStream) error
}

var AlertFeedServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*AlertFeedServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: statusMethodName, Handler: statusHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: subscribeStream, Handler: subscribeHandler, ServerStreams: true},
	},
	Metadata: "watcher/alert_feed",
}

func statusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AlertFeedServer).Status(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: statusMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AlertFeedServer).Status(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func subscribeHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(AlertFeedServer).Subscribe(in, stream)
}

// Server implements AlertFeedServer on top of a Hub.
type Server struct {
	Hub *Hub
	// StatusFn reports the watcher's current state; nil serves an empty struct.
	StatusFn func() map[string]any
	Log      *zap.Logger
}

func (s *Server) Register(gs *grpc.Server) {
	gs.RegisterService(&AlertFeedServiceDesc, s)
}

func (s *Server) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

func (s *Server) Status(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if s.StatusFn == nil {
		return &structpb.Struct{}, nil
	}
	out, err := statusStruct(s.StatusFn())
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding status: %v", err)
	}
	return out, nil
}

func (s *Server) Subscribe(_ *emptypb.Empty, stream grpc.ServerStream) error {
	id, ch := s.Hub.Subscribe()
	defer s.Hub.Unsubscribe(id)
	s.logger().Info("alert feed subscriber connected", zap.String("id", id))

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			s.logger().Info("alert feed subscriber left", zap.String("id", id))
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			msg, err := EventToStruct(ev)
			if err != nil {
				s.logger().Error("encoding alert", zap.Error(err))
				continue
			}
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
		}
	}
}

// ListenAndServe serves the feed on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	gs := grpc.NewServer()
	s.Register(gs)

	go func() {
		<-ctx.Done()
		s.Hub.Close()
		gs.GracefulStop()
	}()
	s.logger().Info("starting alert feed gRPC server", zap.String("addr", lis.Addr().String()))
	if err := gs.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Client calls watcher.AlertFeed on an established connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) Status(ctx context.Context) (map[string]any, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, statusMethod, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

// Subscribe streams alerts to fn until the server ends the stream, ctx is
// cancelled or fn returns an error.
func (c *Client) Subscribe(ctx context.Context, fn func(alert.Event) error) error {
	stream, err := c.cc.NewStream(ctx, &AlertFeedServiceDesc.Streams[0], subscribeMethod)
	if err != nil {
		return err
	}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		msg := new(structpb.Struct)
		if err := stream.RecvMsg(msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		ev, err := EventFromStruct(msg)
		if err != nil {
			return err
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
}
