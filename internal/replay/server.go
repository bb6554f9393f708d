package replay

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/bluenviron/gortsplib/v4"
	"github.com/bluenviron/gortsplib/v4/pkg/base"
	"github.com/bluenviron/gortsplib/v4/pkg/description"
	"github.com/bluenviron/gortsplib/v4/pkg/format"
	"go.uber.org/zap"
)

type Config struct {
	// Host and Port form the RTSP listen address; UDP RTP/RTCP use
	// UDPPort and UDPPort+1 on the same host.
	Host    string
	Port    string
	UDPPort int
	File    string
	Loop    bool
}

func (c Config) rtspAddress() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// Server serves one recording to any number of RTSP readers.
type Server struct {
	config Config
	log    *zap.Logger

	server *gortsplib.Server
	stream *gortsplib.ServerStream
	mutex  sync.RWMutex
}

func NewServer(config Config, log *zap.Logger) *Server {
	if config.UDPPort == 0 {
		config.UDPPort = 8000
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{config: config, log: log}
}

// called when a connection is opened.
func (s *Server) OnConnOpen(ctx *gortsplib.ServerHandlerOnConnOpenCtx) {
	s.log.Info("conn opened")
}

// called when a connection is closed.
func (s *Server) OnConnClose(ctx *gortsplib.ServerHandlerOnConnCloseCtx) {
	s.log.Info("conn closed", zap.Error(ctx.Error))
}

func (s *Server) OnSessionOpen(ctx *gortsplib.ServerHandlerOnSessionOpenCtx) {
	s.log.Info("session opened")
}

func (s *Server) OnSessionClose(ctx *gortsplib.ServerHandlerOnSessionCloseCtx) {
	s.log.Info("session closed")
}

// called when receiving a DESCRIBE request.
func (s *Server) OnDescribe(ctx *gortsplib.ServerHandlerOnDescribeCtx) (*base.Response, *gortsplib.ServerStream, error) {
	s.log.Debug("DESCRIBE request")

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return &base.Response{
		StatusCode: base.StatusOK,
	}, s.stream, nil
}

// called when receiving a SETUP request.
func (s *Server) OnSetup(ctx *gortsplib.ServerHandlerOnSetupCtx) (*base.Response, *gortsplib.ServerStream, error) {
	s.log.Debug("SETUP request")

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return &base.Response{
		StatusCode: base.StatusOK,
	}, s.stream, nil
}

// called when receiving a PLAY request.
func (s *Server) OnPlay(ctx *gortsplib.ServerHandlerOnPlayCtx) (*base.Response, error) {
	s.log.Debug("PLAY request")

	return &base.Response{
		StatusCode: base.StatusOK,
	}, nil
}

// Run starts the RTSP server and streams the recording until ctx is
// cancelled, the recording ends (Loop off) or an error occurs.
func (s *Server) Run(ctx context.Context) error {
	f, err := os.Open(s.config.File)
	if err != nil {
		return fmt.Errorf("opening recording: %w", err)
	}
	defer f.Close()

	// clients wait until the stream is set up
	s.mutex.Lock()

	s.server = &gortsplib.Server{
		Handler:           s,
		RTSPAddress:       s.config.rtspAddress(),
		UDPRTPAddress:     net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.UDPPort)),
		UDPRTCPAddress:    net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.UDPPort+1)),
		MulticastIPRange:  "224.1.0.0/16",
		MulticastRTPPort:  s.config.UDPPort + 2,
		MulticastRTCPPort: s.config.UDPPort + 3,
	}
	if err := s.server.Start(); err != nil {
		s.mutex.Unlock()
		return fmt.Errorf("starting RTSP server: %w", err)
	}
	defer s.server.Close()

	forma := &format.H264{
		PayloadTyp:        96,
		PacketizationMode: 1,
	}
	desc := &description.Session{
		Medias: []*description.Media{{
			Type:    description.MediaTypeVideo,
			Formats: []format.Format{forma},
		}},
	}
	s.stream = &gortsplib.ServerStream{
		Server: s.server,
		Desc:   desc,
	}
	if err := s.stream.Initialize(); err != nil {
		s.mutex.Unlock()
		return fmt.Errorf("initializing stream: %w", err)
	}
	defer s.stream.Close()

	s.mutex.Unlock()
	s.log.Info("replay server is ready",
		zap.String("address", s.server.RTSPAddress),
		zap.String("file", s.config.File),
		zap.Bool("loop", s.config.Loop),
	)

	rt := &router{
		medi:  desc.Medias[0],
		forma: forma,
		out:   s.stream,
		loop:  s.config.Loop,
		log:   s.log,
	}

	routed := make(chan error, 1)
	go func() { routed <- rt.run(ctx, f) }()

	waited := make(chan error, 1)
	go func() { waited <- s.server.Wait() }()

	select {
	case <-ctx.Done():
		return nil
	case err := <-routed:
		return err
	case err := <-waited:
		return err
	}
}
