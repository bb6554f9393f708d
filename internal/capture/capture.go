// Package capture reads frames from a camera, file or stream through gocv.
package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	api "github.com/etesami/roi-watcher/api"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

const (
	DefaultMaxEmptyFrames = 10
	DefaultRetryDelay     = 500 * time.Millisecond
)

type Config struct {
	// VideoSource is a file path or stream URL. Empty selects the webcam.
	VideoSource string
	WebcamIndex int
	// MaxEmptyFrames is how many consecutive failed reads are tolerated
	// before Read gives up.
	MaxEmptyFrames int
	RetryDelay     time.Duration
}

func (c Config) target() any {
	if c.VideoSource != "" {
		return c.VideoSource
	}
	return c.WebcamIndex
}

func (c Config) String() string {
	return fmt.Sprint(c.target())
}

// Source is a session.FrameSource over a gocv.VideoCapture.
type Source struct {
	config      Config
	capture     *gocv.VideoCapture
	log         *zap.Logger
	frameCount  int64
	emptyFrames int
	mu          sync.Mutex
}

func Open(config Config, log *zap.Logger) (*Source, error) {
	if config.MaxEmptyFrames <= 0 {
		config.MaxEmptyFrames = DefaultMaxEmptyFrames
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = DefaultRetryDelay
	}
	if log == nil {
		log = zap.NewNop()
	}
	vc, err := gocv.OpenVideoCapture(config.target())
	if err != nil {
		return nil, fmt.Errorf("error opening video source %s: %w", config, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("video source %s is not available", config)
	}
	log.Info("opened video source", zap.Stringer("source", config),
		zap.Float64("width", vc.Get(gocv.VideoCaptureFrameWidth)),
		zap.Float64("height", vc.Get(gocv.VideoCaptureFrameHeight)),
		zap.Float64("fps", vc.Get(gocv.VideoCaptureFPS)),
	)
	return &Source{config: config, capture: vc, log: log, frameCount: -1}, nil
}

// Read returns the next frame in a new Mat owned by the caller. Empty reads
// are retried until MaxEmptyFrames in a row have failed.
func (s *Source) Read(ctx context.Context) (api.FrameData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	img := gocv.NewMat()
	for {
		if err := ctx.Err(); err != nil {
			img.Close()
			return api.FrameData{}, err
		}
		if ok := s.capture.Read(&img); ok && !img.Empty() {
			break
		}
		s.emptyFrames++
		s.log.Warn("error reading frame", zap.Int("empty_frames", s.emptyFrames))
		if s.emptyFrames >= s.config.MaxEmptyFrames {
			img.Close()
			return api.FrameData{}, fmt.Errorf("too many empty frames from %s", s.config)
		}
		select {
		case <-ctx.Done():
		case <-time.After(s.config.RetryDelay):
		}
	}
	s.emptyFrames = 0
	s.frameCount++
	return api.FrameData{
		Timestamp: time.Now(),
		SourceId:  s.config.String(),
		FrameId:   s.frameCount,
		Frame:     img,
	}, nil
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log.Info("video input closed", zap.Int64("frames", s.frameCount+1))
	return s.capture.Close()
}
