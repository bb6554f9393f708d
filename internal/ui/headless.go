package ui

import (
	"context"
	"sync"

	api "github.com/etesami/roi-watcher/api"
	"github.com/etesami/roi-watcher/internal/session"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// HeadlessSelector picks a region without a display. The configured initial
// box is used once; later selections need a box from the control API.
type HeadlessSelector struct {
	mu      sync.Mutex
	initial *api.BoundingBox
	log     *zap.Logger
}

func NewHeadlessSelector(initial *api.BoundingBox, log *zap.Logger) *HeadlessSelector {
	if log == nil {
		log = zap.NewNop()
	}
	return &HeadlessSelector{initial: initial, log: log}
}

func (s *HeadlessSelector) Select(_ context.Context, _ gocv.Mat, hint *api.BoundingBox) (session.Signal, error) {
	if hint != nil {
		return session.Signal{Kind: session.Confirm, Box: hint}, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initial != nil {
		box := *s.initial
		s.initial = nil
		return session.Signal{Kind: session.Confirm, Box: &box}, nil
	}
	s.log.Info("waiting for a region from the control API")
	return session.Signal{Kind: session.Cancel}, nil
}
