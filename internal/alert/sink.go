package alert

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/etesami/roi-watcher/internal/overlay"
	metric "github.com/etesami/roi-watcher/pkg/metric"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// Marks are the render requests a sink places on the current frame.
type Marks struct {
	Border  bool
	Message string
}

// Sink performs the side effects of one alert. Handle runs inside the frame
// loop: it must not block for long and must not retain frame past the call.
type Sink interface {
	Handle(ev Event, frame gocv.Mat, marks *Marks) error
}

// ActionError names the side effect that failed.
type ActionError struct {
	Action string
	Err    error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Action, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

// ActionSink marks the frame, writes the alert line and saves a snapshot.
type ActionSink struct {
	dir    string
	out    io.Writer
	log    *zap.Logger
	metric *metric.Metric
	write  func(name string, img gocv.Mat) bool
}

func NewActionSink(snapshotDir string, out io.Writer, log *zap.Logger, m *metric.Metric) *ActionSink {
	if out == nil {
		out = os.Stdout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ActionSink{
		dir:    snapshotDir,
		out:    out,
		log:    log,
		metric: m,
		write:  gocv.IMWrite,
	}
}

func (s *ActionSink) Handle(ev Event, frame gocv.Mat, marks *Marks) error {
	if marks != nil {
		marks.Border = true
		marks.Message = ev.Message()
	}

	var errs []error
	if _, err := fmt.Fprintln(s.out, ev.LogLine()); err != nil {
		errs = append(errs, s.fail("log", err))
	}

	path, err := s.snapshot(ev, frame)
	if err != nil {
		errs = append(errs, s.fail("snapshot", err))
	} else {
		fmt.Fprintf(s.out, "[%s] Snapshot saved: %s\n", ev.Timestamp.Format(logTimeLayout), path)
		s.log.Info("snapshot saved", zap.String("path", path), zap.String("kind", string(ev.Kind)))
	}
	return errors.Join(errs...)
}

func (s *ActionSink) fail(action string, err error) error {
	s.metric.AddSinkFailure(action)
	return &ActionError{Action: action, Err: err}
}

// snapshot writes the frame with the alert overlay drawn on a copy.
func (s *ActionSink) snapshot(ev Event, frame gocv.Mat) (string, error) {
	if frame.Empty() {
		return "", fmt.Errorf("empty frame")
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	img := frame.Clone()
	defer img.Close()
	overlay.Alert(&img, ev.Message())

	path := uniquePath(filepath.Join(s.dir, ev.SnapshotName()))
	if ok := s.write(path, img); !ok {
		return "", fmt.Errorf("failed to write %s", path)
	}
	return path, nil
}

// uniquePath appends _2, _3, ... before the extension while path exists, so
// two alerts stamped with the same second keep both snapshots.
func uniquePath(path string) string {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return path
	}
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	for i := 2; ; i++ {
		p := fmt.Sprintf("%s_%d%s", base, i, ext)
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			return p
		}
	}
}

// Multi hands an event to every sink in order and joins their errors.
type Multi []Sink

func (m Multi) Handle(ev Event, frame gocv.Mat, marks *Marks) error {
	var errs []error
	for _, s := range m {
		if err := s.Handle(ev, frame, marks); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
