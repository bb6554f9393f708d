package alert

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	api "github.com/etesami/roi-watcher/api"
	"github.com/etesami/roi-watcher/internal/drift"
	metric "github.com/etesami/roi-watcher/pkg/metric"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

var at = time.Date(2024, 3, 9, 14, 5, 7, 0, time.Local)

func sinkFailures(t *testing.T, reg *prometheus.Registry, action string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != "watcher_sink_failures_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "action" && lp.GetValue() == action {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func movedEvent() Event {
	return Event{Kind: KindMoved, DriftPixels: 57.9, Timestamp: at, Label: "Object"}
}

func frame(t *testing.T) gocv.Mat {
	t.Helper()
	m := gocv.NewMatWithSize(120, 160, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestKindOf(t *testing.T) {
	k, ok := KindOf(drift.Moved)
	assert.True(t, ok)
	assert.Equal(t, KindMoved, k)

	k, ok = KindOf(drift.Lost)
	assert.True(t, ok)
	assert.Equal(t, KindLost, k)

	_, ok = KindOf(drift.Normal)
	assert.False(t, ok)
}

func TestEventMessage(t *testing.T) {
	assert.Equal(t, "Object moved! (57px drift)", movedEvent().Message())

	lost := Event{Kind: KindLost, Timestamp: at, Label: "Laptop"}
	assert.Equal(t, "Laptop not detected!", lost.Message())
	assert.False(t, lost.HasDrift())
}

func TestEventLogLineAndSnapshotName(t *testing.T) {
	ev := movedEvent()
	assert.Equal(t, "[2024-03-09 14:05:07] *** ALERT *** Object moved! (57px drift)", ev.LogLine())
	assert.Equal(t, "alert_2024-03-09_14-05-07.jpg", ev.SnapshotName())
}

func TestActionSinkHandle(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "snaps")
	var out bytes.Buffer
	s := NewActionSink(dir, &out, nil, nil)

	var written string
	s.write = func(name string, img gocv.Mat) bool {
		written = name
		return !img.Empty()
	}

	var marks Marks
	err := s.Handle(movedEvent(), frame(t), &marks)
	require.NoError(t, err)

	assert.True(t, marks.Border)
	assert.Equal(t, "Object moved! (57px drift)", marks.Message)
	assert.Equal(t, filepath.Join(dir, "alert_2024-03-09_14-05-07.jpg"), written)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, movedEvent().LogLine(), lines[0])
	assert.Contains(t, lines[1], "Snapshot saved")

	_, err = os.Stat(dir)
	assert.NoError(t, err)
}

func TestActionSinkKeepsSnapshotsWithinOneSecond(t *testing.T) {
	dir := t.TempDir()
	s := NewActionSink(dir, io.Discard, nil, nil)
	var written []string
	s.write = func(name string, _ gocv.Mat) bool {
		written = append(written, name)
		return os.WriteFile(name, []byte("jpg"), 0o644) == nil
	}

	for range 3 {
		require.NoError(t, s.Handle(movedEvent(), frame(t), nil))
	}
	assert.Equal(t, []string{
		filepath.Join(dir, "alert_2024-03-09_14-05-07.jpg"),
		filepath.Join(dir, "alert_2024-03-09_14-05-07_2.jpg"),
		filepath.Join(dir, "alert_2024-03-09_14-05-07_3.jpg"),
	}, written)
}

func TestActionSinkLeavesFrameUntouched(t *testing.T) {
	s := NewActionSink(t.TempDir(), io.Discard, nil, nil)
	s.write = func(string, gocv.Mat) bool { return true }

	img := frame(t)
	require.NoError(t, s.Handle(movedEvent(), img, nil))
	v := img.GetVecbAt(1, 1)
	assert.Equal(t, uint8(0), v[2])
}

func TestActionSinkSnapshotFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metric.RegisterMetrics(reg, nil, nil)
	var out bytes.Buffer
	s := NewActionSink(t.TempDir(), &out, nil, m)
	s.write = func(string, gocv.Mat) bool { return false }

	var marks Marks
	err := s.Handle(movedEvent(), frame(t), &marks)
	require.Error(t, err)

	var ae *ActionError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, "snapshot", ae.Action)

	// the alert line and the marks still happen
	assert.True(t, marks.Border)
	assert.Contains(t, out.String(), "*** ALERT ***")
	assert.Equal(t, 1.0, sinkFailures(t, reg, "snapshot"))
}

func TestActionSinkEmptyFrame(t *testing.T) {
	s := NewActionSink(t.TempDir(), io.Discard, nil, nil)
	empty := gocv.NewMat()
	defer empty.Close()
	err := s.Handle(movedEvent(), empty, nil)
	assert.Error(t, err)
}

type recordingSink struct {
	events []Event
	err    error
}

func (r *recordingSink) Handle(ev Event, _ gocv.Mat, _ *Marks) error {
	r.events = append(r.events, ev)
	return r.err
}

func TestMulti(t *testing.T) {
	boom := errors.New("boom")
	a := &recordingSink{}
	b := &recordingSink{err: boom}
	c := &recordingSink{}

	err := Multi{a, b, c}.Handle(movedEvent(), gocv.NewMat(), nil)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
	assert.Len(t, c.events, 1)

	assert.NoError(t, Multi{}.Handle(movedEvent(), gocv.NewMat(), nil))
}

func TestWebhookSinkDelivers(t *testing.T) {
	got := make(chan Event, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ev Event
		if err := json.NewDecoder(r.Body).Decode(&ev); err == nil {
			got <- ev
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewWebhookSink(srv.URL, time.Second, nil, nil)
	defer w.Close()

	ev := movedEvent()
	ev.Box = api.BoundingBox{X: 1, Y: 2, Width: 3, Height: 4}
	require.NoError(t, w.Handle(ev, gocv.Mat{}, nil))

	select {
	case rcv := <-got:
		assert.Equal(t, KindMoved, rcv.Kind)
		assert.Equal(t, ev.Box, rcv.Box)
		assert.Equal(t, "Object", rcv.Label)
	case <-time.After(5 * time.Second):
		t.Fatal("webhook not delivered")
	}
}

func TestWebhookSinkRejectedCountsFailure(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	reg := prometheus.NewRegistry()
	m := metric.RegisterMetrics(reg, nil, nil)
	w := NewWebhookSink(srv.URL, time.Second, nil, m)
	defer w.Close()

	require.NoError(t, w.Handle(movedEvent(), gocv.Mat{}, nil))
	assert.Eventually(t, func() bool {
		return sinkFailures(t, reg, "webhook") == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), hits.Load())
}

func TestWebhookSinkQueueFull(t *testing.T) {
	// a sink whose worker is stopped never drains its queue
	w := NewWebhookSink("http://127.0.0.1:1", time.Second, nil, nil)
	require.NoError(t, w.Close())

	for i := 0; i < webhookQueueSize; i++ {
		require.NoError(t, w.Handle(movedEvent(), gocv.Mat{}, nil))
	}
	err := w.Handle(movedEvent(), gocv.Mat{}, nil)
	assert.ErrorIs(t, err, ErrWebhookQueueFull)
}
