package feed

import (
	"fmt"
	"time"

	api "github.com/etesami/roi-watcher/api"
	"github.com/etesami/roi-watcher/internal/alert"
	utils "github.com/etesami/roi-watcher/pkg/utils"

	"google.golang.org/protobuf/types/known/structpb"
)

// EventToStruct encodes an event as a protobuf Struct. The timestamp travels
// as unix milliseconds.
func EventToStruct(ev alert.Event) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"kind":         string(ev.Kind),
		"message":      ev.Message(),
		"drift_pixels": ev.DriftPixels,
		"has_drift":    ev.HasDrift(),
		"timestamp":    ev.Timestamp.UnixMilli(),
		"label":        ev.Label,
		"baseline_id":  ev.BaselineID,
		"confidence":   ev.Confidence,
		"box": map[string]any{
			"x":      ev.Box.X,
			"y":      ev.Box.Y,
			"width":  ev.Box.Width,
			"height": ev.Box.Height,
		},
	})
}

// EventFromStruct decodes what EventToStruct produced.
func EventFromStruct(s *structpb.Struct) (alert.Event, error) {
	f := s.GetFields()
	kind := alert.Kind(f["kind"].GetStringValue())
	if kind != alert.KindMoved && kind != alert.KindLost {
		return alert.Event{}, fmt.Errorf("unknown alert kind %q", kind)
	}

	ev := alert.Event{
		Kind:        kind,
		DriftPixels: f["drift_pixels"].GetNumberValue(),
		Timestamp:   utils.UnixMilliToTime(int64(f["timestamp"].GetNumberValue())),
		Label:       f["label"].GetStringValue(),
		BaselineID:  f["baseline_id"].GetStringValue(),
		Confidence:  f["confidence"].GetNumberValue(),
	}
	if box := f["box"].GetStructValue(); box != nil {
		bf := box.GetFields()
		ev.Box = api.BoundingBox{
			X:      int(bf["x"].GetNumberValue()),
			Y:      int(bf["y"].GetNumberValue()),
			Width:  int(bf["width"].GetNumberValue()),
			Height: int(bf["height"].GetNumberValue()),
		}
	}
	return ev, nil
}

// statusStruct converts a status map, formatting times as RFC 3339.
func statusStruct(m map[string]any) (*structpb.Struct, error) {
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch t := v.(type) {
		case time.Time:
			if t.IsZero() {
				out[k] = nil
			} else {
				out[k] = t.Format(time.RFC3339Nano)
			}
		case time.Duration:
			out[k] = t.Seconds()
		case fmt.Stringer:
			out[k] = t.String()
		default:
			out[k] = v
		}
	}
	return structpb.NewStruct(out)
}
