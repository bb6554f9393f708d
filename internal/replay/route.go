// Package replay serves an MPEG-TS recording over RTSP so the watcher can be
// exercised against a repeatable stream instead of a live camera.
package replay

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/asticode/go-astits"
	"github.com/bluenviron/gortsplib/v4/pkg/description"
	"github.com/bluenviron/gortsplib/v4/pkg/format"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mpegts"
	"github.com/pion/rtp"
	"go.uber.org/zap"
)

const logEveryUnits = 500

// ErrNoH264Track is returned when the recording carries no H264 video.
var ErrNoH264Track = errors.New("H264 track not found")

type packetWriter interface {
	WritePacketRTP(medi *description.Media, pkt *rtp.Packet) error
}

func findTrack(r *mpegts.Reader) (*mpegts.Track, error) {
	for _, track := range r.Tracks() {
		if _, ok := track.Codec.(*mpegts.CodecH264); ok {
			return track, nil
		}
	}
	return nil, ErrNoH264Track
}

func randUint32() (uint32, error) {
	var b [4]byte
	_, err := rand.Read(b[:])
	if err != nil {
		return 0, err
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}

// router paces H264 access units from an MPEG-TS reader onto an RTP writer
// at their original rate.
type router struct {
	medi  *description.Media
	forma *format.H264
	out   packetWriter
	loop  bool
	log   *zap.Logger
	units atomic.Int64
}

// run streams src until it ends (loop off), ctx is cancelled or an error
// occurs. With loop on, src is rewound and replayed with continuous
// timestamps.
func (rt *router) run(ctx context.Context, src io.ReadSeeker) error {
	rtpEnc, err := rt.forma.CreateEncoder()
	if err != nil {
		return fmt.Errorf("creating H264 encoder: %w", err)
	}

	randomStart, err := randUint32()
	if err != nil {
		return err
	}

	for {
		r := &mpegts.Reader{R: src}
		if err := r.Initialize(); err != nil {
			return fmt.Errorf("reading MPEG-TS: %w", err)
		}

		track, err := findTrack(r)
		if err != nil {
			return err
		}

		timeDecoder := mpegts.TimeDecoder{}
		timeDecoder.Initialize()

		var firstDTS *int64
		var firstTime time.Time
		var lastRTPTime uint32

		r.OnDataH264(track, func(pts, dts int64, au [][]byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			dts = timeDecoder.Decode(dts)
			pts = timeDecoder.Decode(pts)

			// sleep between access units
			if firstDTS != nil {
				timeDrift := time.Duration(dts-*firstDTS)*time.Second/90000 - time.Since(firstTime)
				if timeDrift > 0 {
					select {
					case <-ctx.Done():
						return ctx.Err()
					case <-time.After(timeDrift):
					}
				}
			} else {
				firstTime = time.Now()
				firstDTS = &dts
			}

			if n := rt.units.Add(1); n%logEveryUnits == 0 {
				rt.log.Debug("writing access unit", zap.Int64("units", n), zap.Int64("pts", pts), zap.Int64("dts", dts))
			}

			packets, err := rtpEnc.Encode(au)
			if err != nil {
				return err
			}

			// H264 uses the same 90kHz clock in MPEG-TS and RTP
			lastRTPTime = uint32(int64(randomStart) + pts)
			for _, packet := range packets {
				packet.Timestamp = lastRTPTime
				if err := rt.out.WritePacketRTP(rt.medi, packet); err != nil {
					return err
				}
			}
			return nil
		})

		for {
			err := r.Read()
			if err == nil {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			if !errors.Is(err, astits.ErrNoMorePackets) {
				return err
			}
			if !rt.loop {
				rt.log.Info("recording has ended")
				return nil
			}
			rt.log.Info("recording has ended, rewinding")
			if _, err := src.Seek(0, io.SeekStart); err != nil {
				return err
			}
			// keep timestamps increasing across the rewind
			randomStart = lastRTPTime + 1
			break
		}
	}
}
