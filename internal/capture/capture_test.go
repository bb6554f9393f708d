package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigTarget(t *testing.T) {
	assert.Equal(t, 2, Config{WebcamIndex: 2}.target())
	assert.Equal(t, "rtsp://cam/stream", Config{VideoSource: "rtsp://cam/stream", WebcamIndex: 2}.target())
	assert.Equal(t, "0", Config{}.String())
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(Config{VideoSource: "/nonexistent/clip.mp4", MaxEmptyFrames: 1}, nil)
	assert.Error(t, err)
}
