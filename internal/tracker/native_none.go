//go:build nocontrib

package tracker

import (
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

func nativeCompiled() bool { return false }

func newContribTracker(kind NativeKind) (gocv.Tracker, error) {
	return nil, errors.Errorf("native tracker %q unavailable", kind)
}
