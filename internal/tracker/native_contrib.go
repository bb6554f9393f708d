//go:build !nocontrib

package tracker

import (
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"gocv.io/x/gocv/contrib"
)

func nativeCompiled() bool { return true }

func newContribTracker(kind NativeKind) (gocv.Tracker, error) {
	switch kind {
	case NativeCSRT, "":
		return contrib.NewTrackerCSRT(), nil
	case NativeKCF:
		return contrib.NewTrackerKCF(), nil
	}
	return nil, errors.Errorf("unknown native tracker %q", kind)
}
