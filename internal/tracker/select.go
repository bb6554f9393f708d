package tracker

import (
	"github.com/pkg/errors"
)

type Preference string

const (
	PreferAuto     Preference = "auto"
	PreferNative   Preference = "native"
	PreferTemplate Preference = "template"
)

// NativeAvailable probes whether a native tracker of the given kind can be
// constructed in this process.
func NativeAvailable(kind NativeKind) (ok bool) {
	if !nativeCompiled() {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	t, err := newContribTracker(kind)
	if err != nil || t == nil {
		return false
	}
	t.Close()
	return true
}

// Select chooses the tracking strategy for the lifetime of the process.
func Select(pref Preference, kind NativeKind) (Factory, Mode, error) {
	return selectWith(pref, kind, NativeAvailable)
}

func selectWith(pref Preference, kind NativeKind, probe func(NativeKind) bool) (Factory, Mode, error) {
	switch pref {
	case PreferTemplate:
		return NewTemplateFactory(), ModeTemplate, nil
	case PreferNative:
		if !probe(kind) {
			return nil, "", errors.Errorf("native tracker %q requested but not available", kind)
		}
		return NewNativeFactory(kind), ModeNative, nil
	case PreferAuto, "":
		if probe(kind) {
			return NewNativeFactory(kind), ModeNative, nil
		}
		return NewTemplateFactory(), ModeTemplate, nil
	}
	return nil, "", errors.Errorf("unknown tracker preference %q", pref)
}
