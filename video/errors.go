package video

import "errors"

// ErrScreenNotCompiled is returned when screen support was not compiled in.
var ErrScreenNotCompiled = errors.New("screen support not compiled in (build with -tags=screen)")

// ErrRotation is returned for a rotation that is not a multiple of 90 degrees.
var ErrRotation = errors.New("rotation must be 0, 90, 180 or 270")
