//go:build !screen

package indicator

import (
	"tagkeep/video"
)

// NewVideo returns an error when screen support is not compiled in.
func NewVideo(cfg video.Config) (*VideoIndicator, error) {
	return nil, video.ErrScreenNotCompiled
}

// VideoIndicator is a stub when screen support is not compiled in.
type VideoIndicator struct{}

func (vi *VideoIndicator) Idle()           {}
func (vi *VideoIndicator) Waiting(*Info)   {}
func (vi *VideoIndicator) Success(*Info)   {}
func (vi *VideoIndicator) Failure(*Info)   {}
func (vi *VideoIndicator) ConnectionLost() {}
func (vi *VideoIndicator) Shutdown()       {}
func (vi *VideoIndicator) Release() error  { return nil }
