//go:build screen

package indicator

import (
	"tagkeep/video"
)

// VideoIndicator wraps video.Display to implement Indicator.
type VideoIndicator struct {
	v *video.Display
}

// NewVideo creates a new video-based indicator.
func NewVideo(cfg video.Config) (*VideoIndicator, error) {
	v, err := video.New(cfg)
	if err != nil {
		return nil, err
	}
	return &VideoIndicator{v: v}, nil
}

// Idle implements Indicator.Idle.
func (vi *VideoIndicator) Idle() {
	vi.v.Idle()
}

// Waiting implements Indicator.Waiting.
func (vi *VideoIndicator) Waiting(info *Info) {
	title, label, _ := fields(info)
	vi.v.Waiting(title, label)
}

// Success implements Indicator.Success.
func (vi *VideoIndicator) Success(info *Info) {
	vi.v.Success(fields(info))
}

// Failure implements Indicator.Failure.
func (vi *VideoIndicator) Failure(info *Info) {
	vi.v.Failure(fields(info))
}

// ConnectionLost implements Indicator.ConnectionLost.
func (vi *VideoIndicator) ConnectionLost() {
	vi.v.ConnectionLost()
}

// Shutdown implements Indicator.Shutdown.
func (vi *VideoIndicator) Shutdown() {
	vi.v.Shutdown()
}

// Release implements Indicator.Release.
func (vi *VideoIndicator) Release() error {
	return vi.v.Release()
}

func fields(info *Info) (string, string, string) {
	if info == nil {
		return "", "", ""
	}
	return info.Title, info.Label, info.UID
}
