//go:build !screen

package video

// ScreenSupported returns whether screen support is compiled in.
func ScreenSupported() bool {
	return false
}

// Display is a stub when screen support is not compiled in.
type Display struct{}

// New returns an error when screen support is not compiled in.
func New(cfg Config) (*Display, error) {
	return nil, ErrScreenNotCompiled
}

func (v *Display) Idle()                            {}
func (v *Display) Waiting(title, label string)      {}
func (v *Display) Success(title, label, uid string) {}
func (v *Display) Failure(title, label, uid string) {}
func (v *Display) ConnectionLost()                  {}
func (v *Display) Shutdown()                        {}
func (v *Display) Release() error                   { return nil }
func (v *Display) Width() int                       { return 0 }
func (v *Display) Height() int                      { return 0 }
