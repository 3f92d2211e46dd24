package indicator

// Noop implements Indicator but does nothing.
// Used when no indicators are configured.
type Noop struct{}

func (n *Noop) Idle()              {}
func (n *Noop) Waiting(info *Info) {}
func (n *Noop) Success(info *Info) {}
func (n *Noop) Failure(info *Info) {}
func (n *Noop) ConnectionLost()    {}
func (n *Noop) Shutdown()          {}
func (n *Noop) Release() error     { return nil }
