package indicator

// Multi combines multiple Indicator implementations.
type Multi struct {
	indicators []Indicator
}

// NewMulti returns an Indicator driving all of indicators.
func NewMulti(indicators ...Indicator) *Multi {
	return &Multi{indicators: indicators}
}

// Idle implements Indicator.Idle.
func (m *Multi) Idle() {
	for _, ind := range m.indicators {
		ind.Idle()
	}
}

// Waiting implements Indicator.Waiting.
func (m *Multi) Waiting(info *Info) {
	for _, ind := range m.indicators {
		ind.Waiting(info)
	}
}

// Success implements Indicator.Success.
func (m *Multi) Success(info *Info) {
	for _, ind := range m.indicators {
		ind.Success(info)
	}
}

// Failure implements Indicator.Failure.
func (m *Multi) Failure(info *Info) {
	for _, ind := range m.indicators {
		ind.Failure(info)
	}
}

// ConnectionLost implements Indicator.ConnectionLost.
func (m *Multi) ConnectionLost() {
	for _, ind := range m.indicators {
		ind.ConnectionLost()
	}
}

// Shutdown implements Indicator.Shutdown.
func (m *Multi) Shutdown() {
	for _, ind := range m.indicators {
		ind.Shutdown()
	}
}

// Release implements Indicator.Release.
func (m *Multi) Release() error {
	var lastErr error
	for _, ind := range m.indicators {
		if err := ind.Release(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
