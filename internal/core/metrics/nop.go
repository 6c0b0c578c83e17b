package metrics

// Nop discards every event.
type Nop struct{}

var _ Metrics = Nop{}

func (Nop) IncDelivered(string)       {}
func (Nop) IncDropped(string, string) {}
func (Nop) IncControl(string)         {}
func (Nop) IncSlowConsumer(string)    {}
func (Nop) IncHandlerPanic()          {}
func (Nop) IncRequest(string)         {}

// OrNop returns m, or Nop when m is nil.
func OrNop(m Metrics) Metrics {
	if m == nil {
		return Nop{}
	}
	return m
}
