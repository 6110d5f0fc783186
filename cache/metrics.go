package cache

// NoopMetrics is a drop-in Metrics implementation that does nothing.
type NoopMetrics struct{}

func (NoopMetrics) Hit()                 {}
func (NoopMetrics) Miss()                {}
func (NoopMetrics) Evict(EvictReason)    {}
func (NoopMetrics) Size(int, uint64)     {}
func (NoopMetrics) Scavenge(int, uint64) {}

var _ Metrics = NoopMetrics{}
