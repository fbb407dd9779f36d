package metrics

// NoopCollector is a no-op implementation of the Collector interface.
// All methods are empty stubs that do nothing.
type NoopCollector struct{}

func (n *NoopCollector) SessionOpened()             {}
func (n *NoopCollector) SessionClosed(reason string) {}
func (n *NoopCollector) CommandProcessed(verb string) {}
func (n *NoopCollector) Kicked()                    {}
func (n *NoopCollector) TLSHandshake()               {}
func (n *NoopCollector) AuthAttempt(success bool)    {}
func (n *NoopCollector) MessageAccepted(sizeBytes int64) {}
