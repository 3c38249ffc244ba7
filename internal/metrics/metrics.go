// Package metrics is the minimal instrumentation seam for the load engine.
//
// The engine records counters and histogram samples against a process-wide
// backend. The default backend is a nop, so code can instrument freely
// without caring whether metrics are enabled. Real backends (see the
// datadog subpackage) are installed once at startup via SetBackend.
package metrics

import "sync"

// Labels attach low-cardinality dimensions to a metric observation
// (e.g. {"table": "games", "outcome": "loaded"}).
type Labels map[string]string

// Backend receives metric observations. Implementations must be safe for
// concurrent use; the load engine calls these from worker goroutines.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
}

// Flusher is implemented by backends that buffer observations and submit
// them in batches.
type Flusher interface {
	Flush() error
}

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs the process-wide backend. Call once at startup,
// before the engine runs.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	mu.Lock()
	backend = b
	mu.Unlock()
}

// IncCounter adds delta to a counter on the installed backend.
func IncCounter(name string, delta float64, labels Labels) {
	mu.RLock()
	b := backend
	mu.RUnlock()
	b.IncCounter(name, delta, labels)
}

// ObserveHistogram records one sample on the installed backend.
func ObserveHistogram(name string, value float64, labels Labels) {
	mu.RLock()
	b := backend
	mu.RUnlock()
	b.ObserveHistogram(name, value, labels)
}

// Flush submits buffered observations if the installed backend buffers any.
func Flush() error {
	mu.RLock()
	b := backend
	mu.RUnlock()
	if f, ok := b.(Flusher); ok {
		return f.Flush()
	}
	return nil
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
