package log

// Logger receives protocol events. A nil Logger disables capture; every
// producer in the gateway checks for nil before building an event.
//
// Log is called on I/O paths and must not block. Implementations must be
// safe for concurrent use.
type Logger interface {
	Log(event Event)
}

// LoggerFunc adapts a function to Logger.
type LoggerFunc func(Event)

// Log calls f(event).
func (f LoggerFunc) Log(event Event) { f(event) }
